package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/tallyhq/tally/internal/cache"
	"github.com/tallyhq/tally/internal/calculator"
	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/internal/scheduler"
	"github.com/tallyhq/tally/internal/storage"
)

// Notifier receives a BalanceChanged event after every successful mutation.
// Implementations own any push-notification delivery; the ledger only emits
// the event.
type Notifier interface {
	BalanceChanged(userID string)
}

// LogNotifier is the default Notifier: it just logs the event.
type LogNotifier struct{}

// BalanceChanged logs the event at debug level.
func (LogNotifier) BalanceChanged(userID string) {
	slog.Debug("balance changed", "user_id", userID)
}

// LedgerService is the UI-facing API surface: expenses, payments, group
// settlement, recurrences, and balance snapshots.
type LedgerService struct {
	store     storage.Store
	ledger    *ledger.Ledger
	recorder  *ledger.Recorder
	scheduler *scheduler.Scheduler
	cache     *cache.Manager
	notifier  Notifier
}

// NewLedgerService wires the full ledger stack over one store.
func NewLedgerService(store storage.Store, deleteWindow time.Duration, notifier Notifier) *LedgerService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	lgr := ledger.New(store, deleteWindow)
	return &LedgerService{
		store:     store,
		ledger:    lgr,
		recorder:  ledger.NewRecorder(store),
		scheduler: scheduler.New(store, lgr),
		cache:     cache.NewManager(store),
		notifier:  notifier,
	}
}

// invalidate refreshes every affected user's snapshot before the mutation
// call returns, so a subsequent GetBalances always reflects the mutation.
// A recompute failure leaves that user's entry stale (self-healing on next
// read) and never fails the mutation that already committed.
func (s *LedgerService) invalidate(ctx context.Context, userIDs ...string) {
	for _, id := range userIDs {
		if err := s.cache.NotifyBalanceChange(ctx, id); err != nil {
			slog.Warn("cache invalidation failed", "user_id", id, "error", err)
		}
		s.notifier.BalanceChanged(id)
	}
}

// ExpenseInput is the caller-supplied description of an expense.
type ExpenseInput struct {
	GroupID     string
	Description string
	Amount      int64
	Currency    string
	PayerID     string
	SplitType   models.SplitType
	Portions    []calculator.Portion
}

func (s *LedgerService) buildExpense(ctx context.Context, in ExpenseInput) (*models.Expense, error) {
	if in.PayerID == "" {
		return nil, errs.Validationf("payer required")
	}
	participates := false
	for _, p := range in.Portions {
		if p.UserID == in.PayerID {
			participates = true
			break
		}
	}
	if in.GroupID != "" {
		group, err := s.store.GetGroup(ctx, in.GroupID)
		if err != nil {
			return nil, err
		}
		if m := group.MemberFor(in.PayerID); m == nil || !m.IsActive {
			return nil, errs.Validationf("payer %s is not an active member of group %s", in.PayerID, in.GroupID)
		}
		for _, p := range in.Portions {
			if group.MemberFor(p.UserID) == nil {
				return nil, errs.Validationf("participant %s is not a member of group %s", p.UserID, in.GroupID)
			}
		}
	} else if !participates && len(in.Portions) == 0 {
		return nil, errs.Validationf("at least one participant required")
	}

	splits, err := calculator.Compute(in.Amount, in.SplitType, in.Portions)
	if err != nil {
		return nil, err
	}

	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}
	return &models.Expense{
		GroupID:     in.GroupID,
		Description: in.Description,
		Amount:      in.Amount,
		Currency:    currency,
		PayerID:     in.PayerID,
		SplitType:   in.SplitType,
		Splits:      splits,
	}, nil
}

// AddExpense validates, splits, and applies a new expense, then refreshes
// every participant's snapshot.
func (s *LedgerService) AddExpense(ctx context.Context, in ExpenseInput) (*models.Expense, error) {
	expense, err := s.buildExpense(ctx, in)
	if err != nil {
		slog.Error("AddExpense rejected", "error", err)
		return nil, err
	}
	if err := s.ledger.Apply(ctx, expense); err != nil {
		slog.Error("AddExpense failed", "error", err)
		return nil, err
	}
	slog.Info("expense added", "expense_id", expense.ID, "amount", expense.Amount, "group_id", expense.GroupID)
	s.invalidate(ctx, ledger.AffectedUsers(expense)...)
	return expense, nil
}

// EditExpense replaces an expense's amount/split atomically
// (reverse-old, apply-new in one transaction).
func (s *LedgerService) EditExpense(ctx context.Context, expenseID string, in ExpenseInput) (*models.Expense, error) {
	oldExpense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if oldExpense.Deleted {
		return nil, errs.Conflictf("expense %s is deleted", expenseID)
	}

	newExpense, err := s.buildExpense(ctx, in)
	if err != nil {
		slog.Error("EditExpense rejected", "expense_id", expenseID, "error", err)
		return nil, err
	}
	if err := s.ledger.Edit(ctx, oldExpense, newExpense); err != nil {
		slog.Error("EditExpense failed", "expense_id", expenseID, "error", err)
		return nil, err
	}
	slog.Info("expense edited", "expense_id", expenseID)

	affected := ledger.AffectedUsers(oldExpense)
	affected = append(affected, ledger.AffectedUsers(newExpense)...)
	s.invalidate(ctx, dedupe(affected)...)
	return newExpense, nil
}

// DeleteExpense reverses and soft-deletes an expense, subject to the
// ledger's paid-split and age-window guards.
func (s *LedgerService) DeleteExpense(ctx context.Context, expenseID, actingUserID string) error {
	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	if err := s.ledger.Delete(ctx, expenseID, actingUserID, time.Now()); err != nil {
		slog.Error("DeleteExpense failed", "expense_id", expenseID, "error", err)
		return err
	}
	slog.Info("expense deleted", "expense_id", expenseID, "acting_user", actingUserID)
	s.invalidate(ctx, ledger.AffectedUsers(expense)...)
	return nil
}

// PaymentInput describes a payment to record.
type PaymentInput struct {
	FromUserID  string
	ToUserID    string
	Amount      int64
	GroupID     string
	ExpenseID   string
	SplitUserID string
	Note        string
	RecordedBy  string
}

// RecordPayment applies a settlement and refreshes both parties.
func (s *LedgerService) RecordPayment(ctx context.Context, in PaymentInput) (*models.SettlementRecord, error) {
	rec, err := s.recorder.RecordPayment(ctx, in.FromUserID, in.ToUserID, in.Amount, ledger.PaymentOptions{
		GroupID:     in.GroupID,
		ExpenseID:   in.ExpenseID,
		SplitUserID: in.SplitUserID,
		Note:        in.Note,
		RecordedBy:  in.RecordedBy,
	})
	if err != nil {
		slog.Error("RecordPayment failed", "error", err)
		return nil, err
	}
	slog.Info("payment recorded", "settlement_id", rec.ID, "from", rec.FromUserID, "to", rec.ToUserID, "amount", rec.Amount)
	s.invalidate(ctx, rec.FromUserID, rec.ToUserID)
	return rec, nil
}

// ComputeGroupSettlement returns the minimum set of payments that zeroes
// the group's balances. Read-only; nothing is recorded.
func (s *LedgerService) ComputeGroupSettlement(ctx context.Context, groupID string) ([]calculator.PaymentInstruction, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	balances := make(map[string]int64, len(group.Members))
	for _, m := range group.Members {
		balances[m.UserID] = m.Balance
	}
	return calculator.MinCashFlow(balances)
}

// TemplateInput describes a recurring template to create.
type TemplateInput struct {
	GroupID        string
	PayerID        string
	Description    string
	Amount         int64
	Currency       string
	Frequency      models.Frequency
	StartDate      time.Time
	EndDate        time.Time
	MaxOccurrences int64
}

// CreateRecurringTemplate validates and persists a template. The first
// instance materializes on the first RunDueRecurrences at or after
// StartDate.
func (s *LedgerService) CreateRecurringTemplate(ctx context.Context, in TemplateInput) (*models.RecurringTemplate, error) {
	if in.Amount <= 0 {
		return nil, errs.Validationf("template amount must be positive, got %d", in.Amount)
	}
	switch in.Frequency {
	case models.FrequencyWeekly, models.FrequencyMonthly, models.FrequencyQuarterly, models.FrequencyYearly:
	default:
		return nil, errs.Validationf("unknown frequency %q", in.Frequency)
	}
	if in.StartDate.IsZero() {
		return nil, errs.Validationf("start date required")
	}
	if !in.EndDate.IsZero() && in.EndDate.Before(in.StartDate) {
		return nil, errs.Validationf("end date is before start date")
	}
	group, err := s.store.GetGroup(ctx, in.GroupID)
	if err != nil {
		return nil, err
	}
	if m := group.MemberFor(in.PayerID); m == nil || !m.IsActive {
		return nil, errs.Validationf("payer %s is not an active member of group %s", in.PayerID, in.GroupID)
	}

	tpl := &models.RecurringTemplate{
		GroupID:        in.GroupID,
		PayerID:        in.PayerID,
		Description:    in.Description,
		Amount:         in.Amount,
		Currency:       in.Currency,
		Frequency:      in.Frequency,
		StartDate:      in.StartDate.Unix(),
		MaxOccurrences: in.MaxOccurrences,
	}
	if !in.EndDate.IsZero() {
		tpl.EndDate = in.EndDate.Unix()
	}
	if err := s.store.CreateTemplate(ctx, tpl); err != nil {
		slog.Error("CreateRecurringTemplate failed", "error", err)
		return nil, err
	}
	slog.Info("template created", "template_id", tpl.ID, "frequency", tpl.Frequency)
	return tpl, nil
}

// RunDueRecurrences materializes every due template occurrence and
// refreshes the snapshots of everyone the new expenses touch.
func (s *LedgerService) RunDueRecurrences(ctx context.Context, now time.Time) (*scheduler.Result, error) {
	result, err := s.scheduler.RunDue(ctx, now)
	if err != nil {
		slog.Error("RunDueRecurrences failed", "error", err)
		return nil, err
	}

	var affected []string
	for _, expense := range result.Created {
		affected = append(affected, ledger.AffectedUsers(expense)...)
	}
	s.invalidate(ctx, dedupe(affected)...)

	slog.Info("recurrences run",
		"created", len(result.Created),
		"failed", len(result.Failed),
	)
	return result, nil
}

// GetBalances returns the user's aggregated balance snapshot, cached unless
// forced.
func (s *LedgerService) GetBalances(ctx context.Context, userID string, force bool) (*models.BalanceSnapshot, error) {
	return s.cache.GetBalances(ctx, userID, force)
}

// Subscribe registers a listener for a user's balance updates and returns
// an unsubscribe func.
func (s *LedgerService) Subscribe(userID string, fn cache.Listener) func() {
	return s.cache.AddListener(userID, fn)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
