// Package scheduler materializes recurring-expense templates into concrete
// expense instances on their cadence, idempotently.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/tallyhq/tally/internal/calculator"
	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/internal/storage"
)

// Scheduler advances due templates. It is stateless: all scheduling state
// (next due date, occurrence count, active flag) lives on the template
// records, so any number of concurrent or retried runs converge on the same
// result.
type Scheduler struct {
	store  storage.Store
	ledger *ledger.Ledger
}

// New creates a Scheduler that applies materialized expenses through lgr.
func New(store storage.Store, lgr *ledger.Ledger) *Scheduler {
	return &Scheduler{store: store, ledger: lgr}
}

// Result reports one scheduler pass.
type Result struct {
	// Created lists the expense instances materialized this pass.
	Created []*models.Expense

	// Failed maps template ID to the error that stopped it. A failed
	// template remains due and is retried on the next pass.
	Failed map[string]error
}

// RunDue materializes an expense for every active template whose next due
// date is at or before now, catching up templates that are overdue by
// several periods. Failures are isolated per template: one broken template
// never aborts the rest of the pass.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) (*Result, error) {
	due, err := s.store.ListDueTemplates(ctx, now.Unix())
	if err != nil {
		return nil, err
	}

	result := &Result{Failed: make(map[string]error)}
	for _, tpl := range due {
		created, err := s.catchUp(ctx, tpl.ID, now)
		if err != nil {
			slog.Error("recurrence failed", "template_id", tpl.ID, "error", err)
			result.Failed[tpl.ID] = err
			continue
		}
		result.Created = append(result.Created, created...)
	}
	return result, nil
}

// catchUp materializes occurrences for one template until it is no longer
// due or goes inactive. Each occurrence commits in its own transaction so a
// failure mid-catch-up keeps the instances already created.
func (s *Scheduler) catchUp(ctx context.Context, templateID string, now time.Time) ([]*models.Expense, error) {
	var created []*models.Expense
	for {
		expense, more, err := s.runOnce(ctx, templateID, now)
		if err != nil {
			return created, err
		}
		if expense != nil {
			created = append(created, expense)
		}
		if !more {
			return created, nil
		}
	}
}

// runOnce advances a template by exactly one occurrence inside a single
// transaction: the occurrence-uniqueness check, the expense insert with its
// balance deltas, and the template advance all commit together. That is
// what makes concurrent or retried runs unable to create duplicate
// instances for the same due date.
func (s *Scheduler) runOnce(ctx context.Context, templateID string, now time.Time) (expense *models.Expense, more bool, err error) {
	err = s.store.RunInTx(ctx, func(tx storage.Tx) error {
		tpl, err := tx.GetTemplate(templateID)
		if err != nil {
			return err
		}
		// Re-checked inside the transaction: a concurrent pass may have
		// advanced or deactivated the template since the due listing.
		if !tpl.IsActive || tpl.NextDueDate > now.Unix() {
			return nil
		}

		index := tpl.OccurrencesCreated
		dueDate := tpl.NextDueDate

		exists, err := tx.OccurrenceExists(tpl.ID, index)
		if err != nil {
			return err
		}
		if !exists {
			expense, err = s.materialize(tx, tpl, index, dueDate)
			if err != nil {
				return err
			}
		}

		advance(tpl)
		if err := tx.UpdateTemplate(tpl); err != nil {
			return err
		}
		more = tpl.IsActive && tpl.NextDueDate <= now.Unix()
		return nil
	})
	return expense, more, err
}

// materialize builds and applies the expense instance for one occurrence.
// Participants come from the group's current active members, not the
// members at template creation.
func (s *Scheduler) materialize(tx storage.Tx, tpl *models.RecurringTemplate, index, dueDate int64) (*models.Expense, error) {
	group, err := tx.GetGroup(tpl.GroupID)
	if err != nil {
		return nil, err
	}
	memberIDs := group.ActiveMemberIDs()
	if len(memberIDs) == 0 {
		return nil, errs.Validationf("group %s has no active members", tpl.GroupID)
	}

	portions := make([]calculator.Portion, len(memberIDs))
	for i, id := range memberIDs {
		portions[i] = calculator.Portion{UserID: id}
	}
	splits, err := calculator.Compute(tpl.Amount, models.SplitEqual, portions)
	if err != nil {
		return nil, err
	}

	expense := &models.Expense{
		GroupID:         tpl.GroupID,
		Description:     tpl.Description,
		Amount:          tpl.Amount,
		Currency:        tpl.Currency,
		PayerID:         tpl.PayerID,
		SplitType:       models.SplitEqual,
		Splits:          splits,
		TemplateID:      tpl.ID,
		OccurrenceIndex: index,
		CreatedAt:       dueDate,
		UpdatedAt:       dueDate,
	}
	if err := s.ledger.ApplyTx(tx, expense); err != nil {
		return nil, err
	}
	return expense, nil
}

// advance moves the template to its next occurrence and enforces the
// deactivation invariant: inactive once the end date has passed or the
// occurrence cap is reached.
func advance(tpl *models.RecurringTemplate) {
	tpl.OccurrencesCreated++
	tpl.NextDueDate = NextDue(tpl.Frequency, time.Unix(tpl.NextDueDate, 0).UTC()).Unix()

	if tpl.MaxOccurrences > 0 && tpl.OccurrencesCreated >= tpl.MaxOccurrences {
		tpl.IsActive = false
	}
	// Keyed off the next due date, not the clock: a late catch-up pass must
	// still materialize occurrences that fell before the end date.
	if tpl.EndDate > 0 && tpl.NextDueDate > tpl.EndDate {
		tpl.IsActive = false
	}
}

// NextDue returns the due date one period after from. Month-based cadences
// are calendar-aware: the day-of-month is clamped to the target month's
// length, so a Jan 31 monthly template falls due Feb 28 (or 29), not Mar 2.
func NextDue(freq models.Frequency, from time.Time) time.Time {
	switch freq {
	case models.FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case models.FrequencyMonthly:
		return addMonthsClamped(from, 1)
	case models.FrequencyQuarterly:
		return addMonthsClamped(from, 3)
	case models.FrequencyYearly:
		return addMonthsClamped(from, 12)
	default:
		// Unknown cadence: advance by a month so a bad template cannot
		// stay due forever.
		return addMonthsClamped(from, 1)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	firstOfTarget := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	day := t.Day()
	if last := daysIn(firstOfTarget.Year(), firstOfTarget.Month()); day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
