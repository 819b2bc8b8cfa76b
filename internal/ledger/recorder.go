package ledger

import (
	"context"
	"time"

	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/internal/storage"
)

// Recorder applies manual or detected payments as balance deltas,
// independent of any expense.
type Recorder struct {
	store storage.Store
}

// NewRecorder creates a Recorder over the given store.
func NewRecorder(store storage.Store) *Recorder {
	return &Recorder{store: store}
}

// PaymentOptions carries the optional context of a recorded payment.
type PaymentOptions struct {
	// GroupID settles group-pool balances instead of the friend pair.
	GroupID string

	// ExpenseID/SplitUserID tie the payment to a specific split line,
	// which is marked paid. SplitUserID defaults to the paying user.
	ExpenseID   string
	SplitUserID string

	Note       string
	RecordedBy string
}

// RecordPayment reduces fromUser's debt to toUser by amount and appends the
// audit record, in one transaction.
//
// The amount may exceed the current debt: the balance then flips sign and
// the former debtor becomes a creditor for the excess. No clamping; this
// mirrors real overpayment behavior.
//
// When the payment is tied to an expense split line, the line is marked paid
// and stamped, but its share amount is untouched; the expense's sum
// invariant is unaffected.
func (r *Recorder) RecordPayment(ctx context.Context, fromUser, toUser string, amount int64, opts PaymentOptions) (*models.SettlementRecord, error) {
	if amount <= 0 {
		return nil, errs.Validationf("payment amount must be positive, got %d", amount)
	}
	if fromUser == "" || toUser == "" {
		return nil, errs.Validationf("payment requires both users")
	}
	if fromUser == toUser {
		return nil, errs.Validationf("cannot record a payment to yourself")
	}

	rec := &models.SettlementRecord{
		GroupID:    opts.GroupID,
		FromUserID: fromUser,
		ToUserID:   toUser,
		Amount:     amount,
		Note:       opts.Note,
		RecordedAt: time.Now().Unix(),
		RecordedBy: opts.RecordedBy,
	}
	if rec.RecordedBy == "" {
		rec.RecordedBy = fromUser
	}

	err := r.store.RunInTx(ctx, func(tx storage.Tx) error {
		if opts.GroupID == "" {
			// fromUser owes toUser less now.
			if err := tx.AdjustFriendBalance(toUser, fromUser, -amount); err != nil {
				return err
			}
		} else {
			if err := tx.AdjustMemberBalance(opts.GroupID, fromUser, amount); err != nil {
				return err
			}
			if err := tx.AdjustMemberBalance(opts.GroupID, toUser, -amount); err != nil {
				return err
			}
		}

		if err := tx.InsertSettlement(rec); err != nil {
			return err
		}

		if opts.ExpenseID != "" {
			splitUser := opts.SplitUserID
			if splitUser == "" {
				splitUser = fromUser
			}
			if err := tx.MarkSplitPaid(opts.ExpenseID, splitUser, rec.RecordedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
