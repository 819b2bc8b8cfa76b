// Package ledger turns expenses and payments into balance deltas and applies
// them transactionally against the friend-pair and group-membership graphs.
//
// Every applied expense is exactly reversible: Reverse recomputes the same
// deltas from the stored split lines and applies them with inverted sign, so
// apply-then-reverse is an identity on every touched balance. The applied
// marker persisted alongside the deltas guards against double-apply.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/internal/storage"
)

// DefaultDeleteWindow is how long a non-admin may delete an expense after
// its creation.
const DefaultDeleteWindow = 30 * 24 * time.Hour

// Ledger is the accumulator: stateless over the store plus the transaction
// each operation runs in.
type Ledger struct {
	store        storage.Store
	deleteWindow time.Duration
}

// New creates a Ledger. A zero deleteWindow falls back to
// DefaultDeleteWindow.
func New(store storage.Store, deleteWindow time.Duration) *Ledger {
	if deleteWindow == 0 {
		deleteWindow = DefaultDeleteWindow
	}
	return &Ledger{store: store, deleteWindow: deleteWindow}
}

func validateExpense(e *models.Expense) error {
	if e.Amount <= 0 {
		return errs.Validationf("expense amount must be positive, got %d", e.Amount)
	}
	if e.PayerID == "" {
		return errs.Validationf("expense requires a payer")
	}
	if len(e.Splits) == 0 {
		return errs.Validationf("expense requires at least one split line")
	}
	if total := e.SplitTotal(); total != e.Amount {
		return errs.Validationf("split lines sum to %d, want %d", total, e.Amount)
	}
	if e.GroupID == "" {
		// A friend expense needs a counterparty besides the payer.
		if e.SplitFor(e.PayerID) != nil && len(e.Splits) == 1 {
			return errs.Validationf("friend expense has no participant besides the payer")
		}
	}
	return nil
}

// applyDeltas walks the split lines and moves balances by sign*share.
//
// Friend expense: each non-payer participant owes the payer their share; the
// payer's own share never generates a delta against themself.
//
// Group expense: the payer's pool balance rises by amount minus their own
// share, every other participant's falls by their share. The group-wide sum
// of deltas is zero.
func applyDeltas(tx storage.Tx, e *models.Expense, sign int64) error {
	if e.GroupID == "" {
		for _, s := range e.Splits {
			if s.UserID == e.PayerID {
				continue
			}
			if err := tx.AdjustFriendBalance(e.PayerID, s.UserID, sign*s.ShareAmount); err != nil {
				return err
			}
		}
		return nil
	}

	var ownShare int64
	if line := e.SplitFor(e.PayerID); line != nil {
		ownShare = line.ShareAmount
	}
	if err := tx.AdjustMemberBalance(e.GroupID, e.PayerID, sign*(e.Amount-ownShare)); err != nil {
		return err
	}
	for _, s := range e.Splits {
		if s.UserID == e.PayerID {
			continue
		}
		if err := tx.AdjustMemberBalance(e.GroupID, s.UserID, -sign*s.ShareAmount); err != nil {
			return err
		}
	}
	return nil
}

// ApplyTx inserts the expense and applies its deltas inside an open
// transaction. Exposed for callers (the recurrence scheduler) that need to
// compose the apply with their own guards in one transaction.
func (l *Ledger) ApplyTx(tx storage.Tx, e *models.Expense) error {
	if err := validateExpense(e); err != nil {
		return err
	}
	if err := tx.InsertExpense(e); err != nil {
		return err
	}
	if err := tx.MarkExpenseApplied(e.ID); err != nil {
		return err
	}
	return applyDeltas(tx, e, +1)
}

// Apply persists a new expense and its balance deltas atomically. A second
// apply of the same expense ID fails with a ConflictError and leaves nothing
// changed.
func (l *Ledger) Apply(ctx context.Context, e *models.Expense) error {
	return l.store.RunInTx(ctx, func(tx storage.Tx) error {
		if e.ID != "" {
			// Re-apply of an existing record (retry path): the marker
			// insert below still guards, but a missing record means the
			// caller is confused.
			if _, err := tx.GetExpense(e.ID); err == nil {
				if err := tx.MarkExpenseApplied(e.ID); err != nil {
					return err
				}
				return applyDeltas(tx, e, +1)
			}
		}
		return l.ApplyTx(tx, e)
	})
}

// reverseTx undoes an applied expense's deltas and clears the marker.
func (l *Ledger) reverseTx(tx storage.Tx, e *models.Expense) error {
	if err := tx.ClearExpenseApplied(e.ID); err != nil {
		return err
	}
	return applyDeltas(tx, e, -1)
}

// Reverse recomputes the stored deltas with inverted sign and applies them,
// returning every touched balance to its pre-apply value. Reversing an
// expense that is not applied fails with a ConflictError.
func (l *Ledger) Reverse(ctx context.Context, e *models.Expense) error {
	return l.store.RunInTx(ctx, func(tx storage.Tx) error {
		return l.reverseTx(tx, e)
	})
}

// Edit replaces oldE with newE: reverse-old then apply-new in a single
// transaction. If either step fails, neither is committed. The expense keeps
// its identity; newE.ID is forced to oldE.ID.
func (l *Ledger) Edit(ctx context.Context, oldE, newE *models.Expense) error {
	if err := validateExpense(newE); err != nil {
		return err
	}
	newE.ID = oldE.ID
	newE.CreatedAt = oldE.CreatedAt
	return l.store.RunInTx(ctx, func(tx storage.Tx) error {
		stored, err := tx.GetExpense(oldE.ID)
		if err != nil {
			return err
		}
		if stored.Deleted {
			return errs.Conflictf("expense %s is deleted", oldE.ID)
		}
		if err := l.reverseTx(tx, stored); err != nil {
			return err
		}
		if err := tx.UpdateExpense(newE); err != nil {
			return err
		}
		if err := tx.MarkExpenseApplied(newE.ID); err != nil {
			return err
		}
		return applyDeltas(tx, newE, +1)
	})
}

// Delete reverses an expense and soft-deletes the record, guarded by ledger
// policy:
//
//   - an expense with any paid split line cannot be deleted; the settlement
//     has to be adjusted explicitly first
//   - an expense older than the delete window can only be deleted by an
//     admin of its group; friend expenses have no admin and stay frozen
//
// The guards live here rather than in a UI layer because any API caller
// must be held to the same invariants.
func (l *Ledger) Delete(ctx context.Context, expenseID, actingUserID string, now time.Time) error {
	return l.store.RunInTx(ctx, func(tx storage.Tx) error {
		e, err := tx.GetExpense(expenseID)
		if err != nil {
			return err
		}
		if e.Deleted {
			return errs.Conflictf("expense %s is already deleted", expenseID)
		}
		if e.HasPaidSplit() {
			return errs.Policyf("expense %s has settled split lines; adjust the settlement before deleting", expenseID)
		}

		age := now.Sub(time.Unix(e.CreatedAt, 0))
		if age > l.deleteWindow {
			if e.GroupID == "" {
				return errs.Policyf("expense %s is older than the delete window", expenseID)
			}
			group, err := tx.GetGroup(e.GroupID)
			if err != nil {
				return err
			}
			if !group.IsAdmin(actingUserID) {
				return errs.Policyf("expense %s is older than the delete window; only a group admin may delete it", expenseID)
			}
		}

		if err := l.reverseTx(tx, e); err != nil {
			return err
		}
		if err := tx.MarkExpenseDeleted(expenseID, now.Unix()); err != nil {
			return fmt.Errorf("failed to soft-delete expense: %w", err)
		}
		return nil
	})
}

// AffectedUsers returns every user whose balances an expense touches, payer
// included. Used by the service layer for cache invalidation.
func AffectedUsers(e *models.Expense) []string {
	seen := map[string]bool{e.PayerID: true}
	users := []string{e.PayerID}
	for _, s := range e.Splits {
		if !seen[s.UserID] {
			seen[s.UserID] = true
			users = append(users, s.UserID)
		}
	}
	return users
}
