package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/models"
)

func getExpense(ctx context.Context, q queryer, id string) (*models.Expense, error) {
	expense := &models.Expense{}
	var groupID, templateID sql.NullString
	var occurrenceIndex sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT id, group_id, description, amount, currency, payer_id, split_type,
		        template_id, occurrence_index, created_at, updated_at, deleted
		 FROM expenses WHERE id = ?`, id,
	).Scan(&expense.ID, &groupID, &expense.Description, &expense.Amount,
		&expense.Currency, &expense.PayerID, &expense.SplitType,
		&templateID, &occurrenceIndex, &expense.CreatedAt, &expense.UpdatedAt,
		&expense.Deleted)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("expense", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	expense.GroupID = groupID.String
	expense.TemplateID = templateID.String
	expense.OccurrenceIndex = occurrenceIndex.Int64

	rows, err := q.QueryContext(ctx,
		`SELECT user_id, share_amount, share_percentage, is_paid, paid_date
		 FROM expense_splits WHERE expense_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get expense splits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line models.SplitLine
		var paidDate sql.NullInt64
		if err := rows.Scan(&line.UserID, &line.ShareAmount, &line.SharePercentage, &line.IsPaid, &paidDate); err != nil {
			return nil, fmt.Errorf("failed to scan expense split: %w", err)
		}
		line.PaidDate = paidDate.Int64
		expense.Splits = append(expense.Splits, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expense splits: %w", err)
	}
	return expense, nil
}

// GetExpense retrieves an expense with its split lines.
func (s *SQLiteStore) GetExpense(ctx context.Context, id string) (*models.Expense, error) {
	return getExpense(ctx, s.db, id)
}

// GetExpense retrieves an expense inside the transaction.
func (t *sqlTx) GetExpense(id string) (*models.Expense, error) {
	return getExpense(t.ctx, t.tx, id)
}

// ListExpensesByGroup retrieves all non-deleted expenses for a group, newest
// first.
func (s *SQLiteStore) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM expenses WHERE group_id = ? AND deleted = 0 ORDER BY created_at DESC, id",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses by group: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expense id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expense ids: %w", err)
	}

	expenses := make([]*models.Expense, 0, len(ids))
	for _, id := range ids {
		expense, err := getExpense(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, expense)
	}
	return expenses, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// InsertExpense persists a new expense and its split lines.
func (t *sqlTx) InsertExpense(expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if expense.CreatedAt == 0 {
		expense.CreatedAt = now
	}
	if expense.UpdatedAt == 0 {
		expense.UpdatedAt = expense.CreatedAt
	}

	var occurrence any
	if expense.TemplateID != "" {
		occurrence = expense.OccurrenceIndex
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO expenses (id, group_id, description, amount, currency, payer_id,
		                       split_type, template_id, occurrence_index, created_at, updated_at, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		expense.ID, nullIfEmpty(expense.GroupID), expense.Description, expense.Amount,
		expense.Currency, expense.PayerID, expense.SplitType,
		nullIfEmpty(expense.TemplateID), occurrence,
		expense.CreatedAt, expense.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	return t.insertSplits(expense)
}

func (t *sqlTx) insertSplits(expense *models.Expense) error {
	for i, line := range expense.Splits {
		var paidDate any
		if line.PaidDate != 0 {
			paidDate = line.PaidDate
		}
		_, err := t.tx.ExecContext(t.ctx,
			`INSERT INTO expense_splits (expense_id, user_id, share_amount, share_percentage, is_paid, paid_date, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			expense.ID, line.UserID, line.ShareAmount, line.SharePercentage,
			line.IsPaid, paidDate, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense split: %w", err)
		}
	}
	return nil
}

// UpdateExpense rewrites an expense row and replaces its split lines.
func (t *sqlTx) UpdateExpense(expense *models.Expense) error {
	expense.UpdatedAt = time.Now().Unix()

	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE expenses SET group_id = ?, description = ?, amount = ?, currency = ?,
		        payer_id = ?, split_type = ?, updated_at = ?
		 WHERE id = ?`,
		nullIfEmpty(expense.GroupID), expense.Description, expense.Amount,
		expense.Currency, expense.PayerID, expense.SplitType,
		expense.UpdatedAt, expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if n == 0 {
		return errs.NotFound("expense", expense.ID)
	}

	if _, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM expense_splits WHERE expense_id = ?", expense.ID); err != nil {
		return fmt.Errorf("failed to clear expense splits: %w", err)
	}
	return t.insertSplits(expense)
}

// MarkExpenseDeleted soft-deletes an expense, keeping the record for audit.
func (t *sqlTx) MarkExpenseDeleted(id string, at int64) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE expenses SET deleted = 1, updated_at = ? WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("failed to mark expense deleted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark expense deleted: %w", err)
	}
	if n == 0 {
		return errs.NotFound("expense", id)
	}
	return nil
}

// MarkSplitPaid stamps a single split line as settled.
func (t *sqlTx) MarkSplitPaid(expenseID, userID string, paidAt int64) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE expense_splits SET is_paid = 1, paid_date = ? WHERE expense_id = ? AND user_id = ?",
		paidAt, expenseID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark split paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark split paid: %w", err)
	}
	if n == 0 {
		return errs.NotFound("expense split", expenseID+"/"+userID)
	}
	return nil
}

// MarkExpenseApplied records the double-apply guard marker. The pre-check
// runs inside the same transaction as the insert, and SQLite's single-writer
// transactions make the check-then-insert race-free.
func (t *sqlTx) MarkExpenseApplied(expenseID string) error {
	var exists int
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT 1 FROM expense_applications WHERE expense_id = ?", expenseID).Scan(&exists)
	if err == nil {
		return errs.Conflictf("expense %s already applied", expenseID)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check expense application: %w", err)
	}

	_, err = t.tx.ExecContext(t.ctx,
		"INSERT INTO expense_applications (expense_id, applied_at) VALUES (?, ?)",
		expenseID, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark expense applied: %w", err)
	}
	return nil
}

// ClearExpenseApplied removes the applied marker after a reversal.
func (t *sqlTx) ClearExpenseApplied(expenseID string) error {
	res, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM expense_applications WHERE expense_id = ?", expenseID)
	if err != nil {
		return fmt.Errorf("failed to clear expense application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to clear expense application: %w", err)
	}
	if n == 0 {
		return errs.Conflictf("expense %s is not applied", expenseID)
	}
	return nil
}

// OccurrenceExists reports whether a template occurrence was already
// materialized into an expense.
func (t *sqlTx) OccurrenceExists(templateID string, index int64) (bool, error) {
	var exists int
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT 1 FROM expenses WHERE template_id = ? AND occurrence_index = ?",
		templateID, index,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check occurrence: %w", err)
	}
	return true, nil
}
