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

const templateColumns = `id, group_id, payer_id, description, amount, currency, frequency,
	start_date, end_date, max_occurrences, occurrences_created, next_due_date, is_active, created_at`

func scanTemplate(row interface{ Scan(...any) error }) (*models.RecurringTemplate, error) {
	tpl := &models.RecurringTemplate{}
	err := row.Scan(
		&tpl.ID, &tpl.GroupID, &tpl.PayerID, &tpl.Description, &tpl.Amount,
		&tpl.Currency, &tpl.Frequency, &tpl.StartDate, &tpl.EndDate,
		&tpl.MaxOccurrences, &tpl.OccurrencesCreated, &tpl.NextDueDate,
		&tpl.IsActive, &tpl.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// CreateTemplate persists a new recurring template. NextDueDate defaults to
// StartDate so the first instance materializes on the first scheduler pass
// at or after the start.
func (s *SQLiteStore) CreateTemplate(ctx context.Context, tpl *models.RecurringTemplate) error {
	if tpl.ID == "" {
		tpl.ID = uuid.New().String()
	}
	if tpl.CreatedAt == 0 {
		tpl.CreatedAt = time.Now().Unix()
	}
	if tpl.NextDueDate == 0 {
		tpl.NextDueDate = tpl.StartDate
	}
	if tpl.Currency == "" {
		tpl.Currency = "USD"
	}
	tpl.IsActive = true

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recurring_templates (`+templateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tpl.ID, tpl.GroupID, tpl.PayerID, tpl.Description, tpl.Amount,
		tpl.Currency, tpl.Frequency, tpl.StartDate, tpl.EndDate,
		tpl.MaxOccurrences, tpl.OccurrencesCreated, tpl.NextDueDate,
		tpl.IsActive, tpl.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func getTemplate(ctx context.Context, q queryer, id string) (*models.RecurringTemplate, error) {
	tpl, err := scanTemplate(q.QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM recurring_templates WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("template", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tpl, nil
}

// GetTemplate retrieves a recurring template by ID.
func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*models.RecurringTemplate, error) {
	return getTemplate(ctx, s.db, id)
}

// GetTemplate retrieves a template inside the transaction.
func (t *sqlTx) GetTemplate(id string) (*models.RecurringTemplate, error) {
	return getTemplate(t.ctx, t.tx, id)
}

// ListDueTemplates retrieves active templates whose next due date has
// arrived, oldest due first.
func (s *SQLiteStore) ListDueTemplates(ctx context.Context, now int64) ([]*models.RecurringTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+templateColumns+` FROM recurring_templates
		 WHERE is_active = 1 AND next_due_date <= ?
		 ORDER BY next_due_date, id`, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.RecurringTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate templates: %w", err)
	}
	return templates, nil
}

// UpdateTemplate rewrites a template's schedule fields.
func (t *sqlTx) UpdateTemplate(tpl *models.RecurringTemplate) error {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE recurring_templates
		 SET occurrences_created = ?, next_due_date = ?, is_active = ?, end_date = ?, max_occurrences = ?
		 WHERE id = ?`,
		tpl.OccurrencesCreated, tpl.NextDueDate, tpl.IsActive,
		tpl.EndDate, tpl.MaxOccurrences, tpl.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	if n == 0 {
		return errs.NotFound("template", tpl.ID)
	}
	return nil
}
