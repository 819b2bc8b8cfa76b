package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/models"
)

// InsertSettlement appends a settlement record inside the transaction that
// also moved the balances it documents.
func (t *sqlTx) InsertSettlement(rec *models.SettlementRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.RecordedAt == 0 {
		rec.RecordedAt = time.Now().Unix()
	}

	var note any
	if rec.Note != "" {
		note = rec.Note
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO settlements (id, group_id, from_user_id, to_user_id, amount, note, recorded_at, recorded_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, nullIfEmpty(rec.GroupID), rec.FromUserID, rec.ToUserID,
		rec.Amount, note, rec.RecordedAt, rec.RecordedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

// ListSettlementsForUser retrieves the settlement audit trail touching a
// user, newest first.
func (s *SQLiteStore) ListSettlementsForUser(ctx context.Context, userID string) ([]*models.SettlementRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, from_user_id, to_user_id, amount, note, recorded_at, recorded_by
		 FROM settlements
		 WHERE from_user_id = ? OR to_user_id = ?
		 ORDER BY recorded_at DESC, id`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var records []*models.SettlementRecord
	for rows.Next() {
		rec := &models.SettlementRecord{}
		var groupID, note sql.NullString
		if err := rows.Scan(&rec.ID, &groupID, &rec.FromUserID, &rec.ToUserID,
			&rec.Amount, &note, &rec.RecordedAt, &rec.RecordedBy); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		rec.GroupID = groupID.String
		rec.Note = note.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return records, nil
}
