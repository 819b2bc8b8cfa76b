package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/models"
)

// CreateGroup persists a new group and its initial memberships.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	if group.Currency == "" {
		group.Currency = "USD"
	}
	if group.InviteCode == "" {
		group.InviteCode = newInviteCode()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO groups (id, name, currency, invite_code, created_at) VALUES (?, ?, ?, ?, ?)",
		group.ID, group.Name, group.Currency, group.InviteCode, group.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	for i := range group.Members {
		m := &group.Members[i]
		m.GroupID = group.ID
		if m.Role == "" {
			m.Role = models.RoleMember
		}
		if m.JoinedAt == 0 {
			m.JoinedAt = group.CreatedAt
		}
		m.IsActive = true
		_, err = tx.ExecContext(ctx,
			"INSERT INTO memberships (group_id, user_id, role, is_active, balance, joined_at) VALUES (?, ?, ?, 1, ?, ?)",
			m.GroupID, m.UserID, m.Role, m.Balance, m.JoinedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// newInviteCode returns a short shareable code. Uniqueness is enforced by
// the schema; collisions on 8 hex chars of a UUID are not a practical
// concern at this scale.
func newInviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

func getGroup(ctx context.Context, q queryer, id string) (*models.Group, error) {
	group := &models.Group{}
	err := q.QueryRowContext(ctx,
		"SELECT id, name, currency, invite_code, created_at FROM groups WHERE id = ?", id,
	).Scan(&group.ID, &group.Name, &group.Currency, &group.InviteCode, &group.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("group", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT group_id, user_id, role, is_active, balance, joined_at
		 FROM memberships WHERE group_id = ? ORDER BY user_id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get memberships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role, &m.IsActive, &m.Balance, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		group.Members = append(group.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}
	return group, nil
}

// GetGroup retrieves a group with all membership records.
func (s *SQLiteStore) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	return getGroup(ctx, s.db, id)
}

// GetGroup retrieves a group inside the transaction.
func (t *sqlTx) GetGroup(id string) (*models.Group, error) {
	return getGroup(t.ctx, t.tx, id)
}

// GetGroupByInviteCode resolves an invite code to its group.
func (s *SQLiteStore) GetGroupByInviteCode(ctx context.Context, code string) (*models.Group, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM groups WHERE invite_code = ?", strings.ToUpper(code),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("group", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve invite code: %w", err)
	}
	return getGroup(ctx, s.db, id)
}

// ListGroupsForUser retrieves every group where userID has an active
// membership.
func (s *SQLiteStore) ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id FROM memberships WHERE user_id = ? AND is_active = 1 ORDER BY group_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups for user: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group ids: %w", err)
	}

	groups := make([]*models.Group, 0, len(ids))
	for _, id := range ids {
		group, err := getGroup(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// UpsertMembership inserts or reactivates a membership. The stored balance
// is preserved on conflict: a member who left and rejoins keeps any debt
// they still carry.
func (s *SQLiteStore) UpsertMembership(ctx context.Context, m *models.Membership) error {
	if m.Role == "" {
		m.Role = models.RoleMember
	}
	if m.JoinedAt == 0 {
		m.JoinedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memberships (group_id, user_id, role, is_active, balance, joined_at)
		 VALUES (?, ?, ?, 1, ?, ?)
		 ON CONFLICT(group_id, user_id) DO UPDATE SET is_active = 1, role = excluded.role`,
		m.GroupID, m.UserID, m.Role, m.Balance, m.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}
	return nil
}

// SetMembershipActive toggles a membership's active flag.
func (s *SQLiteStore) SetMembershipActive(ctx context.Context, groupID, userID string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE memberships SET is_active = ? WHERE group_id = ? AND user_id = ?",
		active, groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set membership active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set membership active: %w", err)
	}
	if n == 0 {
		return errs.NotFound("membership", groupID+"/"+userID)
	}
	return nil
}

// AdjustMemberBalance moves a member's balance against the group pool.
func (t *sqlTx) AdjustMemberBalance(groupID, userID string, delta int64) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE memberships SET balance = balance + ? WHERE group_id = ? AND user_id = ?",
		delta, groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to adjust member balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to adjust member balance: %w", err)
	}
	if n == 0 {
		return errs.NotFound("membership", groupID+"/"+userID)
	}
	return nil
}
