package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/models"
)

// CreateFriendLink inserts a new pending link between two users. The pair is
// stored in canonical order regardless of argument order.
func (s *SQLiteStore) CreateFriendLink(ctx context.Context, link *models.FriendLink) error {
	link.UserA, link.UserB = models.CanonicalPair(link.UserA, link.UserB)
	if link.UserA == link.UserB {
		return errs.Validationf("cannot befriend yourself")
	}
	if link.Status == "" {
		link.Status = models.FriendPending
	}
	if link.CreatedAt == 0 {
		link.CreatedAt = time.Now().Unix()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO friend_links (user_a, user_b, status, balance, created_at) VALUES (?, ?, ?, ?, ?)",
		link.UserA, link.UserB, link.Status, link.Balance, link.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create friend link: %w", err)
	}
	return nil
}

// AcceptFriendLink marks a pending link as accepted.
func (s *SQLiteStore) AcceptFriendLink(ctx context.Context, userA, userB string) error {
	a, b := models.CanonicalPair(userA, userB)
	res, err := s.db.ExecContext(ctx,
		"UPDATE friend_links SET status = ? WHERE user_a = ? AND user_b = ?",
		models.FriendAccepted, a, b,
	)
	if err != nil {
		return fmt.Errorf("failed to accept friend link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to accept friend link: %w", err)
	}
	if n == 0 {
		return errs.NotFound("friend link", a+"/"+b)
	}
	return nil
}

// GetFriendLink retrieves the link between two users.
func (s *SQLiteStore) GetFriendLink(ctx context.Context, userA, userB string) (*models.FriendLink, error) {
	a, b := models.CanonicalPair(userA, userB)
	link := &models.FriendLink{}
	err := s.db.QueryRowContext(ctx,
		"SELECT user_a, user_b, status, balance, created_at FROM friend_links WHERE user_a = ? AND user_b = ?",
		a, b,
	).Scan(&link.UserA, &link.UserB, &link.Status, &link.Balance, &link.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("friend link", a+"/"+b)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get friend link: %w", err)
	}
	return link, nil
}

// ListFriendLinks retrieves every link touching userID, on either side.
func (s *SQLiteStore) ListFriendLinks(ctx context.Context, userID string) ([]*models.FriendLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_a, user_b, status, balance, created_at
		 FROM friend_links
		 WHERE user_a = ? OR user_b = ?
		 ORDER BY user_a, user_b`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend links: %w", err)
	}
	defer rows.Close()

	var links []*models.FriendLink
	for rows.Next() {
		link := &models.FriendLink{}
		if err := rows.Scan(&link.UserA, &link.UserB, &link.Status, &link.Balance, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan friend link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate friend links: %w", err)
	}
	return links, nil
}

// AdjustFriendBalance moves the pairwise balance so debtor owes creditor
// delta more. A first expense between two users creates their link as
// accepted, matching how the service auto-links expense participants.
func (t *sqlTx) AdjustFriendBalance(creditor, debtor string, delta int64) error {
	if creditor == debtor {
		return errs.Validationf("creditor and debtor are the same user")
	}
	a, b := models.CanonicalPair(creditor, debtor)

	// Stored balance is from user_a's perspective.
	signed := delta
	if creditor != a {
		signed = -delta
	}

	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO friend_links (user_a, user_b, status, balance, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_a, user_b) DO UPDATE SET balance = balance + excluded.balance`,
		a, b, models.FriendAccepted, signed, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to adjust friend balance: %w", err)
	}
	return nil
}
