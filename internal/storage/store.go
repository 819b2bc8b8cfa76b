// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/tallyhq/tally/internal/models"
)

// Store defines the interface for ledger persistence. This abstraction
// allows swapping storage backends (SQLite, PostgreSQL, etc.) without
// changing the service layer.
//
// Reads outside a transaction see committed state. All balance mutations go
// through RunInTx so that an expense's deltas, its applied marker, and the
// expense record itself commit or roll back together.
type Store interface {
	// Users.
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)

	// Friend links. Pairs are canonicalized by the store; callers may pass
	// the two user IDs in either order.
	CreateFriendLink(ctx context.Context, link *models.FriendLink) error
	AcceptFriendLink(ctx context.Context, userA, userB string) error
	GetFriendLink(ctx context.Context, userA, userB string) (*models.FriendLink, error)
	ListFriendLinks(ctx context.Context, userID string) ([]*models.FriendLink, error)

	// Groups and memberships.
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	GetGroupByInviteCode(ctx context.Context, code string) (*models.Group, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error)
	UpsertMembership(ctx context.Context, m *models.Membership) error
	SetMembershipActive(ctx context.Context, groupID, userID string, active bool) error

	// Expenses and recurring templates (reads; writes are Tx-only).
	GetExpense(ctx context.Context, id string) (*models.Expense, error)
	ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error)
	CreateTemplate(ctx context.Context, tpl *models.RecurringTemplate) error
	GetTemplate(ctx context.Context, id string) (*models.RecurringTemplate, error)
	ListDueTemplates(ctx context.Context, now int64) ([]*models.RecurringTemplate, error)

	// Settlement audit trail.
	ListSettlementsForUser(ctx context.Context, userID string) ([]*models.SettlementRecord, error)

	// RunInTx executes fn inside a single transaction. Any error from fn
	// rolls everything back.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the transactional surface the ledger mutates balances through.
// Every method runs inside the transaction RunInTx opened.
type Tx interface {
	GetExpense(id string) (*models.Expense, error)
	InsertExpense(expense *models.Expense) error
	UpdateExpense(expense *models.Expense) error
	MarkExpenseDeleted(id string, at int64) error
	MarkSplitPaid(expenseID, userID string, paidAt int64) error

	// MarkExpenseApplied records that an expense's deltas are in the
	// balance graphs. Returns a ConflictError if the marker already
	// exists; this is the double-apply guard.
	MarkExpenseApplied(expenseID string) error
	ClearExpenseApplied(expenseID string) error

	// AdjustFriendBalance moves the pairwise balance so that debtor owes
	// creditor delta more (delta may be negative). Creates an accepted
	// link if the pair has none yet.
	AdjustFriendBalance(creditor, debtor string, delta int64) error

	// AdjustMemberBalance moves a member's balance against the group pool.
	AdjustMemberBalance(groupID, userID string, delta int64) error

	GetGroup(id string) (*models.Group, error)
	InsertSettlement(rec *models.SettlementRecord) error

	GetTemplate(id string) (*models.RecurringTemplate, error)
	UpdateTemplate(tpl *models.RecurringTemplate) error

	// OccurrenceExists reports whether an expense for the given template
	// occurrence was already materialized.
	OccurrenceExists(templateID string, index int64) (bool, error)
}
