package models

// BalanceSource distinguishes where a balance detail comes from.
type BalanceSource string

const (
	SourceFriend BalanceSource = "friend"
	SourceGroup  BalanceSource = "group"
)

// BalanceDetail is one line of a user's aggregated balance view: a signed
// amount against a single counterparty. Positive means the counterparty owes
// the snapshot's user.
type BalanceDetail struct {
	CounterpartyID string        `json:"counterparty_id"`
	Name           string        `json:"name"`
	Amount         int64         `json:"amount"`
	Source         BalanceSource `json:"source"`

	// GroupID/GroupName are set for group-sourced details that could not
	// be merged into a friend line (co-members who are not friends).
	GroupID   string `json:"group_id,omitempty"`
	GroupName string `json:"group_name,omitempty"`
}

// BalanceSnapshot is the cached, point-in-time materialization of a user's
// balances across both graphs. It is derived state: discarded on restart and
// rebuilt from stored links and memberships on first access.
type BalanceSnapshot struct {
	UserID string `json:"user_id"`

	// TotalOwed is the sum of positive detail amounts (owed to the user).
	TotalOwed int64 `json:"total_owed"`

	// TotalOwing is the sum of negative detail magnitudes (owed by the
	// user).
	TotalOwing int64 `json:"total_owing"`

	// NetBalance is TotalOwed - TotalOwing.
	NetBalance int64 `json:"net_balance"`

	Details []BalanceDetail `json:"details"`

	// ComputedAt is the Unix timestamp of the recomputation.
	ComputedAt int64 `json:"computed_at"`
}
