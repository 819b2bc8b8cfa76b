package models

// FriendStatus is the lifecycle state of a friend link.
type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
)

// FriendLink is the stored relationship between two users who split expenses
// directly (outside any group).
//
// The pair is stored in canonical order (UserA < UserB by string comparison)
// and Balance is always from UserA's perspective: positive means UserB owes
// UserA. The symmetric read balance(B,A) == -balance(A,B) is derived, never
// stored twice.
type FriendLink struct {
	UserA     string       `json:"user_a"`
	UserB     string       `json:"user_b"`
	Status    FriendStatus `json:"status"`
	Balance   int64        `json:"balance"`
	CreatedAt int64        `json:"created_at"`
}

// CanonicalPair returns the two user IDs in stored order.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// BalanceFor returns the link balance from userID's perspective:
// positive means the other user owes userID.
func (f *FriendLink) BalanceFor(userID string) int64 {
	if userID == f.UserA {
		return f.Balance
	}
	return -f.Balance
}

// Other returns the counterparty of userID on this link.
func (f *FriendLink) Other(userID string) string {
	if userID == f.UserA {
		return f.UserB
	}
	return f.UserA
}
