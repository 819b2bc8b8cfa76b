package models

// Role is a member's permission level within a group.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Group represents a set of users who share expenses against a common pool.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// Name is the display name of the group (e.g., "Roommates").
	Name string `json:"name"`

	// Currency is the group's display currency (ISO 4217).
	Currency string `json:"currency"`

	// InviteCode is a short shareable code for joining the group.
	InviteCode string `json:"invite_code"`

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64 `json:"created_at"`

	// Members holds the group's membership records, active and inactive.
	Members []Membership `json:"members"`
}

// Membership ties a user to a group and carries that user's signed balance
// against the group's virtual pool: positive means the pool owes the member,
// negative means the member owes the pool. The sum over all members is zero
// by construction.
type Membership struct {
	GroupID  string `json:"group_id"`
	UserID   string `json:"user_id"`
	Role     Role   `json:"role"`
	IsActive bool   `json:"is_active"`
	Balance  int64  `json:"balance"`
	JoinedAt int64  `json:"joined_at"`
}

// ActiveMemberIDs returns the user IDs of active members in ascending order
// as stored (storage returns members sorted by user ID).
func (g *Group) ActiveMemberIDs() []string {
	var ids []string
	for _, m := range g.Members {
		if m.IsActive {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

// MemberFor returns the membership record for userID, or nil.
func (g *Group) MemberFor(userID string) *Membership {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return &g.Members[i]
		}
	}
	return nil
}

// IsAdmin reports whether userID is an active admin of the group.
func (g *Group) IsAdmin(userID string) bool {
	m := g.MemberFor(userID)
	return m != nil && m.IsActive && m.Role == RoleAdmin
}
