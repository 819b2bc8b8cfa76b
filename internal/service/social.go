package service

import (
	"context"
	"log/slog"

	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/models"
)

// Friend and group management. These mutate the relationship graphs the
// cache reads, so every change refreshes the touched users.

// AddFriend creates a pending link from userID to the user with the given
// email.
func (s *LedgerService) AddFriend(ctx context.Context, userID, friendEmail string) (*models.FriendLink, error) {
	friend, err := s.store.GetUserByEmail(ctx, friendEmail)
	if err != nil {
		return nil, err
	}
	if friend.ID == userID {
		return nil, errs.Validationf("cannot befriend yourself")
	}
	link := &models.FriendLink{UserA: userID, UserB: friend.ID}
	if err := s.store.CreateFriendLink(ctx, link); err != nil {
		slog.Error("AddFriend failed", "error", err)
		return nil, err
	}
	slog.Info("friend request created", "user_a", link.UserA, "user_b", link.UserB)
	return link, nil
}

// AcceptFriend marks the pending link between the two users as accepted.
// Accepting changes the aggregation rule (shared-group balances merge into
// the friend line), so both snapshots refresh.
func (s *LedgerService) AcceptFriend(ctx context.Context, userID, otherID string) error {
	if err := s.store.AcceptFriendLink(ctx, userID, otherID); err != nil {
		return err
	}
	s.invalidate(ctx, userID, otherID)
	return nil
}

// ListFriends returns every link touching userID.
func (s *LedgerService) ListFriends(ctx context.Context, userID string) ([]*models.FriendLink, error) {
	return s.store.ListFriendLinks(ctx, userID)
}

// CreateGroup creates a group with the creator as its admin.
func (s *LedgerService) CreateGroup(ctx context.Context, name, currency, creatorID string) (*models.Group, error) {
	if name == "" {
		return nil, errs.Validationf("group name required")
	}
	group := &models.Group{
		Name:     name,
		Currency: currency,
		Members: []models.Membership{
			{UserID: creatorID, Role: models.RoleAdmin},
		},
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		slog.Error("CreateGroup failed", "error", err)
		return nil, err
	}
	slog.Info("group created", "group_id", group.ID, "name", group.Name)
	return group, nil
}

// GetGroup retrieves a group; the caller must be a member.
func (s *LedgerService) GetGroup(ctx context.Context, groupID, userID string) (*models.Group, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.MemberFor(userID) == nil {
		return nil, errs.Policyf("user %s is not a member of group %s", userID, groupID)
	}
	return group, nil
}

// ListGroups returns the groups userID actively belongs to.
func (s *LedgerService) ListGroups(ctx context.Context, userID string) ([]*models.Group, error) {
	return s.store.ListGroupsForUser(ctx, userID)
}

// JoinGroup adds userID to the group behind inviteCode. Rejoining a group
// reactivates the old membership, keeping any balance still carried.
func (s *LedgerService) JoinGroup(ctx context.Context, inviteCode, userID string) (*models.Group, error) {
	group, err := s.store.GetGroupByInviteCode(ctx, inviteCode)
	if err != nil {
		return nil, err
	}
	m := &models.Membership{GroupID: group.ID, UserID: userID, Role: models.RoleMember}
	if err := s.store.UpsertMembership(ctx, m); err != nil {
		slog.Error("JoinGroup failed", "group_id", group.ID, "error", err)
		return nil, err
	}
	slog.Info("member joined", "group_id", group.ID, "user_id", userID)
	s.invalidate(ctx, userID)
	return s.store.GetGroup(ctx, group.ID)
}

// LeaveGroup deactivates userID's membership. A member with an outstanding
// pool balance must settle first; deactivating them would break the group's
// zero-sum invariant for everyone else.
func (s *LedgerService) LeaveGroup(ctx context.Context, groupID, userID string) error {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	m := group.MemberFor(userID)
	if m == nil || !m.IsActive {
		return errs.NotFound("membership", groupID+"/"+userID)
	}
	if m.Balance != 0 {
		return errs.Policyf("settle your balance of %d before leaving the group", m.Balance)
	}
	if err := s.store.SetMembershipActive(ctx, groupID, userID, false); err != nil {
		return err
	}
	slog.Info("member left", "group_id", groupID, "user_id", userID)
	s.invalidate(ctx, userID)
	return nil
}
