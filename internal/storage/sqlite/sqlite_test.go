package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustCreateUser(t *testing.T, store *SQLiteStore, email, name string) *models.User {
	t.Helper()
	user := models.NewUser(email, name, "hash")
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", email, err)
	}
	return user
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("CreateUser and lookups", func(t *testing.T) {
		user := mustCreateUser(t, store, "alice@example.com", "Alice")

		byID, err := store.GetUserByID(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetUserByID failed: %v", err)
		}
		if byID.Email != "alice@example.com" || byID.DisplayName != "Alice" {
			t.Errorf("Got user %+v, want alice@example.com/Alice", byID)
		}

		byEmail, err := store.GetUserByEmail(ctx, "alice@example.com")
		if err != nil {
			t.Fatalf("GetUserByEmail failed: %v", err)
		}
		if byEmail.ID != user.ID {
			t.Errorf("GetUserByEmail returned ID %s, want %s", byEmail.ID, user.ID)
		}

		if _, err := store.GetUserByID(ctx, "nonexistent"); !errs.IsNotFound(err) {
			t.Errorf("Expected NotFoundError for missing user, got %v", err)
		}
	})

	t.Run("GetUsersByIDs omits missing users", func(t *testing.T) {
		bob := mustCreateUser(t, store, "bob@example.com", "Bob")

		users, err := store.GetUsersByIDs(ctx, []string{bob.ID, "nope"})
		if err != nil {
			t.Fatalf("GetUsersByIDs failed: %v", err)
		}
		if len(users) != 1 || users[bob.ID] == nil {
			t.Errorf("Expected only bob in result, got %v", users)
		}
	})

	t.Run("Friend links canonicalize the pair", func(t *testing.T) {
		link := &models.FriendLink{UserA: "zed", UserB: "amy"}
		if err := store.CreateFriendLink(ctx, link); err != nil {
			t.Fatalf("CreateFriendLink failed: %v", err)
		}
		if link.UserA != "amy" || link.UserB != "zed" {
			t.Errorf("Link not canonicalized: %s/%s", link.UserA, link.UserB)
		}
		if link.Status != models.FriendPending {
			t.Errorf("New link status = %s, want pending", link.Status)
		}

		// Lookup in either argument order finds the same row.
		got, err := store.GetFriendLink(ctx, "zed", "amy")
		if err != nil {
			t.Fatalf("GetFriendLink failed: %v", err)
		}
		if got.UserA != "amy" || got.UserB != "zed" {
			t.Errorf("GetFriendLink returned %s/%s", got.UserA, got.UserB)
		}

		if err := store.AcceptFriendLink(ctx, "zed", "amy"); err != nil {
			t.Fatalf("AcceptFriendLink failed: %v", err)
		}
		got, _ = store.GetFriendLink(ctx, "amy", "zed")
		if got.Status != models.FriendAccepted {
			t.Errorf("Status after accept = %s, want accepted", got.Status)
		}

		if err := store.AcceptFriendLink(ctx, "no", "pair"); !errs.IsNotFound(err) {
			t.Errorf("Expected NotFoundError accepting missing link, got %v", err)
		}
	})

	t.Run("AdjustFriendBalance is symmetric", func(t *testing.T) {
		// carol pays 500 for dave: dave owes carol 500.
		err := store.RunInTx(ctx, func(tx storage.Tx) error {
			return tx.AdjustFriendBalance("carol", "dave", 500)
		})
		if err != nil {
			t.Fatalf("AdjustFriendBalance failed: %v", err)
		}

		link, err := store.GetFriendLink(ctx, "carol", "dave")
		if err != nil {
			t.Fatalf("GetFriendLink failed: %v", err)
		}
		if got := link.BalanceFor("carol"); got != 500 {
			t.Errorf("BalanceFor(carol) = %d, want 500", got)
		}
		if got := link.BalanceFor("dave"); got != -500 {
			t.Errorf("BalanceFor(dave) = %d, want -500", got)
		}

		// The inverse adjustment zeroes the single stored row.
		err = store.RunInTx(ctx, func(tx storage.Tx) error {
			return tx.AdjustFriendBalance("dave", "carol", 500)
		})
		if err != nil {
			t.Fatalf("AdjustFriendBalance failed: %v", err)
		}
		link, _ = store.GetFriendLink(ctx, "carol", "dave")
		if link.Balance != 0 {
			t.Errorf("Balance after inverse adjust = %d, want 0", link.Balance)
		}
	})

	t.Run("Groups and memberships", func(t *testing.T) {
		group := &models.Group{
			Name: "Roommates",
			Members: []models.Membership{
				{UserID: "alice", Role: models.RoleAdmin},
				{UserID: "bob"},
			},
		}
		if err := store.CreateGroup(ctx, group); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		if group.ID == "" || group.InviteCode == "" {
			t.Fatalf("Expected generated ID and invite code, got %q/%q", group.ID, group.InviteCode)
		}

		got, err := store.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if len(got.Members) != 2 {
			t.Fatalf("Got %d members, want 2", len(got.Members))
		}
		if !got.IsAdmin("alice") {
			t.Error("Expected alice to be admin")
		}
		if got.IsAdmin("bob") {
			t.Error("Expected bob not to be admin")
		}

		byCode, err := store.GetGroupByInviteCode(ctx, group.InviteCode)
		if err != nil {
			t.Fatalf("GetGroupByInviteCode failed: %v", err)
		}
		if byCode.ID != group.ID {
			t.Errorf("Invite code resolved to %s, want %s", byCode.ID, group.ID)
		}

		groups, err := store.ListGroupsForUser(ctx, "bob")
		if err != nil {
			t.Fatalf("ListGroupsForUser failed: %v", err)
		}
		if len(groups) != 1 || groups[0].ID != group.ID {
			t.Errorf("ListGroupsForUser = %v, want one group %s", groups, group.ID)
		}
	})

	t.Run("Rejoining keeps the carried balance", func(t *testing.T) {
		group := &models.Group{
			Name:    "Trip",
			Members: []models.Membership{{UserID: "erin", Role: models.RoleAdmin}, {UserID: "frank"}},
		}
		if err := store.CreateGroup(ctx, group); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		err := store.RunInTx(ctx, func(tx storage.Tx) error {
			return tx.AdjustMemberBalance(group.ID, "frank", -300)
		})
		if err != nil {
			t.Fatalf("AdjustMemberBalance failed: %v", err)
		}

		if err := store.SetMembershipActive(ctx, group.ID, "frank", false); err != nil {
			t.Fatalf("SetMembershipActive failed: %v", err)
		}
		got, _ := store.GetGroup(ctx, group.ID)
		if ids := got.ActiveMemberIDs(); len(ids) != 1 || ids[0] != "erin" {
			t.Errorf("Active members = %v, want [erin]", ids)
		}

		err = store.UpsertMembership(ctx, &models.Membership{GroupID: group.ID, UserID: "frank", Role: models.RoleMember})
		if err != nil {
			t.Fatalf("UpsertMembership failed: %v", err)
		}
		got, _ = store.GetGroup(ctx, group.ID)
		m := got.MemberFor("frank")
		if m == nil || !m.IsActive {
			t.Fatal("Expected frank reactivated")
		}
		if m.Balance != -300 {
			t.Errorf("Balance after rejoin = %d, want -300", m.Balance)
		}
	})

	t.Run("AdjustMemberBalance on missing membership", func(t *testing.T) {
		err := store.RunInTx(ctx, func(tx storage.Tx) error {
			return tx.AdjustMemberBalance("no-group", "nobody", 100)
		})
		if !errs.IsNotFound(err) {
			t.Errorf("Expected NotFoundError, got %v", err)
		}
	})

	t.Run("Expense round-trip preserves split order", func(t *testing.T) {
		expense := &models.Expense{
			Description: "Dinner",
			Amount:      10000,
			Currency:    "USD",
			PayerID:     "alice",
			SplitType:   models.SplitEqual,
			Splits: []models.SplitLine{
				{UserID: "zed", ShareAmount: 3334},
				{UserID: "alice", ShareAmount: 3333},
				{UserID: "bob", ShareAmount: 3333},
			},
		}
		err := store.RunInTx(ctx, func(tx storage.Tx) error {
			return tx.InsertExpense(expense)
		})
		if err != nil {
			t.Fatalf("InsertExpense failed: %v", err)
		}

		got, err := store.GetExpense(ctx, expense.ID)
		if err != nil {
			t.Fatalf("GetExpense failed: %v", err)
		}
		if got.Amount != 10000 || got.GroupID != "" {
			t.Errorf("Got expense %+v", got)
		}
		want := []string{"zed", "alice", "bob"}
		for i, line := range got.Splits {
			if line.UserID != want[i] {
				t.Errorf("Split %d user = %s, want %s", i, line.UserID, want[i])
			}
		}
	})

	t.Run("Applied marker conflicts on double apply", func(t *testing.T) {
		err := store.RunInTx(ctx, func(tx storage.Tx) error {
			return tx.MarkExpenseApplied("exp-1")
		})
		if err != nil {
			t.Fatalf("First MarkExpenseApplied failed: %v", err)
		}

		err = store.RunInTx(ctx, func(tx storage.Tx) error {
			return tx.MarkExpenseApplied("exp-1")
		})
		if !errs.IsConflict(err) {
			t.Errorf("Expected ConflictError on double apply, got %v", err)
		}

		err = store.RunInTx(ctx, func(tx storage.Tx) error {
			return tx.ClearExpenseApplied("exp-1")
		})
		if err != nil {
			t.Fatalf("ClearExpenseApplied failed: %v", err)
		}
		err = store.RunInTx(ctx, func(tx storage.Tx) error {
			return tx.ClearExpenseApplied("exp-1")
		})
		if !errs.IsConflict(err) {
			t.Errorf("Expected ConflictError clearing unapplied expense, got %v", err)
		}
	})

	t.Run("Transaction rolls back on error", func(t *testing.T) {
		expense := &models.Expense{
			Description: "Rolled back",
			Amount:      100,
			Currency:    "USD",
			PayerID:     "alice",
			SplitType:   models.SplitEqual,
			Splits:      []models.SplitLine{{UserID: "bob", ShareAmount: 100}},
		}
		err := store.RunInTx(ctx, func(tx storage.Tx) error {
			if err := tx.InsertExpense(expense); err != nil {
				return err
			}
			return errs.Conflictf("forced failure")
		})
		if !errs.IsConflict(err) {
			t.Fatalf("Expected forced error to propagate, got %v", err)
		}
		if _, err := store.GetExpense(ctx, expense.ID); !errs.IsNotFound(err) {
			t.Errorf("Expected rolled-back expense to be absent, got %v", err)
		}
	})

	t.Run("Templates", func(t *testing.T) {
		tpl := &models.RecurringTemplate{
			GroupID:   "g1",
			PayerID:   "alice",
			Amount:    5000,
			Frequency: models.FrequencyMonthly,
			StartDate: 1000,
		}
		if err := store.CreateTemplate(ctx, tpl); err != nil {
			t.Fatalf("CreateTemplate failed: %v", err)
		}
		if !tpl.IsActive {
			t.Error("New template should be active")
		}
		if tpl.NextDueDate != tpl.StartDate {
			t.Errorf("NextDueDate = %d, want StartDate %d", tpl.NextDueDate, tpl.StartDate)
		}

		due, err := store.ListDueTemplates(ctx, 1000)
		if err != nil {
			t.Fatalf("ListDueTemplates failed: %v", err)
		}
		if len(due) != 1 || due[0].ID != tpl.ID {
			t.Fatalf("ListDueTemplates = %v, want [%s]", due, tpl.ID)
		}

		if due, _ := store.ListDueTemplates(ctx, 999); len(due) != 0 {
			t.Errorf("Expected no templates due before the start date, got %d", len(due))
		}

		err = store.RunInTx(ctx, func(tx storage.Tx) error {
			got, err := tx.GetTemplate(tpl.ID)
			if err != nil {
				return err
			}
			got.IsActive = false
			return tx.UpdateTemplate(got)
		})
		if err != nil {
			t.Fatalf("UpdateTemplate failed: %v", err)
		}
		if due, _ := store.ListDueTemplates(ctx, 1000); len(due) != 0 {
			t.Error("Inactive template should not be listed as due")
		}
	})

	t.Run("Settlements", func(t *testing.T) {
		rec := &models.SettlementRecord{
			FromUserID: "bob",
			ToUserID:   "alice",
			Amount:     1200,
			Note:       "venmo",
			RecordedAt: 12345,
			RecordedBy: "bob",
		}
		err := store.RunInTx(ctx, func(tx storage.Tx) error {
			return tx.InsertSettlement(rec)
		})
		if err != nil {
			t.Fatalf("InsertSettlement failed: %v", err)
		}
		if rec.ID == "" {
			t.Error("Expected generated settlement ID")
		}

		for _, user := range []string{"alice", "bob"} {
			recs, err := store.ListSettlementsForUser(ctx, user)
			if err != nil {
				t.Fatalf("ListSettlementsForUser(%s) failed: %v", user, err)
			}
			if len(recs) != 1 || recs[0].Amount != 1200 {
				t.Errorf("ListSettlementsForUser(%s) = %v", user, recs)
			}
		}
	})
}
