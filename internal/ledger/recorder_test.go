package ledger

import (
	"context"
	"testing"

	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/models"
)

func TestRecordFriendPayment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	lgr := New(store, 0)
	rec := NewRecorder(store)

	// bob owes alice 1000.
	e := &models.Expense{
		Description: "Lunch",
		Amount:      2000,
		Currency:    "USD",
		PayerID:     "alice",
		SplitType:   models.SplitEqual,
		Splits: []models.SplitLine{
			{UserID: "alice", ShareAmount: 1000},
			{UserID: "bob", ShareAmount: 1000},
		},
	}
	if err := lgr.Apply(ctx, e); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	record, err := rec.RecordPayment(ctx, "bob", "alice", 600, PaymentOptions{Note: "partial"})
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if record.ID == "" || record.RecordedBy != "bob" {
		t.Errorf("Got record %+v", record)
	}

	link, err := store.GetFriendLink(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("GetFriendLink failed: %v", err)
	}
	if got := link.BalanceFor("bob"); got != -400 {
		t.Errorf("BalanceFor(bob) = %d, want -400", got)
	}

	records, err := store.ListSettlementsForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListSettlementsForUser failed: %v", err)
	}
	if len(records) != 1 || records[0].Amount != 600 {
		t.Errorf("Settlement trail = %v", records)
	}
}

func TestOverpaymentFlipsSign(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	lgr := New(store, 0)
	rec := NewRecorder(store)

	e := &models.Expense{
		Description: "Coffee",
		Amount:      1000,
		Currency:    "USD",
		PayerID:     "alice",
		SplitType:   models.SplitEqual,
		Splits: []models.SplitLine{
			{UserID: "alice", ShareAmount: 500},
			{UserID: "bob", ShareAmount: 500},
		},
	}
	if err := lgr.Apply(ctx, e); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// bob owed 500 but pays 800: alice now owes bob 300.
	if _, err := rec.RecordPayment(ctx, "bob", "alice", 800, PaymentOptions{}); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	link, _ := store.GetFriendLink(ctx, "alice", "bob")
	if got := link.BalanceFor("bob"); got != 300 {
		t.Errorf("BalanceFor(bob) = %d, want 300", got)
	}
	if got := link.BalanceFor("alice"); got != -300 {
		t.Errorf("BalanceFor(alice) = %d, want -300", got)
	}
}

func TestRecordGroupPayment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	group := newTestGroup(t, store, "alice", "bob")
	lgr := New(store, 0)
	rec := NewRecorder(store)

	e := groupExpense(group.ID, 1000, "alice", map[string]int64{"alice": 500, "bob": 500})
	if err := lgr.Apply(ctx, e); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if _, err := rec.RecordPayment(ctx, "bob", "alice", 500, PaymentOptions{GroupID: group.ID}); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	for user, balance := range memberBalances(t, store, group.ID) {
		if balance != 0 {
			t.Errorf("Balance[%s] = %d after settle-up, want 0", user, balance)
		}
	}
}

func TestPaymentMarksSplitPaid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	group := newTestGroup(t, store, "alice", "bob")
	lgr := New(store, 0)
	rec := NewRecorder(store)

	e := groupExpense(group.ID, 1000, "alice", map[string]int64{"alice": 500, "bob": 500})
	if err := lgr.Apply(ctx, e); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	_, err := rec.RecordPayment(ctx, "bob", "alice", 500, PaymentOptions{
		GroupID:   group.ID,
		ExpenseID: e.ID,
	})
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	stored, err := store.GetExpense(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExpense failed: %v", err)
	}
	line := stored.SplitFor("bob")
	if line == nil || !line.IsPaid || line.PaidDate == 0 {
		t.Errorf("Expected bob's split marked paid, got %+v", line)
	}
	// The share amount itself is untouched.
	if line != nil && line.ShareAmount != 500 {
		t.Errorf("ShareAmount changed to %d", line.ShareAmount)
	}
	if stored.SplitTotal() != stored.Amount {
		t.Errorf("Sum invariant broken: splits %d, amount %d", stored.SplitTotal(), stored.Amount)
	}
}

func TestPaymentValidation(t *testing.T) {
	store := newTestStore(t)
	rec := NewRecorder(store)
	ctx := context.Background()

	tests := []struct {
		name   string
		from   string
		to     string
		amount int64
	}{
		{"zero amount", "a", "b", 0},
		{"negative amount", "a", "b", -100},
		{"missing from", "", "b", 100},
		{"missing to", "a", "", 100},
		{"self payment", "a", "a", 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := rec.RecordPayment(ctx, tt.from, tt.to, tt.amount, PaymentOptions{}); !errs.IsValidation(err) {
				t.Errorf("RecordPayment() error = %v, want ValidationError", err)
			}
		})
	}
}
