package calculator

import (
	"reflect"
	"testing"

	"github.com/tallyhq/tally/internal/errs"
)

func applyInstructions(balances map[string]int64, instructions []PaymentInstruction) map[string]int64 {
	out := make(map[string]int64, len(balances))
	for id, bal := range balances {
		out[id] = bal
	}
	for _, ins := range instructions {
		out[ins.From] += ins.Amount
		out[ins.To] -= ins.Amount
	}
	return out
}

func TestMinCashFlow(t *testing.T) {
	tests := []struct {
		name      string
		balances  map[string]int64
		wantCount int
		want      []PaymentInstruction // nil to skip exact-output check
	}{
		{
			name:      "one creditor two debtors",
			balances:  map[string]int64{"A": 50, "B": -20, "C": -30},
			wantCount: 2,
			want: []PaymentInstruction{
				{From: "C", To: "A", Amount: 30},
				{From: "B", To: "A", Amount: 20},
			},
		},
		{
			name:      "pairwise match",
			balances:  map[string]int64{"A": 100, "B": -100},
			wantCount: 1,
			want:      []PaymentInstruction{{From: "B", To: "A", Amount: 100}},
		},
		{
			name:      "all zero",
			balances:  map[string]int64{"A": 0, "B": 0},
			wantCount: 0,
		},
		{
			name:      "single member",
			balances:  map[string]int64{"A": 0},
			wantCount: 0,
		},
		{
			name:      "empty group",
			balances:  map[string]int64{},
			wantCount: 0,
		},
		{
			name:      "two creditors two debtors",
			balances:  map[string]int64{"A": 70, "B": 30, "C": -60, "D": -40},
			wantCount: 3,
		},
		{
			name:      "equal magnitudes tie-break on id",
			balances:  map[string]int64{"A": 50, "B": 50, "C": -50, "D": -50},
			wantCount: 2,
			want: []PaymentInstruction{
				{From: "C", To: "A", Amount: 50},
				{From: "D", To: "B", Amount: 50},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instructions, err := MinCashFlow(tt.balances)
			if err != nil {
				t.Fatalf("MinCashFlow failed: %v", err)
			}
			if len(instructions) != tt.wantCount {
				t.Errorf("instruction count = %d, want %d (%+v)", len(instructions), tt.wantCount, instructions)
			}
			if tt.want != nil && !reflect.DeepEqual(instructions, tt.want) {
				t.Errorf("instructions = %+v, want %+v", instructions, tt.want)
			}

			// Zero-sum property: applying the instructions must clear
			// every balance.
			after := applyInstructions(tt.balances, instructions)
			for id, bal := range after {
				if bal != 0 {
					t.Errorf("after settlement %s = %d, want 0", id, bal)
				}
			}
		})
	}
}

func TestMinCashFlowRejectsNonZeroSum(t *testing.T) {
	_, err := MinCashFlow(map[string]int64{"A": 10, "B": -5})
	if !errs.IsValidation(err) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

func TestMinCashFlowDeterministic(t *testing.T) {
	balances := map[string]int64{"A": 33, "B": 33, "C": -22, "D": -22, "E": -22}
	first, err := MinCashFlow(balances)
	if err != nil {
		t.Fatalf("MinCashFlow failed: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := MinCashFlow(balances)
		if err != nil {
			t.Fatalf("MinCashFlow failed: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}
