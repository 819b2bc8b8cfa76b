// Package calculator holds the pure arithmetic of the ledger: dividing an
// expense among participants and computing minimum-transaction settlements.
// Nothing in this package touches storage or has side effects.
package calculator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/models"
)

// percentEpsilon is how far the sum of requested percentages may drift from
// 100 before the split is rejected. Covers inputs like 33.33/33.33/33.34.
var percentEpsilon = decimal.NewFromFloat(0.01)

var oneHundred = decimal.NewFromInt(100)

// Portion is one participant's requested slice of an expense. Percentage is
// read for percentage splits, Amount for exact splits; equal splits only use
// UserID.
type Portion struct {
	UserID     string  `json:"user_id"`
	Percentage float64 `json:"percentage,omitempty"`
	Amount     int64   `json:"amount,omitempty"`
}

// Compute divides amount (minor units) among the given portions according to
// splitType. The returned lines always sum to amount exactly; any rounding
// remainder is distributed deterministically so the same input yields the
// same split on every run.
func Compute(amount int64, splitType models.SplitType, portions []Portion) ([]models.SplitLine, error) {
	if amount <= 0 {
		return nil, errs.Validationf("amount must be positive, got %d", amount)
	}
	if len(portions) == 0 {
		return nil, errs.Validationf("at least one participant required")
	}
	seen := make(map[string]bool, len(portions))
	for _, p := range portions {
		if p.UserID == "" {
			return nil, errs.Validationf("participant with empty user id")
		}
		if seen[p.UserID] {
			return nil, errs.Validationf("duplicate participant %s", p.UserID)
		}
		seen[p.UserID] = true
	}

	switch splitType {
	case models.SplitEqual:
		return equalSplit(amount, portions), nil
	case models.SplitPercentage:
		return percentageSplit(amount, portions)
	case models.SplitExact:
		return exactSplit(amount, portions)
	default:
		return nil, errs.Validationf("unknown split type %q", splitType)
	}
}

// equalSplit assigns floor(amount/n) to everyone and one extra minor unit to
// the first r participants in ascending user-ID order, where r is the
// remainder. The stable order makes the assignment reproducible for
// edit/diff purposes.
func equalSplit(amount int64, portions []Portion) []models.SplitLine {
	ids := make([]string, len(portions))
	for i, p := range portions {
		ids[i] = p.UserID
	}
	sort.Strings(ids)

	n := int64(len(ids))
	base := amount / n
	remainder := amount - base*n

	lines := make([]models.SplitLine, len(ids))
	for i, id := range ids {
		share := base
		if int64(i) < remainder {
			share++
		}
		lines[i] = models.SplitLine{UserID: id, ShareAmount: share}
	}
	return lines
}

// percentageSplit computes each share as amount*pct/100 in exact decimal
// arithmetic, floors to minor units, then hands out the leftover units to the
// largest fractional remainders (ties: higher percentage, then user ID).
// When the percentages sum to just over 100 the floors can overshoot the
// amount instead; the excess is reclaimed from the smallest remainders so
// the lines always sum to the amount exactly.
func percentageSplit(amount int64, portions []Portion) ([]models.SplitLine, error) {
	total := decimal.Zero
	for _, p := range portions {
		if p.Percentage < 0 {
			return nil, errs.Validationf("negative percentage for %s", p.UserID)
		}
		total = total.Add(decimal.NewFromFloat(p.Percentage))
	}
	if total.Sub(oneHundred).Abs().GreaterThan(percentEpsilon) {
		return nil, errs.Validationf("percentages sum to %s, want 100", total.String())
	}

	amt := decimal.NewFromInt(amount)
	type rawShare struct {
		idx   int
		floor int64
		frac  decimal.Decimal
	}
	raws := make([]rawShare, len(portions))
	var assigned int64
	for i, p := range portions {
		raw := amt.Mul(decimal.NewFromFloat(p.Percentage)).Div(oneHundred)
		floor := raw.Floor()
		f, _ := floor.Float64()
		raws[i] = rawShare{idx: i, floor: int64(f), frac: raw.Sub(floor)}
		assigned += int64(f)
	}

	remainder := amount - assigned
	order := make([]rawShare, len(raws))
	copy(order, raws)
	sort.SliceStable(order, func(a, b int) bool {
		if !order[a].frac.Equal(order[b].frac) {
			return order[a].frac.GreaterThan(order[b].frac)
		}
		pa, pb := portions[order[a].idx], portions[order[b].idx]
		if pa.Percentage != pb.Percentage {
			return pa.Percentage > pb.Percentage
		}
		return pa.UserID < pb.UserID
	})

	extra := make(map[int]int64, len(order))
	n := int64(len(order))
	switch {
	case remainder > 0:
		for i := int64(0); i < remainder; i++ {
			extra[order[i%n].idx]++
		}
	case remainder < 0:
		// A sum just over 100 inside the epsilon can floor to more than
		// the amount. Take the excess back from the smallest fractional
		// remainders first, skipping shares already at zero.
		for i, deficit := int64(0), -remainder; deficit > 0; i++ {
			idx := order[n-1-i%n].idx
			if raws[idx].floor+extra[idx] == 0 {
				continue
			}
			extra[idx]--
			deficit--
		}
	}

	lines := make([]models.SplitLine, len(portions))
	for i, p := range portions {
		lines[i] = models.SplitLine{
			UserID:          p.UserID,
			ShareAmount:     raws[i].floor + extra[i],
			SharePercentage: p.Percentage,
		}
	}
	return lines, nil
}

// exactSplit takes caller-supplied amounts and only checks the sum invariant.
func exactSplit(amount int64, portions []Portion) ([]models.SplitLine, error) {
	var total int64
	for _, p := range portions {
		if p.Amount < 0 {
			return nil, errs.Validationf("negative share for %s", p.UserID)
		}
		total += p.Amount
	}
	if total != amount {
		return nil, errs.Validationf("exact shares sum to %d, want %d", total, amount)
	}

	lines := make([]models.SplitLine, len(portions))
	for i, p := range portions {
		lines[i] = models.SplitLine{UserID: p.UserID, ShareAmount: p.Amount}
	}
	return lines, nil
}
