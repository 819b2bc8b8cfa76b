package calculator

import (
	"sort"

	"github.com/tallyhq/tally/internal/errs"
)

// PaymentInstruction tells one member to pay another a concrete amount.
type PaymentInstruction struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

// MinCashFlow computes the minimum set of payments that zeroes out a group's
// balances. Balances are signed against the group pool (positive = owed
// money) and must sum to zero, which the ledger guarantees by construction.
//
// Greedy matching of the largest-magnitude creditor with the
// largest-magnitude debtor is optimal in transaction count for single-
// currency settlement. Ties on equal magnitude break on member ID so the
// output is deterministic.
func MinCashFlow(balances map[string]int64) ([]PaymentInstruction, error) {
	type entry struct {
		id     string
		amount int64 // always positive
	}

	var creditors, debtors []entry
	var sum int64
	for id, bal := range balances {
		sum += bal
		switch {
		case bal > 0:
			creditors = append(creditors, entry{id: id, amount: bal})
		case bal < 0:
			debtors = append(debtors, entry{id: id, amount: -bal})
		}
	}
	if sum != 0 {
		return nil, errs.Validationf("balances sum to %d, want 0", sum)
	}
	if len(debtors) == 0 {
		return nil, nil
	}

	byMagnitude := func(es []entry) func(i, j int) bool {
		return func(i, j int) bool {
			if es[i].amount != es[j].amount {
				return es[i].amount > es[j].amount
			}
			return es[i].id < es[j].id
		}
	}
	sort.Slice(creditors, byMagnitude(creditors))
	sort.Slice(debtors, byMagnitude(debtors))

	var instructions []PaymentInstruction
	for len(debtors) > 0 {
		c, d := &creditors[0], &debtors[0]

		amount := c.amount
		if d.amount < amount {
			amount = d.amount
		}
		instructions = append(instructions, PaymentInstruction{
			From:   d.id,
			To:     c.id,
			Amount: amount,
		})

		c.amount -= amount
		d.amount -= amount
		if c.amount == 0 {
			creditors = creditors[1:]
		}
		if d.amount == 0 {
			debtors = debtors[1:]
		}

		// Matching changed the magnitudes, so re-establish the order.
		sort.Slice(creditors, byMagnitude(creditors))
		sort.Slice(debtors, byMagnitude(debtors))
	}

	return instructions, nil
}
