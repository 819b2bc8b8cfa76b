package models

// SplitType determines how an expense's amount is divided.
type SplitType string

const (
	SplitEqual      SplitType = "equal"
	SplitPercentage SplitType = "percentage"
	SplitExact      SplitType = "exact"
)

// Expense represents a shared cost paid by one user and split among
// participants.
//
// Invariant: for every non-deleted expense, the sum of Splits[].ShareAmount
// equals Amount exactly. The ledger refuses to apply an expense that
// violates this.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string `json:"id"`

	// GroupID is the owning group. Empty means a direct friend expense:
	// balances move on the payer's friend links instead of group
	// memberships.
	GroupID string `json:"group_id,omitempty"`

	// Description is the human-readable label ("Dinner", "March rent").
	Description string `json:"description"`

	// Amount is the total in minor units (cents).
	Amount int64 `json:"amount"`

	// Currency is the ISO 4217 code the amount is denominated in.
	Currency string `json:"currency"`

	// PayerID is the user who fronted the money.
	PayerID string `json:"payer_id"`

	// SplitType records how Splits was derived.
	SplitType SplitType `json:"split_type"`

	// Splits is the ordered per-participant share list.
	Splits []SplitLine `json:"splits"`

	// TemplateID and OccurrenceIndex are set when the expense was
	// materialized from a recurring template. The pair is unique, which is
	// what makes scheduler retries idempotent.
	TemplateID      string `json:"template_id,omitempty"`
	OccurrenceIndex int64  `json:"occurrence_index,omitempty"`

	// CreatedAt / UpdatedAt are Unix timestamps.
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`

	// Deleted marks a soft-deleted expense. Deltas have been reversed but
	// the record is retained for audit.
	Deleted bool `json:"deleted,omitempty"`
}

// SplitLine is one participant's share of an expense.
type SplitLine struct {
	UserID string `json:"user_id"`

	// ShareAmount is this participant's share in minor units.
	ShareAmount int64 `json:"share_amount"`

	// SharePercentage is the requested percentage for percentage splits;
	// zero otherwise. Informational only; ShareAmount is authoritative.
	SharePercentage float64 `json:"share_percentage,omitempty"`

	// IsPaid marks this line as settled against a recorded payment.
	// Paid status is orthogonal to ShareAmount; marking a line paid never
	// changes the sum invariant.
	IsPaid   bool  `json:"is_paid,omitempty"`
	PaidDate int64 `json:"paid_date,omitempty"`
}

// SplitTotal returns the sum of share amounts.
func (e *Expense) SplitTotal() int64 {
	var total int64
	for _, s := range e.Splits {
		total += s.ShareAmount
	}
	return total
}

// SplitFor returns the split line for userID, or nil.
func (e *Expense) SplitFor(userID string) *SplitLine {
	for i := range e.Splits {
		if e.Splits[i].UserID == userID {
			return &e.Splits[i]
		}
	}
	return nil
}

// HasPaidSplit reports whether any split line is marked paid.
func (e *Expense) HasPaidSplit() bool {
	for _, s := range e.Splits {
		if s.IsPaid {
			return true
		}
	}
	return false
}
