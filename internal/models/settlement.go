package models

// SettlementRecord is the audit entry for a recorded payment between two
// users. Records are append-only: a settlement adjusts balances but never
// rewrites past expenses.
type SettlementRecord struct {
	// ID is the unique identifier for the settlement (UUID format).
	ID string `json:"id"`

	// GroupID is set when the payment settles group balances; empty for a
	// direct friend payment.
	GroupID string `json:"group_id,omitempty"`

	// FromUserID is the user who paid (debtor settling up).
	FromUserID string `json:"from_user_id"`

	// ToUserID is the user who received payment.
	ToUserID string `json:"to_user_id"`

	// Amount is the payment amount in minor units. A payment may exceed
	// the outstanding debt; the balance then flips sign rather than being
	// clamped at zero.
	Amount int64 `json:"amount"`

	// Note is an optional free-form description.
	Note string `json:"note,omitempty"`

	// RecordedAt is the Unix timestamp when the settlement was recorded.
	RecordedAt int64 `json:"recorded_at"`

	// RecordedBy is the user who entered the settlement.
	RecordedBy string `json:"recorded_by"`
}
