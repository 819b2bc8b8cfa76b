package models

// Frequency is the cadence of a recurring template.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// RecurringTemplate periodically spawns concrete expense instances.
//
// Invariant: IsActive is false once EndDate has passed or OccurrencesCreated
// has reached MaxOccurrences. The scheduler enforces this on every advance.
type RecurringTemplate struct {
	// ID is the unique identifier for the template (UUID format).
	ID string `json:"id"`

	// GroupID is the group the generated expenses belong to. Participants
	// are recomputed from the group's current active members on every run,
	// not frozen at template creation.
	GroupID string `json:"group_id"`

	// PayerID is the user who pays each generated instance.
	PayerID string `json:"payer_id"`

	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Frequency   Frequency `json:"frequency"`

	// StartDate is the first due date (Unix timestamp).
	StartDate int64 `json:"start_date"`

	// EndDate is the optional last valid date; zero means no end.
	EndDate int64 `json:"end_date,omitempty"`

	// MaxOccurrences caps how many instances may be created; zero means
	// unlimited.
	MaxOccurrences int64 `json:"max_occurrences,omitempty"`

	// OccurrencesCreated counts instances materialized so far and doubles
	// as the next occurrence index.
	OccurrencesCreated int64 `json:"occurrences_created"`

	// NextDueDate is when the next instance becomes due (Unix timestamp).
	NextDueDate int64 `json:"next_due_date"`

	IsActive  bool  `json:"is_active"`
	CreatedAt int64 `json:"created_at"`
}
