package domain

import "time"

// HistoryRecord is one entry in the append-only ledger of successfully
// submitted deals.
type HistoryRecord struct {
	OpportunityID string    `json:"opportunity_id"`
	DealName      string    `json:"deal_name"`
	Amount        float64   `json:"amount"`
	ContactName   string    `json:"contact_name"`
	ContactEmail  string    `json:"contact_email"`
	EnvelopeID    string    `json:"envelope_id"`
	SubmittedAt   time.Time `json:"submitted_at"`
}
