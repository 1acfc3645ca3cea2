// Package events defines the payloads published by the risk service.
package events

import (
	"time"
)

// QuoteIssued is emitted when a new quote is persisted.
type QuoteIssued struct {
	QuoteID    string    `json:"quote_id"`
	TenantID   string    `json:"tenant_id"`
	AnimalID   string    `json:"animal_id"`
	Premium    float64   `json:"premium"`
	SumInsured float64   `json:"sum_insured"`
	Segment    string    `json:"segment"`
	IssuedAt   time.Time `json:"issued_at"`
}

// QuoteSuperseded is emitted when a newer quote replaces a prior one for the
// same animal.
type QuoteSuperseded struct {
	QuoteID      string    `json:"quote_id"`
	TenantID     string    `json:"tenant_id"`
	AnimalID     string    `json:"animal_id"`
	SupersededBy string    `json:"superseded_by"`
	OccurredAt   time.Time `json:"occurred_at"`
}
