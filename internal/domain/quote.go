package domain

import (
	"context"
	"time"
)

// QuoteState tracks whether a quote is the current one for its animal.
type QuoteState string

const (
	QuoteStateIssued     QuoteState = "issued"
	QuoteStateSuperseded QuoteState = "superseded"
)

// Quote is an issued indicative premium. Immutable once issued; a new quote
// for the same animal supersedes the prior one rather than editing it.
type Quote struct {
	ID         string
	TenantID   string
	AnimalID   string
	Premium    float64
	SumInsured float64
	SegmentKey SegmentKey
	State      QuoteState
	IssuedAt   time.Time
}

// Cursor models the pagination token for quote listings.
type Cursor struct {
	IssuedAt time.Time
	ID       string
}

// QuoteRepository captures persistence operations for quoting.
type QuoteRepository interface {
	// CreateQuote persists the quote and marks any prior issued quote for the
	// same animal as superseded, in one transaction.
	CreateQuote(ctx context.Context, quote Quote) error
	GetQuote(ctx context.Context, tenantID, quoteID string) (*Quote, error)
	ListQuotesByAnimal(ctx context.Context, tenantID, animalID string, cursor *Cursor, limit int) ([]Quote, *Cursor, error)
	GetProfile(ctx context.Context, tenantID, animalID string) (*AnimalProfile, error)
	// TransferOwnership reassigns an animal to a new owner, the only mutation
	// a profile permits after registration.
	TransferOwnership(ctx context.Context, tenantID, animalID, newOwnerID string) error
	LatestFeatureWindow(ctx context.Context, tenantID, animalID string) (*FeatureWindow, error)
}
