package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SegmentResolver returns the most specific fitted segment for a key,
// falling back through wider cells down to the global default.
type SegmentResolver interface {
	Resolve(key SegmentKey) RiskSegment
}

// Pricer turns a resolved segment and the animal's behavioural signal into a
// premium. Implementations must be deterministic for identical inputs.
type Pricer interface {
	Price(segment RiskSegment, window *FeatureWindow, sumInsured float64) (float64, error)
}

// Service orchestrates quote issuance.
type Service struct {
	repo     QuoteRepository
	resolver SegmentResolver
	pricer   Pricer
}

// NewService constructs a Service.
func NewService(repo QuoteRepository, resolver SegmentResolver, pricer Pricer) *Service {
	return &Service{repo: repo, resolver: resolver, pricer: pricer}
}

// IssueQuoteInput captures the payload from the API layer.
type IssueQuoteInput struct {
	TenantID   string
	AnimalID   string
	SumInsured float64
	// Season overrides the season component of the rating key. When empty the
	// quarter of the issue timestamp is used (Q1..Q4).
	Season string
}

// IssueQuote prices the animal and persists an immutable quote, superseding
// any prior issued quote for the same animal.
func (s *Service) IssueQuote(ctx context.Context, input IssueQuoteInput) (*Quote, error) {
	profile, err := s.repo.GetProfile(ctx, input.TenantID, input.AnimalID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}

	window, err := s.repo.LatestFeatureWindow(ctx, input.TenantID, input.AnimalID)
	if err != nil {
		return nil, fmt.Errorf("load feature window: %w", err)
	}

	now := time.Now().UTC()
	season := input.Season
	if season == "" {
		season = SeasonOf(now)
	}

	segment := s.resolver.Resolve(SegmentKey{
		Region:     profile.Region,
		BreedClass: profile.BreedClass,
		Season:     season,
	})

	premium, err := s.pricer.Price(segment, window, input.SumInsured)
	if err != nil {
		return nil, err
	}

	quote := Quote{
		ID:         uuid.NewString(),
		TenantID:   input.TenantID,
		AnimalID:   input.AnimalID,
		Premium:    premium,
		SumInsured: input.SumInsured,
		SegmentKey: segment.Key,
		State:      QuoteStateIssued,
		IssuedAt:   now,
	}

	if err := s.repo.CreateQuote(ctx, quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// GetQuote fetches a quote by ID.
func (s *Service) GetQuote(ctx context.Context, tenantID, quoteID string) (*Quote, error) {
	quote, err := s.repo.GetQuote(ctx, tenantID, quoteID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, ErrQuoteNotFound
	}
	return quote, nil
}

// ListQuotesByAnimal fetches quotes with cursor pagination, newest first.
func (s *Service) ListQuotesByAnimal(ctx context.Context, tenantID, animalID string, cursor *Cursor, limit int) ([]Quote, *Cursor, error) {
	return s.repo.ListQuotesByAnimal(ctx, tenantID, animalID, cursor, limit)
}

// TransferOwnership reassigns an animal to a new owner. Quotes already issued
// are unaffected; they priced the animal, not the owner.
func (s *Service) TransferOwnership(ctx context.Context, tenantID, animalID, newOwnerID string) error {
	if newOwnerID == "" {
		return &ValidationError{Fields: []FieldError{{Field: "new_owner_id", Reason: "required"}}}
	}
	return s.repo.TransferOwnership(ctx, tenantID, animalID, newOwnerID)
}

// LatestFeatureWindow exposes the animal's most recent derived window.
func (s *Service) LatestFeatureWindow(ctx context.Context, tenantID, animalID string) (*FeatureWindow, error) {
	return s.repo.LatestFeatureWindow(ctx, tenantID, animalID)
}

// SeasonOf maps a timestamp to the quarter label used in rating keys.
func SeasonOf(t time.Time) string {
	return fmt.Sprintf("Q%d", (int(t.UTC().Month())-1)/3+1)
}
