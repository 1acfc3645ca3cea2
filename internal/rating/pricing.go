package rating

import (
	"fmt"

	"example.com/risk/internal/domain"
)

// CredibilityFunc maps a segment's observation count to the weight z in [0,1]
// given to the segment rate in the blend. Implementations must be monotonic
// non-decreasing in the observation count.
type CredibilityFunc func(observationCount int) float64

// BuhlmannCredibility returns the classic z = n/(n+k) weighting: the more
// claims experience behind a segment, the more the segment rate is trusted
// over the animal's own behavioural signal.
func BuhlmannCredibility(k float64) CredibilityFunc {
	return func(n int) float64 {
		if n <= 0 {
			return 0
		}
		return float64(n) / (float64(n) + k)
	}
}

// Engine computes indicative premiums. Stateless per call and deterministic
// for identical inputs; there is no randomness anywhere in the calculation.
type Engine struct {
	loading     float64
	anomalyLoad float64
	credibility CredibilityFunc
}

// NewEngine constructs an Engine. The loading factor covers expenses and
// margin and must be >= 1; anomalyLoad scales how strongly the anomaly score
// moves the individual rate above the segment base and must be >= 0.
func NewEngine(loading, anomalyLoad float64, credibility CredibilityFunc) (*Engine, error) {
	if loading < 1 {
		return nil, fmt.Errorf("loading factor must be >= 1, got %g", loading)
	}
	if anomalyLoad < 0 {
		return nil, fmt.Errorf("anomaly load must be >= 0, got %g", anomalyLoad)
	}
	if credibility == nil {
		return nil, fmt.Errorf("credibility function is required")
	}
	return &Engine{loading: loading, anomalyLoad: anomalyLoad, credibility: credibility}, nil
}

// Price blends segment and individual frequency signals and applies severity,
// sum insured and loading:
//
//	z        = credibility(segment observations)
//	indiv    = segment frequency * (1 + anomalyLoad * anomaly score)
//	blended  = z*segment frequency + (1-z)*indiv
//	premium  = blended * severity * sum insured * loading
//
// ErrInsufficientData is returned when there is no pricing basis at all: no
// feature window for the animal and zero observations behind the segment.
// A failed quote is never defaulted to a zero premium.
func (e *Engine) Price(segment domain.RiskSegment, window *domain.FeatureWindow, sumInsured float64) (float64, error) {
	if sumInsured <= 0 {
		return 0, fmt.Errorf("sum insured must be > 0, got %g", sumInsured)
	}
	if window == nil && segment.ObservationCount == 0 {
		return 0, domain.ErrInsufficientData
	}

	z := clampUnit(e.credibility(segment.ObservationCount))

	individual := segment.Frequency
	if window != nil {
		individual = segment.Frequency * (1 + e.anomalyLoad*window.AnomalyScore)
	}

	blended := z*segment.Frequency + (1-z)*individual
	return blended * segment.Severity * sumInsured * e.loading, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
