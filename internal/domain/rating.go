package domain

import "fmt"

// SegmentKey identifies a risk-rating cell. Empty components widen the cell:
// a key with only Region set rates every breed and season in that region, and
// the zero key is the global default.
type SegmentKey struct {
	Region     string
	BreedClass string
	Season     string
}

// IsGlobal reports whether the key is the global default cell.
func (k SegmentKey) IsGlobal() bool {
	return k.Region == "" && k.BreedClass == "" && k.Season == ""
}

func (k SegmentKey) String() string {
	if k.IsGlobal() {
		return "global"
	}
	return fmt.Sprintf("%s/%s/%s", k.Region, k.BreedClass, k.Season)
}

// RiskSegment holds fitted frequency and severity parameters for one rating
// cell, produced by the offline fitting job. Read-only to the pricing engine.
type RiskSegment struct {
	Key              SegmentKey
	Frequency        float64
	Severity         float64
	ObservationCount int
	FittedVersion    string
}
