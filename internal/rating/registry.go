// Package rating holds the fitted risk model registry and the pricing engine.
package rating

import (
	"fmt"
	"sync/atomic"
	"time"

	"example.com/risk/internal/domain"
)

// Snapshot is one immutable generation of fitted segments. Lookups walk the
// fallback chain exact(region,breed,season) -> (region,breed) -> (region) ->
// global default; construction fails unless the global default is present, so
// Resolve itself can never miss.
type Snapshot struct {
	version  string
	builtAt  time.Time
	segments map[domain.SegmentKey]domain.RiskSegment
}

// NewSnapshot builds a Snapshot from fitted segment rows. Returns
// ErrSegmentNotFound when no global default row exists; that is a
// configuration defect and fatal at startup, never a per-request condition.
func NewSnapshot(version string, segments []domain.RiskSegment) (*Snapshot, error) {
	index := make(map[domain.SegmentKey]domain.RiskSegment, len(segments))
	for _, seg := range segments {
		if _, dup := index[seg.Key]; dup {
			return nil, fmt.Errorf("duplicate segment %s in snapshot %s", seg.Key, version)
		}
		index[seg.Key] = seg
	}
	if _, ok := index[domain.SegmentKey{}]; !ok {
		return nil, fmt.Errorf("snapshot %s: %w", version, domain.ErrSegmentNotFound)
	}
	return &Snapshot{version: version, builtAt: time.Now().UTC(), segments: index}, nil
}

// Version identifies the fitting run that produced this snapshot.
func (s *Snapshot) Version() string { return s.version }

// Len reports the number of segment rows in the snapshot.
func (s *Snapshot) Len() int { return len(s.segments) }

// Resolve returns the most specific segment for the key. The chain is fixed:
// season is dropped first, then breed class, then region.
func (s *Snapshot) Resolve(key domain.SegmentKey) domain.RiskSegment {
	chain := []domain.SegmentKey{
		key,
		{Region: key.Region, BreedClass: key.BreedClass},
		{Region: key.Region},
		{},
	}
	for _, candidate := range chain {
		if seg, ok := s.segments[candidate]; ok {
			return seg
		}
	}
	// Unreachable: NewSnapshot guarantees the global default.
	return s.segments[domain.SegmentKey{}]
}

// Registry is the shared, read-mostly view over the current snapshot.
// Re-fitting installs a whole new snapshot atomically; readers never observe
// a partially updated registry.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

// NewRegistry constructs a Registry serving the initial snapshot.
func NewRegistry(initial *Snapshot) *Registry {
	r := &Registry{}
	r.current.Store(initial)
	return r
}

// Swap atomically replaces the served snapshot.
func (r *Registry) Swap(next *Snapshot) {
	r.current.Store(next)
}

// Resolve implements domain.SegmentResolver against the current snapshot.
func (r *Registry) Resolve(key domain.SegmentKey) domain.RiskSegment {
	return r.current.Load().Resolve(key)
}

// Version reports the version of the snapshot currently served.
func (r *Registry) Version() string {
	return r.current.Load().Version()
}
