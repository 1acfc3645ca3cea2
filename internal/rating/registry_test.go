package rating

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/risk/internal/domain"
)

func fittedSegments() []domain.RiskSegment {
	return []domain.RiskSegment{
		{Key: domain.SegmentKey{}, Frequency: 0.05, Severity: 1.0, ObservationCount: 10000, FittedVersion: "v1"},
		{Key: domain.SegmentKey{Region: "kgatleng"}, Frequency: 0.06, Severity: 1.0, ObservationCount: 4000, FittedVersion: "v1"},
		{Key: domain.SegmentKey{Region: "kgatleng", BreedClass: "bos-indicus"}, Frequency: 0.04, Severity: 1.0, ObservationCount: 900, FittedVersion: "v1"},
		{Key: domain.SegmentKey{Region: "kgatleng", BreedClass: "bos-indicus", Season: "Q4"}, Frequency: 0.09, Severity: 1.0, ObservationCount: 120, FittedVersion: "v1"},
	}
}

func TestResolveWalksFallbackChain(t *testing.T) {
	snap, err := NewSnapshot("v1", fittedSegments())
	require.NoError(t, err)

	exact := snap.Resolve(domain.SegmentKey{Region: "kgatleng", BreedClass: "bos-indicus", Season: "Q4"})
	require.Equal(t, 0.09, exact.Frequency)

	// Unknown season drops to (region, breed class).
	noSeason := snap.Resolve(domain.SegmentKey{Region: "kgatleng", BreedClass: "bos-indicus", Season: "Q2"})
	require.Equal(t, 0.04, noSeason.Frequency)

	// Unknown breed class drops to (region).
	noBreed := snap.Resolve(domain.SegmentKey{Region: "kgatleng", BreedClass: "bos-taurus", Season: "Q2"})
	require.Equal(t, 0.06, noBreed.Frequency)

	// Unknown region lands on the global default.
	global := snap.Resolve(domain.SegmentKey{Region: "ghanzi", BreedClass: "bos-taurus", Season: "Q2"})
	require.Equal(t, 0.05, global.Frequency)
}

func TestNewSnapshotRequiresGlobalDefault(t *testing.T) {
	_, err := NewSnapshot("v1", []domain.RiskSegment{
		{Key: domain.SegmentKey{Region: "kgatleng"}, Frequency: 0.06, Severity: 1.0},
	})
	require.ErrorIs(t, err, domain.ErrSegmentNotFound)
}

func TestNewSnapshotRejectsDuplicateKeys(t *testing.T) {
	_, err := NewSnapshot("v1", []domain.RiskSegment{
		{Key: domain.SegmentKey{}, Frequency: 0.05, Severity: 1.0},
		{Key: domain.SegmentKey{}, Frequency: 0.07, Severity: 1.0},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate segment")
}

func TestRegistrySwapIsObservedAtomically(t *testing.T) {
	v1, err := NewSnapshot("v1", fittedSegments())
	require.NoError(t, err)

	registry := NewRegistry(v1)
	require.Equal(t, "v1", registry.Version())
	require.Equal(t, 0.05, registry.Resolve(domain.SegmentKey{Region: "ghanzi"}).Frequency)

	v2, err := NewSnapshot("v2", []domain.RiskSegment{
		{Key: domain.SegmentKey{}, Frequency: 0.08, Severity: 1.2, ObservationCount: 12000, FittedVersion: "v2"},
	})
	require.NoError(t, err)

	registry.Swap(v2)
	require.Equal(t, "v2", registry.Version())
	require.Equal(t, 0.08, registry.Resolve(domain.SegmentKey{Region: "ghanzi"}).Frequency)
}
