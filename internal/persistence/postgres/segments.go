package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/risk/internal/domain"
	"example.com/risk/internal/rating"
)

// LoadSegmentSnapshot reads the fitted segment rows written by the offline
// fitting job and builds an immutable registry snapshot from the newest
// fitted version. The rows are read-only from this service's perspective.
func LoadSegmentSnapshot(ctx context.Context, pool *pgxpool.Pool) (*rating.Snapshot, error) {
	var version string
	if err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(fitted_version), '') FROM risk_segments`).Scan(&version); err != nil {
		return nil, fmt.Errorf("resolve fitted version: %w", err)
	}
	if version == "" {
		return nil, fmt.Errorf("risk_segments is empty: %w", domain.ErrSegmentNotFound)
	}

	rows, err := pool.Query(ctx,
		`SELECT region, breed_class, season, frequency, severity, observation_count
         FROM risk_segments WHERE fitted_version=$1`, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []domain.RiskSegment
	for rows.Next() {
		seg := domain.RiskSegment{FittedVersion: version}
		if err := rows.Scan(&seg.Key.Region, &seg.Key.BreedClass, &seg.Key.Season, &seg.Frequency, &seg.Severity, &seg.ObservationCount); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rating.NewSnapshot(version, segments)
}
