// Package reserving estimates IBNR from cumulative claims triangles using the
// chain-ladder method with volume-weighted development factors.
package reserving

import (
	"fmt"

	"example.com/risk/internal/domain"
)

// Reserve computes development factors, projected ultimates and IBNR for one
// triangle. Shorter rows for recent origin periods are the expected shape of
// a developing triangle; a row with decreasing cumulative values violates the
// triangle invariant and aborts the computation for this triangle only.
func Reserve(triangle domain.ClaimsTriangle) (*domain.ReserveSummary, error) {
	if err := validate(triangle); err != nil {
		return nil, err
	}

	maxLag := 0
	for _, row := range triangle.Rows {
		if len(row) > maxLag {
			maxLag = len(row)
		}
	}

	factors := developmentFactors(triangle.Rows, maxLag)

	summary := &domain.ReserveSummary{
		Factors:   factors,
		PerOrigin: make([]domain.OriginReserve, 0, len(triangle.Rows)),
	}

	for i, row := range triangle.Rows {
		latest := row[len(row)-1]
		ultimate := latest
		// Apply the remaining factors beyond this origin's known diagonal.
		// A single-cell row picks up every factor; degenerate but well defined.
		for lag := len(row) - 1; lag < maxLag-1; lag++ {
			ultimate *= factors[lag]
		}

		reserve := domain.OriginReserve{
			Origin:   triangle.Origins[i],
			Latest:   latest,
			Ultimate: ultimate,
			IBNR:     ultimate - latest,
		}
		summary.PerOrigin = append(summary.PerOrigin, reserve)
		summary.TotalIBNR += reserve.IBNR
	}

	return summary, nil
}

// developmentFactors computes the lag j -> j+1 factor as the volume-weighted
// average of period-over-period ratios, using only origin rows that populate
// both columns. A column pair with no overlap (or a zero base) yields a unit
// factor: no development evidence, no development applied.
func developmentFactors(rows [][]float64, maxLag int) []float64 {
	factors := make([]float64, maxLag-1)
	for lag := 0; lag < maxLag-1; lag++ {
		var numer, denom float64
		for _, row := range rows {
			if len(row) > lag+1 {
				numer += row[lag+1]
				denom += row[lag]
			}
		}
		if denom > 0 {
			factors[lag] = numer / denom
		} else {
			factors[lag] = 1
		}
	}
	return factors
}

func validate(triangle domain.ClaimsTriangle) error {
	if len(triangle.Rows) == 0 {
		return fmt.Errorf("%w: no origin periods", domain.ErrMalformedTriangle)
	}
	if len(triangle.Origins) != len(triangle.Rows) {
		return fmt.Errorf("%w: %d origin labels for %d rows", domain.ErrMalformedTriangle, len(triangle.Origins), len(triangle.Rows))
	}
	for i, row := range triangle.Rows {
		if len(row) == 0 {
			return fmt.Errorf("%w: origin %s has no cells", domain.ErrMalformedTriangle, triangle.Origins[i])
		}
		if row[0] < 0 {
			return fmt.Errorf("%w: origin %s has negative cumulative amount", domain.ErrMalformedTriangle, triangle.Origins[i])
		}
		for j := 1; j < len(row); j++ {
			if row[j] < row[j-1] {
				return fmt.Errorf("%w: origin %s decreases at lag %d (%g -> %g)",
					domain.ErrMalformedTriangle, triangle.Origins[i], j, row[j-1], row[j])
			}
		}
	}
	return nil
}
