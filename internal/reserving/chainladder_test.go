package reserving

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/risk/internal/domain"
)

func TestReserveKnownTriangle(t *testing.T) {
	triangle := domain.ClaimsTriangle{
		Origins: []string{"2023", "2024", "2025"},
		Rows: [][]float64{
			{100, 150, 160},
			{90, 140},
			{80},
		},
	}

	summary, err := Reserve(triangle)
	require.NoError(t, err)

	// f1 = (150+140)/(100+90) = 290/190, f2 = 160/150.
	require.Len(t, summary.Factors, 2)
	require.InDelta(t, 290.0/190.0, summary.Factors[0], 1e-9)
	require.InDelta(t, 160.0/150.0, summary.Factors[1], 1e-9)

	require.Len(t, summary.PerOrigin, 3)

	// 2023 is fully developed.
	require.Equal(t, "2023", summary.PerOrigin[0].Origin)
	require.InDelta(t, 160.0, summary.PerOrigin[0].Ultimate, 1e-9)
	require.InDelta(t, 0.0, summary.PerOrigin[0].IBNR, 1e-9)

	// 2024 develops one more lag: 140 * 160/150.
	require.InDelta(t, 140.0*160.0/150.0, summary.PerOrigin[1].Ultimate, 1e-9)
	require.InDelta(t, 9.3333333333, summary.PerOrigin[1].IBNR, 1e-6)

	// 2025 develops through both factors: 80 * 290/190 * 160/150.
	require.InDelta(t, 80.0*(290.0/190.0)*(160.0/150.0), summary.PerOrigin[2].Ultimate, 1e-9)
	require.InDelta(t, 50.2456140351, summary.PerOrigin[2].IBNR, 1e-6)

	require.InDelta(t, 59.5789473684, summary.TotalIBNR, 1e-6)
}

func TestReserveRejectsDecreasingRow(t *testing.T) {
	triangle := domain.ClaimsTriangle{
		Origins: []string{"2024", "2025"},
		Rows: [][]float64{
			{100, 90},
			{80},
		},
	}

	_, err := Reserve(triangle)
	require.ErrorIs(t, err, domain.ErrMalformedTriangle)
	require.Contains(t, err.Error(), "2024")
}

func TestReserveRejectsMalformedShapes(t *testing.T) {
	_, err := Reserve(domain.ClaimsTriangle{})
	require.ErrorIs(t, err, domain.ErrMalformedTriangle)

	_, err = Reserve(domain.ClaimsTriangle{
		Origins: []string{"2024", "2025"},
		Rows:    [][]float64{{100}},
	})
	require.ErrorIs(t, err, domain.ErrMalformedTriangle)

	_, err = Reserve(domain.ClaimsTriangle{
		Origins: []string{"2024", "2025"},
		Rows:    [][]float64{{100, 120}, {}},
	})
	require.ErrorIs(t, err, domain.ErrMalformedTriangle)

	_, err = Reserve(domain.ClaimsTriangle{
		Origins: []string{"2024"},
		Rows:    [][]float64{{-5, 10}},
	})
	require.ErrorIs(t, err, domain.ErrMalformedTriangle)
}

func TestReserveSingleOriginHasNoDevelopment(t *testing.T) {
	summary, err := Reserve(domain.ClaimsTriangle{
		Origins: []string{"2025"},
		Rows:    [][]float64{{120, 130, 135}},
	})
	require.NoError(t, err)
	require.InDelta(t, 0.0, summary.TotalIBNR, 1e-9)
	require.InDelta(t, 135.0, summary.PerOrigin[0].Ultimate, 1e-9)
}

func TestReserveUnitFactorOnZeroBase(t *testing.T) {
	// A zero denominator gives no development evidence, so the factor
	// defaults to 1 and the projection stays flat.
	summary, err := Reserve(domain.ClaimsTriangle{
		Origins: []string{"2024", "2025"},
		Rows: [][]float64{
			{0, 0},
			{50},
		},
	})
	require.NoError(t, err)
	require.InDelta(t, 1.0, summary.Factors[0], 1e-9)
	require.InDelta(t, 50.0, summary.PerOrigin[1].Ultimate, 1e-9)
	require.InDelta(t, 0.0, summary.TotalIBNR, 1e-9)
}
