package domain

// ClaimsTriangle is cumulative claims development data: one row per origin
// period, indexed by development lag. Rows are append-only by period and may
// be shorter for recent origins; that is the expected shape, not an error.
type ClaimsTriangle struct {
	// Origins lists origin period labels in the order rows appear.
	Origins []string
	// Rows holds cumulative amounts by development lag, aligned with Origins.
	Rows [][]float64
}

// OriginReserve is the reserving result for one origin period.
type OriginReserve struct {
	Origin   string
	Latest   float64
	Ultimate float64
	IBNR     float64
}

// ReserveSummary is the output of one reserving run over one triangle.
type ReserveSummary struct {
	Factors   []float64
	PerOrigin []OriginReserve
	TotalIBNR float64
}
