// Package api exposes HTTP handlers for the risk service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/risk/internal/auth"
	"example.com/risk/internal/domain"
	"example.com/risk/internal/events"
	"example.com/risk/internal/normalizer"
	"example.com/risk/internal/persistence"
	"example.com/risk/internal/reserving"
)

// Quote listings are cursor-paginated; a requested page size is clamped so a
// caller cannot force an arbitrarily large scan.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TelemetryPublisher forwards an accepted telemetry batch to the ingestion
// topic for feature derivation.
type TelemetryPublisher interface {
	PublishTelemetry(ctx context.Context, tenantID string, batch events.TelemetryBatch) error
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service   *domain.Service
	publisher TelemetryPublisher
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, publisher TelemetryPublisher) *Handler {
	return &Handler{service: service, publisher: publisher}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/telemetry", h.ingestTelemetry)
	mux.HandleFunc("/v1/quotes", h.quotes)
	mux.HandleFunc("/v1/quotes/", h.quoteByID)
	mux.HandleFunc("/v1/animals/", h.animals)
	mux.HandleFunc("/v1/reserves", h.runReserves)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) quotes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.issueQuote(w, r)
	case http.MethodGet:
		h.listQuotes(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) quoteByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/quotes/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing quote id")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeQuotesRead, auth.ScopeQuotesWrite)
	if !ok {
		return
	}

	quote, err := h.service.GetQuote(r.Context(), claims.TenantID, id)
	if err != nil {
		if errors.Is(err, domain.ErrQuoteNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "quote not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toQuoteView(*quote))
}

func (h *Handler) issueQuote(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeQuotesWrite)
	if !ok {
		return
	}

	var req IssueQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	quote, err := h.service.IssueQuote(r.Context(), domain.IssueQuoteInput{
		TenantID:   claims.TenantID,
		AnimalID:   req.AnimalID,
		SumInsured: req.SumInsured,
		Season:     req.Season,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrProfileNotFound):
			writeError(w, http.StatusNotFound, "not_found", "animal is not registered")
		case errors.Is(err, domain.ErrInsufficientData):
			// Surfaced, never silently defaulted to a zero premium.
			writeError(w, http.StatusUnprocessableEntity, "insufficient_data", "no pricing basis for this animal")
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, toQuoteView(*quote))
}

func (h *Handler) listQuotes(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeQuotesRead, auth.ScopeQuotesWrite)
	if !ok {
		return
	}

	animalID := r.URL.Query().Get("animal_id")
	if animalID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing animal_id parameter")
		return
	}

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	quotes, next, err := h.service.ListQuotesByAnimal(r.Context(), claims.TenantID, animalID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]QuoteView, 0, len(quotes))
	for _, quote := range quotes {
		items = append(items, toQuoteView(quote))
	}

	writeJSON(w, http.StatusOK, ListQuotesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) animals(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/animals/")
	animalID, suffix, found := strings.Cut(rest, "/")
	if !found || animalID == "" {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}
	switch suffix {
	case "features":
		h.animalFeatures(w, r, animalID)
	case "owner":
		h.transferOwnership(w, r, animalID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (h *Handler) animalFeatures(w http.ResponseWriter, r *http.Request, animalID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeQuotesRead, auth.ScopeQuotesWrite)
	if !ok {
		return
	}

	window, err := h.service.LatestFeatureWindow(r.Context(), claims.TenantID, animalID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if window == nil {
		writeError(w, http.StatusNotFound, "not_found", "no feature window for animal")
		return
	}
	writeJSON(w, http.StatusOK, toFeatureView(*window))
}

func (h *Handler) transferOwnership(w http.ResponseWriter, r *http.Request, animalID string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeQuotesWrite)
	if !ok {
		return
	}

	var req TransferOwnershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	err := h.service.TransferOwnership(r.Context(), claims.TenantID, animalID, req.NewOwnerID)
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.Is(err, domain.ErrProfileNotFound):
			writeError(w, http.StatusNotFound, "not_found", "animal is not registered")
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, "validation_failed", verr.Error())
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ingestTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeTelemetryWrite)
	if !ok {
		return
	}

	var req IngestTelemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "records must not be empty")
		return
	}

	// Validate up front so the caller sees every rejection synchronously;
	// only the accepted records travel to the feature pipeline.
	raws := make([]normalizer.RawRecord, len(req.Records))
	for i, record := range req.Records {
		raws[i] = normalizer.RawRecord(record)
	}
	result := normalizer.NormalizeBatch(raws)

	rejections := make([]RejectionView, 0, len(result.Rejected))
	for _, rej := range result.Rejected {
		view := RejectionView{Index: rej.Index}
		for _, field := range rej.Err.Fields {
			view.Violations = append(view.Violations, field.String())
		}
		rejections = append(rejections, view)
	}

	if len(result.Accepted) > 0 {
		accepted := make([]map[string]interface{}, 0, len(result.Accepted))
		for i, record := range req.Records {
			if !isRejected(result.Rejected, i) {
				accepted = append(accepted, record)
			}
		}
		batch := events.TelemetryBatch{
			BatchID:    req.BatchID,
			TenantID:   claims.TenantID,
			ReceivedAt: time.Now().UTC(),
			Records:    accepted,
		}
		if err := h.publisher.PublishTelemetry(r.Context(), claims.TenantID, batch); err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
	}

	writeJSON(w, http.StatusAccepted, IngestTelemetryResponse{
		Accepted: len(result.Accepted),
		Rejected: rejections,
	})
}

func (h *Handler) runReserves(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := requireScope(w, r, auth.ScopeReservesRun); !ok {
		return
	}

	var req ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	triangle := domain.ClaimsTriangle{
		Origins: make([]string, 0, len(req.Triangle)),
		Rows:    make([][]float64, 0, len(req.Triangle)),
	}
	for _, row := range req.Triangle {
		triangle.Origins = append(triangle.Origins, row.Origin)
		triangle.Rows = append(triangle.Rows, row.Cumulative)
	}

	summary, err := reserving.Reserve(triangle)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedTriangle) {
			writeError(w, http.StatusUnprocessableEntity, "malformed_triangle", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := ReserveResponse{
		Factors:   summary.Factors,
		TotalIBNR: summary.TotalIBNR,
		PerOrigin: make([]OriginReserveView, 0, len(summary.PerOrigin)),
	}
	for _, origin := range summary.PerOrigin {
		resp.PerOrigin = append(resp.PerOrigin, OriginReserveView{
			Origin:   origin.Origin,
			Latest:   origin.Latest,
			Ultimate: origin.Ultimate,
			IBNR:     origin.IBNR,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireScope resolves the request claims and enforces that at least one of
// the scopes is present.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+strings.Join(scopes, " or ")+" required")
	return nil, false
}

func isRejected(rejections []normalizer.Rejection, index int) bool {
	for _, rej := range rejections {
		if rej.Index == index {
			return true
		}
	}
	return false
}

// IngestTelemetryRequest is the payload for POST /v1/telemetry.
type IngestTelemetryRequest struct {
	BatchID string                   `json:"batch_id"`
	Records []map[string]interface{} `json:"records"`
}

// RejectionView reports one rejected record with every violated field.
type RejectionView struct {
	Index      int      `json:"index"`
	Violations []string `json:"violations"`
}

// IngestTelemetryResponse summarises batch partial acceptance.
type IngestTelemetryResponse struct {
	Accepted int             `json:"accepted"`
	Rejected []RejectionView `json:"rejected"`
}

// TransferOwnershipRequest is the payload for PUT /v1/animals/{id}/owner.
type TransferOwnershipRequest struct {
	NewOwnerID string `json:"new_owner_id"`
}

// IssueQuoteRequest is the payload for POST /v1/quotes.
type IssueQuoteRequest struct {
	AnimalID   string  `json:"animal_id"`
	SumInsured float64 `json:"sum_insured"`
	Season     string  `json:"season,omitempty"`
}

// Validate ensures request correctness.
func (r IssueQuoteRequest) Validate() error {
	if strings.TrimSpace(r.AnimalID) == "" {
		return errors.New("animal_id is required")
	}
	if r.SumInsured <= 0 {
		return errors.New("sum_insured must be > 0")
	}
	return nil
}

// QuoteView exposes full details about a quote.
type QuoteView struct {
	QuoteID    string    `json:"quote_id"`
	TenantID   string    `json:"tenant_id"`
	AnimalID   string    `json:"animal_id"`
	Premium    float64   `json:"premium"`
	SumInsured float64   `json:"sum_insured"`
	Segment    string    `json:"segment"`
	State      string    `json:"state"`
	IssuedAt   time.Time `json:"issued_at"`
}

// ListQuotesResponse packages list results.
type ListQuotesResponse struct {
	Items      []QuoteView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// FeatureView exposes the latest derived window for an animal.
type FeatureView struct {
	AnimalID      string    `json:"animal_id"`
	WindowEnd     time.Time `json:"window_end"`
	DistanceKm    float64   `json:"distance_km"`
	TimeDeltaSec  float64   `json:"time_delta_sec"`
	GeofenceDwell bool      `json:"geofence_dwell"`
	AnomalyScore  float64   `json:"anomaly_score"`
	GapFlag       bool      `json:"gap_flag"`
	SampleCount   int       `json:"sample_count"`
}

// TriangleRow is one origin period of a reserve request.
type TriangleRow struct {
	Origin     string    `json:"origin"`
	Cumulative []float64 `json:"cumulative"`
}

// ReserveRequest is the payload for POST /v1/reserves.
type ReserveRequest struct {
	Triangle []TriangleRow `json:"triangle"`
}

// OriginReserveView is the reserving result for one origin period.
type OriginReserveView struct {
	Origin   string  `json:"origin"`
	Latest   float64 `json:"latest"`
	Ultimate float64 `json:"ultimate"`
	IBNR     float64 `json:"ibnr"`
}

// ReserveResponse carries development factors and IBNR estimates.
type ReserveResponse struct {
	Factors   []float64           `json:"factors"`
	PerOrigin []OriginReserveView `json:"per_origin"`
	TotalIBNR float64             `json:"total_ibnr"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toQuoteView(quote domain.Quote) QuoteView {
	return QuoteView{
		QuoteID:    quote.ID,
		TenantID:   quote.TenantID,
		AnimalID:   quote.AnimalID,
		Premium:    quote.Premium,
		SumInsured: quote.SumInsured,
		Segment:    quote.SegmentKey.String(),
		State:      string(quote.State),
		IssuedAt:   quote.IssuedAt,
	}
}

func toFeatureView(window domain.FeatureWindow) FeatureView {
	return FeatureView{
		AnimalID:      window.AnimalID,
		WindowEnd:     window.WindowEnd,
		DistanceKm:    window.DistanceKm,
		TimeDeltaSec:  window.TimeDeltaSec,
		GeofenceDwell: window.GeofenceDwell,
		AnomalyScore:  window.AnomalyScore,
		GapFlag:       window.GapFlag,
		SampleCount:   window.SampleCount,
	}
}
