package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"example.com/risk/internal/domain"
	"example.com/risk/internal/events"
	"example.com/risk/internal/features"
	"example.com/risk/internal/normalizer"
	"example.com/risk/internal/observability"
)

// FeatureStore captures the persistence operations the telemetry pipeline
// needs.
type FeatureStore interface {
	UpsertFeatureWindow(ctx context.Context, tenantID string, window domain.FeatureWindow) error
	RecordBatchRejections(ctx context.Context, tenantID, batchID string, rejections []normalizer.Rejection) error
}

// TelemetryHandler runs consumed telemetry batches through normalization and
// feature derivation and persists the results. It owns the rolling window
// state for every animal routed to its partition; it must not be shared
// across processors.
type TelemetryHandler struct {
	deriver *features.Deriver
	store   FeatureStore
}

// NewTelemetryHandler constructs a handler around the given deriver and store.
func NewTelemetryHandler(deriver *features.Deriver, store FeatureStore) *TelemetryHandler {
	return &TelemetryHandler{deriver: deriver, store: store}
}

// Handle decodes a telemetry batch, accepts what validates, derives one
// feature window per accepted record, and reports every rejection. A bad
// record never fails the batch; a store error does, so the message is
// retried rather than lost.
func (h *TelemetryHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != "telemetry.batch" {
		return fmt.Errorf("unexpected event type %q", msg.EventType)
	}

	var batch events.TelemetryBatch
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		return fmt.Errorf("decode telemetry batch: %w", err)
	}

	raws := make([]normalizer.RawRecord, len(batch.Records))
	for i, record := range batch.Records {
		raws[i] = normalizer.RawRecord(record)
	}

	result := normalizer.NormalizeBatch(raws)
	observability.RecordRejectedRecords(len(result.Rejected))

	tenantID := msg.TenantID
	if tenantID == "" {
		tenantID = batch.TenantID
	}

	if err := h.store.RecordBatchRejections(ctx, tenantID, batch.BatchID, result.Rejected); err != nil {
		return fmt.Errorf("record rejections: %w", err)
	}

	windows := h.deriver.DeriveBatch(result.Accepted)
	for _, window := range windows {
		if err := h.store.UpsertFeatureWindow(ctx, tenantID, window); err != nil {
			return fmt.Errorf("persist window for %s: %w", window.AnimalID, err)
		}
	}
	recordWindowsDerived(len(windows))
	return nil
}
