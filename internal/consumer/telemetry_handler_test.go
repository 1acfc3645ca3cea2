package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"example.com/risk/internal/domain"
	"example.com/risk/internal/events"
	"example.com/risk/internal/features"
	"example.com/risk/internal/normalizer"
)

type stubStore struct {
	windows    []domain.FeatureWindow
	tenants    []string
	rejections []normalizer.Rejection
	upsertErr  error
}

func (s *stubStore) UpsertFeatureWindow(_ context.Context, tenantID string, window domain.FeatureWindow) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.tenants = append(s.tenants, tenantID)
	s.windows = append(s.windows, window)
	return nil
}

func (s *stubStore) RecordBatchRejections(_ context.Context, _, _ string, rejections []normalizer.Rejection) error {
	s.rejections = append(s.rejections, rejections...)
	return nil
}

func telemetryMessage(t *testing.T, batch events.TelemetryBatch) Message {
	t.Helper()
	payload, err := json.Marshal(batch)
	require.NoError(t, err)
	return Message{
		Topic:     "telemetry_batches",
		EventType: "telemetry.batch",
		TenantID:  "tenant-1",
		Payload:   payload,
	}
}

func reading(animalID, ts string, speed float64) map[string]interface{} {
	return map[string]interface{}{
		"animal_id": animalID,
		"ts":        ts,
		"lat":       -24.65,
		"lon":       25.91,
		"speed_kmh": speed,
		"battery_v": 3.7,
	}
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestTelemetryHandlerDerivesWindowsPerRecord(t *testing.T) {
	store := &stubStore{}
	handler := NewTelemetryHandler(features.NewDeriver(time.Hour, nil), store)

	before := counterValue(t, windowsDerivedCounter)

	batch := events.TelemetryBatch{
		BatchID:    "b-1",
		TenantID:   "tenant-1",
		ReceivedAt: time.Now().UTC(),
		Records: []map[string]interface{}{
			reading("cow-1", "2026-03-14T09:00:00Z", 4),
			reading("cow-1", "2026-03-14T09:10:00Z", 6),
		},
	}

	err := handler.Handle(context.Background(), telemetryMessage(t, batch))
	require.NoError(t, err)

	require.Len(t, store.windows, 2)
	require.Equal(t, []string{"tenant-1", "tenant-1"}, store.tenants)
	require.Empty(t, store.rejections)
	require.InDelta(t, 1.0, store.windows[1].DistanceKm, 1e-9)
	require.Equal(t, before+2, counterValue(t, windowsDerivedCounter))
}

func TestTelemetryHandlerReportsRejectionsWithoutFailingBatch(t *testing.T) {
	store := &stubStore{}
	handler := NewTelemetryHandler(features.NewDeriver(time.Hour, nil), store)

	bad := reading("cow-1", "2026-03-14T09:05:00Z", 3)
	bad["lat"] = 200.0

	batch := events.TelemetryBatch{
		BatchID:  "b-2",
		TenantID: "tenant-1",
		Records: []map[string]interface{}{
			reading("cow-1", "2026-03-14T09:00:00Z", 4),
			bad,
		},
	}

	err := handler.Handle(context.Background(), telemetryMessage(t, batch))
	require.NoError(t, err)

	require.Len(t, store.windows, 1)
	require.Len(t, store.rejections, 1)
	require.Equal(t, 1, store.rejections[0].Index)
	require.True(t, store.rejections[0].Err.Has("lat"))
}

func TestTelemetryHandlerFailsOnStoreErrorForRetry(t *testing.T) {
	store := &stubStore{upsertErr: errors.New("pg down")}
	handler := NewTelemetryHandler(features.NewDeriver(time.Hour, nil), store)

	batch := events.TelemetryBatch{
		BatchID:  "b-3",
		TenantID: "tenant-1",
		Records:  []map[string]interface{}{reading("cow-1", "2026-03-14T09:00:00Z", 4)},
	}

	err := handler.Handle(context.Background(), telemetryMessage(t, batch))
	require.Error(t, err)
	require.Contains(t, err.Error(), "cow-1")
}

func TestTelemetryHandlerRejectsUnexpectedEventType(t *testing.T) {
	handler := NewTelemetryHandler(features.NewDeriver(time.Hour, nil), &stubStore{})

	err := handler.Handle(context.Background(), Message{EventType: "quote.issued", Payload: []byte(`{}`)})
	require.Error(t, err)
}

func TestTelemetryHandlerFallsBackToBatchTenant(t *testing.T) {
	store := &stubStore{}
	handler := NewTelemetryHandler(features.NewDeriver(time.Hour, nil), store)

	batch := events.TelemetryBatch{
		BatchID:  "b-4",
		TenantID: "tenant-9",
		Records:  []map[string]interface{}{reading("cow-1", "2026-03-14T09:00:00Z", 4)},
	}
	payload, err := json.Marshal(batch)
	require.NoError(t, err)

	msg := Message{Topic: "telemetry_batches", EventType: "telemetry.batch", Payload: payload}
	require.NoError(t, handler.Handle(context.Background(), msg))
	require.Equal(t, []string{"tenant-9"}, store.tenants)
}
