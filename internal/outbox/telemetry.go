package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/risk/internal/events"
)

const (
	telemetryTopic   = "telemetry_batches"
	telemetrySubject = "telemetry_batches-value"
)

const telemetryBatchSchema = `{
  "type": "object",
  "title": "TelemetryBatch",
  "properties": {
    "batch_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "received_at": {"type": "string", "format": "date-time"},
    "records": {"type": "array", "items": {"type": "object"}}
  },
  "required": ["tenant_id", "received_at", "records"],
  "additionalProperties": false
}`

// TelemetryForwarder publishes accepted telemetry batches straight to the
// ingestion topic. Unlike quote events there is no durable row behind these
// messages; the gateway retries the HTTP call on failure.
type TelemetryForwarder struct {
	producer messageWriter
	registry schemaRegistrar

	mu       sync.Mutex
	schemaID int
	resolved bool
}

// NewTelemetryForwarder constructs a TelemetryForwarder.
func NewTelemetryForwarder(producer messageWriter, registry schemaRegistrar) *TelemetryForwarder {
	return &TelemetryForwarder{producer: producer, registry: registry}
}

// PublishTelemetry frames and writes one batch, keyed by tenant so all of a
// tenant's animals stay on one partition and per-animal ordering holds.
func (f *TelemetryForwarder) PublishTelemetry(ctx context.Context, tenantID string, batch events.TelemetryBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode telemetry batch: %w", err)
	}

	schemaID, err := f.ensureSchemaID(ctx)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(tenantID),
		Value: encodeWireFormat(schemaID, payload),
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("telemetry.batch")},
			{Key: "tenant_id", Value: []byte(tenantID)},
			{Key: "schema_subject", Value: []byte(telemetrySubject)},
		},
	}
	return f.producer.WriteMessages(ctx, telemetryTopic, msg)
}

func (f *TelemetryForwarder) ensureSchemaID(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return f.schemaID, nil
	}
	id, err := f.registry.EnsureSchema(ctx, telemetrySubject, telemetryBatchSchema)
	if err != nil {
		return 0, err
	}
	f.schemaID = id
	f.resolved = true
	return id, nil
}
