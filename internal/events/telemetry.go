package events

import "time"

// TelemetryBatch is the payload consumed from the ingestion topic: an ordered
// batch of raw device readings forwarded by the gateway.
type TelemetryBatch struct {
	BatchID    string                   `json:"batch_id"`
	TenantID   string                   `json:"tenant_id"`
	ReceivedAt time.Time                `json:"received_at"`
	Records    []map[string]interface{} `json:"records"`
}
