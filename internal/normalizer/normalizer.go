// Package normalizer validates raw device readings and canonicalizes them
// into domain.TelemetryRecord values.
package normalizer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"example.com/risk/internal/domain"
)

// RawRecord is an untyped telemetry payload as decoded from the ingestion
// boundary: a mapping of field name to value.
type RawRecord map[string]interface{}

// Rejection pairs a rejected record's batch position with the full list of
// violated fields.
type Rejection struct {
	Index int
	Err   *domain.ValidationError
}

// BatchResult carries the accepted records and every rejection from one batch.
// A bad record never aborts the batch.
type BatchResult struct {
	Accepted []domain.TelemetryRecord
	Rejected []Rejection
}

// Normalize validates a single raw record and returns its canonical form.
// It is a pure transform: every violated field is collected into one
// ValidationError, numeric fields are coerced to float64/int semantics and the
// timestamp is normalized to UTC.
func Normalize(raw RawRecord) (domain.TelemetryRecord, error) {
	var violations []domain.FieldError
	fail := func(field, reason string) {
		violations = append(violations, domain.FieldError{Field: field, Reason: reason})
	}

	record := domain.TelemetryRecord{}

	if id, ok := asString(raw["animal_id"]); ok && id != "" {
		record.AnimalID = id
	} else {
		fail("animal_id", "required")
	}

	if ts, ok := asTimestamp(raw["ts"]); ok {
		record.Timestamp = ts.UTC()
	} else {
		fail("ts", "required, RFC3339 or unix seconds")
	}

	if lat, ok := asFloat(raw["lat"]); ok {
		if lat < -90 || lat > 90 {
			fail("lat", fmt.Sprintf("out of range [-90,90]: %g", lat))
		} else {
			record.Lat = lat
		}
	} else {
		fail("lat", "required numeric")
	}

	if lon, ok := asFloat(raw["lon"]); ok {
		if lon < -180 || lon > 180 {
			fail("lon", fmt.Sprintf("out of range [-180,180]: %g", lon))
		} else {
			record.Lon = lon
		}
	} else {
		fail("lon", "required numeric")
	}

	if speed, ok := asFloat(raw["speed_kmh"]); ok {
		if speed < 0 {
			fail("speed_kmh", fmt.Sprintf("must be >= 0: %g", speed))
		} else {
			record.SpeedKmh = speed
		}
	} else {
		fail("speed_kmh", "required numeric")
	}

	if battery, ok := asFloat(raw["battery_v"]); ok {
		if battery <= 0 {
			fail("battery_v", fmt.Sprintf("must be > 0: %g", battery))
		} else {
			record.BatteryVolts = battery
		}
	} else {
		fail("battery_v", "required numeric")
	}

	if fix, ok := asInt(raw["fix_quality"]); ok {
		record.FixQuality = fix
	}
	if temp, ok := asFloat(raw["body_temp_c"]); ok {
		record.BodyTempC = &temp
	}
	if geofence, ok := asString(raw["geofence_id"]); ok {
		record.GeofenceID = geofence
	}
	if rssi, ok := asInt(raw["rssi"]); ok {
		record.RSSI = rssi
	}

	if len(violations) > 0 {
		return domain.TelemetryRecord{}, &domain.ValidationError{Fields: violations}
	}
	return record, nil
}

// NormalizeBatch applies Normalize to an ordered batch with partial
// acceptance. Within the batch, timestamps must be non-decreasing per animal;
// a record that regresses against an earlier accepted record for the same
// animal is rejected, not silently reordered.
func NormalizeBatch(batch []RawRecord) BatchResult {
	result := BatchResult{Accepted: make([]domain.TelemetryRecord, 0, len(batch))}
	lastSeen := make(map[string]time.Time)

	for i, raw := range batch {
		record, err := Normalize(raw)
		if err != nil {
			var verr *domain.ValidationError
			if ve, ok := err.(*domain.ValidationError); ok {
				verr = ve
			} else {
				verr = &domain.ValidationError{Fields: []domain.FieldError{{Field: "_record", Reason: err.Error()}}}
			}
			result.Rejected = append(result.Rejected, Rejection{Index: i, Err: verr})
			continue
		}

		if prev, ok := lastSeen[record.AnimalID]; ok && record.Timestamp.Before(prev) {
			result.Rejected = append(result.Rejected, Rejection{Index: i, Err: &domain.ValidationError{
				Fields: []domain.FieldError{{Field: "ts", Reason: "timestamp regresses within batch"}},
			}})
			continue
		}
		lastSeen[record.AnimalID] = record.Timestamp
		result.Accepted = append(result.Accepted, record)
	}
	return result
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asFloat(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	// ParseFloat accepts "NaN" and "Inf", and NaN compares false against
	// every bound. A non-finite reading can never satisfy a range invariant,
	// so it fails coercion outright.
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asInt(v interface{}) (int, bool) {
	if f, ok := asFloat(v); ok && f == math.Trunc(f) {
		return int(f), true
	}
	return 0, false
}

func asTimestamp(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		return time.Time{}, false
	case float64:
		if t <= 0 || math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, false
		}
		sec, frac := math.Modf(t)
		return time.Unix(int64(sec), int64(frac*1e9)), true
	case int64:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.Unix(t, 0), true
	case time.Time:
		return t, true
	default:
		return time.Time{}, false
	}
}
