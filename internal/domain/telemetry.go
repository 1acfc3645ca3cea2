// Package domain defines the business entities and workflows for the risk service.
package domain

import "time"

// TelemetryRecord is the canonical device reading after normalization.
// All timestamps are UTC; units are kilometres per hour, volts and degrees Celsius.
type TelemetryRecord struct {
	AnimalID     string
	Timestamp    time.Time
	Lat          float64
	Lon          float64
	SpeedKmh     float64
	FixQuality   int
	BatteryVolts float64
	BodyTempC    *float64
	GeofenceID   string
	RSSI         int
}

// InGeofence reports whether the reading carries a geofence assignment.
func (r TelemetryRecord) InGeofence() bool {
	return r.GeofenceID != ""
}

// AnimalProfile is the registration record for an insured animal. Immutable
// after registration except for ownership transfer.
type AnimalProfile struct {
	ID          string
	Sex         string
	Breed       string
	BreedClass  string
	DateOfBirth time.Time
	OwnerID     string
	Brand       string
	TagID       string
	Region      string
}

// FeatureWindow is the rolling behaviour summary derived for one animal at one
// point in time. Later windows supersede earlier ones; a window is never mutated.
type FeatureWindow struct {
	AnimalID      string
	WindowEnd     time.Time
	DistanceKm    float64
	TimeDeltaSec  float64
	GeofenceDwell bool
	AnomalyScore  float64
	GapFlag       bool
	SampleCount   int
}
