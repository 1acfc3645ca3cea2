// Package features computes rolling behaviour windows per animal from
// normalized telemetry.
package features

import (
	"time"

	"example.com/risk/internal/domain"
)

// sample is one contribution to the rolling window.
type sample struct {
	Timestamp  time.Time
	DistanceKm float64
	SpeedKmh   float64
	BodyTempC  *float64
}

// WindowState is the rolling window for a single animal. It is owned by
// exactly one worker at a time; moving an animal between workers goes through
// Snapshot and Restore, never through shared access.
type WindowState struct {
	animalID    string
	window      time.Duration
	samples     []sample
	distanceSum float64
	lastSeen    time.Time
}

// StateSnapshot is the serializable form of a WindowState, used to transfer
// window ownership between workers.
type StateSnapshot struct {
	AnimalID  string         `json:"animal_id"`
	WindowSec float64        `json:"window_sec"`
	Samples   []SampleRecord `json:"samples"`
	LastSeen  time.Time      `json:"last_seen"`
}

// SampleRecord mirrors one retained sample in a StateSnapshot.
type SampleRecord struct {
	Timestamp  time.Time `json:"ts"`
	DistanceKm float64   `json:"distance_km"`
	SpeedKmh   float64   `json:"speed_kmh"`
	BodyTempC  *float64  `json:"body_temp_c,omitempty"`
}

// ScoreFunc maps the retained window contents plus the newest reading to an
// anomaly score. Implementations must be deterministic for identical window
// contents and must return a value in [0,1].
type ScoreFunc func(window []Observation, current Observation) float64

// Observation is the read-only view of one sample handed to a ScoreFunc.
type Observation struct {
	Timestamp time.Time
	SpeedKmh  float64
	BodyTempC *float64
}

// Deriver turns normalized telemetry into FeatureWindow values, maintaining
// one WindowState per animal. It is not safe for concurrent use; callers
// partition work by animal ID across Deriver instances instead of locking.
type Deriver struct {
	window time.Duration
	score  ScoreFunc
	states map[string]*WindowState
}

// NewDeriver constructs a Deriver with the given rolling window duration.
// A nil score function selects DefaultScore.
func NewDeriver(window time.Duration, score ScoreFunc) *Deriver {
	if score == nil {
		score = DefaultScore
	}
	return &Deriver{
		window: window,
		score:  score,
		states: make(map[string]*WindowState),
	}
}

// Derive processes one normalized record and returns the feature window as of
// that record. The same update step serves streaming and batch replay: given
// a cold state and an identical ordered batch, the output sequence is
// identical.
func (d *Deriver) Derive(record domain.TelemetryRecord) domain.FeatureWindow {
	state, ok := d.states[record.AnimalID]
	if !ok {
		state = &WindowState{animalID: record.AnimalID, window: d.window}
		d.states[record.AnimalID] = state
	}
	return state.update(record, d.score)
}

// DeriveBatch replays an ordered batch through Derive.
func (d *Deriver) DeriveBatch(records []domain.TelemetryRecord) []domain.FeatureWindow {
	out := make([]domain.FeatureWindow, 0, len(records))
	for _, record := range records {
		out = append(out, d.Derive(record))
	}
	return out
}

// Snapshot extracts the state for one animal and removes it from this
// Deriver, so ownership moves with the snapshot. Returns nil if the animal
// has no state here.
func (d *Deriver) Snapshot(animalID string) *StateSnapshot {
	state, ok := d.states[animalID]
	if !ok {
		return nil
	}
	delete(d.states, animalID)

	snap := &StateSnapshot{
		AnimalID:  state.animalID,
		WindowSec: state.window.Seconds(),
		LastSeen:  state.lastSeen,
		Samples:   make([]SampleRecord, 0, len(state.samples)),
	}
	for _, s := range state.samples {
		snap.Samples = append(snap.Samples, SampleRecord(s))
	}
	return snap
}

// Restore installs a transferred window state, replacing any existing state
// for that animal.
func (d *Deriver) Restore(snap *StateSnapshot) {
	if snap == nil {
		return
	}
	state := &WindowState{
		animalID: snap.AnimalID,
		window:   time.Duration(snap.WindowSec * float64(time.Second)),
		lastSeen: snap.LastSeen,
		samples:  make([]sample, 0, len(snap.Samples)),
	}
	for _, s := range snap.Samples {
		state.samples = append(state.samples, sample(s))
		state.distanceSum += s.DistanceKm
	}
	d.states[snap.AnimalID] = state
}

// update applies one record to the window: clamp the inter-sample delta at
// zero (a regressing timestamp is a flagged gap, not an error), accumulate
// speed*delta distance, evict samples older than the window, then score.
func (s *WindowState) update(record domain.TelemetryRecord, score ScoreFunc) domain.FeatureWindow {
	// A regressing timestamp is clamped onto the window's tail: zero delta,
	// flagged, and the sample takes the last seen time so the deque stays
	// ordered.
	effective := record.Timestamp
	var deltaSec float64
	gap := false
	if !s.lastSeen.IsZero() {
		deltaSec = record.Timestamp.Sub(s.lastSeen).Seconds()
		if deltaSec < 0 {
			deltaSec = 0
			gap = true
			effective = s.lastSeen
		}
	}
	s.lastSeen = effective

	distanceKm := record.SpeedKmh * deltaSec / 3600.0

	s.samples = append(s.samples, sample{
		Timestamp:  effective,
		DistanceKm: distanceKm,
		SpeedKmh:   record.SpeedKmh,
		BodyTempC:  record.BodyTempC,
	})
	s.distanceSum += distanceKm

	// Evict from the front; the first in-window sample ends the scan.
	cutoff := effective.Add(-s.window)
	evicted := 0
	for evicted < len(s.samples)-1 && !s.samples[evicted].Timestamp.After(cutoff) {
		s.distanceSum -= s.samples[evicted].DistanceKm
		evicted++
	}
	if evicted > 0 {
		s.samples = s.samples[evicted:]
	}

	observations := make([]Observation, 0, len(s.samples))
	var windowDeltaSec float64
	for i, smp := range s.samples {
		observations = append(observations, Observation{
			Timestamp: smp.Timestamp,
			SpeedKmh:  smp.SpeedKmh,
			BodyTempC: smp.BodyTempC,
		})
		if i > 0 {
			windowDeltaSec += smp.Timestamp.Sub(s.samples[i-1].Timestamp).Seconds()
		}
	}
	current := observations[len(observations)-1]

	return domain.FeatureWindow{
		AnimalID:      s.animalID,
		WindowEnd:     record.Timestamp,
		DistanceKm:    s.distanceSum,
		TimeDeltaSec:  windowDeltaSec,
		GeofenceDwell: record.InGeofence(),
		AnomalyScore:  clamp01(score(observations, current)),
		GapFlag:       gap,
		SampleCount:   len(s.samples),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
