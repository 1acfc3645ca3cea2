package features

import "math"

// Reference scales for turning absolute deviations into a unit-less score.
// A deviation at or beyond the scale saturates that signal's contribution.
const (
	speedDeviationScaleKmh = 15.0
	tempDeviationScaleC    = 2.5
)

// DefaultScore is the built-in anomaly policy: the newest reading's speed and
// body temperature are compared against the rolling window mean, each
// deviation is normalized by a fixed scale, and the signals are averaged.
// Deterministic given the same window contents; output is in [0,1].
func DefaultScore(window []Observation, current Observation) float64 {
	if len(window) < 2 {
		// A single sample has no baseline to deviate from.
		return 0
	}

	var speedSum, tempSum float64
	tempCount := 0
	for _, obs := range window {
		speedSum += obs.SpeedKmh
		if obs.BodyTempC != nil {
			tempSum += *obs.BodyTempC
			tempCount++
		}
	}

	speedMean := speedSum / float64(len(window))
	speedScore := math.Abs(current.SpeedKmh-speedMean) / speedDeviationScaleKmh
	if speedScore > 1 {
		speedScore = 1
	}

	if current.BodyTempC == nil || tempCount < 2 {
		return speedScore
	}

	tempMean := tempSum / float64(tempCount)
	tempScore := math.Abs(*current.BodyTempC-tempMean) / tempDeviationScaleC
	if tempScore > 1 {
		tempScore = 1
	}

	return (speedScore + tempScore) / 2
}
