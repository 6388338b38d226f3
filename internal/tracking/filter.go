package tracking

import (
	"math"

	"walk_tracker/internal/geo"
)

// DefaultAccuracyThreshold is the horizontal accuracy, in meters, at or above
// which a fix is considered too noisy to use.
const DefaultAccuracyThreshold = 20.0

// SampleDelta is what one accepted fix contributes to the session totals.
type SampleDelta struct {
	Distance  float64
	Elevation float64
	Speed     float64
	// Baseline marks the first fix of a session: it starts the route but
	// contributes nothing to the accumulators.
	Baseline bool
}

// SampleFilter validates raw fixes and derives deltas between consecutive
// accepted ones. It holds no history of its own.
type SampleFilter struct {
	AccuracyThreshold float64
}

func NewSampleFilter(threshold float64) SampleFilter {
	if threshold <= 0 {
		threshold = DefaultAccuracyThreshold
	}
	return SampleFilter{AccuracyThreshold: threshold}
}

// Accept returns the delta between previous and fix, or false when the fix
// must be dropped.
func (f SampleFilter) Accept(fix LocationFix, previous *LocationFix) (SampleDelta, bool) {
	// negative accuracy is how location services flag an invalid fix
	if fix.HorizontalAccuracy < 0 || fix.HorizontalAccuracy >= f.AccuracyThreshold {
		return SampleDelta{}, false
	}
	if !geo.ValidCoordinate(fix.Latitude, fix.Longitude) {
		return SampleDelta{}, false
	}
	if !finite(fix.Altitude) || !finite(fix.Speed) {
		return SampleDelta{}, false
	}
	if previous == nil {
		return SampleDelta{Baseline: true}, true
	}

	speed := fix.Speed
	if speed < 0 {
		speed = 0
	}
	return SampleDelta{
		Distance:  geo.Distance(previous.Latitude, previous.Longitude, fix.Latitude, fix.Longitude),
		Elevation: fix.Altitude - previous.Altitude,
		Speed:     speed,
	}, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
