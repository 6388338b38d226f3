package tracking

import "time"

// Accumulator owns the cumulative metrics of the current session. It is not
// safe for concurrent use; the Machine is its only caller.
type Accumulator struct {
	filter  SampleFilter
	metrics SessionMetrics
	last    *LocationFix
}

func NewAccumulator(filter SampleFilter) *Accumulator {
	return &Accumulator{filter: filter}
}

// ApplyFix folds fix into the session and reports whether it was accepted.
func (a *Accumulator) ApplyFix(fix LocationFix) bool {
	delta, ok := a.filter.Accept(fix, a.last)
	if !ok {
		return false
	}

	a.metrics.Route = append(a.metrics.Route, coordinateOf(fix))
	if !delta.Baseline {
		a.metrics.TotalDistanceMeters += delta.Distance
		// gain and loss are separate running totals, never netted
		if delta.Elevation > 0 {
			a.metrics.ElevationGainMeters += delta.Elevation
		} else {
			a.metrics.ElevationLossMeters -= delta.Elevation
		}
		if delta.Speed > a.metrics.MaxSpeedMps {
			a.metrics.MaxSpeedMps = delta.Speed
		}
	}

	accepted := fix
	a.last = &accepted
	return true
}

// ApplyStepCount replaces the step count with the feed's latest cumulative value.
func (a *Accumulator) ApplyStepCount(count int) {
	if count < 0 {
		return
	}
	a.metrics.StepCount = count
}

// Reset starts a brand-new session at start.
func (a *Accumulator) Reset(start time.Time) {
	a.metrics = SessionMetrics{StartTime: start}
	a.last = nil
}

// Restore rehydrates the accumulator from a persisted snapshot. The last
// route vertex becomes the baseline for the next fix.
func (a *Accumulator) Restore(m SessionMetrics) {
	a.metrics = m.Clone()
	a.last = nil
	if n := len(m.Route); n > 0 {
		c := m.Route[n-1]
		a.last = &LocationFix{
			Latitude:  c.Latitude,
			Longitude: c.Longitude,
			Altitude:  c.Altitude,
			Timestamp: c.Timestamp,
		}
	}
}

// Empty reports whether nothing has been accumulated since the last Reset.
func (a *Accumulator) Empty() bool {
	return len(a.metrics.Route) == 0 && a.metrics.StepCount == 0
}

func (a *Accumulator) Metrics() SessionMetrics {
	return a.metrics.Clone()
}
