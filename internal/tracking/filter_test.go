package tracking

import (
	"math"
	"testing"
	"time"
)

func fixAt(lat, lon, alt float64) LocationFix {
	return LocationFix{
		Latitude:           lat,
		Longitude:          lon,
		Altitude:           alt,
		HorizontalAccuracy: 5,
		Speed:              1.4,
		Timestamp:          time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestSampleFilterRejectsNoisyFixes(t *testing.T) {
	f := NewSampleFilter(0)
	if f.AccuracyThreshold != DefaultAccuracyThreshold {
		t.Fatalf("expected default threshold, got %v", f.AccuracyThreshold)
	}

	cases := map[string]LocationFix{
		"at threshold":      {Latitude: 31.77, Longitude: 35.23, HorizontalAccuracy: 20},
		"above threshold":   {Latitude: 31.77, Longitude: 35.23, HorizontalAccuracy: 65},
		"negative accuracy": {Latitude: 31.77, Longitude: 35.23, HorizontalAccuracy: -1},
		"latitude range":    {Latitude: 91, Longitude: 35.23, HorizontalAccuracy: 5},
		"nan longitude":     {Latitude: 31.77, Longitude: math.NaN(), HorizontalAccuracy: 5},
		"nan altitude":      {Latitude: 31.77, Longitude: 35.23, Altitude: math.NaN(), HorizontalAccuracy: 5},
		"infinite altitude": {Latitude: 31.77, Longitude: 35.23, Altitude: math.Inf(-1), HorizontalAccuracy: 5},
		"infinite speed":    {Latitude: 31.77, Longitude: 35.23, Speed: math.Inf(1), HorizontalAccuracy: 5},
		"nan speed":         {Latitude: 31.77, Longitude: 35.23, Speed: math.NaN(), HorizontalAccuracy: 5},
	}
	for name, fix := range cases {
		if _, ok := f.Accept(fix, nil); ok {
			t.Fatalf("%s: expected fix to be rejected", name)
		}
	}
}

func TestSampleFilterBaselineAndDelta(t *testing.T) {
	f := NewSampleFilter(20)
	first := fixAt(31.7767, 35.2345, 800)

	delta, ok := f.Accept(first, nil)
	if !ok || !delta.Baseline {
		t.Fatalf("expected first fix to be an accepted baseline, got %+v ok=%v", delta, ok)
	}
	if delta.Distance != 0 || delta.Elevation != 0 {
		t.Fatalf("baseline must not contribute, got %+v", delta)
	}

	second := fixAt(31.7777, 35.2345, 795)
	second.Speed = -1
	delta, ok = f.Accept(second, &first)
	if !ok || delta.Baseline {
		t.Fatalf("expected accepted non-baseline delta, got %+v ok=%v", delta, ok)
	}
	if delta.Distance < 105 || delta.Distance > 115 {
		t.Fatalf("expected ~111m, got %v", delta.Distance)
	}
	if delta.Elevation != -5 {
		t.Fatalf("expected -5m elevation delta, got %v", delta.Elevation)
	}
	if delta.Speed != 0 {
		t.Fatalf("expected negative speed clamped to 0, got %v", delta.Speed)
	}
}

func TestSampleFilterNonFiniteFixNeverReachesTotals(t *testing.T) {
	acc := NewAccumulator(NewSampleFilter(20))
	acc.Reset(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	acc.ApplyFix(fixAt(31.7767, 35.2345, 800))

	bad := fixAt(31.7777, 35.2345, 800)
	bad.Speed = math.Inf(1)
	if acc.ApplyFix(bad) {
		t.Fatalf("expected infinite speed rejected")
	}
	bad = fixAt(31.7777, 35.2345, math.NaN())
	if acc.ApplyFix(bad) {
		t.Fatalf("expected NaN altitude rejected")
	}

	m := acc.Metrics()
	if math.IsInf(m.MaxSpeedMps, 0) || math.IsNaN(m.ElevationGainMeters) || math.IsNaN(m.ElevationLossMeters) {
		t.Fatalf("non-finite values leaked into metrics: %+v", m)
	}
	if len(m.Route) != 1 {
		t.Fatalf("expected only the baseline in the route, got %d", len(m.Route))
	}
}
