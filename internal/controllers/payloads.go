package controllers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"walk_tracker/internal/geo"
	"walk_tracker/internal/tracking"
)

// fixPayload is a location fix as sent by companion devices. The timestamp
// may be RFC3339 (zone optional, UTC assumed), epoch seconds, or absent.
type fixPayload struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Accuracy  float64   `json:"accuracy"`
	Speed     float64   `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *fixPayload) UnmarshalJSON(data []byte) error {
	// alias drops the method set so json.Unmarshal does not recurse
	type alias fixPayload
	aux := &struct {
		Timestamp json.RawMessage `json:"timestamp"`
		*alias
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	ts, err := parseTimestamp(aux.Timestamp)
	if err != nil {
		return err
	}
	p.Timestamp = ts
	return nil
}

func (p fixPayload) fix(now time.Time) tracking.LocationFix {
	ts := p.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return tracking.LocationFix{
		Latitude:           p.Latitude,
		Longitude:          p.Longitude,
		Altitude:           p.Altitude,
		HorizontalAccuracy: p.Accuracy,
		Speed:              p.Speed,
		Timestamp:          ts,
	}
}

// stepsPayload reports steps taken since the previous report.
type stepsPayload struct {
	Steps     int       `json:"steps" binding:"gte=0"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *stepsPayload) UnmarshalJSON(data []byte) error {
	type alias stepsPayload
	aux := &struct {
		Timestamp json.RawMessage `json:"timestamp"`
		*alias
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	ts, err := parseTimestamp(aux.Timestamp)
	if err != nil {
		return err
	}
	p.Timestamp = ts
	return nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}

	if raw[0] != '"' {
		secs, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %s: %w", raw, err)
		}
		return geo.FromEpochSeconds(secs), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return time.Time{}, nil
	}

	ts := s
	// no zone designator means the device sent UTC
	if !strings.HasSuffix(ts, "Z") && (len(ts) < 6 || !strings.ContainsAny(ts[len(ts)-6:], "+-")) {
		ts += "Z"
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"raw_timestamp": s,
			"parsed_string": ts,
		}).WithError(err).Debug("Failed to parse timestamp.")
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

type mediaPayload struct {
	Kind            tracking.MediaKind `json:"kind" binding:"required,oneof=camera gallery"`
	LocalIdentifier string             `json:"local_identifier" binding:"required"`
}
