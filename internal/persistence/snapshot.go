package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"walk_tracker/internal/geo"
	"walk_tracker/internal/tracking"
)

const (
	keyRoute         = "savedRoute"
	keyDistance      = "savedDistance"
	keyMaxSpeed      = "savedMaxSpeed"
	keyElevationGain = "savedElevationGain"
	keyElevationLoss = "savedElevationLoss"
	keyStepCount     = "savedStepCount"
	keyStartTime     = "savedStartTime"
	keySavedAt       = "savedAt"
	keyMedia         = "savedMedia"
	keyWalkID        = "savedWalkID"
	keyHasSavedWalk  = "hasSavedWalk"
)

var snapshotKeys = []string{
	keyRoute, keyDistance, keyMaxSpeed, keyElevationGain, keyElevationLoss,
	keyStepCount, keyStartTime, keySavedAt, keyMedia, keyWalkID, keyHasSavedWalk,
}

// SnapshotStore keeps the in-flight session in a KV store, one key per field.
type SnapshotStore struct {
	kv  KV
	log logrus.FieldLogger
}

func NewSnapshotStore(kv KV, log logrus.FieldLogger) *SnapshotStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SnapshotStore{kv: kv, log: log.WithField("component", "snapshot")}
}

func (s *SnapshotStore) SaveInFlight(ctx context.Context, snap tracking.InFlight) error {
	route := make([][4]float64, len(snap.Metrics.Route))
	for i, c := range snap.Metrics.Route {
		route[i] = [4]float64{c.Latitude, c.Longitude, c.Altitude, geo.EpochSeconds(c.Timestamp)}
	}
	routeJSON, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("encode route: %w", err)
	}
	media := snap.Media
	if media == nil {
		media = []tracking.MediaRef{}
	}
	mediaJSON, err := json.Marshal(media)
	if err != nil {
		return fmt.Errorf("encode media: %w", err)
	}

	start := snap.StartTime
	if start.IsZero() {
		start = snap.Metrics.StartTime
	}

	return s.kv.PutMany(ctx, map[string]string{
		keyRoute:         string(routeJSON),
		keyDistance:      formatFloat(snap.Metrics.TotalDistanceMeters),
		keyMaxSpeed:      formatFloat(snap.Metrics.MaxSpeedMps),
		keyElevationGain: formatFloat(snap.Metrics.ElevationGainMeters),
		keyElevationLoss: formatFloat(snap.Metrics.ElevationLossMeters),
		keyStepCount:     strconv.Itoa(snap.Metrics.StepCount),
		keyStartTime:     formatFloat(geo.EpochSeconds(start)),
		keySavedAt:       formatFloat(geo.EpochSeconds(snap.SavedAt)),
		keyMedia:         string(mediaJSON),
		keyWalkID:        snap.WalkID,
		keyHasSavedWalk:  "true",
	})
}

// LoadInFlight returns nil, nil when no session is stored or when the stored
// one cannot be decoded; the latter is logged.
func (s *SnapshotStore) LoadInFlight(ctx context.Context) (*tracking.InFlight, error) {
	values, err := s.kv.GetMany(ctx, snapshotKeys)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if values[keyHasSavedWalk] != "true" {
		return nil, nil
	}

	snap, err := decodeSnapshot(values)
	if err != nil {
		s.log.WithError(err).Warn("Discarding unreadable in-flight snapshot.")
		return nil, nil
	}
	return snap, nil
}

// ClearInFlight marks the snapshot gone before deleting its keys. Either
// write succeeding is enough for LoadInFlight to find nothing.
func (s *SnapshotStore) ClearInFlight(ctx context.Context) error {
	markErr := s.kv.PutMany(ctx, map[string]string{keyHasSavedWalk: "false"})
	deleteErr := s.kv.Delete(ctx, snapshotKeys...)
	if markErr == nil || deleteErr == nil {
		if deleteErr != nil {
			s.log.WithError(deleteErr).Warn("Snapshot marked cleared but its keys remain.")
		}
		return nil
	}
	return fmt.Errorf("clear snapshot: %w", errors.Join(markErr, deleteErr))
}

func decodeSnapshot(values map[string]string) (*tracking.InFlight, error) {
	var err error
	float := func(key string) float64 {
		if err != nil {
			return 0
		}
		raw, ok := values[key]
		if !ok {
			err = fmt.Errorf("%w: missing %s", tracking.ErrSnapshotCorrupt, key)
			return 0
		}
		v, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			err = fmt.Errorf("%w: %s: %v", tracking.ErrSnapshotCorrupt, key, perr)
		}
		return v
	}

	snap := &tracking.InFlight{}
	m := &snap.Metrics
	m.TotalDistanceMeters = float(keyDistance)
	m.MaxSpeedMps = float(keyMaxSpeed)
	m.ElevationGainMeters = float(keyElevationGain)
	m.ElevationLossMeters = float(keyElevationLoss)
	steps := float(keyStepCount)
	start := float(keyStartTime)
	savedAt := float(keySavedAt)
	if err != nil {
		return nil, err
	}
	m.StepCount = int(steps)
	snap.StartTime = geo.FromEpochSeconds(start)
	snap.SavedAt = geo.FromEpochSeconds(savedAt)
	m.StartTime = snap.StartTime

	raw, ok := values[keyRoute]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", tracking.ErrSnapshotCorrupt, keyRoute)
	}
	var route [][]float64
	if err := json.Unmarshal([]byte(raw), &route); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", tracking.ErrSnapshotCorrupt, keyRoute, err)
	}
	m.Route = make([]tracking.Coordinate, 0, len(route))
	for i, p := range route {
		if len(p) < 2 {
			return nil, fmt.Errorf("%w: route point %d has %d values", tracking.ErrSnapshotCorrupt, i, len(p))
		}
		c := tracking.Coordinate{Latitude: p[0], Longitude: p[1]}
		if len(p) > 2 {
			c.Altitude = p[2]
		}
		if len(p) > 3 {
			c.Timestamp = geo.FromEpochSeconds(p[3])
		}
		m.Route = append(m.Route, c)
	}

	snap.WalkID = values[keyWalkID]
	if raw, ok := values[keyMedia]; ok {
		if err := json.Unmarshal([]byte(raw), &snap.Media); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", tracking.ErrSnapshotCorrupt, keyMedia, err)
		}
	}
	return snap, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
