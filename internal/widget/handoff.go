package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"walk_tracker/internal/persistence"
	"walk_tracker/internal/tracking"
)

const (
	keyLatestWalk  = "latestWalk"
	keyCurrentGoal = "currentGoal"

	DefaultGoalSteps = 5000
)

var ErrInvalidGoal = errors.New("goal must be a positive step count")

// LatestWalk is the compact record companion surfaces render. Route points
// are [lat, lon] pairs.
type LatestWalk struct {
	ID            string       `json:"id"`
	Date          time.Time    `json:"date"`
	StartTime     time.Time    `json:"startTime"`
	EndTime       time.Time    `json:"endTime"`
	Steps         int          `json:"steps"`
	Distance      float64      `json:"distance"`
	MaxSpeed      float64      `json:"maxSpeed"`
	ElevationGain float64      `json:"elevationGain"`
	ElevationLoss float64      `json:"elevationLoss"`
	Route         [][2]float64 `json:"route"`
	Name          *string      `json:"name,omitempty"`
}

// Handoff shares the latest finished walk and the current step goal with
// widgets through the shared KV store.
type Handoff struct {
	kv          persistence.KV
	defaultGoal int
	log         logrus.FieldLogger
}

func NewHandoff(kv persistence.KV, defaultGoal int, log logrus.FieldLogger) *Handoff {
	if defaultGoal <= 0 {
		defaultGoal = DefaultGoalSteps
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handoff{kv: kv, defaultGoal: defaultGoal, log: log.WithField("component", "widget")}
}

func (h *Handoff) PublishLatest(ctx context.Context, record tracking.WalkRecord) error {
	latest := LatestWalk{
		ID:            record.ID,
		Date:          record.Date,
		StartTime:     record.StartTime,
		EndTime:       record.EndTime,
		Steps:         record.StepCount,
		Distance:      record.DistanceMeters,
		MaxSpeed:      record.MaxSpeedMps,
		ElevationGain: record.ElevationGainMeters,
		ElevationLoss: record.ElevationLossMeters,
		Route:         make([][2]float64, len(record.Route)),
		Name:          record.DisplayName,
	}
	for i, c := range record.Route {
		latest.Route[i] = [2]float64{c.Latitude, c.Longitude}
	}

	data, err := json.Marshal(latest)
	if err != nil {
		return fmt.Errorf("encode latest walk: %w", err)
	}
	if err := h.kv.PutMany(ctx, map[string]string{keyLatestWalk: string(data)}); err != nil {
		return fmt.Errorf("publish latest walk: %w", err)
	}

	h.log.WithField("walk_id", record.ID).Debug("Latest walk handed off to widgets.")
	return nil
}

// ClearLatest removes the latest walk, for when history no longer has one.
func (h *Handoff) ClearLatest(ctx context.Context) error {
	if err := h.kv.Delete(ctx, keyLatestWalk); err != nil {
		return fmt.Errorf("clear latest walk: %w", err)
	}
	return nil
}

// Latest returns nil when nothing has been published.
func (h *Handoff) Latest(ctx context.Context) (*LatestWalk, error) {
	raw, ok, err := h.kv.Get(ctx, keyLatestWalk)
	if err != nil || !ok {
		return nil, err
	}
	var latest LatestWalk
	if err := json.Unmarshal([]byte(raw), &latest); err != nil {
		return nil, fmt.Errorf("decode latest walk: %w", err)
	}
	return &latest, nil
}

func (h *Handoff) SetGoalOverride(ctx context.Context, goal int) error {
	if goal <= 0 {
		return ErrInvalidGoal
	}
	return h.kv.PutMany(ctx, map[string]string{keyCurrentGoal: strconv.Itoa(goal)})
}

func (h *Handoff) ClearGoalOverride(ctx context.Context) error {
	return h.kv.Delete(ctx, keyCurrentGoal)
}

// GoalOverride reports the goal set by the user, if any.
func (h *Handoff) GoalOverride(ctx context.Context) (int, bool, error) {
	raw, ok, err := h.kv.Get(ctx, keyCurrentGoal)
	if err != nil || !ok {
		return 0, false, err
	}
	goal, err := strconv.Atoi(raw)
	if err != nil || goal <= 0 {
		return 0, false, fmt.Errorf("invalid stored goal %q", raw)
	}
	return goal, true, nil
}

// GoalTarget is the override when present, the default otherwise.
func (h *Handoff) GoalTarget(ctx context.Context) int {
	goal, ok, err := h.GoalOverride(ctx)
	if err != nil {
		h.log.WithError(err).Warn("Falling back to default goal.")
	}
	if !ok {
		return h.defaultGoal
	}
	return goal
}
