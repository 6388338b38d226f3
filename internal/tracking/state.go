package tracking

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Phase is the lifecycle position of the session machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhasePaused
	PhaseFinished
	PhaseCancelled
)

var phaseNames = [...]string{"idle", "active", "paused", "finished", "cancelled"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// InProgress reports whether a session is open (active or paused).
func (p Phase) InProgress() bool {
	return p == PhaseActive || p == PhasePaused
}

// State is an immutable snapshot of the machine published to observers.
// Metrics and Media are populated while a session is in progress; Record only
// after a successful finish.
type State struct {
	Phase     Phase          `json:"phase"`
	Metrics   SessionMetrics `json:"metrics"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	PausedAt  *time.Time     `json:"paused_at,omitempty"`
	Media     []MediaRef     `json:"media,omitempty"`
	Record    *WalkRecord    `json:"record,omitempty"`
}

func (s State) clone() State {
	out := s
	out.Metrics = s.Metrics.Clone()
	out.Media = slices.Clone(s.Media)
	return out
}

// Persistence is the durable storage the machine writes through.
type Persistence interface {
	SaveInFlight(ctx context.Context, snapshot InFlight) error
	// LoadInFlight returns nil, nil when there is nothing recoverable,
	// including when the stored snapshot is corrupt.
	LoadInFlight(ctx context.Context) (*InFlight, error)
	ClearInFlight(ctx context.Context) error
	SaveFinal(ctx context.Context, record WalkRecord) error
	LoadHistory(ctx context.Context) ([]WalkRecord, error)
	DeleteRecord(ctx context.Context, id string) error
}

// FixSource is a location service the machine switches on while active.
type FixSource interface {
	Start(deliver func(LocationFix)) error
	Stop()
}

// StepFeed is a pedometer reporting cumulative steps since a start time.
type StepFeed interface {
	Query(ctx context.Context, from, to time.Time) (int, error)
	Start(from time.Time, deliver func(int)) error
	Stop()
}

// Handoff receives every finished walk for companion surfaces (widgets).
type Handoff interface {
	PublishLatest(ctx context.Context, record WalkRecord) error
}
