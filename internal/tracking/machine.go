package tracking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultCheckpointEvery = 10
	defaultEventBuffer     = 256
	writerBuffer           = 16
	clearAttempts          = 3
)

// Deps are the collaborators injected into a Machine. Only Persistence is
// required.
type Deps struct {
	Persistence Persistence
	Fixes       FixSource
	Steps       StepFeed
	Handoff     Handoff
	Logger      logrus.FieldLogger
	Clock       func() time.Time
	NewID       func() string
}

// Options tune the machine. Zero values select defaults.
type Options struct {
	AccuracyThreshold float64
	// CheckpointEvery queues an in-flight snapshot after this many accepted
	// fixes while active.
	CheckpointEvery int
	// SnapshotMaxAge discards a recovered snapshot older than this. Zero
	// keeps snapshots forever.
	SnapshotMaxAge time.Duration
	EventBuffer    int
}

type eventKind int

const (
	eventFix eventKind = iota
	eventSteps
	eventCommand
)

func (k eventKind) String() string {
	switch k {
	case eventFix:
		return "fix"
	case eventSteps:
		return "steps"
	default:
		return "command"
	}
}

type event struct {
	kind  eventKind
	fix   LocationFix
	steps int
	cmd   *command
}

type command struct {
	op    string
	ctx   context.Context
	media MediaRef
	reply chan commandResult
}

type commandResult struct {
	state State
	err   error
}

// Machine is the session lifecycle state machine. A single goroutine owns the
// accumulator and handles fixes, step counts and commands in arrival order,
// so concurrent producers never race on the metrics.
type Machine struct {
	deps   Deps
	opts   Options
	log    logrus.FieldLogger
	events chan event
	writer *writer

	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// owned by the run goroutine
	acc             *Accumulator
	phase           Phase
	startedAt       time.Time
	pausedAt        time.Time
	media           []MediaRef
	final           *WalkRecord
	sinceCheckpoint int
	walkID          string
	// stepOffset is added to live step counts when the feed's history is
	// shorter than the recovered session, e.g. a pedometer that restarted.
	stepOffset int

	mu      sync.RWMutex
	current State
	subs    map[chan State]struct{}
	done    bool
}

// New builds a machine and recovers any in-flight session left by a previous
// process. A recovered session always comes back paused.
func New(ctx context.Context, deps Deps, opts Options) (*Machine, error) {
	if deps.Persistence == nil {
		return nil, errors.New("tracking: persistence is required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = defaultCheckpointEvery
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}

	m := &Machine{
		deps:    deps,
		opts:    opts,
		log:     deps.Logger.WithField("component", "session"),
		events:  make(chan event, opts.EventBuffer),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		acc:     NewAccumulator(NewSampleFilter(opts.AccuracyThreshold)),
		subs:    make(map[chan State]struct{}),
	}
	m.writer = newWriter(writerBuffer, m.log)
	m.recover(ctx)
	m.publish()

	go m.run()
	return m, nil
}

func (m *Machine) recover(ctx context.Context) {
	snap, err := m.deps.Persistence.LoadInFlight(ctx)
	if err != nil {
		m.log.WithError(err).Warn("Could not read in-flight snapshot, starting idle.")
		return
	}
	if snap == nil {
		return
	}

	now := m.deps.Clock()
	if m.opts.SnapshotMaxAge > 0 && !snap.SavedAt.IsZero() && now.Sub(snap.SavedAt) > m.opts.SnapshotMaxAge {
		m.log.WithFields(logrus.Fields{
			"saved_at": snap.SavedAt.Format(time.RFC3339),
			"max_age":  m.opts.SnapshotMaxAge.String(),
		}).Info("Discarding stale in-flight session.")
		if err := m.deps.Persistence.ClearInFlight(ctx); err != nil {
			m.log.WithError(err).Warn("Failed to clear stale in-flight session.")
		}
		return
	}

	m.acc.Restore(snap.Metrics)
	m.walkID = snap.WalkID
	if m.walkID == "" {
		m.walkID = m.deps.NewID()
	}
	m.startedAt = snap.StartTime
	if m.startedAt.IsZero() {
		m.startedAt = snap.Metrics.StartTime
	}
	m.pausedAt = snap.SavedAt
	if m.pausedAt.IsZero() {
		m.pausedAt = now
	}
	m.media = slices.Clone(snap.Media)
	m.phase = PhasePaused

	m.log.WithFields(logrus.Fields{
		"started_at":  m.startedAt.Format(time.RFC3339),
		"route_count": len(snap.Metrics.Route),
		"distance_m":  fmt.Sprintf("%.2f", snap.Metrics.TotalDistanceMeters),
	}).Info("Recovered in-flight session, waiting for the user to resume.")
}

func (m *Machine) run() {
	defer close(m.stopped)
	for {
		select {
		case <-m.quit:
			if m.phase == PhaseActive {
				m.stopSources()
			}
			m.closeSubscribers()
			return
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

func (m *Machine) handle(ev event) {
	switch ev.kind {
	case eventFix:
		m.onFix(ev.fix)
	case eventSteps:
		m.onSteps(ev.steps)
	case eventCommand:
		state, err := m.exec(ev.cmd)
		ev.cmd.reply <- commandResult{state: state, err: err}
	}
}

// Start opens a new session. It fails with ErrConcurrentSession while another
// session is active or paused.
func (m *Machine) Start(ctx context.Context) (State, error) {
	return m.submit(ctx, "start", MediaRef{})
}

// Pause persists the session and stops consuming fixes.
func (m *Machine) Pause(ctx context.Context) (State, error) {
	return m.submit(ctx, "pause", MediaRef{})
}

// Resume reloads the persisted snapshot and continues tracking.
func (m *Machine) Resume(ctx context.Context) (State, error) {
	return m.submit(ctx, "resume", MediaRef{})
}

// Stop finishes the session and writes its WalkRecord to history.
func (m *Machine) Stop(ctx context.Context) (State, error) {
	return m.submit(ctx, "stop", MediaRef{})
}

// Cancel discards the session without producing a WalkRecord.
func (m *Machine) Cancel(ctx context.Context) (State, error) {
	return m.submit(ctx, "cancel", MediaRef{})
}

// AttachMedia adds a photo reference to the session in progress.
func (m *Machine) AttachMedia(ctx context.Context, ref MediaRef) (State, error) {
	return m.submit(ctx, "attach media", ref)
}

// DeliverFix hands a location fix to the machine without blocking.
func (m *Machine) DeliverFix(fix LocationFix) {
	m.deliver(event{kind: eventFix, fix: fix})
}

// DeliverSteps hands the pedometer's cumulative count to the machine without blocking.
func (m *Machine) DeliverSteps(count int) {
	m.deliver(event{kind: eventSteps, steps: count})
}

// State returns the latest published snapshot.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.clone()
}

// Subscribe returns a channel that always holds the most recent state; older
// undelivered states are dropped. The returned func unsubscribes and closes
// the channel. Received states are shared and must be treated as read-only.
func (m *Machine) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	m.subs[ch] = struct{}{}
	ch <- m.current
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
	}
}

// Close stops the machine, its sources and the persistence writer. An
// in-progress session stays in persistence for the next process to recover.
func (m *Machine) Close() error {
	m.closeOnce.Do(func() {
		close(m.quit)
		<-m.stopped
		m.writer.close()
	})
	return nil
}

func (m *Machine) submit(ctx context.Context, op string, media MediaRef) (State, error) {
	cmd := &command{op: op, ctx: ctx, media: media, reply: make(chan commandResult, 1)}
	select {
	case m.events <- event{kind: eventCommand, cmd: cmd}:
	case <-ctx.Done():
		return m.State(), ctx.Err()
	case <-m.quit:
		return m.State(), ErrClosed
	}

	select {
	case res := <-cmd.reply:
		return res.state, res.err
	case <-m.stopped:
		return m.State(), ErrClosed
	}
}

func (m *Machine) deliver(ev event) {
	select {
	case <-m.quit:
		return
	default:
	}
	select {
	case m.events <- ev:
	default:
		m.log.WithField("kind", ev.kind.String()).Warn("Session event buffer full, dropping delivery.")
	}
}

func (m *Machine) exec(cmd *command) (State, error) {
	var err error
	switch cmd.op {
	case "start":
		err = m.start(cmd.ctx)
	case "pause":
		err = m.pause(cmd.ctx)
	case "resume":
		err = m.resume(cmd.ctx)
	case "stop":
		err = m.stop(cmd.ctx)
	case "cancel":
		err = m.cancel(cmd.ctx)
	case "attach media":
		err = m.attach(cmd.media)
	default:
		err = fmt.Errorf("tracking: unknown command %q", cmd.op)
	}
	if err != nil {
		m.log.WithFields(logrus.Fields{"op": cmd.op, "phase": m.phase.String()}).WithError(err).Info("Session command rejected.")
	}
	return m.State(), err
}

func (m *Machine) start(ctx context.Context) error {
	if m.phase.InProgress() {
		return fmt.Errorf("%w (started %s)", ErrConcurrentSession, m.startedAt.Format(time.RFC3339))
	}

	now := m.deps.Clock()
	m.acc.Reset(now)
	m.startedAt = now
	m.pausedAt = time.Time{}
	m.media = nil
	m.final = nil
	m.sinceCheckpoint = 0
	m.stepOffset = 0
	m.walkID = m.deps.NewID()
	m.phase = PhaseActive

	m.saveInFlight(ctx, "start")
	m.startSources(now)
	m.publish()

	m.log.WithField("started_at", now.Format(time.RFC3339)).Info("Walk session started.")
	return nil
}

func (m *Machine) pause(ctx context.Context) error {
	if m.phase != PhaseActive {
		return &TransitionError{Op: "pause", From: m.phase}
	}

	// the phase flips before the write, so no fix queued behind this
	// command can be applied to the snapshot being persisted
	m.stopSources()
	m.phase = PhasePaused
	m.pausedAt = m.deps.Clock()
	m.saveInFlight(ctx, "pause")
	m.publish()

	m.log.WithField("distance_m", fmt.Sprintf("%.2f", m.acc.metrics.TotalDistanceMeters)).Info("Walk session paused and saved.")
	return nil
}

func (m *Machine) resume(ctx context.Context) error {
	if m.phase != PhasePaused {
		return &TransitionError{Op: "resume", From: m.phase}
	}

	// memory is never older than the snapshot while the machine lives; the
	// snapshot is only consulted when there is nothing in memory
	if m.acc.Empty() && len(m.media) == 0 {
		m.reload(ctx)
	}

	now := m.deps.Clock()
	if m.deps.Steps != nil {
		steps, err := m.deps.Steps.Query(ctx, m.startedAt, now)
		if err != nil {
			m.log.WithError(err).Warn("Step history query failed on resume.")
		} else {
			m.alignSteps(steps)
		}
	}

	m.phase = PhaseActive
	m.pausedAt = time.Time{}
	m.sinceCheckpoint = 0
	m.saveInFlight(ctx, "resume")
	m.startSources(m.startedAt)
	m.publish()

	m.log.WithField("started_at", m.startedAt.Format(time.RFC3339)).Info("Walk session resumed.")
	return nil
}

func (m *Machine) reload(ctx context.Context) {
	var snap *InFlight
	err := m.writer.do(ctx, "load", func(ctx context.Context) error {
		var loadErr error
		snap, loadErr = m.deps.Persistence.LoadInFlight(ctx)
		return loadErr
	})
	switch {
	case err != nil:
		m.log.WithError(err).Warn("Could not reload in-flight snapshot, resuming from memory.")
	case snap == nil:
		m.log.Info("No in-flight snapshot found, resuming from memory.")
	default:
		m.acc.Restore(snap.Metrics)
		if !snap.StartTime.IsZero() {
			m.startedAt = snap.StartTime
		}
		if snap.WalkID != "" {
			m.walkID = snap.WalkID
		}
		m.media = slices.Clone(snap.Media)
	}
}

// alignSteps takes the feed's count since the session start. A feed that
// knows fewer steps than the session already holds is offset rather than
// allowed to lower the count.
func (m *Machine) alignSteps(feed int) {
	current := m.acc.metrics.StepCount
	if feed >= current {
		m.stepOffset = 0
		m.acc.ApplyStepCount(feed)
		return
	}
	m.stepOffset = current - feed
	m.log.WithFields(logrus.Fields{
		"feed_steps":    feed,
		"session_steps": current,
	}).Info("Step feed is behind the recovered session, offsetting live counts.")
}

func (m *Machine) stop(ctx context.Context) error {
	if !m.phase.InProgress() {
		return &TransitionError{Op: "stop", From: m.phase}
	}

	now := m.deps.Clock()
	metrics := m.acc.Metrics()
	if m.walkID == "" {
		m.walkID = m.deps.NewID()
	}
	record := WalkRecord{
		ID:                  m.walkID,
		Date:                now,
		StartTime:           m.startedAt,
		EndTime:             now,
		StepCount:           metrics.StepCount,
		DistanceMeters:      metrics.TotalDistanceMeters,
		MaxSpeedMps:         metrics.MaxSpeedMps,
		ElevationGainMeters: metrics.ElevationGainMeters,
		ElevationLossMeters: metrics.ElevationLossMeters,
		Route:               metrics.Route,
		AttachedMedia:       slices.Clone(m.media),
	}

	err := m.writer.do(ctx, "final", func(ctx context.Context) error {
		return m.deps.Persistence.SaveFinal(ctx, record)
	})
	switch {
	case errors.Is(err, ErrDuplicateWalk):
		// an earlier stop saved it but the snapshot outlived the clear
		m.log.WithField("walk_id", record.ID).Info("Walk already in history, finishing without a second write.")
	case err != nil:
		m.log.WithError(err).WithField("walk_id", record.ID).Error("Failed to save finished walk.")
		return fmt.Errorf("%w: %w", ErrWalkNotSaved, err)
	}

	m.stopSources()
	m.clearInFlight(ctx)
	if m.deps.Handoff != nil {
		if err := m.deps.Handoff.PublishLatest(ctx, record); err != nil {
			m.log.WithError(err).WithField("walk_id", record.ID).Warn("Failed to hand off latest walk.")
		}
	}

	m.acc.Reset(time.Time{})
	m.media = nil
	m.walkID = ""
	m.stepOffset = 0
	m.final = &record
	m.phase = PhaseFinished
	m.publish()

	m.log.WithFields(logrus.Fields{
		"walk_id":    record.ID,
		"distance_m": fmt.Sprintf("%.2f", record.DistanceMeters),
		"steps":      record.StepCount,
		"duration":   record.Duration().String(),
	}).Info("Walk session finished and saved.")
	return nil
}

func (m *Machine) cancel(ctx context.Context) error {
	if !m.phase.InProgress() {
		return &TransitionError{Op: "cancel", From: m.phase}
	}

	m.stopSources()
	m.clearInFlight(ctx)
	m.acc.Reset(time.Time{})
	m.media = nil
	m.walkID = ""
	m.stepOffset = 0
	m.final = nil
	m.phase = PhaseCancelled
	m.publish()

	m.log.Info("Walk session cancelled.")
	return nil
}

func (m *Machine) attach(ref MediaRef) error {
	if !m.phase.InProgress() {
		return &TransitionError{Op: "attach media", From: m.phase}
	}
	for _, existing := range m.media {
		if existing.ID == ref.ID && ref.ID != "" {
			return nil
		}
		if existing.LocalIdentifier == ref.LocalIdentifier && ref.LocalIdentifier != "" {
			return nil
		}
	}
	if ref.ID == "" {
		ref.ID = m.deps.NewID()
	}
	m.media = append(m.media, ref)
	m.checkpoint()
	m.publish()
	return nil
}

func (m *Machine) onFix(fix LocationFix) {
	if m.phase != PhaseActive {
		return
	}
	if !m.acc.ApplyFix(fix) {
		m.log.WithFields(logrus.Fields{
			"accuracy":  fix.HorizontalAccuracy,
			"latitude":  fix.Latitude,
			"longitude": fix.Longitude,
		}).Debug("Location fix rejected.")
		return
	}

	m.sinceCheckpoint++
	if m.sinceCheckpoint >= m.opts.CheckpointEvery {
		m.sinceCheckpoint = 0
		m.checkpoint()
	}
	m.publish()
}

func (m *Machine) onSteps(count int) {
	if m.phase != PhaseActive {
		return
	}
	total := count + m.stepOffset
	if total < m.acc.metrics.StepCount {
		return
	}
	m.acc.ApplyStepCount(total)
	m.publish()
}

func (m *Machine) inFlight() InFlight {
	return InFlight{
		WalkID:    m.walkID,
		Metrics:   m.acc.Metrics(),
		StartTime: m.startedAt,
		SavedAt:   m.deps.Clock(),
		Media:     slices.Clone(m.media),
	}
}

func (m *Machine) saveInFlight(ctx context.Context, reason string) {
	snap := m.inFlight()
	if err := m.writer.do(ctx, reason, func(ctx context.Context) error {
		return m.deps.Persistence.SaveInFlight(ctx, snap)
	}); err != nil {
		m.log.WithError(err).WithField("reason", reason).Warn("In-flight snapshot write failed.")
	}
}

func (m *Machine) checkpoint() {
	snap := m.inFlight()
	if !m.writer.enqueue("checkpoint", func(ctx context.Context) error {
		return m.deps.Persistence.SaveInFlight(ctx, snap)
	}) {
		m.log.Debug("Persistence queue full, skipping checkpoint.")
	}
}

func (m *Machine) clearInFlight(ctx context.Context) {
	var err error
	for attempt := 1; attempt <= clearAttempts; attempt++ {
		if err = m.writer.do(ctx, "clear", m.deps.Persistence.ClearInFlight); err == nil {
			return
		}
		if ctx.Err() != nil {
			break
		}
	}
	m.log.WithError(err).Error("Failed to clear in-flight snapshot; it will be recovered on next start.")
}

func (m *Machine) startSources(from time.Time) {
	if m.deps.Fixes != nil {
		if err := m.deps.Fixes.Start(m.DeliverFix); err != nil {
			m.log.WithError(err).Warn("Location source failed to start.")
		}
	}
	if m.deps.Steps != nil {
		if err := m.deps.Steps.Start(from, m.DeliverSteps); err != nil {
			m.log.WithError(err).Warn("Step feed failed to start.")
		}
	}
}

func (m *Machine) stopSources() {
	if m.deps.Fixes != nil {
		m.deps.Fixes.Stop()
	}
	if m.deps.Steps != nil {
		m.deps.Steps.Stop()
	}
}

func (m *Machine) stateLocked() State {
	st := State{Phase: m.phase}
	if m.phase.InProgress() {
		st.Metrics = m.acc.Metrics()
		started := m.startedAt
		st.StartedAt = &started
		st.Media = slices.Clone(m.media)
		if m.phase == PhasePaused {
			paused := m.pausedAt
			st.PausedAt = &paused
		}
	}
	if m.phase == PhaseFinished && m.final != nil {
		record := *m.final
		st.Record = &record
	}
	return st
}

func (m *Machine) publish() {
	st := m.stateLocked()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = st
	for ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

func (m *Machine) closeSubscribers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done = true
	for ch := range m.subs {
		delete(m.subs, ch)
		close(ch)
	}
}
