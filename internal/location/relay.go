package location

import (
	"sync"

	"github.com/sirupsen/logrus"

	"walk_tracker/internal/tracking"
)

// Relay is the in-process location service. Fixes pushed by a companion
// device reach the session machine only while the relay is started.
type Relay struct {
	mu      sync.RWMutex
	deliver func(tracking.LocationFix)
	log     logrus.FieldLogger
}

func NewRelay(log logrus.FieldLogger) *Relay {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Relay{log: log.WithField("component", "location")}
}

func (r *Relay) Start(deliver func(tracking.LocationFix)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliver = deliver
	r.log.Debug("Location updates started.")
	return nil
}

func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deliver != nil {
		r.log.Debug("Location updates stopped.")
	}
	r.deliver = nil
}

func (r *Relay) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deliver != nil
}

// Push forwards fix and reports whether anyone was listening.
func (r *Relay) Push(fix tracking.LocationFix) bool {
	r.mu.RLock()
	deliver := r.deliver
	r.mu.RUnlock()

	if deliver == nil {
		return false
	}
	deliver(fix)
	return true
}
