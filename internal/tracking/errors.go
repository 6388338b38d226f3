package tracking

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a lifecycle command does not apply
	// to the current phase, e.g. pausing an idle machine.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrConcurrentSession is returned by Start while a session is active or paused.
	ErrConcurrentSession = errors.New("a session is already in progress")
	// ErrWalkNotSaved means the finished walk could not be written to history.
	// The session is left untouched so the caller can retry.
	ErrWalkNotSaved = errors.New("walk not saved")
	// ErrSnapshotCorrupt marks an in-flight snapshot that exists but cannot be
	// decoded. Loaders treat it as "nothing to recover".
	ErrSnapshotCorrupt = errors.New("in-flight snapshot corrupt")
	// ErrDuplicateWalk is returned by SaveFinal when a record with the same
	// id is already in history.
	ErrDuplicateWalk = errors.New("walk already saved")
	ErrClosed        = errors.New("session machine closed")
)

// TransitionError describes a rejected lifecycle command.
type TransitionError struct {
	Op   string
	From Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
