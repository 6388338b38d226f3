package tracking

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

type writeJob struct {
	ctx  context.Context
	what string
	run  func(context.Context) error
	done chan error
}

// writer serializes every persistence call the machine makes. Checkpoints are
// queued without waiting; transitions wait for their write. Because the queue
// is FIFO, a checkpoint can never land after the clear that ends a session.
type writer struct {
	jobs chan writeJob
	log  logrus.FieldLogger
	wg   sync.WaitGroup
}

func newWriter(buffer int, log logrus.FieldLogger) *writer {
	w := &writer{jobs: make(chan writeJob, buffer), log: log}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *writer) loop() {
	defer w.wg.Done()
	for job := range w.jobs {
		err := job.run(job.ctx)
		if job.done != nil {
			job.done <- err
			continue
		}
		if err != nil {
			w.log.WithError(err).WithField("write", job.what).Warn("Queued persistence write failed.")
		}
	}
}

// enqueue schedules fn without waiting. It reports false when the queue is full.
func (w *writer) enqueue(what string, fn func(context.Context) error) bool {
	select {
	case w.jobs <- writeJob{ctx: context.Background(), what: what, run: fn}:
		return true
	default:
		return false
	}
}

// do runs fn after everything already queued and returns its error. Once
// queued the job always runs; ctx is handed to fn to bound the I/O itself.
func (w *writer) do(ctx context.Context, what string, fn func(context.Context) error) error {
	done := make(chan error, 1)
	select {
	case w.jobs <- writeJob{ctx: ctx, what: what, run: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-done
}

func (w *writer) close() {
	close(w.jobs)
	w.wg.Wait()
}
