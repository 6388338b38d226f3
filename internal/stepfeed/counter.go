package stepfeed

import (
	"context"
	"sort"
	"sync"
	"time"
)

const DefaultRetention = 7 * 24 * time.Hour

type sample struct {
	at    time.Time
	steps int
}

// Counter is an in-process pedometer. Companion devices report step
// increments through Record; the session machine reads cumulative counts
// through Query and the live subscription.
type Counter struct {
	mu        sync.Mutex
	samples   []sample
	clock     func() time.Time
	retention time.Duration

	from    time.Time
	deliver func(int)
}

func NewCounter(clock func() time.Time, retention time.Duration) *Counter {
	if clock == nil {
		clock = time.Now
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Counter{clock: clock, retention: retention}
}

// Record adds steps taken at the given time. Non-positive increments are ignored.
func (c *Counter) Record(at time.Time, steps int) {
	if steps <= 0 {
		return
	}

	c.mu.Lock()
	i := sort.Search(len(c.samples), func(i int) bool { return c.samples[i].at.After(at) })
	c.samples = append(c.samples, sample{})
	copy(c.samples[i+1:], c.samples[i:])
	c.samples[i] = sample{at: at, steps: steps}
	c.pruneLocked()

	deliver := c.deliver
	var total int
	if deliver != nil {
		total = c.sumLocked(c.from, time.Time{})
	}
	c.mu.Unlock()

	if deliver != nil {
		deliver(total)
	}
}

// Query returns the steps recorded in [from, to]. A zero to means no upper bound.
func (c *Counter) Query(ctx context.Context, from, to time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sumLocked(from, to), nil
}

// Start delivers the cumulative count since from right away and again after
// every Record, until Stop.
func (c *Counter) Start(from time.Time, deliver func(int)) error {
	c.mu.Lock()
	c.from = from
	c.deliver = deliver
	total := c.sumLocked(from, time.Time{})
	c.mu.Unlock()

	deliver(total)
	return nil
}

func (c *Counter) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliver = nil
}

func (c *Counter) sumLocked(from, to time.Time) int {
	total := 0
	for _, s := range c.samples {
		if s.at.Before(from) {
			continue
		}
		if !to.IsZero() && s.at.After(to) {
			break
		}
		total += s.steps
	}
	return total
}

func (c *Counter) pruneLocked() {
	cutoff := c.clock().Add(-c.retention)
	i := sort.Search(len(c.samples), func(i int) bool { return !c.samples[i].at.Before(cutoff) })
	if i > 0 {
		c.samples = append(c.samples[:0], c.samples[i:]...)
	}
}
