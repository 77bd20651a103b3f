package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errUnknownOutboxRow = errors.New("outbox row not found")

// Clock is a settable clock. A zero Clock follows wall time until Set.
type Clock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.now.IsZero() {
		return time.Now().UTC()
	}
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now.UTC()
}

func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now.IsZero() {
		c.now = time.Now().UTC()
	}
	c.now = c.now.Add(d)
	return c.now
}

type IDGenerator struct{}

func (IDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
