// Package reconnect holds the fixed-backoff, bounded retry policy shared by
// the streaming clients.
package reconnect

import (
	"sync"
	"time"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 5
)

type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{Interval: DefaultInterval, MaxAttempts: DefaultMaxAttempts}
}

// Counter tracks consecutive reconnect attempts against a Policy.
type Counter struct {
	p Policy

	mu       sync.Mutex
	attempts int
}

func NewCounter(p Policy) *Counter {
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	return &Counter{p: p}
}

// Next reserves the next attempt. ok is false once the ceiling is reached.
func (c *Counter) Next() (delay time.Duration, attempt int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempts >= c.p.MaxAttempts {
		return 0, c.attempts, false
	}
	c.attempts++
	return c.p.Interval, c.attempts, true
}

func (c *Counter) Reset() {
	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()
}

func (c *Counter) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Counter) Policy() Policy { return c.p }
