package reconnect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounter_StopsAtCeiling(t *testing.T) {
	c := NewCounter(Policy{Interval: time.Second, MaxAttempts: 2})

	d, n, ok := c.Next()
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
	assert.Equal(t, 1, n)

	_, n, ok = c.Next()
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	_, _, ok = c.Next()
	assert.False(t, ok)
	assert.Equal(t, 2, c.Attempts())

	c.Reset()
	_, n, ok = c.Next()
	assert.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestCounter_Defaults(t *testing.T) {
	c := NewCounter(Policy{MaxAttempts: -1})
	assert.Equal(t, DefaultInterval, c.Policy().Interval)
	_, _, ok := c.Next()
	assert.False(t, ok)
}
