// Package cache is the small key-value port used for durable client state
// such as the recoverable interview timer.
package cache

import (
	"context"
	"time"
)

// Cache stores JSON values by key. A zero ttl means no expiry.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
