package speech

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultSkew is subtracted from a token's lifetime so it is refreshed before the server rejects it.
const DefaultSkew = 30 * time.Second

// FetchFunc obtains a new token and its absolute expiry.
type FetchFunc func(ctx context.Context) (value string, expiresAt time.Time, err error)

// TokenCache holds one bearer token and refreshes it lazily once it is past expiry.
// Concurrent refreshes collapse into a single fetch; every waiter gets the same result.
type TokenCache struct {
	fetch FetchFunc
	skew  time.Duration
	nowF  func() time.Time

	mu        sync.Mutex
	value     string
	expiresAt time.Time
	group     singleflight.Group
}

// NewTokenCache returns an empty cache backed by fetch.
func NewTokenCache(fetch FetchFunc) *TokenCache {
	return &TokenCache{fetch: fetch, skew: DefaultSkew, nowF: time.Now}
}

// Get returns the cached token, fetching a new one when none is valid.
func (c *TokenCache) Get(ctx context.Context) (string, error) {
	if v, ok := c.current(); ok {
		return v, nil
	}
	v, err, _ := c.group.Do("token", func() (any, error) {
		if v, ok := c.current(); ok {
			return v, nil
		}
		value, expiresAt, err := c.fetch(ctx)
		if err != nil {
			return "", err
		}
		if value == "" {
			return "", errors.New("speech: token endpoint returned an empty token")
		}
		c.mu.Lock()
		c.value, c.expiresAt = value, expiresAt
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next Get fetches a new one.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.value, c.expiresAt = "", time.Time{}
	c.mu.Unlock()
}

func (c *TokenCache) current() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == "" || !c.nowF().Add(c.skew).Before(c.expiresAt) {
		return "", false
	}
	return c.value, true
}
