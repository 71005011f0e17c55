package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *fakeClock) rewind(d time.Duration)  { c.t = c.t.Add(-d) }

func drain(b *tokenBucket) int {
	n := 0
	for b.allow() {
		n++
	}
	return n
}

func TestTokenBucketRefillsWithTime(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := newTokenBucket(2, 3, clock.now)

	assert.Equal(t, 3, drain(b), "a new bucket starts full")

	clock.advance(250 * time.Millisecond)
	assert.False(t, b.allow(), "half a token is not enough")

	clock.advance(250 * time.Millisecond)
	assert.True(t, b.allow())
	assert.False(t, b.allow())

	clock.advance(time.Second)
	assert.Equal(t, 2, drain(b))
}

func TestTokenBucketCapsAtBurst(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := newTokenBucket(10, 2, clock.now)
	require.Equal(t, 2, drain(b))

	clock.advance(time.Hour)
	assert.Equal(t, 2, drain(b))
}

func TestTokenBucketIgnoresClockGoingBackwards(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := newTokenBucket(1, 1, clock.now)
	require.True(t, b.allow())

	clock.rewind(time.Minute)
	assert.False(t, b.allow())

	// Refill is measured from the last forward reading, not the rewound one.
	clock.advance(time.Minute + time.Second)
	assert.True(t, b.allow())
}

func TestRateLimitMiddlewarePassThrough(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	for name, cfg := range map[string]RateLimitConfig{
		"disabled":   {Enabled: false, RPS: 1, Burst: 1},
		"zero rate":  {Enabled: true, RPS: 0, Burst: 1},
		"zero burst": {Enabled: true, RPS: 1, Burst: 0},
	} {
		t.Run(name, func(t *testing.T) {
			handler := RateLimitMiddleware(cfg)(ok)
			for i := 0; i < 3; i++ {
				rr := httptest.NewRecorder()
				handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/graphql", nil))
				assert.Equal(t, http.StatusNoContent, rr.Code)
			}
		})
	}
}

func TestRateLimitMiddlewareRejectsOverBurst(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	)
	req := httptest.NewRequest(http.MethodPost, "/graphql", nil)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"errors":[{"message":"rate limit exceeded","extensions":{"code":"rate_limited"}}]}`, rr.Body.String())
}
