package sentry_transport

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func limitHeaders(value string) http.Header {
	h := http.Header{}
	h.Set("X-Sentry-Rate-Limits", value)
	return h
}

func TestIsRateLimitedUnknownCategory(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	assert.False(t, rl.IsRateLimited("error"))
	assert.False(t, rl.IsRateLimited("transaction"))
}

func TestHandleResponseSingleCategory(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	rl.HandleResponse(limitHeaders("60:error:organization"))

	assert.True(t, rl.IsRateLimited("error"))
	assert.False(t, rl.IsRateLimited("transaction"))
	assert.False(t, rl.IsRateLimited("profile"))
}

func TestHandleResponseMultipleCategories(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	rl.HandleResponse(limitHeaders("30:error;transaction:organization,120:profile:organization"))

	assert.True(t, rl.IsRateLimited("error"))
	assert.True(t, rl.IsRateLimited("transaction"))
	assert.True(t, rl.IsRateLimited("profile"))
	assert.False(t, rl.IsRateLimited("attachment"))
}

func TestHandleResponseEmptyCategoriesLimitsEverything(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	rl.HandleResponse(limitHeaders("45::organization"))

	assert.True(t, rl.IsRateLimited("error"))
	assert.True(t, rl.IsRateLimited("transaction"))
	assert.True(t, rl.IsRateLimited("anything"))
}

func TestHandleResponseWideningOnly(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	rl.HandleResponse(limitHeaders("300:error:organization"))
	wide := rl.Deadline("error")
	require.False(t, wide.IsZero())

	// A shorter retry-after must never truncate the recorded window.
	rl.HandleResponse(limitHeaders("1:error:organization"))
	assert.Equal(t, wide, rl.Deadline("error"))

	// A longer one widens it.
	rl.HandleResponse(limitHeaders("600:error:organization"))
	assert.True(t, rl.Deadline("error").After(wide))
}

func TestHandleResponseMalformedQuotaIgnored(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	rl.HandleResponse(limitHeaders("abc:error:organization"))
	rl.HandleResponse(limitHeaders("-5:error:organization"))
	rl.HandleResponse(limitHeaders(""))

	assert.Empty(t, rl.Snapshot())
	assert.False(t, rl.IsRateLimited("error"))
}

func TestHandleResponseMixedValidAndMalformed(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	rl.HandleResponse(limitHeaders("bogus:error:organization,60:transaction:organization"))

	assert.False(t, rl.IsRateLimited("error"))
	assert.True(t, rl.IsRateLimited("transaction"))
}

func TestHandleResponseZeroSecondsExpiresImmediately(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	rl.HandleResponse(limitHeaders("0:error:organization"))

	assert.False(t, rl.IsRateLimited("error"))
}

func TestHandleResponseNormalizesEventTypes(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	// Some servers name the item type instead of the data category.
	rl.HandleResponse(limitHeaders("60:event:organization"))

	assert.True(t, rl.IsRateLimited("error"))
	assert.True(t, rl.IsRateLimited((&Event{Type: "event"}).Category()))
}

func TestRetryAfterSecondsFallback(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	h := http.Header{}
	h.Set("Retry-After", "120")
	rl.HandleResponse(h)

	// The fallback limits the global bucket, so every category is gated.
	assert.True(t, rl.IsRateLimited("error"))
	assert.True(t, rl.IsRateLimited("transaction"))
}

func TestRetryAfterHTTPDateFallback(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	h := http.Header{}
	h.Set("Retry-After", time.Now().Add(90*time.Second).UTC().Format(time.RFC1123))
	rl.HandleResponse(h)

	assert.True(t, rl.IsRateLimited("error"))
}

func TestRetryAfterMalformedIgnored(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	h := http.Header{}
	h.Set("Retry-After", "not-a-duration")
	rl.HandleResponse(h)

	assert.Empty(t, rl.Snapshot())
}

func TestRateLimitsHeaderTakesPrecedenceOverRetryAfter(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	h := limitHeaders("60:error:organization")
	h.Set("Retry-After", "600")
	rl.HandleResponse(h)

	assert.True(t, rl.IsRateLimited("error"))
	assert.False(t, rl.IsRateLimited("transaction"))
}

func TestLimitExpires(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	rl.mu.Lock()
	rl.limits["error"] = time.Now().Add(20 * time.Millisecond)
	rl.mu.Unlock()

	assert.True(t, rl.IsRateLimited("error"))
	time.Sleep(30 * time.Millisecond)
	assert.False(t, rl.IsRateLimited("error"))
}

func TestCleanupExpired(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	rl.mu.Lock()
	rl.limits["error"] = time.Now().Add(-time.Second)
	rl.limits["transaction"] = time.Now().Add(time.Hour)
	rl.mu.Unlock()

	rl.CleanupExpired()

	snapshot := rl.Snapshot()
	assert.NotContains(t, snapshot, "error")
	assert.Contains(t, snapshot, "transaction")
}

func TestDeadlineReturnsWidestActiveWindow(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	rl.HandleResponse(limitHeaders("30:error:organization,300::organization"))

	// The global window outlasts the category one and wins.
	assert.True(t, rl.Deadline("error").After(time.Now().Add(200*time.Second)))
	assert.True(t, rl.Deadline("transaction").After(time.Now().Add(200*time.Second)))
}

func TestConcurrentReadsAndUpdates(t *testing.T) {
	rl := NewRateLimiter(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rl.HandleResponse(limitHeaders("60:error;transaction:organization"))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rl.IsRateLimited("error")
				rl.IsRateLimited("profile")
			}
		}()
	}
	wg.Wait()

	assert.True(t, rl.IsRateLimited("error"))
}

func TestCategoryFor(t *testing.T) {
	assert.Equal(t, "error", categoryFor("event"))
	assert.Equal(t, "log_item", categoryFor("log"))
	assert.Equal(t, "transaction", categoryFor("transaction"))
	assert.Equal(t, "profile", categoryFor("profile"))
	assert.Equal(t, "replay", categoryFor("replay"))
}
