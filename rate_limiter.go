package sentry_transport

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	categoryAll     = "all"
	categoryProfile = "profile"

	rateLimitsHeader = "X-Sentry-Rate-Limits"
	retryAfterHeader = "Retry-After"
)

// RateLimiter tracks per-category backoff windows derived from the rate-limit
// headers of completed ingestion responses. The expiry map is the only state
// shared between the caller path and background delivery completions, so
// every access holds the lock for a single read or write step.
type RateLimiter struct {
	mu     sync.RWMutex
	limits map[string]time.Time // category -> limited until
	logger *zap.Logger
}

// NewRateLimiter creates a new rate limiter instance.
func NewRateLimiter(logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		limits: make(map[string]time.Time),
		logger: logger,
	}
}

// IsRateLimited reports whether the category is inside an active backoff
// window, either its own or the global one. It is a pure read.
func (rl *RateLimiter) IsRateLimited(category string) bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	now := time.Now()

	if until, ok := rl.limits[category]; ok && until.After(now) {
		return true
	}
	if until, ok := rl.limits[categoryAll]; ok && until.After(now) {
		return true
	}

	return false
}

// Deadline returns the latest active backoff deadline for the category, or
// the zero time when the category is not limited. Used for log context.
func (rl *RateLimiter) Deadline(category string) time.Time {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	now := time.Now()
	var deadline time.Time

	if until, ok := rl.limits[category]; ok && until.After(now) {
		deadline = until
	}
	if until, ok := rl.limits[categoryAll]; ok && until.After(now) && until.After(deadline) {
		deadline = until
	}

	return deadline
}

// HandleResponse ingests rate-limit directives from a completed ingestion
// response. Missing or malformed headers leave the state untouched.
func (rl *RateLimiter) HandleResponse(headers http.Header) {
	if headers == nil {
		return
	}

	now := time.Now()

	if h := headers.Get(rateLimitsHeader); h != "" {
		rl.applyRateLimits(h, now)
		return
	}
	if h := headers.Get(retryAfterHeader); h != "" {
		rl.applyRetryAfter(h, now)
	}
}

// applyRateLimits parses the X-Sentry-Rate-Limits header. Each quota has the
// form "retry_after:categories:scope:reason_code", categories separated by
// semicolons, quotas separated by commas.
func (rl *RateLimiter) applyRateLimits(header string, now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for _, quota := range strings.Split(header, ",") {
		parts := strings.Split(strings.TrimSpace(quota), ":")

		seconds, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || seconds < 0 {
			rl.logger.Debug("ignoring malformed rate limit quota",
				zap.String("quota", strings.TrimSpace(quota)))
			continue
		}

		until := now.Add(time.Duration(seconds) * time.Second)

		var categories string
		if len(parts) > 1 {
			categories = strings.TrimSpace(parts[1])
		}
		if categories == "" {
			rl.store(categoryAll, until, seconds)
			continue
		}

		for _, category := range strings.Split(categories, ";") {
			category = strings.TrimSpace(category)
			if category == "" {
				category = categoryAll
			} else {
				category = categoryFor(category)
			}
			rl.store(category, until, seconds)
		}
	}
}

// applyRetryAfter parses the Retry-After fallback header, either a number of
// seconds or an HTTP date, and applies it to the global bucket.
func (rl *RateLimiter) applyRetryAfter(header string, now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	header = strings.TrimSpace(header)

	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		rl.store(categoryAll, now.Add(time.Duration(seconds)*time.Second), seconds)
		return
	}

	if at, err := time.Parse(time.RFC1123, header); err == nil && at.After(now) {
		rl.store(categoryAll, at, int(at.Sub(now)/time.Second))
		return
	}

	rl.logger.Debug("ignoring malformed Retry-After header", zap.String("header", header))
}

// store records a backoff deadline. Windows only ever widen: a shorter
// retry-after never truncates one already in place. Callers hold the write
// lock.
func (rl *RateLimiter) store(category string, until time.Time, seconds int) {
	if existing, ok := rl.limits[category]; ok && existing.After(until) {
		return
	}

	rl.limits[category] = until
	rl.logger.Warn("rate limit applied",
		zap.String("category", category),
		zap.Time("disabled_until", until),
		zap.Int("retry_after_seconds", seconds))
}

// CleanupExpired removes entries whose window has passed. Expired entries are
// already treated as not-limited; this is a periodic hygiene sweep.
func (rl *RateLimiter) CleanupExpired() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for category, until := range rl.limits {
		if !until.After(now) {
			delete(rl.limits, category)
		}
	}
}

// Snapshot returns a copy of the currently recorded backoff deadlines.
func (rl *RateLimiter) Snapshot() map[string]time.Time {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	snapshot := make(map[string]time.Time, len(rl.limits))
	for category, until := range rl.limits {
		snapshot[category] = until
	}

	return snapshot
}

// categoryFor maps an envelope item type to the data category Sentry uses in
// rate-limit quotas. Categories already in quota form pass through.
func categoryFor(itemType string) string {
	switch itemType {
	case "event":
		return "error"
	case "log":
		return "log_item"
	default:
		return itemType
	}
}
