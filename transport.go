package sentry_transport

import (
	"sync"
	"time"

	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"
)

const userAgent = "sentry-transport-rr/2.0"

// ErrNotConfigured is returned by Send until Configure has succeeded once.
var ErrNotConfigured = errors.Str("transport is not configured")

// Transport is the public send surface consumed by the capture layer. It
// binds its configuration and collaborators once via Configure; after that
// the bindings stay immutable for the lifetime of the instance.
//
// Send never blocks on network I/O: it runs the synchronous gates, hands the
// payload to the background sender and returns an initiation outcome. The
// eventual wire result is only observable through logs and metrics.
type Transport struct {
	mu         sync.Mutex
	configured bool

	dsn        *DSN // nil when no DSN is configured
	serializer PayloadSerializer
	limiter    *RateLimiter
	sender     *asyncSender
	metrics    *metricsCollector
	logger     *zap.Logger
}

// NewTransport creates an unbound transport. It rejects sends until
// Configure has been called.
func NewTransport() *Transport {
	return &Transport{}
}

// Configure binds configuration and collaborators. The first successful call
// wins; later calls are no-ops so a bound transport keeps its state. Nil
// collaborators fall back to the package defaults.
func (t *Transport) Configure(cfg *Config, serializer PayloadSerializer, limiter *RateLimiter, metrics *metricsCollector, logger *zap.Logger) error {
	const op = errors.Op("sentry_transport_configure")

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.configured {
		return nil
	}
	if cfg == nil {
		return errors.E(op, errors.Str("no configuration provided"))
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	if serializer == nil {
		serializer = &EnvelopeSerializer{Compress: !cfg.Transport.DisableCompression}
	}
	if limiter == nil {
		limiter = NewRateLimiter(logger)
	}
	if metrics == nil {
		metrics = newMetricsCollector()
	}

	if cfg.DSN != "" {
		dsn, err := ParseDSN(cfg.DSN)
		if err != nil {
			return errors.E(op, err)
		}
		t.dsn = dsn
	}

	sender, err := newAsyncSender(&cfg.Transport, limiter, metrics, logger)
	if err != nil {
		return errors.E(op, err)
	}

	t.serializer = serializer
	t.limiter = limiter
	t.sender = sender
	t.metrics = metrics
	t.logger = logger
	t.configured = true

	return nil
}

// Send runs the synchronous gates and, when they pass, starts a background
// delivery. The returned error is non-nil only when the transport is not
// configured; every delivery problem past that point is absorbed into logs.
func (t *Transport) Send(event *Event) (SendOutcome, error) {
	const op = errors.Op("sentry_transport_send")

	t.mu.Lock()
	configured := t.configured
	t.mu.Unlock()

	if !configured {
		return OutcomeSkipped, errors.E(op, ErrNotConfigured)
	}
	if event == nil {
		return OutcomeSkipped, errors.E(op, errors.Str("nil event"))
	}

	event.EnsureID()

	if t.dsn == nil {
		t.metrics.IncSkippedEvents()
		t.logger.Info("skipped event, no DSN configured",
			zap.String("event_id", event.ID),
			zap.String("type", event.Type))
		return OutcomeSkipped, nil
	}

	category := event.Category()
	if t.limiter.IsRateLimited(category) {
		t.metrics.IncRateLimitedEvents()
		t.logger.Warn("event rejected by active rate limit",
			zap.String("event_id", event.ID),
			zap.String("category", category),
			zap.Time("disabled_until", t.limiter.Deadline(category)))
		return OutcomeRateLimited, nil
	}

	if event.HasProfile() && t.limiter.IsRateLimited(categoryProfile) {
		t.logger.Warn("profile payload stripped by active rate limit",
			zap.String("event_id", event.ID),
			zap.Time("disabled_until", t.limiter.Deadline(categoryProfile)))
		event = event.WithoutProfile()
	}

	t.metrics.IncEventsByCategory(category)

	payload, err := t.serializer.Serialize(event)
	if err != nil {
		// Initiation failure: absorbed. The caller passed the gates, so
		// delivery problems stay out of its stack.
		t.metrics.IncInitiationFailures()
		t.logger.Error("failed to serialize event",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return OutcomeSent, nil
	}

	headers := map[string]string{
		"Content-Type":  envelopeContentType,
		"User-Agent":    userAgent,
		"X-Sentry-Auth": t.dsn.AuthHeader(),
	}
	if enc, ok := t.serializer.(interface{ ContentEncoding() string }); ok {
		if v := enc.ContentEncoding(); v != "" {
			headers["Content-Encoding"] = v
		}
	}

	t.logger.Info("sending event",
		zap.String("event_id", event.ID),
		zap.String("category", category),
		zap.String("host", t.dsn.Host),
		zap.String("project_id", t.dsn.ProjectID))

	t.sender.Dispatch(t.dsn.EnvelopeURL, event.ID, headers, payload)

	return OutcomeSent, nil
}

// Close reports an immediate success. Every send is fire-and-forget, so
// there is no queued state to drain; in-flight deliveries finish on their
// own or die with the process.
func (t *Transport) Close(_ time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sender != nil {
		t.sender.Close()
	}

	return true
}
