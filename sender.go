package sentry_transport

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxDrainBytes bounds how much of a leftover response body gets read before
// the connection is handed back to the pool.
const maxDrainBytes = 16 << 10

// responseHandler receives the headers of a completed ingestion response.
type responseHandler interface {
	HandleResponse(headers http.Header)
}

// asyncSender performs one fire-and-forget POST per dispatched payload. Each
// dispatch runs on its own goroutine; the dispatching goroutine never waits
// on connect, TLS handshake or response receipt.
type asyncSender struct {
	client  *http.Client
	limits  responseHandler
	metrics *metricsCollector
	logger  *zap.Logger

	inflight sync.WaitGroup
}

func newAsyncSender(cfg *TransportConfig, limits responseHandler, metrics *metricsCollector, logger *zap.Logger) (*asyncSender, error) {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &asyncSender{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limits:  limits,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Dispatch starts the background delivery of one payload and returns
// immediately. A failure to even build the request is logged and absorbed;
// nothing escapes to the caller.
func (s *asyncSender) Dispatch(targetURL, eventID string, headers map[string]string, payload []byte) {
	req, err := http.NewRequest(http.MethodPost, targetURL, bytes.NewReader(payload))
	if err != nil {
		s.metrics.IncInitiationFailures()
		s.logger.Error("failed to initiate event delivery",
			zap.String("event_id", eventID),
			zap.String("url", targetURL),
			zap.Error(err))
		return
	}

	for name, value := range headers {
		req.Header.Set(name, value)
	}

	s.inflight.Add(1)
	go s.deliver(req, eventID)
}

// deliver runs the POST and settles the outcome exactly once: a success or
// rate-limit log plus a rate limiter update on a response, an error log on a
// transport failure. Nothing here reaches the dispatching goroutine.
func (s *asyncSender) deliver(req *http.Request, eventID string) {
	defer s.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during background delivery",
				zap.String("event_id", eventID),
				zap.Any("panic", r))
		}
	}()

	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.IncFailedEvents()
		s.logger.Error("event delivery failed",
			zap.String("event_id", eventID),
			zap.String("host", req.URL.Host),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()

	s.limits.HandleResponse(resp.Header)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		s.metrics.IncSentEvents()
		s.logger.Info("event delivered",
			zap.String("event_id", eventID),
			zap.Int("status_code", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		s.metrics.IncRateLimitedEvents()
		s.logger.Warn("event rejected by server rate limit",
			zap.String("event_id", eventID))
	default:
		s.metrics.IncFailedEvents()
		s.logger.Error("event rejected by server",
			zap.String("event_id", eventID),
			zap.Int("status_code", resp.StatusCode))
	}

	// Drain the remainder so the connection can be reused. The error is
	// deliberately discarded: failing to read leftover bytes only costs
	// keep-alive, the delivery outcome was already settled above.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
}

// wait blocks until every in-flight delivery finished or the timeout
// elapsed. The public API stays fire-and-forget; this exists for tests.
func (s *asyncSender) wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close releases pooled connections. In-flight deliveries are not awaited.
func (s *asyncSender) Close() {
	s.client.CloseIdleConnections()
}
