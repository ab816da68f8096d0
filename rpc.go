package sentry_transport

import (
	"time"

	"go.uber.org/zap"
)

// RPC provides RPC methods for PHP communication
type RPC struct {
	transport *Transport
	limiter   *RateLimiter
	logger    *zap.Logger
}

// NewRPC creates a new RPC instance
func NewRPC(transport *Transport, limiter *RateLimiter, logger *zap.Logger) *RPC {
	return &RPC{
		transport: transport,
		limiter:   limiter,
		logger:    logger,
	}
}

// SendEvent submits a single event for delivery and reports the initiation
// outcome. The eventual wire result is never part of the reply.
func (r *RPC) SendEvent(event *Event, result *SendResult) error {
	if event == nil {
		*result = SendResult{Success: false, Error: "nil event"}
		return nil
	}

	r.logger.Debug("received event via RPC",
		zap.String("event_id", event.ID),
		zap.String("type", event.Type))

	*result = r.send(event)
	return nil
}

// SendBatch submits events one by one. Each event passes the gates
// independently; events are never combined into one request.
func (r *RPC) SendBatch(events []*Event, result *[]*SendResult) error {
	if len(events) == 0 {
		*result = []*SendResult{}
		return nil
	}

	r.logger.Debug("received batch of events via RPC",
		zap.Int("count", len(events)))

	results := make([]*SendResult, len(events))
	for i, event := range events {
		if event == nil {
			results[i] = &SendResult{Success: false, Error: "nil event"}
			continue
		}
		res := r.send(event)
		results[i] = &res
	}

	*result = results
	return nil
}

// RateLimits reports the currently recorded backoff deadlines per category.
func (r *RPC) RateLimits(_ bool, result *map[string]time.Time) error {
	*result = r.limiter.Snapshot()
	return nil
}

func (r *RPC) send(event *Event) SendResult {
	outcome, err := r.transport.Send(event)
	if err != nil {
		r.logger.Error("failed to send event",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return SendResult{
			Success: false,
			EventID: event.ID,
			Error:   err.Error(),
		}
	}

	return SendResult{
		Success:   outcome == OutcomeSent,
		EventID:   event.ID,
		Outcome:   outcome.String(),
		RateLimit: outcome == OutcomeRateLimited,
	}
}
