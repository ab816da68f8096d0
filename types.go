package sentry_transport

import (
	"github.com/google/uuid"
)

// Level mirrors the severity levels understood by Sentry.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// Event represents a single Sentry event handed over by the capture layer.
// The transport only inspects ID, Level, Type and the "profile" key of Data;
// everything else is opaque payload rendered by the serializer.
type Event struct {
	ID    string         `json:"event_id"`
	Level Level          `json:"level,omitempty"`
	Type  string         `json:"type"`
	Data  map[string]any `json:"data"`
}

// EnsureID assigns a fresh event ID when the capture layer did not set one.
func (e *Event) EnsureID() {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
}

// Category returns the rate-limit data category of the event.
func (e *Event) Category() string {
	return categoryFor(e.Type)
}

// HasProfile reports whether the event carries an embedded profile payload.
func (e *Event) HasProfile() bool {
	_, ok := e.Data[profileKey]
	return ok
}

// WithoutProfile returns a shallow copy of the event with the profile payload
// removed. The caller's event is never mutated.
func (e *Event) WithoutProfile() *Event {
	clone := *e
	clone.Data = make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		if k == profileKey {
			continue
		}
		clone.Data[k] = v
	}
	return &clone
}

const profileKey = "profile"

// SendOutcome is the synchronous result of Transport.Send. It reflects
// whether a delivery was initiated, not whether it eventually succeeded on
// the wire; the wire result is only observable through logs and metrics.
type SendOutcome int

const (
	// OutcomeSent means the event passed all gates and a background delivery started.
	OutcomeSent SendOutcome = iota
	// OutcomeSkipped means no DSN is configured and the event was discarded.
	OutcomeSkipped
	// OutcomeRateLimited means the event's category is inside an active backoff window.
	OutcomeRateLimited
)

func (o SendOutcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// SendResult is the wire shape returned to the PHP worker over RPC.
type SendResult struct {
	Success   bool   `json:"success"`
	EventID   string `json:"event_id"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
	RateLimit bool   `json:"rate_limit,omitempty"`
}
