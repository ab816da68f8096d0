package sentry_transport

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"time"
)

const envelopeContentType = "application/x-sentry-envelope"

// PayloadSerializer turns an event into the byte payload posted to the
// envelope endpoint. The transport treats the produced bytes as opaque.
type PayloadSerializer interface {
	Serialize(event *Event) ([]byte, error)
}

// EnvelopeSerializer renders events in the Sentry envelope framing: an
// envelope header line, an item header line and the item body.
type EnvelopeSerializer struct {
	// Compress enables gzip encoding of the rendered envelope.
	Compress bool
}

// Serialize implements PayloadSerializer.
func (s *EnvelopeSerializer) Serialize(event *Event) ([]byte, error) {
	body, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event body: %w", err)
	}

	header, err := json.Marshal(map[string]any{
		"event_id": event.ID,
		"sent_at":  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope header: %w", err)
	}

	itemHeader, err := json.Marshal(map[string]any{
		"type":   event.Type,
		"length": len(body),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal item header: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(header)
	buf.WriteByte('\n')
	buf.Write(itemHeader)
	buf.WriteByte('\n')
	buf.Write(body)
	buf.WriteByte('\n')

	if !s.Compress {
		return buf.Bytes(), nil
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("compress envelope: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("compress envelope: %w", err)
	}

	return compressed.Bytes(), nil
}

// ContentEncoding returns the Content-Encoding header value matching the
// payloads this serializer produces, or "" when none applies.
func (s *EnvelopeSerializer) ContentEncoding() string {
	if s.Compress {
		return "gzip"
	}
	return ""
}
