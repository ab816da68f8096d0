package sentry_transport

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeSerializerFraming(t *testing.T) {
	s := &EnvelopeSerializer{}
	event := &Event{
		ID:   "9f1a2b3c",
		Type: "event",
		Data: map[string]any{"message": "boom", "level": "error"},
	}

	payload, err := s.Serialize(event)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSuffix(payload, []byte("\n")), []byte("\n"))
	require.Len(t, lines, 3)

	var header map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &header))
	assert.Equal(t, "9f1a2b3c", header["event_id"])
	assert.Contains(t, header, "sent_at")

	var itemHeader map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &itemHeader))
	assert.Equal(t, "event", itemHeader["type"])
	assert.Equal(t, float64(len(lines[2])), itemHeader["length"])

	var body map[string]any
	require.NoError(t, json.Unmarshal(lines[2], &body))
	assert.Equal(t, "boom", body["message"])
}

func TestEnvelopeSerializerCompression(t *testing.T) {
	s := &EnvelopeSerializer{Compress: true}
	event := &Event{ID: "1", Type: "transaction", Data: map[string]any{"op": "db.query"}}

	payload, err := s.Serialize(event)
	require.NoError(t, err)
	assert.Equal(t, "gzip", s.ContentEncoding())

	r, err := gzip.NewReader(bytes.NewReader(payload))
	require.NoError(t, err)
	raw, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.Contains(t, string(raw), `"op":"db.query"`)
}

func TestEnvelopeSerializerNoEncodingWhenUncompressed(t *testing.T) {
	s := &EnvelopeSerializer{}
	assert.Equal(t, "", s.ContentEncoding())
}

func TestEnvelopeSerializerUnmarshalableData(t *testing.T) {
	s := &EnvelopeSerializer{}
	event := &Event{ID: "1", Type: "event", Data: map[string]any{"bad": make(chan int)}}

	_, err := s.Serialize(event)
	assert.Error(t, err)
}
