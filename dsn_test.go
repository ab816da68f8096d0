package sentry_transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDSN(t *testing.T) {
	dsn, err := ParseDSN("https://abc123@o447951.ingest.sentry.io/5461230")
	require.NoError(t, err)

	assert.Equal(t, "https", dsn.Scheme)
	assert.Equal(t, "abc123", dsn.PublicKey)
	assert.Equal(t, "o447951.ingest.sentry.io", dsn.Host)
	assert.Equal(t, 443, dsn.Port)
	assert.Equal(t, "5461230", dsn.ProjectID)
	assert.Equal(t, "https://o447951.ingest.sentry.io/api/5461230/envelope/", dsn.EnvelopeURL)
}

func TestParseDSNCustomPort(t *testing.T) {
	dsn, err := ParseDSN("http://key@sentry.internal:9000/42")
	require.NoError(t, err)

	assert.Equal(t, 9000, dsn.Port)
	assert.Equal(t, "http://sentry.internal:9000/api/42/envelope/", dsn.EnvelopeURL)
}

func TestParseDSNDefaultHTTPPort(t *testing.T) {
	dsn, err := ParseDSN("http://key@sentry.internal/42")
	require.NoError(t, err)

	assert.Equal(t, 80, dsn.Port)
	assert.Equal(t, "http://sentry.internal/api/42/envelope/", dsn.EnvelopeURL)
}

func TestParseDSNPathPrefix(t *testing.T) {
	dsn, err := ParseDSN("https://key@sentry.example.com/relay/42")
	require.NoError(t, err)

	assert.Equal(t, "/relay", dsn.Path)
	assert.Equal(t, "42", dsn.ProjectID)
	assert.Equal(t, "https://sentry.example.com/relay/api/42/envelope/", dsn.EnvelopeURL)
}

func TestParseDSNInvalid(t *testing.T) {
	cases := []struct {
		name string
		dsn  string
	}{
		{"empty", ""},
		{"no scheme", "key@sentry.io/42"},
		{"bad scheme", "ftp://key@sentry.io/42"},
		{"no public key", "https://sentry.io/42"},
		{"no project", "https://key@sentry.io"},
		{"bad port", "https://key@sentry.io:x/42"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDSN(tc.dsn)
			assert.Error(t, err)
		})
	}
}

func TestAuthHeader(t *testing.T) {
	dsn, err := ParseDSN("https://abc123@sentry.io/1")
	require.NoError(t, err)

	assert.Equal(t, "Sentry sentry_version=7, sentry_key=abc123", dsn.AuthHeader())
}
