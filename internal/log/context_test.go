package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlab/cohortd/internal/log"
)

func TestContextRoundtrip(t *testing.T) {
	ctx := context.Background()

	ctx = log.ContextWithRequestID(ctx, "req-123")
	ctx = log.ContextWithJobID(ctx, "job-456")

	assert.Equal(t, "req-123", log.RequestIDFromContext(ctx))
	assert.Equal(t, "job-456", log.JobIDFromContext(ctx))
}

func TestContextNilSafety(t *testing.T) {
	//nolint:staticcheck // nil context on purpose
	assert.Equal(t, "", log.RequestIDFromContext(nil))
	//nolint:staticcheck
	assert.Equal(t, "", log.JobIDFromContext(nil))

	//nolint:staticcheck
	ctx := log.ContextWithRequestID(nil, "req-789")
	assert.Equal(t, "req-789", log.RequestIDFromContext(ctx))
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := log.ContextWithRequestID(context.Background(), "req-abc")
	ctx = log.ContextWithJobID(ctx, "job-def")

	enriched := log.WithContext(ctx, logger)
	enriched.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-abc", entry[log.FieldRequestID])
	assert.Equal(t, "job-def", entry[log.FieldJobID])
}

func TestWithContextNoFieldsReturnsSameLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	enriched := log.WithContext(context.Background(), logger)
	enriched.Info().Msg("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, hasReq := entry[log.FieldRequestID]
	assert.False(t, hasReq)
}
