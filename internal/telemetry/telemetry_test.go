package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.False(t, IsEnabled())
	assert.NoError(t, shutdown(context.Background()))
}

func TestTracerNoopWhenUninitialized(t *testing.T) {
	tr := Tracer()
	require.NotNil(t, tr)

	ctx, span := StartSpan(context.Background(), SpanCreateVolume)
	defer span.End()

	// No exporter configured, so the span context carries no trace id.
	assert.Equal(t, "", TraceID(ctx))
}

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, IsProfilingEnabled())
	assert.NoError(t, shutdown())
}

func TestParseProfileType(t *testing.T) {
	_, err := parseProfileType("cpu")
	assert.NoError(t, err)

	_, err = parseProfileType("bogus")
	assert.Error(t, err)
}
