package otelsetup_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/otelsetup"
)

func TestInitDisabledReturnsNoopProviderAndNoopShutdown(t *testing.T) {
	tp, shutdown, err := otelsetup.Init(context.Background(), otelsetup.Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tp)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestTracerReturnsNamedTracer(t *testing.T) {
	_, _, err := otelsetup.Init(context.Background(), otelsetup.Config{Enabled: false})
	require.NoError(t, err)
	tracer := otelsetup.Tracer("analystcopilot/ingest")
	assert.NotNil(t, tracer)
}
