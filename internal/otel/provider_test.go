package otel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/sqlite-bridge/internal/otel"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), otel.Settings{Enabled: true, ServiceName: "sqlite-bridge"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupNoopWhenDisabled(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), otel.Settings{Endpoint: "http://localhost:4318", ServiceName: "sqlite-bridge"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, shutdown(ctx))
}

func TestSetupCreatesProvider(t *testing.T) {
	// Non-routable address: nothing is exported before shutdown.
	shutdown, err := otel.Setup(context.Background(), otel.Settings{
		Enabled:        true,
		Endpoint:       "http://192.0.2.1:4318",
		ServiceName:    "sqlite-bridge",
		ServiceVersion: "test",
	})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
