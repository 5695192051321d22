package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "bravvo", config.ServiceName)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.False(t, config.Enabled)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)
	require.False(t, p.Enabled())

	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderWithNilConfig(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, p.Enabled())
}

func TestTrackOperationNoop(t *testing.T) {
	p := Noop()
	ctx, done := p.TrackOperation(context.Background(), "generate_command_center",
		WorkspaceOperation("ws-1", "corr-1")...)
	require.NotNil(t, ctx)
	AddSpanEvent(ctx, "gating.checked")
	p.RecordEvent(ctx, "command_center.generated")
	done(errors.New("gated"))
	done(nil)
}

func TestWorkspaceOperation(t *testing.T) {
	attrs := WorkspaceOperation("ws-1", "")
	require.Len(t, attrs, 1)
	require.Equal(t, "ws-1", attrs[0].Value.AsString())

	attrs = WorkspaceOperation("ws-1", "c")
	require.Len(t, attrs, 2)
}
