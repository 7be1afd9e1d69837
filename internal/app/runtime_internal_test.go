package app

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	config "github.com/hanpama/cardgraph/internal/config"
	eventbus "github.com/hanpama/cardgraph/internal/eventbus"
	events "github.com/hanpama/cardgraph/internal/events"
)

func TestNewRuntime_TracingFailureUnsubscribes(t *testing.T) {
	errSetup := errors.New("collector unreachable")
	orig := setupTracing
	setupTracing = func(string, string, string) (func(context.Context) error, error) {
		return nil, errSetup
	}
	t.Cleanup(func() {
		setupTracing = orig
		eventbus.Use(nil)
	})

	cfg, err := config.Load("")
	require.NoError(t, err)
	var logs bytes.Buffer
	rt, err := NewRuntime(context.Background(), cfg, WithLogOutput(&logs))
	require.ErrorIs(t, err, errSetup)
	require.Nil(t, rt)

	logs.Reset()
	eventbus.Publish(context.Background(), events.SchemaAssemblyFinish{Types: 3, Unused: []string{"upper"}})
	require.Empty(t, logs.String())
}
