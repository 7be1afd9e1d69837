package metrics_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	eventbus "github.com/hanpama/cardgraph/internal/eventbus"
	events "github.com/hanpama/cardgraph/internal/events"
	metrics "github.com/hanpama/cardgraph/internal/metrics"
)

func setup(t *testing.T) (*metrics.Collectors, *prometheus.Registry) {
	t.Helper()
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	reg := prometheus.NewRegistry()
	c := metrics.NewCollectors(reg)
	t.Cleanup(c.Subscribe())
	return c, reg
}

func TestCollectorsFollowEvents(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	eventbus.Publish(ctx, events.DirectiveRegistered{Name: "upper"})
	eventbus.Publish(ctx, events.DirectiveRegistered{Name: "mask"})
	eventbus.Publish(ctx, events.RegistrySealed{Directives: 2})
	eventbus.Publish(ctx, events.DirectiveResolved{Name: "upper", Type: "Card", Field: "holder"})
	eventbus.Publish(ctx, events.DirectiveResolved{Name: "shout", Type: "Card", Field: "holder", Err: errors.New("unknown")})
	eventbus.Publish(ctx, events.SchemaAssemblyFinish{Types: 3, Unused: []string{"mask"}, Duration: time.Millisecond})
	eventbus.Publish(ctx, events.DiscoveryRegistered{Service: "cards", InstanceID: "cards-1"})
	eventbus.Publish(ctx, events.DiscoveryDeregistered{Service: "cards", InstanceID: "cards-1", Err: errors.New("gone")})

	require.Equal(t, 2.0, testutil.ToFloat64(c.Registered))
	require.Equal(t, 2.0, testutil.ToFloat64(c.Directives))
	require.Equal(t, 1.0, testutil.ToFloat64(c.Resolutions.WithLabelValues("upper", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.Resolutions.WithLabelValues("shout", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.Assemblies.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.Unused))
	require.Equal(t, 1.0, testutil.ToFloat64(c.Discovery.WithLabelValues("register", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.Discovery.WithLabelValues("deregister", "error")))
}

func TestUnsubscribe(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })

	c := metrics.NewCollectors(prometheus.NewRegistry())
	unsubscribe := c.Subscribe()
	unsubscribe()

	eventbus.Publish(context.Background(), events.DirectiveRegistered{Name: "upper"})
	require.Equal(t, 0.0, testutil.ToFloat64(c.Registered))
}

func TestHandler(t *testing.T) {
	_, reg := setup(t)
	eventbus.Publish(context.Background(), events.DirectiveRegistered{Name: "upper"})

	srv := httptest.NewServer(metrics.Handler(reg))
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "cardgraph_directives_registered_total 1"), string(body))
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- metrics.Serve(ctx, "127.0.0.1:0", "/metrics", prometheus.NewRegistry(), discardLogger())
	}()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
