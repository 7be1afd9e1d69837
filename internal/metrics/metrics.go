// Package metrics exposes Prometheus collectors fed from the event bus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/cardgraph/internal/eventbus"
	events "github.com/hanpama/cardgraph/internal/events"
)

const namespace = "cardgraph"

type Collectors struct {
	Registered  prometheus.Counter
	Directives  prometheus.Gauge
	Resolutions *prometheus.CounterVec
	Assemblies  *prometheus.CounterVec
	Duration    prometheus.Histogram
	Unused      prometheus.Gauge
	Discovery   *prometheus.CounterVec
}

// NewCollectors creates the collectors and registers them with reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		Registered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directives_registered_total",
			Help:      "Number of directive bindings added to a registry.",
		}),
		Directives: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directives_sealed",
			Help:      "Number of directives in the last sealed registry.",
		}),
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directive_resolutions_total",
			Help:      "Directive usages resolved during schema assembly.",
		}, []string{"directive", "result"}),
		Assemblies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_assemblies_total",
			Help:      "Schema assemblies by result.",
		}, []string{"result"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "schema_assembly_duration_seconds",
			Help:      "Time spent assembling a schema.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		Unused: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directives_unused",
			Help:      "Registered directives not referenced by the last assembled schema.",
		}),
		Discovery: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_operations_total",
			Help:      "Discovery register and deregister calls by result.",
		}, []string{"operation", "result"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Subscribe feeds c from the events published on the global bus.
func (c *Collectors) Subscribe() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(_ context.Context, _ events.DirectiveRegistered) {
			c.Registered.Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.RegistrySealed) {
			c.Directives.Set(float64(e.Directives))
		}),
		eventbus.Subscribe(func(_ context.Context, e events.DirectiveResolved) {
			c.Resolutions.WithLabelValues(e.Name, result(e.Err)).Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.SchemaAssemblyFinish) {
			c.Assemblies.WithLabelValues(result(e.Err)).Inc()
			c.Duration.Observe(e.Duration.Seconds())
			if e.Err == nil {
				c.Unused.Set(float64(len(e.Unused)))
			}
		}),
		eventbus.Subscribe(func(_ context.Context, e events.DiscoveryRegistered) {
			c.Discovery.WithLabelValues("register", result(e.Err)).Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.DiscoveryDeregistered) {
			c.Discovery.WithLabelValues("deregister", result(e.Err)).Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes g on addr at path until ctx is done.
func Serve(ctx context.Context, addr, path string, g prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(path, Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("serving metrics", "addr", addr, "path", path)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
