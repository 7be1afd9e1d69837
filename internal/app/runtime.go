// Package app wires configuration, directives, schema assembly and discovery
// into a runnable process.
package app

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	config "github.com/hanpama/cardgraph/internal/config"
	directive "github.com/hanpama/cardgraph/internal/directive"
	directives "github.com/hanpama/cardgraph/internal/directives"
	discovery "github.com/hanpama/cardgraph/internal/discovery"
	eventbus "github.com/hanpama/cardgraph/internal/eventbus"
	language "github.com/hanpama/cardgraph/internal/language"
	metrics "github.com/hanpama/cardgraph/internal/metrics"
	opid "github.com/hanpama/cardgraph/internal/opid"
	otel "github.com/hanpama/cardgraph/internal/otel"
	schema "github.com/hanpama/cardgraph/internal/schema"
)

type Runtime struct {
	cfg       config.Config
	logger    *slog.Logger
	registry  *directive.Registry
	schema    *schema.Schema
	gatherer  *prometheus.Registry
	registrar discovery.Registrar
	cleanupFn func(context.Context) error
}

// Option customizes NewRuntime.
type Option func(*options)

type options struct {
	logOutput io.Writer
	schemaFS  fs.FS
	registrar discovery.Registrar
	bindings  []directive.Binding
	resolvers []schema.Option
}

// WithLogOutput sends logs to w instead of stdout.
func WithLogOutput(w io.Writer) Option { return func(o *options) { o.logOutput = w } }

// WithSchemaFS reads the schema from fsys instead of the configured directory.
func WithSchemaFS(fsys fs.FS) Option { return func(o *options) { o.schemaFS = fsys } }

// WithRegistrar replaces the registrar selected by configuration.
func WithRegistrar(r discovery.Registrar) Option { return func(o *options) { o.registrar = r } }

// WithBindings registers bs after the built-in directives.
func WithBindings(bs ...directive.Binding) Option {
	return func(o *options) { o.bindings = append(o.bindings, bs...) }
}

// WithResolver sets the base resolver of typeName.fieldName.
func WithResolver(typeName, fieldName string, r directive.Resolver) Option {
	return func(o *options) { o.resolvers = append(o.resolvers, schema.WithResolver(typeName, fieldName, r)) }
}

// setupTracing is replaced in tests.
var setupTracing = otel.Setup

// NewLogger builds the process logger from conf.
func NewLogger(conf config.Log, service string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: conf.Level}
	var h slog.Handler
	if conf.Format == config.LogFormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", service)
}

// NewRuntime builds the directive registry from cfg, assembles the schema
// against it and prepares discovery. Nothing is announced until Run.
func NewRuntime(ctx context.Context, cfg config.Config, opts ...Option) (*Runtime, error) {
	o := options{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	logger := NewLogger(cfg.Log, cfg.Service.Name, o.logOutput)
	slog.SetDefault(logger)
	logger.InfoContext(ctx, "starting", "version", cfg.Service.Version)

	eventbus.Use(eventbus.New())
	gatherer := prometheus.NewRegistry()
	collectors := metrics.NewCollectors(gatherer)
	unsubs := []func(){collectors.Subscribe(), subscribeLogging(logger)}
	shutdownTracing, err := setupTracing(cfg.Telemetry.OTLPEndpoint, cfg.Service.Name, cfg.Service.Version)
	if err != nil {
		for _, u := range unsubs {
			u()
		}
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	cleanup := func(ctx context.Context) error {
		for _, u := range unsubs {
			u()
		}
		return shutdownTracing(ctx)
	}

	rt, err := build(ctx, cfg, logger, o)
	if err != nil {
		_ = cleanup(ctx)
		return nil, err
	}
	rt.gatherer = gatherer
	rt.cleanupFn = cleanup
	return rt, nil
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger, o options) (*Runtime, error) {
	bindings, err := directives.FromConfig(cfg.Directives)
	if err != nil {
		return nil, fmt.Errorf("build directives: %w", err)
	}
	reg := directive.NewRegistry()
	if err := directives.Register(reg, append(bindings, o.bindings...)...); err != nil {
		return nil, err
	}

	var doc *language.SchemaDocument
	if o.schemaFS != nil {
		doc, err = schema.LoadFS(o.schemaFS)
	} else {
		doc, err = schema.LoadDir(cfg.Schema.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	resolvers := append([]schema.Option{
		schema.WithResolver("Query", "contactInfo", contactInfoResolver(cfg.Contact)),
	}, o.resolvers...)
	actx, _ := opid.NewContext(ctx)
	s, err := schema.Assemble(actx, doc, reg, resolvers...)
	if err != nil {
		return nil, fmt.Errorf("assemble schema: %w", err)
	}

	registrar := o.registrar
	if registrar == nil {
		registrar, err = discovery.New(cfg.Discovery, logger)
		if err != nil {
			return nil, fmt.Errorf("setup discovery: %w", err)
		}
	}

	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		registry:  reg,
		schema:    s,
		registrar: registrar,
	}, nil
}

func contactInfoResolver(info config.ContactInfo) directive.Resolver {
	return func(context.Context, directive.ResolveParams) (any, error) {
		return info, nil
	}
}

func (r *Runtime) Schema() *schema.Schema        { return r.schema }
func (r *Runtime) Registry() *directive.Registry { return r.registry }
func (r *Runtime) Gatherer() prometheus.Gatherer { return r.gatherer }
func (r *Runtime) Logger() *slog.Logger          { return r.logger }

// Run announces the instance to discovery and blocks until ctx is done or
// the process receives SIGINT/SIGTERM. The instance is withdrawn before Run
// returns.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsErr := make(chan error, 1)
	if addr := r.cfg.Telemetry.MetricsAddr; addr != "" {
		go func() { metricsErr <- metrics.Serve(ctx, addr, r.cfg.Telemetry.MetricsPath, r.gatherer, r.logger) }()
	}

	inst := discovery.InstanceFromConfig(r.cfg.Service)
	return discovery.Acquire(ctx, r.registrar, inst, func(ctx context.Context, h discovery.Handle) error {
		r.logger.InfoContext(ctx, "ready",
			"instance", h.Instance().ID,
			"directives", r.registry.Names(),
		)
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "shutting down")
			return nil
		case err := <-metricsErr:
			if err != nil {
				return fmt.Errorf("serve metrics: %w", err)
			}
			return nil
		}
	})
}

// Close releases telemetry subscriptions and flushes pending spans.
func (r *Runtime) Close(ctx context.Context) error {
	if r.cleanupFn == nil {
		return nil
	}
	return r.cleanupFn(ctx)
}
