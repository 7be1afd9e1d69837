package app

import (
	"context"
	"log/slog"

	eventbus "github.com/hanpama/cardgraph/internal/eventbus"
	events "github.com/hanpama/cardgraph/internal/events"
)

func subscribeLogging(logger *slog.Logger) (unsubscribe func()) {
	logger = logger.With("component", "directives")
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.DirectiveRegistered) {
			logger.DebugContext(ctx, "directive registered", "directive", e.Name)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.RegistrySealed) {
			logger.DebugContext(ctx, "registry sealed", "directives", e.Directives)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SchemaAssemblyFinish) {
			if e.Err != nil {
				logger.ErrorContext(ctx, "schema assembly failed", "err", e.Err)
				return
			}
			logger.InfoContext(ctx, "schema assembled", "types", e.Types, "duration", e.Duration)
			if len(e.Unused) > 0 {
				logger.WarnContext(ctx, "registered directives not used by the schema", "directives", e.Unused)
			}
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.DiscoveryRegistered) {
			if e.Err != nil {
				logger.ErrorContext(ctx, "discovery registration failed", "instance", e.InstanceID, "err", e.Err)
			}
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.DiscoveryDeregistered) {
			if e.Err != nil {
				logger.WarnContext(ctx, "discovery deregistration failed", "instance", e.InstanceID, "err", e.Err)
			}
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
