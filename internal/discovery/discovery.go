// Package discovery announces this process to a service discovery backend
// for the lifetime of a scope.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	config "github.com/hanpama/cardgraph/internal/config"
	eventbus "github.com/hanpama/cardgraph/internal/eventbus"
	events "github.com/hanpama/cardgraph/internal/events"
)

// Instance describes one running copy of a service.
type Instance struct {
	Service string
	ID      string
	Address string
	Port    int
	Tags    []string
	Meta    map[string]string
}

// Registrar announces instances.
type Registrar interface {
	Register(ctx context.Context, inst Instance) (Handle, error)
}

// Handle is a live registration. Deregister withdraws it; calling it more
// than once is harmless.
type Handle interface {
	Instance() Instance
	Deregister(ctx context.Context) error
}

// InstanceFromConfig builds the instance announced for svc. An empty id is
// replaced by the service name and a random suffix.
func InstanceFromConfig(svc config.Service) Instance {
	id := svc.ID
	if id == "" {
		id = svc.Name + "-" + uuid.NewString()
	}
	inst := Instance{
		Service: svc.Name,
		ID:      id,
		Address: svc.Address,
		Port:    svc.Port,
		Tags:    svc.Tags,
	}
	if svc.Version != "" {
		inst.Meta = map[string]string{"version": svc.Version}
	}
	return inst
}

// Acquire registers inst, runs fn while the registration is live and
// deregisters afterwards. Deregistration happens on every exit from fn: a
// returned error, a panic (which is re-raised afterwards) or cancellation of
// ctx. It uses a context detached from ctx's cancellation so that a cancelled
// scope is still withdrawn.
func Acquire(ctx context.Context, r Registrar, inst Instance, fn func(ctx context.Context, h Handle) error) (err error) {
	start := time.Now()
	h, err := r.Register(ctx, inst)
	eventbus.Publish(ctx, events.DiscoveryRegistered{
		Service:    inst.Service,
		InstanceID: inst.ID,
		Err:        err,
		Duration:   time.Since(start),
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", inst.ID, err)
	}

	defer func() {
		derr := h.Deregister(context.WithoutCancel(ctx))
		eventbus.Publish(ctx, events.DiscoveryDeregistered{
			Service:    inst.Service,
			InstanceID: inst.ID,
			Err:        derr,
		})
		if derr != nil {
			err = errors.Join(err, fmt.Errorf("deregister %s: %w", inst.ID, derr))
		}
	}()

	return fn(ctx, h)
}

// Noop is the Registrar used when discovery is disabled.
type Noop struct{}

func (Noop) Register(_ context.Context, inst Instance) (Handle, error) {
	return noopHandle{inst}, nil
}

type noopHandle struct{ inst Instance }

func (h noopHandle) Instance() Instance             { return h.inst }
func (noopHandle) Deregister(context.Context) error { return nil }
