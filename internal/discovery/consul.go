package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"

	config "github.com/hanpama/cardgraph/internal/config"
)

// Consul registers instances with the local Consul agent.
type Consul struct {
	client          *api.Client
	timeout         time.Duration
	checkTTL        time.Duration
	deregisterAfter time.Duration
	logger          *slog.Logger
}

func NewConsul(conf config.Discovery, logger *slog.Logger) (*Consul, error) {
	cfg := api.DefaultConfig()
	cfg.Address = conf.Address
	if conf.Scheme != "" {
		cfg.Scheme = conf.Scheme
	}
	cfg.Token = conf.Token

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client creation failed: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consul{
		client:          client,
		timeout:         conf.Timeout,
		checkTTL:        conf.CheckTTL,
		deregisterAfter: conf.DeregisterAfter,
		logger:          logger.With("component", "discovery"),
	}, nil
}

// New returns the registrar selected by conf.
func New(conf config.Discovery, logger *slog.Logger) (Registrar, error) {
	if !conf.Enabled {
		return Noop{}, nil
	}
	return NewConsul(conf, logger)
}

func (c *Consul) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func checkID(inst Instance) string { return "service:" + inst.ID }

func (c *Consul) Register(ctx context.Context, inst Instance) (Handle, error) {
	reg := &api.AgentServiceRegistration{
		ID:      inst.ID,
		Name:    inst.Service,
		Tags:    inst.Tags,
		Port:    inst.Port,
		Address: inst.Address,
		Meta:    inst.Meta,
	}
	if c.checkTTL > 0 {
		reg.Check = &api.AgentServiceCheck{
			CheckID: checkID(inst),
			TTL:     c.checkTTL.String(),
			Status:  api.HealthPassing,
		}
		if c.deregisterAfter > 0 {
			reg.Check.DeregisterCriticalServiceAfter = c.deregisterAfter.String()
		}
	}

	rctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.client.Agent().ServiceRegisterOpts(reg, api.ServiceRegisterOpts{}.WithContext(rctx)); err != nil {
		return nil, fmt.Errorf("consul service register: %w", err)
	}
	c.logger.Info("registered service instance", "service", inst.Service, "id", inst.ID)

	h := &consulHandle{consul: c, inst: inst, stop: make(chan struct{}), done: make(chan struct{})}
	if c.checkTTL > 0 {
		go h.heartbeat()
	} else {
		close(h.done)
	}
	return h, nil
}

type consulHandle struct {
	consul *Consul
	inst   Instance
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	err    error
}

func (h *consulHandle) Instance() Instance { return h.inst }

// heartbeat keeps the TTL check passing at half the TTL until Deregister.
func (h *consulHandle) heartbeat() {
	defer close(h.done)
	ticker := time.NewTicker(h.consul.checkTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			ctx, cancel := h.consul.withTimeout(context.Background())
			err := h.consul.client.Agent().UpdateTTLOpts(checkID(h.inst), "", api.HealthPassing, (&api.QueryOptions{}).WithContext(ctx))
			cancel()
			if err != nil {
				h.consul.logger.Warn("ttl check update failed", "id", h.inst.ID, "err", err)
			}
		}
	}
}

func (h *consulHandle) Deregister(ctx context.Context) error {
	h.once.Do(func() {
		close(h.stop)
		<-h.done

		dctx, cancel := h.consul.withTimeout(ctx)
		defer cancel()
		if err := h.consul.client.Agent().ServiceDeregisterOpts(h.inst.ID, (&api.QueryOptions{}).WithContext(dctx)); err != nil {
			h.err = fmt.Errorf("consul service deregister: %w", err)
			return
		}
		h.consul.logger.Info("deregistered service instance", "service", h.inst.Service, "id", h.inst.ID)
	})
	return h.err
}
