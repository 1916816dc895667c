// Package engine wires the ledger, the network builder and the servers
// together from a config.Config.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/api"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/config"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/core"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/ledger"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/network"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/topology"
)

// Common errors for engine operations
var (
	ErrNotDeployed = errors.New("network is not deployed")
	ErrNoEntry     = errors.New("network has no entry unit")
)

// Status represents the current state of the engine.
type Status struct {
	Owner        string `json:"owner"`
	Builder      string `json:"builder"`
	Deployed     bool   `json:"deployed"`
	Layers       int    `json:"layers"`
	Units        int    `json:"units"`
	Events       int    `json:"events"`
	TotalSupply  string `json:"total_supply"`
	IsRunning    bool   `json:"is_running"`
	ServerAddr   string `json:"server_addr,omitempty"`
	GatewayAddr  string `json:"gateway_addr,omitempty"`
	MetricsAddr  string `json:"metrics_addr,omitempty"`
	StrictLayers bool   `json:"strict_layers"`
}

// Engine owns one ledger, one builder and the servers exposing them.
type Engine struct {
	config *config.Config
	logger *slog.Logger

	owner    common.Address
	ledger   *ledger.Ledger
	builder  *core.NetworkBuilder
	events   *core.EventLog
	registry *prometheus.Registry
	metrics  *api.Metrics

	network *topology.Network

	server        *api.ArrowServer
	gateway       *network.Gateway
	metricsServer *api.MetricsServer

	running bool
	mu      sync.RWMutex
}

// New builds an engine and funds the configured accounts. The topology is
// not deployed until Deploy is called.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	owner, _ := cfg.OwnerAddress()
	builderAddr, _ := cfg.BuilderAddress()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	e := &Engine{
		config:   cfg,
		logger:   logger.With(slog.String("component", "engine")),
		owner:    owner,
		ledger:   ledger.New(logger),
		events:   core.NewEventLog(),
		registry: registry,
		metrics:  api.NewMetrics(cfg.Metrics.Namespace, registry),
	}

	e.builder = core.NewNetworkBuilder(owner, builderAddr, e.ledger,
		core.WithEventSink(core.MultiSink{e.events, e.metrics, core.LogSink{Logger: logger}}),
		core.WithLogger(logger),
		core.WithStrictDivisibility(cfg.Network.StrictDivisibility),
	)

	genesis, _ := cfg.Genesis()
	for _, g := range genesis {
		if err := e.ledger.Fund(g.Address, g.Balance); err != nil {
			return nil, fmt.Errorf("failed to fund %s: %w", g.Address.Hex(), err)
		}
	}

	return e, nil
}

// Deploy builds the configured topology on behalf of the owner.
func (e *Engine) Deploy() (*topology.Network, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.network != nil {
		return e.network, nil
	}

	plan, err := e.config.Plan()
	if err != nil {
		return nil, err
	}

	net, err := topology.Deploy(e.builder, e.owner, plan)
	if err != nil {
		return nil, err
	}
	e.network = net

	e.logger.Info("network deployed",
		slog.Int("layers", len(net.Layers)),
		slog.Int("units", net.UnitCount()),
		slog.Int("entries", len(net.Entry())))
	return net, nil
}

// Send executes one top-level transfer on the ledger.
func (e *Engine) Send(ctx context.Context, from, to common.Address, amount *big.Int) (*ledger.Receipt, error) {
	return e.ledger.Send(ctx, from, to, amount)
}

// SendToEntry sends amount from the sender into the first entry unit of the
// deployed network.
func (e *Engine) SendToEntry(ctx context.Context, from common.Address, amount *big.Int) (*ledger.Receipt, error) {
	e.mu.RLock()
	net := e.network
	e.mu.RUnlock()

	if net == nil {
		return nil, ErrNotDeployed
	}
	entry := net.Entry()
	if len(entry) == 0 {
		return nil, ErrNoEntry
	}
	return e.ledger.Send(ctx, from, entry[0], amount)
}

// Start launches the servers enabled in the config.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	cfg := e.config
	if cfg.Metrics.Enabled {
		e.metricsServer = api.NewMetricsServer(cfg.Metrics.Address, e.registry)
		if err := e.metricsServer.StartAsync(); err != nil {
			e.metricsServer = nil
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	if cfg.Server.Enabled {
		auth := api.NewAuthenticator(api.AuthConfig{
			Enabled: cfg.Server.AuthEnabled,
			Token:   cfg.Server.AuthToken,
		})
		if auth.IsEnabled() && cfg.Server.AuthToken == "" {
			e.logger.Warn("generated auth token", slog.String("token", auth.Token()))
		}
		handler := api.NewTransferHandler(e.ledger, e.metrics, e.logger)
		e.server = api.NewArrowServer(handler, auth, e.metrics, e.logger)
		if err := e.server.StartAsync(cfg.Server.Address); err != nil {
			e.stopLocked()
			return fmt.Errorf("failed to start arrow server: %w", err)
		}
	}

	if cfg.Gateway.Enabled {
		gcfg := network.DefaultGatewayConfig()
		gcfg.ID = cfg.Gateway.ID
		gcfg.Host = cfg.Gateway.Host
		gcfg.Port = cfg.Gateway.Port
		if cfg.Gateway.ReplayTolerance > 0 {
			gcfg.ReplayTolerance = cfg.Gateway.ReplayTolerance
		}
		e.gateway = network.NewGateway(gcfg, e.ledger, e.logger)
		if err := e.gateway.Start(); err != nil {
			e.stopLocked()
			return fmt.Errorf("failed to start gateway: %w", err)
		}
	}

	e.running = true
	e.logger.Info("engine started")
	return nil
}

// Stop shuts down every running server.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	e.stopLocked()
	e.running = false
	e.logger.Info("engine stopped")
}

// stopLocked stops servers in reverse start order (called with lock held).
func (e *Engine) stopLocked() {
	if e.gateway != nil {
		e.gateway.Stop()
		e.gateway = nil
	}
	if e.server != nil {
		e.server.Stop()
		e.server = nil
	}
	if e.metricsServer != nil {
		if err := e.metricsServer.Stop(); err != nil {
			e.logger.Debug("metrics server stop", slog.String("error", err.Error()))
		}
		e.metricsServer = nil
	}
}

// Status returns the current engine status.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := Status{
		Owner:        e.owner.Hex(),
		Builder:      e.builder.Address().Hex(),
		Deployed:     e.network != nil,
		Units:        e.builder.UnitCount(),
		Events:       e.events.Len(),
		TotalSupply:  ledger.FormatEther(e.ledger.TotalSupply()),
		IsRunning:    e.running,
		StrictLayers: e.config.Network.StrictDivisibility,
	}
	if e.network != nil {
		st.Layers = len(e.network.Layers)
	}
	if e.server != nil {
		if addr := e.server.Addr(); addr != nil {
			st.ServerAddr = addr.String()
		}
	}
	if e.gateway != nil {
		if addr := e.gateway.Addr(); addr != nil {
			st.GatewayAddr = addr.String()
		}
	}
	if e.metricsServer != nil {
		if addr := e.metricsServer.Addr(); addr != nil {
			st.MetricsAddr = addr.String()
		}
	}
	return st
}

// Ledger returns the engine's ledger.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Builder returns the engine's network builder.
func (e *Engine) Builder() *core.NetworkBuilder { return e.builder }

// Events returns every builder event recorded so far.
func (e *Engine) Events() []core.Event { return e.events.Events() }

// Network returns the deployed topology, or nil.
func (e *Engine) Network() *topology.Network {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.network
}

// Owner returns the builder owner.
func (e *Engine) Owner() common.Address { return e.owner }

// Registry returns the Prometheus registry holding the engine metrics.
func (e *Engine) Registry() *prometheus.Registry { return e.registry }
