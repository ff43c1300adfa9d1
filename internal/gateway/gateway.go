// Package gateway wires the discovery, session, registry, aggregation and
// dispatch layers into the running daemon and owns their lifecycles.
package gateway

import (
	"context"
	stdErrors "errors"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mcp-portal/gateway/internal/aggregator"
	"github.com/mcp-portal/gateway/internal/api"
	"github.com/mcp-portal/gateway/internal/bus"
	"github.com/mcp-portal/gateway/internal/config"
	"github.com/mcp-portal/gateway/internal/discovery"
	"github.com/mcp-portal/gateway/internal/metrics"
	"github.com/mcp-portal/gateway/internal/registry"
	"github.com/mcp-portal/gateway/internal/session"
	"github.com/mcp-portal/gateway/internal/transport"
)

// Gateway is the assembled daemon.
// NewGateway should be used to create instances of Gateway.
type Gateway struct {
	logger     hclog.Logger
	settings   config.Settings
	manual     *discovery.ManualStore
	scanner    *discovery.Scanner
	events     *bus.Bus
	registry   *registry.Registry
	catalog    *aggregator.Catalog
	supervisor *Supervisor
	dispatcher *Dispatcher
	collector  *metrics.Collector
	apiServer  *APIServer
	startedAt  time.Time
}

// NewGateway assembles a gateway from its settings. The config directory holds
// the manual source and the optional settings file.
func NewGateway(logger hclog.Logger, settings config.Settings, configDir, version string) (*Gateway, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	manual := discovery.NewManualStore(configDir)
	events := bus.New(logger)
	reg := registry.New(logger, events)
	catalog := aggregator.New(logger)
	scanner := discovery.NewScanner(logger, home, manual)
	collector := metrics.NewCollector()

	dialer := transport.NewDialer(logger)
	dial := func(ctx context.Context, decl discovery.Server) (session.Conn, error) {
		return dialer.Dial(ctx, decl)
	}

	supervisor := NewSupervisor(logger, reg, events, manual, scanner, dial)
	dispatcher := NewDispatcher(logger, catalog, supervisor, events, collector, version)

	g := &Gateway{
		logger:     logger.Named("gateway"),
		settings:   settings,
		manual:     manual,
		scanner:    scanner,
		events:     events,
		registry:   reg,
		catalog:    catalog,
		supervisor: supervisor,
		dispatcher: dispatcher,
		collector:  collector,
		startedAt:  time.Now().UTC(),
	}

	// Any registry mutation that can affect the catalog funnels through here.
	reg.SetOnChange(g.rebuildCatalog)

	g.apiServer = NewAPIServer(
		logger,
		settings,
		api.Dependencies{
			Manager:   supervisor,
			Catalog:   catalog,
			Config:    manual,
			StartedAt: g.startedAt,
		},
		g.handleEvents,
		dispatcher.Handler(),
		version,
	)

	return g, nil
}

// Run starts everything and blocks until the context is canceled or the API
// server fails. Sessions are stopped in parallel; each gets the session stop
// grace period (5 s) to close cleanly before its child is force-terminated.
func (g *Gateway) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.supervisor.Start(runCtx)

	go g.events.Run(runCtx)
	go g.collector.Run(runCtx, g.events, g.supervisor.SessionStates)

	if _, err := g.supervisor.Refresh(runCtx); err != nil {
		return err
	}

	watcher, err := discovery.NewWatcher(g.logger, g.scanner.WatchPaths(), func() {
		if _, err := g.supervisor.Refresh(context.Background()); err != nil {
			g.logger.Error("refresh after config change failed", "error", err)
		}
	})
	if err != nil {
		g.logger.Warn("config watching disabled", "error", err)
	} else {
		go watcher.Run(runCtx)
	}

	err = g.apiServer.Start(runCtx)

	g.logger.Info("shutting down sessions")
	cancel()
	g.supervisor.StopAll()

	if stdErrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// rebuildCatalog derives the aggregated catalog from the ready sessions and
// pushes the result into the MCP mirror and the metrics gauges. Runs on
// session callback paths, so it must not call back into the supervisor.
func (g *Gateway) rebuildCatalog() {
	tools, resources := g.registry.ReadyInventories()
	g.catalog.Rebuild(tools, resources)
	g.dispatcher.SyncCatalog()
	g.collector.SetCatalogSize(len(g.catalog.Tools()), len(g.catalog.Resources()))
}
