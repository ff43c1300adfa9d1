// Package metrics exposes the gateway's prometheus instrumentation and feeds
// periodic metrics_update events onto the bus.
package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mcp-portal/gateway/internal/bus"
)

// publishInterval paces metrics_update events for dashboard consumers.
const publishInterval = 30 * time.Second

var (
	// toolExecutions tracks dispatched tool calls by server and outcome.
	toolExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_tool_executions_total",
			Help: "Total tool executions dispatched to upstream servers, by server and outcome",
		},
		[]string{"server", "outcome"},
	)

	// resourceReads tracks dispatched resource reads by server and outcome.
	resourceReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_resource_reads_total",
			Help: "Total resource reads dispatched to upstream servers, by server and outcome",
		},
		[]string{"server", "outcome"},
	)

	// executionSeconds tracks upstream call latency.
	executionSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_upstream_call_seconds",
			Help:    "Latency of upstream MCP calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server"},
	)

	// sessionsByState tracks how many sessions are in each lifecycle state.
	sessionsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "portal_sessions",
			Help: "Number of upstream sessions by lifecycle state",
		},
		[]string{"state"},
	)

	// catalogSize tracks the aggregated catalog.
	catalogSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "portal_catalog_entries",
			Help: "Number of entries in the aggregated catalog, by entry type",
		},
		[]string{"type"},
	)
)

// Snapshot is the payload of a metrics_update event.
type Snapshot struct {
	ToolExecutions  int64 `json:"tool_executions"`
	ToolFailures    int64 `json:"tool_failures"`
	ResourceReads   int64 `json:"resource_reads"`
	ResourceErrors  int64 `json:"resource_errors"`
	CatalogTools    int   `json:"catalog_tools"`
	CatalogResource int   `json:"catalog_resources"`
	UptimeSeconds   int64 `json:"uptime_seconds"`
}

// Collector keeps running totals alongside the prometheus registry so the
// event payloads don't have to scrape it.
type Collector struct {
	started      time.Time
	toolOK       atomic.Int64
	toolErr      atomic.Int64
	resourceOK   atomic.Int64
	resourceErr  atomic.Int64
	catalogTools atomic.Int64
	catalogFiles atomic.Int64
}

// NewCollector creates a collector anchored at the current time.
func NewCollector() *Collector {
	return &Collector{started: time.Now().UTC()}
}

// ToolExecution records one dispatched tool call.
func (c *Collector) ToolExecution(server string, duration time.Duration, success bool) {
	outcome := "success"
	if success {
		c.toolOK.Add(1)
	} else {
		c.toolErr.Add(1)
		outcome = "error"
	}
	toolExecutions.WithLabelValues(server, outcome).Inc()
	executionSeconds.WithLabelValues(server).Observe(duration.Seconds())
}

// ResourceRead records one dispatched resource read.
func (c *Collector) ResourceRead(server string, duration time.Duration, success bool) {
	outcome := "success"
	if success {
		c.resourceOK.Add(1)
	} else {
		c.resourceErr.Add(1)
		outcome = "error"
	}
	resourceReads.WithLabelValues(server, outcome).Inc()
	executionSeconds.WithLabelValues(server).Observe(duration.Seconds())
}

// SetSessionStates replaces the per-state session gauge.
func (c *Collector) SetSessionStates(counts map[string]int) {
	sessionsByState.Reset()
	for state, count := range counts {
		sessionsByState.WithLabelValues(state).Set(float64(count))
	}
}

// SetCatalogSize records the current catalog dimensions.
func (c *Collector) SetCatalogSize(tools, resources int) {
	c.catalogTools.Store(int64(tools))
	c.catalogFiles.Store(int64(resources))
	catalogSize.WithLabelValues("tool").Set(float64(tools))
	catalogSize.WithLabelValues("resource").Set(float64(resources))
}

// Snapshot returns the current totals.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		ToolExecutions:  c.toolOK.Load() + c.toolErr.Load(),
		ToolFailures:    c.toolErr.Load(),
		ResourceReads:   c.resourceOK.Load() + c.resourceErr.Load(),
		ResourceErrors:  c.resourceErr.Load(),
		CatalogTools:    int(c.catalogTools.Load()),
		CatalogResource: int(c.catalogFiles.Load()),
		UptimeSeconds:   int64(time.Since(c.started).Seconds()),
	}
}

// Run publishes metrics_update events until the context ends. sessionStates
// is polled each tick to refresh the per-state session gauge.
func (c *Collector) Run(ctx context.Context, events *bus.Bus, sessionStates func() map[string]int) {
	ticker := time.NewTicker(publishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sessionStates != nil {
				c.SetSessionStates(sessionStates())
			}
			events.Publish(bus.KindMetricsUpdate, c.Snapshot())
		}
	}
}
