package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mcp-portal/gateway/internal/bus"
	"github.com/mcp-portal/gateway/internal/registry"
)

// ServerEventPayload is the data of a server_event.
type ServerEventPayload struct {
	ServerName string `json:"server_name,omitempty"`
	Kind       string `json:"kind"`
	Message    string `json:"message,omitempty"`
}

// ToolExecutionPayload is the data of a tool_execution.
type ToolExecutionPayload struct {
	ServerName string `json:"server_name"`
	Tool       string `json:"original"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// ResourceAccessPayload is the data of a resource_access.
type ResourceAccessPayload struct {
	ServerName string `json:"server_name"`
	URI        string `json:"original"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// ReconnectionPayload is the data of a server_reconnection.
type ReconnectionPayload struct {
	ServerName string `json:"server_name"`
	Attempt    int    `json:"attempt"`
	Success    bool   `json:"success"`
}

// InitialStatusPayload is the data of the initial_status frame every SSE
// subscriber receives first.
type InitialStatusPayload struct {
	Servers   []registry.ServerStatus `json:"servers"`
	Tools     int                     `json:"tools"`
	Resources int                     `json:"resources"`
}

// handleEvents serves /api/v1/events: an SSE stream opening with a full
// registry snapshot, followed by deltas and periodic heartbeats.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := g.events.Subscribe()
	defer sub.Close()

	initial := bus.NewEvent(bus.KindInitialStatus, InitialStatusPayload{
		Servers:   g.registry.ListServers(),
		Tools:     len(g.catalog.Tools()),
		Resources: len(g.catalog.Resources()),
	})
	if err := writeSSE(w, initial); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := writeSSE(w, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event bus.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
