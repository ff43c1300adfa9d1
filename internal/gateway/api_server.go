package gateway

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcp-portal/gateway/internal/api"
	"github.com/mcp-portal/gateway/internal/config"
	"github.com/mcp-portal/gateway/internal/errors"
)

// APIServer manages the HTTP surface of the gateway: the REST API, the events
// stream, the unified MCP endpoint, and the prometheus scrape handler.
// NewAPIServer should be used to create instances of APIServer.
type APIServer struct {
	logger          hclog.Logger
	addr            string
	cors            config.CORSConfig
	shutdownTimeout time.Duration
	handler         http.Handler
}

// NewAPIServer builds the router and binds all routes.
func NewAPIServer(
	logger hclog.Logger,
	settings config.Settings,
	deps api.Dependencies,
	events http.HandlerFunc,
	mcpHandler http.Handler,
	version string,
) *APIServer {
	apiLogger := logger.Named("api")

	mux := chi.NewMux()
	mux.Use(middleware.StripSlashes)

	if settings.CORS.Enabled {
		applyCORS(apiLogger, mux, settings.CORS)
	}

	humaConfig := huma.DefaultConfig("mcp-portal docs", version)
	router := humachi.New(mux, humaConfig)

	// Configure the error handling wrapping.
	huma.NewErrorWithContext = errorHandler(apiLogger)

	// Group all REST routes under the /api/v1 prefix.
	v1 := huma.NewGroup(router, "/api/v1")
	api.RegisterRoutes(v1, deps)

	// Streaming endpoints bypass huma: SSE does not fit request/response
	// operations.
	mux.Get("/api/v1/events", events)
	mux.Mount(mcpBasePath, mcpHandler)
	mux.Handle("/metrics", promhttp.Handler())

	return &APIServer{
		logger:          apiLogger,
		addr:            fmt.Sprintf("%s:%d", settings.Host, settings.Port),
		cors:            settings.CORS,
		shutdownTimeout: settings.ShutdownTimeout(),
		handler:         mux,
	}
}

// Handler exposes the full router, for tests.
func (a *APIServer) Handler() http.Handler {
	return a.handler
}

// Start serves until the context is canceled or the listener fails. A bind
// failure on a busy port is reported as errors.ErrPortInUse.
func (a *APIServer) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    a.addr,
		Handler: a.handler,
	}
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("Starting API server", "address", a.addr)
		if err := srv.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			if stdErrors.Is(err, syscall.EADDRINUSE) {
				err = fmt.Errorf("%w: %s", errors.ErrPortInUse, a.addr)
			}
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		a.logger.Info("Shutting down API server...")
		_ = srv.Shutdown(shutdownCtx)
		a.logger.Info("Shutdown complete")
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// applyCORS applies CORS middleware to the router based on the configured options.
func applyCORS(logger hclog.Logger, mux *chi.Mux, cfg config.CORSConfig) {
	logger.Info("Enabling CORS", "origins", cfg.AllowOrigins)

	corsOptions := cors.Options{
		AllowedOrigins:   cfg.AllowOrigins,
		AllowedMethods:   cfg.AllowMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAgeSeconds,
	}

	// Handle wildcard origins properly.
	for i, origin := range corsOptions.AllowedOrigins {
		if origin == "*" {
			corsOptions.AllowedOrigins = []string{"*"}
			corsOptions.AllowCredentials = false
			break
		}
		corsOptions.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	mux.Use(cors.Handler(corsOptions))
}

// mapError maps application domain errors to appropriate HTTP status codes.
//
// This function is the central place where domain errors from internal/errors
// are converted to the REST error envelope. When adding new errors to
// internal/errors/errors.go, add them here to keep them from falling through
// to the default case, which returns HTTP 500.
func mapError(logger hclog.Logger, err error) huma.StatusError {
	kind := errors.Kind(err)

	switch {
	case stdErrors.Is(err, errors.ErrBadRequest),
		stdErrors.Is(err, errors.ErrConfigInvalid):
		return api.NewError(http.StatusBadRequest, kind, err.Error())
	case stdErrors.Is(err, errors.ErrNotFound),
		stdErrors.Is(err, errors.ErrServerNotFound):
		return api.NewError(http.StatusNotFound, kind, err.Error())
	case stdErrors.Is(err, errors.ErrTimeout):
		return api.NewError(http.StatusGatewayTimeout, kind, err.Error())
	case stdErrors.Is(err, errors.ErrUpstream),
		stdErrors.Is(err, errors.ErrUpstreamUnavailable),
		stdErrors.Is(err, errors.ErrSessionClosed),
		stdErrors.Is(err, errors.ErrSpawnFailed),
		stdErrors.Is(err, errors.ErrHandshakeFailed),
		stdErrors.Is(err, errors.ErrTransport):
		logger.Error("Upstream failure", "error", err)
		return api.NewError(http.StatusBadGateway, kind, err.Error())
	default:
		logger.Error("Unexpected error", "error", err)
		return api.NewError(http.StatusInternalServerError, kind, "internal server error")
	}
}

// errorHandler wraps error handling for the application when converting to API
// friendly errors. It allows the logger to be supplied to functions that
// resolve huma.StatusError.
func errorHandler(logger hclog.Logger) func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
	return func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		switch len(errs) {
		case 0:
			return api.NewError(status, "bad_request", msg)
		case 1:
			return mapError(logger, errs[0])
		default:
			return mapError(logger, stdErrors.Join(errs...))
		}
	}
}
