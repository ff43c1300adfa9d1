package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// HealthResponse represents the wrapped API response for the health endpoint.
type HealthResponse struct {
	Body HealthResponseBody
}

// HealthResponseBody reports liveness and uptime.
type HealthResponseBody struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// RegisterHealthRoutes sets up the health endpoint.
func RegisterHealthRoutes(routerAPI huma.API, startedAt time.Time, apiPathPrefix string) {
	huma.Register(
		routerAPI,
		huma.Operation{
			OperationID: "getHealth",
			Method:      http.MethodGet,
			Path:        apiPathPrefix,
			Summary:     "Gateway liveness and uptime",
			Tags:        []string{"Health"},
		},
		func(ctx context.Context, _ *struct{}) (*HealthResponse, error) {
			resp := &HealthResponse{}
			resp.Body = HealthResponseBody{
				Status: "ok",
				Uptime: time.Since(startedAt).Round(time.Second).String(),
			}
			return resp, nil
		},
	)
}
