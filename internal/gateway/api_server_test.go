package gateway

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-portal/gateway/internal/api"
	"github.com/mcp-portal/gateway/internal/errors"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedKind   string
	}{
		{
			name:           "bad request maps to 400",
			err:            fmt.Errorf("%w: nope", errors.ErrBadRequest),
			expectedStatus: http.StatusBadRequest,
			expectedKind:   "bad_request",
		},
		{
			name:           "config invalid maps to 400",
			err:            fmt.Errorf("%w: broken decl", errors.ErrConfigInvalid),
			expectedStatus: http.StatusBadRequest,
			expectedKind:   "config_invalid",
		},
		{
			name:           "not found maps to 404",
			err:            fmt.Errorf("%w: tool 'x'", errors.ErrNotFound),
			expectedStatus: http.StatusNotFound,
			expectedKind:   "not_found",
		},
		{
			name:           "server not found maps to 404",
			err:            fmt.Errorf("%w: ghost", errors.ErrServerNotFound),
			expectedStatus: http.StatusNotFound,
			expectedKind:   "not_found",
		},
		{
			name:           "timeout maps to 504",
			err:            fmt.Errorf("%w: deadline", errors.ErrTimeout),
			expectedStatus: http.StatusGatewayTimeout,
			expectedKind:   "timeout",
		},
		{
			name:           "upstream error maps to 502",
			err:            fmt.Errorf("%w: boom", errors.ErrUpstream),
			expectedStatus: http.StatusBadGateway,
			expectedKind:   "upstream_error",
		},
		{
			name:           "upstream unavailable maps to 502",
			err:            fmt.Errorf("%w: down", errors.ErrUpstreamUnavailable),
			expectedStatus: http.StatusBadGateway,
			expectedKind:   "upstream_unavailable",
		},
		{
			name:           "session closed maps to 502",
			err:            fmt.Errorf("%w: gone", errors.ErrSessionClosed),
			expectedStatus: http.StatusBadGateway,
			expectedKind:   "session_closed",
		},
		{
			name:           "spawn failed maps to 502",
			err:            fmt.Errorf("%w: exec", errors.ErrSpawnFailed),
			expectedStatus: http.StatusBadGateway,
			expectedKind:   "spawn_failed",
		},
		{
			name:           "unknown error maps to 500",
			err:            stdErrors.New("mystery"),
			expectedStatus: http.StatusInternalServerError,
			expectedKind:   "internal",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			statusErr := mapError(hclog.NewNullLogger(), tc.err)
			assert.Equal(t, tc.expectedStatus, statusErr.GetStatus())

			apiErr, ok := statusErr.(*api.Error)
			require.True(t, ok)
			assert.Equal(t, tc.expectedKind, apiErr.Detail.Kind)
		})
	}
}
