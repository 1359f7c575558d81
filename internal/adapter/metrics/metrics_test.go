package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSet_RegistersAllGroups(t *testing.T) {
	set := NewSet()
	set.WebSocket.ActiveConnections.Set(3)
	set.Backplane.Received.Inc()
	set.Events.Events.WithLabelValues("postgres", "ok").Inc()

	rec := httptest.NewRecorder()
	Handler(set.Registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "scgnoti_websocket_active_connections 3")
	assert.Contains(t, body, "scgnoti_backplane_received_total 1")
	assert.Contains(t, body, `scgnoti_events_received_total{result="ok",source="postgres"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	set := NewSet()
	e := echo.New()
	e.Use(set.HTTP.Middleware("/ws"))
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	e.GET("/api/connections", ok)
	e.GET("/ws", ok)
	e.GET("/health/live", ok)

	for _, path := range []string{"/api/connections", "/api/connections", "/ws", "/health/live"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(set.HTTP.RequestsTotal.WithLabelValues("GET", "/api/connections", "204")))
	assert.Equal(t, 0.0, testutil.ToFloat64(set.HTTP.InFlightGauge))

	count, err := testutil.GatherAndCount(set.Registry, "scgnoti_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only the API route should be recorded")
}
