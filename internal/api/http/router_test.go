package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/api/http/handlers"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/observability"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestApp(deps map[string]handlers.Pinger) *fiber.App {
	app := fiber.New()
	metrics := observability.NewMetrics()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:  handlers.NewHealthHandler("ticket-bot", "test", deps),
		Metrics: metrics,
	})
	return app
}

func TestRootRoute(t *testing.T) {
	app := newTestApp(nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bot is running!", string(body))
}

func TestReadyReportsDependencies(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	resp, err := newTestApp(map[string]handlers.Pinger{"store": ok, "redis": ok}).
		Test(httptest.NewRequest("GET", "/health/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = newTestApp(map[string]handlers.Pinger{"store": ok, "redis": down}).
		Test(httptest.NewRequest("GET", "/health/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var payload struct {
		Error struct {
			Code    string            `json:"code"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", payload.Error.Code)
	assert.Equal(t, "ok", payload.Error.Details["store"])
	assert.Equal(t, "connection refused", payload.Error.Details["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(nil)
	_, err := app.Test(httptest.NewRequest("GET", "/health/live", nil))
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "http_requests_total")
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	resp, err := newTestApp(nil).Test(httptest.NewRequest("GET", "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
