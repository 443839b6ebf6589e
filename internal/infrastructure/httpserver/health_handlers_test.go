package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/cloud-storage-provider/internal/application/services"
	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/health"
	"github.com/avatarctic/cloud-storage-provider/internal/core/ports"
	"github.com/avatarctic/cloud-storage-provider/internal/infrastructure/httpserver"
	tmocks "github.com/avatarctic/cloud-storage-provider/test/mocks"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestServer(t *testing.T, hs ports.HealthService, providers ports.StorageProviders) *httptest.Server {
	t.Helper()
	if hs == nil {
		hs = services.NewHealthService(quietLogger())
	}
	if providers == nil {
		providers = &tmocks.StorageProvidersMock{}
	}
	srv := httpserver.NewServer(&httpserver.ServerConfig{
		Host:          "127.0.0.1",
		Port:          "0",
		HealthTimeout: 2 * time.Second,
	}, quietLogger(), httpserver.ServerDeps{HealthService: hs, Storage: providers})
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)
	return ts
}

func evaluatorReturning(status health.Status, desc string) *tmocks.HealthEvaluatorMock {
	return &tmocks.HealthEvaluatorMock{
		EvaluateFn: func(ctx context.Context, check health.CheckContext) (health.Result, error) {
			if status == health.StatusHealthy {
				return health.Healthy(desc), nil
			}
			return health.Result{Status: status, Description: desc, Cause: errors.New(desc)}, nil
		},
	}
}

type reportBody struct {
	Status string `json:"status"`
	Checks map[string]struct {
		Status      string   `json:"status"`
		Description string   `json:"description"`
		Error       string   `json:"error"`
		Tags        []string `json:"tags"`
	} `json:"checks"`
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpoint_StatusCodes(t *testing.T) {
	hs := services.NewHealthService(quietLogger())
	require.NoError(t, hs.Register(health.Registration{Name: "storage:azure:default", Tags: []string{"ready"}},
		evaluatorReturning(health.StatusHealthy, "Connected to storage service")))
	require.NoError(t, hs.Register(health.Registration{Name: "cache:redis", Tags: []string{"cache"}},
		evaluatorReturning(health.StatusDegraded, "redis slow")))
	ts := newTestServer(t, hs, nil)

	var body reportBody
	code := getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, code, "degraded still serves traffic")
	assert.Equal(t, "degraded", body.Status)
	require.Len(t, body.Checks, 2)
	assert.Equal(t, "Connected to storage service", body.Checks["storage:azure:default"].Description)
	assert.Equal(t, "redis slow", body.Checks["cache:redis"].Error)

	body = reportBody{}
	code = getJSON(t, ts.URL+"/health/ready", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body.Status)
	require.Len(t, body.Checks, 1)
	assert.Equal(t, []string{"ready"}, body.Checks["storage:azure:default"].Tags)
}

func TestHealthEndpoint_UnhealthyIs503(t *testing.T) {
	hs := services.NewHealthService(quietLogger())
	require.NoError(t, hs.Register(health.Registration{Name: "storage:azure:default", Tags: []string{"ready"}},
		evaluatorReturning(health.StatusUnhealthy, "AuthorizationFailure")))
	ts := newTestServer(t, hs, nil)

	var body reportBody
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/health", &body))
	assert.Equal(t, "unhealthy", body.Status)

	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health/live", nil), "liveness probes nothing")
}

func TestHealthEndpoint_SingleCheck(t *testing.T) {
	hs := services.NewHealthService(quietLogger())
	require.NoError(t, hs.Register(health.Registration{Name: "storage:azure:archive"},
		evaluatorReturning(health.StatusHealthy, "ok")))
	ts := newTestServer(t, hs, nil)

	var entry struct {
		Status      string `json:"status"`
		Description string `json:"description"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health/checks/storage:azure:archive", &entry))
	assert.Equal(t, "healthy", entry.Status)
	assert.Equal(t, "ok", entry.Description)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/health/checks/missing", nil))
}

func TestHealthEndpoint_EmptyIsHealthy(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	var body reportBody
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &body))
	assert.Equal(t, "healthy", body.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	_ = getJSON(t, ts.URL+"/health/live", nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), "http_requests_total")
}
