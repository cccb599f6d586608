package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicHandler struct{}

func (panicHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/boom", func(echo.Context) error { panic("boom") })
}

func newTestServer() (*Server, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return NewServer(panicHandler{}, WithPort(0), WithHost("127.0.0.1"), WithMetrics("/metrics", h, reg)), reg
}

func serve(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer()
	rec := serve(s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusOK, body.Status)
	assert.Equal(t, map[string]interface{}{"status": "ok"}, body.Data)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	s, _ := newTestServer()
	serve(s, "/healthz")
	serve(s, "/healthz")

	rec := serve(s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `nowcast_http_requests_total{method="GET",route="/healthz",status="200"} 2`)
}

func TestRecoverReturns500(t *testing.T) {
	s, _ := newTestServer()
	rec := serve(s, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal Server Error")
}

func TestSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() {
		NewServer(nil, WithMetrics("", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), reg))
		NewServer(nil, WithMetrics("", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), reg))
	})
}

func TestStartStop(t *testing.T) {
	s, _ := newTestServer()
	require.NoError(t, s.Start())
	assert.False(t, strings.HasSuffix(s.Addr(), ":0"))

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", s.Addr()))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
}
