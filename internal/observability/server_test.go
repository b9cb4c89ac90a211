// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, server *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + server.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server := startServer(t, func() bool { return true })

	server.Metrics().PluginLoaded()
	server.Metrics().ReloadCompleted("ok")

	status, body := get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "nfive_plugins_loaded_total")
	assert.Contains(t, body, `nfive_reloads_total{outcome="ok"}`)
}

func TestServer_Liveness(t *testing.T) {
	server := startServer(t, nil)

	status, body := get(t, server, "/healthz/liveness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}

func TestServer_ReadinessFollowsChecker(t *testing.T) {
	var ready atomic.Bool
	server := startServer(t, ready.Load)

	status, body := get(t, server, "/healthz/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "not ready", strings.TrimSpace(body))

	ready.Store(true)
	status, _ = get(t, server, "/healthz/readiness")
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_ReadinessWithNilChecker(t *testing.T) {
	server := startServer(t, nil)

	status, _ := get(t, server, "/healthz/readiness")
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t, nil)

	_, err := server.Start()
	assert.Error(t, err)
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	assert.NoError(t, server.Stop(context.Background()))

	_, err := server.Start()
	require.NoError(t, err)
	assert.NoError(t, server.Stop(context.Background()))
	assert.NoError(t, server.Stop(context.Background()))
}

func TestServer_ErrorChannelClosesOnShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	errCh, err := server.Start()
	require.NoError(t, err)

	require.NoError(t, server.Stop(context.Background()))

	select {
	case err, ok := <-errCh:
		assert.False(t, ok, "channel should be closed, got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("error channel not closed after shutdown")
	}
}

func TestServer_ReadinessReportsState(t *testing.T) {
	state := "booting"
	server := NewServer("127.0.0.1:0", func() bool { return state == "ready" },
		WithState(func() string { return state }))

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz/readiness", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not ready (booting)", strings.TrimSpace(w.Body.String()))

	state = "ready"
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz/readiness", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok (ready)", strings.TrimSpace(w.Body.String()))
}

func TestServer_AddrBeforeStart(t *testing.T) {
	assert.Empty(t, NewServer("127.0.0.1:0", nil).Addr())
}
