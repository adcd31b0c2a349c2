// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package observability_test

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopher-w1/gatekeeper/internal/observability"
)

func startServer(t *testing.T, ready observability.ReadinessChecker) *observability.Server {
	t.Helper()
	srv := observability.NewServer("127.0.0.1:0", ready)
	_, err := srv.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx) //nolint:errcheck // test cleanup
	})
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec // local test server
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck // test helper
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_HealthProbes(t *testing.T) {
	var ready atomic.Bool
	srv := startServer(t, ready.Load)

	status, body := get(t, "http://"+srv.Addr()+"/healthz/liveness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok\n", body)

	status, body = get(t, "http://"+srv.Addr()+"/healthz/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "not ready\n", body)

	ready.Store(true)
	status, _ = get(t, "http://"+srv.Addr()+"/healthz/readiness")
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_Metrics(t *testing.T) {
	srv := startServer(t, nil)
	srv.TrackActiveSessions(func() int { return 7 })

	srv.Metrics().RecordLogin("success")
	srv.Metrics().RecordLogin("rate_limited")
	srv.Metrics().RecordRequest("/login-user", 200)

	status, body := get(t, "http://"+srv.Addr()+"/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `gatekeeper_logins_total{outcome="success"} 1`)
	assert.Contains(t, body, `gatekeeper_logins_total{outcome="rate_limited"} 1`)
	assert.Contains(t, body, "gatekeeper_rate_limited_total 1")
	assert.Contains(t, body, `gatekeeper_http_requests_total{endpoint="/login-user",status="200"} 1`)
	assert.Contains(t, body, "gatekeeper_active_sessions 7")
}

func TestServer_StartStop(t *testing.T) {
	srv := observability.NewServer("127.0.0.1:0", nil)

	errCh, err := srv.Start()
	require.NoError(t, err)

	// Second start is rejected while running.
	_, err = srv.Start()
	assert.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	// Channel closes on graceful stop.
	select {
	case _, open := <-errCh:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("error channel not closed after stop")
	}

	// Stop is idempotent.
	assert.NoError(t, srv.Stop(ctx))
}
