package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/compliance-pulse/internal/application"
	auditapp "github.com/bryanwahyu/compliance-pulse/internal/application/audit"
	"github.com/bryanwahyu/compliance-pulse/internal/config"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/db"
	"github.com/bryanwahyu/compliance-pulse/internal/logging"
	"github.com/bryanwahyu/compliance-pulse/internal/metrics"
	"github.com/bryanwahyu/compliance-pulse/internal/middleware"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Artifacts.Dir = filepath.Join(dir, "artifacts")
	cfg.Worker.PollInterval = 50 * time.Millisecond
	cfg.Scheduler.PollInterval = 50 * time.Millisecond

	store, err := db.Open(context.Background(), "sqlite", filepath.Join(dir, "pulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := logging.Discard()
	reg := prometheus.NewRegistry()
	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: reg,
		metrics:  metrics.New(reg),
		audit:    &auditapp.Recorder{Repo: store.Audit(), Logger: logger},
		clock:    application.SystemClock{},
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestServeFailsBeforeStartingAnything(t *testing.T) {
	a := newTestApp(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	a.cfg.Artifacts.Dir = filepath.Join(blocker, "artifacts")
	a.cfg.Server.Port = freePort(t)

	ready := &middleware.Readiness{}
	err := a.serve(context.Background(), serveMode{worker: true, scheduler: true, ops: true}, ready)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build executor")
	assert.False(t, ready.Ready())

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(a.cfg.Server.Port))
	require.NoError(t, err, "ops server must not be listening")
	ln.Close()

	require.NoError(t, a.store.Ping(context.Background()))
}

func TestServeStopsOnCancel(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	ready := &middleware.Readiness{}

	done := make(chan error, 1)
	go func() {
		done <- a.serve(ctx, serveMode{worker: true, scheduler: true, workers: 2}, ready)
	}()

	assert.Eventually(t, ready.Ready, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	assert.False(t, ready.Ready())
}
