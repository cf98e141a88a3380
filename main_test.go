package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicpulse/config"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.FromEnv()
	cfg.ReportBackend = "sqlite"
	cfg.SQLDSN = "file:" + filepath.Join(t.TempDir(), "reports.db")
	cfg.LedgerBackend = "memory"
	cfg.EvidenceBackend = "fs"
	cfg.UploadDir = t.TempDir()
	cfg.GeocoderKey = ""
	cfg.VerificationPolicyFile = ""
	cfg.OracleTimeout = time.Second
	return cfg
}

func TestNewApp_Healthz(t *testing.T) {
	ctx := context.Background()
	svc, err := buildServices(ctx, testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(ctx) })

	app := newApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestBuildServices_UnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.LedgerBackend = "etcd"
	_, err := buildServices(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
}

func TestReconcile_RefusesMemoryBackends(t *testing.T) {
	t.Setenv("REPORT_BACKEND", "memory")
	t.Setenv("LEDGER_BACKEND", "memory")
	err := runReconcile(reconcileCmd, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "durable backends"))
}
