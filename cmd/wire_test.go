package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"consignado-bot/internal/config"
	"consignado-bot/internal/repository"
)

func testConfig() config.Config {
	return config.Config{
		Addr: ":0",
		ZAPI: config.ZAPI{
			InstanceID: "inst",
			Token:      "tok",
			BaseURL:    "http://127.0.0.1:1",
			Timeout:    time.Second,
		},
		StoreBackend:  config.BackendMemory,
		SessionSecret: "wire-test-secret-0123",
		DedupeTTL:     time.Hour,
	}
}

func TestBuildApp_Memory(t *testing.T) {
	a, err := buildApp(context.Background(), testConfig())
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.store.(*repository.MemoryStore)
	require.True(t, ok)

	router, err := a.router()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildApp_SQLite(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = config.BackendSQL
	cfg.DatabaseURL = "sqlite::memory:"

	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.store.(*repository.SQLStore)
	require.True(t, ok)
}

func TestBuildApp_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ZAPI.InstanceID = ""
	_, err := buildApp(context.Background(), cfg)
	require.ErrorContains(t, err, "ZAPI_INSTANCE_ID")
}

func TestNewGateway_RequiresToken(t *testing.T) {
	cfg := testConfig()
	cfg.ZAPI.Token = ""
	_, err := newGateway(cfg, nil)
	require.Error(t, err)
}

func TestCPFCommand(t *testing.T) {
	var out bytes.Buffer
	cpfCmd.SetOut(&out)
	require.NoError(t, cpfCmd.RunE(cpfCmd, []string{"11144477735", "123"}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, "11144477735\tvalid\t111.444.777-35", lines[0])
	require.Equal(t, "123\tinvalid", lines[1])
}
