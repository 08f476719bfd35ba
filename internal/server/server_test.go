package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nepse-journal/internal/config"
	"nepse-journal/internal/ledger"
	"nepse-journal/internal/logging"
	"nepse-journal/internal/portfolio"
	"nepse-journal/internal/security"
	"nepse-journal/internal/store"
)

type testEnv struct {
	server *Server
	access *security.AccessController
}

func newTestEnv(t *testing.T, settings config.ServerConfig) *testEnv {
	t.Helper()
	ds, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	logger := logging.NewTestLogger()
	rec := portfolio.NewReconciler(logger)
	access := security.NewAccessController(false, nil)
	portfolios := portfolio.NewService(ds, rec, logger)
	ledgerSvc := ledger.NewService(ds, rec, logger, ledger.WithAccessController(access))

	return &testEnv{
		server: New(Config{
			Log:        logger,
			Settings:   settings,
			Portfolios: portfolios,
			Ledger:     ledgerSvc,
			Access:     access,
			Store:      ds,
		}),
		access: access,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	w := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, HealthStatusHealthy, resp.Status)
	assert.False(t, resp.ReadOnly)

	names := make([]string, len(resp.Components))
	for i, c := range resp.Components {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"database", "goroutines", "memory"}, names)
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("database is locked") }

func TestHealth_Unhealthy(t *testing.T) {
	s := New(Config{Log: logging.NewTestLogger(), Store: failingPinger{}})
	s.health.register("panics", func(ctx context.Context) ComponentHealth { panic("boom") })

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp HealthResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)
	for _, c := range resp.Components {
		switch c.Name {
		case "database":
			assert.Equal(t, "database is locked", c.Message)
		case "panics":
			assert.Contains(t, c.Message, "boom")
		}
	}
}

func TestBalanceFlow(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	w := env.do(t, http.MethodPut, "/api/users/alice/portfolio", `{"initial_capital":"100000"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/users/alice/transactions", `{"type":"DEPOSIT","amount":"5000","date":"2024-03-01T09:00:00Z"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Record struct {
			ID string `json:"id"`
		} `json:"record"`
		Reconcile portfolio.Result `json:"reconcile"`
	}
	decodeBody(t, w, &created)
	assert.NotEmpty(t, created.Record.ID)
	assert.Equal(t, "105000", created.Reconcile.NewBalance.String())

	w = env.do(t, http.MethodPost, "/api/users/alice/trades", `{
		"symbol": "nabil",
		"type": "BUY",
		"status": "CLOSED",
		"entry_date": "2024-03-02T09:00:00Z",
		"entry_price": "500",
		"quantity": 10,
		"exit_date": "2024-03-05T09:00:00Z",
		"exit_price": "600"
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/users/alice/balance", "")
	require.Equal(t, http.StatusOK, w.Code)
	var balance BalanceResponse
	decodeBody(t, w, &balance)
	assert.Equal(t, "106000.00", balance.Balance)
	assert.Equal(t, "NPR", balance.Currency)

	w = env.do(t, http.MethodGet, "/api/users/alice/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var history []portfolio.BalancePoint
	decodeBody(t, w, &history)
	require.Len(t, history, 2)
	assert.Equal(t, "106000", history[1].Value.String())

	w = env.do(t, http.MethodDelete, "/api/users/alice/transactions/"+created.Record.ID, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/users/alice/balance", "")
	decodeBody(t, w, &balance)
	assert.Equal(t, "101000.00", balance.Balance)

	w = env.do(t, http.MethodGet, "/api/users/alice/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]interface{}
	decodeBody(t, w, &stats)
	assert.EqualValues(t, 1, stats["winning_trades"])
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"deposit without portfolio", http.MethodPost, "/api/users/bob/transactions", `{"type":"DEPOSIT","amount":"10"}`, http.StatusNotFound},
		{"zero amount", http.MethodPost, "/api/users/bob/transactions", `{"type":"DEPOSIT","amount":"0"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/users/bob/transactions", `{"kind":"DEPOSIT"}`, http.StatusBadRequest},
		{"bad user id", http.MethodGet, "/api/users/bad%20user/balance", "", http.StatusBadRequest},
		{"missing trade", http.MethodGet, "/api/users/bob/trades/nope", "", http.StatusNotFound},
		{"bad status filter", http.MethodGet, "/api/users/bob/trades?status=PENDING", "", http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/users/bob/transactions?limit=-1", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var resp map[string]string
			decodeBody(t, w, &resp)
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestReadOnlyMode(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	env.access.SetReadOnly(true)

	w := env.do(t, http.MethodPost, "/api/users/alice/strategies", `{"name":"Breakout"}`)
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/users/alice/strategies", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = env.do(t, http.MethodGet, "/health", "")
	var resp HealthResponse
	decodeBody(t, w, &resp)
	assert.True(t, resp.ReadOnly)
}

func TestRecalculateEndpoint(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	w := env.do(t, http.MethodGet, "/api/users/alice/balance", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/admin/recalculate", "")
	require.Equal(t, http.StatusOK, w.Code)

	var report portfolio.RecalcReport
	decodeBody(t, w, &report)
	assert.Equal(t, 1, report.Total)
	assert.Zero(t, report.Updated)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{RateLimit: 1, RateBurst: 2})

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimiter_PerClientAndRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newRateLimiter(2, 1)
	l.now = func() time.Time { return now }
	l.lastPrune = now

	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"), "clients have separate buckets")

	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.allow("10.0.0.1"))

	now = now.Add(idleBucketTTL + time.Second)
	l.allow("10.0.0.3")
	assert.Len(t, l.buckets, 1, "idle buckets are pruned")
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:53211"
	assert.Equal(t, "192.168.1.5", clientKey(req))

	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", clientKey(req))
}
