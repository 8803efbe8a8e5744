package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xerolink/xerolink/internal/config"
	"github.com/xerolink/xerolink/internal/errors"
	"github.com/xerolink/xerolink/internal/logging"
	"github.com/xerolink/xerolink/internal/metrics"
	"github.com/xerolink/xerolink/internal/models"
	"github.com/xerolink/xerolink/internal/reports"
	"github.com/xerolink/xerolink/internal/secrets"
	"github.com/xerolink/xerolink/internal/store"
	"github.com/xerolink/xerolink/internal/xero"
)

const testKey = "0123456789abcdef0123456789abcdef"

type testServer struct {
	server   *Server
	store    *store.SQLiteStore
	tokens   *xero.TokenManager
	box      *secrets.Box
	upstream *httptest.Server
}

// newTestServer wires a full server against one httptest upstream that
// plays the role of Xero. dataHandler receives every request under
// /api.xro/2.0/.
func newTestServer(t *testing.T, apiKeys []string, dataHandler http.HandlerFunc) *testServer {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh-access",
			"refresh_token": "fresh-refresh",
			"token_type":    "Bearer",
			"expires_in":    1800,
		})
	})
	mux.HandleFunc("/connections", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"c1","tenantId":"tenant-1","tenantName":"Acme AU","tenantType":"ORGANISATION"}]`)
	})
	mux.HandleFunc("/api.xro/2.0/", func(w http.ResponseWriter, r *http.Request) {
		if dataHandler != nil {
			dataHandler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"Invoices":[]}`)
	})

	upstream := httptest.NewServer(mux)
	t.Cleanup(upstream.Close)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	box, err := secrets.NewBox(testKey)
	require.NoError(t, err)

	xeroCfg := config.XeroConfig{
		AuthURL:        upstream.URL + "/authorize",
		TokenURL:       upstream.URL + "/connect/token",
		APIBaseURL:     upstream.URL + "/api.xro/2.0",
		ConnectionsURL: upstream.URL + "/connections",
		Scopes:         []string{"accounting.transactions.read", "offline_access"},
		HTTPTimeout:    5 * time.Second,
		ExpiryBuffer:   time.Minute,
	}

	logger := logging.New(logging.WithOutput(io.Discard))
	m := metrics.NewMetrics("xerolink_api_test")
	client := xero.NewClient(xeroCfg, m, logger)
	tokens := xero.NewTokenManager(xeroCfg, st, box, client, m, logger, nil)
	fetcher := xero.NewFetcher(client, tokens, st, config.CacheConfig{DefaultTTL: time.Hour, ReportTTL: time.Hour}, m, logger)
	assembler := reports.NewAssembler(fetcher, logger)

	serverCfg := config.ServerConfig{Host: "127.0.0.1", HTTPPort: 0}
	apiCfg := config.APIConfig{
		Auth:      config.AuthConfig{APIKeys: apiKeys, HeaderName: "X-API-Key"},
		RateLimit: config.RateLimitConfig{RequestsPerMinute: 6000, Burst: 1000},
	}

	server := NewServer(serverCfg, apiCfg, st, tokens, fetcher, assembler, m, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	return &testServer{server: server, store: st, tokens: tokens, box: box, upstream: upstream}
}

func (ts *testServer) seedConnected(t *testing.T, companyID string) {
	t.Helper()
	require.NoError(t, ts.tokens.SaveSettings(context.Background(), companyID, "cid", "csecret", "https://app/callback"))

	encAccess, err := ts.box.Encrypt("stored-access")
	require.NoError(t, err)
	encRefresh, err := ts.box.Encrypt("stored-refresh")
	require.NoError(t, err)
	require.NoError(t, ts.store.SaveTokens(companyID, encAccess, encRefresh, time.Now().Add(time.Hour)))
	require.NoError(t, ts.store.SetTenant(companyID, "tenant-1", "Acme AU", []models.Tenant{
		{ID: "tenant-1", Name: "Acme AU"},
	}))
}

func (ts *testServer) request(method, path string, body io.Reader, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, []string{"secret-key"}, nil)

	rec := ts.request(http.MethodGet, "/companies/acme/xero/status", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.request(http.MethodGet, "/companies/acme/xero/status", nil, "wrong-key")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.request(http.MethodGet, "/companies/acme/xero/status", nil, "secret-key")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthBypassWithoutKeys(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.request(http.MethodGet, "/companies/acme/xero/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus_NotConfigured(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.request(http.MethodGet, "/companies/acme/xero/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_configured", body["status"])
	assert.Equal(t, false, body["connected"])
}

func TestSettings_RoundTrip(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	payload := `{"client_id":"cid","client_secret":"supersecret","redirect_uri":"https://app/callback"}`
	rec := ts.request(http.MethodPut, "/companies/acme/xero/settings", strings.NewReader(payload), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "supersecret")

	rec = ts.request(http.MethodGet, "/companies/acme/xero/settings", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var settings map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, "cid", settings["client_id"])
	assert.Equal(t, true, settings["has_secret"])
	assert.NotContains(t, rec.Body.String(), "supersecret")
}

func TestSettings_MissingFields(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.request(http.MethodPut, "/companies/acme/xero/settings", strings.NewReader(`{"client_id":"cid"}`), "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthURLFlow(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	payload := `{"client_id":"cid","client_secret":"supersecret","redirect_uri":"https://app/callback"}`
	rec := ts.request(http.MethodPut, "/companies/acme/xero/settings", strings.NewReader(payload), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(http.MethodGet, "/companies/acme/xero/auth-url", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	authURL, _ := body["auth_url"].(string)
	assert.Contains(t, authURL, "client_id=cid")
	assert.Contains(t, authURL, "state=")
}

func TestAuthURL_NotConfigured(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.request(http.MethodGet, "/companies/acme/xero/auth-url", nil, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_configured")
}

func TestCallback_InvalidState(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.request(http.MethodGet, "/xero/callback?code=abc&state=bogus", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_state")
}

func TestCallback_MissingParams(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.request(http.MethodGet, "/xero/callback", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallback_ConsentDenied(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.request(http.MethodGet, "/xero/callback?error=access_denied", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "consent_denied")
}

func TestData_InvoicesServed(t *testing.T) {
	ts := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"Invoices":[{"InvoiceID":"inv-1","Type":"ACCREC","Status":"AUTHORISED","Total":110}]}`)
	})
	ts.seedConnected(t, "acme")

	rec := ts.request(http.MethodGet, "/companies/acme/xero/invoices", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "inv-1")
}

func TestData_UnsupportedResource(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.seedConnected(t, "acme")

	rec := ts.request(http.MethodGet, "/companies/acme/xero/data/payslips", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported_resource_type")
}

func TestData_InvalidPage(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.seedConnected(t, "acme")

	rec := ts.request(http.MethodGet, "/companies/acme/xero/invoices?page=zero", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestData_NotConnected(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.request(http.MethodGet, "/companies/acme/xero/invoices", nil, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_configured")
}

func TestData_RateLimitSurfaced(t *testing.T) {
	ts := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "17")
		w.Header().Set("X-Rate-Limit-Problem", "minute")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	ts.seedConnected(t, "acme")

	rec := ts.request(http.MethodGet, "/companies/acme/xero/invoices", nil, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "17", rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["code"])
	assert.Equal(t, float64(17), body["retry_after_seconds"])
}

func TestSelectTenant(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.seedConnected(t, "acme")

	rec := ts.request(http.MethodPost, "/companies/acme/xero/tenant", strings.NewReader(`{"tenant_id":"tenant-1"}`), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(http.MethodPost, "/companies/acme/xero/tenant", strings.NewReader(`{"tenant_id":"tenant-9"}`), "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.request(http.MethodPost, "/companies/acme/xero/tenant", strings.NewReader(`{}`), "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTenants(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.seedConnected(t, "acme")

	rec := ts.request(http.MethodGet, "/companies/acme/xero/tenants", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenant-1")
}

func TestDisconnect(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.seedConnected(t, "acme")

	rec := ts.request(http.MethodDelete, "/companies/acme/xero/connection", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "disconnected")

	rec = ts.request(http.MethodGet, "/companies/acme/xero/status", nil, "")
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "disconnected", body["status"])
}

func TestRefreshToken(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.seedConnected(t, "acme")

	rec := ts.request(http.MethodPost, "/companies/acme/xero/refresh-token", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "connected", body["status"])
}

func TestBASReport(t *testing.T) {
	ts := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"Invoices":[
			{"InvoiceID":"i1","Type":"ACCREC","Status":"AUTHORISED","Total":1100,"TotalTax":100},
			{"InvoiceID":"i2","Type":"ACCPAY","Status":"PAID","Total":220,"TotalTax":20}
		]}`)
	})
	ts.seedConnected(t, "acme")

	rec := ts.request(http.MethodGet, "/companies/acme/xero/reports/bas?from=2026-01-01&to=2026-03-31", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.BASReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, float64(1100), report.Sales.Total)
	assert.Equal(t, float64(220), report.Purchases.Total)
	assert.True(t, report.Estimated)
}

func TestBASReport_PeriodValidation(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.seedConnected(t, "acme")

	rec := ts.request(http.MethodGet, "/companies/acme/xero/reports/bas?from=2026-01-01", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.request(http.MethodGet, "/companies/acme/xero/reports/bas?from=2026-03-31&to=2026-01-01", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFASReport(t *testing.T) {
	ts := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "BankTransactions") {
			io.WriteString(w, `{"BankTransactions":[]}`)
			return
		}
		io.WriteString(w, `{"Invoices":[{
			"InvoiceID":"i1","Type":"ACCPAY","Status":"PAID","Total":440,
			"Contact":{"ContactID":"c1","Name":"Fleet Co","ContactGroups":[{"Name":"Employees"}]},
			"LineItems":[{"Description":"car lease","AccountCode":"449","LineAmount":440}]
		}]}`)
	})
	ts.seedConnected(t, "acme")

	rec := ts.request(http.MethodGet, "/companies/acme/xero/reports/fas?from=2026-04-01&to=2027-03-31", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.FASReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, float64(440), report.TotalSpend)
	assert.InDelta(t, 440*0.47, report.FBTEstimate, 0.001)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, []string{"secret-key"}, nil)

	// Metrics must be reachable without an API key.
	rec := ts.request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "xerolink_api_test")
}

func TestShutdown_DrainsBeforeStoreClose(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	ts.server.router.GET("/slow", func(c *gin.Context) {
		close(entered)
		<-release
		// The store must still be open while this request drains.
		_, err := ts.server.store.GetConnection("ghost")
		if errors.CodeOf(err) != errors.CodeNotFound {
			c.String(http.StatusInternalServerError, "store closed during drain")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ts.server.httpServer = NewHTTPServer(ln.Addr().String(), ts.server.router)
	go func() { _ = ts.server.httpServer.Serve(ln) }()

	statusCh := make(chan int, 1)
	go func() {
		resp, rerr := http.Get("http://" + ln.Addr().String() + "/slow")
		if rerr != nil {
			statusCh <- 0
			return
		}
		defer resp.Body.Close()
		statusCh <- resp.StatusCode
	}()

	<-entered

	shutdownCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownCh <- ts.server.Shutdown(ctx)
	}()

	// Let the shutdown begin draining before the handler finishes.
	time.Sleep(100 * time.Millisecond)
	close(release)

	assert.Equal(t, http.StatusOK, <-statusCh)
	require.NoError(t, <-shutdownCh)
}

func TestRateLimiterStop_Idempotent(t *testing.T) {
	limiter := newIPRateLimiter(time.Minute, 2)

	assert.True(t, limiter.Allow("10.0.0.1"))
	limiter.Stop()
	limiter.Stop()

	// Allow keeps working after Stop; only the eviction loop ends.
	assert.True(t, limiter.Allow("10.0.0.1"))
}

func TestCurrentQuarter(t *testing.T) {
	period := currentQuarter(time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC), period.From)
	assert.Equal(t, time.Date(2026, time.September, 30, 0, 0, 0, 0, time.UTC), period.To)
}

func TestCurrentFBTYear(t *testing.T) {
	period := currentFBTYear(time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), period.From)
	assert.Equal(t, time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC), period.To)
}
