package reports

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
	"github.com/xerolink/xerolink/internal/config"
	"github.com/xerolink/xerolink/internal/logging"
	"github.com/xerolink/xerolink/internal/metrics"
	"github.com/xerolink/xerolink/internal/models"
	"github.com/xerolink/xerolink/internal/secrets"
	"github.com/xerolink/xerolink/internal/store"
	"github.com/xerolink/xerolink/internal/xero"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		accountCode string
		description string
		want        string
	}{
		{"", "Motor vehicle lease", CategoryMotorVehicles},
		{"", "Staff fuel card", CategoryMotorVehicles},
		{"", "Client entertainment night", CategoryEntertainment},
		{"", "Team lunch", CategoryMeals},
		{"", "Hotel accommodation Sydney", CategoryAccommodation},
		{"ACC-TRAVEL", "", CategoryAccommodation},
		{"", "Office supplies", CategoryOther},
		{"", "", CategoryOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.accountCode, tt.description),
			"accountCode=%q description=%q", tt.accountCode, tt.description)
	}
}

func TestEmployeeLinked(t *testing.T) {
	assert.True(t, EmployeeLinked([]string{"Employees"}))
	assert.True(t, EmployeeLinked([]string{"Suppliers", "Key Employee Benefits"}))
	assert.False(t, EmployeeLinked([]string{"Suppliers"}))
	assert.False(t, EmployeeLinked(nil))
}

// newAssembler builds a full fetch stack against an httptest server.
func newAssembler(t *testing.T, handler http.HandlerFunc) *Assembler {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api.xro/2.0/", handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	box, err := secrets.NewBox("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	cfg := config.XeroConfig{
		AuthURL:        server.URL + "/authorize",
		TokenURL:       server.URL + "/connect/token",
		APIBaseURL:     server.URL + "/api.xro/2.0",
		ConnectionsURL: server.URL + "/connections",
		Scopes:         []string{"accounting.transactions.read"},
		HTTPTimeout:    5 * time.Second,
		ExpiryBuffer:   time.Minute,
	}

	logger := logging.New(logging.WithOutput(io.Discard))
	m := metrics.NewMetrics("xerolink_test")
	client := xero.NewClient(cfg, m, logger)
	tm := xero.NewTokenManager(cfg, st, box, client, m, logger, nil)
	fetcher := xero.NewFetcher(client, tm, st, config.CacheConfig{DefaultTTL: time.Hour}, m, logger)

	require.NoError(t, tm.SaveSettings(context.Background(), "acme", "cid", "csecret", "https://app/callback"))
	encAccess, err := box.Encrypt("access")
	require.NoError(t, err)
	encRefresh, err := box.Encrypt("refresh")
	require.NoError(t, err)
	require.NoError(t, st.SaveTokens("acme", encAccess, encRefresh, time.Now().Add(time.Hour)))
	require.NoError(t, st.SetTenant("acme", "tenant-1", "Acme", []models.Tenant{{ID: "tenant-1", Name: "Acme"}}))

	return NewAssembler(fetcher, logger)
}

func TestBAS(t *testing.T) {
	a := newAssembler(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"Invoices":[
			{"InvoiceID":"i1","Type":"ACCREC","Status":"AUTHORISED","SubTotal":1000,"TotalTax":100,"Total":1100},
			{"InvoiceID":"i2","Type":"ACCREC","Status":"PAID","SubTotal":500,"TotalTax":50,"Total":550},
			{"InvoiceID":"i3","Type":"ACCREC","Status":"DRAFT","SubTotal":900,"TotalTax":90,"Total":990},
			{"InvoiceID":"i4","Type":"ACCPAY","Status":"AUTHORISED","SubTotal":200,"TotalTax":20,"Total":220},
			{"InvoiceID":"i5","Type":"ACCPAY","Status":"VOIDED","SubTotal":70,"TotalTax":7,"Total":77}
		]}`)
	})

	period := models.ReportPeriod{
		From: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	report, err := a.BAS(context.Background(), "acme", period)
	require.NoError(t, err)

	// Drafts and voided documents are excluded.
	assert.Equal(t, 2, report.Sales.Count)
	assert.Equal(t, 1650.0, report.Sales.Total)
	assert.Equal(t, 150.0, report.Sales.GST)
	assert.Equal(t, 1, report.Purchases.Count)
	assert.Equal(t, 220.0, report.Purchases.Total)
	assert.Equal(t, 20.0, report.Purchases.GST)
	assert.Equal(t, 130.0, report.NetGST)
	assert.True(t, report.Estimated)
	assert.Equal(t, period, report.Period)
}

func TestFAS(t *testing.T) {
	a := newAssembler(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "BankTransactions") {
			io.WriteString(w, `{"BankTransactions":[
				{"BankTransactionID":"t1","Type":"SPEND","Status":"AUTHORISED",
				 "Contact":{"Name":"Jo","ContactGroups":[{"Name":"Employees"}]},
				 "Total":300,
				 "LineItems":[{"Description":"Hotel accommodation","LineAmount":300}]},
				{"BankTransactionID":"t2","Type":"SPEND","Status":"AUTHORISED",
				 "Contact":{"Name":"Supplier Co","ContactGroups":[{"Name":"Suppliers"}]},
				 "Total":900,
				 "LineItems":[{"Description":"Team lunch","LineAmount":900}]},
				{"BankTransactionID":"t3","Type":"RECEIVE","Status":"AUTHORISED",
				 "Contact":{"Name":"Jo","ContactGroups":[{"Name":"Employees"}]},
				 "Total":50}
			]}`)
			return
		}
		io.WriteString(w, `{"Invoices":[
			{"InvoiceID":"i1","Type":"ACCPAY","Status":"AUTHORISED",
			 "Contact":{"Name":"Jo","ContactGroups":[{"Name":"Employees"}]},
			 "Total":440,
			 "LineItems":[
				{"Description":"Motor vehicle lease","LineAmount":400},
				{"Description":"Parking","LineAmount":40}
			 ]},
			{"InvoiceID":"i2","Type":"ACCREC","Status":"AUTHORISED",
			 "Contact":{"Name":"Jo","ContactGroups":[{"Name":"Employees"}]},
			 "Total":990}
		]}`)
	})

	period := models.ReportPeriod{
		From: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	report, err := a.FAS(context.Background(), "acme", period)
	require.NoError(t, err)

	// Only employee-linked ACCPAY bills and SPEND transactions count:
	// 400+40 motor, 300 accommodation.
	assert.Equal(t, 740.0, report.TotalSpend)
	assert.Equal(t, FBTRate, report.FBTRate)
	assert.InDelta(t, 740.0*0.47, report.FBTEstimate, 0.001)
	assert.True(t, report.Estimated)

	require.Len(t, report.Categories, 2)
	assert.Equal(t, CategoryAccommodation, report.Categories[0].Category)
	assert.Equal(t, 300.0, report.Categories[0].Total)
	assert.Equal(t, CategoryMotorVehicles, report.Categories[1].Category)
	assert.Equal(t, 440.0, report.Categories[1].Total)
	assert.Equal(t, 2, report.Categories[1].Count)
}

func TestFAS_NoEmployeeSpend(t *testing.T) {
	a := newAssembler(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "BankTransactions") {
			io.WriteString(w, `{"BankTransactions":[]}`)
			return
		}
		io.WriteString(w, `{"Invoices":[]}`)
	})

	report, err := a.FAS(context.Background(), "acme", models.ReportPeriod{})
	require.NoError(t, err)
	assert.Zero(t, report.TotalSpend)
	assert.Zero(t, report.FBTEstimate)
	assert.Empty(t, report.Categories)
}
