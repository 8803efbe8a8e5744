package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xerolink/xerolink/internal/errors"
	"github.com/xerolink/xerolink/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetConnection_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetConnection("acme")
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestSaveCredentials_CreatesAndUpdates(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveCredentials("acme", "cid-1", "secret-1", "https://app/callback"))

	conn, err := s.GetConnection("acme")
	require.NoError(t, err)
	assert.Equal(t, "cid-1", conn.ClientID)
	assert.Equal(t, "secret-1", conn.ClientSecret)
	assert.Equal(t, models.StatusDisconnected, conn.Status)
	assert.False(t, conn.HasTokens())

	// Updating credentials keeps existing tokens.
	require.NoError(t, s.SaveTokens("acme", "at-1", "rt-1", time.Now().Add(30*time.Minute)))
	require.NoError(t, s.SaveCredentials("acme", "cid-2", "secret-2", "https://app/callback"))

	conn, err = s.GetConnection("acme")
	require.NoError(t, err)
	assert.Equal(t, "cid-2", conn.ClientID)
	assert.Equal(t, "at-1", conn.AccessToken)
	assert.Equal(t, "rt-1", conn.RefreshToken)
}

func TestSaveTokens_RequiresExistingRow(t *testing.T) {
	s := newTestStore(t)

	err := s.SaveTokens("ghost", "at", "rt", time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestSetTenant_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveCredentials("acme", "cid", "secret", "https://app/callback"))

	tenants := []models.Tenant{
		{ID: "t1", Name: "Acme AU", TenantType: "ORGANISATION"},
		{ID: "t2", Name: "Acme NZ", TenantType: "ORGANISATION"},
	}
	require.NoError(t, s.SetTenant("acme", "t1", "Acme AU", tenants))

	conn, err := s.GetConnection("acme")
	require.NoError(t, err)
	assert.Equal(t, "t1", conn.TenantID)
	assert.Equal(t, "Acme AU", conn.OrganisationName)
	require.Len(t, conn.Tenants, 2)
	assert.Equal(t, "Acme NZ", conn.Tenants[1].Name)
}

func TestClearTokens_PreservesCredentials(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveCredentials("acme", "cid", "secret", "https://app/callback"))
	require.NoError(t, s.SaveTokens("acme", "at", "rt", time.Now().Add(time.Hour)))
	require.NoError(t, s.SetTenant("acme", "t1", "Acme AU", []models.Tenant{{ID: "t1", Name: "Acme AU"}}))

	require.NoError(t, s.ClearTokens("acme"))

	conn, err := s.GetConnection("acme")
	require.NoError(t, err)
	assert.Equal(t, "cid", conn.ClientID)
	assert.Equal(t, "secret", conn.ClientSecret)
	assert.Empty(t, conn.AccessToken)
	assert.Empty(t, conn.RefreshToken)
	assert.Empty(t, conn.TenantID)
	assert.Empty(t, conn.Tenants)
	assert.Equal(t, models.StatusDisconnected, conn.Status)
}

func TestConsumeState_SingleUse(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreateState("state-1", "acme"))

	rec, err := s.ConsumeState("state-1")
	require.NoError(t, err)
	assert.Equal(t, "acme", rec.CompanyID)

	// Second redemption fails: states are single-use.
	_, err = s.ConsumeState("state-1")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidState, errors.CodeOf(err))
}

func TestConsumeState_Unknown(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ConsumeState("never-created")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidState, errors.CodeOf(err))
}

func TestConsumeState_Expired(t *testing.T) {
	s := newTestStore(t)

	// Backdate past the TTL directly in the table.
	_, err := s.db.Exec(
		"INSERT INTO oauth_states (state, company_id, created_at) VALUES (?, ?, ?)",
		"old-state", "acme", time.Now().Add(-StateTTL-time.Minute),
	)
	require.NoError(t, err)

	_, err = s.ConsumeState("old-state")
	require.Error(t, err)
	assert.Equal(t, errors.CodeExpiredState, errors.CodeOf(err))

	// Expired redemption still consumed the row.
	_, err = s.ConsumeState("old-state")
	assert.Equal(t, errors.CodeInvalidState, errors.CodeOf(err))
}

func TestCache_RoundTripAndExpiry(t *testing.T) {
	s := newTestStore(t)

	_, ok := s.GetCache("acme", "t1", "invoices")
	assert.False(t, ok)

	require.NoError(t, s.PutCache("acme", "t1", "invoices", []byte(`{"Invoices":[]}`), time.Hour))

	payload, ok := s.GetCache("acme", "t1", "invoices")
	require.True(t, ok)
	assert.JSONEq(t, `{"Invoices":[]}`, string(payload))

	// Overwrite replaces the payload.
	require.NoError(t, s.PutCache("acme", "t1", "invoices", []byte(`{"Invoices":[{"InvoiceID":"i1"}]}`), time.Hour))
	payload, ok = s.GetCache("acme", "t1", "invoices")
	require.True(t, ok)
	assert.Contains(t, string(payload), "i1")

	// Expired entries are not served.
	require.NoError(t, s.PutCache("acme", "t1", "contacts", []byte(`{}`), -time.Second))
	_, ok = s.GetCache("acme", "t1", "contacts")
	assert.False(t, ok)
}

func TestCache_KeyedByTenant(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutCache("acme", "t1", "invoices", []byte(`{"t":"one"}`), time.Hour))
	require.NoError(t, s.PutCache("acme", "t2", "invoices", []byte(`{"t":"two"}`), time.Hour))

	payload, ok := s.GetCache("acme", "t2", "invoices")
	require.True(t, ok)
	assert.JSONEq(t, `{"t":"two"}`, string(payload))
}

func TestInvalidateCache(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutCache("acme", "t1", "invoices", []byte(`{}`), time.Hour))
	require.NoError(t, s.PutCache("other", "t9", "invoices", []byte(`{}`), time.Hour))

	require.NoError(t, s.InvalidateCache("acme"))

	_, ok := s.GetCache("acme", "t1", "invoices")
	assert.False(t, ok)
	_, ok = s.GetCache("other", "t9", "invoices")
	assert.True(t, ok)
}

func TestSweepExpired(t *testing.T) {
	s := newTestStore(t)

	_, err := s.db.Exec(
		"INSERT INTO oauth_states (state, company_id, created_at) VALUES (?, ?, ?)",
		"stale", "acme", time.Now().Add(-time.Hour),
	)
	require.NoError(t, err)
	require.NoError(t, s.CreateState("fresh", "acme"))
	require.NoError(t, s.PutCache("acme", "t1", "invoices", []byte(`{}`), -time.Minute))

	s.sweepExpired()

	var stateCount, cacheCount int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM oauth_states").Scan(&stateCount))
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM api_cache").Scan(&cacheCount))
	assert.Equal(t, 1, stateCount)
	assert.Equal(t, 0, cacheCount)
}
