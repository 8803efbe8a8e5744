package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/xerolink/xerolink/internal/errors"
	"github.com/xerolink/xerolink/internal/models"
)

// GetConnection retrieves the connection record for a company. Returns
// ErrNotFound when the company has never saved credentials.
func (s *SQLiteStore) GetConnection(companyID string) (*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conn models.Connection
	var expiresAt sql.NullTime
	var tenantsJSON string

	err := s.db.QueryRow(`
		SELECT company_id, client_id, client_secret, redirect_uri,
		       access_token, refresh_token, token_expires_at,
		       tenant_id, organisation_name, tenants, status, updated_at
		FROM xero_connections WHERE company_id = ?
	`, companyID).Scan(&conn.CompanyID, &conn.ClientID, &conn.ClientSecret, &conn.RedirectURI,
		&conn.AccessToken, &conn.RefreshToken, &expiresAt,
		&conn.TenantID, &conn.OrganisationName, &tenantsJSON, &conn.Status, &conn.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{CompanyID: companyID}
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "get connection", Err: err}
	}

	if expiresAt.Valid {
		conn.TokenExpiresAt = expiresAt.Time
	}
	if err := json.Unmarshal([]byte(tenantsJSON), &conn.Tenants); err != nil {
		s.logger.Warn("failed to parse tenants", "error", err.Error(), "company_id", companyID)
	}

	return &conn, nil
}

// SaveCredentials stores the OAuth app credentials for a company, creating
// the row if needed. Tokens and tenant selection already on the row are
// preserved.
func (s *SQLiteStore) SaveCredentials(companyID, clientID, clientSecret, redirectURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO xero_connections (company_id, client_id, client_secret, redirect_uri, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id) DO UPDATE SET
			client_id = excluded.client_id,
			client_secret = excluded.client_secret,
			redirect_uri = excluded.redirect_uri,
			updated_at = excluded.updated_at
	`, companyID, clientID, clientSecret, redirectURI, models.StatusDisconnected, time.Now())
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "save credentials", Err: err}
	}
	return nil
}

// SaveTokens stores a token pair for a company. The row must already exist.
func (s *SQLiteStore) SaveTokens(companyID, accessToken, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE xero_connections
		SET access_token = ?, refresh_token = ?, token_expires_at = ?, status = ?, updated_at = ?
		WHERE company_id = ?
	`, accessToken, refreshToken, expiresAt, models.StatusConnected, time.Now(), companyID)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "save tokens", Err: err}
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return &errors.ErrNotFound{CompanyID: companyID}
	}
	return nil
}

// SetTenant stores the selected tenant, organisation name and the full
// authorised tenant list for a company.
func (s *SQLiteStore) SetTenant(companyID, tenantID, organisationName string, tenants []models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tenants == nil {
		tenants = []models.Tenant{}
	}
	tenantsJSON, err := json.Marshal(tenants)
	if err != nil {
		return err
	}

	result, err := s.db.Exec(`
		UPDATE xero_connections
		SET tenant_id = ?, organisation_name = ?, tenants = ?, updated_at = ?
		WHERE company_id = ?
	`, tenantID, organisationName, string(tenantsJSON), time.Now(), companyID)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "set tenant", Err: err}
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return &errors.ErrNotFound{CompanyID: companyID}
	}
	return nil
}

// SetStatus records a connection status without touching any other column.
func (s *SQLiteStore) SetStatus(companyID string, status models.ConnectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE xero_connections SET status = ?, updated_at = ? WHERE company_id = ?
	`, status, time.Now(), companyID)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "set status", Err: err}
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return &errors.ErrNotFound{CompanyID: companyID}
	}
	return nil
}

// ClearTokens wipes the token pair and tenant selection for a company but
// keeps client_id, client_secret and redirect_uri so the company can
// reconnect without re-entering credentials.
func (s *SQLiteStore) ClearTokens(companyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE xero_connections
		SET access_token = '', refresh_token = '', token_expires_at = NULL,
		    tenant_id = '', organisation_name = '', tenants = '[]',
		    status = ?, updated_at = ?
		WHERE company_id = ?
	`, models.StatusDisconnected, time.Now(), companyID)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "clear tokens", Err: err}
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return &errors.ErrNotFound{CompanyID: companyID}
	}
	return nil
}
