package store

import (
	"database/sql"
	"time"

	"github.com/xerolink/xerolink/internal/errors"
)

// GetCache returns the cached payload for (company, tenant, resource) when a
// non-expired entry exists.
func (s *SQLiteStore) GetCache(companyID, tenantID, resource string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRow(`
		SELECT payload FROM api_cache
		WHERE company_id = ? AND tenant_id = ? AND resource = ? AND expires_at > ?
	`, companyID, tenantID, resource, time.Now()).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		s.logger.Error("cache lookup failed", "error", err.Error(), "resource", resource)
		return nil, false
	}

	return []byte(payload), true
}

// PutCache stores or overwrites the cached payload for
// (company, tenant, resource) with the given TTL.
func (s *SQLiteStore) PutCache(companyID, tenantID, resource string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO api_cache (company_id, tenant_id, resource, payload, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id, tenant_id, resource) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
	`, companyID, tenantID, resource, string(payload), now.Add(ttl), now)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "put cache", Err: err}
	}
	return nil
}

// InvalidateCache drops every cached entry for a company. Used on disconnect
// and on tenant change so stale organisation data is never served.
func (s *SQLiteStore) InvalidateCache(companyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM api_cache WHERE company_id = ?", companyID); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "invalidate cache", Err: err}
	}
	return nil
}
