package store

import (
	"database/sql"
	"time"

	"github.com/xerolink/xerolink/internal/errors"
)

// CreateState records a pending OAuth authorization state.
func (s *SQLiteStore) CreateState(state, companyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO oauth_states (state, company_id, created_at) VALUES (?, ?, ?)
	`, state, companyID, time.Now())
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create oauth state", Err: err}
	}
	return nil
}

// ConsumeState looks up a state and deletes it in the same transaction, so
// each state can be redeemed at most once. Unknown states return
// ErrInvalidState; states older than StateTTL are deleted and return
// ErrExpiredState.
func (s *SQLiteStore) ConsumeState(state string) (*OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var rec OAuthState
	err = tx.QueryRow(`
		SELECT state, company_id, created_at FROM oauth_states WHERE state = ?
	`, state).Scan(&rec.State, &rec.CompanyID, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrInvalidState{State: state}
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "get oauth state", Err: err}
	}

	if _, err := tx.Exec("DELETE FROM oauth_states WHERE state = ?", state); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "delete oauth state", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "commit state consume", Err: err}
	}

	if age := time.Since(rec.CreatedAt); age > StateTTL {
		return nil, &errors.ErrExpiredState{State: state, Age: age}
	}

	return &rec, nil
}
