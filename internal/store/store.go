package store

import (
	"time"

	"github.com/xerolink/xerolink/internal/models"
)

// Store is the persistence layer for connections, OAuth states and the
// response cache.
type Store interface {
	// Connection operations
	GetConnection(companyID string) (*models.Connection, error)
	SaveCredentials(companyID, clientID, clientSecret, redirectURI string) error
	SaveTokens(companyID, accessToken, refreshToken string, expiresAt time.Time) error
	SetTenant(companyID, tenantID, organisationName string, tenants []models.Tenant) error
	SetStatus(companyID string, status models.ConnectionStatus) error
	ClearTokens(companyID string) error

	// OAuth state operations
	CreateState(state, companyID string) error
	ConsumeState(state string) (*OAuthState, error)

	// Response cache operations
	GetCache(companyID, tenantID, resource string) ([]byte, bool)
	PutCache(companyID, tenantID, resource string, payload []byte, ttl time.Duration) error
	InvalidateCache(companyID string) error

	Close() error
}

// OAuthState is a pending authorization round-trip record. States are
// single-use and expire ten minutes after creation.
type OAuthState struct {
	State     string
	CompanyID string
	CreatedAt time.Time
}

// StateTTL is how long an OAuth state remains valid after creation.
const StateTTL = 10 * time.Minute
