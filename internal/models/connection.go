package models

import "time"

// ConnectionStatus describes the lifecycle state of a company's Xero link.
type ConnectionStatus string

const (
	StatusNotConfigured ConnectionStatus = "not_configured"
	StatusConnected     ConnectionStatus = "connected"
	StatusDisconnected  ConnectionStatus = "disconnected"
	StatusExpired       ConnectionStatus = "expired"
	StatusError         ConnectionStatus = "error"
)

// Tenant is one Xero organisation the company's user has authorised.
// The order of a connection's tenant list is the order Xero returned them in.
type Tenant struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TenantType     string `json:"tenant_type,omitempty"`
	CreatedDateUTC string `json:"created_date_utc,omitempty"`
}

// Connection is the single per-company record of OAuth client credentials,
// tokens and the selected organisation. ClientSecret, AccessToken and
// RefreshToken hold encrypted values when loaded from the store; the token
// manager decrypts them at the point of use.
type Connection struct {
	CompanyID        string
	ClientID         string
	ClientSecret     string
	RedirectURI      string
	AccessToken      string
	RefreshToken     string
	TokenExpiresAt   time.Time
	TenantID         string
	OrganisationName string
	Tenants          []Tenant
	Status           ConnectionStatus
	UpdatedAt        time.Time
}

// HasCredentials reports whether the OAuth app credentials are present.
func (c *Connection) HasCredentials() bool {
	return c != nil && c.ClientID != "" && c.ClientSecret != "" && c.RedirectURI != ""
}

// HasTokens reports whether a token pair has been stored.
func (c *Connection) HasTokens() bool {
	return c != nil && c.AccessToken != ""
}

// TokenExpired reports whether the access token is past (or within buffer of)
// its expiry.
func (c *Connection) TokenExpired(buffer time.Duration) bool {
	if c.TokenExpiresAt.IsZero() {
		return true
	}
	return time.Now().Add(buffer).After(c.TokenExpiresAt)
}

// DeriveStatus computes the connection status from the stored fields. The
// stored status column is advisory; expiry is always re-derived from
// TokenExpiresAt so a stale row never reports connected with a dead token.
func (c *Connection) DeriveStatus() ConnectionStatus {
	if c == nil || !c.HasCredentials() {
		return StatusNotConfigured
	}
	if !c.HasTokens() {
		if c.Status == StatusError {
			return StatusError
		}
		return StatusDisconnected
	}
	if c.TokenExpired(0) {
		return StatusExpired
	}
	return StatusConnected
}
