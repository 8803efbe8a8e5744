package xero

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/xerolink/xerolink/internal/config"
	"github.com/xerolink/xerolink/internal/errors"
	"github.com/xerolink/xerolink/internal/logging"
	"github.com/xerolink/xerolink/internal/metrics"
	"github.com/xerolink/xerolink/internal/models"
	"github.com/xerolink/xerolink/internal/secrets"
	"github.com/xerolink/xerolink/internal/store"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// RefreshNotifier is told about refresh failures so an operator can
// re-authorize before data requests start failing.
type RefreshNotifier interface {
	NotifyRefreshFailure(companyID string, err error)
}

// TokenManager owns the OAuth lifecycle: authorization round-trips, token
// storage, refresh and disconnect. Tokens and client secrets pass through
// the secrets box on every read and write.
type TokenManager struct {
	cfg     config.XeroConfig
	store   store.Store
	box     *secrets.Box
	client  *Client
	logger  *logging.Logger
	metrics *metrics.Metrics
	alerts  RefreshNotifier

	// refreshGroup collapses concurrent refreshes for the same company
	// into a single upstream call.
	refreshGroup singleflight.Group
}

// NewTokenManager creates a token manager.
func NewTokenManager(cfg config.XeroConfig, st store.Store, box *secrets.Box, client *Client, m *metrics.Metrics, logger *logging.Logger, alerts RefreshNotifier) *TokenManager {
	return &TokenManager{
		cfg:     cfg,
		store:   st,
		box:     box,
		client:  client,
		logger:  logger.Component("token-manager"),
		metrics: m,
		alerts:  alerts,
	}
}

// oauthConfig builds the oauth2 configuration for one company's saved
// credentials. clientSecret must already be decrypted.
func (tm *TokenManager) oauthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       tm.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  tm.cfg.AuthURL,
			TokenURL: tm.cfg.TokenURL,
		},
	}
}

// credentials resolves a company's OAuth app credentials, falling back to
// the globally configured app when the company has none of its own.
func (tm *TokenManager) credentials(conn *models.Connection) (clientID, clientSecret, redirectURI string, err error) {
	if conn != nil && conn.HasCredentials() {
		secret, derr := tm.box.Decrypt(conn.ClientSecret)
		if derr != nil {
			return "", "", "", derr
		}
		return conn.ClientID, secret, conn.RedirectURI, nil
	}
	if tm.cfg.ClientID != "" && tm.cfg.ClientSecret != "" && tm.cfg.RedirectURI != "" {
		return tm.cfg.ClientID, tm.cfg.ClientSecret, tm.cfg.RedirectURI, nil
	}
	companyID := ""
	if conn != nil {
		companyID = conn.CompanyID
	}
	return "", "", "", &errors.ErrNotConfigured{CompanyID: companyID}
}

// GenerateAuthURL creates a single-use state and returns the Xero consent
// URL the end user should be redirected to.
func (tm *TokenManager) GenerateAuthURL(ctx context.Context, companyID string) (string, error) {
	conn, err := tm.store.GetConnection(companyID)
	if err != nil {
		if errors.CodeOf(err) != errors.CodeNotFound {
			return "", err
		}
		conn = nil
	}

	clientID, clientSecret, redirectURI, err := tm.credentials(conn)
	if err != nil {
		return "", err
	}

	state, err := newStateToken()
	if err != nil {
		return "", err
	}
	if err := tm.store.CreateState(state, companyID); err != nil {
		return "", err
	}

	oc := tm.oauthConfig(clientID, clientSecret, redirectURI)
	authURL := oc.AuthCodeURL(state, oauth2.AccessTypeOffline)

	tm.logger.InfoCtx(ctx, "generated auth url", "company_id", companyID)
	return authURL, nil
}

// oauthContext makes the oauth2 package use the same HTTP client as the
// rest of the Xero calls, so timeouts apply to token endpoints too.
func (tm *TokenManager) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, tm.client.http)
}

// newStateToken returns 32 hex-encoded random bytes.
func newStateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HandleCallback redeems the state, exchanges the authorization code for a
// token pair and stores tokens plus the authorised tenant list. It returns
// the company the state belonged to.
func (tm *TokenManager) HandleCallback(ctx context.Context, code, state string) (string, error) {
	rec, err := tm.store.ConsumeState(state)
	if err != nil {
		return "", err
	}
	companyID := rec.CompanyID

	conn, err := tm.store.GetConnection(companyID)
	if err != nil {
		if errors.CodeOf(err) != errors.CodeNotFound {
			return companyID, err
		}
		conn = nil
	}

	clientID, clientSecret, redirectURI, err := tm.credentials(conn)
	if err != nil {
		return companyID, err
	}

	oc := tm.oauthConfig(clientID, clientSecret, redirectURI)
	token, err := oc.Exchange(tm.oauthContext(ctx), code)
	if err != nil {
		return companyID, exchangeError(err)
	}

	// A company connecting through the global app has no row yet.
	if conn == nil {
		encSecret, eerr := tm.box.Encrypt(clientSecret)
		if eerr != nil {
			return companyID, eerr
		}
		if err := tm.store.SaveCredentials(companyID, clientID, encSecret, redirectURI); err != nil {
			return companyID, err
		}
	}

	if err := tm.saveTokenPair(companyID, token); err != nil {
		return companyID, err
	}

	tenants, err := tm.client.Connections(ctx, token.AccessToken)
	if err != nil {
		// Tokens are stored; the tenant list can be fetched again later.
		tm.logger.WarnCtx(ctx, "tenant fetch after callback failed", "company_id", companyID, "error", err.Error())
		return companyID, nil
	}

	tenantID, orgName := tm.pickTenant(ctx, conn, tenants, token.AccessToken)
	if err := tm.store.SetTenant(companyID, tenantID, orgName, tenants); err != nil {
		return companyID, err
	}

	tm.logger.InfoCtx(ctx, "xero connected",
		"company_id", companyID,
		"tenant_id", tenantID,
		"tenants", len(tenants),
	)
	return companyID, nil
}

// pickTenant keeps the previously selected tenant when it is still
// authorised, otherwise selects the first tenant Xero returned. The
// organisation name is fetched best-effort.
func (tm *TokenManager) pickTenant(ctx context.Context, conn *models.Connection, tenants []models.Tenant, accessToken string) (tenantID, orgName string) {
	if len(tenants) == 0 {
		return "", ""
	}

	selected := tenants[0]
	if conn != nil && conn.TenantID != "" {
		for _, t := range tenants {
			if t.ID == conn.TenantID {
				selected = t
				break
			}
		}
	}

	orgName = selected.Name
	if org, err := tm.client.Organisation(ctx, accessToken, selected.ID); err == nil && org.Name != "" {
		orgName = org.Name
	}
	return selected.ID, orgName
}

func (tm *TokenManager) saveTokenPair(companyID string, token *oauth2.Token) error {
	encAccess, err := tm.box.Encrypt(token.AccessToken)
	if err != nil {
		return err
	}
	encRefresh, err := tm.box.Encrypt(token.RefreshToken)
	if err != nil {
		return err
	}
	return tm.store.SaveTokens(companyID, encAccess, encRefresh, token.Expiry)
}

func exchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &errors.ErrTokenExchangeFailed{Reason: retrieveErr.ErrorCode, Err: err}
	}
	return &errors.ErrTokenExchangeFailed{Err: err}
}

// GetValidToken returns a usable access token and the selected tenant for a
// company, refreshing first when the stored token is expired or inside the
// expiry buffer.
func (tm *TokenManager) GetValidToken(ctx context.Context, companyID string) (accessToken, tenantID string, err error) {
	conn, err := tm.connectedConnection(companyID)
	if err != nil {
		return "", "", err
	}

	if !conn.TokenExpired(tm.cfg.ExpiryBuffer) {
		token, derr := tm.box.Decrypt(conn.AccessToken)
		if derr != nil {
			return "", "", derr
		}
		return token, conn.TenantID, nil
	}

	token, err := tm.refresh(ctx, companyID)
	if err != nil {
		return "", "", err
	}
	return token, conn.TenantID, nil
}

// Refresh forces a token refresh regardless of the stored expiry.
func (tm *TokenManager) Refresh(ctx context.Context, companyID string) error {
	if _, err := tm.connectedConnection(companyID); err != nil {
		return err
	}
	_, err := tm.refresh(ctx, companyID)
	return err
}

// refresh performs the upstream refresh, collapsed per company so that
// concurrent callers share one round-trip and one stored rotation.
func (tm *TokenManager) refresh(ctx context.Context, companyID string) (string, error) {
	v, err, _ := tm.refreshGroup.Do(companyID, func() (interface{}, error) {
		return tm.doRefresh(ctx, companyID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (tm *TokenManager) doRefresh(ctx context.Context, companyID string) (string, error) {
	conn, err := tm.store.GetConnection(companyID)
	if err != nil {
		return "", err
	}
	if conn.RefreshToken == "" {
		return "", &errors.ErrRefreshFailed{CompanyID: companyID}
	}

	clientID, clientSecret, redirectURI, err := tm.credentials(conn)
	if err != nil {
		return "", err
	}
	refreshToken, err := tm.box.Decrypt(conn.RefreshToken)
	if err != nil {
		return "", err
	}

	oc := tm.oauthConfig(clientID, clientSecret, redirectURI)
	token, err := oc.TokenSource(tm.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		tm.metrics.RecordTokenRefresh("failure")
		tm.markRefreshFailure(ctx, companyID, err)
		return "", &errors.ErrRefreshFailed{CompanyID: companyID, Err: err}
	}

	// Xero rotates refresh tokens; falling back to the old one keeps the
	// chain alive if the response omitted a new one.
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	if err := tm.saveTokenPair(companyID, token); err != nil {
		return "", err
	}

	tm.metrics.RecordTokenRefresh("success")
	tm.logger.InfoCtx(ctx, "token refreshed", "company_id", companyID, "expires_at", token.Expiry.Format(time.RFC3339))
	return token.AccessToken, nil
}

func (tm *TokenManager) markRefreshFailure(ctx context.Context, companyID string, err error) {
	if serr := tm.store.SetStatus(companyID, models.StatusError); serr != nil {
		tm.logger.ErrorCtx(ctx, "failed to record refresh failure", "company_id", companyID, "error", serr.Error())
	}
	tm.logger.ErrorCtx(ctx, "token refresh failed", "company_id", companyID, "error", err.Error())
	if tm.alerts != nil {
		tm.alerts.NotifyRefreshFailure(companyID, err)
	}
}

// connectedConnection loads a connection and verifies it is usable for data
// access.
func (tm *TokenManager) connectedConnection(companyID string) (*models.Connection, error) {
	conn, err := tm.store.GetConnection(companyID)
	if err != nil {
		// An unknown company is indistinguishable from one that never
		// saved credentials.
		if errors.CodeOf(err) == errors.CodeNotFound {
			return nil, &errors.ErrNotConfigured{CompanyID: companyID}
		}
		return nil, err
	}
	if !conn.HasCredentials() {
		return nil, &errors.ErrNotConfigured{CompanyID: companyID}
	}
	if !conn.HasTokens() {
		return nil, &errors.ErrNotConnected{CompanyID: companyID}
	}
	return conn, nil
}

// Disconnect wipes tokens and tenant selection but keeps the app
// credentials, then drops the company's cached responses.
func (tm *TokenManager) Disconnect(ctx context.Context, companyID string) error {
	if err := tm.store.ClearTokens(companyID); err != nil {
		return err
	}
	if err := tm.store.InvalidateCache(companyID); err != nil {
		tm.logger.WarnCtx(ctx, "cache invalidation on disconnect failed", "company_id", companyID, "error", err.Error())
	}
	tm.logger.InfoCtx(ctx, "xero disconnected", "company_id", companyID)
	return nil
}

// StatusInfo is the connection status view returned to API callers. It never
// carries token or secret material.
type StatusInfo struct {
	CompanyID        string                  `json:"company_id"`
	Status           models.ConnectionStatus `json:"status"`
	Connected        bool                    `json:"connected"`
	TenantID         string                  `json:"tenant_id,omitempty"`
	OrganisationName string                  `json:"organisation_name,omitempty"`
	TokenExpiresAt   *time.Time              `json:"token_expires_at,omitempty"`
	UpdatedAt        *time.Time              `json:"updated_at,omitempty"`
}

// Status reports the connection state for a company. A missing row is
// reported as not_configured rather than an error.
func (tm *TokenManager) Status(companyID string) StatusInfo {
	info := StatusInfo{CompanyID: companyID, Status: models.StatusNotConfigured}

	conn, err := tm.store.GetConnection(companyID)
	if err != nil {
		return info
	}

	info.Status = conn.DeriveStatus()
	info.Connected = info.Status == models.StatusConnected
	info.TenantID = conn.TenantID
	info.OrganisationName = conn.OrganisationName
	if !conn.TokenExpiresAt.IsZero() {
		t := conn.TokenExpiresAt
		info.TokenExpiresAt = &t
	}
	if !conn.UpdatedAt.IsZero() {
		t := conn.UpdatedAt
		info.UpdatedAt = &t
	}
	return info
}

// Settings is the credential view returned to API callers. The client
// secret itself is never included.
type Settings struct {
	CompanyID    string `json:"company_id"`
	ClientID     string `json:"client_id"`
	RedirectURI  string `json:"redirect_uri"`
	HasSecret    bool   `json:"has_secret"`
	SecretStored string `json:"secret_stored,omitempty"`
}

// SaveSettings stores per-company OAuth app credentials, encrypting the
// secret at rest. Existing tokens survive a credential update.
func (tm *TokenManager) SaveSettings(ctx context.Context, companyID, clientID, clientSecret, redirectURI string) error {
	encSecret, err := tm.box.Encrypt(clientSecret)
	if err != nil {
		return err
	}
	if err := tm.store.SaveCredentials(companyID, clientID, encSecret, redirectURI); err != nil {
		return err
	}
	tm.logger.InfoCtx(ctx, "credentials saved", "company_id", companyID)
	return nil
}

// GetSettings returns the stored credentials with the secret redacted.
func (tm *TokenManager) GetSettings(companyID string) (*Settings, error) {
	conn, err := tm.store.GetConnection(companyID)
	if err != nil {
		return nil, err
	}
	return &Settings{
		CompanyID:   companyID,
		ClientID:    conn.ClientID,
		RedirectURI: conn.RedirectURI,
		HasSecret:   conn.ClientSecret != "",
	}, nil
}

// Tenants returns the tenant list stored at connect time, refreshing it from
// Xero when the caller asks for live data.
func (tm *TokenManager) Tenants(ctx context.Context, companyID string, live bool) ([]models.Tenant, error) {
	conn, err := tm.connectedConnection(companyID)
	if err != nil {
		return nil, err
	}

	if !live {
		return conn.Tenants, nil
	}

	token, _, err := tm.GetValidToken(ctx, companyID)
	if err != nil {
		return nil, err
	}
	tenants, err := tm.client.Connections(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := tm.store.SetTenant(companyID, conn.TenantID, conn.OrganisationName, tenants); err != nil {
		return nil, err
	}
	return tenants, nil
}

// SelectTenant switches the active tenant. The tenant must be on the
// stored authorised list. The response cache is dropped so data from the
// previous organisation is never served.
func (tm *TokenManager) SelectTenant(ctx context.Context, companyID, tenantID string) error {
	conn, err := tm.connectedConnection(companyID)
	if err != nil {
		return err
	}

	var selected *models.Tenant
	for i := range conn.Tenants {
		if conn.Tenants[i].ID == tenantID {
			selected = &conn.Tenants[i]
			break
		}
	}
	if selected == nil {
		return &errors.ErrForbidden{Operation: "select tenant " + tenantID}
	}

	orgName := selected.Name
	if token, _, terr := tm.GetValidToken(ctx, companyID); terr == nil {
		if org, oerr := tm.client.Organisation(ctx, token, tenantID); oerr == nil && org.Name != "" {
			orgName = org.Name
		}
	}

	if err := tm.store.SetTenant(companyID, tenantID, orgName, conn.Tenants); err != nil {
		return err
	}
	if err := tm.store.InvalidateCache(companyID); err != nil {
		tm.logger.WarnCtx(ctx, "cache invalidation on tenant switch failed", "company_id", companyID, "error", err.Error())
	}

	tm.logger.InfoCtx(ctx, "tenant selected", "company_id", companyID, "tenant_id", tenantID)
	return nil
}
