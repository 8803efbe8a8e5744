package xero

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/xerolink/xerolink/internal/config"
	"github.com/xerolink/xerolink/internal/errors"
	"github.com/xerolink/xerolink/internal/logging"
	"github.com/xerolink/xerolink/internal/metrics"
	"github.com/xerolink/xerolink/internal/models"
	"github.com/xerolink/xerolink/pkg/headers"
)

// Client talks to the Xero accounting API. It carries no per-company state;
// the access token and tenant are supplied per call.
type Client struct {
	cfg     config.XeroConfig
	http    *http.Client
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewClient creates a Xero API client.
func NewClient(cfg config.XeroConfig, m *metrics.Metrics, logger *logging.Logger) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Component("xero-client"),
		metrics: m,
	}
}

// connection is one entry of the /connections response.
type connection struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenantId"`
	TenantName     string `json:"tenantName"`
	TenantType     string `json:"tenantType"`
	CreatedDateUTC string `json:"createdDateUtc"`
}

// Connections lists the tenants the token is authorised for.
func (c *Client) Connections(ctx context.Context, accessToken string) ([]models.Tenant, error) {
	body, _, err := c.get(ctx, c.cfg.ConnectionsURL, accessToken, "", "connections")
	if err != nil {
		return nil, err
	}

	var conns []connection
	if err := json.Unmarshal(body, &conns); err != nil {
		return nil, &errors.ErrUpstreamUnreachable{Err: fmt.Errorf("decode connections: %w", err)}
	}

	tenants := make([]models.Tenant, 0, len(conns))
	for _, cn := range conns {
		tenants = append(tenants, models.Tenant{
			ID:             cn.TenantID,
			Name:           cn.TenantName,
			TenantType:     cn.TenantType,
			CreatedDateUTC: cn.CreatedDateUTC,
		})
	}
	return tenants, nil
}

// Organisation fetches the organisation record for a tenant.
func (c *Client) Organisation(ctx context.Context, accessToken, tenantID string) (*Organisation, error) {
	body, _, err := c.get(ctx, c.cfg.APIBaseURL+"/Organisation", accessToken, tenantID, "organisation")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Organisations []Organisation `json:"Organisations"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &errors.ErrUpstreamUnreachable{Err: fmt.Errorf("decode organisation: %w", err)}
	}
	if len(resp.Organisations) == 0 {
		return nil, &errors.ErrUpstreamUnavailable{Status: http.StatusOK}
	}
	return &resp.Organisations[0], nil
}

// FetchResource fetches one page of a catalogued resource and returns the raw
// response body.
func (c *Client) FetchResource(ctx context.Context, accessToken, tenantID string, rt models.ResourceType, q models.ListQuery) ([]byte, error) {
	path, _, list, ok := rt.Endpoint()
	if !ok {
		return nil, &errors.ErrUnsupportedResourceType{Type: string(rt)}
	}

	u := c.cfg.APIBaseURL + "/" + path
	if list {
		q = q.Normalize()
		params := url.Values{}
		params.Set("page", strconv.Itoa(q.Page))
		params.Set("pageSize", strconv.Itoa(q.PageSize))
		if where := buildWhere(q); where != "" {
			params.Set("where", where)
		}
		u += "?" + params.Encode()
	}

	body, _, err := c.get(ctx, u, accessToken, tenantID, string(rt))
	return body, err
}

// buildWhere combines the caller's where clause with date bounds. Xero list
// endpoints filter on the Date field.
func buildWhere(q models.ListQuery) string {
	where := q.Where
	if q.From != nil {
		clause := fmt.Sprintf("Date >= DateTime(%d, %d, %d)", q.From.Year(), q.From.Month(), q.From.Day())
		where = andWhere(where, clause)
	}
	if q.To != nil {
		clause := fmt.Sprintf("Date <= DateTime(%d, %d, %d)", q.To.Year(), q.To.Month(), q.To.Day())
		where = andWhere(where, clause)
	}
	return where
}

func andWhere(where, clause string) string {
	if where == "" {
		return clause
	}
	return where + " AND " + clause
}

// get performs an authenticated GET and maps non-2xx responses onto the
// error taxonomy. The returned snapshot is valid even on error.
func (c *Client) get(ctx context.Context, rawURL, accessToken, tenantID, operation string) ([]byte, headers.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, headers.Snapshot{}, &errors.ErrUpstreamUnreachable{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if tenantID != "" {
		req.Header.Set("Xero-tenant-id", tenantID)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordUpstreamRequest(operation, "unreachable", time.Since(start).Seconds())
		return nil, headers.Snapshot{}, &errors.ErrUpstreamUnreachable{Err: err}
	}
	defer resp.Body.Close()

	snap := headers.Parse(resp.Header)
	c.metrics.RecordUpstreamRequest(operation, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	c.metrics.SetRateLimitRemaining("minute", snap.MinuteRemaining)
	c.metrics.SetRateLimitRemaining("day", snap.DayRemaining)
	c.metrics.SetRateLimitRemaining("app_minute", snap.AppMinuteRemaining)

	if err := c.statusError(resp.StatusCode, operation, snap); err != nil {
		io.Copy(io.Discard, resp.Body)
		return nil, snap, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, snap, &errors.ErrUpstreamUnreachable{Err: err}
	}
	return body, snap, nil
}

func (c *Client) statusError(status int, operation string, snap headers.Snapshot) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return &errors.ErrUnauthorized{Operation: operation}
	case status == http.StatusForbidden:
		return &errors.ErrForbidden{Operation: operation}
	case status == http.StatusNotFound:
		return &errors.ErrUpstreamUnavailable{Status: status}
	case status == http.StatusTooManyRequests:
		c.logger.Warn("rate limited by xero",
			"operation", operation,
			"problem", snap.Problem,
			"retry_after", snap.RetryAfter.String(),
		)
		return &errors.ErrRateLimited{RetryAfter: snap.RetryAfter, Problem: snap.Problem}
	default:
		return &errors.ErrUpstreamUnavailable{Status: status}
	}
}
