package xero

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xerolink/xerolink/internal/config"
	"github.com/xerolink/xerolink/internal/errors"
	"github.com/xerolink/xerolink/internal/logging"
	"github.com/xerolink/xerolink/internal/metrics"
	"github.com/xerolink/xerolink/internal/models"
	"github.com/xerolink/xerolink/internal/store"
)

// Fetcher serves resource data through the response cache, owning the token
// manager so a stale access token is refreshed exactly once per request.
type Fetcher struct {
	client  *Client
	tokens  *TokenManager
	store   store.Store
	cache   config.CacheConfig
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewFetcher creates a data fetcher.
func NewFetcher(client *Client, tokens *TokenManager, st store.Store, cache config.CacheConfig, m *metrics.Metrics, logger *logging.Logger) *Fetcher {
	return &Fetcher{
		client:  client,
		tokens:  tokens,
		store:   st,
		cache:   cache,
		logger:  logger.Component("fetcher"),
		metrics: m,
	}
}

// Fetch returns the payload for a resource type, serving from cache when a
// fresh entry exists. Composite types are assembled from several underlying
// fetches.
func (f *Fetcher) Fetch(ctx context.Context, companyID string, rt models.ResourceType, q models.ListQuery) ([]byte, error) {
	if rt.IsComposite() {
		return f.fetchComposite(ctx, companyID, rt, q)
	}
	if _, _, _, ok := rt.Endpoint(); !ok {
		return nil, &errors.ErrUnsupportedResourceType{Type: string(rt)}
	}

	// Tenant resolution reads the stored connection only; token validity
	// is checked on the upstream path, so a fresh cache entry is served
	// even when the stored token has gone stale.
	conn, err := f.tokens.connectedConnection(companyID)
	if err != nil {
		return nil, err
	}
	tenantID := conn.TenantID

	key := cacheKey(rt, q)
	if payload, ok := f.store.GetCache(companyID, tenantID, key); ok {
		f.metrics.RecordCacheOp("hit")
		return payload, nil
	}
	f.metrics.RecordCacheOp("miss")

	payload, err := f.fetchUpstream(ctx, companyID, rt, q)
	if err != nil {
		return nil, err
	}

	if err := f.store.PutCache(companyID, tenantID, key, payload, f.cache.DefaultTTL); err != nil {
		f.logger.WarnCtx(ctx, "cache write failed", "company_id", companyID, "resource", key, "error", err.Error())
	}
	return payload, nil
}

// fetchUpstream issues the authenticated fetch. A 401 triggers exactly one
// forced refresh followed by one retry; any further 401 is surfaced.
func (f *Fetcher) fetchUpstream(ctx context.Context, companyID string, rt models.ResourceType, q models.ListQuery) ([]byte, error) {
	token, tenantID, err := f.tokens.GetValidToken(ctx, companyID)
	if err != nil {
		return nil, err
	}

	payload, err := f.client.FetchResource(ctx, token, tenantID, rt, q)
	if err == nil {
		return payload, nil
	}

	var unauthorized *errors.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		return nil, err
	}

	f.logger.InfoCtx(ctx, "access token rejected, refreshing once", "company_id", companyID, "resource", string(rt))
	if rerr := f.tokens.Refresh(ctx, companyID); rerr != nil {
		return nil, rerr
	}
	token, tenantID, err = f.tokens.GetValidToken(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return f.client.FetchResource(ctx, token, tenantID, rt, q)
}

// cacheKey folds the query options into the resource key so differently
// filtered pages never collide.
func cacheKey(rt models.ResourceType, q models.ListQuery) string {
	q = q.Normalize()
	var b strings.Builder
	b.WriteString(string(rt))
	b.WriteString("?page=")
	b.WriteString(strconv.Itoa(q.Page))
	b.WriteString("&size=")
	b.WriteString(strconv.Itoa(q.PageSize))
	if q.From != nil {
		b.WriteString("&from=")
		b.WriteString(q.From.Format("2006-01-02"))
	}
	if q.To != nil {
		b.WriteString("&to=")
		b.WriteString(q.To.Format("2006-01-02"))
	}
	if q.Where != "" {
		b.WriteString("&where=")
		b.WriteString(q.Where)
	}
	return b.String()
}

// Invoices fetches and unwraps the invoice list.
func (f *Fetcher) Invoices(ctx context.Context, companyID string, q models.ListQuery) ([]Invoice, error) {
	payload, err := f.Fetch(ctx, companyID, models.ResourceInvoices, q)
	if err != nil {
		return nil, err
	}
	invoices, err := UnwrapInvoices(payload)
	if err != nil {
		return nil, fmt.Errorf("decode invoices: %w", err)
	}
	return invoices, nil
}

// Contacts fetches and unwraps the contact list.
func (f *Fetcher) Contacts(ctx context.Context, companyID string, q models.ListQuery) ([]Contact, error) {
	payload, err := f.Fetch(ctx, companyID, models.ResourceContacts, q)
	if err != nil {
		return nil, err
	}
	contacts, err := UnwrapContacts(payload)
	if err != nil {
		return nil, fmt.Errorf("decode contacts: %w", err)
	}
	return contacts, nil
}

// BankTransactions fetches and unwraps the bank transaction list.
func (f *Fetcher) BankTransactions(ctx context.Context, companyID string, q models.ListQuery) ([]BankTransaction, error) {
	payload, err := f.Fetch(ctx, companyID, models.ResourceBankTransactions, q)
	if err != nil {
		return nil, err
	}
	txns, err := UnwrapBankTransactions(payload)
	if err != nil {
		return nil, fmt.Errorf("decode bank transactions: %w", err)
	}
	return txns, nil
}

// Organisation fetches the organisation record through the cache.
func (f *Fetcher) Organisation(ctx context.Context, companyID string) (*Organisation, error) {
	payload, err := f.Fetch(ctx, companyID, models.ResourceOrganisation, models.ListQuery{})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Organisations []Organisation `json:"Organisations"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode organisation: %w", err)
	}
	if len(resp.Organisations) == 0 {
		return nil, &errors.ErrUpstreamUnavailable{Status: 200}
	}
	return &resp.Organisations[0], nil
}

// monthStart returns the first day of the month n months before now.
func monthStart(now time.Time, monthsBack int) time.Time {
	y, m, _ := now.AddDate(0, -monthsBack, 0).Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
}
