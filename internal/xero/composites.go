package xero

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xerolink/xerolink/internal/errors"
	"github.com/xerolink/xerolink/internal/models"
)

// FinancialSummary aggregates receivables, payables and organisation facts
// from several underlying fetches.
type FinancialSummary struct {
	OrganisationName string  `json:"organisation_name"`
	BaseCurrency     string  `json:"base_currency"`
	TotalReceivable  float64 `json:"total_receivable"`
	TotalPayable     float64 `json:"total_payable"`
	OverdueCount     int     `json:"overdue_count"`
	InvoiceCount     int     `json:"invoice_count"`
	GeneratedAt      string  `json:"generated_at"`
}

// DashboardData is the composite payload backing a dashboard view: invoice
// status breakdown plus recent cash movement.
type DashboardData struct {
	InvoicesByStatus map[string]int `json:"invoices_by_status"`
	TotalReceivable  float64        `json:"total_receivable"`
	TotalPayable     float64        `json:"total_payable"`
	CashIn           float64        `json:"cash_in"`
	CashOut          float64        `json:"cash_out"`
	ContactCount     int            `json:"contact_count"`
	GeneratedAt      string         `json:"generated_at"`
}

// fetchComposite assembles a client-side composite resource and caches the
// assembled payload under its own key.
func (f *Fetcher) fetchComposite(ctx context.Context, companyID string, rt models.ResourceType, q models.ListQuery) ([]byte, error) {
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

	var payload []byte
	switch rt {
	case models.ResourceFinancialSummary:
		payload, err = f.buildFinancialSummary(ctx, companyID, q)
	case models.ResourceDashboardData:
		payload, err = f.buildDashboardData(ctx, companyID, q)
	default:
		return nil, &errors.ErrUnsupportedResourceType{Type: string(rt)}
	}
	if err != nil {
		return nil, err
	}

	if err := f.store.PutCache(companyID, tenantID, key, payload, f.cache.DefaultTTL); err != nil {
		f.logger.WarnCtx(ctx, "cache write failed", "company_id", companyID, "resource", key, "error", err.Error())
	}
	return payload, nil
}

func (f *Fetcher) buildFinancialSummary(ctx context.Context, companyID string, q models.ListQuery) ([]byte, error) {
	invoices, err := f.Invoices(ctx, companyID, q)
	if err != nil {
		return nil, err
	}

	summary := FinancialSummary{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	now := time.Now()
	for _, inv := range invoices {
		summary.InvoiceCount++
		switch inv.Type {
		case "ACCREC":
			summary.TotalReceivable += inv.AmountDue
		case "ACCPAY":
			summary.TotalPayable += inv.AmountDue
		}
		if inv.AmountDue > 0 && invoiceOverdue(inv, now) {
			summary.OverdueCount++
		}
	}

	// Organisation facts are decoration; a failure here should not sink
	// the whole summary.
	if org, oerr := f.Organisation(ctx, companyID); oerr == nil {
		summary.OrganisationName = org.Name
		summary.BaseCurrency = org.BaseCurrency
	}

	return json.Marshal(summary)
}

func (f *Fetcher) buildDashboardData(ctx context.Context, companyID string, q models.ListQuery) ([]byte, error) {
	invoices, err := f.Invoices(ctx, companyID, q)
	if err != nil {
		return nil, err
	}

	data := DashboardData{
		InvoicesByStatus: make(map[string]int),
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	for _, inv := range invoices {
		data.InvoicesByStatus[inv.Status]++
		switch inv.Type {
		case "ACCREC":
			data.TotalReceivable += inv.AmountDue
		case "ACCPAY":
			data.TotalPayable += inv.AmountDue
		}
	}

	// Cash movement over the last month; partial failure degrades to an
	// invoice-only dashboard.
	txQuery := q
	if txQuery.From == nil {
		from := monthStart(time.Now(), 1)
		txQuery.From = &from
	}
	if txns, terr := f.BankTransactions(ctx, companyID, txQuery); terr == nil {
		for _, tx := range txns {
			switch tx.Type {
			case "RECEIVE", "RECEIVE-OVERPAYMENT", "RECEIVE-PREPAYMENT":
				data.CashIn += tx.Total
			case "SPEND", "SPEND-OVERPAYMENT", "SPEND-PREPAYMENT":
				data.CashOut += tx.Total
			}
		}
	}
	if contacts, cerr := f.Contacts(ctx, companyID, models.ListQuery{}); cerr == nil {
		data.ContactCount = len(contacts)
	}

	return json.Marshal(data)
}

// invoiceOverdue reports whether an invoice's due date has passed. Xero date
// strings come in both ISO and /Date(ms)/ forms; unparseable dates are
// treated as not overdue.
func invoiceOverdue(inv Invoice, now time.Time) bool {
	due := inv.DueDateString
	if due == "" {
		return false
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, due); err == nil {
			return t.Before(now)
		}
	}
	return false
}
