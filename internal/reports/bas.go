// Package reports derives BAS and FAS tax summaries from fetched accounting
// data. Both assemblers are heuristic estimators and flag their output as
// such.
package reports

import (
	"context"

	"github.com/xerolink/xerolink/internal/logging"
	"github.com/xerolink/xerolink/internal/models"
	"github.com/xerolink/xerolink/internal/xero"
)

// Assembler builds tax report summaries on top of the data fetcher.
type Assembler struct {
	fetcher *xero.Fetcher
	logger  *logging.Logger
}

// NewAssembler creates a report assembler.
func NewAssembler(fetcher *xero.Fetcher, logger *logging.Logger) *Assembler {
	return &Assembler{
		fetcher: fetcher,
		logger:  logger.Component("reports"),
	}
}

// BAS assembles a Business Activity Statement summary for the period:
// sales from ACCREC invoices, purchases from ACCPAY bills, GST from each
// side's tax totals.
func (a *Assembler) BAS(ctx context.Context, companyID string, period models.ReportPeriod) (*models.BASReport, error) {
	invoices, err := a.fetcher.Invoices(ctx, companyID, periodQuery(period))
	if err != nil {
		return nil, err
	}

	report := &models.BASReport{
		Period:    period,
		Estimated: true,
	}
	for _, inv := range invoices {
		if !countsForBAS(inv.Status) {
			continue
		}
		switch inv.Type {
		case "ACCREC":
			report.Sales.Total += inv.Total
			report.Sales.GST += inv.TotalTax
			report.Sales.Count++
		case "ACCPAY":
			report.Purchases.Total += inv.Total
			report.Purchases.GST += inv.TotalTax
			report.Purchases.Count++
		}
	}
	report.NetGST = report.Sales.GST - report.Purchases.GST

	a.logger.InfoCtx(ctx, "bas assembled",
		"company_id", companyID,
		"sales", report.Sales.Count,
		"purchases", report.Purchases.Count,
	)
	return report, nil
}

// countsForBAS excludes drafts, deletions and voided documents.
func countsForBAS(status string) bool {
	switch status {
	case "AUTHORISED", "PAID":
		return true
	}
	return false
}

func periodQuery(period models.ReportPeriod) models.ListQuery {
	q := models.ListQuery{PageSize: models.MaxPageSize}
	if !period.From.IsZero() {
		from := period.From
		q.From = &from
	}
	if !period.To.IsZero() {
		to := period.To
		q.To = &to
	}
	return q
}
