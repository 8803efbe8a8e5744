package reports

import (
	"context"
	"sort"

	"github.com/xerolink/xerolink/internal/models"
	"github.com/xerolink/xerolink/internal/xero"
)

// FAS assembles a fringe-benefits summary for the period from ACCPAY bills
// and spend-money bank transactions whose contact belongs to an employee
// group. Spend is bucketed by the keyword classifier and the FBT estimate
// applies the flat rate to total classified spend.
func (a *Assembler) FAS(ctx context.Context, companyID string, period models.ReportPeriod) (*models.FASReport, error) {
	invoices, err := a.fetcher.Invoices(ctx, companyID, periodQuery(period))
	if err != nil {
		return nil, err
	}
	txns, err := a.fetcher.BankTransactions(ctx, companyID, periodQuery(period))
	if err != nil {
		return nil, err
	}

	buckets := make(map[string]*models.FASCategory)
	add := func(category string, amount float64) {
		b, ok := buckets[category]
		if !ok {
			b = &models.FASCategory{Category: category}
			buckets[category] = b
		}
		b.Total += amount
		b.Count++
	}

	for _, inv := range invoices {
		if inv.Type != "ACCPAY" || !countsForBAS(inv.Status) {
			continue
		}
		if !EmployeeLinked(groupNames(inv.Contact.ContactGroups)) {
			continue
		}
		classifyLines(inv.Total, inv.LineItems, add)
	}

	for _, tx := range txns {
		if tx.Type != "SPEND" || tx.Status == "DELETED" {
			continue
		}
		if !EmployeeLinked(groupNames(tx.Contact.ContactGroups)) {
			continue
		}
		classifyLines(tx.Total, tx.LineItems, add)
	}

	report := &models.FASReport{
		Period:    period,
		FBTRate:   FBTRate,
		Estimated: true,
	}
	for _, b := range buckets {
		report.Categories = append(report.Categories, *b)
		report.TotalSpend += b.Total
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		return report.Categories[i].Category < report.Categories[j].Category
	})
	report.FBTEstimate = report.TotalSpend * FBTRate

	a.logger.InfoCtx(ctx, "fas assembled",
		"company_id", companyID,
		"categories", len(report.Categories),
		"total_spend", report.TotalSpend,
	)
	return report, nil
}

// classifyLines buckets each line item individually; documents without line
// detail are classified as a whole from an empty description.
func classifyLines(total float64, lines []xero.LineItem, add func(category string, amount float64)) {
	if len(lines) == 0 {
		add(Classify("", ""), total)
		return
	}
	for _, line := range lines {
		add(Classify(line.AccountCode, line.Description), line.LineAmount)
	}
}

func groupNames(groups []xero.ContactGroup) []string {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	return names
}
