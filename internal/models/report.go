package models

import "time"

// ReportPeriod is the inclusive date range a tax report covers.
type ReportPeriod struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// BASTotals aggregates one side (sales or purchases) of an activity statement.
type BASTotals struct {
	Total float64 `json:"total"`
	GST   float64 `json:"gst"`
	Count int     `json:"count"`
}

// BASReport is a Business Activity Statement summary derived from invoices
// and bills. It is a best-effort estimate, not a compliance-grade figure.
type BASReport struct {
	Period    ReportPeriod `json:"period"`
	Sales     BASTotals    `json:"sales"`
	Purchases BASTotals    `json:"purchases"`
	NetGST    float64      `json:"net_gst"`
	Estimated bool         `json:"estimated"`
}

// FASCategory is a fringe-benefit bucket with its aggregated spend.
type FASCategory struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// FASReport is a fringe-benefits summary derived from bills and spend-money
// transactions linked to employee contacts. Classification is by keyword
// matching against account codes and descriptions, and the FBT figure uses a
// fixed approximate rate.
type FASReport struct {
	Period      ReportPeriod  `json:"period"`
	Categories  []FASCategory `json:"categories"`
	TotalSpend  float64       `json:"total_spend"`
	FBTRate     float64       `json:"fbt_rate"`
	FBTEstimate float64       `json:"fbt_estimate"`
	Estimated   bool          `json:"estimated"`
}
