package models

import (
	"fmt"
	"time"
)

// ResourceType is a logical Xero resource exposed by the data API.
type ResourceType string

const (
	ResourceInvoices           ResourceType = "invoices"
	ResourceContacts           ResourceType = "contacts"
	ResourceAccounts           ResourceType = "accounts"
	ResourceBankTransactions   ResourceType = "bank-transactions"
	ResourceTransactions       ResourceType = "transactions"
	ResourceItems              ResourceType = "items"
	ResourceTaxRates           ResourceType = "tax-rates"
	ResourceTrackingCategories ResourceType = "tracking-categories"
	ResourceOrganisation       ResourceType = "organization"
	ResourcePurchaseOrders     ResourceType = "purchase-orders"
	ResourceReceipts           ResourceType = "receipts"
	ResourceCreditNotes        ResourceType = "credit-notes"
	ResourceManualJournals     ResourceType = "manual-journals"
	ResourcePrepayments        ResourceType = "prepayments"
	ResourceOverpayments       ResourceType = "overpayments"
	ResourceQuotes             ResourceType = "quotes"
	ResourcePayments           ResourceType = "payments"
	ResourceJournals           ResourceType = "journals"

	// Composite types are computed client-side from several underlying
	// fetches; they have no single upstream endpoint.
	ResourceFinancialSummary ResourceType = "financial-summary"
	ResourceDashboardData    ResourceType = "dashboard-data"
)

// resourceEndpoint maps each simple resource type to its path under the
// accounting API base and the top-level key Xero wraps list payloads in.
type resourceEndpoint struct {
	Path    string
	WrapKey string
	List    bool
}

var resourceCatalog = map[ResourceType]resourceEndpoint{
	ResourceInvoices:           {Path: "Invoices", WrapKey: "Invoices", List: true},
	ResourceContacts:           {Path: "Contacts", WrapKey: "Contacts", List: true},
	ResourceAccounts:           {Path: "Accounts", WrapKey: "Accounts", List: true},
	ResourceBankTransactions:   {Path: "BankTransactions", WrapKey: "BankTransactions", List: true},
	ResourceTransactions:       {Path: "BankTransactions", WrapKey: "BankTransactions", List: true},
	ResourceItems:              {Path: "Items", WrapKey: "Items", List: true},
	ResourceTaxRates:           {Path: "TaxRates", WrapKey: "TaxRates", List: true},
	ResourceTrackingCategories: {Path: "TrackingCategories", WrapKey: "TrackingCategories", List: true},
	ResourceOrganisation:       {Path: "Organisation", WrapKey: "Organisations", List: false},
	ResourcePurchaseOrders:     {Path: "PurchaseOrders", WrapKey: "PurchaseOrders", List: true},
	ResourceReceipts:           {Path: "Receipts", WrapKey: "Receipts", List: true},
	ResourceCreditNotes:        {Path: "CreditNotes", WrapKey: "CreditNotes", List: true},
	ResourceManualJournals:     {Path: "ManualJournals", WrapKey: "ManualJournals", List: true},
	ResourcePrepayments:        {Path: "Prepayments", WrapKey: "Prepayments", List: true},
	ResourceOverpayments:       {Path: "Overpayments", WrapKey: "Overpayments", List: true},
	ResourceQuotes:             {Path: "Quotes", WrapKey: "Quotes", List: true},
	ResourcePayments:           {Path: "Payments", WrapKey: "Payments", List: true},
	ResourceJournals:           {Path: "Journals", WrapKey: "Journals", List: true},
}

// ParseResourceType validates a caller-supplied resource type string.
func ParseResourceType(s string) (ResourceType, error) {
	rt := ResourceType(s)
	if rt == ResourceFinancialSummary || rt == ResourceDashboardData {
		return rt, nil
	}
	if _, ok := resourceCatalog[rt]; ok {
		return rt, nil
	}
	return "", fmt.Errorf("unknown resource type %q", s)
}

// Endpoint returns the upstream endpoint for a simple resource type.
func (rt ResourceType) Endpoint() (path, wrapKey string, list bool, ok bool) {
	ep, ok := resourceCatalog[rt]
	return ep.Path, ep.WrapKey, ep.List, ok
}

// IsComposite reports whether this type is aggregated client-side.
func (rt ResourceType) IsComposite() bool {
	return rt == ResourceFinancialSummary || rt == ResourceDashboardData
}

// MaxPageSize is the upstream cap on list page sizes.
const MaxPageSize = 1000

// ListQuery carries pagination and filtering options for list resources.
type ListQuery struct {
	Page     int
	PageSize int
	From     *time.Time
	To       *time.Time
	Where    string
}

// Normalize clamps pagination to valid bounds.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = 100
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}
