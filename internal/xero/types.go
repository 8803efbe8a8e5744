package xero

import "encoding/json"

// Organisation is the subset of Xero's organisation record the service uses.
type Organisation struct {
	OrganisationID   string `json:"OrganisationID"`
	Name             string `json:"Name"`
	LegalName        string `json:"LegalName"`
	ShortCode        string `json:"ShortCode"`
	CountryCode      string `json:"CountryCode"`
	BaseCurrency     string `json:"BaseCurrency"`
	OrganisationType string `json:"OrganisationType"`
}

// ContactRef is the embedded contact reference on transactions and invoices.
type ContactRef struct {
	ContactID     string         `json:"ContactID"`
	Name          string         `json:"Name"`
	EmailAddress  string         `json:"EmailAddress,omitempty"`
	ContactGroups []ContactGroup `json:"ContactGroups,omitempty"`
}

// ContactGroup is a named grouping of contacts in Xero.
type ContactGroup struct {
	ContactGroupID string `json:"ContactGroupID"`
	Name           string `json:"Name"`
}

// Invoice is the subset of Xero's invoice record the report assemblers read.
type Invoice struct {
	InvoiceID       string     `json:"InvoiceID"`
	InvoiceNumber   string     `json:"InvoiceNumber"`
	Type            string     `json:"Type"`
	Status          string     `json:"Status"`
	Contact         ContactRef `json:"Contact"`
	DateString      string     `json:"DateString,omitempty"`
	Date            string     `json:"Date,omitempty"`
	DueDateString   string     `json:"DueDateString,omitempty"`
	SubTotal        float64    `json:"SubTotal"`
	TotalTax        float64    `json:"TotalTax"`
	Total           float64    `json:"Total"`
	AmountDue       float64    `json:"AmountDue"`
	AmountPaid      float64    `json:"AmountPaid"`
	CurrencyCode    string     `json:"CurrencyCode"`
	LineItems       []LineItem `json:"LineItems,omitempty"`
}

// LineItem is one line of an invoice or bank transaction.
type LineItem struct {
	Description string  `json:"Description"`
	Quantity    float64 `json:"Quantity"`
	UnitAmount  float64 `json:"UnitAmount"`
	AccountCode string  `json:"AccountCode"`
	TaxType     string  `json:"TaxType"`
	TaxAmount   float64 `json:"TaxAmount"`
	LineAmount  float64 `json:"LineAmount"`
}

// BankTransaction is the subset of Xero's bank transaction record used by
// the FAS assembler.
type BankTransaction struct {
	BankTransactionID string     `json:"BankTransactionID"`
	Type              string     `json:"Type"`
	Status            string     `json:"Status"`
	Contact           ContactRef `json:"Contact"`
	DateString        string     `json:"DateString,omitempty"`
	Date              string     `json:"Date,omitempty"`
	SubTotal          float64    `json:"SubTotal"`
	TotalTax          float64    `json:"TotalTax"`
	Total             float64    `json:"Total"`
	LineItems         []LineItem `json:"LineItems,omitempty"`
}

// Contact is the subset of Xero's contact record exposed by the contacts
// endpoint.
type Contact struct {
	ContactID     string         `json:"ContactID"`
	Name          string         `json:"Name"`
	EmailAddress  string         `json:"EmailAddress,omitempty"`
	ContactStatus string         `json:"ContactStatus,omitempty"`
	IsSupplier    bool           `json:"IsSupplier"`
	IsCustomer    bool           `json:"IsCustomer"`
	ContactGroups []ContactGroup `json:"ContactGroups,omitempty"`
}

// UnwrapInvoices extracts the invoice list from a raw Xero payload.
func UnwrapInvoices(payload []byte) ([]Invoice, error) {
	var resp struct {
		Invoices []Invoice `json:"Invoices"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}
	return resp.Invoices, nil
}

// UnwrapContacts extracts the contact list from a raw Xero payload.
func UnwrapContacts(payload []byte) ([]Contact, error) {
	var resp struct {
		Contacts []Contact `json:"Contacts"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}
	return resp.Contacts, nil
}

// UnwrapBankTransactions extracts the bank transaction list from a raw Xero
// payload.
func UnwrapBankTransactions(payload []byte) ([]BankTransaction, error) {
	var resp struct {
		BankTransactions []BankTransaction `json:"BankTransactions"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}
	return resp.BankTransactions, nil
}
