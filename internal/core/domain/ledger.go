package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceStatus classifies a balance after a proposed or recorded deduction.
type BalanceStatus string

const (
	BalanceOK        BalanceStatus = "ok"
	BalanceNearLimit BalanceStatus = "near_limit"
	BalanceDepleted  BalanceStatus = "depleted"
	BalanceOverdrawn BalanceStatus = "overdrawn"
)

// LedgerEntry is one committed import transaction against a certificate
// item's balance at one port. Entries are immutable once written; a
// correction deletes the entry and recomputes every later balance in the
// same (item, port) chain.
type LedgerEntry struct {
	ID                string          `json:"id"`
	CertificateItemID string          `json:"certificate_item_id"`
	Port              Port            `json:"port"`
	InvoiceNumber     string          `json:"invoice_number,omitempty"`
	InvoiceLine       int             `json:"invoice_line,omitempty"`
	QuantityImported  decimal.Decimal `json:"quantity_imported"`
	BalanceBefore     decimal.Decimal `json:"balance_before"`
	BalanceAfter      decimal.Decimal `json:"balance_after"`
	ImportDate        time.Time       `json:"import_date"`
	Remarks           string          `json:"remarks,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Deduction is a proposed import, produced by the matching workflow and fed
// to the ledger for preview and commit.
type Deduction struct {
	CertificateItemID string          `json:"certificate_item_id"`
	Port              Port            `json:"port"`
	Quantity          decimal.Decimal `json:"quantity"`
	InvoiceNumber     string          `json:"invoice_number,omitempty"`
	InvoiceLine       int             `json:"invoice_line,omitempty"`
	ImportDate        time.Time       `json:"import_date"`
	Remarks           string          `json:"remarks,omitempty"`
}

type DeductionPreview struct {
	CertificateItemID string          `json:"certificate_item_id"`
	Port              Port            `json:"port"`
	Quantity          decimal.Decimal `json:"quantity"`
	BalanceBefore     decimal.Decimal `json:"balance_before"`
	BalanceAfter      decimal.Decimal `json:"balance_after"`
	Status            BalanceStatus   `json:"status"`
	Message           string          `json:"message,omitempty"`
}

type BatchPreview struct {
	Previews      []DeductionPreview `json:"previews"`
	HasWarnings   bool               `json:"has_warnings"`
	HasDepletions bool               `json:"has_depletions"`
	HasOverdrawns bool               `json:"has_overdrawns"`
	TotalItems    int                `json:"total_items"`
}
