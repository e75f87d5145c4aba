package domain

import "github.com/shopspring/decimal"

type InvoiceItem struct {
	LineNo      int              `json:"line_no"`
	InvoiceNo   string           `json:"invoice_no,omitempty"`
	PartsNo     string           `json:"parts_no,omitempty"`
	ModelNo     string           `json:"model_no,omitempty"`
	HSCode      string           `json:"hs_code,omitempty"`
	Description string           `json:"description"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UOM         string           `json:"uom"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	NetWeightKG *decimal.Decimal `json:"net_weight_kg,omitempty"`
	// Excluded marks rows flagged under a different duty regime
	// (FORM-D); they never participate in matching.
	Excluded bool `json:"excluded"`
}

// InvoiceTotals carries the totals declared by the file's Total row next to
// the totals computed from the parsed items, so mismatches can be surfaced.
type InvoiceTotals struct {
	HasTotalRow         bool             `json:"has_total_row"`
	DetectedQuantity    *decimal.Decimal `json:"detected_quantity,omitempty"`
	DetectedAmount      *decimal.Decimal `json:"detected_amount,omitempty"`
	DetectedNetWeight   *decimal.Decimal `json:"detected_net_weight,omitempty"`
	CalculatedQuantity  decimal.Decimal  `json:"calculated_quantity"`
	CalculatedAmount    decimal.Decimal  `json:"calculated_amount"`
	CalculatedNetWeight decimal.Decimal  `json:"calculated_net_weight"`
}

type ParsedInvoice struct {
	Items    []InvoiceItem  `json:"items"`
	Excluded []InvoiceItem  `json:"excluded_items,omitempty"`
	Totals   InvoiceTotals  `json:"totals"`
	Warnings []MatchWarning `json:"warnings,omitempty"`
}

type MatchKind string

const (
	MatchExact MatchKind = "exact"
	MatchFuzzy MatchKind = "fuzzy"
	MatchNone  MatchKind = "none"
)

type MatchMode string

const (
	MatchModeExact MatchMode = "exact"
	MatchModeFuzzy MatchMode = "fuzzy"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type MatchWarning struct {
	InvoiceItem     string   `json:"invoice_item"`
	CertificateItem string   `json:"certificate_item,omitempty"`
	Reason          string   `json:"reason"`
	Severity        Severity `json:"severity"`
	Details         string   `json:"details,omitempty"`
}

// ItemBalance is a certificate item together with its live remaining
// quantities, overall and per station. The matching engine consumes these;
// only the ledger may change them.
type ItemBalance struct {
	CertificateID     string                   `json:"certificate_id"`
	CertificateNumber string                   `json:"certificate_number"`
	Item              CertificateItem          `json:"item"`
	Remaining         decimal.Decimal          `json:"remaining"`
	RemainingByPort   map[Port]decimal.Decimal `json:"remaining_by_port,omitempty"`
}

type MatchedRef struct {
	CertificateID     string          `json:"certificate_id"`
	CertificateNumber string          `json:"certificate_number"`
	ItemID            string          `json:"item_id"`
	LineNo            int             `json:"line_no"`
	HSCode            string          `json:"hs_code"`
	ItemName          string          `json:"item_name"`
	UOM               string          `json:"uom"`
	ApprovedQuantity  decimal.Decimal `json:"approved_quantity"`
}

type MatchResult struct {
	InvoiceItem     InvoiceItem              `json:"invoice_item"`
	Matched         *MatchedRef              `json:"matched,omitempty"`
	Score           float64                  `json:"score"`
	Kind            MatchKind                `json:"kind"`
	RemainingAfter  decimal.Decimal          `json:"remaining_after"`
	RemainingByPort map[Port]decimal.Decimal `json:"remaining_by_port,omitempty"`
	Warnings        []MatchWarning           `json:"warnings,omitempty"`
}

type MatchReport struct {
	Results        []MatchResult  `json:"results"`
	Warnings       []MatchWarning `json:"warnings"`
	TotalItems     int            `json:"total_items"`
	MatchedCount   int            `json:"matched_count"`
	UnmatchedCount int            `json:"unmatched_count"`
	Totals         InvoiceTotals  `json:"totals"`
}
