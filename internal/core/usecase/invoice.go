package usecase

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

// Column synonym candidates, in priority order, for each logical invoice
// field. Supplier spreadsheets name the same column a dozen ways.
var invoiceColumns = map[string][]string{
	"item_no":      {"ITEM NO", "ITEM", "NO", "NO.", "BIL", "S/N", "SN", "LINE"},
	"invoice_no":   {"INVOICE NO", "INVOICE NO.", "INVOICE", "INV NO", "INV. NO"},
	"parts_no":     {"PARTS NO", "PART NO", "PARTS NO.", "PART NO.", "PART NUMBER", "PARTS NUMBER"},
	"model_no":     {"MODEL NO", "MODEL", "MODEL NO."},
	"hs_code":      {"HS CODE", "HS-CODE", "HSCODE", "TARIFF CODE", "TARIFF", "KOD HS"},
	"description":  {"DESCRIPTION", "DESCRIPTION OF GOODS", "ITEM DESCRIPTION", "NAMA DAGANGAN", "GOODS"},
	"quantity":     {"QUANTITY", "QTY", "QTY.", "KUANTITI"},
	"uom":          {"UOM", "UNIT", "UNITS", "U/M"},
	"amount":       {"AMOUNT", "AMOUNT (USD)", "AMOUNT (RM)", "TOTAL AMOUNT", "VALUE"},
	"net_weight":   {"NET WEIGHT", "NET WEIGHT (KG)", "N.W", "N.W.", "N/W", "NW (KG)"},
	"gross_weight": {"GROSS WEIGHT", "GROSS WEIGHT (KG)", "G.W", "G.W.", "G/W"},
	"form_flag":    {"FORM D", "FORM-D", "FORM", "CO FORM", "DUTY STATUS"},
}

const invoiceHeaderScanRows = 10

// InvoiceLoader turns a decoded spreadsheet (rows of cells) into invoice
// line items. File-format decoding is the reader adapter's job; the loader
// owns header detection, synonym resolution, the Total row and the FORM-D
// exclusion rule.
type InvoiceLoader struct{}

func NewInvoiceLoader() *InvoiceLoader { return &InvoiceLoader{} }

func (l *InvoiceLoader) Load(rows [][]string) (*domain.ParsedInvoice, error) {
	headerIdx, cols := findInvoiceHeader(rows)
	if headerIdx < 0 {
		return nil, fmt.Errorf("no header row recognized in first %d rows: %w",
			invoiceHeaderScanRows, domain.ErrInvalidInput)
	}

	parsed := &domain.ParsedInvoice{}
	lineNo := 0
	for _, row := range rows[headerIdx+1:] {
		if rowEmpty(row) {
			continue
		}
		if isTotalRow(row) {
			captureTotals(&parsed.Totals, row, cols)
			continue
		}

		item, ok := buildInvoiceItem(row, cols, &lineNo)
		if !ok {
			continue
		}
		if item.Excluded {
			parsed.Excluded = append(parsed.Excluded, item)
			continue
		}
		parsed.Items = append(parsed.Items, item)

		parsed.Totals.CalculatedQuantity = parsed.Totals.CalculatedQuantity.Add(item.Quantity)
		if item.Amount != nil {
			parsed.Totals.CalculatedAmount = parsed.Totals.CalculatedAmount.Add(*item.Amount)
		}
		if item.NetWeightKG != nil {
			parsed.Totals.CalculatedNetWeight = parsed.Totals.CalculatedNetWeight.Add(*item.NetWeightKG)
		}
	}

	if len(parsed.Items) == 0 && len(parsed.Excluded) == 0 {
		return nil, fmt.Errorf("header found but no data rows: %w", domain.ErrInvalidInput)
	}

	parsed.Warnings = append(parsed.Warnings, totalsWarnings(parsed.Totals)...)
	return parsed, nil
}

// findInvoiceHeader scans the first rows for the one resolving the most
// logical columns. Description plus quantity is the minimum to accept.
func findInvoiceHeader(rows [][]string) (int, map[string]int) {
	limit := len(rows)
	if limit > invoiceHeaderScanRows {
		limit = invoiceHeaderScanRows
	}

	bestIdx, bestCount := -1, 0
	var bestCols map[string]int
	for r := 0; r < limit; r++ {
		cols := resolveColumns(rows[r])
		if _, ok := cols["description"]; !ok {
			continue
		}
		if _, ok := cols["quantity"]; !ok {
			continue
		}
		if len(cols) > bestCount {
			bestIdx, bestCount, bestCols = r, len(cols), cols
		}
	}
	return bestIdx, bestCols
}

func resolveColumns(header []string) map[string]int {
	cols := map[string]int{}
	for field, candidates := range invoiceColumns {
		for _, cand := range candidates {
			for idx, cell := range header {
				if strings.EqualFold(strings.TrimSpace(cell), cand) {
					cols[field] = idx
					break
				}
			}
			if _, ok := cols[field]; ok {
				break
			}
		}
	}
	return cols
}

func isTotalRow(row []string) bool {
	for _, cell := range row {
		text := strings.ToUpper(strings.TrimSpace(cell))
		if text == "TOTAL" || text == "GRAND TOTAL" || strings.HasPrefix(text, "TOTAL ") {
			return true
		}
	}
	return false
}

func captureTotals(t *domain.InvoiceTotals, row []string, cols map[string]int) {
	t.HasTotalRow = true
	if v, ok := parseInvoiceDecimal(fieldAt(row, cols, "quantity")); ok {
		t.DetectedQuantity = &v
	}
	if v, ok := parseInvoiceDecimal(fieldAt(row, cols, "amount")); ok {
		t.DetectedAmount = &v
	}
	if v, ok := parseInvoiceDecimal(fieldAt(row, cols, "net_weight")); ok {
		t.DetectedNetWeight = &v
	}
}

func buildInvoiceItem(row []string, cols map[string]int, lineNo *int) (domain.InvoiceItem, bool) {
	desc := fieldAt(row, cols, "description")
	qty, qtyOK := parseInvoiceDecimal(fieldAt(row, cols, "quantity"))
	if desc == "" && !qtyOK {
		return domain.InvoiceItem{}, false
	}
	*lineNo++

	item := domain.InvoiceItem{
		LineNo:      *lineNo,
		InvoiceNo:   fieldAt(row, cols, "invoice_no"),
		PartsNo:     fieldAt(row, cols, "parts_no"),
		ModelNo:     fieldAt(row, cols, "model_no"),
		HSCode:      fieldAt(row, cols, "hs_code"),
		Description: desc,
		Quantity:    qty,
		UOM:         strings.ToUpper(fieldAt(row, cols, "uom")),
	}
	if v, ok := parseInvoiceDecimal(fieldAt(row, cols, "amount")); ok {
		item.Amount = &v
	}
	if v, ok := parseInvoiceDecimal(fieldAt(row, cols, "net_weight")); ok {
		item.NetWeightKG = &v
	}
	item.Excluded = isFormDFlag(fieldAt(row, cols, "form_flag"))
	return item, true
}

// isFormDFlag reports whether the row is claimed under ASEAN FORM-D
// preferential duty. Such rows never draw from the exemption quota.
func isFormDFlag(cell string) bool {
	text := strings.ToUpper(strings.TrimSpace(cell))
	if text == "" {
		return false
	}
	return strings.Contains(text, "FORM D") || strings.Contains(text, "FORM-D") ||
		text == "D" || text == "YES" || text == "Y"
}

func totalsWarnings(t domain.InvoiceTotals) []domain.MatchWarning {
	if !t.HasTotalRow {
		return nil
	}
	var out []domain.MatchWarning
	check := func(label string, detected *decimal.Decimal, calculated decimal.Decimal) {
		if detected == nil || detected.Equal(calculated) {
			return
		}
		out = append(out, domain.MatchWarning{
			Reason:   "invoice total mismatch",
			Severity: domain.SeverityWarning,
			Details: fmt.Sprintf("%s: total row says %s, parsed rows sum to %s",
				label, detected.String(), calculated.String()),
		})
	}
	check("quantity", t.DetectedQuantity, t.CalculatedQuantity)
	check("amount", t.DetectedAmount, t.CalculatedAmount)
	check("net weight", t.DetectedNetWeight, t.CalculatedNetWeight)
	return out
}

func fieldAt(row []string, cols map[string]int, field string) string {
	idx, ok := cols[field]
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseInvoiceDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Decimal{}, false
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}
