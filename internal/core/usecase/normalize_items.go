package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/afiqzahari/mida-quota/internal/config"
	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

var uomTokenRe = regexp.MustCompile(`(?i)\b(kg|k\.g|kgs|kgm|unit|units|u|pcs|pc)\b`)

// rawItem is a parser-level item before validation and normalization.
// lineNo stays a string until finalize so parsers can carry odd readings
// through the merge without inventing numbers.
type rawItem struct {
	lineNo   string
	hsCode   string
	itemName string
	qty      decimal.Decimal
	qtySet   bool
	uom      string
	split    domain.StationSplit
	warnings []string
}

func (it rawItem) key() string {
	return strings.TrimSpace(it.lineNo) + "\x00" + strings.TrimSpace(it.hsCode)
}

// normalizeUOM maps unit synonyms onto the fixed enum. Unrecognized tokens
// yield an empty UOM; the caller decides whether that deserves a warning.
func normalizeUOM(vocab config.Vocabulary, raw string) string {
	token := strings.ToLower(strings.TrimSpace(raw))
	if token == "" {
		return ""
	}
	if mapped, ok := vocab.UOMAliases[token]; ok {
		return mapped
	}
	return ""
}

// parseQtyUOM parses a quantity cell plus an optional UOM cell. When the
// UOM cell is empty the quantity cell may carry the unit as a suffix
// ("1,234.00 kg"); the suffix read is preferred over a bare number.
func parseQtyUOM(vocab config.Vocabulary, qtyText, uomText string) (decimal.Decimal, bool, string) {
	qtyStr := strings.TrimSpace(qtyText)
	uomStr := strings.TrimSpace(uomText)

	if uomStr == "" {
		if m := uomTokenRe.FindString(qtyStr); m != "" {
			uomStr = m
			qtyStr = strings.TrimSpace(uomTokenRe.ReplaceAllString(qtyStr, ""))
		}
	}

	uom := normalizeUOM(vocab, uomStr)

	cleaned := strings.ReplaceAll(qtyStr, ",", "")
	if cleaned == "" {
		return decimal.Decimal{}, false, uom
	}
	qty, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false, uom
	}
	return qty, true, uom
}

// mergeInto folds a later reading of the same (line_no, hs_code) identity
// into an existing one: a later non-empty value wins per field, except
// station values which only fill slots that were still null.
func mergeInto(dst *rawItem, src rawItem) {
	if src.hsCode != "" {
		dst.hsCode = src.hsCode
	}
	if src.itemName != "" {
		dst.itemName = src.itemName
	}
	if src.qtySet {
		dst.qty = src.qty
		dst.qtySet = true
	}
	if src.uom != "" {
		dst.uom = src.uom
	}
	for _, p := range domain.AllPorts() {
		if dst.split.Get(p) == nil {
			dst.split.Set(p, src.split.Get(p))
		}
	}
	dst.warnings = append(dst.warnings, src.warnings...)
}

// mergeRawItems de-duplicates by (line_no, hs_code) across tables or pages
// and sorts by numeric line number. Items whose line number does not parse
// sort last, in input order.
func mergeRawItems(lists ...[]rawItem) []rawItem {
	index := map[string]int{}
	var merged []rawItem

	for _, list := range lists {
		for _, item := range list {
			if pos, seen := index[item.key()]; seen {
				mergeInto(&merged[pos], item)
				continue
			}
			index[item.key()] = len(merged)
			merged = append(merged, item)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return lineNoSortKey(merged[i].lineNo) < lineNoSortKey(merged[j].lineNo)
	})
	return merged
}

func lineNoSortKey(lineNo string) int {
	n, ok := parseLineNo(lineNo)
	if !ok {
		return 1 << 30
	}
	return n
}

func parseLineNo(s string) (int, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// finalizeItems validates and normalizes merged raw items into domain
// items. Validation failures become warnings, never dropped rows: the
// source document itself may be internally inconsistent and a reviewer
// needs to see everything that was read.
func finalizeItems(items []rawItem) ([]domain.CertificateItem, []string) {
	out := make([]domain.CertificateItem, 0, len(items))
	var warnings []string

	for i, raw := range items {
		lineNo, _ := parseLineNo(raw.lineNo)

		var rowWarnings []string
		if strings.TrimSpace(raw.hsCode) == "" {
			rowWarnings = append(rowWarnings, "missing HS code")
		}
		if strings.TrimSpace(raw.itemName) == "" {
			rowWarnings = append(rowWarnings, "missing item name")
		}
		if !raw.qtySet || raw.qty.IsZero() {
			rowWarnings = append(rowWarnings, "quantity is zero or unparseable")
		}

		if sum, present := raw.split.Sum(); present && raw.qtySet && !sum.Equal(raw.qty) {
			rowWarnings = append(rowWarnings, fmt.Sprintf(
				"station split sum %s does not match approved quantity %s",
				sum.String(), raw.qty.String()))
		}

		rowWarnings = append(rowWarnings, raw.warnings...)
		for _, w := range rowWarnings {
			warnings = append(warnings, fmt.Sprintf("row %d (line %s): %s", i+1, strings.TrimSpace(raw.lineNo), w))
		}

		out = append(out, domain.CertificateItem{
			LineNo:           lineNo,
			HSCode:           strings.TrimSpace(raw.hsCode),
			ItemName:         strings.TrimSpace(raw.itemName),
			ApprovedQuantity: raw.qty,
			UOM:              raw.uom,
			StationSplit:     raw.split,
		})
	}
	return out, warnings
}
