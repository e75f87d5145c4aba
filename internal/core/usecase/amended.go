package usecase

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	editMarkerRe   = regexp.MustCompile(`[<>]{2,}|x{3,}|/{3,}`)
	stampWordRe    = regexp.MustCompile(`\b[A-Z]{3,}\b`)
	numericTokenRe = regexp.MustCompile(`[\d,]+(?:\.\d+)?`)
	selectionRe    = regexp.MustCompile(`(?i):(?:un)?selected:`)
)

// stripSelectionMarkers removes the checkbox tokens the layout provider
// injects around cells before any numeric or text parsing happens.
func stripSelectionMarkers(text string) string {
	return strings.TrimSpace(selectionRe.ReplaceAllString(text, ""))
}

// extractAmendedNumber resolves a numeric cell that may carry a stale OCR
// reading next to a handwritten correction, e.g.
//
//	"239073.760 <<<<< 239,871.00"        -> 239871.00
//	"239,8738 JABATAN 239,871 200 15g"   -> 239871
//	"14,844.00"                          -> 14844.00
//	"1250.00 <<< 1480.00"                -> ambiguous, left empty
//
// The amended value is almost always written comma-grouped, so the last
// comma-grouped token wins. Without that cue, a lone token is taken as-is;
// several bare tokens next to edit markers have no ordering signal and the
// cell is reported ambiguous rather than guessed. Several bare tokens with
// no markers are stamp debris around one real value, and the largest wins.
func extractAmendedNumber(text string) (value decimal.Decimal, ok bool, ambiguous bool) {
	if strings.TrimSpace(text) == "" {
		return decimal.Decimal{}, false, false
	}

	hasMarkers := editMarkerRe.MatchString(text)

	cleaned := editMarkerRe.ReplaceAllString(text, " ")
	cleaned = stampWordRe.ReplaceAllString(cleaned, " ")

	type token struct {
		raw   string
		value decimal.Decimal
	}
	var tokens []token
	for _, raw := range numericTokenRe.FindAllString(cleaned, -1) {
		v, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
		if err != nil || !v.IsPositive() {
			continue
		}
		tokens = append(tokens, token{raw: raw, value: v})
	}
	if len(tokens) == 0 {
		return decimal.Decimal{}, false, false
	}

	var lastComma *token
	for i := range tokens {
		if strings.Contains(tokens[i].raw, ",") {
			lastComma = &tokens[i]
		}
	}
	if lastComma != nil {
		return lastComma.value, true, false
	}

	if len(tokens) == 1 {
		return tokens[0].value, true, false
	}

	if hasMarkers {
		return decimal.Decimal{}, false, true
	}

	best := tokens[0].value
	for _, t := range tokens[1:] {
		if t.value.GreaterThan(best) {
			best = t.value
		}
	}
	return best, true, false
}
