package usecase

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/afiqzahari/mida-quota/internal/config"
	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

func testBalance(t *testing.T, certID string, lineNo int, hs, name, uom, approved, remaining string) domain.ItemBalance {
	t.Helper()
	return domain.ItemBalance{
		CertificateID:     certID,
		CertificateNumber: "CDE2/2023/000123",
		Item: domain.CertificateItem{
			ID:               certID + "-item-" + hs,
			LineNo:           lineNo,
			HSCode:           hs,
			ItemName:         name,
			UOM:              uom,
			ApprovedQuantity: mustDecimal(t, approved),
		},
		Remaining: mustDecimal(t, remaining),
	}
}

func newTestMatcher() *Matcher {
	return NewMatcher(config.DefaultVocabulary(), 0.88)
}

func TestMatcherExactHSCodeWins(t *testing.T) {
	items := []domain.InvoiceItem{
		{LineNo: 1, HSCode: "8407.33.1000", Description: "ENGINE ASSEMBLY", Quantity: mustDecimal(t, "10")},
	}
	balances := []domain.ItemBalance{
		testBalance(t, "cert-1", 1, "8407.33.9000", "ENGINE ASSEMBLY", "UNIT", "1000", "1000"),
		testBalance(t, "cert-1", 2, "8407.33.1000", "SOMETHING ELSE ENTIRELY", "UNIT", "1000", "1000"),
	}

	report := newTestMatcher().Match(items, balances, domain.MatchModeFuzzy, 0.88)
	result := report.Results[0]
	if result.Kind != domain.MatchExact {
		t.Fatalf("expected exact match, got %s (score %f)", result.Kind, result.Score)
	}
	if result.Matched == nil || result.Matched.LineNo != 2 {
		t.Fatalf("exact HS equality must beat a fuzzy description match: %+v", result.Matched)
	}
}

func TestMatcherNormalizesHSSeparators(t *testing.T) {
	items := []domain.InvoiceItem{
		{LineNo: 1, HSCode: "84073310.00", Description: "ENGINE", Quantity: mustDecimal(t, "1")},
	}
	balances := []domain.ItemBalance{
		testBalance(t, "cert-1", 1, "8407.33.1000", "ENGINE ASSY", "UNIT", "100", "100"),
	}

	report := newTestMatcher().Match(items, balances, domain.MatchModeFuzzy, 0.88)
	if report.Results[0].Kind != domain.MatchExact {
		t.Fatalf("separator variants must compare equal, got %s", report.Results[0].Kind)
	}
}

func TestMatcherOneToOneAssignment(t *testing.T) {
	items := []domain.InvoiceItem{
		{LineNo: 1, HSCode: "8407.33.1000", Description: "ENGINE ASSY", Quantity: mustDecimal(t, "10")},
		{LineNo: 2, HSCode: "8407.33.1000", Description: "ENGINE ASSY", Quantity: mustDecimal(t, "20")},
	}
	balances := []domain.ItemBalance{
		testBalance(t, "cert-1", 1, "8407.33.1000", "ENGINE ASSY", "UNIT", "1000", "1000"),
	}

	report := newTestMatcher().Match(items, balances, domain.MatchModeFuzzy, 0.88)
	matched := 0
	for _, r := range report.Results {
		if r.Matched != nil {
			matched++
		}
	}
	if matched != 1 {
		t.Fatalf("a certificate item must be consumed at most once, got %d matches", matched)
	}
	if report.UnmatchedCount != 1 {
		t.Fatalf("expected 1 unmatched, got %d", report.UnmatchedCount)
	}
}

func TestMatcherTieBreakLowerLineNo(t *testing.T) {
	items := []domain.InvoiceItem{
		{LineNo: 1, HSCode: "8407.33.1000", Description: "ENGINE ASSY", Quantity: mustDecimal(t, "1")},
	}
	balances := []domain.ItemBalance{
		testBalance(t, "cert-1", 7, "8407.33.1000", "ENGINE ASSY", "UNIT", "100", "100"),
		testBalance(t, "cert-1", 3, "8407.33.1000", "ENGINE ASSY", "UNIT", "100", "100"),
	}

	report := newTestMatcher().Match(items, balances, domain.MatchModeFuzzy, 0.88)
	if report.Results[0].Matched.LineNo != 3 {
		t.Fatalf("expected lower line number to win the tie, got %d", report.Results[0].Matched.LineNo)
	}
}

func TestMatcherTieBreakCertificateRequestOrder(t *testing.T) {
	items := []domain.InvoiceItem{
		{LineNo: 1, HSCode: "8407.33.1000", Description: "ENGINE ASSY", Quantity: mustDecimal(t, "1")},
	}
	// Identical score, kind and line number across two certificates; the
	// certificate listed first in the request wins.
	balances := []domain.ItemBalance{
		testBalance(t, "cert-b", 5, "8407.33.1000", "ENGINE ASSY", "UNIT", "100", "100"),
		testBalance(t, "cert-a", 5, "8407.33.1000", "ENGINE ASSY", "UNIT", "100", "100"),
	}

	report := newTestMatcher().Match(items, balances, domain.MatchModeFuzzy, 0.88)
	if report.Results[0].Matched.CertificateID != "cert-b" {
		t.Fatalf("expected request-order tie-break, got %s", report.Results[0].Matched.CertificateID)
	}
}

func TestMatcherExactModeSuppressesFuzzy(t *testing.T) {
	items := []domain.InvoiceItem{
		{LineNo: 1, HSCode: "8407.33.9999", Description: "ENGINE ASSY", Quantity: mustDecimal(t, "1")},
	}
	balances := []domain.ItemBalance{
		testBalance(t, "cert-1", 1, "8407.33.1000", "ENGINE ASSY", "UNIT", "100", "100"),
	}

	report := newTestMatcher().Match(items, balances, domain.MatchModeExact, 0.88)
	if report.Results[0].Kind != domain.MatchNone {
		t.Fatalf("exact mode must not fuzzy-match, got %s", report.Results[0].Kind)
	}
	if report.Results[0].Warnings[0].Severity != domain.SeverityWarning {
		t.Fatalf("unmatched severity: %+v", report.Results[0].Warnings)
	}
}

func TestMatcherDescriptionOnlyFallback(t *testing.T) {
	items := []domain.InvoiceItem{
		{LineNo: 1, Description: "ENGINE ASSY", Quantity: mustDecimal(t, "1")},
	}
	balances := []domain.ItemBalance{
		testBalance(t, "cert-1", 1, "8407.33.1000", "ENGINE ASSY", "UNIT", "100", "100"),
	}

	report := newTestMatcher().Match(items, balances, domain.MatchModeFuzzy, 0.88)
	if report.Results[0].Kind != domain.MatchFuzzy {
		t.Fatalf("expected description-only fuzzy match, got %s", report.Results[0].Kind)
	}
}

func TestMatcherExceedingRemainingIsError(t *testing.T) {
	items := []domain.InvoiceItem{
		{LineNo: 1, HSCode: "8407.33.1000", Description: "ENGINE ASSY", Quantity: mustDecimal(t, "150")},
	}
	balances := []domain.ItemBalance{
		testBalance(t, "cert-1", 1, "8407.33.1000", "ENGINE ASSY", "UNIT", "1000", "100"),
	}

	report := newTestMatcher().Match(items, balances, domain.MatchModeFuzzy, 0.88)
	result := report.Results[0]
	if !result.RemainingAfter.Equal(mustDecimal(t, "-50")) {
		t.Fatalf("remaining after: %s", result.RemainingAfter)
	}
	found := false
	for _, w := range result.Warnings {
		if w.Severity == domain.SeverityError {
			found = true
		}
	}
	if !found {
		t.Fatalf("exceeding remaining balance must be error severity: %+v", result.Warnings)
	}
}

func TestMatcherNearLimitIsInfo(t *testing.T) {
	items := []domain.InvoiceItem{
		{LineNo: 1, HSCode: "8407.33.1000", Description: "ENGINE ASSY", Quantity: mustDecimal(t, "95")},
	}
	balances := []domain.ItemBalance{
		testBalance(t, "cert-1", 1, "8407.33.1000", "ENGINE ASSY", "UNIT", "100", "100"),
	}

	report := newTestMatcher().Match(items, balances, domain.MatchModeFuzzy, 0.88)
	found := false
	for _, w := range report.Results[0].Warnings {
		if w.Severity == domain.SeverityInfo && w.Reason == "near quota limit" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected near-limit info warning: %+v", report.Results[0].Warnings)
	}
}

func TestMatcherUsesNetWeightForWeightItems(t *testing.T) {
	nw := mustDecimal(t, "450.50")
	items := []domain.InvoiceItem{
		{LineNo: 1, HSCode: "8407.33.1000", Description: "ENGINE ASSY", Quantity: mustDecimal(t, "200"), NetWeightKG: &nw},
	}
	balances := []domain.ItemBalance{
		testBalance(t, "cert-1", 1, "8407.33.1000", "ENGINE ASSY", "KGM", "14844", "14844"),
	}

	report := newTestMatcher().Match(items, balances, domain.MatchModeFuzzy, 0.88)
	want := mustDecimal(t, "14844").Sub(nw)
	if !report.Results[0].RemainingAfter.Equal(want) {
		t.Fatalf("weight-based item must deduct net weight: got %s, want %s",
			report.Results[0].RemainingAfter, want)
	}
}

func TestMatcherUOMMismatchWarns(t *testing.T) {
	items := []domain.InvoiceItem{
		{LineNo: 1, HSCode: "8407.33.1000", Description: "ENGINE ASSY", Quantity: mustDecimal(t, "10"), UOM: "PCS"},
	}
	balances := []domain.ItemBalance{
		testBalance(t, "cert-1", 1, "8407.33.1000", "ENGINE ASSY", "KGM", "1000", "1000"),
	}

	report := newTestMatcher().Match(items, balances, domain.MatchModeFuzzy, 0.88)
	found := false
	for _, w := range report.Results[0].Warnings {
		if w.Reason == "unit of measure mismatch" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected UOM mismatch warning: %+v", report.Results[0].Warnings)
	}
}

func TestHSPrefixScore(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"8407331000", "8407331000", 1},
		{"8407331000", "8407339000", 0.6},
		{"8407331000", "9999999999", 0},
		{"", "8407331000", 0},
	}
	for _, c := range cases {
		if got := hsPrefixScore(c.a, c.b); got != c.want {
			t.Fatalf("hsPrefixScore(%q, %q) = %f, want %f", c.a, c.b, got, c.want)
		}
	}
}

func TestTextSimilarityBounds(t *testing.T) {
	if got := textSimilarity("engine assy", "engine assy"); got != 1 {
		t.Fatalf("identical strings must score 1, got %f", got)
	}
	if got := textSimilarity("engine assy", ""); got != 0 {
		t.Fatalf("empty string must score 0, got %f", got)
	}
	sim := textSimilarity("engine assembly comp", "assembly comp engine")
	if sim <= 0 || sim > 1 {
		t.Fatalf("similarity out of bounds: %f", sim)
	}
}

func TestInvoiceLabelTruncatesOnRuneBoundary(t *testing.T) {
	item := domain.InvoiceItem{LineNo: 4, Description: strings.Repeat("キ", 45)}

	label := invoiceLabel(item)
	if !utf8.ValidString(label) {
		t.Fatalf("label carries invalid UTF-8: %q", label)
	}
	if !strings.Contains(label, "キ") || !strings.Contains(label, "…") {
		t.Fatalf("expected truncated description in label, got %q", label)
	}
}
