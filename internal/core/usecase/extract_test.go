package usecase

import (
	"reflect"
	"strings"
	"testing"

	"github.com/afiqzahari/mida-quota/internal/config"
	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

func certificateDoc(tables ...domain.DetectedTable) *domain.RawDocument {
	return &domain.RawDocument{
		Content: sampleHeaderText,
		Tables:  tables,
	}
}

func TestExtractorTableMode(t *testing.T) {
	rows := append([][]string{}, quotaHeaderRows...)
	rows = append(rows,
		[]string{"2.", "8714.10.9000", "FRAME COMP", "50 UNIT", "", "", ""},
		[]string{"1.", "8407.33.1000", "ENGINE ASSY", "100 UNIT", "", "", ""},
	)
	doc := certificateDoc(tableFromRows(1, rows))

	cert := NewExtractor(config.DefaultVocabulary()).Extract(doc)

	if cert.Diagnostics.ParsingMode != domain.ParsingModeTable {
		t.Fatalf("expected table mode, got %s", cert.Diagnostics.ParsingMode)
	}
	if cert.CertificateNumber != "CDE2/2023/000123" {
		t.Fatalf("header not extracted: %q", cert.CertificateNumber)
	}
	if len(cert.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(cert.Items))
	}
	if cert.Items[0].LineNo != 1 || cert.Items[1].LineNo != 2 {
		t.Fatalf("items not sorted by line number: %d, %d", cert.Items[0].LineNo, cert.Items[1].LineNo)
	}
	if cert.Diagnostics.ItemsAfterMerge != 2 || cert.Diagnostics.TablesFound != 1 {
		t.Fatalf("diagnostics: %+v", cert.Diagnostics)
	}
}

func TestExtractorFallsBackToTextMode(t *testing.T) {
	doc := &domain.RawDocument{
		Content: sampleHeaderText + "1. ENGINE ASSY 8407.33.1000\n100 UNIT\n",
	}

	cert := NewExtractor(config.DefaultVocabulary()).Extract(doc)

	if cert.Diagnostics.ParsingMode != domain.ParsingModeTextFallback {
		t.Fatalf("expected text_fallback mode, got %s", cert.Diagnostics.ParsingMode)
	}
	if len(cert.Items) != 1 || cert.Items[0].HSCode != "8407.33.1000" {
		t.Fatalf("fallback items: %+v", cert.Items)
	}
}

func TestExtractorLowScoringTableStillFallsBack(t *testing.T) {
	doc := &domain.RawDocument{
		Content: "1. ENGINE ASSY 8407.33.1000\n100 UNIT\n",
		Tables: []domain.DetectedTable{tableFromRows(1, [][]string{
			{"Tarikh", "Rujukan"},
			{"01/07/2023", "CDE2/2023/000123"},
		})},
	}

	cert := NewExtractor(config.DefaultVocabulary()).Extract(doc)

	if cert.Diagnostics.ParsingMode != domain.ParsingModeTextFallback {
		t.Fatalf("expected text_fallback when all tables score below threshold, got %s", cert.Diagnostics.ParsingMode)
	}
	if cert.Diagnostics.TablesFound != 1 || cert.Diagnostics.TablesSelected != 0 {
		t.Fatalf("diagnostics should record the rejected table: %+v", cert.Diagnostics)
	}
}

func TestExtractorNoItemsAtAll(t *testing.T) {
	cert := NewExtractor(config.DefaultVocabulary()).Extract(&domain.RawDocument{Content: "nothing useful"})

	if cert.Diagnostics.ParsingMode != domain.ParsingModeNone {
		t.Fatalf("expected mode none, got %s", cert.Diagnostics.ParsingMode)
	}
	if len(cert.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(cert.Items))
	}
}

func TestExtractorMergesDuplicateAcrossTables(t *testing.T) {
	first := append([][]string{}, quotaHeaderRows...)
	first = append(first,
		[]string{"1.", "8407.33.1000", "ENGINE ASSY", "100 UNIT", "", "", ""},
	)
	second := [][]string{
		{"1.", "8407.33.1000", "", "", "60", "", "40"},
	}
	doc := certificateDoc(tableFromRows(1, first), tableFromRows(2, second))

	cert := NewExtractor(config.DefaultVocabulary()).Extract(doc)

	if len(cert.Items) != 1 {
		t.Fatalf("expected duplicate identity merged, got %d items", len(cert.Items))
	}
	item := cert.Items[0]
	if item.ItemName != "ENGINE ASSY" || !item.ApprovedQuantity.Equal(mustDecimal(t, "100")) {
		t.Fatalf("merge dropped fields: %+v", item)
	}
	if item.StationSplit.PortKlang == nil || item.StationSplit.BukitKayuHitam == nil {
		t.Fatalf("station values from continuation table not merged: %+v", item.StationSplit)
	}
}

func TestExtractorStationMismatchWarning(t *testing.T) {
	rows := append([][]string{}, quotaHeaderRows...)
	rows = append(rows,
		[]string{"1.", "8407.33.1000", "ENGINE ASSY", "14,844.00 KG", "1,484.40", "", "13,000.00"},
	)
	cert := NewExtractor(config.DefaultVocabulary()).Extract(certificateDoc(tableFromRows(1, rows)))

	if len(cert.Items) != 1 {
		t.Fatalf("mismatching item must still be returned, got %d items", len(cert.Items))
	}
	found := false
	for _, w := range cert.Warnings {
		if containsAll(w, "station split sum", "14844") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected station mismatch warning, got %v", cert.Warnings)
	}
}

func TestExtractorStationSumMatchNoWarning(t *testing.T) {
	rows := append([][]string{}, quotaHeaderRows...)
	rows = append(rows,
		[]string{"1.", "8407.33.1000", "ENGINE ASSY", "14,844.00 KG", "1,484.40", "", "13,359.60"},
	)
	cert := NewExtractor(config.DefaultVocabulary()).Extract(certificateDoc(tableFromRows(1, rows)))

	for _, w := range cert.Warnings {
		if containsAll(w, "station split sum") {
			t.Fatalf("matching split must not warn: %v", cert.Warnings)
		}
	}
}

func TestExtractorIdempotent(t *testing.T) {
	rows := append([][]string{}, quotaHeaderRows...)
	rows = append(rows,
		[]string{"1.", "8407.33.1000", "ENGINE ASSY", "14,844.00 KG", "1,484.40", "", "13,359.60"},
		[]string{"2.", "8714.10.9000", "FRAME COMP", "50 UNIT", "", "50", ""},
	)
	doc := certificateDoc(tableFromRows(1, rows))
	ex := NewExtractor(config.DefaultVocabulary())

	a := ex.Extract(doc)
	b := ex.Extract(doc)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("extraction is not idempotent:\nfirst:  %+v\nsecond: %+v", a, b)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
