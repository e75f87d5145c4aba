package usecase

import (
	"github.com/afiqzahari/mida-quota/internal/config"
	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

// itemStrategy is one way of reading quota items out of a raw document.
// Strategies are tried in priority order; the first one returning any item
// wins and its mode is recorded in diagnostics.
type itemStrategy interface {
	mode() domain.ParsingMode
	attempt(doc *domain.RawDocument) strategyOutcome
}

type strategyOutcome struct {
	items            []rawItem
	tableStats       []domain.TableStat
	pageItemCounts   []domain.PageItemCount
	tablesSelected   int
	qtyParseFailures int
	qtyAmbiguous     int
	qtyFailSamples   []string
}

const maxFailSamples = 5

func (o *strategyOutcome) addFailSample(s string) {
	if len(o.qtyFailSamples) < maxFailSamples {
		o.qtyFailSamples = append(o.qtyFailSamples, s)
	}
}

// Extractor turns one raw OCR document into a structured certificate:
// header fields, merged and validated items, warnings and a diagnostics
// bundle. It is pure; persistence and status transitions live in the
// processing use case.
type Extractor struct {
	header     *HeaderParser
	strategies []itemStrategy
}

func NewExtractor(vocab config.Vocabulary) *Extractor {
	return &Extractor{
		header: NewHeaderParser(vocab),
		strategies: []itemStrategy{
			&tableStrategy{vocab: vocab},
			&textStrategy{vocab: vocab},
		},
	}
}

func (e *Extractor) Extract(doc *domain.RawDocument) *domain.Certificate {
	header := e.header.Parse(doc.Content)

	accepted := strategyOutcome{}
	mode := domain.ParsingModeNone
	var tableOut strategyOutcome
	for _, strategy := range e.strategies {
		out := strategy.attempt(doc)
		if strategy.mode() == domain.ParsingModeTable {
			tableOut = out
		}
		if len(out.items) > 0 {
			accepted = out
			mode = strategy.mode()
			break
		}
	}

	merged := mergeRawItems(accepted.items)
	items, itemWarnings := finalizeItems(merged)

	warnings := append([]string{}, header.Warnings...)
	warnings = append(warnings, itemWarnings...)

	return &domain.Certificate{
		CertificateNumber: header.CertificateNumber,
		CompanyName:       header.CompanyName,
		ExemptionStart:    header.ExemptionStart,
		ExemptionEnd:      header.ExemptionEnd,
		Items:             items,
		Warnings:          warnings,
		Diagnostics: domain.Diagnostics{
			ParsingMode:      mode,
			PagesCount:       len(doc.Pages),
			TablesFound:      len(doc.Tables),
			TablesSelected:   tableOut.tablesSelected,
			TableStats:       tableOut.tableStats,
			PageItemCounts:   accepted.pageItemCounts,
			ItemsAfterMerge:  len(items),
			QtyParseFailures: accepted.qtyParseFailures,
			QtyAmbiguous:     accepted.qtyAmbiguous,
			QtyFailSamples:   accepted.qtyFailSamples,
			HandwrittenSpans: len(doc.HandwrittenSpans),
		},
	}
}
