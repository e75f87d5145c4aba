package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
	"github.com/afiqzahari/mida-quota/internal/core/ports"
)

type MatchInvoiceUseCase struct {
	reader  ports.InvoiceFileReader
	ledger  ports.LedgerRepository
	loader  *InvoiceLoader
	matcher *Matcher
}

func NewMatchInvoiceUseCase(
	reader ports.InvoiceFileReader,
	ledger ports.LedgerRepository,
	loader *InvoiceLoader,
	matcher *Matcher,
) *MatchInvoiceUseCase {
	return &MatchInvoiceUseCase{
		reader:  reader,
		ledger:  ledger,
		loader:  loader,
		matcher: matcher,
	}
}

// MatchFile decodes and normalizes an invoice file, loads live balances for
// the selected certificates and produces a match report. Nothing is
// deducted here; the report only proposes.
func (uc *MatchInvoiceUseCase) MatchFile(
	ctx context.Context,
	fileData []byte,
	certificateIDs []string,
	mode domain.MatchMode,
	threshold float64,
) (*domain.MatchReport, error) {
	if len(certificateIDs) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "match invoice",
			errors.New("no certificates selected"))
	}
	if mode == "" {
		mode = domain.MatchModeFuzzy
	}

	rows, err := uc.reader.Rows(fileData)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode invoice file", err)
	}

	invoice, err := uc.loader.Load(rows)
	if err != nil {
		return nil, fmt.Errorf("load invoice rows: %w", err)
	}

	balances, err := uc.ledger.ItemBalances(ctx, certificateIDs)
	if err != nil {
		return nil, fmt.Errorf("load item balances: %w", err)
	}
	if len(balances) == 0 {
		return nil, domain.WrapError(domain.ErrCertificateNotFound, "load item balances",
			errors.New("selected certificates have no items"))
	}

	report := uc.matcher.Match(invoice.Items, balances, mode, threshold)
	report.Totals = invoice.Totals
	report.Warnings = append(report.Warnings, invoice.Warnings...)
	for _, excluded := range invoice.Excluded {
		report.Warnings = append(report.Warnings, domain.MatchWarning{
			InvoiceItem: invoiceLabel(excluded),
			Reason:      "excluded from matching: FORM-D duty regime",
			Severity:    domain.SeverityInfo,
		})
	}
	return report, nil
}
