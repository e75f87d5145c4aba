package ports

import (
	"context"
	"io"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

// CertificateIngestor is the inbound contract for certificate upload.
type CertificateIngestor interface {
	Upload(ctx context.Context, filename string, body io.Reader) (*domain.Certificate, error)
}

// CertificateReader is the inbound read model for stored certificates.
type CertificateReader interface {
	GetByID(ctx context.Context, id string) (*domain.Certificate, error)
}

// CertificateProcessor runs the extraction pipeline for a stored upload.
type CertificateProcessor interface {
	ProcessByID(ctx context.Context, certificateID string) error
}

// InvoiceMatcher matches an uploaded invoice file against stored
// certificates and live balances.
type InvoiceMatcher interface {
	MatchFile(ctx context.Context, fileData []byte, certificateIDs []string, mode domain.MatchMode, threshold float64) (*domain.MatchReport, error)
}

// QuotaLedger is the two-phase deduction protocol plus history/correction.
type QuotaLedger interface {
	Preview(ctx context.Context, batch []domain.Deduction) (*domain.BatchPreview, error)
	Commit(ctx context.Context, batch []domain.Deduction) ([]domain.LedgerEntry, error)
	Entries(ctx context.Context, itemID string, port domain.Port) ([]domain.LedgerEntry, error)
	DeleteEntry(ctx context.Context, entryID string) error
}
