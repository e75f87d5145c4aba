package ports

import (
	"context"
	"io"
	"time"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

// LayoutAnalyzer is the OCR/document-understanding provider boundary. Calls
// block for as long as the provider takes; cancellation happens through ctx.
type LayoutAnalyzer interface {
	Analyze(ctx context.Context, pdf []byte) (*domain.RawDocument, error)
}

// CertificateRepository persists certificates and their extracted items.
type CertificateRepository interface {
	Create(ctx context.Context, cert *domain.Certificate) error
	GetByID(ctx context.Context, id string) (*domain.Certificate, error)
	UpdateStatus(ctx context.Context, id string, status domain.CertificateStatus, errMessage string) error
	SaveExtraction(ctx context.Context, cert *domain.Certificate) error
	ListExpiring(ctx context.Context, asOf time.Time) ([]domain.Certificate, error)
}

// LedgerRepository owns cumulative per-(item, port) balances. CommitBatch is
// the single transactional write path: it re-validates every deduction
// against current balances and writes all entries or none.
type LedgerRepository interface {
	ItemBalances(ctx context.Context, certificateIDs []string) ([]domain.ItemBalance, error)
	BalancesByItemIDs(ctx context.Context, itemIDs []string) (map[string]domain.ItemBalance, error)
	CommitBatch(ctx context.Context, batch []domain.Deduction) ([]domain.LedgerEntry, error)
	ListEntries(ctx context.Context, itemID string, port domain.Port) ([]domain.LedgerEntry, error)
	DeleteEntry(ctx context.Context, entryID string) error
}

// ObjectStorage stores uploaded source files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes asynchronous extraction events.
type MessageQueue interface {
	PublishCertificateQueued(ctx context.Context, certificateID string) error
	SubscribeCertificateQueued(ctx context.Context, handler func(context.Context, string) error) error
}

// InvoiceFileReader decodes an uploaded spreadsheet into raw rows. Column
// synonym resolution is the core's job, not the reader's.
type InvoiceFileReader interface {
	Rows(data []byte) ([][]string, error)
}

// PDFInspector sanity-checks uploads before they are queued for OCR.
type PDFInspector interface {
	PageCount(data []byte) (int, error)
}
