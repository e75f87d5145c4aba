package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
	"github.com/afiqzahari/mida-quota/internal/core/ports"
)

const maxUploadBytes = 50 << 20

type IngestCertificateUseCase struct {
	repo      ports.CertificateRepository
	storage   ports.ObjectStorage
	queue     ports.MessageQueue
	inspector ports.PDFInspector
}

func NewIngestCertificateUseCase(
	repo ports.CertificateRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	inspector ports.PDFInspector,
) *IngestCertificateUseCase {
	return &IngestCertificateUseCase{
		repo:      repo,
		storage:   storage,
		queue:     queue,
		inspector: inspector,
	}
}

func (uc *IngestCertificateUseCase) Upload(ctx context.Context, filename string, body io.Reader) (*domain.Certificate, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload body: %w", err)
	}
	if len(data) > maxUploadBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload body",
			fmt.Errorf("file exceeds %d bytes", maxUploadBytes))
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("not a PDF file"))
	}

	pages, err := uc.inspector.PageCount(data)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate upload",
			fmt.Errorf("unreadable PDF: %w", err))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	cert := &domain.Certificate{
		ID:          id,
		Filename:    filename,
		StoragePath: storageKey,
		PageCount:   pages,
		Status:      domain.CertificateUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, cert); err != nil {
		return nil, fmt.Errorf("create certificate record: %w", err)
	}

	if err := uc.queue.PublishCertificateQueued(ctx, cert.ID); err != nil {
		return nil, fmt.Errorf("publish extraction event: %w", err)
	}

	return cert, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "certificate.pdf"
	}
	return base
}
