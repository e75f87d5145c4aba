package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
	"github.com/afiqzahari/mida-quota/internal/core/ports"
)

type ProcessCertificateUseCase struct {
	repo      ports.CertificateRepository
	storage   ports.ObjectStorage
	analyzer  ports.LayoutAnalyzer
	extractor *Extractor
}

func NewProcessCertificateUseCase(
	repo ports.CertificateRepository,
	storage ports.ObjectStorage,
	analyzer ports.LayoutAnalyzer,
	extractor *Extractor,
) *ProcessCertificateUseCase {
	return &ProcessCertificateUseCase{
		repo:      repo,
		storage:   storage,
		analyzer:  analyzer,
		extractor: extractor,
	}
}

func (uc *ProcessCertificateUseCase) ProcessByID(ctx context.Context, certificateID string) error {
	if err := uc.repo.UpdateStatus(ctx, certificateID, domain.CertificateProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if err := uc.runPipeline(ctx, certificateID); err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, certificateID, domain.CertificateFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.UpdateStatus(ctx, certificateID, domain.CertificateReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessCertificateUseCase) runPipeline(ctx context.Context, certificateID string) error {
	stored, err := uc.repo.GetByID(ctx, certificateID)
	if err != nil {
		return fmt.Errorf("fetch certificate by id: %w", err)
	}

	pdf, err := uc.loadSource(ctx, stored.StoragePath)
	if err != nil {
		return err
	}

	doc, err := uc.analyzer.Analyze(ctx, pdf)
	if err != nil {
		return fmt.Errorf("analyze document layout: %w", err)
	}
	if doc.Content == "" && len(doc.Tables) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "analyze document layout",
			errors.New("provider returned no text and no tables"))
	}

	extracted := uc.extractor.Extract(doc)
	extracted.ID = stored.ID
	extracted.Filename = stored.Filename
	extracted.StoragePath = stored.StoragePath
	extracted.PageCount = stored.PageCount
	extracted.CreatedAt = stored.CreatedAt

	if err := uc.repo.SaveExtraction(ctx, extracted); err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}
	return nil
}

func (uc *ProcessCertificateUseCase) loadSource(ctx context.Context, storageKey string) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read stored file: %w", err)
	}
	return data, nil
}
