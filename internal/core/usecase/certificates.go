package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
	"github.com/afiqzahari/mida-quota/internal/core/ports"
)

type GetCertificateUseCase struct {
	repo ports.CertificateRepository
}

func NewGetCertificateUseCase(repo ports.CertificateRepository) *GetCertificateUseCase {
	return &GetCertificateUseCase{repo: repo}
}

func (uc *GetCertificateUseCase) GetByID(ctx context.Context, id string) (*domain.Certificate, error) {
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get certificate", errors.New("id required"))
	}
	cert, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch certificate by id: %w", err)
	}
	return cert, nil
}
