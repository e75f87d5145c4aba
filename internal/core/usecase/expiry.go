package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
	"github.com/afiqzahari/mida-quota/internal/core/ports"
)

// ExpirySweepUseCase marks ready certificates whose exemption period has
// ended. The worker runs it on a schedule; it is also safe to run ad hoc.
type ExpirySweepUseCase struct {
	repo   ports.CertificateRepository
	logger *slog.Logger
}

func NewExpirySweepUseCase(repo ports.CertificateRepository, logger *slog.Logger) *ExpirySweepUseCase {
	return &ExpirySweepUseCase{repo: repo, logger: logger}
}

func (uc *ExpirySweepUseCase) Sweep(ctx context.Context, asOf time.Time) (int, error) {
	expiring, err := uc.repo.ListExpiring(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("list expiring certificates: %w", err)
	}

	marked := 0
	for _, cert := range expiring {
		if err := uc.repo.UpdateStatus(ctx, cert.ID, domain.CertificateExpired, ""); err != nil {
			uc.logger.Error("mark certificate expired",
				"certificate_id", cert.ID,
				"error", err)
			continue
		}
		marked++
		uc.logger.Info("certificate expired",
			"certificate_id", cert.ID,
			"certificate_number", cert.CertificateNumber,
			"exemption_end", cert.ExemptionEnd)
	}
	return marked, nil
}
