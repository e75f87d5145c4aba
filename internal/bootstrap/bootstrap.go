package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/afiqzahari/mida-quota/internal/config"
	"github.com/afiqzahari/mida-quota/internal/core/ports"
	"github.com/afiqzahari/mida-quota/internal/core/usecase"
	"github.com/afiqzahari/mida-quota/internal/infrastructure/invoicefile"
	"github.com/afiqzahari/mida-quota/internal/infrastructure/ocr/docintel"
	"github.com/afiqzahari/mida-quota/internal/infrastructure/pdfmeta"
	"github.com/afiqzahari/mida-quota/internal/infrastructure/queue/nats"
	"github.com/afiqzahari/mida-quota/internal/infrastructure/repository/postgres"
	"github.com/afiqzahari/mida-quota/internal/infrastructure/resilience"
	"github.com/afiqzahari/mida-quota/internal/infrastructure/storage/localfs"
	"github.com/afiqzahari/mida-quota/internal/observability/logging"
)

const uploadMaxPages = 50

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue      ports.MessageQueue
	CertRepo   ports.CertificateRepository
	LedgerRepo ports.LedgerRepository

	IngestUC  ports.CertificateIngestor
	ReaderUC  ports.CertificateReader
	ProcessUC ports.CertificateProcessor
	MatchUC   ports.InvoiceMatcher
	LedgerUC  ports.QuotaLedger
	SweepUC   *usecase.ExpirySweepUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	certRepo := postgres.NewCertificateRepository(db)
	ledgerRepo := postgres.NewLedgerRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	vocab, err := config.LoadVocabulary(cfg.VocabularyPath)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}

	ocrTimeout := time.Duration(cfg.OCRTimeoutSeconds) * time.Second
	executorCfg := resilience.DefaultConfig()
	executorCfg.AttemptTimeout = ocrTimeout
	analyzer := docintel.New(cfg.OCRBaseURL, cfg.OCRAPIKey,
		docintel.WithTimeout(ocrTimeout),
		docintel.WithExecutor(resilience.NewExecutor(executorCfg)),
	)

	inspector := pdfmeta.NewInspector(uploadMaxPages)
	extractor := usecase.NewExtractor(vocab)

	ingestUC := usecase.NewIngestCertificateUseCase(certRepo, storage, queue, inspector)
	processUC := usecase.NewProcessCertificateUseCase(certRepo, storage, analyzer, extractor)
	readerUC := usecase.NewGetCertificateUseCase(certRepo)
	matchUC := usecase.NewMatchInvoiceUseCase(
		invoicefile.New(),
		ledgerRepo,
		usecase.NewInvoiceLoader(),
		usecase.NewMatcher(vocab, cfg.MatchThreshold),
	)

	ledgerUC := usecase.NewLedgerUseCase(ledgerRepo, cfg.NearLimitPercent)
	if threshold, err := decimal.NewFromString(cfg.DefaultWarningThreshold); err == nil && threshold.IsPositive() {
		ledgerUC = ledgerUC.WithDefaultWarningThreshold(threshold)
	}

	sweepUC := usecase.NewExpirySweepUseCase(certRepo, logging.WithComponent(logger, "expiry_sweep"))

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:      queue,
		CertRepo:   certRepo,
		LedgerRepo: ledgerRepo,

		IngestUC:  ingestUC,
		ReaderUC:  readerUC,
		ProcessUC: processUC,
		MatchUC:   matchUC,
		LedgerUC:  ledgerUC,
		SweepUC:   sweepUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
