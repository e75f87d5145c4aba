package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/afiqzahari/mida-quota/internal/bootstrap"
	"github.com/afiqzahari/mida-quota/internal/config"
	"github.com/afiqzahari/mida-quota/internal/observability/logging"
	"github.com/afiqzahari/mida-quota/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", workerMetrics.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsMux,
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker metrics server failed", "error", err)
		}
	}()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.ExpirySweepSpec, func() {
		sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		marked, err := app.SweepUC.Sweep(sweepCtx, time.Now().UTC())
		if err != nil {
			logger.Error("expiry sweep failed", "error", err)
			return
		}
		workerMetrics.RecordExpired(serviceName, marked)
	}); err != nil {
		logger.Error("invalid expiry sweep schedule", "spec", cfg.ExpirySweepSpec, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeCertificateQueued(ctx, func(handlerCtx context.Context, certificateID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Minute)
		defer cancel()

		if cert, err := app.CertRepo.GetByID(processCtx, certificateID); err == nil {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(cert.CreatedAt))
		}

		workerMetrics.StartCertificate()
		start := time.Now()
		err := app.ProcessUC.ProcessByID(processCtx, certificateID)
		workerMetrics.FinishCertificate(serviceName, time.Since(start), err)

		if err == nil {
			if cert, getErr := app.CertRepo.GetByID(processCtx, certificateID); getErr == nil {
				workerMetrics.RecordParsingMode(serviceName, string(cert.Diagnostics.ParsingMode))
			}
		}
		return err
	})
	if err != nil {
		logger.Error("worker subscribe failed", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
