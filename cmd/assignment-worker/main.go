package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinicops/cmd/mainconfig"
	"github.com/wolfman30/clinicops/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinicops/internal/config"
	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/internal/triggers"
	"github.com/wolfman30/clinicops/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.TriggerQueue == "" || cfg.TriggerQueue == "memory" {
		logger.Error("assignment worker needs TRIGGER_QUEUE=sqs or amqp; the memory queue runs inside the api")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	m := metrics.NewAssignmentMetrics(registry)

	rt, err := mainconfig.BuildAssignmentRuntime(ctx, cfg, m, logger)
	if err != nil {
		logger.Error("failed to initialize assignment runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	queue, closeQueue, err := bootstrap.BuildTriggerQueue(cfg, rt.AWS)
	if err != nil {
		logger.Error("failed to open trigger queue", "error", err)
		os.Exit(1)
	}
	defer func() { _ = closeQueue() }()

	worker := triggers.NewWorker(rt.Service, queue, logger,
		triggers.WithWorkerCount(cfg.WorkerCount),
		triggers.WithReceiveWaitSeconds(20),
		triggers.WithReceiveBatchSize(10),
		triggers.WithWorkerMetrics(m),
	)
	worker.Start(ctx)
	logger.Info("assignment worker started", "queue", cfg.TriggerQueue, "workers", cfg.WorkerCount)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	metricsSrv := &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down assignment worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	_ = metricsSrv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("assignment worker stopped")
	case <-doneCtx.Done():
		logger.Error("assignment worker shutdown timed out", "error", doneCtx.Err())
	}
}
