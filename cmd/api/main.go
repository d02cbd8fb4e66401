package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinicops/cmd/mainconfig"
	"github.com/wolfman30/clinicops/internal/api/router"
	"github.com/wolfman30/clinicops/internal/app/bootstrap"
	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/assignment"
	"github.com/wolfman30/clinicops/internal/auth"
	"github.com/wolfman30/clinicops/internal/chat"
	"github.com/wolfman30/clinicops/internal/compliance"
	appconfig "github.com/wolfman30/clinicops/internal/config"
	"github.com/wolfman30/clinicops/internal/directory"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinicops/internal/http/middleware"
	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/internal/presence"
	"github.com/wolfman30/clinicops/internal/realtime"
	"github.com/wolfman30/clinicops/internal/stats"
	"github.com/wolfman30/clinicops/internal/triggers"
	"github.com/wolfman30/clinicops/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinicops API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"docstore", cfg.DocstoreBackend,
		"counter", cfg.CounterBackend,
		"trigger_queue", cfg.TriggerQueue,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize api", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	a.close()
	logger.Info("server exited")
}

type app struct {
	handler  http.Handler
	store    docstore.Store
	closers  []func() error
	waiters  []func()
	stopWork context.CancelFunc
	logger   *logging.Logger
}

// close stops the background loops before releasing the queue and stores
// they use.
func (a *app) close() {
	if a.stopWork != nil {
		a.stopWork()
	}
	for _, wait := range a.waiters {
		wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to release resource", "error", err)
		}
	}
}

// buildApp wires every backend selected by cfg. Background goroutines stop
// when ctx is cancelled.
func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	a := &app{logger: logger}
	fail := func(err error) (*app, error) {
		a.close()
		return nil, err
	}

	var awsCfg *aws.Config
	if mainconfig.NeedsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return fail(fmt.Errorf("load aws config: %w", err))
		}
		awsCfg = &loaded
	}
	var fbApp *firebase.App
	if mainconfig.NeedsFirebase(cfg) {
		var err error
		if fbApp, err = mainconfig.NewFirebaseApp(ctx, cfg); err != nil {
			return fail(err)
		}
	}

	base, closeStore, err := bootstrap.BuildDocstore(ctx, cfg, fbApp, logger)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, closeStore)

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if pool != nil {
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		a.closers = append(a.closers, redisClient.Close)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	assignmentMetrics := metrics.NewAssignmentMetrics(registry)

	queue, closeQueue, err := bootstrap.BuildTriggerQueue(cfg, awsCfg)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, closeQueue)

	var workerCtx context.Context
	workerCtx, a.stopWork = context.WithCancel(ctx)
	if cfg.TriggerQueue == "" || cfg.TriggerQueue == "memory" {
		ledger, err := bootstrap.BuildLedger(cfg, base, pool, awsCfg, logger)
		if err != nil {
			return fail(err)
		}
		svc := bootstrap.BuildAssignmentService(bootstrap.AssignmentDeps{
			Store:   base,
			Ledger:  ledger,
			Pool:    pool,
			Email:   bootstrap.BuildEmailSender(cfg, awsCfg, logger),
			Metrics: assignmentMetrics,
			Logger:  logger,
		})
		worker := bootstrap.StartInProcessWorker(workerCtx, cfg, queue, svc, assignmentMetrics, logger)
		a.waiters = append(a.waiters, worker.Wait)
		logger.Info("assignment worker running in-process")
	}
	dispatcher := bootstrap.StartDispatcher(workerCtx, bootstrap.BuildOutbox(pool), queue, logger)
	a.waiters = append(a.waiters, dispatcher.Wait)
	store := triggers.NewEmittingStore(base, dispatcher, logger)
	a.store = store

	provider, err := buildAuthProvider(ctx, cfg, store, fbApp, redisClient)
	if err != nil {
		return fail(err)
	}

	blobs, err := bootstrap.BuildBlobStore(cfg, awsCfg, logger)
	if err != nil {
		return fail(err)
	}

	chatOpts := []chat.Option{}
	if redisClient != nil {
		chatOpts = append(chatOpts, chat.WithCache(chat.NewRedisCache(redisClient, cfg.ChatCacheTTL)))
	} else {
		chatOpts = append(chatOpts, chat.WithCache(chat.NewMemoryCache(cfg.ChatCacheTTL)))
	}
	if pool != nil {
		chatOpts = append(chatOpts, chat.WithAuditor(compliance.NewAuditService(stdlib.OpenDBFromPool(pool))))
	}
	chats := chat.NewContainer(store, blobs, logger, chatOpts...)

	loc := cfg.Location()
	appts := appointments.New(store, loc, logger)
	sub, err := appts.Subscribe(ctx, appointments.Filter{}, nil)
	if err != nil {
		return fail(fmt.Errorf("subscribe appointments: %w", err))
	}
	a.closers = append(a.closers, func() error { sub.Stop(); return nil })

	var statsRepo stats.Repository = stats.NewDocRepository(store)
	if redisClient != nil {
		statsRepo = stats.NewCachedRepository(statsRepo, redisClient, cfg.StatsCacheTTL, logger)
	}

	inbox := assignment.NewInbox(store)
	hub := realtime.NewHub(map[string]realtime.Source{
		realtime.TopicAppointments: realtime.AppointmentSource{Store: store, Loc: loc, Logger: logger},
		realtime.TopicChat:         realtime.ChatSource{Chats: chats},
		realtime.TopicInbox:        realtime.InboxSource{Inbox: inbox},
	}, logger)

	a.handler = router.New(&router.Config{
		Logger:             logger,
		Verifier:           provider,
		RateLimiter:        httpmiddleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst),
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Auth:               handlers.NewAuthHandler(provider, store, logger),
		Stats:              handlers.NewStatsHandler(statsRepo, logger),
		Appointments:       handlers.NewAppointmentsHandler(appts, logger),
		Chats:              handlers.NewChatsHandler(chats, logger),
		Patients:           handlers.NewDirectoryHandler(directory.Patients(store, logger), logger),
		Doctors:            handlers.NewDirectoryHandler(directory.Doctors(store, logger), logger),
		Agents:             handlers.NewDirectoryHandler(directory.Agents(store, logger), logger),
		Inbox:              handlers.NewInboxHandler(inbox, logger),
		Presence:           handlers.NewPresenceHandler(presence.NewService(store, loc, logger), logger),
		Realtime:           realtime.NewHandler(hub, cfg.CORSAllowedOrigins, logger),
	})
	return a, nil
}

func buildAuthProvider(ctx context.Context, cfg *appconfig.Config, store docstore.Store, fbApp *firebase.App, redisClient *redis.Client) (auth.Provider, error) {
	switch cfg.AuthBackend {
	case "", "local":
		if cfg.AuthJWTSecret == "" {
			return nil, errors.New("AUTH_JWT_SECRET is required for local auth")
		}
		var opts []auth.LocalOption
		if redisClient != nil {
			opts = append(opts, auth.WithRevocations(auth.NewRedisRevocations(redisClient)))
		}
		provider := auth.NewLocalProvider(store, cfg.AuthJWTSecret, cfg.AuthTokenTTL, opts...)
		if cfg.AuthBootstrapEmail != "" && cfg.AuthBootstrapPassword != "" {
			if err := provider.Register(ctx, cfg.AuthBootstrapUID, cfg.AuthBootstrapEmail, cfg.AuthBootstrapPassword); err != nil {
				return nil, err
			}
		}
		return provider, nil
	case "firebase":
		return auth.NewFirebaseVerifier(ctx, fbApp)
	default:
		return nil, fmt.Errorf("unknown AUTH_BACKEND %q", cfg.AuthBackend)
	}
}
