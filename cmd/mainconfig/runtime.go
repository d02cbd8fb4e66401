package mainconfig

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/wolfman30/clinicops/internal/app/bootstrap"
	"github.com/wolfman30/clinicops/internal/assignment"
	appconfig "github.com/wolfman30/clinicops/internal/config"
	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// AssignmentRuntime is everything a trigger consumer needs.
type AssignmentRuntime struct {
	AWS     *aws.Config
	Service *assignment.Service
	closers []func() error
	logger  *logging.Logger
}

// Close releases the store and database connections.
func (r *AssignmentRuntime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("failed to release resource", "error", err)
		}
	}
}

// BuildAssignmentRuntime wires the document store, counter ledger and optional
// Postgres/e-mail collaborators of the assignment handler.
func BuildAssignmentRuntime(ctx context.Context, cfg *appconfig.Config, m *metrics.AssignmentMetrics, logger *logging.Logger) (*AssignmentRuntime, error) {
	if logger == nil {
		logger = logging.Default()
	}
	rt := &AssignmentRuntime{logger: logger}
	fail := func(err error) (*AssignmentRuntime, error) {
		rt.Close()
		return nil, err
	}

	if NeedsAWS(cfg) {
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return fail(fmt.Errorf("mainconfig: load aws config: %w", err))
		}
		rt.AWS = &awsCfg
	}
	var app *firebase.App
	if cfg.DocstoreBackend == "firestore" {
		var err error
		if app, err = NewFirebaseApp(ctx, cfg); err != nil {
			return fail(err)
		}
	}

	store, closeStore, err := bootstrap.BuildDocstore(ctx, cfg, app, logger)
	if err != nil {
		return fail(err)
	}
	rt.closers = append(rt.closers, closeStore)

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if pool != nil {
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
	}

	ledger, err := bootstrap.BuildLedger(cfg, store, pool, rt.AWS, logger)
	if err != nil {
		return fail(err)
	}
	rt.Service = bootstrap.BuildAssignmentService(bootstrap.AssignmentDeps{
		Store:   store,
		Ledger:  ledger,
		Pool:    pool,
		Email:   bootstrap.BuildEmailSender(cfg, rt.AWS, logger),
		Metrics: m,
		Logger:  logger,
	})
	return rt, nil
}
