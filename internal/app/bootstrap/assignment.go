package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinicops/internal/assignment"
	appconfig "github.com/wolfman30/clinicops/internal/config"
	"github.com/wolfman30/clinicops/internal/counter"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/internal/notify"
	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/internal/triggers"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// BuildLedger selects the counter backend. pool is required for postgres and
// awsCfg for dynamodb.
func BuildLedger(cfg *appconfig.Config, store docstore.Store, pool *pgxpool.Pool, awsCfg *aws.Config, logger *logging.Logger) (counter.Ledger, error) {
	switch cfg.CounterBackend {
	case "", "docstore":
		return counter.NewDocLedger(store, cfg.CounterMaxAttempts, logger), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("bootstrap: postgres counter backend requires DATABASE_URL")
		}
		return counter.NewPostgresLedger(pool, cfg.CounterMaxAttempts), nil
	case "dynamodb":
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: dynamodb counter backend requires aws config")
		}
		return counter.NewDynamoLedger(dynamodb.NewFromConfig(*awsCfg), cfg.CountersTable, cfg.CounterMaxAttempts), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown COUNTER_BACKEND %q", cfg.CounterBackend)
	}
}

// BuildTriggerQueue selects the transport between document writes and the
// assignment worker. The close func is never nil.
func BuildTriggerQueue(cfg *appconfig.Config, awsCfg *aws.Config) (triggers.Queue, func() error, error) {
	noop := func() error { return nil }
	switch cfg.TriggerQueue {
	case "", "memory":
		return triggers.NewMemoryQueue(256), noop, nil
	case "sqs":
		if cfg.TriggerQueueURL == "" {
			return nil, noop, fmt.Errorf("bootstrap: TRIGGER_QUEUE_URL required for sqs")
		}
		if awsCfg == nil {
			return nil, noop, fmt.Errorf("bootstrap: aws config required for sqs")
		}
		return triggers.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.TriggerQueueURL), noop, nil
	case "amqp":
		if cfg.AMQPURL == "" {
			return nil, noop, fmt.Errorf("bootstrap: AMQP_URL required for amqp")
		}
		q, err := triggers.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, noop, err
		}
		return q, q.Close, nil
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown TRIGGER_QUEUE %q", cfg.TriggerQueue)
	}
}

// BuildEmailSender returns nil when EMAIL_PROVIDER is none or unusable.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender == nil {
			logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is empty; emails disabled")
			return nil
		}
		return sender
	case "ses":
		if awsCfg == nil {
			logger.Warn("EMAIL_PROVIDER=ses but aws config is unavailable; emails disabled")
			return nil
		}
		return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	case "stub":
		return notify.NewStubEmailSender(logger)
	default:
		return nil
	}
}

// AssignmentDeps are the collaborators of the assignment handler.
type AssignmentDeps struct {
	Store   docstore.Store
	Ledger  counter.Ledger
	Pool    *pgxpool.Pool
	Email   notify.EmailSender
	Metrics *metrics.AssignmentMetrics
	Logger  *logging.Logger
}

// BuildAssignmentService wires the round-robin handler. Redelivery tracking is
// enabled when a Postgres pool is available and notifications when Email is set.
func BuildAssignmentService(deps AssignmentDeps) *assignment.Service {
	opts := []assignment.ServiceOption{assignment.WithMetrics(deps.Metrics)}
	if deps.Pool != nil {
		opts = append(opts, assignment.WithAssignedLog(triggers.NewAssignedStore(deps.Pool)))
	}
	if deps.Email != nil {
		opts = append(opts, assignment.WithNotifier(notify.NewAssignmentNotifier(deps.Email, deps.Logger)))
	}
	return assignment.NewService(deps.Store, deps.Ledger, deps.Logger, opts...)
}

// BuildOutbox keeps pending trigger events in Postgres when a pool is
// available, otherwise in process.
func BuildOutbox(pool *pgxpool.Pool) triggers.Outbox {
	if pool != nil {
		return triggers.NewPostgresOutbox(pool)
	}
	return triggers.NewMemoryOutbox()
}

// StartDispatcher drains outbox to queue until ctx is done. The returned
// dispatcher is the recorder the API's emitting store writes to.
func StartDispatcher(ctx context.Context, outbox triggers.Outbox, queue triggers.Queue, logger *logging.Logger) *triggers.Dispatcher {
	dispatcher := triggers.NewDispatcher(outbox, triggers.NewPublisher(queue, logger), logger)
	dispatcher.Start(ctx)
	return dispatcher
}

// StartInProcessWorker consumes an in-memory trigger queue inside the API
// process.
func StartInProcessWorker(ctx context.Context, cfg *appconfig.Config, queue triggers.Queue, handler triggers.Handler, m *metrics.AssignmentMetrics, logger *logging.Logger) *triggers.Worker {
	worker := triggers.NewWorker(handler, queue, logger,
		triggers.WithWorkerCount(cfg.WorkerCount),
		triggers.WithWorkerMetrics(m),
	)
	worker.Start(ctx)
	return worker
}
