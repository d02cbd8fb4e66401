package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinicops/internal/blobstore"
	appconfig "github.com/wolfman30/clinicops/internal/config"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/internal/docstore/firestore"
	"github.com/wolfman30/clinicops/internal/docstore/memory"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildDocstore selects the document store backend. The returned close func is
// never nil. A firestore backend needs app.
func BuildDocstore(ctx context.Context, cfg *appconfig.Config, app *firebase.App, logger *logging.Logger) (docstore.Store, func() error, error) {
	noop := func() error { return nil }
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.DocstoreBackend {
	case "", "memory":
		logger.Warn("using in-memory document store; data is lost on restart")
		return memory.New(memory.WithLogger(logger)), noop, nil
	case "firestore":
		if app == nil {
			return nil, noop, fmt.Errorf("bootstrap: firestore backend requires a firebase app")
		}
		store, err := firestore.NewFromApp(ctx, app, logger)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("using firestore document store", "project_id", cfg.FirebaseProjectID)
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown DOCSTORE_BACKEND %q", cfg.DocstoreBackend)
	}
}

// BuildBlobStore selects where chat documents are uploaded.
func BuildBlobStore(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (blobstore.Store, error) {
	switch cfg.BlobBackend {
	case "", "memory":
		return blobstore.NewMemoryStore(), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("bootstrap: S3_BUCKET required for s3 blob backend")
		}
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: aws config required for s3 blob backend")
		}
		client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
			// LocalStack serves buckets on the path, not a subdomain.
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
		return blobstore.NewS3Store(client, cfg.S3Bucket, cfg.S3URLTTL, logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

// BuildPostgresPool connects to DATABASE_URL, or returns nil when it is unset.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}
