// Package stats computes the dashboard counters: patients, agents and
// appointments by workflow state.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/pkg/logging"
)

const (
	estadoInProcess = "En Proceso"
	estadoCompleted = "Finalizada"
)

// Statistics is the GET /stats payload.
type Statistics struct {
	NumberOfPacientes      int `json:"numberOfPacientes"`
	NumberOfAgentes        int `json:"numberOfAgentes"`
	NumberOfCitasInProcess int `json:"numberOfCitasInProcess"`
	NumberOfCitasCompleted int `json:"numberOfCitasCompleted"`
}

// Repository yields current statistics.
type Repository interface {
	Statistics(ctx context.Context) (Statistics, error)
}

// DocRepository counts documents straight from the store.
type DocRepository struct {
	store docstore.Store
}

func NewDocRepository(store docstore.Store) *DocRepository {
	if store == nil {
		panic("stats: store required")
	}
	return &DocRepository{store: store}
}

func (r *DocRepository) Statistics(ctx context.Context) (Statistics, error) {
	var out Statistics
	counts := []struct {
		dst *int
		q   docstore.Query
	}{
		{&out.NumberOfPacientes, docstore.Collection("pacientes")},
		{&out.NumberOfAgentes, docstore.Collection("agentes")},
		{&out.NumberOfCitasInProcess, docstore.Collection("citas").Where("estado", docstore.OpEqual, estadoInProcess)},
		{&out.NumberOfCitasCompleted, docstore.Collection("citas").Where("estado", docstore.OpEqual, estadoCompleted)},
	}
	for _, c := range counts {
		docs, err := r.store.Query(ctx, c.q)
		if err != nil {
			return Statistics{}, fmt.Errorf("stats: count %s: %w", c.q.Collection, err)
		}
		*c.dst = len(docs)
	}
	return out, nil
}

const cacheKey = "clinicops:stats"

// CachedRepository serves statistics from Redis for ttl before recomputing.
// Cache failures fall through to the inner repository.
type CachedRepository struct {
	inner  Repository
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedRepository(inner Repository, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedRepository {
	if inner == nil {
		panic("stats: inner repository required")
	}
	if client == nil {
		panic("stats: redis client required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedRepository{inner: inner, redis: client, ttl: ttl, logger: logger}
}

func (c *CachedRepository) Statistics(ctx context.Context) (Statistics, error) {
	data, err := c.redis.Get(ctx, cacheKey).Bytes()
	switch {
	case err == nil:
		var s Statistics
		if jerr := json.Unmarshal(data, &s); jerr == nil {
			return s, nil
		}
		c.logger.Warn("stats: discarding corrupt cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("stats: cache read failed", "error", err)
	}

	s, err := c.inner.Statistics(ctx)
	if err != nil {
		return Statistics{}, err
	}
	if data, err := json.Marshal(s); err == nil {
		if err := c.redis.Set(ctx, cacheKey, data, c.ttl).Err(); err != nil {
			c.logger.Warn("stats: cache write failed", "error", err)
		}
	}
	return s, nil
}
