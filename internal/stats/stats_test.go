package stats

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/internal/docstore/memory"
)

func TestDocRepositoryCounts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed := map[string]docstore.Fields{
		"pacientes/p1": {"name": "a"},
		"pacientes/p2": {"name": "b"},
		"agentes/a1":   {"idAgente": 1},
		"citas/c1":     {"estado": "En Proceso"},
		"citas/c2":     {"estado": "En Proceso"},
		"citas/c3":     {"estado": "Finalizada"},
		"citas/c4":     {"estado": "Cancelada"},
	}
	for path, data := range seed {
		require.NoError(t, store.Set(ctx, path, data))
	}

	got, err := NewDocRepository(store).Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, Statistics{NumberOfPacientes: 2, NumberOfAgentes: 1, NumberOfCitasInProcess: 2, NumberOfCitasCompleted: 1}, got)
}

type countingRepo struct {
	calls atomic.Int32
	err   error
}

func (r *countingRepo) Statistics(context.Context) (Statistics, error) {
	n := r.calls.Add(1)
	if r.err != nil {
		return Statistics{}, r.err
	}
	return Statistics{NumberOfPacientes: int(n)}, nil
}

func TestCachedRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	inner := &countingRepo{}
	repo := NewCachedRepository(inner, client, time.Minute, nil)
	ctx := context.Background()

	first, err := repo.Statistics(ctx)
	require.NoError(t, err)
	second, err := repo.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), inner.calls.Load())

	mr.FastForward(2 * time.Minute)
	third, err := repo.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, third.NumberOfPacientes)

	require.NoError(t, mr.Set(cacheKey, "not json"))
	fourth, err := repo.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, fourth.NumberOfPacientes)
}

func TestCachedRepositoryFallsThroughWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	inner := &countingRepo{}
	got, err := NewCachedRepository(inner, client, time.Minute, nil).Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got.NumberOfPacientes)

	inner.err = errors.New("backend down")
	_, err = NewCachedRepository(inner, client, time.Minute, nil).Statistics(context.Background())
	assert.Error(t, err)
}
