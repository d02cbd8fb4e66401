package counter

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/internal/docstore/memory"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestDocLedgerSequentialIncrements(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := NewDocLedger(store, 0, nil)

	for want := int64(1); want <= 5; want++ {
		got, err := ledger.Increment(ctx, Appointments)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	n, err := ledger.Increment(ctx, Chats)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "counters are independent per resource")

	doc, err := store.Get(ctx, "counters/citas")
	require.NoError(t, err)
	assert.EqualValues(t, 5, doc.Data.Int64("count"))
}

func TestDocLedgerConcurrentIncrementsAreDistinct(t *testing.T) {
	ctx := context.Background()
	ledger := NewDocLedger(memory.New(), 0, nil)

	const n = 40
	results := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := ledger.Increment(ctx, Appointments)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, v := range results {
		assert.EqualValues(t, i+1, v)
	}
}

func TestDocLedgerRejectsUnknownResource(t *testing.T) {
	_, err := NewDocLedger(memory.New(), 0, nil).Increment(context.Background(), Resource("pacientes"))
	assert.ErrorIs(t, err, ErrUnknownResource)
}

// conflictingStore fails the first `failures` transactions with ErrConflict.
type conflictingStore struct {
	docstore.Store
	failures int32
	calls    atomic.Int32
}

func (s *conflictingStore) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	if s.calls.Add(1) <= s.failures {
		return docstore.ErrConflict
	}
	return s.Store.RunTransaction(ctx, fn)
}

func TestDocLedgerRetriesConflicts(t *testing.T) {
	store := &conflictingStore{Store: memory.New(), failures: 2}
	ledger := NewDocLedger(store, 5, nil)
	ledger.retry.sleep = noSleep

	n, err := ledger.Increment(context.Background(), Appointments)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.EqualValues(t, 3, store.calls.Load())
}

func TestDocLedgerGivesUpAfterMaxAttempts(t *testing.T) {
	store := &conflictingStore{Store: memory.New(), failures: 100}
	ledger := NewDocLedger(store, 3, nil)
	ledger.retry.sleep = noSleep

	_, err := ledger.Increment(context.Background(), Chats)
	assert.ErrorIs(t, err, ErrTransactionConflict)
	assert.EqualValues(t, 3, store.calls.Load())
}

func TestDocLedgerDoesNotRetryOtherErrors(t *testing.T) {
	boom := errors.New("unavailable")
	store := &failingTxStore{Store: memory.New(), err: boom}
	ledger := NewDocLedger(store, 5, nil)
	ledger.retry.sleep = noSleep

	_, err := ledger.Increment(context.Background(), Chats)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTransactionConflict)
	assert.Equal(t, 1, store.calls)
}

type failingTxStore struct {
	docstore.Store
	err   error
	calls int
}

func (s *failingTxStore) RunTransaction(context.Context, docstore.TxFunc) error {
	s.calls++
	return s.err
}

func TestPostgresLedgerIncrement(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	ledger := newPostgresLedgerWithDB(mock, 3)
	ledger.retry.sleep = noSleep

	mock.ExpectQuery("INSERT INTO counters").WithArgs("citas").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("INSERT INTO counters").WithArgs("citas").WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectQuery("INSERT INTO counters").WithArgs("citas").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))

	n, err := ledger.Increment(context.Background(), Appointments)
	if err != nil || n != 1 {
		t.Fatalf("expected first increment 1, got %d err=%v", n, err)
	}
	n, err = ledger.Increment(context.Background(), Appointments)
	if err != nil || n != 2 {
		t.Fatalf("expected retried increment 2, got %d err=%v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresLedgerConflictExhausted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	ledger := newPostgresLedgerWithDB(mock, 2)
	ledger.retry.sleep = noSleep
	for i := 0; i < 2; i++ {
		mock.ExpectQuery("INSERT INTO counters").WithArgs("chats").WillReturnError(&pgconn.PgError{Code: "40001"})
	}
	_, err = ledger.Increment(context.Background(), Chats)
	if !errors.Is(err, ErrTransactionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type fakeDynamo struct {
	mu     sync.Mutex
	counts map[string]int64
	fail   []error
	inputs []*dynamodb.UpdateItemInput
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if len(f.fail) > 0 {
		err := f.fail[0]
		f.fail = f.fail[1:]
		return nil, err
	}
	key := in.Key["resource"].(*types.AttributeValueMemberS).Value
	f.counts[key]++
	return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		"count": &types.AttributeValueMemberN{Value: strconv.FormatInt(f.counts[key], 10)},
	}}, nil
}

func TestDynamoLedgerIncrement(t *testing.T) {
	client := &fakeDynamo{
		counts: map[string]int64{},
		fail:   []error{&types.TransactionConflictException{}},
	}
	ledger := NewDynamoLedger(client, "clinicops_counters", 3)
	ledger.retry.sleep = noSleep

	n, err := ledger.Increment(context.Background(), Appointments)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = ledger.Increment(context.Background(), Appointments)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	require.Len(t, client.inputs, 3)
	in := client.inputs[0]
	assert.Equal(t, "clinicops_counters", *in.TableName)
	assert.Equal(t, "ADD #count :one", *in.UpdateExpression)
	assert.Equal(t, types.ReturnValueUpdatedNew, in.ReturnValues)
}

func TestDynamoLedgerPropagatesOtherErrors(t *testing.T) {
	client := &fakeDynamo{counts: map[string]int64{}, fail: []error{errors.New("access denied")}}
	ledger := NewDynamoLedger(client, "t", 3)
	ledger.retry.sleep = noSleep
	_, err := ledger.Increment(context.Background(), Chats)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransactionConflict)
	assert.Len(t, client.inputs, 1)
}

func TestBackoffWithinBounds(t *testing.T) {
	r := newRetrier(5)
	for attempt := 1; attempt <= 4; attempt++ {
		ceiling := r.baseDelay << (attempt - 1)
		d := r.backoff(attempt)
		assert.GreaterOrEqual(t, d, ceiling/2)
		assert.LessOrEqual(t, d, ceiling)
	}
}
