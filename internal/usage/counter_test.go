package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallbox/recallbox/internal/config"
)

// fakeStore is an in-memory Store with failure switches per path.
type fakeStore struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int

	rpcReadErr  error
	rpcWriteErr error
	aggErr      error
	upsertErr   error

	calls map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		counts: make(map[uuid.UUID]int),
		calls:  make(map[string]int),
	}
}

func (f *fakeStore) called(name string) {
	f.calls[name]++
}

func (f *fakeStore) CurrentCount(ctx context.Context, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("CurrentCount")
	if f.rpcReadErr != nil {
		return 0, f.rpcReadErr
	}
	return f.counts[userID], nil
}

func (f *fakeStore) AtomicIncrement(ctx context.Context, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("AtomicIncrement")
	if f.rpcWriteErr != nil {
		return 0, f.rpcWriteErr
	}
	f.counts[userID]++
	return f.counts[userID], nil
}

func (f *fakeStore) SumForPeriod(ctx context.Context, userID uuid.UUID, p Period) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("SumForPeriod")
	if f.aggErr != nil {
		return 0, f.aggErr
	}
	return f.counts[userID], nil
}

func (f *fakeStore) Upsert(ctx context.Context, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("Upsert")
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.counts[rec.UserID] = rec.Count
	return nil
}

func (f *fakeStore) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func testCfg() config.MeteringConfig {
	return config.MeteringConfig{
		FreeAllowance:    10,
		UsageTrustWindow: time.Minute,
		ReadDeadline:     50 * time.Millisecond,
		WriteDeadline:    50 * time.Millisecond,
		WriteRetries:     1,
		BackoffBase:      time.Millisecond,
		BackoffCap:       2 * time.Millisecond,
	}
}

func TestIncrement_SequentialNoLostUpdates(t *testing.T) {
	store := newFakeStore()
	c := NewCounter(store, testCfg())
	ctx := context.Background()
	userID := uuid.New()

	for i := 1; i <= 5; i++ {
		got := c.Increment(ctx, userID)
		assert.Equal(t, i, got)
	}
	assert.Equal(t, 5, c.Count(ctx, userID))
}

func TestIncrement_ConcurrentAtomicPath(t *testing.T) {
	store := newFakeStore()
	c := NewCounter(store, testCfg())
	ctx := context.Background()
	userID := uuid.New()

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			c.Increment(ctx, userID)
		}()
	}
	wg.Wait()

	store.mu.Lock()
	final := store.counts[userID]
	store.mu.Unlock()
	assert.Equal(t, n, final, "atomic path must not lose increments")
}

func TestCount_ServedFromCache(t *testing.T) {
	store := newFakeStore()
	c := NewCounter(store, testCfg())
	ctx := context.Background()
	userID := uuid.New()
	store.counts[userID] = 3

	assert.Equal(t, 3, c.Count(ctx, userID))
	assert.Equal(t, 3, c.Count(ctx, userID))
	assert.Equal(t, 1, store.callCount("CurrentCount"), "second read must hit the cache")
}

func TestCount_TrustWindowExpiry(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c := NewCounterWithClock(store, testCfg(), func() time.Time { return now })
	ctx := context.Background()
	userID := uuid.New()
	store.counts[userID] = 2

	assert.Equal(t, 2, c.Count(ctx, userID))

	store.counts[userID] = 7
	now = now.Add(61 * time.Second)
	assert.Equal(t, 7, c.Count(ctx, userID), "stale cache must be refreshed")
}

func TestCount_FallsBackToAggregation(t *testing.T) {
	store := newFakeStore()
	store.rpcReadErr = errors.New("function usage_current_count does not exist")
	c := NewCounter(store, testCfg())
	ctx := context.Background()
	userID := uuid.New()
	store.counts[userID] = 4

	assert.Equal(t, 4, c.Count(ctx, userID))
	assert.Equal(t, 1, store.callCount("SumForPeriod"))
}

func TestCount_AllPathsFailDefaultsToZero(t *testing.T) {
	store := newFakeStore()
	store.rpcReadErr = errors.New("rpc down")
	store.aggErr = errors.New("table missing")
	c := NewCounter(store, testCfg())

	assert.Equal(t, 0, c.Count(context.Background(), uuid.New()))
}

func TestIncrement_FallbackReadModifyWrite(t *testing.T) {
	store := newFakeStore()
	store.rpcWriteErr = errors.New("rpc down")
	store.rpcReadErr = errors.New("rpc down")
	c := NewCounter(store, testCfg())
	ctx := context.Background()
	userID := uuid.New()
	store.counts[userID] = 2

	got := c.Increment(ctx, userID)
	assert.Equal(t, 3, got)
	assert.Equal(t, 1, store.callCount("Upsert"))

	store.mu.Lock()
	assert.Equal(t, 3, store.counts[userID])
	store.mu.Unlock()
}

func TestIncrement_OptimisticCacheKeptOnWriteFailure(t *testing.T) {
	store := newFakeStore()
	store.rpcWriteErr = errors.New("rpc down")
	store.rpcReadErr = errors.New("rpc down")
	store.upsertErr = errors.New("write timeout")
	c := NewCounter(store, testCfg())
	ctx := context.Background()
	userID := uuid.New()
	store.counts[userID] = 5

	got := c.Increment(ctx, userID)
	assert.Equal(t, 6, got)

	// The optimistic entry is retained rather than rolled back; a cached value
	// below reality is the unsafe direction for a paywall check.
	assert.Equal(t, 6, c.Count(ctx, userID))
}

func TestCurrentPeriod(t *testing.T) {
	p := CurrentPeriod(time.Date(2026, 2, 17, 23, 45, 0, 0, time.UTC))
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), p.Start)
	require.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), p.End)

	// Period boundaries are UTC even for non-UTC inputs.
	loc := time.FixedZone("UTC+13", 13*3600)
	p = CurrentPeriod(time.Date(2026, 3, 1, 0, 30, 0, 0, loc))
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), p.Start)
}
