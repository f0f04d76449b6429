package task_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletqueue/internal/providers"
	"walletqueue/internal/repository/store"
	"walletqueue/internal/task"
)

// testTask is a scriptable Task implementation for runner tests.
type testTask struct {
	execute func(ctx context.Context, sc *task.Scope) (any, error)
	name    string
	args    []any
	deps    []providers.Name
	expiry  task.Expiry
}

func (t *testTask) Name() string                   { return t.name }
func (t *testTask) Dependencies() []providers.Name { return t.deps }
func (t *testTask) Args() []any                    { return t.args }
func (t *testTask) Expiry() task.Expiry            { return t.expiry }
func (t *testTask) Execute(ctx context.Context, sc *task.Scope) (any, error) {
	return t.execute(ctx, sc)
}

// transactionalTask wraps testTask with the transactional marker.
type transactionalTask struct {
	testTask
}

func (t *transactionalTask) IsTransactional() {}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "wallet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestRunner(t *testing.T, s store.Store) *task.Runner {
	t.Helper()
	runner, err := task.NewRunner(s, providers.New(), prometheus.NewRegistry())
	require.NoError(t, err)
	return runner
}

func TestRunCachesResult(t *testing.T) {
	s := newTestStore(t)
	runner := newTestRunner(t, s)
	ctx := context.Background()

	var calls atomic.Int64
	tk := &testTask{
		name:   "fetch_profile",
		args:   []any{"npub1abc"},
		expiry: task.Forever(),
		execute: func(ctx context.Context, sc *task.Scope) (any, error) {
			calls.Add(1)
			return int64(42), nil
		},
	}

	first, err := runner.Run(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, int64(42), first)

	second, err := runner.Run(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, int64(42), second)

	assert.EqualValues(t, 1, calls.Load(), "second run must be served from cache")
}

func TestRunDistinctArgumentsExecuteSeparately(t *testing.T) {
	s := newTestStore(t)
	runner := newTestRunner(t, s)
	ctx := context.Background()

	var calls atomic.Int64
	build := func(key string) *testTask {
		return &testTask{
			name:   "fetch_profile",
			args:   []any{key},
			expiry: task.Forever(),
			execute: func(ctx context.Context, sc *task.Scope) (any, error) {
				calls.Add(1)
				return key, nil
			},
		}
	}

	_, err := runner.Run(ctx, build("npub1abc"))
	require.NoError(t, err)
	_, err = runner.Run(ctx, build("npub1def"))
	require.NoError(t, err)

	assert.EqualValues(t, 2, calls.Load())
}

func TestRunCoalescesConcurrentDuplicates(t *testing.T) {
	s := newTestStore(t)
	runner := newTestRunner(t, s)
	ctx := context.Background()

	var calls atomic.Int64
	release := make(chan struct{})
	tk := &testTask{
		name:   "fetch_rate",
		args:   []any{"BTC", "USD"},
		expiry: task.Forever(),
		execute: func(ctx context.Context, sc *task.Scope) (any, error) {
			calls.Add(1)
			<-release
			return int64(97000), nil
		},
	}

	const workers = 4
	results := make([]any, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = runner.Run(ctx, tk)
		}(i)
	}

	// Let every goroutine reach the in-flight entry before it settles.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load(), "duplicates must share one execution")
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(97000), results[i])
	}
}

func TestRunErrorNotCached(t *testing.T) {
	s := newTestStore(t)
	runner := newTestRunner(t, s)
	ctx := context.Background()

	var calls atomic.Int64
	tk := &testTask{
		name:   "fetch_rate",
		args:   []any{"BTC", "USD"},
		expiry: task.Forever(),
		execute: func(ctx context.Context, sc *task.Scope) (any, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("rate source unavailable")
			}
			return int64(97000), nil
		},
	}

	_, err := runner.Run(ctx, tk)
	require.Error(t, err)

	result, err := runner.Run(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, int64(97000), result)
	assert.EqualValues(t, 2, calls.Load(), "failed run must be retried, not served from cache")
}

func TestRunMissingDependencyAbortsBeforeExecution(t *testing.T) {
	s := newTestStore(t)
	runner := newTestRunner(t, s)
	ctx := context.Background()

	var calls atomic.Int64
	tk := &testTask{
		name:   "pay_invoice",
		args:   []any{"event1"},
		deps:   []providers.Name{providers.ActiveWalletProvider},
		expiry: task.Forever(),
		execute: func(ctx context.Context, sc *task.Scope) (any, error) {
			calls.Add(1)
			return nil, nil
		},
	}

	_, err := runner.Run(ctx, tk)
	require.Error(t, err)
	assert.True(t, errors.Is(err, providers.ErrProviderNotFound))
	assert.EqualValues(t, 0, calls.Load(), "missing dependency must abort before any side effect")
}

func TestRunExpiredCacheEntryReexecutes(t *testing.T) {
	s := newTestStore(t)
	runner := newTestRunner(t, s)
	ctx := context.Background()

	var calls atomic.Int64
	tk := &testTask{
		name:   "fetch_rate",
		args:   []any{"BTC", "EUR"},
		expiry: task.ExpiresAt(time.Now().Add(-time.Second)),
		execute: func(ctx context.Context, sc *task.Scope) (any, error) {
			calls.Add(1)
			return int64(90000), nil
		},
	}

	_, err := runner.Run(ctx, tk)
	require.NoError(t, err)
	_, err = runner.Run(ctx, tk)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestTransactionalRollbackDiscardsWrites(t *testing.T) {
	s := newTestStore(t)
	runner := newTestRunner(t, s)
	ctx := context.Background()

	tk := &transactionalTask{testTask{
		name:   "pay_invoice",
		args:   []any{"event1"},
		expiry: task.Forever(),
		execute: func(ctx context.Context, sc *task.Scope) (any, error) {
			_, err := s.AddActivity(ctx, &store.Activity{Type: "payment", Status: "pending", EventID: "event1"})
			require.NoError(t, err)
			return nil, errors.New("payment failed mid-flight")
		},
	}}

	_, err := runner.Run(ctx, tk)
	require.Error(t, err)

	count, err := s.CountActivities(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count, "writes of a failed transactional task must roll back")

	_, ok, err := s.GetCache(ctx, mustCacheKey(t, tk))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransactionalCommitKeepsWritesAndCache(t *testing.T) {
	s := newTestStore(t)
	runner := newTestRunner(t, s)
	ctx := context.Background()

	tk := &transactionalTask{testTask{
		name:   "receive_cashu",
		args:   []any{"event2"},
		expiry: task.Forever(),
		execute: func(ctx context.Context, sc *task.Scope) (any, error) {
			_, err := s.AddActivity(ctx, &store.Activity{Type: "cashu", Status: "completed", EventID: "event2"})
			require.NoError(t, err)
			return map[string]any{"amount_msat": int64(21000)}, nil
		},
	}}

	result, err := runner.Run(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"amount_msat": int64(21000)}, result)

	count, err := s.CountActivities(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	_, ok, err := s.GetCache(ctx, mustCacheKey(t, tk))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNestedTransactionalChildRollsBackWithParent(t *testing.T) {
	s := newTestStore(t)
	runner := newTestRunner(t, s)
	ctx := context.Background()

	child := &transactionalTask{testTask{
		name:   "receive_cashu",
		args:   []any{"child"},
		expiry: task.Forever(),
		execute: func(ctx context.Context, sc *task.Scope) (any, error) {
			_, err := s.AddActivity(ctx, &store.Activity{Type: "cashu", Status: "completed", EventID: "child"})
			require.NoError(t, err)
			return "ok", nil
		},
	}}

	parent := &transactionalTask{testTask{
		name:   "pay_invoice",
		args:   []any{"parent"},
		expiry: task.Forever(),
		execute: func(ctx context.Context, sc *task.Scope) (any, error) {
			result, err := sc.Run(ctx, child)
			require.NoError(t, err)
			assert.Equal(t, "ok", result)
			return nil, errors.New("parent failed after child committed")
		},
	}}

	_, err := runner.Run(ctx, parent)
	require.Error(t, err)

	// The child committed its own savepoint, but that savepoint was nested
	// inside the parent's, so rolling back the parent drops everything.
	count, err := s.CountActivities(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	_, ok, err := s.GetCache(ctx, mustCacheKey(t, child))
	require.NoError(t, err)
	assert.False(t, ok, "a child's cache entry must not outlive the parent rollback")
}

func TestConcurrentTransactionalTasksDoNotInterleave(t *testing.T) {
	s := newTestStore(t)
	runner := newTestRunner(t, s)
	ctx := context.Background()

	// The first task opens its savepoint, writes a row, and stalls until
	// released; it then fails and rolls back. A concurrently started second
	// task commits a row of its own. That row must survive the rollback.
	started := make(chan struct{})
	release := make(chan struct{})
	stalled := &transactionalTask{testTask{
		name:   "pay_invoice",
		args:   []any{"stalled"},
		expiry: task.Forever(),
		execute: func(ctx context.Context, sc *task.Scope) (any, error) {
			_, err := s.AddActivity(ctx, &store.Activity{Type: "payment", Status: "pending", EventID: "stalled"})
			require.NoError(t, err)
			close(started)
			<-release
			return nil, errors.New("stalled task failed")
		},
	}}
	committed := &transactionalTask{testTask{
		name:   "receive_cashu",
		args:   []any{"committed"},
		expiry: task.Forever(),
		execute: func(ctx context.Context, sc *task.Scope) (any, error) {
			_, err := s.AddActivity(ctx, &store.Activity{Type: "cashu", Status: "completed", EventID: "committed"})
			require.NoError(t, err)
			return "ok", nil
		},
	}}

	var wg sync.WaitGroup
	wg.Add(2)
	var stalledErr error
	var committedResult any
	var committedErr error
	go func() {
		defer wg.Done()
		_, stalledErr = runner.Run(ctx, stalled)
	}()
	go func() {
		defer wg.Done()
		<-started
		committedResult, committedErr = runner.Run(ctx, committed)
	}()

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Error(t, stalledErr)
	require.NoError(t, committedErr)
	assert.Equal(t, "ok", committedResult)

	count, err := s.CountActivities(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "a committed task's row must survive another task's rollback")

	_, ok, err := s.GetCache(ctx, mustCacheKey(t, committed))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestScopeSetExpiryAppliesToCacheWrite(t *testing.T) {
	s := newTestStore(t)
	runner := newTestRunner(t, s)
	ctx := context.Background()

	var calls atomic.Int64
	tk := &testTask{
		name:   "create_invoice",
		args:   []any{"event3"},
		expiry: task.Forever(),
		execute: func(ctx context.Context, sc *task.Scope) (any, error) {
			calls.Add(1)
			sc.SetExpiry(task.ExpiresAt(time.Now().Add(-time.Second)))
			return "bolt11", nil
		},
	}

	_, err := runner.Run(ctx, tk)
	require.NoError(t, err)
	_, err = runner.Run(ctx, tk)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load(), "expiry set inside Execute must govern the cache write")
}

func mustCacheKey(t *testing.T, tk task.Task) string {
	t.Helper()
	key, err := task.CacheKey(tk)
	require.NoError(t, err)
	return key
}
