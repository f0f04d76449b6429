package queue_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletqueue/internal/providers"
	"walletqueue/internal/queue"
	"walletqueue/internal/repository/store"
	"walletqueue/internal/task"
)

// recordedTask logs its executions into a shared journal so resume order
// can be asserted.
type recordedTask struct {
	journal *[]string
	label   string
	fail    bool
	expiry  task.Expiry
}

func (t *recordedTask) Name() string                   { return "recorded" }
func (t *recordedTask) Dependencies() []providers.Name { return nil }
func (t *recordedTask) Args() []any                    { return []any{t.label} }
func (t *recordedTask) Expiry() task.Expiry            { return t.expiry }
func (t *recordedTask) Execute(ctx context.Context, sc *task.Scope) (any, error) {
	*t.journal = append(*t.journal, t.label)
	if t.fail {
		return nil, errors.New("execution failed")
	}
	return t.label, nil
}

type fixture struct {
	store   store.Store
	queue   *queue.Queue
	journal []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "wallet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{store: s}

	runner, err := task.NewRunner(s, providers.New(), prometheus.NewRegistry())
	require.NoError(t, err)

	registry := task.NewRegistry(map[string]task.DecodeFunc{
		"recorded": func(args []any) (task.Task, error) {
			label, ok := args[0].(string)
			if !ok {
				return nil, errors.New("label must be a string")
			}
			// A "!" prefix scripts the reconstructed task to fail.
			return &recordedTask{
				journal: &f.journal,
				label:   label,
				fail:    strings.HasPrefix(label, "!"),
				expiry:  task.Forever(),
			}, nil
		},
	})

	q, err := queue.New(s, runner, registry, prometheus.NewRegistry())
	require.NoError(t, err)
	f.queue = q
	return f
}

func TestEnqueueDeletesRecordOnSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.queue.Enqueue(ctx, &recordedTask{journal: &f.journal, label: "a", expiry: task.Forever()})
	require.NoError(t, err)
	assert.Equal(t, "a", result)
	assert.Equal(t, []string{"a"}, f.journal)

	_, err = f.store.ExtractNextQueuedTask(ctx)
	assert.True(t, errors.Is(err, store.ErrNoTasks), "completed task must leave no queue record")
}

func TestEnqueueKeepsRecordOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, &recordedTask{journal: &f.journal, label: "a", fail: true, expiry: task.Forever()})
	require.Error(t, err)

	record, err := f.store.ExtractNextQueuedTask(ctx)
	require.NoError(t, err)
	assert.Equal(t, "recorded", record.TaskName)
	assert.Equal(t, `["a"]`, record.Arguments)
}

func TestResumeDrainsLeftoverRecordsInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Records planted directly, as if a previous process died mid-flight.
	for _, label := range []string{"a", "b", "c"} {
		_, err := f.store.AddQueuedTask(ctx, "recorded", `["`+label+`"]`, nil, 0)
		require.NoError(t, err)
	}

	require.NoError(t, f.queue.Resume(ctx))
	assert.Equal(t, []string{"a", "b", "c"}, f.journal)

	_, err := f.store.ExtractNextQueuedTask(ctx)
	assert.True(t, errors.Is(err, store.ErrNoTasks))
}

func TestResumeDiscardsExpiredRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	_, err := f.store.AddQueuedTask(ctx, "recorded", `["stale"]`, &past, 0)
	require.NoError(t, err)
	_, err = f.store.AddQueuedTask(ctx, "recorded", `["live"]`, nil, 0)
	require.NoError(t, err)

	require.NoError(t, f.queue.Resume(ctx))
	assert.Equal(t, []string{"live"}, f.journal, "expired record must be discarded unrun")
}

func TestResumeDropsUndecodableRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.AddQueuedTask(ctx, "vanished_task_kind", `[]`, nil, 0)
	require.NoError(t, err)
	_, err = f.store.AddQueuedTask(ctx, "recorded", `["a"]`, nil, 0)
	require.NoError(t, err)

	require.NoError(t, f.queue.Resume(ctx))
	assert.Equal(t, []string{"a"}, f.journal)

	_, err = f.store.ExtractNextQueuedTask(ctx)
	assert.True(t, errors.Is(err, store.ErrNoTasks), "undecodable record must not be re-queued")
}

func TestResumeContinuesPastFailedTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.AddQueuedTask(ctx, "recorded", `["!fail"]`, nil, 0)
	require.NoError(t, err)
	_, err = f.store.AddQueuedTask(ctx, "recorded", `["b"]`, nil, 0)
	require.NoError(t, err)

	require.NoError(t, f.queue.Resume(ctx))
	assert.Contains(t, f.journal, "b", "one record's failure must not abort the drain")
}

func TestResumedSuccessHitsCacheOnReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.AddQueuedTask(ctx, "recorded", `["a"]`, nil, 0)
	require.NoError(t, err)
	require.NoError(t, f.queue.Resume(ctx))

	// Same record again, e.g. DeleteQueuedTask lost a race with a crash.
	_, err = f.store.AddQueuedTask(ctx, "recorded", `["a"]`, nil, 0)
	require.NoError(t, err)
	require.NoError(t, f.queue.Resume(ctx))

	assert.Equal(t, []string{"a"}, f.journal, "replay of a completed task must be served from cache")
}

func TestResumeStopsOnContextCancel(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.AddQueuedTask(context.Background(), "recorded", `["a"]`, nil, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = f.queue.Resume(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, f.journal)
}
