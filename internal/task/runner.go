package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"walletqueue/internal/codec"
	"walletqueue/internal/providers"
)

const (
	metricsNamespace = "wallet"
	metricsSubsystem = "work_queue"

	savepointHashLen = 12
)

// runnerMetrics holds Prometheus metrics for the Runner.
type runnerMetrics struct {
	executions *prometheus.CounterVec
	cacheHits  *prometheus.CounterVec
}

// Runner executes tasks against a provider container and a persistence
// layer. For every (task name, argument fingerprint) pair at most one
// execution is in flight at a time; concurrent duplicates share its result.
type Runner struct {
	store     Persistence
	providers *providers.Container
	metrics   *runnerMetrics
	group     singleflight.Group
	txMu      sync.Mutex
}

// NewRunner ...
func NewRunner(store Persistence, container *providers.Container, reg prometheus.Registerer) (*Runner, error) {
	metrics := &runnerMetrics{
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "task_executions_total",
				Help:      "Total number of task logic executions",
			},
			[]string{"task", "status"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "task_cache_hits_total",
				Help:      "Total number of runs satisfied from the result cache",
			},
			[]string{"task"},
		),
	}

	if reg != nil {
		if err := reg.Register(metrics.executions); err != nil {
			return nil, fmt.Errorf("failed to register executions counter: %w", err)
		}
		if err := reg.Register(metrics.cacheHits); err != nil {
			return nil, fmt.Errorf("failed to register cache hits counter: %w", err)
		}
	}

	return &Runner{
		store:     store,
		providers: container,
		metrics:   metrics,
	}, nil
}

// CacheKey is the task's content address: its name concatenated with the
// fingerprint of its arguments. The fingerprint is fixed-length hex, so the
// bare concatenation is unambiguous.
func CacheKey(t Task) (string, error) {
	fingerprint, err := codec.Fingerprint(t.Args())
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", t.Name(), err)
	}
	return t.Name() + fingerprint, nil
}

// Run executes a task at the top level.
func (r *Runner) Run(ctx context.Context, t Task) (any, error) {
	return r.run(ctx, t, 0)
}

func (r *Runner) run(ctx context.Context, t Task, depth int) (any, error) {
	for _, dep := range t.Dependencies() {
		if _, ok := r.providers.Get(dep); !ok {
			return nil, fmt.Errorf("%w: %s required by %s", providers.ErrProviderNotFound, dep, t.Name())
		}
	}

	key, err := CacheKey(t)
	if err != nil {
		return nil, err
	}

	if cached, ok, cacheErr := r.store.GetCache(ctx, key); cacheErr != nil {
		return nil, cacheErr
	} else if ok {
		r.metrics.cacheHits.WithLabelValues(t.Name()).Inc()
		log.WithFields(log.Fields{
			"task": t.Name(),
			"key":  key,
		}).Debug("Task result served from cache")
		return codec.DecodeValue(cached)
	}

	// Concurrent callers with the same key share this one execution; the
	// in-flight entry is dropped as soon as it settles, success or failure,
	// so a failed task stays retryable.
	result, err, _ := r.group.Do(key, func() (any, error) {
		return r.execute(ctx, t, key, depth)
	})
	return result, err
}

func (r *Runner) execute(ctx context.Context, t Task, key string, depth int) (any, error) {
	sc := &Scope{runner: r, expiry: t.Expiry(), depth: depth}

	_, transactional := t.(Transactional)
	var savepoint string
	if transactional {
		// Savepoints of unrelated tasks must never interleave on the shared
		// single-writer connection: the second task's savepoint would nest
		// inside the first's transaction and a rollback there would discard
		// writes the second already released. Top-level transactional
		// executions therefore run one at a time; nested children (depth > 0)
		// already run under their parent's turn.
		if depth == 0 {
			r.txMu.Lock()
			defer r.txMu.Unlock()
		}
		savepoint = savepointName(key, depth)
		if err := r.store.StartSavepoint(ctx, savepoint); err != nil {
			return nil, err
		}
		sc.depth = depth + 1
	}

	result, err := t.Execute(ctx, sc)
	if err == nil {
		var encoded string
		if encoded, err = codec.EncodeValue(result); err == nil {
			// Inside a savepoint this write only becomes durable when the
			// outermost transaction commits, which keeps a child's cache
			// entry and its database writes atomic.
			err = r.store.SetCache(ctx, key, encoded, sc.expiry.Time())
		}
	}

	if err != nil {
		if transactional {
			if rbErr := r.store.RollbackSavepoint(ctx, savepoint); rbErr != nil {
				log.WithError(rbErr).WithField("savepoint", savepoint).Error("Failed to rollback savepoint")
			}
		}
		r.metrics.executions.WithLabelValues(t.Name(), "error").Inc()
		// Errors are never cached: the next run with the same arguments
		// re-attempts real work.
		return nil, err
	}

	if transactional {
		if relErr := r.store.ReleaseSavepoint(ctx, savepoint); relErr != nil {
			r.metrics.executions.WithLabelValues(t.Name(), "error").Inc()
			return nil, relErr
		}
	}

	r.metrics.executions.WithLabelValues(t.Name(), "success").Inc()
	return result, nil
}

// savepointName derives a savepoint identifier from the cache key and the
// nesting depth. Carrying the depth gives nested transactional tasks
// distinct, genuinely nested savepoints.
func savepointName(key string, depth int) string {
	suffix := key
	if len(suffix) > savepointHashLen {
		suffix = suffix[len(suffix)-savepointHashLen:]
	}
	return fmt.Sprintf("sp_%s_%d", suffix, depth)
}
