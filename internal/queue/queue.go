// Package queue drives durable task execution: Enqueue persists a record
// before running the task so a process kill mid-flight leaves enough state
// behind, and Resume drains leftover records on the next start.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"walletqueue/internal/repository/store"
	"walletqueue/internal/task"
)

const (
	metricsNamespace = "wallet"
	metricsSubsystem = "work_queue"

	defaultPriority = 0
)

// Persistence is the slice of the storage layer the queue needs.
type Persistence interface {
	AddQueuedTask(ctx context.Context, taskName, arguments string, expiresAt *time.Time, priority int) (int64, error)
	ExtractNextQueuedTask(ctx context.Context) (*store.QueuedTask, error)
	DeleteQueuedTask(ctx context.Context, id int64) error
}

// queueMetrics holds Prometheus metrics for the Queue.
type queueMetrics struct {
	enqueued  prometheus.Counter
	resumed   prometheus.Counter
	discarded prometheus.Counter
	failed    prometheus.Counter
}

// Queue is the work-queue driver. One logical worker drains one queue;
// Enqueue executes synchronously relative to its caller and the persisted
// record exists purely for crash recovery, not out-of-band scheduling.
type Queue struct {
	store    Persistence
	runner   *task.Runner
	registry *task.Registry
	metrics  *queueMetrics
}

// New ...
func New(persistence Persistence, runner *task.Runner, registry *task.Registry, reg prometheus.Registerer) (*Queue, error) {
	metrics := &queueMetrics{
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "tasks_enqueued_total",
			Help:      "Total number of tasks persisted and executed via Enqueue",
		}),
		resumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "tasks_resumed_total",
			Help:      "Total number of leftover tasks replayed on startup",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "tasks_discarded_expired_total",
			Help:      "Total number of queue records discarded past their deadline",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "tasks_failed_total",
			Help:      "Total number of task executions that returned an error",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{metrics.enqueued, metrics.resumed, metrics.discarded, metrics.failed} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("failed to register queue metrics: %w", err)
			}
		}
	}

	return &Queue{
		store:    persistence,
		runner:   runner,
		registry: registry,
		metrics:  metrics,
	}, nil
}

// Enqueue persists the task, executes it, and deletes the record once the
// execution succeeds. A failed attempt leaves the record in place so the
// next Resume genuinely retries interrupted work.
func (q *Queue) Enqueue(ctx context.Context, t task.Task) (any, error) {
	name, args, err := task.Serialize(t)
	if err != nil {
		return nil, err
	}

	id, err := q.store.AddQueuedTask(ctx, name, args, t.Expiry().Time(), defaultPriority)
	if err != nil {
		return nil, fmt.Errorf("failed to persist task %s: %w", name, err)
	}
	q.metrics.enqueued.Inc()

	result, runErr := q.runner.Run(ctx, t)
	if runErr != nil {
		q.metrics.failed.Inc()
		log.WithError(runErr).WithFields(log.Fields{
			"task":    name,
			"task_id": id,
		}).Error("Enqueued task failed, record kept for resume")
		return nil, runErr
	}

	if err = q.store.DeleteQueuedTask(ctx, id); err != nil {
		// The task already completed; a leftover record is harmless because
		// replaying it hits the result cache.
		log.WithError(err).WithField("task_id", id).Error("Failed to delete completed queue record")
	}
	return result, nil
}

// Resume drains records left over from a previous process lifetime, oldest
// first. Records past their protocol deadline are discarded unrun, records
// naming unknown task kinds are dropped as permanently undecodable, and a
// single record's failure never aborts the rest of the drain.
func (q *Queue) Resume(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := q.store.ExtractNextQueuedTask(ctx)
		if errors.Is(err, store.ErrNoTasks) {
			return nil
		} else if err != nil {
			return fmt.Errorf("failed to extract next queued task: %w", err)
		}

		if expired(record) {
			q.metrics.discarded.Inc()
			log.WithFields(log.Fields{
				"task":    record.TaskName,
				"task_id": record.ID,
			}).Info("Discarding expired queue record")
			continue
		}

		t, err := q.registry.Decode(record.TaskName, record.Arguments)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"task":    record.TaskName,
				"task_id": record.ID,
			}).Error("Dropping undecodable queue record")
			continue
		}

		if _, err = q.runner.Run(ctx, t); err != nil {
			q.metrics.failed.Inc()
			log.WithError(err).WithFields(log.Fields{
				"task":    record.TaskName,
				"task_id": record.ID,
			}).Error("Resumed task failed")
			continue
		}
		q.metrics.resumed.Inc()
	}
}

// expired ...
func expired(record *store.QueuedTask) bool {
	return record.ExpiresAt != nil && *record.ExpiresAt <= time.Now().UnixMilli()
}
