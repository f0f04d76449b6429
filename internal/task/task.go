// Package task implements the durable unit of work and the runner that
// executes it: content-addressed result caching, coalescing of concurrent
// duplicate executions, and savepoint-wrapped transactional tasks.
package task

import (
	"context"
	"time"

	"walletqueue/internal/providers"
)

// Task is one durable unit of work. Implementations must be reconstructible
// from Name() plus the codec-encoded Args(), which is what makes a task
// resumable after the process is killed mid-flight.
type Task interface {
	// Name identifies the task kind in the decoder registry and forms the
	// prefix of its cache key.
	Name() string
	// Dependencies lists the provider names the task resolves at run time.
	// A missing dependency aborts the run before any side effect.
	Dependencies() []providers.Name
	// Args returns the ordered constructor arguments. They must be
	// codec-representable and fully determine the task's identity.
	Args() []any
	// Expiry is the TTL policy for the cached result. It does not limit how
	// long a queue record may wait to run.
	Expiry() Expiry
	// Execute performs the work. Child tasks run through the scope so they
	// participate in the enclosing transaction.
	Execute(ctx context.Context, sc *Scope) (any, error)
}

// Transactional marks a task whose side effects commit or roll back as one
// unit. The runner wraps Execute in a database savepoint.
type Transactional interface {
	Task
	IsTransactional()
}

// Persistence is the slice of the storage layer the runner needs.
type Persistence interface {
	GetCache(ctx context.Context, key string) (string, bool, error)
	SetCache(ctx context.Context, key, value string, expiresAt *time.Time) error
	StartSavepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
	RollbackSavepoint(ctx context.Context, name string) error
}

// Expiry is a cache TTL: either a point in time or "forever".
type Expiry struct {
	at *time.Time
}

// Forever never expires.
func Forever() Expiry {
	return Expiry{}
}

// ExpiresAt ...
func ExpiresAt(t time.Time) Expiry {
	return Expiry{at: &t}
}

// ExpiresIn ...
func ExpiresIn(d time.Duration) Expiry {
	t := time.Now().Add(d)
	return Expiry{at: &t}
}

// Time returns the expiry instant, or nil for forever.
func (e Expiry) Time() *time.Time {
	return e.at
}

// Scope is the execution context handed to Task.Execute. It carries the
// resolved collaborators and the transaction nesting level, and lets the
// task tighten its cache TTL once argument contents have been inspected.
type Scope struct {
	runner *Runner
	expiry Expiry
	depth  int
}

// Providers ...
func (sc *Scope) Providers() *providers.Container {
	return sc.runner.providers
}

// SetExpiry overrides the task's declared cache TTL for this execution.
// Typical use: adopting a protocol event's expiresAt mid-logic.
func (sc *Scope) SetExpiry(e Expiry) {
	sc.expiry = e
}

// Run executes a child task. Children inherit the transaction depth, so a
// nested transactional child opens a genuinely nested savepoint and a
// child's cache write stays inside the parent's savepoint until it commits.
func (sc *Scope) Run(ctx context.Context, t Task) (any, error) {
	return sc.runner.run(ctx, t, sc.depth)
}
