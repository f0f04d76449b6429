package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RequestKind discriminates what a pending decision is about.
type RequestKind string

// const ...
const (
	RequestLogin        RequestKind = "login"
	RequestPayment      RequestKind = "payment"
	RequestSubscription RequestKind = "subscription"
	RequestTicket       RequestKind = "ticket"
	RequestNostrConnect RequestKind = "nostrConnect"
)

// Decision is the human's answer to a pending request.
type Decision struct {
	Reason   string
	Approved bool
}

// PendingRequest is a task suspended on a user decision. It is never
// persisted on its own: if the process dies while one is outstanding, the
// owning task's queue record replays the whole flow and re-derives it.
type PendingRequest struct {
	Timestamp time.Time
	Metadata  map[string]any
	ID        string
	Kind      RequestKind
	decided   chan Decision
	once      sync.Once
}

// NewPendingRequest ...
func NewPendingRequest(kind RequestKind, metadata map[string]any) *PendingRequest {
	return &PendingRequest{
		ID:        uuid.NewString(),
		Kind:      kind,
		Metadata:  metadata,
		Timestamp: time.Now(),
		decided:   make(chan Decision, 1),
	}
}

// Resolve records the user's decision. Later calls are ignored; the UI may
// race a notification action against the in-app card.
func (r *PendingRequest) Resolve(d Decision) {
	r.once.Do(func() {
		r.decided <- d
	})
}

// Decision blocks until the request is resolved or ctx is done. There is
// deliberately no timeout of its own: an approval card lives until the user
// acts or the process is killed.
func (r *PendingRequest) Decision(ctx context.Context) (Decision, error) {
	select {
	case d := <-r.decided:
		return d, nil
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}
