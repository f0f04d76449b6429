package wallet

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrNoRelayAvailable means no relay connected within the wait budget.
var ErrNoRelayAvailable = errors.New("no relay connected within wait budget")

// WaitForRelay polls until at least one relay reports connected. The wait
// is bounded: a task blocked on connectivity gives up with
// ErrNoRelayAvailable instead of suspending forever, and the queue record
// it runs under stays eligible for a retry on the next resume.
func WaitForRelay(ctx context.Context, statuses RelayStatuses, interval, timeout time.Duration) error {
	if anyConnected(statuses) {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			log.WithField("timeout", timeout).Warn("Gave up waiting for relay connectivity")
			return ErrNoRelayAvailable
		case <-ticker.C:
			if anyConnected(statuses) {
				return nil
			}
		}
	}
}

// anyConnected ...
func anyConnected(statuses RelayStatuses) bool {
	for _, s := range statuses.Statuses() {
		if s.Connected {
			return true
		}
	}
	return false
}
