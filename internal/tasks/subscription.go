package tasks

import (
	"context"
	"time"

	"walletqueue/internal/calendar"
	"walletqueue/internal/providers"
	"walletqueue/internal/repository/store"
	"walletqueue/internal/task"
	"walletqueue/internal/wallet"
)

// CloseSubscriptionTask cancels a recurring payment subscription: reply
// with the closed status and mark the subscription's activity row. The
// billing calendar travels as an argument so the closure note can say what
// cadence was cancelled.
type CloseSubscriptionTask struct {
	Schedule       *calendar.Calendar
	EventID        string
	SubscriptionID string
	MerchantKey    string
}

// NewCloseSubscriptionTask ...
func NewCloseSubscriptionTask(eventID, subscriptionID, merchantKey string, schedule *calendar.Calendar) *CloseSubscriptionTask {
	return &CloseSubscriptionTask{
		Schedule:       schedule,
		EventID:        eventID,
		SubscriptionID: subscriptionID,
		MerchantKey:    merchantKey,
	}
}

// Name ...
func (t *CloseSubscriptionTask) Name() string {
	return TaskCloseSubscription
}

// Dependencies ...
func (t *CloseSubscriptionTask) Dependencies() []providers.Name {
	return []providers.Name{providers.DatabaseService, providers.PortalAppInterface}
}

// Args ...
func (t *CloseSubscriptionTask) Args() []any {
	return []any{t.EventID, t.SubscriptionID, t.MerchantKey, t.Schedule}
}

// Expiry ...
func (t *CloseSubscriptionTask) Expiry() task.Expiry {
	return task.Forever()
}

// Execute ...
func (t *CloseSubscriptionTask) Execute(ctx context.Context, sc *task.Scope) (any, error) {
	app, err := providers.Resolve[wallet.PortalApp](sc.Providers(), providers.PortalAppInterface)
	if err != nil {
		return nil, err
	}
	if err = app.ReplyToSubscriptionRequest(ctx, t.EventID, wallet.ReplyClosed); err != nil {
		return nil, err
	}

	db, err := providers.Resolve[store.Store](sc.Providers(), providers.DatabaseService)
	if err != nil {
		return nil, err
	}
	skipped := t.Schedule.NextOccurrence(time.Now())
	if _, err = db.AddActivity(ctx, &store.Activity{
		Type:            string(wallet.ActivitySubscription),
		Status:          string(wallet.ActivityStatusCompleted),
		EventID:         t.EventID,
		CounterpartyKey: t.MerchantKey,
		Reason:          "cancelled subscription billed " + t.Schedule.HumanReadable(),
	}); err != nil {
		return nil, err
	}

	return map[string]any{
		"subscription_id": t.SubscriptionID,
		"closed":          true,
		"next_skipped":    skipped.Unix(),
	}, nil
}
