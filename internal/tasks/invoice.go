package tasks

import (
	"context"
	"time"

	"walletqueue/internal/providers"
	"walletqueue/internal/repository/store"
	"walletqueue/internal/task"
	"walletqueue/internal/wallet"
)

// CreateInvoiceTask answers an inbound payment request: wait until a relay
// is reachable, create an invoice on the active wallet, record the pending
// activity row and reply with the bolt11. Transactional, so the activity
// row is rolled back if the reply cannot be sent and a retry starts clean.
type CreateInvoiceTask struct {
	EventID     string
	SenderKey   string
	Description string
	// EventExpiresAt is the protocol event's deadline in unix millis, 0 for
	// none. It travels as an identity argument so a resumed record inherits
	// it, and it bounds both the queue record and the cached reply.
	EventExpiresAt int64
	AmountMsat     int64
	pollInterval   time.Duration
	waitTimeout    time.Duration
}

// NewCreateInvoiceTask ...
func NewCreateInvoiceTask(eventID, senderKey, description string, amountMsat int64, eventExpiresAt *time.Time, pollInterval, waitTimeout time.Duration) *CreateInvoiceTask {
	t := &CreateInvoiceTask{
		EventID:      eventID,
		SenderKey:    senderKey,
		Description:  description,
		AmountMsat:   amountMsat,
		pollInterval: pollInterval,
		waitTimeout:  waitTimeout,
	}
	if eventExpiresAt != nil {
		t.EventExpiresAt = eventExpiresAt.UnixMilli()
	}
	return t
}

// Name ...
func (t *CreateInvoiceTask) Name() string {
	return TaskCreateInvoice
}

// Dependencies ...
func (t *CreateInvoiceTask) Dependencies() []providers.Name {
	return []providers.Name{
		providers.DatabaseService,
		providers.PortalAppInterface,
		providers.ActiveWalletProvider,
		providers.RelayStatusesProvider,
	}
}

// Args ...
func (t *CreateInvoiceTask) Args() []any {
	return []any{t.EventID, t.SenderKey, t.Description, t.AmountMsat, t.EventExpiresAt}
}

// Expiry adopts the protocol event's deadline: past it the request is dead,
// so neither the queue record nor a memoized reply should outlive it.
func (t *CreateInvoiceTask) Expiry() task.Expiry {
	if t.EventExpiresAt > 0 {
		return task.ExpiresAt(time.UnixMilli(t.EventExpiresAt))
	}
	return task.Forever()
}

// IsTransactional ...
func (t *CreateInvoiceTask) IsTransactional() {}

// Execute ...
func (t *CreateInvoiceTask) Execute(ctx context.Context, sc *task.Scope) (any, error) {
	relays, err := providers.Resolve[wallet.RelayStatuses](sc.Providers(), providers.RelayStatusesProvider)
	if err != nil {
		return nil, err
	}
	if err = wallet.WaitForRelay(ctx, relays, t.pollInterval, t.waitTimeout); err != nil {
		return nil, err
	}

	activeWallet, err := providers.Resolve[wallet.Wallet](sc.Providers(), providers.ActiveWalletProvider)
	if err != nil {
		return nil, err
	}
	invoice, err := activeWallet.CreateInvoice(ctx, t.AmountMsat, t.Description)
	if err != nil {
		return nil, err
	}
	// Once the invoice expires, the memoized reply is worthless; let the
	// cache entry die with it.
	if invoice.ExpiresAt != nil {
		sc.SetExpiry(task.ExpiresAt(*invoice.ExpiresAt))
	}

	db, err := providers.Resolve[store.Store](sc.Providers(), providers.DatabaseService)
	if err != nil {
		return nil, err
	}
	activityID, err := db.AddActivity(ctx, &store.Activity{
		Type:            string(wallet.ActivityInvoice),
		Status:          string(wallet.ActivityStatusPending),
		EventID:         t.EventID,
		CounterpartyKey: t.SenderKey,
		AmountMsat:      t.AmountMsat,
	})
	if err != nil {
		return nil, err
	}

	app, err := providers.Resolve[wallet.PortalApp](sc.Providers(), providers.PortalAppInterface)
	if err != nil {
		return nil, err
	}
	if err = app.ReplyToPaymentRequest(ctx, t.EventID, wallet.ReplyApproved, invoice.Bolt11); err != nil {
		return nil, err
	}

	return map[string]any{
		"bolt11":       invoice.Bolt11,
		"payment_hash": invoice.PaymentHash,
		"activity_id":  activityID,
	}, nil
}
