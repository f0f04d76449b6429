package tasks

import (
	"context"

	"walletqueue/internal/providers"
	"walletqueue/internal/repository/store"
	"walletqueue/internal/task"
	"walletqueue/internal/wallet"
)

// ReceiveCashuTask redeems an inbound e-cash token and records the
// activity row, saving the raw event for later rendering. Transactional:
// a failure after the redeem leaves no half-recorded transfer behind and
// the queue record retries the whole flow.
type ReceiveCashuTask struct {
	EventID   string
	Token     string
	SenderKey string
}

// NewReceiveCashuTask ...
func NewReceiveCashuTask(eventID, token, senderKey string) *ReceiveCashuTask {
	return &ReceiveCashuTask{EventID: eventID, Token: token, SenderKey: senderKey}
}

// Name ...
func (t *ReceiveCashuTask) Name() string {
	return TaskReceiveCashu
}

// Dependencies ...
func (t *ReceiveCashuTask) Dependencies() []providers.Name {
	return []providers.Name{
		providers.DatabaseService,
		providers.PortalAppInterface,
		providers.NostrStoreService,
		providers.CashuWalletMethodsProvider,
	}
}

// Args ...
func (t *ReceiveCashuTask) Args() []any {
	return []any{t.EventID, t.Token, t.SenderKey}
}

// Expiry ...
func (t *ReceiveCashuTask) Expiry() task.Expiry {
	return task.Forever()
}

// IsTransactional ...
func (t *ReceiveCashuTask) IsTransactional() {}

// Execute ...
func (t *ReceiveCashuTask) Execute(ctx context.Context, sc *task.Scope) (any, error) {
	cashu, err := providers.Resolve[wallet.CashuWallet](sc.Providers(), providers.CashuWalletMethodsProvider)
	if err != nil {
		return nil, err
	}
	amountMsat, err := cashu.ReceiveToken(ctx, t.Token)
	if err != nil {
		return nil, err
	}

	events, err := providers.Resolve[wallet.NostrStore](sc.Providers(), providers.NostrStoreService)
	if err != nil {
		return nil, err
	}
	if err = events.SaveEvent(ctx, t.EventID, map[string]any{
		"sender": t.SenderKey,
		"token":  t.Token,
	}); err != nil {
		return nil, err
	}

	db, err := providers.Resolve[store.Store](sc.Providers(), providers.DatabaseService)
	if err != nil {
		return nil, err
	}
	if _, err = db.AddActivity(ctx, &store.Activity{
		Type:            string(wallet.ActivityCashu),
		Status:          string(wallet.ActivityStatusCompleted),
		EventID:         t.EventID,
		CounterpartyKey: t.SenderKey,
		AmountMsat:      amountMsat,
	}); err != nil {
		return nil, err
	}

	app, err := providers.Resolve[wallet.PortalApp](sc.Providers(), providers.PortalAppInterface)
	if err != nil {
		return nil, err
	}
	if err = app.ReplyToCashuRequest(ctx, t.EventID, wallet.ReplySuccess); err != nil {
		return nil, err
	}

	return map[string]any{"amount_msat": amountMsat}, nil
}
