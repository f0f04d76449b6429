package tasks

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"walletqueue/internal/providers"
	"walletqueue/internal/repository/store"
	"walletqueue/internal/task"
	"walletqueue/internal/wallet"
)

// PayInvoiceTask handles an outbound payment request end to end: suspend
// on a human approval, then pay and record the payment status and activity
// row atomically. A send failure is a handled outcome, not a task error:
// it commits a terminal failed status with a reason so the UI never shows
// a permanently pending payment, and the memoized outcome keeps a replay
// from paying twice.
type PayInvoiceTask struct {
	EventID      string
	Bolt11       string
	RecipientKey string
	AmountMsat   int64
	profileTTL   time.Duration
}

// NewPayInvoiceTask ...
func NewPayInvoiceTask(eventID, bolt11, recipientKey string, amountMsat int64, profileTTL time.Duration) *PayInvoiceTask {
	return &PayInvoiceTask{
		EventID:      eventID,
		Bolt11:       bolt11,
		RecipientKey: recipientKey,
		AmountMsat:   amountMsat,
		profileTTL:   profileTTL,
	}
}

// Name ...
func (t *PayInvoiceTask) Name() string {
	return TaskPayInvoice
}

// Dependencies ...
func (t *PayInvoiceTask) Dependencies() []providers.Name {
	return []providers.Name{
		providers.DatabaseService,
		providers.PortalAppInterface,
		providers.ActiveWalletProvider,
		providers.PromptUserProvider,
	}
}

// Args ...
func (t *PayInvoiceTask) Args() []any {
	return []any{t.EventID, t.Bolt11, t.RecipientKey, t.AmountMsat}
}

// Expiry ...
func (t *PayInvoiceTask) Expiry() task.Expiry {
	return task.Forever()
}

// IsTransactional ...
func (t *PayInvoiceTask) IsTransactional() {}

// Execute ...
func (t *PayInvoiceTask) Execute(ctx context.Context, sc *task.Scope) (any, error) {
	db, err := providers.Resolve[store.Store](sc.Providers(), providers.DatabaseService)
	if err != nil {
		return nil, err
	}
	app, err := providers.Resolve[wallet.PortalApp](sc.Providers(), providers.PortalAppInterface)
	if err != nil {
		return nil, err
	}

	if err = db.UpsertPaymentStatus(ctx, t.EventID, string(wallet.PaymentRequested)); err != nil {
		return nil, err
	}

	decision, err := t.askUser(ctx, sc)
	if err != nil {
		return nil, err
	}
	if !decision.Approved {
		return t.settle(ctx, db, app, wallet.PaymentRejected, rejectionReason(decision))
	}

	// Counterparty profile is cosmetic for the activity row; a lookup
	// failure must not block the payment. On replay the cached profile
	// makes this free.
	counterparty := t.RecipientKey
	if profile, profileErr := sc.Run(ctx, NewFetchProfileTask(t.RecipientKey, t.profileTTL)); profileErr != nil {
		log.WithError(profileErr).WithField("key", t.RecipientKey).Warn("Profile lookup failed, using raw key")
	} else if m, ok := profile.(map[string]any); ok {
		if name, ok := m["display_name"].(string); ok && name != "" {
			counterparty = name
		}
	}

	if err = db.UpsertPaymentStatus(ctx, t.EventID, string(wallet.PaymentApproved)); err != nil {
		return nil, err
	}

	activeWallet, err := providers.Resolve[wallet.Wallet](sc.Providers(), providers.ActiveWalletProvider)
	if err != nil {
		return nil, err
	}
	preimage, sendErr := activeWallet.SendPayment(ctx, t.Bolt11)
	if sendErr != nil {
		log.WithError(sendErr).WithField("event_id", t.EventID).Error("Payment send failed")
		return t.settle(ctx, db, app, wallet.PaymentFailed, sendErr.Error())
	}

	if err = db.UpsertPaymentStatus(ctx, t.EventID, string(wallet.PaymentSent)); err != nil {
		return nil, err
	}
	if _, err = db.AddActivity(ctx, &store.Activity{
		Type:            string(wallet.ActivityPayment),
		Status:          string(wallet.ActivityStatusCompleted),
		EventID:         t.EventID,
		CounterpartyKey: counterparty,
		AmountMsat:      t.AmountMsat,
	}); err != nil {
		return nil, err
	}
	if err = app.ReplyToPaymentRequest(ctx, t.EventID, wallet.ReplySuccess, t.Bolt11); err != nil {
		return nil, err
	}

	return map[string]any{
		"paid":     true,
		"preimage": preimage,
	}, nil
}

// askUser suspends until the human decides. The suspension survives process
// death through the queue record: a replay re-derives this pending request
// from the top.
func (t *PayInvoiceTask) askUser(ctx context.Context, sc *task.Scope) (wallet.Decision, error) {
	prompt, err := providers.Resolve[wallet.PromptUser](sc.Providers(), providers.PromptUserProvider)
	if err != nil {
		return wallet.Decision{}, err
	}

	req := wallet.NewPendingRequest(wallet.RequestPayment, map[string]any{
		"event_id":    t.EventID,
		"bolt11":      t.Bolt11,
		"recipient":   t.RecipientKey,
		"amount_msat": t.AmountMsat,
	})
	if err = prompt.Ask(ctx, req); err != nil {
		return wallet.Decision{}, err
	}
	return req.Decision(ctx)
}

// settle records a terminal negative outcome and reports it back.
func (t *PayInvoiceTask) settle(ctx context.Context, db store.Store, app wallet.PortalApp, state wallet.PaymentState, reason string) (any, error) {
	if err := db.UpsertPaymentStatus(ctx, t.EventID, string(state)); err != nil {
		return nil, err
	}
	if _, err := db.AddActivity(ctx, &store.Activity{
		Type:            string(wallet.ActivityPayment),
		Status:          string(wallet.ActivityStatusFailed),
		EventID:         t.EventID,
		CounterpartyKey: t.RecipientKey,
		AmountMsat:      t.AmountMsat,
		Reason:          reason,
	}); err != nil {
		return nil, err
	}

	replyStatus := wallet.ReplyFailure
	if state == wallet.PaymentRejected {
		replyStatus = wallet.ReplyDeclined
	}
	if err := app.ReplyToPaymentRequest(ctx, t.EventID, replyStatus, ""); err != nil {
		return nil, err
	}

	return map[string]any{
		"paid":   false,
		"reason": reason,
	}, nil
}

// rejectionReason ...
func rejectionReason(d wallet.Decision) string {
	if d.Reason != "" {
		return d.Reason
	}
	return "rejected by user"
}
