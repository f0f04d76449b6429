// Package wallet defines the domain model of the queue engine and the
// interfaces of its external collaborators. The Lightning SDK, the Nostr
// protocol library and the Cashu library live behind these interfaces;
// the engine never imports them directly.
package wallet

import "context"

// PortalApp is the protocol-side collaborator: it can look up remote
// profiles and reply to inbound requests on behalf of the local user.
type PortalApp interface {
	FetchProfile(ctx context.Context, key string) (*Profile, error)
	ReplyToPaymentRequest(ctx context.Context, eventID string, status ReplyStatus, bolt11 string) error
	ReplyToAuthChallenge(ctx context.Context, eventID string, status ReplyStatus) error
	ReplyToSubscriptionRequest(ctx context.Context, eventID string, status ReplyStatus) error
	ReplyToCashuRequest(ctx context.Context, eventID string, status ReplyStatus) error
	ReplyToConnectRequest(ctx context.Context, eventID string, status ReplyStatus) error
}

// Wallet is the active Lightning wallet.
type Wallet interface {
	SendPayment(ctx context.Context, bolt11 string) (preimage string, err error)
	CreateInvoice(ctx context.Context, amountMsat int64, description string) (*Invoice, error)
	Balance(ctx context.Context) (msat int64, err error)
}

// CashuWallet redeems e-cash tokens.
type CashuWallet interface {
	ReceiveToken(ctx context.Context, token string) (amountMsat int64, err error)
}

// RelayStatuses reports current relay connectivity.
type RelayStatuses interface {
	Statuses() []RelayStatus
}

// PromptUser surfaces a pending decision to the human, either as a
// foreground approval card or a push notification. Ask must not block;
// the task waits on the request's Decision.
type PromptUser interface {
	Ask(ctx context.Context, req *PendingRequest) error
}

// NostrStore persists raw protocol events for later rendering.
type NostrStore interface {
	SaveEvent(ctx context.Context, eventID string, payload map[string]any) error
}

// RateSource quotes fiat exchange rates. The HTTP fetching behind it is
// out of scope here; tasks only memoize its answers.
type RateSource interface {
	Rate(ctx context.Context, base, quote string) (float64, error)
}
