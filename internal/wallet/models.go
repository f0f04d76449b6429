package wallet

import "time"

// ActivityType classifies rows in the activity feed.
type ActivityType string

// const ...
const (
	ActivityPayment      ActivityType = "payment"
	ActivityInvoice      ActivityType = "invoice"
	ActivityCashu        ActivityType = "cashu"
	ActivitySubscription ActivityType = "subscription"
)

// ActivityStatus is the user-visible lifecycle of an activity row.
// Failed rows always carry a human-readable reason; nothing is left
// permanently pending.
type ActivityStatus string

// const ...
const (
	ActivityStatusPending   ActivityStatus = "pending"
	ActivityStatusCompleted ActivityStatus = "completed"
	ActivityStatusFailed    ActivityStatus = "failed"
)

// Activity is one row of the wallet's activity feed.
type Activity struct {
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Type            ActivityType   `json:"type"`
	Status          ActivityStatus `json:"status"`
	EventID         string         `json:"event_id"`
	CounterpartyKey string         `json:"counterparty_key,omitempty"`
	Currency        string         `json:"currency,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	AmountMsat      int64          `json:"amount_msat"`
	ID              int64          `json:"id"`
}

// PaymentState tracks a payment request through approval and settlement.
type PaymentState string

// const ...
const (
	PaymentRequested PaymentState = "requested"
	PaymentApproved  PaymentState = "approved"
	PaymentSent      PaymentState = "sent"
	PaymentFailed    PaymentState = "failed"
	PaymentRejected  PaymentState = "rejected"
)

// ReplyStatus is the outcome reported back to a protocol request.
type ReplyStatus string

// const ...
const (
	ReplyApproved ReplyStatus = "approved"
	ReplyDeclined ReplyStatus = "declined"
	ReplySuccess  ReplyStatus = "success"
	ReplyFailure  ReplyStatus = "failure"
	ReplyClosed   ReplyStatus = "closed"
)

// Profile is a remote user's public profile.
type Profile struct {
	Key         string `json:"key"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Picture     string `json:"picture,omitempty"`
}

// Invoice is a freshly created Lightning invoice.
type Invoice struct {
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Bolt11      string     `json:"bolt11"`
	PaymentHash string     `json:"payment_hash"`
	AmountMsat  int64      `json:"amount_msat"`
}

// RelayStatus reports connectivity of one relay.
type RelayStatus struct {
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
}
