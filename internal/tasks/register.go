// Package tasks holds the concrete task kinds the wallet's protocol
// listeners enqueue, and the explicit decode table that makes them
// resumable after a restart.
package tasks

import (
	"time"

	"walletqueue/internal/task"
)

// Task names as persisted in queue records. Renaming one orphans every
// record written under the old name.
const (
	TaskFetchProfile      = "fetch_profile"
	TaskFetchRate         = "fetch_rate"
	TaskCreateInvoice     = "create_invoice"
	TaskPayInvoice        = "pay_invoice"
	TaskAuthChallenge     = "auth_challenge"
	TaskReceiveCashu      = "receive_cashu"
	TaskCloseSubscription = "close_subscription"
)

// const ...
const (
	defaultProfileTTL        = 6 * time.Hour
	defaultRateTTL           = 5 * time.Minute
	defaultRelayPollInterval = 500 * time.Millisecond
	defaultRelayWaitTimeout  = 30 * time.Second
)

// Config carries the tunables tasks need when reconstructed from the
// persistent queue, where only their identity arguments are stored.
type Config struct {
	ProfileTTL        time.Duration
	RateTTL           time.Duration
	RelayPollInterval time.Duration
	RelayWaitTimeout  time.Duration
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		ProfileTTL:        defaultProfileTTL,
		RateTTL:           defaultRateTTL,
		RelayPollInterval: defaultRelayPollInterval,
		RelayWaitTimeout:  defaultRelayWaitTimeout,
	}
}

// All returns the complete decode table. This is the single registration
// point for task kinds: a kind missing here is unresumable after a crash,
// so additions to this package must land in this literal.
func All(cfg Config) map[string]task.DecodeFunc {
	return map[string]task.DecodeFunc{
		TaskFetchProfile: func(args []any) (task.Task, error) {
			profileKey, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			return NewFetchProfileTask(profileKey, cfg.ProfileTTL), nil
		},
		TaskFetchRate: func(args []any) (task.Task, error) {
			base, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			quote, err := argString(args, 1)
			if err != nil {
				return nil, err
			}
			return NewFetchRateTask(base, quote, cfg.RateTTL), nil
		},
		TaskCreateInvoice: func(args []any) (task.Task, error) {
			eventID, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			senderKey, err := argString(args, 1)
			if err != nil {
				return nil, err
			}
			description, err := argString(args, 2)
			if err != nil {
				return nil, err
			}
			amountMsat, err := argInt64(args, 3)
			if err != nil {
				return nil, err
			}
			deadline, err := argDeadline(args, 4)
			if err != nil {
				return nil, err
			}
			return NewCreateInvoiceTask(eventID, senderKey, description, amountMsat, deadline, cfg.RelayPollInterval, cfg.RelayWaitTimeout), nil
		},
		TaskPayInvoice: func(args []any) (task.Task, error) {
			eventID, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			bolt11, err := argString(args, 1)
			if err != nil {
				return nil, err
			}
			recipientKey, err := argString(args, 2)
			if err != nil {
				return nil, err
			}
			amountMsat, err := argInt64(args, 3)
			if err != nil {
				return nil, err
			}
			return NewPayInvoiceTask(eventID, bolt11, recipientKey, amountMsat, cfg.ProfileTTL), nil
		},
		TaskAuthChallenge: func(args []any) (task.Task, error) {
			eventID, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			serviceKey, err := argString(args, 1)
			if err != nil {
				return nil, err
			}
			domain, err := argString(args, 2)
			if err != nil {
				return nil, err
			}
			deadline, err := argDeadline(args, 3)
			if err != nil {
				return nil, err
			}
			return NewAuthChallengeTask(eventID, serviceKey, domain, deadline), nil
		},
		TaskReceiveCashu: func(args []any) (task.Task, error) {
			eventID, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			token, err := argString(args, 1)
			if err != nil {
				return nil, err
			}
			senderKey, err := argString(args, 2)
			if err != nil {
				return nil, err
			}
			return NewReceiveCashuTask(eventID, token, senderKey), nil
		},
		TaskCloseSubscription: func(args []any) (task.Task, error) {
			eventID, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			subscriptionID, err := argString(args, 1)
			if err != nil {
				return nil, err
			}
			merchantKey, err := argString(args, 2)
			if err != nil {
				return nil, err
			}
			schedule, err := argCalendar(args, 3)
			if err != nil {
				return nil, err
			}
			return NewCloseSubscriptionTask(eventID, subscriptionID, merchantKey, schedule), nil
		},
	}
}
