package tasks

import (
	"context"
	"time"

	"walletqueue/internal/providers"
	"walletqueue/internal/task"
	"walletqueue/internal/wallet"
)

// AuthChallengeTask answers a login challenge from a remote service: show
// the approval card, wait for the decision, reply either way. The memoized
// outcome means a replayed challenge never prompts twice.
type AuthChallengeTask struct {
	EventID    string
	ServiceKey string
	Domain     string
	// EventExpiresAt is the challenge's deadline in unix millis, 0 for none.
	EventExpiresAt int64
}

// NewAuthChallengeTask ...
func NewAuthChallengeTask(eventID, serviceKey, domain string, eventExpiresAt *time.Time) *AuthChallengeTask {
	t := &AuthChallengeTask{EventID: eventID, ServiceKey: serviceKey, Domain: domain}
	if eventExpiresAt != nil {
		t.EventExpiresAt = eventExpiresAt.UnixMilli()
	}
	return t
}

// Name ...
func (t *AuthChallengeTask) Name() string {
	return TaskAuthChallenge
}

// Dependencies ...
func (t *AuthChallengeTask) Dependencies() []providers.Name {
	return []providers.Name{providers.PortalAppInterface, providers.PromptUserProvider}
}

// Args ...
func (t *AuthChallengeTask) Args() []any {
	return []any{t.EventID, t.ServiceKey, t.Domain, t.EventExpiresAt}
}

// Expiry ...
func (t *AuthChallengeTask) Expiry() task.Expiry {
	if t.EventExpiresAt > 0 {
		return task.ExpiresAt(time.UnixMilli(t.EventExpiresAt))
	}
	return task.Forever()
}

// Execute ...
func (t *AuthChallengeTask) Execute(ctx context.Context, sc *task.Scope) (any, error) {
	prompt, err := providers.Resolve[wallet.PromptUser](sc.Providers(), providers.PromptUserProvider)
	if err != nil {
		return nil, err
	}
	app, err := providers.Resolve[wallet.PortalApp](sc.Providers(), providers.PortalAppInterface)
	if err != nil {
		return nil, err
	}

	req := wallet.NewPendingRequest(wallet.RequestLogin, map[string]any{
		"event_id":    t.EventID,
		"service_key": t.ServiceKey,
		"domain":      t.Domain,
	})
	if err = prompt.Ask(ctx, req); err != nil {
		return nil, err
	}
	decision, err := req.Decision(ctx)
	if err != nil {
		return nil, err
	}

	status := wallet.ReplyDeclined
	if decision.Approved {
		status = wallet.ReplyApproved
	}
	if err = app.ReplyToAuthChallenge(ctx, t.EventID, status); err != nil {
		return nil, err
	}

	return map[string]any{"approved": decision.Approved}, nil
}
