package tasks

import (
	"context"
	"time"

	"walletqueue/internal/providers"
	"walletqueue/internal/task"
	"walletqueue/internal/wallet"
)

// FetchProfileTask memoizes a remote profile lookup. Profiles change
// rarely, so the cached result carries a long TTL and repeated lookups for
// the same key cost nothing.
type FetchProfileTask struct {
	ProfileKey string
	ttl        time.Duration
}

// NewFetchProfileTask ...
func NewFetchProfileTask(profileKey string, ttl time.Duration) *FetchProfileTask {
	return &FetchProfileTask{ProfileKey: profileKey, ttl: ttl}
}

// Name ...
func (t *FetchProfileTask) Name() string {
	return TaskFetchProfile
}

// Dependencies ...
func (t *FetchProfileTask) Dependencies() []providers.Name {
	return []providers.Name{providers.PortalAppInterface}
}

// Args ...
func (t *FetchProfileTask) Args() []any {
	return []any{t.ProfileKey}
}

// Expiry ...
func (t *FetchProfileTask) Expiry() task.Expiry {
	return task.ExpiresIn(t.ttl)
}

// Execute ...
func (t *FetchProfileTask) Execute(ctx context.Context, sc *task.Scope) (any, error) {
	app, err := providers.Resolve[wallet.PortalApp](sc.Providers(), providers.PortalAppInterface)
	if err != nil {
		return nil, err
	}

	profile, err := app.FetchProfile(ctx, t.ProfileKey)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"key":          profile.Key,
		"name":         profile.Name,
		"display_name": profile.DisplayName,
		"picture":      profile.Picture,
	}, nil
}
