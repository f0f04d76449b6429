package tasks

import (
	"context"
	"time"

	"walletqueue/internal/providers"
	"walletqueue/internal/task"
	"walletqueue/internal/wallet"
)

// FetchRateTask memoizes a fiat exchange-rate quote. Rates go stale fast,
// so the TTL is short; within it, every conversion on screen shares one
// upstream fetch.
type FetchRateTask struct {
	Base  string
	Quote string
	ttl   time.Duration
}

// NewFetchRateTask ...
func NewFetchRateTask(base, quote string, ttl time.Duration) *FetchRateTask {
	return &FetchRateTask{Base: base, Quote: quote, ttl: ttl}
}

// Name ...
func (t *FetchRateTask) Name() string {
	return TaskFetchRate
}

// Dependencies ...
func (t *FetchRateTask) Dependencies() []providers.Name {
	return []providers.Name{providers.RateSourceProvider}
}

// Args ...
func (t *FetchRateTask) Args() []any {
	return []any{t.Base, t.Quote}
}

// Expiry ...
func (t *FetchRateTask) Expiry() task.Expiry {
	return task.ExpiresIn(t.ttl)
}

// Execute ...
func (t *FetchRateTask) Execute(ctx context.Context, sc *task.Scope) (any, error) {
	source, err := providers.Resolve[wallet.RateSource](sc.Providers(), providers.RateSourceProvider)
	if err != nil {
		return nil, err
	}

	rate, err := source.Rate(ctx, t.Base, t.Quote)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"base":  t.Base,
		"quote": t.Quote,
		"rate":  rate,
	}, nil
}
