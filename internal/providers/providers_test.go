package providers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRelays struct{ urls []string }

func TestRegisterAndGet(t *testing.T) {
	c := New()

	_, ok := c.Get(RelayStatusesProvider)
	assert.False(t, ok)

	first := &fakeRelays{urls: []string{"wss://relay.one"}}
	c.Register(RelayStatusesProvider, first)
	got, ok := c.Get(RelayStatusesProvider)
	require.True(t, ok)
	assert.Same(t, first, got)

	// Last write wins; logout/reset flows re-register over the old one.
	second := &fakeRelays{urls: []string{"wss://relay.two"}}
	c.Register(RelayStatusesProvider, second)
	got, ok = c.Get(RelayStatusesProvider)
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestResolve(t *testing.T) {
	c := New()
	c.Register(RelayStatusesProvider, &fakeRelays{})

	relays, err := Resolve[*fakeRelays](c, RelayStatusesProvider)
	require.NoError(t, err)
	assert.NotNil(t, relays)

	_, err = Resolve[*fakeRelays](c, PromptUserProvider)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderNotFound))

	_, err = Resolve[string](c, RelayStatusesProvider)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProviderNotFound)
}
