// Package providers holds the runtime collaborators tasks execute against.
// The container is constructed at bootstrap and passed in explicitly, so
// tests get a fresh set of registrations instead of sharing process globals.
package providers

import (
	"errors"
	"fmt"
	"sync"
)

// Name identifies a registered collaborator.
type Name string

// const ...
const (
	DatabaseService            Name = "DatabaseService"
	PortalAppInterface         Name = "PortalAppInterface"
	ActiveWalletProvider       Name = "ActiveWalletProvider"
	RelayStatusesProvider      Name = "RelayStatusesProvider"
	PromptUserProvider         Name = "PromptUserProvider"
	NostrStoreService          Name = "NostrStoreService"
	CashuWalletMethodsProvider Name = "CashuWalletMethodsProvider"
	RateSourceProvider         Name = "RateSourceProvider"
)

// ErrProviderNotFound means a task declared a dependency nobody registered.
// This is a configuration error, not a retryable one.
var ErrProviderNotFound = errors.New("provider not found")

// Container is a named registry of live collaborator instances.
// Registration is last-write-wins; logout/reset flows simply re-register.
type Container struct {
	mu      sync.RWMutex
	entries map[Name]any
}

// New ...
func New() *Container {
	return &Container{entries: make(map[Name]any)}
}

// Register stores instance under name, replacing any previous registration.
func (c *Container) Register(name Name, instance any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = instance
}

// Get returns the registered instance, if any.
func (c *Container) Get(name Name) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	instance, ok := c.entries[name]
	return instance, ok
}

// Resolve fetches a registration and asserts its type.
func Resolve[T any](c *Container, name Name) (T, error) {
	var zero T
	instance, ok := c.Get(name)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("provider %s is %T, want %T", name, instance, zero)
	}
	return typed, nil
}
