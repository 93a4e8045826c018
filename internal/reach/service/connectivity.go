package service

import (
	"sync"
	"sync/atomic"
)

// Connectivity tracks whether the hosted backend is reachable. The signal
// comes from the embedding application (platform reachability APIs, failed
// request heuristics); the workflow only consumes it. Hooks registered via
// OnReconnect fire once per offline→online transition.
type Connectivity struct {
	online atomic.Bool

	mu          sync.Mutex
	onReconnect []func()
}

// NewConnectivity creates a connectivity tracker with the given initial state.
func NewConnectivity(initialOnline bool) *Connectivity {
	c := &Connectivity{}
	c.online.Store(initialOnline)
	return c
}

// Online reports whether the backend is currently considered reachable.
func (c *Connectivity) Online() bool {
	return c.online.Load()
}

// SetOnline updates the state. Transitioning from offline to online fires
// the reconnect hooks.
func (c *Connectivity) SetOnline(online bool) {
	was := c.online.Swap(online)
	if online && !was {
		c.mu.Lock()
		hooks := append([]func(){}, c.onReconnect...)
		c.mu.Unlock()
		for _, fn := range hooks {
			fn()
		}
	}
}

// OnReconnect registers a hook invoked on every offline→online transition.
func (c *Connectivity) OnReconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = append(c.onReconnect, fn)
}
