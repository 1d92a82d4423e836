package exchange

import (
	"fmt"
	"sync"
)

// Container is a thread-safe registry for managing multiple venue adapters.
// It lets callers resolve adapters by name instead of wiring concrete types.
type Container struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewContainer creates and returns a new empty adapter container.
func NewContainer() *Container {
	return &Container{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter to the container with the given name.
// If an adapter with the same name exists, it will be overwritten.
func (c *Container) Register(name string, a Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters[name] = a
}

// Get retrieves an adapter by name.
// Returns an error if no adapter is registered with the given name.
func (c *Container) Get(name string) (Adapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, exists := c.adapters[name]
	if !exists {
		return nil, fmt.Errorf("adapter %q not found", name)
	}
	return a, nil
}

// Names returns a list of all registered adapter names.
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.adapters))
	for name := range c.adapters {
		names = append(names, name)
	}
	return names
}

// Unregister removes an adapter from the container by name.
func (c *Container) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.adapters, name)
}

// Exists checks whether an adapter with the given name is registered.
func (c *Container) Exists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.adapters[name]
	return exists
}

// CloseAll closes every registered adapter and clears the container.
// The first error encountered is returned; all adapters are still closed.
func (c *Container) CloseAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for name, a := range c.adapters {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s: %w", name, err)
		}
	}
	c.adapters = make(map[string]Adapter)
	return firstErr
}
