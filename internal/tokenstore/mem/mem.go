// Package mem is an in-memory token store for tests and single-process use.
package mem

import (
	"context"
	"sync"

	"github.com/vicinity-chat/vicinity-go/internal/tokenstore"
)

// Mem is an in-memory tokenstore.Store.
type Mem struct {
	mu     sync.RWMutex
	values map[string]string
}

// New returns an empty in-memory store.
func New() *Mem {
	return &Mem{values: make(map[string]string)}
}

// Get returns the value for key or tokenstore.ErrNotFound.
func (m *Mem) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", tokenstore.ErrNotFound
	}
	return v, nil
}

// Set stores value under key.
func (m *Mem) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (m *Mem) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
