package config

import (
	"fmt"
	"sync"
)

// Saver persists a configuration. *Store implements it.
type Saver interface {
	Save(cfg Config) error
}

// Handle is the shared, lock-guarded view of the current configuration.
// Readers always receive a copy.
type Handle struct {
	mu      sync.RWMutex
	current Config
	saver   Saver
}

// NewHandle wraps an initial configuration. saver may be nil, in which case
// updates are kept in memory only.
func NewHandle(initial Config, saver Saver) *Handle {
	return &Handle{current: initial.Clone(), saver: saver}
}

// Get returns a copy of the current configuration.
func (h *Handle) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Clone()
}

// Apply runs update on a copy of the configuration, validates and persists
// the result, and only then makes it current. On error the previous
// configuration stays in place.
func (h *Handle) Apply(update func(*Config)) (Config, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.current.Clone()
	update(&next)
	next = next.Normalize()

	if err := next.Validate(); err != nil {
		return Config{}, err
	}

	if h.saver != nil {
		if err := h.saver.Save(next); err != nil {
			return Config{}, fmt.Errorf("failed to persist config: %w", err)
		}
	}

	h.current = next
	return next.Clone(), nil
}
