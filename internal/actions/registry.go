// Package actions resolves workflow step action labels into handlers.
package actions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownAction is returned when no handler is registered for an action.
var ErrUnknownAction = errors.New("actions: unknown action")

// Request carries the step data a handler needs.
type Request struct {
	StepID string
	Action string
	With   map[string]any
}

// Handler executes one step action.
type Handler func(ctx context.Context, req Request) (any, error)

// Registry maintains known action handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register installs a handler. Returns an error if the name already exists.
func (r *Registry) Register(name string, handler Handler) error {
	name = normalizeName(name)
	if name == "" {
		return fmt.Errorf("actions: name is required")
	}
	if handler == nil {
		return fmt.Errorf("actions: handler is required for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("actions: %s already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(name string, handler Handler) {
	if err := r.Register(name, handler); err != nil {
		panic(err)
	}
}

// Resolve returns the handler for an action.
func (r *Registry) Resolve(name string) (Handler, error) {
	key := normalizeName(name)
	r.mu.RLock()
	handler, ok := r.handlers[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return handler, nil
}

// Names returns a sorted list of registered actions.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
