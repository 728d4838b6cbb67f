// Package plugin provides the handler contract, the lifecycle-tracking
// registry and the priority-ordered event dispatcher.
package plugin

import (
	"context"

	"lchbot/internal/event"
)

// State is a plugin's lifecycle state.
type State string

// Lifecycle states.
const (
	StateActive   State = "active"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Meta is a plugin's identity. Priority orders dispatch: lower values run
// first, ties broken by registration order.
type Meta struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// Handler is the contract every plugin implements. Each entry point receives
// a normalized event of the matching kind and reports whether it consumed the
// event; a returned error is isolated by the dispatcher and never crashes the
// chain. Handlers must treat the event as read-only.
type Handler interface {
	Meta() Meta
	// Setup is invoked once at registration. A failure leaves the plugin
	// registered but inert with state = error.
	Setup(ctx context.Context) error
	HandleMessage(ctx context.Context, ev *event.Event) (bool, error)
	HandleNotice(ctx context.Context, ev *event.Event) (bool, error)
	HandleRequest(ctx context.Context, ev *event.Event) (bool, error)
}

// Base provides no-op handler entry points so plugins only implement the
// kinds they care about.
type Base struct{}

func (Base) Setup(ctx context.Context) error { return nil }

func (Base) HandleMessage(ctx context.Context, ev *event.Event) (bool, error) {
	return false, nil
}

func (Base) HandleNotice(ctx context.Context, ev *event.Event) (bool, error) {
	return false, nil
}

func (Base) HandleRequest(ctx context.Context, ev *event.Event) (bool, error) {
	return false, nil
}

// Info is a read-only snapshot of a registered plugin's identity and
// lifecycle state.
type Info struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	State    State  `json:"state"`
	Error    string `json:"error,omitempty"`
}

// StateStore persists plugin lifecycle decisions across restarts. Implemented
// by the sqlite-backed storage package; a nil store keeps state in memory
// only.
type StateStore interface {
	DisabledIDs() ([]string, error)
	SetDisabled(id string, disabled bool) error
}
