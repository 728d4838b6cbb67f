package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"lchbot/pkg/logger"
)

// registration holds a plugin and its manager-owned lifecycle state.
// All fields besides handler and meta are guarded by the Manager's mutex.
type registration struct {
	handler Handler
	meta    Meta
	seq     int // registration order, the tie-break for equal priority
	state   State
	lastErr string
	// setupFailed marks plugins whose Setup failed: they stay registered
	// and visible but never receive events until explicitly enabled.
	setupFailed bool
}

func (r *registration) info() Info {
	return Info{
		ID:       r.meta.ID,
		Name:     r.meta.Name,
		Priority: r.meta.Priority,
		State:    r.state,
		Error:    r.lastErr,
	}
}

// Manager owns the registry of loaded plugins. It enforces unique IDs,
// tracks per-plugin lifecycle state and last error, and produces the ordered
// active list the dispatcher walks. Reads and writes follow a readers-writer
// discipline so concurrent dispatches never observe a half-applied
// registration.
type Manager struct {
	mu      sync.RWMutex
	regs    map[string]*registration
	nextSeq int
	store   StateStore
}

// NewManager creates an empty plugin manager. store may be nil; when set,
// the disabled-plugin set is persisted and re-applied on registration.
func NewManager(store StateStore) *Manager {
	return &Manager{
		regs:  make(map[string]*registration),
		store: store,
	}
}

// Register adds a plugin to the registry and runs its Setup. A duplicate ID
// fails the registration; a Setup failure does not — the plugin stays
// registered, visible and inert with state = error.
func (m *Manager) Register(ctx context.Context, h Handler) error {
	meta := h.Meta()
	if meta.ID == "" {
		return ErrEmptyID
	}

	m.mu.Lock()
	if _, exists := m.regs[meta.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, meta.ID)
	}
	reg := &registration{
		handler: h,
		meta:    meta,
		seq:     m.nextSeq,
		state:   StateActive,
	}
	m.nextSeq++
	m.regs[meta.ID] = reg
	m.mu.Unlock()

	// Setup runs outside the registry lock; plugins may do I/O here.
	if err := h.Setup(ctx); err != nil {
		m.mu.Lock()
		reg.state = StateError
		reg.lastErr = err.Error()
		reg.setupFailed = true
		m.mu.Unlock()
		logger.Error().
			Str("plugin", meta.ID).
			Err(err).
			Msg("plugin setup failed, registered as inert")
		return nil
	}

	if m.persistedDisabled(meta.ID) {
		m.mu.Lock()
		reg.state = StateDisabled
		m.mu.Unlock()
		logger.Info().Str("plugin", meta.ID).Msg("plugin registered disabled (persisted state)")
		return nil
	}

	logger.Info().
		Str("plugin", meta.ID).
		Str("name", meta.Name).
		Int("priority", meta.Priority).
		Msg("plugin registered")
	return nil
}

func (m *Manager) persistedDisabled(id string) bool {
	if m.store == nil {
		return false
	}
	ids, err := m.store.DisabledIDs()
	if err != nil {
		logger.Warn().Err(err).Msg("read persisted plugin state")
		return false
	}
	for _, disabled := range ids {
		if disabled == id {
			return true
		}
	}
	return false
}

// Unregister removes a plugin from the registry and the dispatch order.
// It returns false when the ID is unknown.
func (m *Manager) Unregister(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.regs[id]; !ok {
		return false
	}
	delete(m.regs, id)
	return true
}

// Enable transitions a plugin back to active, clearing any recorded error.
func (m *Manager) Enable(id string) error {
	if err := m.setState(id, StateActive); err != nil {
		return err
	}
	if m.store != nil {
		if err := m.store.SetDisabled(id, false); err != nil {
			logger.Warn().Str("plugin", id).Err(err).Msg("persist plugin state")
		}
	}
	return nil
}

// Disable takes a plugin out of the dispatch order until Enable is called.
func (m *Manager) Disable(id string) error {
	if err := m.setState(id, StateDisabled); err != nil {
		return err
	}
	if m.store != nil {
		if err := m.store.SetDisabled(id, true); err != nil {
			logger.Warn().Str("plugin", id).Err(err).Msg("persist plugin state")
		}
	}
	return nil
}

func (m *Manager) setState(id string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.regs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	reg.state = state
	if state == StateActive {
		reg.lastErr = ""
		reg.setupFailed = false
	}
	return nil
}

// setError records a handler failure. The plugin keeps its place in the
// dispatch order; the error state is observable through GetByID and the
// admin surface. Setup failures go through Register instead.
func (m *Manager) setError(id, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if reg, ok := m.regs[id]; ok {
		reg.state = StateError
		reg.lastErr = msg
	}
}

// GetByID returns the plugin info for the given ID.
func (m *Manager) GetByID(id string) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reg, ok := m.regs[id]
	if !ok {
		return Info{}, false
	}
	return reg.info(), true
}

// GetByName returns the plugin info for the given display name.
func (m *Manager) GetByName(name string) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, reg := range m.regs {
		if reg.meta.Name == name {
			return reg.info(), true
		}
	}
	return Info{}, false
}

// Active returns the plugins with state = active, sorted by priority
// ascending then registration order. The registration sequence is assigned
// once and survives disable/enable cycles.
func (m *Manager) Active() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var infos []Info
	for _, reg := range m.sortedLocked() {
		if reg.state == StateActive {
			infos = append(infos, reg.info())
		}
	}
	return infos
}

// All returns every registered plugin regardless of state, in dispatch order.
func (m *Manager) All() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.regs))
	for _, reg := range m.sortedLocked() {
		infos = append(infos, reg.info())
	}
	return infos
}

// dispatchable returns the ordered registrations the dispatcher should walk:
// everything except disabled plugins and setup failures. A plugin whose
// handler errored stays in the chain so one bad event does not silence it
// permanently.
func (m *Manager) dispatchable() []*registration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var regs []*registration
	for _, reg := range m.sortedLocked() {
		if reg.state == StateDisabled || reg.setupFailed {
			continue
		}
		regs = append(regs, reg)
	}
	return regs
}

// sortedLocked returns all registrations ordered by priority then seq.
// Callers must hold at least the read lock.
func (m *Manager) sortedLocked() []*registration {
	regs := make([]*registration, 0, len(m.regs))
	for _, reg := range m.regs {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].meta.Priority != regs[j].meta.Priority {
			return regs[i].meta.Priority < regs[j].meta.Priority
		}
		return regs[i].seq < regs[j].seq
	})
	return regs
}

// Count returns the number of registered plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.regs)
}
