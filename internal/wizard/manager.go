package wizard

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/govlens/assessment-console/internal/models"
)

// Manager owns all open wizard sessions, keyed by session id
type Manager struct {
	mu      sync.RWMutex
	wizards map[string]*Wizard

	platform  PlatformAPI
	catalog   TypeCatalog
	recorder  Recorder
	onCreated func(*models.Assessment)
	idleTTL   time.Duration
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithRecorder wires the submission audit trail
func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithOnCreated registers the hook fired once per created assessment, in
// request-issue order
func WithOnCreated(fn func(*models.Assessment)) ManagerOption {
	return func(m *Manager) {
		m.onCreated = fn
	}
}

// WithIdleTTL overrides how long an untouched session survives before the
// reaper removes it
func WithIdleTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.idleTTL = ttl
	}
}

// NewManager creates a wizard session manager
func NewManager(platform PlatformAPI, catalog TypeCatalog, opts ...ManagerOption) *Manager {
	m := &Manager{
		wizards:  make(map[string]*Wizard),
		platform: platform,
		catalog:  catalog,
		idleTTL:  30 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open creates a new wizard session. A non-nil client pre-selects it and
// starts its environment load immediately, as when the wizard is launched
// from a client detail page.
func (m *Manager) Open(client *models.Client) *Wizard {
	id := uuid.New().String()
	w := newWizard(id, m.platform, m.catalog, m.recorder, m.onCreated)

	m.mu.Lock()
	m.wizards[id] = w
	m.mu.Unlock()

	if client != nil {
		if _, err := w.SelectClient(*client); err != nil {
			slog.Warn("pre-selecting client on open failed", "wizard", id, "error", err)
		}
	}

	slog.Info("wizard opened", "wizard", id, "preselected", client != nil)
	return w
}

// Get looks up an open session
func (m *Manager) Get(id string) (*Wizard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wizards[id]
	if !ok {
		return nil, ErrWizardNotFound
	}
	return w, nil
}

// Close dismisses a session and discards its state
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	w, ok := m.wizards[id]
	if ok {
		delete(m.wizards, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrWizardNotFound
	}

	w.Close()
	slog.Info("wizard closed", "wizard", id)
	return nil
}

// Remove drops a session from the registry without resetting it. Used after
// a successful submit, where the wizard has already closed itself.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.wizards, id)
	m.mu.Unlock()
}

// Count returns the number of open sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.wizards)
}

// ReapIdle closes sessions idle past the TTL and returns how many were
// removed. Sessions with a submit in flight are skipped.
func (m *Manager) ReapIdle() int {
	cutoff := time.Now().Add(-m.idleTTL)

	m.mu.Lock()
	var stale []*Wizard
	for id, w := range m.wizards {
		if w.Submitting() {
			continue
		}
		if w.IdleSince().Before(cutoff) {
			stale = append(stale, w)
			delete(m.wizards, id)
		}
	}
	m.mu.Unlock()

	for _, w := range stale {
		w.Close()
		slog.Info("reaped idle wizard", "wizard", w.ID())
	}
	return len(stale)
}
