package tracker

import (
	"sync"
	"time"
)

// Manager owns one tracker per assessment and deduplicates Track calls
type Manager struct {
	mu       sync.Mutex
	trackers map[string]*Tracker

	fetcher    StatusFetcher
	interval   time.Duration
	grace      time.Duration
	onComplete func(assessmentID string)
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithInterval overrides the poll interval
func WithInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.interval = d
	}
}

// WithGraceDelay overrides the pause between a completed snapshot and the
// completion hook
func WithGraceDelay(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.grace = d
	}
}

// WithOnComplete registers the hook fired once per assessment that finishes
// successfully
func WithOnComplete(fn func(assessmentID string)) ManagerOption {
	return func(m *Manager) {
		m.onComplete = fn
	}
}

// NewManager creates a tracker manager
func NewManager(fetcher StatusFetcher, opts ...ManagerOption) *Manager {
	m := &Manager{
		trackers: make(map[string]*Tracker),
		fetcher:  fetcher,
		interval: 5 * time.Second,
		grace:    1500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Track begins polling an assessment. Tracking an assessment that is already
// tracked returns the existing tracker.
func (m *Manager) Track(assessmentID string) *Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.trackers[assessmentID]; ok {
		return t
	}

	t := newTracker(assessmentID, m.fetcher, m.interval, m.grace, m.onComplete)
	m.trackers[assessmentID] = t
	go func() {
		t.run()
		m.reap(assessmentID, t)
	}()
	return t
}

// reap drops a tracker whose poll loop has exited. The identity check keeps
// a late reap from removing a replacement tracker for the same assessment.
func (m *Manager) reap(assessmentID string, t *Tracker) {
	m.mu.Lock()
	if cur, ok := m.trackers[assessmentID]; ok && cur == t {
		delete(m.trackers, assessmentID)
	}
	m.mu.Unlock()
}

// Get returns the tracker for an assessment, if any
func (m *Manager) Get(assessmentID string) (*Tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[assessmentID]
	if !ok {
		return nil, ErrNotTracked
	}
	return t, nil
}

// ViewResults fires the completion hook for a completed assessment ahead of
// the grace delay and ends tracking. Returns the final snapshot.
func (m *Manager) ViewResults(assessmentID string) (Progress, error) {
	m.mu.Lock()
	t, ok := m.trackers[assessmentID]
	m.mu.Unlock()

	if !ok {
		return Progress{}, ErrNotTracked
	}
	p := t.Latest()
	if err := t.ViewResults(); err != nil {
		return Progress{}, err
	}
	return p, nil
}

// Stop cancels tracking for one assessment
func (m *Manager) Stop(assessmentID string) error {
	m.mu.Lock()
	t, ok := m.trackers[assessmentID]
	if ok {
		delete(m.trackers, assessmentID)
	}
	m.mu.Unlock()

	if !ok {
		return ErrNotTracked
	}
	t.Stop()
	return nil
}

// StopAll cancels every active tracker; used during shutdown
func (m *Manager) StopAll() {
	m.mu.Lock()
	all := make([]*Tracker, 0, len(m.trackers))
	for _, t := range m.trackers {
		all = append(all, t)
	}
	m.trackers = make(map[string]*Tracker)
	m.mu.Unlock()

	for _, t := range all {
		t.Stop()
	}
}

// Count returns the number of active trackers
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trackers)
}
