package proctor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type attemptKey struct {
	exam    uuid.UUID
	student uuid.UUID
}

// Manager is the registry of live lifecycles. One attempt per (exam, student).
type Manager struct {
	deps      Deps
	defaults  Settings
	retention time.Duration
	log       zerolog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Lifecycle
	attempts map[attemptKey]uuid.UUID
}

// NewManager creates a registry. Terminal lifecycles are evicted once they
// have been over for retention.
func NewManager(deps Deps, defaults Settings, retention time.Duration) *Manager {
	deps = deps.normalize()
	return &Manager{
		deps:      deps,
		defaults:  defaults.WithDefaults(Settings{}),
		retention: retention,
		log:       deps.Log.With().Str("component", "session_manager").Logger(),
		sessions:  make(map[uuid.UUID]*Lifecycle),
		attempts:  make(map[attemptKey]uuid.UUID),
	}
}

// Defaults returns the settings applied to zero fields of new attempts.
func (m *Manager) Defaults() Settings { return m.defaults }

// Start registers and starts a new attempt.
func (m *Manager) Start(ctx context.Context, opts StartOptions) (*Lifecycle, error) {
	if opts.ExamID == uuid.Nil || opts.StudentID == uuid.Nil {
		return nil, fmt.Errorf("%w: exam and student are required", ErrValidation)
	}
	opts.Settings = opts.Settings.WithDefaults(m.defaults)

	l := New(m.deps, opts)
	key := attemptKey{exam: opts.ExamID, student: opts.StudentID}

	m.mu.Lock()
	if _, exists := m.attempts[key]; exists {
		m.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	if _, exists := m.sessions[l.ID()]; exists {
		m.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	m.attempts[key] = l.ID()
	m.sessions[l.ID()] = l
	m.mu.Unlock()

	if _, err := l.Start(ctx); err != nil {
		m.remove(l)
		return nil, err
	}
	return l, nil
}

// Restore registers a rehydrated ACTIVE attempt. An attempt that is already
// live is returned as is.
func (m *Manager) Restore(opts RestoreOptions) (*Lifecycle, error) {
	m.mu.RLock()
	existing, ok := m.sessions[opts.Session.ID]
	m.mu.RUnlock()
	if ok {
		return existing, nil
	}

	opts.Settings = opts.Settings.WithDefaults(m.defaults)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[opts.Session.ID]; ok {
		return existing, nil
	}
	key := attemptKey{exam: opts.Session.ExamID, student: opts.Session.StudentID}
	if _, exists := m.attempts[key]; exists {
		return nil, ErrAlreadyStarted
	}

	l, err := Restore(m.deps, opts)
	if err != nil {
		return nil, err
	}
	m.attempts[key] = l.ID()
	m.sessions[l.ID()] = l
	return l, nil
}

// Get returns the live lifecycle of a session.
func (m *Manager) Get(id uuid.UUID) (*Lifecycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return l, nil
}

// Lookup finds the live attempt of a student in an exam.
func (m *Manager) Lookup(examID, studentID uuid.UUID) (*Lifecycle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.attempts[attemptKey{exam: examID, student: studentID}]
	if !ok {
		return nil, false
	}
	l, ok := m.sessions[id]
	return l, ok
}

// Live returns the overlay state of every registered attempt of an exam.
func (m *Manager) Live(examID uuid.UUID) []LiveState {
	m.mu.RLock()
	lcs := make([]*Lifecycle, 0, len(m.sessions))
	for _, l := range m.sessions {
		if l.ExamID() == examID {
			lcs = append(lcs, l)
		}
	}
	m.mu.RUnlock()

	out := make([]LiveState, 0, len(lcs))
	for _, l := range lcs {
		out = append(out, l.State())
	}
	return out
}

// Len returns the number of registered lifecycles.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) remove(l *Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, l.ID())
	key := attemptKey{exam: l.ExamID(), student: l.StudentID()}
	if m.attempts[key] == l.ID() {
		delete(m.attempts, key)
	}
}

// Run evicts terminal lifecycles until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	interval := m.retention
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}

	m.log.Info().Dur("retention", m.retention).Msg("Session janitor started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("Session janitor stopped")
			return
		case <-ticker.C:
			if n := m.Evict(m.deps.Now()); n > 0 {
				m.log.Debug().Int("evicted", n).Msg("Evicted finished sessions")
			}
		}
	}
}

// Evict drops lifecycles that ended more than retention before now.
// Evicted attempts are still unique through the persisted session row.
func (m *Manager) Evict(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, l := range m.sessions {
		s := l.Snapshot()
		if !s.Status.Terminal() || s.EndTime == nil || now.Sub(*s.EndTime) < m.retention {
			continue
		}
		delete(m.sessions, id)
		delete(m.attempts, attemptKey{exam: s.ExamID, student: s.StudentID})
		evicted++
	}
	return evicted
}

// Close suspends every live attempt without finalizing it, so a restarted
// server can restore them.
func (m *Manager) Close() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.sessions {
		l.suspend()
	}
}
