package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Atoilah/vcf-confreter/core/logger"
)

// Manager tracks the active flow of every user in memory.
type Manager[F Flow] struct {
	mu       sync.Mutex
	sessions map[int64]*entry[F]
	ttl      time.Duration
	now      func() time.Time
}

// NewManager returns a manager that expires idle flows after ttl (0 disables expiry).
func NewManager[F Flow](ttl time.Duration) *Manager[F] {
	return &Manager[F]{
		sessions: make(map[int64]*entry[F]),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Start registers f as the user's active flow and returns the flow it replaced, if any.
func (m *Manager[F]) Start(userID int64, f F) (F, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var prev F
	old, ok := m.sessions[userID]
	if ok {
		prev = old.flow
	}
	m.sessions[userID] = &entry[F]{flow: f, touched: m.now()}
	return prev, ok
}

// Get returns the user's active flow and marks it as recently used.
func (m *Manager[F]) Get(userID int64) (F, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[userID]
	if !ok {
		var zero F
		return zero, false
	}
	e.touched = m.now()
	return e.flow, true
}

// Acquire returns the user's active flow and holds it against expiry until
// release is called. Release restarts the idle clock, so the wait for the
// user's next reply starts when the step ends.
func (m *Manager[F]) Acquire(userID int64) (f F, release func(), ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[userID]
	if !ok {
		return f, func() {}, false
	}
	return e.flow, m.hold(e), true
}

// Hold holds f against expiry like Acquire. It is a no-op when f is no
// longer the user's active flow.
func (m *Manager[F]) Hold(userID int64, f F) (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[userID]
	if !ok || any(e.flow) != any(f) {
		return func() {}
	}
	return m.hold(e)
}

// hold must be called with m.mu held.
func (m *Manager[F]) hold(e *entry[F]) func() {
	e.holds++
	e.touched = m.now()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			e.holds--
			e.touched = m.now()
			m.mu.Unlock()
		})
	}
}

// Finish removes f if it is still the user's active flow.
func (m *Manager[F]) Finish(userID int64, f F) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[userID]; ok && any(e.flow) == any(f) {
		delete(m.sessions, userID)
	}
}

// Clear removes and returns whatever flow the user has.
func (m *Manager[F]) Clear(userID int64) (F, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[userID]
	if !ok {
		var zero F
		return zero, false
	}
	delete(m.sessions, userID)
	return e.flow, true
}

// InProgress reports whether the user currently has an active flow.
func (m *Manager[F]) InProgress(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[userID]
	return ok
}

// Len returns the number of active flows.
func (m *Manager[F]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep expires flows idle for longer than the ttl. Held and busy flows are
// skipped. Expire runs outside the lock.
func (m *Manager[F]) Sweep(ctx context.Context) int {
	if m.ttl <= 0 {
		return 0
	}
	now := m.now()

	m.mu.Lock()
	var expired []F
	for id, e := range m.sessions {
		if e.holds > 0 || e.flow.Busy() || now.Sub(e.touched) < m.ttl {
			continue
		}
		expired = append(expired, e.flow)
		delete(m.sessions, id)
		logger.Debug(ctx, "session", "flow.expired",
			slog.Int64("user_id", id),
			slog.String("flow", e.flow.Name()),
			slog.Duration("idle_duration", now.Sub(e.touched)),
		)
	}
	m.mu.Unlock()

	for _, f := range expired {
		f.Expire(ctx)
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done.
func (m *Manager[F]) Run(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = m.ttl / 4
		if interval < time.Second {
			interval = time.Second
		}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}
