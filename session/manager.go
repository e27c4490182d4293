package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"pdf_unmark/pdf"
)

const (
	DefaultMaxSessions = 256
	DefaultIdleTTL     = 30 * time.Minute
)

// Manager owns the live sessions. Sessions idle for longer than the TTL, or
// pushed out when the registry is full, are closed.
type Manager struct {
	sessions  *expirable.LRU[string, *Session]
	renderer  *pdf.Renderer
	processor Processor
	logger    zerolog.Logger
}

// NewManager creates a registry of at most maxSessions sessions, each expiring
// after idleTTL without use.
func NewManager(maxSessions int, idleTTL time.Duration, renderer *pdf.Renderer, proc Processor, logger zerolog.Logger) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	m := &Manager{
		renderer:  renderer,
		processor: proc,
		logger:    logger.With().Str("component", "sessions").Logger(),
	}
	m.sessions = expirable.NewLRU[string, *Session](maxSessions, m.onEvict, idleTTL)
	return m
}

// onEvict runs under the LRU lock. Closing waits for any in-flight render of
// the session's document, so it happens off that lock.
func (m *Manager) onEvict(id string, s *Session) {
	go func() {
		s.Close()
		m.logger.Debug().Str("session", id).Msg("session closed")
	}()
}

// Create starts an empty session.
func (m *Manager) Create() *Session {
	s := newSession(uuid.NewString(), m.renderer, m.processor, m.logger)
	m.sessions.Add(s.ID(), s)
	m.logger.Debug().Str("session", s.ID()).Msg("session created")
	return s
}

// Get returns the session and refreshes its idle deadline.
func (m *Manager) Get(id string) (*Session, bool) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, false
	}
	m.sessions.Add(id, s)
	return s, true
}

// Delete closes and forgets the session. It reports whether it existed.
func (m *Manager) Delete(id string) bool {
	return m.sessions.Remove(id)
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// Close evicts every session. Documents are released in the background.
func (m *Manager) Close() {
	m.sessions.Purge()
}
