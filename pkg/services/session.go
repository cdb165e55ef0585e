package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/apperrors"
)

const (
	defaultHistoryLimit         = 20
	defaultResolutionCacheLimit = 10
)

// Turn is one question/answer exchange in a session's history. SQL is
// empty for turns that ended in a clarification instead of a statement.
type Turn struct {
	Question string    `json:"question"`
	SQL      string    `json:"sql,omitempty"`
	At       time.Time `json:"at"`
}

// Session holds the conversational state of one client: a bounded
// history window, a bounded cache of recent resolutions keyed by
// ResolutionCacheKey, and the most recent resolution.
//
// A session serves one request at a time. Callers take Lock for the
// duration of a turn; every other method expects the lock to be held.
type Session struct {
	ID string

	mu sync.Mutex

	history    []Turn
	historyCap int

	resolutions map[string]*Resolution
	order       []string
	cacheCap    int

	lastResolution *Resolution

	// lastSeen is guarded by the owning SessionManager's mutex, not the
	// session's.
	lastSeen time.Time
}

// Lock serializes turns on the session.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the turn lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// RecordTurn appends a turn, dropping the oldest once the history
// window is full.
func (s *Session) RecordTurn(t Turn) {
	if t.At.IsZero() {
		t.At = time.Now()
	}
	s.history = append(s.history, t)
	if over := len(s.history) - s.historyCap; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// History returns a copy of the session's turn window, oldest first.
func (s *Session) History() []Turn {
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// RecentTurns returns a copy of the most recent n turns, oldest first.
func (s *Session) RecentTurns(n int) []Turn {
	if n <= 0 || len(s.history) == 0 {
		return nil
	}
	if n > len(s.history) {
		n = len(s.history)
	}
	out := make([]Turn, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// CachedResolution looks up a previously stored resolution.
func (s *Session) CachedResolution(key string) (*Resolution, bool) {
	r, ok := s.resolutions[key]
	return r, ok
}

// StoreResolution caches a resolution under key. When the cache is
// full the oldest entry is evicted; storing under an existing key
// replaces the value without changing its age.
func (s *Session) StoreResolution(key string, r *Resolution) {
	if _, ok := s.resolutions[key]; ok {
		s.resolutions[key] = r
		return
	}
	if len(s.order) >= s.cacheCap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.resolutions, oldest)
	}
	s.order = append(s.order, key)
	s.resolutions[key] = r
}

// LastResolution returns the most recent resolution of this session,
// or nil before the first resolved turn.
func (s *Session) LastResolution() *Resolution { return s.lastResolution }

// SetLastResolution records the resolution a completed turn used.
func (s *Session) SetLastResolution(r *Resolution) { s.lastResolution = r }

// ResolutionCacheKey derives the session cache key for one (question,
// sql) pair.
func ResolutionCacheKey(question, sqlText string) string {
	h := sha256.New()
	h.Write([]byte(question))
	h.Write([]byte{0})
	h.Write([]byte(sqlText))
	return hex.EncodeToString(h.Sum(nil))
}

// SessionManager owns the session map. Its mutex guards the map and
// each session's lastSeen; per-turn serialization is the session's own
// lock.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	historyCap int
	cacheCap   int
	store      SessionStore
	logger     *zap.Logger
}

// NewSessionManager creates a SessionManager. store may be nil, in
// which case sessions live only in memory.
func NewSessionManager(historyLimit, resolutionCacheLimit int, store SessionStore, logger *zap.Logger) *SessionManager {
	if historyLimit < 1 {
		historyLimit = defaultHistoryLimit
	}
	if resolutionCacheLimit < 1 {
		resolutionCacheLimit = defaultResolutionCacheLimit
	}
	return &SessionManager{
		sessions:   make(map[string]*Session),
		historyCap: historyLimit,
		cacheCap:   resolutionCacheLimit,
		store:      store,
		logger:     logger.Named("sessions"),
	}
}

func (m *SessionManager) newSession(id string) *Session {
	return &Session{
		ID:          id,
		historyCap:  m.historyCap,
		cacheCap:    m.cacheCap,
		resolutions: make(map[string]*Resolution),
	}
}

// Create registers a new session under a fresh ID.
func (m *SessionManager) Create() *Session {
	s := m.newSession(uuid.NewString())
	m.mu.Lock()
	defer m.mu.Unlock()
	s.lastSeen = time.Now()
	m.sessions[s.ID] = s
	return s
}

// Get returns an existing session or apperrors.ErrSessionNotFound.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrSessionNotFound)
	}
	s.lastSeen = time.Now()
	return s, nil
}

// GetOrCreate returns the session for id, creating it when absent. An
// empty id allocates a fresh session. Unknown ids must parse as UUIDs;
// when a store is configured, a recreated session is seeded with the
// mirrored history so a restarted engine keeps conversational context.
func (m *SessionManager) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return m.Create(), nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("session id %q: %w", id, apperrors.ErrSessionNotFound)
	}

	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		s.lastSeen = time.Now()
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	s := m.newSession(id)
	if m.store != nil {
		turns, err := m.store.LoadHistory(ctx, id, m.historyCap)
		if err != nil {
			m.logger.Warn("session history load failed", zap.String("session_id", id), zap.Error(err))
		} else if len(turns) > 0 {
			s.history = turns
			m.logger.Debug("session rehydrated", zap.String("session_id", id), zap.Int("turns", len(turns)))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		// Lost a race with a concurrent request for the same id.
		existing.lastSeen = time.Now()
		return existing, nil
	}
	s.lastSeen = time.Now()
	m.sessions[id] = s
	return s, nil
}

// Mirror best-effort persists a turn to the external store. Failures
// are logged and swallowed; the in-memory window is authoritative.
func (m *SessionManager) Mirror(ctx context.Context, sessionID string, turn Turn) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveTurn(ctx, sessionID, turn); err != nil {
		m.logger.Warn("session mirror write failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// PruneIdle drops sessions idle longer than maxIdle and reports how
// many were removed.
func (m *SessionManager) PruneIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("idle sessions pruned", zap.Int("removed", removed), zap.Int("remaining", len(m.sessions)))
	}
	return removed
}

// Len reports the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
