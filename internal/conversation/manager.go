// Package conversation collects a record from a chat over several turns.
package conversation

import (
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/record"
)

// DefaultTTL is the inactivity window after which a session times out.
const DefaultTTL = 10 * time.Minute

// Session is the live state of one chat collecting a record.
type Session struct {
	ChatID     int64
	Kind       domain.Kind
	Builder    record.Builder
	FieldIndex int
	Expiry     time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.Expiry)
}

// Manager owns the chat id to session mapping. It holds at most one
// session per chat. Sessions are returned by value; callers write changes
// back with Save.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]Session
	ttl      time.Duration
	now      func() time.Time
}

// NewManager creates a Manager. A zero ttl means DefaultTTL and a nil clock
// means time.Now.
func NewManager(ttl time.Duration, now func() time.Time) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		sessions: make(map[int64]Session),
		ttl:      ttl,
		now:      now,
	}
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time { return m.now() }

// TTL returns the configured inactivity window.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Create stores a new session for chatID, replacing any existing one.
func (m *Manager) Create(chatID int64, b record.Builder) Session {
	_, idx, _ := b.NextField()
	s := Session{
		ChatID:     chatID,
		Kind:       b.Kind(),
		Builder:    b,
		FieldIndex: idx,
		Expiry:     m.now().Add(m.ttl),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[chatID] = s
	return s
}

// Get returns the session of chatID, expired or not.
func (m *Manager) Get(chatID int64) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatID]
	return s, ok
}

// Save writes s back and pushes its expiry one TTL into the future.
func (m *Manager) Save(s Session) Session {
	s.Expiry = m.now().Add(m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ChatID] = s
	return s
}

// Destroy removes the session of chatID, if any.
func (m *Manager) Destroy(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
}

// Expired lists the chats whose session is past expiry at now, in ascending order.
func (m *Manager) Expired(now time.Time) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []int64
	for id, s := range m.sessions {
		if s.Expired(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
