// Package session implements the per-user dialogue session store.
//
// Sessions are in-memory only: a restart drops every open dialogue, which is
// accepted behavior. A session untouched for Timeout is treated as absent on
// the next access and removed by the periodic sweep.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Timeout is how long a session survives without activity.
const Timeout = 5 * time.Minute

// Step is the dialogue state a session is in.
type Step int

// Dialogue steps.
const (
	StepSelectGroup Step = iota
	StepSelectAction
	StepEnterMessage
)

// GroupChoice is one entry of the numbered group list rendered at session
// start. The list is snapshotted into the session: selection indexes into
// this snapshot, not into a re-read registry.
type GroupChoice struct {
	ID      string
	Name    string
	Enabled bool
}

// Session is one user's dialogue state.
type Session struct {
	Step      Step
	GroupID   string
	GroupName string
	Groups    []GroupChoice
	Buffer    []string

	lastActivity time.Time
}

// AppendLine adds one line to the message being composed.
func (s *Session) AppendLine(line string) {
	s.Buffer = append(s.Buffer, line)
}

// ComposedMessage joins the buffered lines into the final message.
func (s *Session) ComposedMessage() string {
	return strings.Join(s.Buffer, "\n")
}

// Manager stores at most one session per user.
type Manager struct {
	log *slog.Logger
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// SetClock overrides the time source (useful for testing expiry).
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Start opens a fresh session for a user, replacing any existing one.
func (m *Manager) Start(userID string) *Session {
	s := &Session{Step: StepSelectGroup, lastActivity: m.now()}
	m.mu.Lock()
	m.sessions[userID] = s
	m.mu.Unlock()
	return s
}

// Get returns the user's active session, lazily evicting an expired one.
// Access counts as activity and refreshes the expiry timer.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	now := m.now()
	if now.Sub(s.lastActivity) > Timeout {
		delete(m.sessions, userID)
		return nil, false
	}
	s.lastActivity = now
	return s, true
}

// End removes the user's session if one exists.
func (m *Manager) End(userID string) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
}

// Len returns the number of live sessions, expired ones included until swept.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops every expired session and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for userID, s := range m.sessions {
		if now.Sub(s.lastActivity) > Timeout {
			delete(m.sessions, userID)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions once a minute, blocking until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.log.Debug("swept expired sessions", "count", n)
			}
		}
	}
}
