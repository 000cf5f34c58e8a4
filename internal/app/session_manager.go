package app

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"missionchat/internal/model"
)

// SessionManager owns the live session contexts, keyed by session id.
// Context internals need no locking (one in-flight query per session);
// the map itself is shared across sessions and is guarded here.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*SessionContext
	ttl      time.Duration
}

func NewSessionManager(ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionManager{
		sessions: make(map[string]*SessionContext),
		ttl:      ttl,
	}
}

// Begin creates a fresh Unauthenticated context.
func (m *SessionManager) Begin() *SessionContext {
	now := time.Now()
	ctx := &SessionContext{
		ID:        uuid.NewString(),
		State:     StateUnauthenticated,
		Window:    RateWindow{Start: now},
		CreatedAt: now,
		LastSeen:  now,
	}

	m.mu.Lock()
	m.sessions[ctx.ID] = ctx
	m.mu.Unlock()
	return ctx
}

// BeginGuest creates a context already in the Guest state.
func (m *SessionManager) BeginGuest() *SessionContext {
	ctx := m.Begin()
	ctx.AsGuest()
	return ctx
}

// BeginRegistered creates a context bound to an authenticated user.
func (m *SessionManager) BeginRegistered(user *model.User) *SessionContext {
	ctx := m.Begin()
	ctx.State = StateRegistered
	ctx.UserID = user.ID
	ctx.Username = user.Username
	return ctx
}

func (m *SessionManager) Get(id string) (*SessionContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if time.Since(ctx.LastSeen) > m.ttl {
		delete(m.sessions, id)
		return nil, false
	}
	ctx.LastSeen = time.Now()
	return ctx, true
}

// Promote replaces a guest context with a fresh Registered one. Under
// the discard policy the guest-era in-memory turns are dropped; under
// adopt they are re-tagged with the new owner and session id, carried
// into the new context, and returned so the caller can persist them.
func (m *SessionManager) Promote(guestID string, user *model.User, policy GuestHistoryPolicy) (*SessionContext, []model.ChatMessage) {
	registered := m.BeginRegistered(user)

	m.mu.Lock()
	guest, ok := m.sessions[guestID]
	if ok {
		delete(m.sessions, guestID)
	}
	m.mu.Unlock()

	if !ok || policy != GuestHistoryAdopt || len(guest.Messages) == 0 {
		return registered, nil
	}

	adopted := make([]model.ChatMessage, len(guest.Messages))
	for i, msg := range guest.Messages {
		id := user.ID
		msg.UserID = &id
		msg.SessionID = registered.ID
		adopted[i] = msg
	}
	registered.Messages = adopted
	return registered, adopted
}

// Destroy removes a context, e.g. on logout when the client walks away.
func (m *SessionManager) Destroy(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Sweep drops contexts idle past the TTL and reports how many went.
func (m *SessionManager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, ctx := range m.sessions {
		if time.Since(ctx.LastSeen) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
