package app

import (
	"time"

	"missionchat/internal/model"
)

// AuthState is the session's position in the auth lifecycle.
type AuthState int

const (
	StateUnauthenticated AuthState = iota
	StateGuest
	StateRegistered
)

func (s AuthState) String() string {
	switch s {
	case StateGuest:
		return "guest"
	case StateRegistered:
		return "registered"
	default:
		return "unauthenticated"
	}
}

// GuestHistoryPolicy decides what happens to a guest context's in-memory
// turns when its owner authenticates.
type GuestHistoryPolicy string

const (
	GuestHistoryDiscard GuestHistoryPolicy = "discard"
	GuestHistoryAdopt   GuestHistoryPolicy = "adopt"
)

// SessionContext is the explicit per-client session state: auth state,
// the in-memory transcript, the rate window, and the engine-ready flag.
// It is created on first contact and destroyed on logout or expiry.
// Callers are single-threaded per session, so no locking happens here.
type SessionContext struct {
	ID          string
	State       AuthState
	UserID      uint
	Username    string
	Messages    []model.ChatMessage
	Window      RateWindow
	EngineReady bool
	CreatedAt   time.Time
	LastSeen    time.Time
}

// CallerClass maps the auth state to a rate-limit class. Unauthenticated
// callers get the guest ceiling; they cannot converse anyway.
func (c *SessionContext) CallerClass() CallerClass {
	if c.State == StateRegistered {
		return CallerRegistered
	}
	return CallerGuest
}

// IsRegistered gates persisted-history browsing, export and the higher
// rate ceiling.
func (c *SessionContext) IsRegistered() bool {
	return c.State == StateRegistered && c.UserID != 0
}

func (c *SessionContext) IsAuthenticated() bool {
	return c.State == StateGuest || c.State == StateRegistered
}

// OwnerID returns the persisting user id: nil for guest turns.
func (c *SessionContext) OwnerID() *uint {
	if !c.IsRegistered() {
		return nil
	}
	id := c.UserID
	return &id
}

// AsGuest transitions Unauthenticated -> Guest.
func (c *SessionContext) AsGuest() {
	c.State = StateGuest
	c.UserID = 0
	c.Username = "Guest"
}

// Logout returns to Unauthenticated, dropping the in-memory conversation
// and the engine-ready flag. Persisted history is untouched.
func (c *SessionContext) Logout() {
	c.State = StateUnauthenticated
	c.UserID = 0
	c.Username = ""
	c.Messages = nil
	c.EngineReady = false
}

// Remember appends a turn to the in-memory transcript.
func (c *SessionContext) Remember(msg model.ChatMessage) {
	c.Messages = append(c.Messages, msg)
}
