package app

import (
	"context"
	"log"
	"strings"
	"time"

	"missionchat/internal/engine"
	"missionchat/internal/model"
)

const (
	// Reply substituted when the retrieval engine fails; the failure is
	// never propagated to the caller.
	fallbackReply = "I apologize, but I encountered an error processing your request. Please try again."

	restoreFetchLimit = 50
	restoreKeepLast   = 20
)

// AsyncMessagePublisher hands a chat turn to the persistence queue.
type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.ChatMessage) error
}

// HistoryCache is the read-through cache over session transcripts.
type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, bool, error)
	SetHistory(ctx context.Context, sessionID string, messages []model.ChatMessage) error
	DeleteHistory(ctx context.Context, sessionID string) error
	MarkDirty(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}

// MessageStore covers the persisted-history reads and the scoped delete.
// Writes go through the publisher only.
type MessageStore interface {
	ListBySessionID(sessionID string) ([]model.ChatMessage, error)
	ListByUserID(userID uint, limit, offset int) ([]model.ChatMessage, error)
	SessionsByUserID(userID uint) ([]model.SessionSummary, error)
	DeleteBySessionID(sessionID string, ownerID *uint) error
	StatsByUserID(userID uint) (*model.UserStats, error)
}

type ChatService struct {
	store        MessageStore
	publisher    AsyncMessagePublisher
	historyCache HistoryCache
	queryEngine  engine.QueryEngine
	limiter      *RateLimiter
	maxSources   int
	now          func() time.Time
}

// QueryInput is one conversational turn's parameters. MaxSources caps
// the presented citation list; zero or negative falls back to the
// service default. Verbose selects the engine's long-form synthesis.
type QueryInput struct {
	Text       string
	MaxSources int
	Verbose    bool
}

// Reply is one completed request/response cycle.
type Reply struct {
	Response     string                 `json:"response"`
	Sources      []model.SourceCitation `json:"sources"`
	ResponseTime float64                `json:"response_time"`
}

func NewChatService(
	store MessageStore,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	queryEngine engine.QueryEngine,
	limiter *RateLimiter,
	maxSources int,
) *ChatService {
	if maxSources <= 0 {
		maxSources = 20
	}
	return &ChatService{
		store:        store,
		publisher:    publisher,
		historyCache: historyCache,
		queryEngine:  queryEngine,
		limiter:      limiter,
		maxSources:   maxSources,
		now:          time.Now,
	}
}

// HandleQuery runs one turn: rate gate, engine call, best-effort
// persistence, source ranking. Engine failures resolve to a substitute
// reply; persistence failures never block the reply.
func (s *ChatService) HandleQuery(ctx context.Context, sess *SessionContext, input QueryInput) (*Reply, error) {
	maxSources := input.MaxSources
	if maxSources <= 0 {
		maxSources = s.maxSources
	}
	if sess == nil || !sess.IsAuthenticated() {
		return nil, ErrUnauthenticated
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, ErrMessageEmpty
	}

	if err := s.limiter.Allow(&sess.Window, sess.CallerClass(), s.now()); err != nil {
		return nil, err
	}

	mode := engine.ModeCompact
	if input.Verbose {
		mode = engine.ModeVerbose
	}
	result, err := s.queryEngine.Query(ctx, engine.QueryRequest{
		Query:         text,
		ResponseMode:  mode,
		ReturnSources: true,
		Verbose:       input.Verbose,
	})
	engineOK := err == nil
	if err != nil {
		log.Printf("engine query failed: %v", err)
		result = &engine.QueryResult{Response: fallbackReply}
	} else {
		sess.EngineReady = true
	}

	userMsg := model.ChatMessage{
		UserID:    sess.OwnerID(),
		SessionID: sess.ID,
		Role:      model.RoleUser,
		Content:   text,
		CreatedAt: s.now(),
	}
	s.persist(ctx, sess, userMsg)
	sess.Remember(userMsg)

	assistantMsg := model.ChatMessage{
		UserID:    sess.OwnerID(),
		SessionID: sess.ID,
		Role:      model.RoleAssistant,
		Content:   result.Response,
		CreatedAt: s.now(),
	}
	assistantMsg.SetSources(result.Sources)
	if engineOK {
		s.persist(ctx, sess, assistantMsg)
	}
	sess.Remember(assistantMsg)

	return &Reply{
		Response:     result.Response,
		Sources:      RankSources(result.Sources, maxSources),
		ResponseTime: result.ResponseTime,
	}, nil
}

// persist enqueues a turn and invalidates the cached transcript. Both are
// best-effort relative to the live conversation.
func (s *ChatService) persist(ctx context.Context, sess *SessionContext, msg model.ChatMessage) {
	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, sess.ID)
		_ = s.historyCache.DeleteHistory(ctx, sess.ID)
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		log.Printf("persist %s turn for session %s failed: %v", msg.Role, sess.ID, err)
	}
}

// AdoptGuestHistory persists guest-era turns re-tagged to the promoted
// account. Failures are logged; adoption is best-effort like any other
// history write.
func (s *ChatService) AdoptGuestHistory(ctx context.Context, messages []model.ChatMessage) {
	for _, msg := range messages {
		if s.publisher == nil {
			return
		}
		if err := s.publisher.Publish(ctx, msg); err != nil {
			log.Printf("adopt guest turn for session %s failed: %v", msg.SessionID, err)
		}
	}
}

// Transcript returns a session's persisted messages in chronological
// order, read through the cache when it is clean.
func (s *ChatService) Transcript(ctx context.Context, sess *SessionContext, sessionID string) ([]model.ChatMessage, error) {
	if !sess.IsRegistered() {
		return nil, ErrNotRegistered
	}
	if sessionID == "" {
		return nil, ErrInvalidInput
	}

	if s.historyCache != nil {
		if dirty, err := s.historyCache.IsDirty(ctx, sessionID); err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.store.ListBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, err := s.historyCache.IsDirty(ctx, sessionID); err == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

// UserHistory pages through the account's messages, returned in
// chronological display order.
func (s *ChatService) UserHistory(sess *SessionContext, limit, offset int) ([]model.ChatMessage, error) {
	if !sess.IsRegistered() {
		return nil, ErrNotRegistered
	}
	return s.store.ListByUserID(sess.UserID, limit, offset)
}

// RestoreHistory fills the in-memory transcript from the account's most
// recent persisted turns.
func (s *ChatService) RestoreHistory(sess *SessionContext) error {
	if !sess.IsRegistered() {
		return ErrNotRegistered
	}
	messages, err := s.store.ListByUserID(sess.UserID, restoreFetchLimit, 0)
	if err != nil {
		return err
	}
	if len(messages) > restoreKeepLast {
		messages = messages[len(messages)-restoreKeepLast:]
	}
	sess.Messages = messages
	return nil
}

// Sessions enumerates the account's sessions, most recent activity first.
func (s *ChatService) Sessions(sess *SessionContext) ([]model.SessionSummary, error) {
	if !sess.IsRegistered() {
		return nil, ErrNotRegistered
	}
	return s.store.SessionsByUserID(sess.UserID)
}

// DeleteSession removes a session's messages scoped to the owner, so a
// guessed session id cannot touch another user's transcript.
func (s *ChatService) DeleteSession(ctx context.Context, sess *SessionContext, sessionID string) error {
	if !sess.IsRegistered() {
		return ErrNotRegistered
	}
	if sessionID == "" {
		return ErrInvalidInput
	}
	if err := s.store.DeleteBySessionID(sessionID, sess.OwnerID()); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, sessionID)
	}
	return nil
}

func (s *ChatService) Stats(sess *SessionContext) (*model.UserStats, error) {
	if !sess.IsRegistered() {
		return nil, ErrNotRegistered
	}
	return s.store.StatsByUserID(sess.UserID)
}

// ExportDocument is the plain structured snapshot of one session.
type ExportDocument struct {
	SessionID  string            `json:"session_id"`
	ExportedAt time.Time         `json:"exported_at"`
	Messages   []ExportedMessage `json:"messages"`
}

type ExportedMessage struct {
	Role    string                 `json:"role"`
	Content string                 `json:"content"`
	Sources []model.SourceCitation `json:"sources,omitempty"`
}

// Export snapshots a session's ordered messages for download.
func (s *ChatService) Export(ctx context.Context, sess *SessionContext, sessionID string) (*ExportDocument, error) {
	messages, err := s.Transcript(ctx, sess, sessionID)
	if err != nil {
		return nil, err
	}

	doc := &ExportDocument{
		SessionID:  sessionID,
		ExportedAt: s.now(),
		Messages:   make([]ExportedMessage, 0, len(messages)),
	}
	for _, msg := range messages {
		doc.Messages = append(doc.Messages, ExportedMessage{
			Role:    msg.Role,
			Content: msg.Content,
			Sources: msg.SourceList(),
		})
	}
	return doc, nil
}
