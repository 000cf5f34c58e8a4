package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"missionchat/internal/engine"
	"missionchat/internal/model"
)

type fakeEngine struct {
	result  *engine.QueryResult
	err     error
	calls   int
	lastReq engine.QueryRequest
}

func (f *fakeEngine) Query(ctx context.Context, req engine.QueryRequest) (*engine.QueryResult, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakePublisher struct {
	published []model.ChatMessage
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, msg model.ChatMessage) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

type fakeStore struct {
	bySession map[string][]model.ChatMessage
	byUser    []model.ChatMessage
	deleted   []string
}

func (f *fakeStore) ListBySessionID(sessionID string) ([]model.ChatMessage, error) {
	return f.bySession[sessionID], nil
}

func (f *fakeStore) ListByUserID(userID uint, limit, offset int) ([]model.ChatMessage, error) {
	msgs := f.byUser
	if offset < len(msgs) {
		msgs = msgs[offset:]
	} else {
		msgs = nil
	}
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (f *fakeStore) SessionsByUserID(userID uint) ([]model.SessionSummary, error) {
	return nil, nil
}

func (f *fakeStore) DeleteBySessionID(sessionID string, ownerID *uint) error {
	f.deleted = append(f.deleted, sessionID)
	return nil
}

func (f *fakeStore) StatsByUserID(userID uint) (*model.UserStats, error) {
	return &model.UserStats{TotalMessages: int64(len(f.byUser))}, nil
}

func newTestService(eng engine.QueryEngine, pub AsyncMessagePublisher, store MessageStore) *ChatService {
	svc := NewChatService(store, pub, nil, eng, NewRateLimiter(time.Minute, 10, 30), 20)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	return svc
}

func guestSession() *SessionContext {
	sess := &SessionContext{ID: "sess-1", Window: RateWindow{Start: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}}
	sess.AsGuest()
	return sess
}

func registeredSession(userID uint) *SessionContext {
	return &SessionContext{
		ID:       "sess-reg",
		State:    StateRegistered,
		UserID:   userID,
		Username: "ada",
		Window:   RateWindow{Start: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
}

func TestHandleQuerySuccess(t *testing.T) {
	eng := &fakeEngine{result: &engine.QueryResult{
		Response: "ERS-1 launched in 1991.",
		Sources: []model.SourceCitation{
			{Title: "ERS-1 - eoPortal", URL: "www.eoportal.org/ers-1", MissionID: "ers-1", Score: 0.4},
			{Title: "ERS-1", MissionID: "ers-1", Score: 0.9},
			{Title: "Envisat", MissionID: "envisat", Score: 0.6},
		},
		ResponseTime: 1.25,
	}}
	pub := &fakePublisher{}
	svc := newTestService(eng, pub, &fakeStore{})
	sess := guestSession()

	reply, err := svc.HandleQuery(context.Background(), sess, QueryInput{Text: "when did ERS-1 launch?"})
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if reply.Response != "ERS-1 launched in 1991." {
		t.Fatalf("response = %q", reply.Response)
	}
	if reply.ResponseTime != 1.25 {
		t.Fatalf("response time = %v, want 1.25", reply.ResponseTime)
	}
	if len(reply.Sources) != 2 {
		t.Fatalf("presented sources = %d, want 2 after dedup", len(reply.Sources))
	}
	if reply.Sources[0].MissionID != "ers-1" || reply.Sources[0].Score != 0.9 {
		t.Fatalf("top source = %+v", reply.Sources[0])
	}

	if len(pub.published) != 2 {
		t.Fatalf("persisted %d turns, want 2", len(pub.published))
	}
	if pub.published[0].Role != model.RoleUser || pub.published[1].Role != model.RoleAssistant {
		t.Fatalf("persisted roles = %s, %s", pub.published[0].Role, pub.published[1].Role)
	}
	if pub.published[0].UserID != nil {
		t.Fatal("guest turn persisted with a user id")
	}
	// The assistant turn carries the raw source list, not the ranked one.
	if raw := pub.published[1].SourceList(); len(raw) != 3 {
		t.Fatalf("persisted sources = %d, want 3 raw", len(raw))
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("in-memory transcript = %d turns, want 2", len(sess.Messages))
	}
}

func TestHandleQuerySourceCap(t *testing.T) {
	eng := &fakeEngine{result: &engine.QueryResult{
		Response: "ok",
		Sources: []model.SourceCitation{
			{Title: "A", MissionID: "a", Score: 0.9},
			{Title: "B", MissionID: "b", Score: 0.8},
			{Title: "C", MissionID: "c", Score: 0.7},
			{Title: "D", MissionID: "d", Score: 0.6},
		},
	}}
	svc := newTestService(eng, &fakePublisher{}, &fakeStore{})

	reply, err := svc.HandleQuery(context.Background(), guestSession(), QueryInput{Text: "q", MaxSources: 3})
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if len(reply.Sources) != 3 {
		t.Fatalf("presented sources = %d, want caller cap 3", len(reply.Sources))
	}
}

func TestHandleQueryModeSelection(t *testing.T) {
	eng := &fakeEngine{result: &engine.QueryResult{Response: "ok"}}
	svc := newTestService(eng, &fakePublisher{}, &fakeStore{})

	if _, err := svc.HandleQuery(context.Background(), guestSession(), QueryInput{Text: "q"}); err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if eng.lastReq.ResponseMode != engine.ModeCompact || eng.lastReq.Verbose {
		t.Fatalf("default request = %+v, want compact mode", eng.lastReq)
	}
	if !eng.lastReq.ReturnSources {
		t.Fatal("sources not requested from the engine")
	}

	if _, err := svc.HandleQuery(context.Background(), guestSession(), QueryInput{Text: "q", Verbose: true}); err != nil {
		t.Fatalf("HandleQuery verbose: %v", err)
	}
	if eng.lastReq.ResponseMode != engine.ModeVerbose || !eng.lastReq.Verbose {
		t.Fatalf("verbose request = %+v, want %s mode", eng.lastReq, engine.ModeVerbose)
	}
}

func TestHandleQueryEngineFailure(t *testing.T) {
	eng := &fakeEngine{err: errors.New("connection refused")}
	pub := &fakePublisher{}
	svc := newTestService(eng, pub, &fakeStore{})
	sess := guestSession()

	reply, err := svc.HandleQuery(context.Background(), sess, QueryInput{Text: "hello"})
	if err != nil {
		t.Fatalf("engine failure surfaced to the caller: %v", err)
	}
	if reply.Response != fallbackReply {
		t.Fatalf("response = %q, want the substitute reply", reply.Response)
	}
	if len(reply.Sources) != 0 {
		t.Fatalf("substitute reply carries %d sources", len(reply.Sources))
	}
	if reply.ResponseTime != 0 {
		t.Fatalf("substitute reply reports response time %v", reply.ResponseTime)
	}

	// The user turn is persisted; the substitute assistant turn is not.
	if len(pub.published) != 1 || pub.published[0].Role != model.RoleUser {
		t.Fatalf("persisted turns = %+v, want the user turn only", pub.published)
	}
	// Both turns still land in the in-memory transcript.
	if len(sess.Messages) != 2 {
		t.Fatalf("in-memory transcript = %d turns, want 2", len(sess.Messages))
	}
}

func TestHandleQueryRateLimited(t *testing.T) {
	eng := &fakeEngine{result: &engine.QueryResult{Response: "ok"}}
	pub := &fakePublisher{}
	store := &fakeStore{}
	svc := NewChatService(store, pub, nil, eng, NewRateLimiter(time.Minute, 1, 30), 20)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	sess := guestSession()

	if _, err := svc.HandleQuery(context.Background(), sess, QueryInput{Text: "first"}); err != nil {
		t.Fatalf("first query rejected: %v", err)
	}

	_, err := svc.HandleQuery(context.Background(), sess, QueryInput{Text: "second"})
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("got %v, want *RateLimitError", err)
	}
	if eng.calls != 1 {
		t.Fatalf("engine called %d times, want 1 (rejected query must not reach it)", eng.calls)
	}
	if len(pub.published) != 2 {
		t.Fatalf("persisted %d turns, want 2 (nothing from the rejected query)", len(pub.published))
	}
}

func TestHandleQueryGates(t *testing.T) {
	svc := newTestService(&fakeEngine{}, &fakePublisher{}, &fakeStore{})

	if _, err := svc.HandleQuery(context.Background(), nil, QueryInput{Text: "q"}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("nil session: got %v, want ErrUnauthenticated", err)
	}

	unauth := &SessionContext{ID: "s", State: StateUnauthenticated}
	if _, err := svc.HandleQuery(context.Background(), unauth, QueryInput{Text: "q"}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("unauthenticated session: got %v, want ErrUnauthenticated", err)
	}

	if _, err := svc.HandleQuery(context.Background(), guestSession(), QueryInput{Text: "   "}); !errors.Is(err, ErrMessageEmpty) {
		t.Fatalf("blank message: got %v, want ErrMessageEmpty", err)
	}
}

func TestHandleQueryPersistFailureDoesNotBlock(t *testing.T) {
	eng := &fakeEngine{result: &engine.QueryResult{Response: "ok"}}
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := newTestService(eng, pub, &fakeStore{})
	sess := guestSession()

	reply, err := svc.HandleQuery(context.Background(), sess, QueryInput{Text: "q"})
	if err != nil {
		t.Fatalf("publish failure surfaced to the caller: %v", err)
	}
	if reply.Response != "ok" {
		t.Fatalf("response = %q", reply.Response)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("in-memory transcript = %d turns, want 2", len(sess.Messages))
	}
}

func TestRestoreHistoryKeepsRecentTail(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 30; i++ {
		store.byUser = append(store.byUser, model.ChatMessage{ID: uint(i + 1), Content: "m"})
	}
	svc := newTestService(&fakeEngine{}, &fakePublisher{}, store)
	sess := registeredSession(7)

	if err := svc.RestoreHistory(sess); err != nil {
		t.Fatalf("RestoreHistory: %v", err)
	}
	if len(sess.Messages) != restoreKeepLast {
		t.Fatalf("restored %d turns, want %d", len(sess.Messages), restoreKeepLast)
	}
	if sess.Messages[0].ID != 11 {
		t.Fatalf("restored tail starts at id %d, want 11", sess.Messages[0].ID)
	}
}

func TestRegisteredOnlyOperations(t *testing.T) {
	svc := newTestService(&fakeEngine{}, &fakePublisher{}, &fakeStore{})
	guest := guestSession()

	if _, err := svc.Transcript(context.Background(), guest, "s"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("Transcript as guest: got %v", err)
	}
	if _, err := svc.UserHistory(guest, 10, 0); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("UserHistory as guest: got %v", err)
	}
	if _, err := svc.Sessions(guest); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("Sessions as guest: got %v", err)
	}
	if err := svc.DeleteSession(context.Background(), guest, "s"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("DeleteSession as guest: got %v", err)
	}
	if _, err := svc.Stats(guest); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("Stats as guest: got %v", err)
	}
	if _, err := svc.Export(context.Background(), guest, "s"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("Export as guest: got %v", err)
	}
}

func TestExportSnapshotsTranscript(t *testing.T) {
	assistant := model.ChatMessage{Role: model.RoleAssistant, Content: "answer", SessionID: "sess-reg"}
	assistant.SetSources([]model.SourceCitation{{Title: "ERS-1", MissionID: "ers-1", Score: 0.9}})
	store := &fakeStore{bySession: map[string][]model.ChatMessage{
		"sess-reg": {
			{Role: model.RoleUser, Content: "question", SessionID: "sess-reg"},
			assistant,
		},
	}}
	svc := newTestService(&fakeEngine{}, &fakePublisher{}, store)

	doc, err := svc.Export(context.Background(), registeredSession(7), "sess-reg")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if doc.SessionID != "sess-reg" {
		t.Fatalf("session id = %q", doc.SessionID)
	}
	if len(doc.Messages) != 2 {
		t.Fatalf("exported %d messages, want 2", len(doc.Messages))
	}
	if doc.Messages[0].Role != model.RoleUser || doc.Messages[0].Sources != nil {
		t.Fatalf("exported user turn = %+v", doc.Messages[0])
	}
	if len(doc.Messages[1].Sources) != 1 || doc.Messages[1].Sources[0].MissionID != "ers-1" {
		t.Fatalf("exported assistant sources = %+v", doc.Messages[1].Sources)
	}
}

func TestAdoptGuestHistoryPublishesEveryTurn(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(&fakeEngine{}, pub, &fakeStore{})
	uid := uint(7)

	svc.AdoptGuestHistory(context.Background(), []model.ChatMessage{
		{UserID: &uid, SessionID: "new", Role: model.RoleUser, Content: "q"},
		{UserID: &uid, SessionID: "new", Role: model.RoleAssistant, Content: "a"},
	})
	if len(pub.published) != 2 {
		t.Fatalf("published %d adopted turns, want 2", len(pub.published))
	}
}
