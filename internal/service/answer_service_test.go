package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wisegate/wisegate/internal/cache"
	"github.com/wisegate/wisegate/internal/domain"
	"github.com/wisegate/wisegate/internal/engine"
	"github.com/wisegate/wisegate/internal/events"
	"github.com/wisegate/wisegate/internal/reference"
	"github.com/wisegate/wisegate/internal/repository"
)

// fakeRepo is an in-memory ChatRepository.
type fakeRepo struct {
	sessions map[string]*domain.ChatSession
	saved    []*domain.ChatMessage
	updated  []*domain.ChatSession
	saveErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: make(map[string]*domain.ChatSession)}
}

func (r *fakeRepo) CreateSession(_ context.Context, session *domain.ChatSession) error {
	r.sessions[session.ID] = session
	return nil
}

func (r *fakeRepo) FindSessionWithMessages(_ context.Context, id string) (*domain.ChatSession, error) {
	session, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return session, nil
}

func (r *fakeRepo) ListSessionsByUser(_ context.Context, userID string, _ *time.Time, _ int) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateSession(_ context.Context, session *domain.ChatSession) error {
	r.updated = append(r.updated, session)
	return nil
}

func (r *fakeRepo) DeleteSession(_ context.Context, id string) error {
	if _, ok := r.sessions[id]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *fakeRepo) SaveMessage(_ context.Context, message *domain.ChatMessage) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append(r.saved, message)
	return nil
}

// fakeEngine captures the request and returns a canned result.
type fakeEngine struct {
	lastRequest *engine.AnswerRequest
	result      *engine.AnswerResult
	err         error
}

func (e *fakeEngine) AddAnswerRequest(_ context.Context, req engine.AnswerRequest) (*engine.AnswerResult, error) {
	e.lastRequest = &req
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

// fakeProducer records published turn events.
type fakeProducer struct {
	published []*events.TurnEvent
}

func (p *fakeProducer) PublishTurn(_ context.Context, event *events.TurnEvent) error {
	p.published = append(p.published, event)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func newService(repo *fakeRepo, eng *fakeEngine, producer events.TurnProducer) AnswerService {
	if producer == nil {
		producer = events.NoopTurnProducer{}
	}
	return NewAnswerService(repo, cache.NoopSessionCache{}, eng, producer)
}

func seedSession(repo *fakeRepo, id, userID string, messageCount int) *domain.ChatSession {
	session := &domain.ChatSession{ID: id, UserID: userID, Metadata: map[string]interface{}{}}
	base := time.Now().Add(-time.Hour)
	for i := 0; i < messageCount; i++ {
		sender := domain.SenderUser
		if i%2 == 1 {
			sender = domain.SenderAIEngine
		}
		session.Messages = append(session.Messages, domain.ChatMessage{
			ID:            fmt.Sprintf("m%d", i),
			ChatSessionID: id,
			Sender:        sender,
			Content:       fmt.Sprintf("turn %d", i),
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
	}
	repo.sessions[id] = session
	return session
}

func TestRequestAnswerPersistsFullTurn(t *testing.T) {
	repo := newFakeRepo()
	seedSession(repo, "s1", "u1", 2)
	eng := &fakeEngine{result: &engine.AnswerResult{
		Answer:  "X is a thing.",
		Sources: []domain.Source{{ChunkID: "ch-1", FileName: "intro.pdf"}},
	}}
	producer := &fakeProducer{}
	svc := newService(repo, eng, producer)

	result, err := svc.RequestAnswer(context.Background(), RequestAnswerInput{
		UserID:          "u1",
		Question:        "What is X?",
		KnowledgeBaseID: "kb1",
		ChatSessionID:   "s1",
		RequestToken:    "req42",
	})
	require.NoError(t, err)
	require.Equal(t, "X is a thing.", result.Answer)
	require.Len(t, result.Sources, 1)

	require.Equal(t, "u1:req42", eng.lastRequest.Reference)
	require.Equal(t, "kb1", eng.lastRequest.KnowledgeBaseID)

	require.Len(t, repo.saved, 2)
	userMsg, answerMsg := repo.saved[0], repo.saved[1]
	require.Equal(t, domain.SenderUser, userMsg.Sender)
	require.Equal(t, "What is X?", userMsg.Content)
	require.Equal(t, domain.SenderAIEngine, answerMsg.Sender)
	require.Equal(t, "X is a thing.", answerMsg.Content)
	require.Equal(t, userMsg.ID, answerMsg.Payload[domain.PayloadQuestionMessage])

	require.Len(t, repo.updated, 1)
	require.Contains(t, repo.updated[0].Metadata, domain.MetadataLastUserMessage)

	require.Len(t, producer.published, 1)
	require.Equal(t, "s1", producer.published[0].SessionID)
	require.Equal(t, userMsg.ID, producer.published[0].UserMessageID)
}

func TestRequestAnswerSessionNotFound(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, &fakeEngine{}, nil)

	_, err := svc.RequestAnswer(context.Background(), RequestAnswerInput{
		UserID:        "u1",
		Question:      "q",
		ChatSessionID: "missing",
		RequestToken:  "r",
	})
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.Empty(t, repo.saved, "no partial state on precondition failure")
}

func TestRequestAnswerRejectsForeignSession(t *testing.T) {
	repo := newFakeRepo()
	seedSession(repo, "s1", "owner", 0)
	svc := newService(repo, &fakeEngine{}, nil)

	_, err := svc.RequestAnswer(context.Background(), RequestAnswerInput{
		UserID:        "intruder",
		Question:      "q",
		ChatSessionID: "s1",
		RequestToken:  "r",
	})
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.Empty(t, repo.saved)
}

func TestRequestAnswerBoundsConversationContext(t *testing.T) {
	repo := newFakeRepo()
	seedSession(repo, "s1", "u1", 12)
	eng := &fakeEngine{result: &engine.AnswerResult{Answer: "ok"}}
	svc := newService(repo, eng, nil)

	_, err := svc.RequestAnswer(context.Background(), RequestAnswerInput{
		UserID:          "u1",
		Question:        "latest",
		KnowledgeBaseID: "kb1",
		ChatSessionID:   "s1",
		RequestToken:    "r",
	})
	require.NoError(t, err)

	conv := eng.lastRequest.Conversation
	require.Len(t, conv, 10, "context must hold exactly the 10 most recent turns")
	require.Equal(t, "turn 2", conv[0].Content, "oldest retained entry comes first")
	require.Equal(t, "turn 11", conv[9].Content)
}

func TestRequestAnswerEngineFailureKeepsQuestion(t *testing.T) {
	repo := newFakeRepo()
	seedSession(repo, "s1", "u1", 0)
	eng := &fakeEngine{err: fmt.Errorf("%w: boom", engine.ErrUpstreamUnavailable)}
	svc := newService(repo, eng, nil)

	_, err := svc.RequestAnswer(context.Background(), RequestAnswerInput{
		UserID:          "u1",
		Question:        "q",
		KnowledgeBaseID: "kb1",
		ChatSessionID:   "s1",
		RequestToken:    "r",
	})
	require.ErrorIs(t, err, engine.ErrUpstreamUnavailable)

	// The question survives; the retry creates a new turn.
	require.Len(t, repo.saved, 1)
	require.Equal(t, domain.SenderUser, repo.saved[0].Sender)
	require.Empty(t, repo.updated)
}

func TestRequestAnswerRejectsAmbiguousReferenceParts(t *testing.T) {
	repo := newFakeRepo()
	seedSession(repo, "s1", "u:1", 0)
	svc := newService(repo, &fakeEngine{}, nil)

	_, err := svc.RequestAnswer(context.Background(), RequestAnswerInput{
		UserID:        "u:1",
		Question:      "q",
		ChatSessionID: "s1",
		RequestToken:  "r",
	})
	require.ErrorIs(t, err, reference.ErrInvalidInput)
	require.Empty(t, repo.saved)
}

func TestSessionLifecycle(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, &fakeEngine{}, nil)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)

	loaded, err := svc.GetSessionWithMessages(ctx, "u1", session.ID)
	require.NoError(t, err)
	require.Equal(t, session.ID, loaded.ID)

	_, err = svc.GetSessionWithMessages(ctx, "u2", session.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	err = svc.DeleteSession(ctx, "u2", session.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, svc.DeleteSession(ctx, "u1", session.ID))

	_, err = svc.GetSessionWithMessages(ctx, "u1", session.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}
