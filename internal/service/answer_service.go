package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wisegate/wisegate/internal/audit"
	"github.com/wisegate/wisegate/internal/cache"
	"github.com/wisegate/wisegate/internal/domain"
	"github.com/wisegate/wisegate/internal/engine"
	"github.com/wisegate/wisegate/internal/events"
	"github.com/wisegate/wisegate/internal/reference"
	"github.com/wisegate/wisegate/internal/repository"
	"github.com/wisegate/wisegate/pkg/log"
)

// conversationWindow bounds how many prior turn halves are sent to the
// engine. Older context is dropped, not an error.
const conversationWindow = 10

const sessionPageSize = 20

type answerService struct {
	repo     repository.ChatRepository
	cache    cache.SessionCache
	engine   AnswerRequester
	producer events.TurnProducer
}

func NewAnswerService(
	repo repository.ChatRepository,
	sessionCache cache.SessionCache,
	engineClient AnswerRequester,
	producer events.TurnProducer,
) AnswerService {
	return &answerService{
		repo:     repo,
		cache:    sessionCache,
		engine:   engineClient,
		producer: producer,
	}
}

// RequestAnswer runs the synchronous answer path: persist the question, call
// the engine with bounded conversation context, persist the answer, update
// session bookkeeping. The realtime token stream for the same reference fires
// independently; nothing here waits for it.
func (s *answerService) RequestAnswer(ctx context.Context, in RequestAnswerInput) (*engine.AnswerResult, error) {
	l := log.Ctx(ctx)

	ref, err := reference.Encode(in.UserID, in.RequestToken)
	if err != nil {
		return nil, err
	}

	session, err := s.loadSession(ctx, in.ChatSessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != in.UserID {
		return nil, ErrSessionNotFound
	}

	// The question is persisted before the engine call so it survives an
	// engine failure. A failed turn leaves the question without an answer;
	// a retry creates a new turn rather than repairing this one.
	userMessage := &domain.ChatMessage{
		ID:            uuid.New().String(),
		ChatSessionID: session.ID,
		Sender:        domain.SenderUser,
		Content:       in.Question,
		Payload: map[string]interface{}{
			domain.PayloadKnowledgeBaseID: in.KnowledgeBaseID,
			domain.PayloadLanguage:        in.Language,
			domain.PayloadWisdomLevel:     in.WisdomLevel,
		},
	}
	if err := s.repo.SaveMessage(ctx, userMessage); err != nil {
		return nil, err
	}
	s.invalidate(ctx, session.ID)

	result, err := s.engine.AddAnswerRequest(ctx, engine.AnswerRequest{
		KnowledgeBaseID: in.KnowledgeBaseID,
		Question:        in.Question,
		Reference:       ref,
		Conversation:    conversationContext(session.Messages),
		Language:        in.Language,
		WisdomLevel:     in.WisdomLevel,
	})
	if err != nil {
		return nil, err
	}

	answerMessage := &domain.ChatMessage{
		ID:            uuid.New().String(),
		ChatSessionID: session.ID,
		Sender:        domain.SenderAIEngine,
		Content:       result.Answer,
		Payload: map[string]interface{}{
			domain.PayloadKnowledgeBaseID: in.KnowledgeBaseID,
			domain.PayloadSources:         result.Sources,
			domain.PayloadQuestionMessage: userMessage.ID,
			domain.PayloadLanguage:        in.Language,
			domain.PayloadWisdomLevel:     in.WisdomLevel,
		},
	}
	if err := s.repo.SaveMessage(ctx, answerMessage); err != nil {
		return nil, err
	}

	session.Metadata = map[string]interface{}{
		domain.MetadataLastUserMessage: map[string]interface{}{
			"id":      userMessage.ID,
			"content": userMessage.Content,
			"sender":  string(userMessage.Sender),
		},
	}
	if err := s.repo.UpdateSession(ctx, &domain.ChatSession{ID: session.ID, Metadata: session.Metadata}); err != nil {
		return nil, err
	}
	s.invalidate(ctx, session.ID)

	audit.LogWithTarget(ctx, audit.ActionAnswerRequest, in.UserID, session.ID, "answer request completed")

	if err := s.producer.PublishTurn(ctx, &events.TurnEvent{
		SessionID:       session.ID,
		UserID:          in.UserID,
		UserMessageID:   userMessage.ID,
		AnswerMessageID: answerMessage.ID,
		KnowledgeBaseID: in.KnowledgeBaseID,
		Timestamp:       time.Now().UTC(),
	}); err != nil {
		l.Warn().Err(err).Str(log.FieldSessionID, session.ID).Msg("failed to publish turn event")
	}

	return result, nil
}

// conversationContext reduces prior messages to the window the engine
// accepts: the most recent entries, oldest first, sender and content only.
// The just-persisted question is not part of it; the session was loaded
// before the save.
func conversationContext(messages []domain.ChatMessage) []domain.ConversationEntry {
	if len(messages) > conversationWindow {
		messages = messages[len(messages)-conversationWindow:]
	}

	entries := make([]domain.ConversationEntry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, domain.ConversationEntry{
			Sender:  m.Sender,
			Content: m.Content,
		})
	}
	return entries
}

func (s *answerService) CreateSession(ctx context.Context, userID string) (*domain.ChatSession, error) {
	session := &domain.ChatSession{
		ID:       uuid.New().String(),
		UserID:   userID,
		Metadata: map[string]interface{}{},
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *answerService) GetSessionWithMessages(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *answerService) ListSessions(ctx context.Context, userID string, before *time.Time) ([]domain.ChatSession, error) {
	return s.repo.ListSessionsByUser(ctx, userID, before, sessionPageSize)
}

func (s *answerService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return ErrSessionNotFound
	}

	if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.invalidate(ctx, sessionID)

	audit.LogWithTarget(ctx, audit.ActionSessionDeleted, userID, sessionID, "chat session deleted")
	return nil
}

// loadSession reads through the cache. Cache failures fall back to the
// repository; only a missing session is an error.
func (s *answerService) loadSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	l := log.Ctx(ctx)

	session, err := s.cache.Get(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("session cache read failed")
	}

	session, err = s.repo.FindSessionWithMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, session); err != nil {
		l.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("session cache write failed")
	}
	return session, nil
}

func (s *answerService) invalidate(ctx context.Context, sessionID string) {
	if err := s.cache.Invalidate(ctx, sessionID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("session cache invalidation failed")
	}
}
