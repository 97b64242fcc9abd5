package service

import (
	"context"
	"time"

	"github.com/wisegate/wisegate/internal/domain"
	"github.com/wisegate/wisegate/internal/engine"
	"github.com/wisegate/wisegate/internal/repository"
)

// ErrSessionNotFound is surfaced when the target chat session does not exist
// or belongs to another user.
var ErrSessionNotFound = repository.ErrSessionNotFound

// RequestAnswerInput carries one question for the orchestrator. RequestToken
// is the caller's per-question nonce; the correlation key sent upstream is
// built from it together with UserID.
type RequestAnswerInput struct {
	UserID          string
	Question        string
	KnowledgeBaseID string
	ChatSessionID   string
	RequestToken    string
	Language        string
	WisdomLevel     string
}

// AnswerRequester is the request/response side of the engine, narrowed for
// substitution in tests.
type AnswerRequester interface {
	AddAnswerRequest(ctx context.Context, req engine.AnswerRequest) (*engine.AnswerResult, error)
}

// AnswerService orchestrates answer requests and owns chat session
// operations.
type AnswerService interface {
	RequestAnswer(ctx context.Context, in RequestAnswerInput) (*engine.AnswerResult, error)
	CreateSession(ctx context.Context, userID string) (*domain.ChatSession, error)
	GetSessionWithMessages(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error)
	ListSessions(ctx context.Context, userID string, before *time.Time) ([]domain.ChatSession, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
}
