package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wisegate/wisegate/internal/domain"
)

// ErrSessionNotFound is returned when a chat session does not exist.
var ErrSessionNotFound = errors.New("chat session not found")

// ChatRepository persists chat sessions and their messages. Each operation is
// atomic on its own; callers must not assume a transaction spanning several
// of them.
type ChatRepository interface {
	CreateSession(ctx context.Context, session *domain.ChatSession) error
	FindSessionWithMessages(ctx context.Context, id string) (*domain.ChatSession, error)
	ListSessionsByUser(ctx context.Context, userID string, before *time.Time, limit int) ([]domain.ChatSession, error)
	UpdateSession(ctx context.Context, session *domain.ChatSession) error
	DeleteSession(ctx context.Context, id string) error
	SaveMessage(ctx context.Context, message *domain.ChatMessage) error
}
