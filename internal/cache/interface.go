package cache

import (
	"context"
	"errors"

	"github.com/wisegate/wisegate/internal/domain"
)

// ErrCacheMiss is returned when the key is not cached.
var ErrCacheMiss = errors.New("cache miss")

// SessionCache is a read cache for session-with-messages lookups. The
// orchestrator reads the same session on every answer request, so hot
// conversations skip the database.
type SessionCache interface {
	Get(ctx context.Context, sessionID string) (*domain.ChatSession, error)
	Set(ctx context.Context, session *domain.ChatSession) error
	Invalidate(ctx context.Context, sessionID string) error
	Close() error
}

// NoopSessionCache is used when redis is not configured.
type NoopSessionCache struct{}

func (NoopSessionCache) Get(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	return nil, ErrCacheMiss
}

func (NoopSessionCache) Set(ctx context.Context, session *domain.ChatSession) error { return nil }

func (NoopSessionCache) Invalidate(ctx context.Context, sessionID string) error { return nil }

func (NoopSessionCache) Close() error { return nil }
