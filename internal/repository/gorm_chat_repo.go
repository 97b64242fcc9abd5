package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/wisegate/wisegate/internal/domain"
	"github.com/wisegate/wisegate/pkg/log"
)

// GormChatRepository implements ChatRepository using GORM.
type GormChatRepository struct {
	db *gorm.DB
}

// NewGormChatRepository creates a GORM-based chat repository.
func NewGormChatRepository(db *gorm.DB) *GormChatRepository {
	return &GormChatRepository{db: db}
}

// CreateSession creates a new chat session.
func (r *GormChatRepository) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	l := log.Ctx(ctx)

	if session.Metadata == nil {
		session.Metadata = map[string]interface{}{}
	}
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		l.Error().Err(err).Msg("failed to create chat session")
		return err
	}

	l.Debug().Str(log.FieldSessionID, session.ID).Msg("chat session created")
	return nil
}

// FindSessionWithMessages loads a session and its messages ordered by
// creation time ascending.
func (r *GormChatRepository) FindSessionWithMessages(ctx context.Context, id string) (*domain.ChatSession, error) {
	l := log.Ctx(ctx)

	var session domain.ChatSession
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		l.Error().Err(err).Str(log.FieldSessionID, id).Msg("failed to load chat session")
		return nil, err
	}
	return &session, nil
}

// ListSessionsByUser returns a user's sessions, most recently updated first.
func (r *GormChatRepository) ListSessionsByUser(ctx context.Context, userID string, before *time.Time, limit int) ([]domain.ChatSession, error) {
	l := log.Ctx(ctx)

	if limit < 1 {
		limit = 20
	}

	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if before != nil {
		query = query.Where("updated_at < ?", *before)
	}

	var sessions []domain.ChatSession
	if err := query.Order("updated_at DESC").Limit(limit).Find(&sessions).Error; err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list chat sessions")
		return nil, err
	}
	return sessions, nil
}

// UpdateSession saves session bookkeeping metadata and bumps the timestamp.
func (r *GormChatRepository) UpdateSession(ctx context.Context, session *domain.ChatSession) error {
	l := log.Ctx(ctx)

	err := r.db.WithContext(ctx).Model(&domain.ChatSession{ID: session.ID}).
		Updates(map[string]interface{}{
			"metadata":   session.Metadata,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		l.Error().Err(err).Str(log.FieldSessionID, session.ID).Msg("failed to update chat session")
		return err
	}
	return nil
}

// DeleteSession removes a session and cascades its messages.
func (r *GormChatRepository) DeleteSession(ctx context.Context, id string) error {
	l := log.Ctx(ctx)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_session_id = ?", id).Delete(&domain.ChatMessage{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&domain.ChatSession{ID: id})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			l.Error().Err(err).Str(log.FieldSessionID, id).Msg("failed to delete chat session")
		}
		return err
	}

	l.Debug().Str(log.FieldSessionID, id).Msg("chat session deleted")
	return nil
}

// SaveMessage appends a message to its session.
func (r *GormChatRepository) SaveMessage(ctx context.Context, message *domain.ChatMessage) error {
	l := log.Ctx(ctx)

	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		l.Error().Err(err).Str(log.FieldSessionID, message.ChatSessionID).Msg("failed to save chat message")
		return err
	}
	return nil
}
