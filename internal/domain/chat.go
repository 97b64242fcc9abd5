package domain

import (
	"time"

	"github.com/wisegate/wisegate/pkg/database"
)

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderUser     Sender = "USER"
	SenderAIEngine Sender = "AI_ENGINE"
)

// ChatSession is a conversation thread owned by one user. Deleting a session
// cascades its messages.
type ChatSession struct {
	ID        string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string           `gorm:"type:varchar(36);index;not null" json:"userId"`
	Metadata  database.JSONMap `gorm:"type:json" json:"metadata"`
	Messages  []ChatMessage    `gorm:"foreignKey:ChatSessionID" json:"chatMessages,omitempty"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatMessage is one turn half: either a user question or an engine answer.
// Rows are append-only; answers link back to their question via the payload.
type ChatMessage struct {
	ID            string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	ChatSessionID string           `gorm:"type:varchar(36);index;not null" json:"chatSessionId"`
	Sender        Sender           `gorm:"type:varchar(32);not null" json:"sender"`
	Content       string           `gorm:"type:longtext" json:"content"`
	Payload       database.JSONMap `gorm:"type:json" json:"payload"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// ConversationEntry is one prior turn half reduced to what the engine needs.
type ConversationEntry struct {
	Sender  Sender `json:"sender"`
	Content string `json:"content"`
}

// Source is a citation returned by the engine for an answer.
type Source struct {
	ChunkID      string  `json:"chunkId"`
	ChunkNumber  int     `json:"chunkNumber"`
	FileName     string  `json:"fileName"`
	PageIndex    int     `json:"pageIndex"`
	PercentageIn float64 `json:"percentageIn"`
	Mimetype     string  `json:"mimetype"`
	ResourceName string  `json:"resourceName"`
}

// Payload keys for chat message payloads.
const (
	PayloadKnowledgeBaseID  = "knowledgeBaseId"
	PayloadLanguage         = "language"
	PayloadWisdomLevel      = "wisdomLevel"
	PayloadSources          = "sources"
	PayloadQuestionMessage  = "questionMessageId"
	MetadataLastUserMessage = "lastUserMessage"
)
