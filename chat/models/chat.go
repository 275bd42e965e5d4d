package models

import (
	"time"
)

// Role of a message author
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two known roles
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// DefaultChatName is given to every new chat
const DefaultChatName = "New Chat"

// Chat is one user's conversation. Messages are ordered by Seq and only ever appended.
type Chat struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	UserID    string    `json:"userId" gorm:"index;not null"`
	Name      string    `json:"name" gorm:"not null"`
	Version   int64     `json:"-" gorm:"not null;default:0"`
	Messages  []Message `json:"messages" gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is a single chat entry
type Message struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	ChatID    string    `json:"-" gorm:"size:36;not null;uniqueIndex:idx_chat_seq,priority:1"`
	Seq       int64     `json:"-" gorm:"not null;uniqueIndex:idx_chat_seq,priority:2"`
	Role      Role      `json:"role" gorm:"size:16;not null"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// RenameChatRequest is the body of POST /api/chat/rename
type RenameChatRequest struct {
	ChatID string `json:"chatId" binding:"required"`
	Name   string `json:"name" binding:"required"`
}

// DeleteChatRequest is the body of POST /api/chat/delete
type DeleteChatRequest struct {
	ChatID string `json:"chatId" binding:"required"`
}

// CompletionRequest is the body of POST /api/chat/ai
type CompletionRequest struct {
	ChatID string `json:"chatId" binding:"required"`
	Prompt string `json:"prompt"`
}

// Response is the success envelope of every chat endpoint
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}
