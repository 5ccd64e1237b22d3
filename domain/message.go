// Package domain contains core concepts of the chat system.
// This file defines Message entities and their status lifecycle.
// Messages are referenced by id only, never through back-pointers to their chat.
package domain

import (
	"math"
	"strings"
	"time"
)

type MessageType string

const (
	TEXT  MessageType = "TEXT"
	IMAGE MessageType = "IMAGE"
	FILE  MessageType = "FILE"
	AUDIO MessageType = "AUDIO"
	VIDEO MessageType = "VIDEO"
)

// ToMessageType resolves a case-insensitive token. An empty token defaults to TEXT.
func ToMessageType(token string) (MessageType, bool) {
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case "", "TEXT":
		return TEXT, true
	case "IMAGE":
		return IMAGE, true
	case "FILE":
		return FILE, true
	case "AUDIO":
		return AUDIO, true
	case "VIDEO":
		return VIDEO, true
	default:
		return "", false
	}
}

type MessageStatus string

const (
	SENT      MessageStatus = "SENT"
	DELIVERED MessageStatus = "DELIVERED"
	READ      MessageStatus = "READ"
)

func (s MessageStatus) rank() int {
	switch s {
	case SENT:
		return 1
	case DELIVERED:
		return 2
	case READ:
		return 3
	default:
		return 0
	}
}

// CanBecome reports whether moving from s to next is a forward transition.
// Status never regresses: READ can't become DELIVERED, and nothing becomes SENT again.
func (s MessageStatus) CanBecome(next MessageStatus) bool {
	return next.rank() > s.rank()
}

// Message.Status is the aggregate lifecycle of the message: READ once any participant other
// than the sender has read it. Whether one given reader has read it is tracked separately
// as a read receipt, which is what unread counts are computed from.
type Message struct {
	ID        string        `json:"id"`
	ChatID    string        `json:"chat_id"`
	SenderID  string        `json:"sender_id"`
	Content   string        `json:"content"`
	Type      MessageType   `json:"type"`
	Status    MessageStatus `json:"status"`
	Language  string        `json:"language,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// MessagePage is one page of a chat history, newest first.
type MessagePage struct {
	ChatID        string    `json:"chat_id"`
	Messages      []Message `json:"messages"`
	Page          int       `json:"current_page"`
	PageSize      int       `json:"page_size"`
	TotalPages    int       `json:"total_pages"`
	TotalMessages int       `json:"total_messages"`
	HasMore       bool      `json:"has_more"`
}

func NewMessagePage(chatID string, messages []Message, page, pageSize, total int) MessagePage {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	}
	if messages == nil {
		messages = []Message{}
	}
	return MessagePage{
		ChatID:        chatID,
		Messages:      messages,
		Page:          page,
		PageSize:      pageSize,
		TotalPages:    totalPages,
		TotalMessages: total,
		HasMore:       page+1 < totalPages,
	}
}
