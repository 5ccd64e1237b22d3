// Package event defines what the connection router pushes to live sessions.
// Events are scoped to one chat and encoded as flat JSON frames carrying a "type" tag.
package event

import (
	"chat-core/domain"
	"encoding/json"
	"time"
)

type Type string

const (
	MessageSentType    Type = "message_sent"
	MessagesReadType   Type = "messages_read"
	MessageDeletedType Type = "message_deleted"
)

type DomainEvent interface {
	ChatID() string
	Type() Type
}

type MessageSent struct {
	Message domain.Message
}

func (m MessageSent) ChatID() string { return m.Message.ChatID }
func (m MessageSent) Type() Type     { return MessageSentType }

type MessagesRead struct {
	Chat     string
	ReaderID string
	Count    int
	At       time.Time
}

func (m MessagesRead) ChatID() string { return m.Chat }
func (m MessagesRead) Type() Type     { return MessagesReadType }

type MessageDeleted struct {
	Chat      string
	MessageID string
	DeletedBy string
}

func (m MessageDeleted) ChatID() string { return m.Chat }
func (m MessageDeleted) Type() Type     { return MessageDeletedType }

type frame struct {
	Type      Type            `json:"type"`
	ChatID    string          `json:"chat_id"`
	Message   *domain.Message `json:"message,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Count     int             `json:"count,omitempty"`
	At        *time.Time      `json:"at,omitempty"`
}

// Encode renders the wire frame sent to a connection.
func Encode(e DomainEvent) ([]byte, error) {
	f := frame{Type: e.Type(), ChatID: e.ChatID()}
	switch evt := e.(type) {
	case MessageSent:
		msg := evt.Message
		f.Message = &msg
		f.UserID = msg.SenderID
	case MessagesRead:
		f.UserID = evt.ReaderID
		f.Count = evt.Count
		at := evt.At
		f.At = &at
	case MessageDeleted:
		f.MessageID = evt.MessageID
		f.UserID = evt.DeletedBy
	}
	return json.Marshal(f)
}
