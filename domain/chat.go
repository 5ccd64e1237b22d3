package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type ChatType string

const (
	SINGLE ChatType = "SINGLE"
	GROUP  ChatType = "GROUP"
)

func ToChatType(token string) (ChatType, bool) {
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case "SINGLE":
		return SINGLE, true
	case "GROUP":
		return GROUP, true
	default:
		return "", false
	}
}

type Chat struct {
	ID             string    `json:"id"`
	Name           string    `json:"name,omitempty"`
	Type           ChatType  `json:"type"`
	ParticipantIDs []string  `json:"participant_ids"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
}

func (c Chat) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// PairKey identifies the unordered pair of a SINGLE chat: (a,b) and (b,a) give the same key.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%s:%s", a, b)
}

// SortByActivity orders chats most recently active first.
// Ties fall back to creation time, then id, so the order is stable across stores.
func SortByActivity(chats []Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		a, b := chats[i], chats[j]
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.After(b.LastActivity)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// ChatSummary is a chat as listed to one of its participants.
type ChatSummary struct {
	Chat
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}
