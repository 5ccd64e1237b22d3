package services

import (
	"chat-core/domain"
	"chat-core/errors"
	"chat-core/repositories"
	"context"
	"log/slog"
)

// Membership is the chat-scoped authorization predicate shared by every service.
type Membership struct {
	log   *slog.Logger
	chats repositories.IChatRepository
}

func NewMembership(log *slog.Logger, chats repositories.IChatRepository) *Membership {
	return &Membership{log: log, chats: chats}
}

// IsParticipant fails closed: unknown chats and store failures answer false.
func (m *Membership) IsParticipant(ctx context.Context, chatID, userID string) bool {
	ok, err := m.chats.IsParticipant(ctx, chatID, userID)
	if err != nil {
		m.log.Debug("Participant check failed", "chat_id", chatID, "user_id", userID, "error", err)
		return false
	}
	return ok
}

func (m *Membership) ParticipantsOf(ctx context.Context, chatID string) ([]string, error) {
	return m.chats.ParticipantsOf(ctx, chatID)
}

// Authorize loads the chat and checks that userID belongs to it.
// Existence is reported before permission: NotFound for an unknown chat, PermissionDenied otherwise.
func (m *Membership) Authorize(ctx context.Context, chatID, userID string) (domain.Chat, error) {
	chat, err := m.chats.GetChat(ctx, chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	if !chat.HasParticipant(userID) {
		return domain.Chat{}, errors.ErrNotParticipant
	}
	return chat, nil
}
