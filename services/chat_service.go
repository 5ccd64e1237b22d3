package services

import (
	"chat-core/domain"
	"chat-core/errors"
	"chat-core/repositories"
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IChatService interface {
	CreateChat(ctx context.Context, participantIDs []string, name, chatType string) (domain.Chat, error)
	GetChat(ctx context.Context, chatID string) (domain.Chat, error)
	ListChatsForUser(ctx context.Context, userID string) ([]domain.Chat, error)
	ListChatSummaries(ctx context.Context, userID string) ([]domain.ChatSummary, error)
	AddParticipant(ctx context.Context, chatID, userID string) (domain.Chat, error)
	RemoveParticipant(ctx context.Context, chatID, userID string) (domain.Chat, error)
}

// ChatService is the chat directory: creation with SINGLE-pair dedup, lookup and membership changes.
type ChatService struct {
	log      *slog.Logger
	users    repositories.IUserRepository
	chats    repositories.IChatRepository
	messages repositories.IMessageRepository
}

func NewChatService(log *slog.Logger, users repositories.IUserRepository,
	chats repositories.IChatRepository, messages repositories.IMessageRepository) *ChatService {
	return &ChatService{log: log, users: users, chats: chats, messages: messages}
}

// CreateChat validates the request, then returns the existing SINGLE chat of the pair if any,
// or persists a new chat. Nothing is written when validation fails.
func (s *ChatService) CreateChat(ctx context.Context, participantIDs []string, name, chatType string) (domain.Chat, error) {
	kind, ok := domain.ToChatType(chatType)
	if !ok {
		return domain.Chat{}, errors.ErrUnknownChatType
	}
	ids := lo.Uniq(lo.Map(participantIDs, func(id string, _ int) string { return strings.TrimSpace(id) }))
	ids = lo.Without(ids, "")
	if len(ids) == 0 {
		return domain.Chat{}, errors.ErrEmptyParticipants
	}

	if kind == domain.SINGLE {
		if len(participantIDs) != 2 || len(ids) != 2 {
			return domain.Chat{}, errors.ErrSingleChatSize
		}
		existing, err := s.chats.FindSingleChat(ctx, ids[0], ids[1])
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, errors.ErrNotFound) {
			return domain.Chat{}, err
		}
	}

	for _, id := range ids {
		found, err := s.users.UserExists(ctx, id)
		if err != nil {
			return domain.Chat{}, err
		}
		if !found {
			return domain.Chat{}, errors.ErrUnknownParticipant
		}
	}

	chat := domain.Chat{
		ID:             uuid.NewString(),
		Type:           kind,
		ParticipantIDs: ids,
	}
	if kind == domain.GROUP {
		chat.Name = strings.TrimSpace(name)
		created, err := s.chats.CreateChat(ctx, chat)
		if err != nil {
			return domain.Chat{}, err
		}
		s.log.Debug("Group chat created", "chat_id", created.ID, "participants", len(ids))
		return created, nil
	}

	// The store settles concurrent creations of the same pair
	result, created, err := s.chats.FindOrCreateSingleChat(ctx, chat)
	if err != nil {
		return domain.Chat{}, err
	}
	if created {
		s.log.Debug("Single chat created", "chat_id", result.ID)
	}
	return result, nil
}

func (s *ChatService) GetChat(ctx context.Context, chatID string) (domain.Chat, error) {
	return s.chats.GetChat(ctx, chatID)
}

// ListChatsForUser returns the user's chats, most recently active first.
func (s *ChatService) ListChatsForUser(ctx context.Context, userID string) ([]domain.Chat, error) {
	found, err := s.users.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.ErrUnknownUser
	}
	chats, err := s.chats.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	domain.SortByActivity(chats)
	return chats, nil
}

// ListChatSummaries decorates ListChatsForUser with the last message and the caller's unread count.
func (s *ChatService) ListChatSummaries(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	chats, err := s.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		last, err := s.messages.LastMessage(ctx, chat.ID)
		if err != nil {
			return nil, err
		}
		unread, err := s.messages.CountUnread(ctx, chat.ID, userID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, domain.ChatSummary{Chat: chat, LastMessage: last, UnreadCount: unread})
	}
	return summaries, nil
}

func (s *ChatService) AddParticipant(ctx context.Context, chatID, userID string) (domain.Chat, error) {
	if err := s.checkMutable(ctx, chatID, userID); err != nil {
		return domain.Chat{}, err
	}
	return s.chats.AddParticipant(ctx, chatID, userID)
}

// RemoveParticipant is a no-op for a user who isn't a member.
func (s *ChatService) RemoveParticipant(ctx context.Context, chatID, userID string) (domain.Chat, error) {
	if err := s.checkMutable(ctx, chatID, userID); err != nil {
		return domain.Chat{}, err
	}
	return s.chats.RemoveParticipant(ctx, chatID, userID)
}

func (s *ChatService) checkMutable(ctx context.Context, chatID, userID string) error {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.Type != domain.GROUP {
		return errors.ErrSingleChatImmutable
	}
	found, err := s.users.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !found {
		return errors.ErrUnknownParticipant
	}
	return nil
}

