package services

import (
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/infrastructure/search"
	"chat-core/moderation"
	"chat-core/repositories"
	"chat-core/runtime"
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
	searchLimit     = 1000
)

type IMessageService interface {
	SendMessage(ctx context.Context, chatID, senderID, content, messageType string) (domain.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]domain.Message, error)
	ListMessagesPage(ctx context.Context, chatID string, page, pageSize int) (domain.MessagePage, error)
	GetMessage(ctx context.Context, messageID string) (domain.Message, error)
	DeleteMessage(ctx context.Context, messageID, requesterID string) error
	SearchMessages(ctx context.Context, chatID, term string) ([]domain.Message, error)
	LastMessage(ctx context.Context, chatID string) (*domain.Message, error)
	PurgeMessagesBefore(ctx context.Context, chatID string, before time.Time) (int, error)
}

// MessageService holds the message lifecycle. Writes to one chat and the events they
// produce go through the chat's lock, so recipients observe events in persistence order.
type MessageService struct {
	log         *slog.Logger
	users       repositories.IUserRepository
	chats       repositories.IChatRepository
	messages    repositories.IMessageRepository
	broadcaster contract.Broadcaster
	locks       *runtime.ChatLocks
	index       search.IMessageIndex
	filter      moderation.Filter
}

func NewMessageService(log *slog.Logger, users repositories.IUserRepository, chats repositories.IChatRepository,
	messages repositories.IMessageRepository, broadcaster contract.Broadcaster, locks *runtime.ChatLocks) *MessageService {
	return &MessageService{
		log:         log,
		users:       users,
		chats:       chats,
		messages:    messages,
		broadcaster: broadcaster,
		locks:       locks,
		filter:      moderation.NewFilter(nil, log),
	}
}

// WithIndex makes search go through the full-text index. The store stays the source of truth.
func (s *MessageService) WithIndex(index search.IMessageIndex) *MessageService {
	s.index = index
	return s
}

func (s *MessageService) WithFilter(filter moderation.Filter) *MessageService {
	s.filter = filter
	return s
}

// SendMessage validates, persists and publishes a message. Checks run in this order:
// content, type, chat existence, sender existence, membership.
// When it returns, delivery to the live connections has been attempted (or queued).
func (s *MessageService) SendMessage(ctx context.Context, chatID, senderID, content, messageType string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, errors.ErrEmptyContent
	}
	kind, ok := domain.ToMessageType(messageType)
	if !ok {
		return domain.Message{}, errors.ErrUnknownMessageType
	}

	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return domain.Message{}, err
	}
	found, err := s.users.UserExists(ctx, senderID)
	if err != nil {
		return domain.Message{}, err
	}
	if !found {
		return domain.Message{}, errors.ErrUserNotFound
	}
	if !chat.HasParticipant(senderID) {
		return domain.Message{}, errors.ErrNotParticipant
	}

	sanitized := s.filter.Apply(content)
	message := domain.Message{
		ID:       uuid.NewString(),
		ChatID:   chatID,
		SenderID: senderID,
		Content:  sanitized.Content,
		Type:     kind,
		Status:   domain.SENT,
		Language: sanitized.Language,
	}

	unlock := s.locks.Lock(chatID)
	defer unlock()

	stored, err := s.messages.AppendMessage(ctx, message)
	if err != nil {
		s.log.Error("Message not persisted", "chat_id", chatID, "error", err)
		return domain.Message{}, err
	}
	if s.index != nil {
		if err := s.index.Index(stored); err != nil {
			s.log.Warn("Message not indexed", "message_id", stored.ID, "error", err)
		}
	}
	s.publish(ctx, event.MessageSent{Message: stored})
	return stored, nil
}

// ListMessages returns the whole history of the chat, oldest first.
func (s *MessageService) ListMessages(ctx context.Context, chatID string) ([]domain.Message, error) {
	if _, err := s.chats.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	return s.messages.ListMessages(ctx, chatID)
}

// ListMessagesPage returns one page of history, newest first. A zero size means DefaultPageSize,
// any other size is clamped to [1, MaxPageSize].
func (s *MessageService) ListMessagesPage(ctx context.Context, chatID string, page, pageSize int) (domain.MessagePage, error) {
	if page < 0 {
		return domain.MessagePage{}, errors.ErrInvalidPage
	}
	pageSize = ClampPageSize(pageSize)

	if _, err := s.chats.GetChat(ctx, chatID); err != nil {
		return domain.MessagePage{}, err
	}
	messages, total, err := s.messages.ListMessagesPage(ctx, chatID, page, pageSize)
	if err != nil {
		return domain.MessagePage{}, err
	}
	return domain.NewMessagePage(chatID, messages, page, pageSize, total), nil
}

func ClampPageSize(size int) int {
	switch {
	case size == 0:
		return DefaultPageSize
	case size < 1:
		return 1
	case size > MaxPageSize:
		return MaxPageSize
	default:
		return size
	}
}

// GetMessage doesn't check which chat the message belongs to, callers do.
func (s *MessageService) GetMessage(ctx context.Context, messageID string) (domain.Message, error) {
	return s.messages.GetMessage(ctx, messageID)
}

// DeleteMessage hard-deletes a message. Only its sender may do it.
func (s *MessageService) DeleteMessage(ctx context.Context, messageID, requesterID string) error {
	message, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if message.SenderID != requesterID {
		return errors.ErrNotSender
	}

	unlock := s.locks.Lock(message.ChatID)
	defer unlock()

	if err := s.messages.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.Remove(messageID); err != nil {
			s.log.Warn("Message not removed from index", "message_id", messageID, "error", err)
		}
	}
	s.publish(ctx, event.MessageDeleted{Chat: message.ChatID, MessageID: messageID, DeletedBy: requesterID})
	return nil
}

// SearchMessages is a case-insensitive substring search, oldest match first.
func (s *MessageService) SearchMessages(ctx context.Context, chatID, term string) ([]domain.Message, error) {
	if strings.TrimSpace(term) == "" {
		return nil, errors.ErrBlankSearchTerm
	}
	if _, err := s.chats.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	if s.index == nil {
		return s.messages.SearchMessages(ctx, chatID, term)
	}

	ids, err := s.index.Search(ctx, chatID, term, searchLimit)
	if err != nil {
		s.log.Warn("Index search failed, scanning the store", "chat_id", chatID, "error", err)
		return s.messages.SearchMessages(ctx, chatID, term)
	}
	res := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		message, err := s.messages.GetMessage(ctx, id)
		if errors.Is(err, errors.ErrNotFound) {
			// purged or deleted while the index lagged
			continue
		}
		if err != nil {
			return nil, err
		}
		if message.ChatID == chatID {
			res = append(res, message)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (s *MessageService) LastMessage(ctx context.Context, chatID string) (*domain.Message, error) {
	if _, err := s.chats.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	return s.messages.LastMessage(ctx, chatID)
}

// PurgeMessagesBefore hard-deletes the chat's messages created before the cutoff.
func (s *MessageService) PurgeMessagesBefore(ctx context.Context, chatID string, before time.Time) (int, error) {
	unlock := s.locks.Lock(chatID)
	defer unlock()
	return s.messages.DeleteMessagesBefore(ctx, chatID, before)
}

// publish never fails the caller: the write is committed, delivery is best effort.
// The caller going away doesn't cancel delivery to the other participants.
func (s *MessageService) publish(ctx context.Context, evt event.DomainEvent) {
	if err := s.broadcaster.Publish(context.WithoutCancel(ctx), evt); err != nil {
		s.log.Warn("Event not published", "chat_id", evt.ChatID(), "type", evt.Type(), "error", err)
	}
}
