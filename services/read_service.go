package services

import (
	"chat-core/contract"
	"chat-core/domain/event"
	"chat-core/repositories"
	"chat-core/runtime"
	"context"
	"log/slog"
	"time"
)

type IReadService interface {
	MarkRead(ctx context.Context, chatID, readerID string) (int, error)
	UnreadCount(ctx context.Context, chatID, readerID string) (int, error)
	MarkDelivered(ctx context.Context, chatID, userID string) (int, error)
	MarkDeliveredForUser(ctx context.Context, userID string) (int, error)
}

// ReadService is the read-tracking engine. Atomicity of the transitions is the store's job:
// MarkRead is one conditional write, never a read-then-write from here.
type ReadService struct {
	log         *slog.Logger
	membership  *Membership
	chats       repositories.IChatRepository
	messages    repositories.IMessageRepository
	broadcaster contract.Broadcaster
	locks       *runtime.ChatLocks
}

func NewReadService(log *slog.Logger, membership *Membership, chats repositories.IChatRepository,
	messages repositories.IMessageRepository, broadcaster contract.Broadcaster, locks *runtime.ChatLocks) *ReadService {
	return &ReadService{
		log:         log,
		membership:  membership,
		chats:       chats,
		messages:    messages,
		broadcaster: broadcaster,
		locks:       locks,
	}
}

// MarkRead marks every message of the chat not sent by the reader as read by the reader,
// and returns how many were newly read. A positive count is announced to the chat.
func (s *ReadService) MarkRead(ctx context.Context, chatID, readerID string) (int, error) {
	if _, err := s.membership.Authorize(ctx, chatID, readerID); err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(chatID)
	defer unlock()

	count, err := s.messages.MarkRead(ctx, chatID, readerID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		evt := event.MessagesRead{Chat: chatID, ReaderID: readerID, Count: count, At: time.Now().UTC()}
		if err := s.broadcaster.Publish(context.WithoutCancel(ctx), evt); err != nil {
			s.log.Warn("Read receipt not published", "chat_id", chatID, "error", err)
		}
	}
	return count, nil
}

func (s *ReadService) UnreadCount(ctx context.Context, chatID, readerID string) (int, error) {
	if _, err := s.membership.Authorize(ctx, chatID, readerID); err != nil {
		return 0, err
	}
	return s.messages.CountUnread(ctx, chatID, readerID)
}

// MarkDelivered moves the chat's SENT messages from others to DELIVERED. READ stays READ.
func (s *ReadService) MarkDelivered(ctx context.Context, chatID, userID string) (int, error) {
	if _, err := s.membership.Authorize(ctx, chatID, userID); err != nil {
		return 0, err
	}
	return s.messages.MarkDelivered(ctx, chatID, userID)
}

// MarkDeliveredForUser runs MarkDelivered on every chat of the user, typically once a live
// connection is open. A failing chat is logged and skipped.
func (s *ReadService) MarkDeliveredForUser(ctx context.Context, userID string) (int, error) {
	chats, err := s.chats.ListChatsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, chat := range chats {
		n, err := s.messages.MarkDelivered(ctx, chat.ID, userID)
		if err != nil {
			s.log.Warn("Delivered transition failed", "chat_id", chat.ID, "user_id", userID, "error", err)
			continue
		}
		total += n
	}
	return total, nil
}
