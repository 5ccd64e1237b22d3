package services

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/repositories"
	"chat-core/runtime"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []event.DomainEvent

	// doneContexts counts events published with an already done context.
	doneContexts int
}

func (r *recordingBroadcaster) Publish(ctx context.Context, evt event.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx.Err() != nil {
		r.doneContexts++
	}
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingBroadcaster) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]event.Type, len(r.events))
	for i, evt := range r.events {
		res[i] = evt.Type()
	}
	return res
}

// stack wires the services on an in-memory Badger, the way cmd/server does.
type stack struct {
	log         *slog.Logger
	users       repositories.UserRepository
	chats       repositories.ChatRepository
	messages    repositories.MessageRepository
	membership  *Membership
	broadcaster *recordingBroadcaster
	chatSvc     *ChatService
	messageSvc  *MessageService
	readSvc     *ReadService
}

func newStack(t *testing.T) *stack {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	s := &stack{
		log:         log,
		users:       repositories.NewUserRepository(db, log),
		chats:       repositories.NewChatRepository(db, log),
		messages:    repositories.NewMessageRepository(db, log),
		broadcaster: &recordingBroadcaster{},
	}
	locks := runtime.NewChatLocks(16)
	s.membership = NewMembership(log, s.chats)
	s.chatSvc = NewChatService(log, s.users, s.chats, s.messages)
	s.messageSvc = NewMessageService(log, s.users, s.chats, s.messages, s.broadcaster, locks)
	s.readSvc = NewReadService(log, s.membership, s.chats, s.messages, s.broadcaster, locks)
	return s
}

func (s *stack) user(t *testing.T, name string) domain.User {
	user, err := s.users.CreateUser(context.Background(), domain.User{
		ID:       uuid.NewString(),
		Email:    name + "@example.com",
		Username: name,
	})
	require.NoError(t, err)
	return user
}

func (s *stack) single(t *testing.T, a, b domain.User) domain.Chat {
	chat, err := s.chatSvc.CreateChat(context.Background(), []string{a.ID, b.ID}, "", "SINGLE")
	require.NoError(t, err)
	return chat
}

func (s *stack) group(t *testing.T, members ...domain.User) domain.Chat {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	chat, err := s.chatSvc.CreateChat(context.Background(), ids, "team", "GROUP")
	require.NoError(t, err)
	return chat
}

func (s *stack) send(t *testing.T, chat domain.Chat, sender domain.User, content string) domain.Message {
	msg, err := s.messageSvc.SendMessage(context.Background(), chat.ID, sender.ID, content, "")
	require.NoError(t, err)
	return msg
}
