package services

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/infrastructure/search"
	"chat-core/moderation"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessageService_SendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist and publish a message in a single chat", func(t *testing.T) {
		req := require.New(t)
		s := newStack(t)
		alice, bob := s.user(t, "alice"), s.user(t, "bob")
		chat := s.single(t, alice, bob)

		// When
		_, err := s.messageSvc.SendMessage(ctx, chat.ID, alice.ID, "  hi  ", "")
		req.NoError(err)

		// Then
		messages, err := s.messageSvc.ListMessages(ctx, chat.ID)
		req.NoError(err)
		req.Len(messages, 1)
		req.Equal("hi", messages[0].Content)
		req.Equal(domain.SENT, messages[0].Status)
		req.Equal(alice.ID, messages[0].SenderID)
		req.Equal(domain.TEXT, messages[0].Type)

		// And the router was handed the event before returning
		req.Equal([]event.Type{event.MessageSentType}, s.broadcaster.types())
	})

	t.Run("should check preconditions in order", func(t *testing.T) {
		s := newStack(t)
		alice, bob, carol := s.user(t, "alice"), s.user(t, "bob"), s.user(t, "carol")
		chat := s.single(t, alice, bob)

		tests := []struct {
			name     string
			chatID   string
			senderID string
			content  string
			kind     string
			wantErr  error
		}{
			{"blank content wins over unknown chat", "unknown", "ghost", "   ", "", errors.ErrEmptyContent},
			{"unknown type", chat.ID, alice.ID, "hi", "STICKER", errors.ErrUnknownMessageType},
			{"unknown chat wins over unknown sender", "unknown", "ghost", "hi", "", errors.ErrChatNotFound},
			{"unknown sender", chat.ID, "ghost", "hi", "", errors.ErrUserNotFound},
			{"not a participant", chat.ID, carol.ID, "hi", "TEXT", errors.ErrNotParticipant},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := require.New(t)
				_, err := s.messageSvc.SendMessage(ctx, tt.chatID, tt.senderID, tt.content, tt.kind)
				req.ErrorIs(err, tt.wantErr)
			})
		}

		req := require.New(t)
		messages, err := s.messageSvc.ListMessages(ctx, chat.ID)
		req.NoError(err)
		req.Empty(messages)
		req.Empty(s.broadcaster.types())
	})

	t.Run("should keep insertion order for messages sent in a burst", func(t *testing.T) {
		req := require.New(t)
		s := newStack(t)
		alice, bob := s.user(t, "alice"), s.user(t, "bob")
		chat := s.single(t, alice, bob)

		for i := 0; i < 20; i++ {
			s.send(t, chat, alice, fmt.Sprintf("m%02d", i))
		}

		messages, err := s.messageSvc.ListMessages(ctx, chat.ID)
		req.NoError(err)
		req.Len(messages, 20)
		for i, m := range messages {
			req.Equal(fmt.Sprintf("m%02d", i), m.Content)
		}
	})

	t.Run("should censor and tag content when a filter is set", func(t *testing.T) {
		req := require.New(t)
		s := newStack(t)
		mod, err := moderation.NewModerator([]string{"badger"}, '*', s.log)
		req.NoError(err)
		s.messageSvc.WithFilter(moderation.NewFilter(&mod, s.log))
		alice, bob := s.user(t, "alice"), s.user(t, "bob")
		chat := s.single(t, alice, bob)

		msg := s.send(t, chat, alice, "I love my b4dger")

		req.Equal("I love my ******", msg.Content)
	})
}

func TestMessageService_Pages(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	s := newStack(t)
	alice, bob := s.user(t, "alice"), s.user(t, "bob")
	chat := s.single(t, alice, bob)
	for i := 0; i < 5; i++ {
		s.send(t, chat, alice, fmt.Sprintf("m%d", i))
	}

	// Newest first
	page, err := s.messageSvc.ListMessagesPage(ctx, chat.ID, 0, 2)
	req.NoError(err)
	req.Equal([]string{"m4", "m3"}, contents(page.Messages))
	req.Equal(5, page.TotalMessages)
	req.Equal(3, page.TotalPages)
	req.True(page.HasMore)

	page, err = s.messageSvc.ListMessagesPage(ctx, chat.ID, 2, 2)
	req.NoError(err)
	req.Equal([]string{"m0"}, contents(page.Messages))
	req.False(page.HasMore)

	// Defaults and clamping
	page, err = s.messageSvc.ListMessagesPage(ctx, chat.ID, 0, 0)
	req.NoError(err)
	req.Equal(DefaultPageSize, page.PageSize)
	req.Len(page.Messages, 5)
	req.Equal(MaxPageSize, ClampPageSize(1000))
	req.Equal(1, ClampPageSize(-3))

	// Past the end is an empty page, not an error
	page, err = s.messageSvc.ListMessagesPage(ctx, chat.ID, 10, 2)
	req.NoError(err)
	req.Empty(page.Messages)
	req.NotNil(page.Messages)

	_, err = s.messageSvc.ListMessagesPage(ctx, chat.ID, -1, 2)
	req.ErrorIs(err, errors.ErrInvalidArgument)
	_, err = s.messageSvc.ListMessagesPage(ctx, "unknown", 0, 2)
	req.ErrorIs(err, errors.ErrNotFound)
	_, err = s.messageSvc.ListMessages(ctx, "unknown")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestMessageService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("should refuse deletion by someone else and keep the message", func(t *testing.T) {
		req := require.New(t)
		s := newStack(t)
		alice, bob := s.user(t, "alice"), s.user(t, "bob")
		chat := s.single(t, alice, bob)
		msg := s.send(t, chat, alice, "mine")

		err := s.messageSvc.DeleteMessage(ctx, msg.ID, bob.ID)

		req.ErrorIs(err, errors.ErrPermissionDenied)
		stored, err := s.messageSvc.GetMessage(ctx, msg.ID)
		req.NoError(err)
		req.Equal("mine", stored.Content)
	})

	t.Run("should hard delete for the sender and announce it", func(t *testing.T) {
		req := require.New(t)
		s := newStack(t)
		alice, bob := s.user(t, "alice"), s.user(t, "bob")
		chat := s.single(t, alice, bob)
		msg := s.send(t, chat, alice, "oops")

		req.NoError(s.messageSvc.DeleteMessage(ctx, msg.ID, alice.ID))

		_, err := s.messageSvc.GetMessage(ctx, msg.ID)
		req.ErrorIs(err, errors.ErrMessageNotFound)
		req.Equal([]event.Type{event.MessageSentType, event.MessageDeletedType}, s.broadcaster.types())

		err = s.messageSvc.DeleteMessage(ctx, msg.ID, alice.ID)
		req.ErrorIs(err, errors.ErrNotFound)
	})
}

func TestMessageService_Search(t *testing.T) {
	ctx := context.Background()

	run := func(t *testing.T, s *stack) {
		req := require.New(t)
		alice, bob := s.user(t, "alice"), s.user(t, "bob")
		chat := s.single(t, alice, bob)
		other := s.group(t, alice, bob)
		s.send(t, chat, alice, "Hello World")
		s.send(t, chat, bob, "nothing here")
		s.send(t, chat, alice, "say HELLO again")
		s.send(t, other, alice, "hello from elsewhere")

		found, err := s.messageSvc.SearchMessages(ctx, chat.ID, "hello")
		req.NoError(err)
		req.Equal([]string{"Hello World", "say HELLO again"}, contents(found))

		found, err = s.messageSvc.SearchMessages(ctx, chat.ID, "absent")
		req.NoError(err)
		req.Empty(found)

		_, err = s.messageSvc.SearchMessages(ctx, chat.ID, "  ")
		req.ErrorIs(err, errors.ErrBlankSearchTerm)
		_, err = s.messageSvc.SearchMessages(ctx, "unknown", "hello")
		req.ErrorIs(err, errors.ErrNotFound)
	}

	t.Run("should match case-insensitive substrings from the store", func(t *testing.T) {
		run(t, newStack(t))
	})

	t.Run("should match case-insensitive substrings from the index", func(t *testing.T) {
		s := newStack(t)
		index, err := search.NewBlugeIndex(t.TempDir(), s.log)
		require.NoError(t, err)
		t.Cleanup(func() { _ = index.Close() })
		s.messageSvc.WithIndex(index)
		run(t, s)
	})
}

func TestMessageService_LastMessage_And_Purge(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	s := newStack(t)
	alice, bob := s.user(t, "alice"), s.user(t, "bob")
	chat := s.single(t, alice, bob)

	last, err := s.messageSvc.LastMessage(ctx, chat.ID)
	req.NoError(err)
	req.Nil(last)

	s.send(t, chat, alice, "old")
	cutoff := time.Now()
	time.Sleep(2 * time.Millisecond)
	s.send(t, chat, bob, "new")

	last, err = s.messageSvc.LastMessage(ctx, chat.ID)
	req.NoError(err)
	req.Equal("new", last.Content)

	purged, err := s.messageSvc.PurgeMessagesBefore(ctx, chat.ID, cutoff)
	req.NoError(err)
	req.Equal(1, purged)

	messages, err := s.messageSvc.ListMessages(ctx, chat.ID)
	req.NoError(err)
	req.Equal([]string{"new"}, contents(messages))
}

func contents(messages []domain.Message) []string {
	res := make([]string, len(messages))
	for i, m := range messages {
		res[i] = m.Content
	}
	return res
}
