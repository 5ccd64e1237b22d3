package workers

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/mocks"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestFanout_Preserves_Per_Chat_Order(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	broadcaster := mocks.NewMockBroadcaster(ctrl)

	var (
		mu       sync.Mutex
		received = map[string][]string{}
		wg       sync.WaitGroup
	)
	const perChat = 50
	chats := []string{"c1", "c2", "c3"}
	wg.Add(perChat * len(chats))

	broadcaster.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, evt event.DomainEvent) error {
			defer wg.Done()
			mu.Lock()
			defer mu.Unlock()
			sent := evt.(event.MessageSent)
			received[sent.ChatID()] = append(received[sent.ChatID()], sent.Message.ID)
			return nil
		}).
		Times(perChat * len(chats))

	// Given a fanout with 2 shards supervised
	fanout := NewFanout(log, broadcaster, 2, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup := NewSupervisor(log, 0)
	go sup.Add(fanout.Workers()...).Run(ctx)

	// When each chat publishes in order
	for i := 0; i < perChat; i++ {
		for _, chatID := range chats {
			msg := domain.Message{ID: fmt.Sprintf("%s-%03d", chatID, i), ChatID: chatID}
			req.NoError(fanout.Publish(ctx, event.MessageSent{Message: msg}))
		}
	}
	wg.Wait()

	// Then every chat is received in publish order
	for _, chatID := range chats {
		req.Len(received[chatID], perChat)
		for i, id := range received[chatID] {
			req.Equal(fmt.Sprintf("%s-%03d", chatID, i), id)
		}
	}
}

func TestFanout_Publish_Gives_Up_When_Full(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)

	// Given no worker drains the single slot queue
	fanout := NewFanout(log, mocks.NewMockBroadcaster(ctrl), 1, 1)
	evt := event.MessageSent{Message: domain.Message{ID: "m1", ChatID: "c1"}}
	req.NoError(fanout.Publish(context.Background(), evt))

	// When the queue is full
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := fanout.Publish(ctx, evt)

	// Then the caller is released on its deadline
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestFanout_Publish_Queues_With_Cancelled_Context(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)

	// Given an idle fanout with room for every event
	fanout := NewFanout(log, mocks.NewMockBroadcaster(ctrl), 1, 32)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When the publisher's context is already done
	for i := 0; i < 20; i++ {
		evt := event.MessageSent{Message: domain.Message{ID: fmt.Sprintf("m%d", i), ChatID: "c1"}}
		req.NoError(fanout.Publish(ctx, evt))
	}

	// Then nothing was dropped
	req.Len(fanout.shards[0], 20)
}
