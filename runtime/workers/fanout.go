package workers

import (
	"chat-core/contract"
	"chat-core/domain/event"
	"chat-core/runtime"
	"context"
	"log/slog"
	"time"
)

const maxEnqueueWait = 5 * time.Second

// Fanout decouples event delivery from the request that produced the event.
//
// Events are queued on a shard chosen by hashing the chat id and each shard is drained
// by a single FanoutShard worker, so two events of the same chat reach the broadcaster
// in the order they were published. Chats sharing a shard share its queue.
//
// Fanout implements contract.Broadcaster and is safe for concurrent use.
type Fanout struct {
	log         *slog.Logger
	broadcaster contract.Broadcaster
	shards      []chan event.DomainEvent
}

func NewFanout(log *slog.Logger, broadcaster contract.Broadcaster, shards, bufferSize int) *Fanout {
	if shards <= 0 {
		shards = 1
	}
	f := &Fanout{log: log, broadcaster: broadcaster, shards: make([]chan event.DomainEvent, shards)}
	for i := range f.shards {
		f.shards[i] = make(chan event.DomainEvent, bufferSize)
	}
	return f
}

// Publish enqueues the event. An event that fits in the shard is always queued.
// Otherwise it blocks until ctx is done, and never longer than maxEnqueueWait.
func (f *Fanout) Publish(ctx context.Context, evt event.DomainEvent) error {
	shard := f.shards[f.shardOf(evt.ChatID())]
	select {
	case shard <- evt:
		return nil
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, maxEnqueueWait)
	defer cancel()
	select {
	case shard <- evt:
		return nil
	case <-ctx.Done():
		f.log.Warn("Fanout queue full, event dropped", "chat_id", evt.ChatID(), "type", evt.Type())
		return ctx.Err()
	}
}

// Workers returns one worker per shard, to be registered on the supervisor.
// The queues outlive a worker restart.
func (f *Fanout) Workers() []contract.Worker {
	res := make([]contract.Worker, len(f.shards))
	for i, ch := range f.shards {
		res[i] = FanoutShard{log: f.log.With("shard", i), broadcaster: f.broadcaster, events: ch}
	}
	return res
}

func (f *Fanout) shardOf(chatID string) int {
	return runtime.Shard(chatID, len(f.shards))
}

type FanoutShard struct {
	log         *slog.Logger
	broadcaster contract.Broadcaster
	events      <-chan event.DomainEvent
}

func (w FanoutShard) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			if err := w.broadcaster.Publish(ctx, evt); err != nil {
				w.log.Warn("Broadcast failed", "chat_id", evt.ChatID(), "type", evt.Type(), "error", err)
			}
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout shard")
			return nil
		}
	}
}
