// Package runtime keeps the process-local state of live sessions and routes
// chat events to the connections that are allowed to see them.
package runtime

import (
	"chat-core/contract"
	"chat-core/domain/event"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Router delivers chat events to the live connections of the chat's participants.
// The recipient set is derived on every broadcast from the membership and the registry,
// nothing is cached, so a participant removed a millisecond ago stops receiving.
type Router struct {
	log         *slog.Logger
	registry    contract.IRegistry
	membership  contract.Membership
	delivery    contract.DeliveryTracker
	sendTimeout time.Duration
}

func NewRouter(log *slog.Logger, registry contract.IRegistry, membership contract.Membership, sendTimeout time.Duration) *Router {
	return &Router{log: log, registry: registry, membership: membership, sendTimeout: sendTimeout}
}

// WithDelivery moves a chat's SENT messages to DELIVERED for every recipient whose
// session accepted a new message.
func (r *Router) WithDelivery(delivery contract.DeliveryTracker) *Router {
	r.delivery = delivery
	return r
}

// OnConnect registers an already authenticated connection.
func (r *Router) OnConnect(conn contract.Connection) {
	r.registry.Register(conn)
	r.log.Debug("Connection registered", "user_id", conn.UserID(), "conn_id", conn.ID())
}

// OnDisconnect deregisters and closes the connection. Calling it twice is harmless.
func (r *Router) OnDisconnect(conn contract.Connection) {
	r.registry.Unregister(conn)
	if err := conn.Close(); err != nil {
		r.log.Debug("Closing connection", "conn_id", conn.ID(), "error", err)
	}
}

// Publish implements contract.Broadcaster.
func (r *Router) Publish(ctx context.Context, evt event.DomainEvent) error {
	_, err := r.BroadcastToChat(ctx, evt.ChatID(), evt)
	return err
}

// BroadcastToChat sends the event to every connection owned by a participant of chatID and
// returns how many sends succeeded. Each connection is served independently: a failing one
// is disconnected and never holds back the others.
func (r *Router) BroadcastToChat(ctx context.Context, chatID string, evt event.DomainEvent) (int, error) {
	// The broadcast belongs to the router: a caller giving up must not fail the recipients.
	detached := context.WithoutCancel(ctx)
	participants, err := r.membership.ParticipantsOf(detached, chatID)
	if err != nil {
		return 0, err
	}
	conns := r.registry.ConnectionsOf(participants)
	if len(conns) == 0 {
		return 0, nil
	}

	payload, err := event.Encode(evt)
	if err != nil {
		return 0, err
	}

	sendCtx := detached
	if r.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(detached, r.sendTimeout)
		defer cancel()
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
		reached   = make(map[string]struct{})
	)
	for _, conn := range conns {
		wg.Add(1)
		go func(conn contract.Connection) {
			defer wg.Done()
			if err := conn.Send(sendCtx, payload); err != nil {
				r.log.Warn("Dropping connection after failed send",
					"chat_id", chatID, "user_id", conn.UserID(), "conn_id", conn.ID(), "error", err)
				r.OnDisconnect(conn)
				return
			}
			mu.Lock()
			delivered++
			reached[conn.UserID()] = struct{}{}
			mu.Unlock()
		}(conn)
	}
	wg.Wait()

	if sent, ok := evt.(event.MessageSent); ok {
		r.markDelivered(detached, chatID, sent.Message.SenderID, reached)
	}
	return delivered, nil
}

func (r *Router) markDelivered(ctx context.Context, chatID, senderID string, reached map[string]struct{}) {
	if r.delivery == nil {
		return
	}
	for userID := range reached {
		if userID == senderID {
			continue
		}
		if _, err := r.delivery.MarkDelivered(ctx, chatID, userID); err != nil {
			r.log.Warn("Delivery not recorded", "chat_id", chatID, "user_id", userID, "error", err)
		}
	}
}
