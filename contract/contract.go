//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-core/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Connection is one live client session. A user may hold several at once.
// Send must not block indefinitely; a slow peer is reported as an error.
type Connection interface {
	ID() string
	UserID() string
	Send(ctx context.Context, payload []byte) error
	Close() error
}

type IRegistry interface {
	Register(conn Connection)
	Unregister(conn Connection)
	ConnectionsOf(userIDs []string) []Connection
	Count() int
}

// Broadcaster pushes a domain event to every live connection of the chat's participants.
type Broadcaster interface {
	Publish(ctx context.Context, evt event.DomainEvent) error
}

// Authenticator resolves a credential (bearer token) to a user id.
type Authenticator interface {
	Authenticate(credential string) (string, error)
}

// Membership answers the chat-scoped authorization questions.
// IsParticipant fails closed: any lookup failure reads as "not a participant".
type Membership interface {
	IsParticipant(ctx context.Context, chatID, userID string) bool
	ParticipantsOf(ctx context.Context, chatID string) ([]string, error)
}

// DeliveryTracker records that a user's live session received the chat's pending messages.
type DeliveryTracker interface {
	MarkDelivered(ctx context.Context, chatID, userID string) (int, error)
}
