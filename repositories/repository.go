//go:generate go run go.uber.org/mock/mockgen -source=repository.go -destination=../mocks/mock_repository.go -package=mocks
package repositories

import (
	"chat-core/domain"
	"context"
	"time"
)

// IUserRepository stores accounts. Email and username are unique, compared case-insensitively.
type IUserRepository interface {
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	UserExists(ctx context.Context, id string) (bool, error)
	SearchUsers(ctx context.Context, term string, limit int) ([]domain.User, error)
	UpdateUsername(ctx context.Context, id, username string) (domain.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// IChatRepository stores chats and their participant sets.
// FindOrCreateSingleChat is the only way a SINGLE chat gets persisted: the pair lookup
// and the insert happen in one transaction so a pair never owns two chats.
type IChatRepository interface {
	CreateChat(ctx context.Context, chat domain.Chat) (domain.Chat, error)
	FindOrCreateSingleChat(ctx context.Context, chat domain.Chat) (domain.Chat, bool, error)
	FindSingleChat(ctx context.Context, userA, userB string) (domain.Chat, error)
	GetChat(ctx context.Context, id string) (domain.Chat, error)
	ListChatsForUser(ctx context.Context, userID string) ([]domain.Chat, error)
	ListChatIDs(ctx context.Context) ([]string, error)
	AddParticipant(ctx context.Context, chatID, userID string) (domain.Chat, error)
	RemoveParticipant(ctx context.Context, chatID, userID string) (domain.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
	ParticipantsOf(ctx context.Context, chatID string) ([]string, error)
}

// IMessageRepository stores messages ordered by the timestamp it assigns at write time.
// Read state is kept per reader as receipts: MarkRead records one receipt per message the
// reader hadn't read yet, atomically, and CountUnread counts messages from others without one.
// Message.Status only ever moves forward.
type IMessageRepository interface {
	AppendMessage(ctx context.Context, message domain.Message) (domain.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]domain.Message, error)
	ListMessagesPage(ctx context.Context, chatID string, page, pageSize int) ([]domain.Message, int, error)
	GetMessage(ctx context.Context, id string) (domain.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	SearchMessages(ctx context.Context, chatID, term string) ([]domain.Message, error)
	LastMessage(ctx context.Context, chatID string) (*domain.Message, error)
	MarkRead(ctx context.Context, chatID, readerID string) (int, error)
	MarkDelivered(ctx context.Context, chatID, userID string) (int, error)
	CountUnread(ctx context.Context, chatID, readerID string) (int, error)
	DeleteMessagesBefore(ctx context.Context, chatID string, before time.Time) (int, error)
}
