package repositories

import (
	"chat-core/domain"
	"chat-core/errors"
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type ChatRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewChatRepository(db *badger.DB, log *slog.Logger) ChatRepository {
	return ChatRepository{db: db, log: log}
}

var _ IChatRepository = ChatRepository{}

type diskChat struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	ParticipantIDs []string `json:"participant_ids"`
	PairKey        string   `json:"pair_key,omitempty"`
	CreatedAt      int64    `json:"created_at"`
	LastActivity   int64    `json:"last_activity"`
}

func (c ChatRepository) CreateChat(_ context.Context, chat domain.Chat) (domain.Chat, error) {
	chat = stampChat(chat)
	err := update(c.db, func(txn *badger.Txn) error {
		return writeChat(txn, chat)
	})
	if err != nil {
		return domain.Chat{}, errors.Internal(err)
	}
	return chat, nil
}

// FindOrCreateSingleChat returns the chat already owning the pair, or persists the given one.
// The pair key is read and written in the same transaction: when two callers race,
// the loser's commit conflicts and its replay finds the winner's chat.
func (c ChatRepository) FindOrCreateSingleChat(_ context.Context, chat domain.Chat) (domain.Chat, bool, error) {
	if len(chat.ParticipantIDs) != 2 {
		return domain.Chat{}, false, errors.ErrSingleChatSize
	}
	pair := domain.PairKey(chat.ParticipantIDs[0], chat.ParticipantIDs[1])
	chat = stampChat(chat)

	var (
		result  domain.Chat
		created bool
	)
	err := update(c.db, func(txn *badger.Txn) error {
		result, created = domain.Chat{}, false

		existingID, err := getString(txn, pairKey(pair))
		switch {
		case err == nil:
			result, err = readChat(txn, existingID)
			return err
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if err = writeChat(txn, chat); err != nil {
			return err
		}
		if err = txn.Set(pairKey(pair), []byte(chat.ID)); err != nil {
			return err
		}
		result, created = chat, true
		return nil
	})
	if err != nil {
		return domain.Chat{}, false, errors.Internal(err)
	}
	return result, created, nil
}

func (c ChatRepository) FindSingleChat(_ context.Context, userA, userB string) (domain.Chat, error) {
	var chat domain.Chat
	err := c.db.View(func(txn *badger.Txn) error {
		id, err := getString(txn, pairKey(domain.PairKey(userA, userB)))
		if err != nil {
			return err
		}
		chat, err = readChat(txn, id)
		return err
	})
	if err != nil {
		return domain.Chat{}, notFound(err, errors.ErrChatNotFound)
	}
	return chat, nil
}

func (c ChatRepository) GetChat(_ context.Context, id string) (domain.Chat, error) {
	var chat domain.Chat
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		chat, err = readChat(txn, id)
		return err
	})
	if err != nil {
		return domain.Chat{}, notFound(err, errors.ErrChatNotFound)
	}
	return chat, nil
}

// ListChatsForUser walks the member:{user}: index and loads each chat.
func (c ChatRepository) ListChatsForUser(_ context.Context, userID string) ([]domain.Chat, error) {
	var chats []domain.Chat
	err := c.db.View(func(txn *badger.Txn) error {
		prefix := memberScanPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		var ids []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		for _, id := range ids {
			chat, err := readChat(txn, id)
			if err != nil {
				return err
			}
			chats = append(chats, chat)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Internal(err)
	}
	domain.SortByActivity(chats)
	return chats, nil
}

func (c ChatRepository) ListChatIDs(_ context.Context) ([]string, error) {
	var ids []string
	err := c.db.View(func(txn *badger.Txn) error {
		prefix := []byte(chatPrefix)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Internal(err)
	}
	return ids, nil
}

// AddParticipant is a no-op when the user already belongs to the chat.
func (c ChatRepository) AddParticipant(_ context.Context, chatID, userID string) (domain.Chat, error) {
	var chat domain.Chat
	err := update(c.db, func(txn *badger.Txn) error {
		var err error
		if chat, err = readChat(txn, chatID); err != nil {
			return notFound(err, errors.ErrChatNotFound)
		}
		if chat.HasParticipant(userID) {
			return nil
		}
		chat.ParticipantIDs = append(chat.ParticipantIDs, userID)
		return writeChat(txn, chat)
	})
	if err != nil {
		return domain.Chat{}, errors.Internal(err)
	}
	return chat, nil
}

// RemoveParticipant is a no-op for non-members. It refuses to empty the chat.
func (c ChatRepository) RemoveParticipant(_ context.Context, chatID, userID string) (domain.Chat, error) {
	var chat domain.Chat
	err := update(c.db, func(txn *badger.Txn) error {
		var err error
		if chat, err = readChat(txn, chatID); err != nil {
			return notFound(err, errors.ErrChatNotFound)
		}
		if !chat.HasParticipant(userID) {
			return nil
		}
		if len(chat.ParticipantIDs) == 1 {
			return errors.ErrLastParticipant
		}
		chat.ParticipantIDs = lo.Without(chat.ParticipantIDs, userID)
		if err = txn.Delete(memberKey(userID, chatID)); err != nil {
			return err
		}
		return writeChat(txn, chat)
	})
	if err != nil {
		return domain.Chat{}, errors.Internal(err)
	}
	return chat, nil
}

func (c ChatRepository) IsParticipant(_ context.Context, chatID, userID string) (bool, error) {
	var found bool
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = exists(txn, memberKey(userID, chatID))
		return err
	})
	if err != nil {
		return false, errors.Internal(err)
	}
	return found, nil
}

func (c ChatRepository) ParticipantsOf(ctx context.Context, chatID string) ([]string, error) {
	chat, err := c.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return chat.ParticipantIDs, nil
}

func stampChat(chat domain.Chat) domain.Chat {
	now := time.Now().UTC()
	chat.CreatedAt = now
	chat.LastActivity = now
	return chat
}

// writeChat stores the chat record and one member key per participant.
func writeChat(txn *badger.Txn, chat domain.Chat) error {
	var pair string
	if chat.Type == domain.SINGLE && len(chat.ParticipantIDs) == 2 {
		pair = domain.PairKey(chat.ParticipantIDs[0], chat.ParticipantIDs[1])
	}
	disk := diskChat{
		ID:             chat.ID,
		Name:           chat.Name,
		Type:           string(chat.Type),
		ParticipantIDs: chat.ParticipantIDs,
		PairKey:        pair,
		CreatedAt:      chat.CreatedAt.UnixNano(),
		LastActivity:   chat.LastActivity.UnixNano(),
	}
	if err := setJSON(txn, chatKey(chat.ID), disk); err != nil {
		return err
	}
	for _, userID := range chat.ParticipantIDs {
		if err := txn.Set(memberKey(userID, chat.ID), nil); err != nil {
			return err
		}
	}
	return nil
}

func readChat(txn *badger.Txn, id string) (domain.Chat, error) {
	var disk diskChat
	if err := getJSON(txn, chatKey(id), &disk); err != nil {
		return domain.Chat{}, err
	}
	return domain.Chat{
		ID:             disk.ID,
		Name:           disk.Name,
		Type:           domain.ChatType(disk.Type),
		ParticipantIDs: disk.ParticipantIDs,
		CreatedAt:      time.Unix(0, disk.CreatedAt).UTC(),
		LastActivity:   time.Unix(0, disk.LastActivity).UTC(),
	}, nil
}
