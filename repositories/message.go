package repositories

import (
	"bytes"
	"chat-core/domain"
	"chat-core/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type MessageRepository struct {
	db    *badger.DB
	log   *slog.Logger
	clock *clock
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log, clock: newClock()}
}

var _ IMessageRepository = MessageRepository{}

type diskMessage struct {
	ID       string `json:"id"`
	ChatID   string `json:"chat_id"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Language string `json:"language,omitempty"`
	At       int64  `json:"at"`
}

// AppendMessage persists a message in BadgerDB and bumps the chat's last activity.
// The key is formatted as "msg:{chat_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Keep insertion order on equal wall-clock readings, the clock never repeats a timestamp.
func (m MessageRepository) AppendMessage(_ context.Context, message domain.Message) (domain.Message, error) {
	var stored domain.Message
	err := update(m.db, func(txn *badger.Txn) error {
		chat, err := readChat(txn, message.ChatID)
		if err != nil {
			return notFound(err, errors.ErrChatNotFound)
		}

		stored = message
		stored.CreatedAt = m.clock.Next()
		key := messageKey(stored.ChatID, stored.CreatedAt, stored.ID)
		if err = setJSON(txn, key, fromMessage(stored)); err != nil {
			return err
		}
		if err = txn.Set(messageIndexKey(stored.ID), key); err != nil {
			return err
		}

		chat.LastActivity = stored.CreatedAt
		return writeChat(txn, chat)
	})
	if err != nil {
		return domain.Message{}, errors.Internal(err)
	}
	return stored, nil
}

// ListMessages returns the whole history of a chat, oldest first.
func (m MessageRepository) ListMessages(_ context.Context, chatID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		return scanMessages(txn, chatID, false, func(_ []byte, msg domain.Message) bool {
			messages = append(messages, msg)
			return true
		})
	})
	if err != nil {
		return nil, errors.Internal(err)
	}
	return messages, nil
}

// ListMessagesPage returns one page of history, newest first, and the chat's total message count.
// Only the keys of the requested page have their values decoded.
func (m MessageRepository) ListMessagesPage(_ context.Context, chatID string, page, pageSize int) ([]domain.Message, int, error) {
	var (
		messages []domain.Message
		total    int
	)
	skip := page * pageSize
	err := m.db.View(func(txn *badger.Txn) error {
		if _, err := readChat(txn, chatID); err != nil {
			return notFound(err, errors.ErrChatNotFound)
		}

		prefix := messageScanPrefix(chatID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(seekLast(prefix)); it.ValidForPrefix(prefix); it.Next() {
			if total >= skip && total < skip+pageSize {
				msg, err := decodeMessage(it.Item())
				if err != nil {
					return err
				}
				messages = append(messages, msg)
			}
			total++
		}
		return nil
	})
	if err != nil {
		return nil, 0, errors.Internal(err)
	}
	return messages, total, nil
}

func (m MessageRepository) GetMessage(_ context.Context, id string) (domain.Message, error) {
	var msg domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		key, err := getString(txn, messageIndexKey(id))
		if err != nil {
			return err
		}
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		msg, err = decodeMessage(item)
		return err
	})
	if err != nil {
		return domain.Message{}, notFound(err, errors.ErrMessageNotFound)
	}
	return msg, nil
}

func (m MessageRepository) DeleteMessage(_ context.Context, id string) error {
	err := update(m.db, func(txn *badger.Txn) error {
		key, err := getString(txn, messageIndexKey(id))
		if err != nil {
			return notFound(err, errors.ErrMessageNotFound)
		}
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		msg, err := decodeMessage(item)
		if err != nil {
			return err
		}
		return deleteMessageKeys(txn, []byte(key), msg.ChatID, id)
	})
	return errors.Internal(err)
}

// SearchMessages is the scan fallback used when no full-text index is configured.
func (m MessageRepository) SearchMessages(_ context.Context, chatID, term string) ([]domain.Message, error) {
	needle := strings.ToLower(term)
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		return scanMessages(txn, chatID, false, func(_ []byte, msg domain.Message) bool {
			if strings.Contains(strings.ToLower(msg.Content), needle) {
				messages = append(messages, msg)
			}
			return true
		})
	})
	if err != nil {
		return nil, errors.Internal(err)
	}
	return messages, nil
}

func (m MessageRepository) LastMessage(_ context.Context, chatID string) (*domain.Message, error) {
	var last *domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		return scanMessages(txn, chatID, true, func(_ []byte, msg domain.Message) bool {
			last = &msg
			return false
		})
	})
	if err != nil {
		return nil, errors.Internal(err)
	}
	return last, nil
}

// hasReceipt reports whether a read receipt is stored under key. Replaced in tests.
var hasReceipt = exists

// MarkRead records a receipt for every message of the chat sent by someone else that
// readerID hasn't read yet, and moves those messages to READ.
// The scan and the writes share one transaction; a concurrent MarkRead for the same reader
// reads the same receipt keys, so one of the commits conflicts and replays: each receipt is
// counted once.
func (m MessageRepository) MarkRead(_ context.Context, chatID, readerID string) (int, error) {
	var count int
	err := update(m.db, func(txn *badger.Txn) error {
		count = 0
		var changes []statusChange
		var receipts [][]byte
		var lookupErr error
		err := scanMessages(txn, chatID, false, func(key []byte, msg domain.Message) bool {
			if msg.SenderID == readerID {
				return true
			}
			rk := receiptKey(chatID, msg.ID, readerID)
			read, err := hasReceipt(txn, rk)
			if err != nil {
				lookupErr = err
				return false
			}
			if read {
				return true
			}
			receipts = append(receipts, rk)
			if msg.Status.CanBecome(domain.READ) {
				msg.Status = domain.READ
				changes = append(changes, statusChange{key: key, msg: msg})
			}
			return true
		})
		if err != nil {
			return err
		}
		// A failed lookup aborts the whole transaction: no receipt is written.
		if lookupErr != nil {
			return lookupErr
		}
		at := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		for _, rk := range receipts {
			if err = txn.Set(rk, at); err != nil {
				return err
			}
		}
		if err = applyChanges(txn, changes); err != nil {
			return err
		}
		count = len(receipts)
		return nil
	})
	if err != nil {
		return 0, errors.Internal(err)
	}
	return count, nil
}

// MarkDelivered moves SENT messages not sent by userID to DELIVERED. READ is left alone.
func (m MessageRepository) MarkDelivered(_ context.Context, chatID, userID string) (int, error) {
	var count int
	err := update(m.db, func(txn *badger.Txn) error {
		count = 0
		var changes []statusChange
		err := scanMessages(txn, chatID, false, func(key []byte, msg domain.Message) bool {
			if msg.SenderID != userID && msg.Status.CanBecome(domain.DELIVERED) {
				msg.Status = domain.DELIVERED
				changes = append(changes, statusChange{key: key, msg: msg})
			}
			return true
		})
		if err != nil {
			return err
		}
		count = len(changes)
		return applyChanges(txn, changes)
	})
	if err != nil {
		return 0, errors.Internal(err)
	}
	return count, nil
}

type statusChange struct {
	key []byte
	msg domain.Message
}

func applyChanges(txn *badger.Txn, changes []statusChange) error {
	for _, c := range changes {
		if err := setJSON(txn, c.key, fromMessage(c.msg)); err != nil {
			return err
		}
	}
	return nil
}

// CountUnread counts messages from other senders that readerID has no receipt for.
func (m MessageRepository) CountUnread(_ context.Context, chatID, readerID string) (int, error) {
	var count int
	err := m.db.View(func(txn *badger.Txn) error {
		var lookupErr error
		err := scanMessages(txn, chatID, false, func(_ []byte, msg domain.Message) bool {
			if msg.SenderID == readerID {
				return true
			}
			read, err := hasReceipt(txn, receiptKey(chatID, msg.ID, readerID))
			if err != nil {
				lookupErr = err
				return false
			}
			if !read {
				count++
			}
			return true
		})
		if err != nil {
			return err
		}
		return lookupErr
	})
	if err != nil {
		return 0, errors.Internal(err)
	}
	return count, nil
}

// DeleteMessagesBefore drops every message of the chat created strictly before the given time.
// Keys are time-ordered, so the scan stops at the first key at or past the boundary.
func (m MessageRepository) DeleteMessagesBefore(_ context.Context, chatID string, before time.Time) (int, error) {
	var count int
	boundary := []byte(fmt.Sprintf("%s%019d", messageScanPrefix(chatID), before.UnixNano()))
	err := update(m.db, func(txn *badger.Txn) error {
		count = 0
		prefix := messageScanPrefix(chatID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if bytes.Compare(key, boundary) >= 0 {
				break
			}
			keys = append(keys, key)
		}
		it.Close()

		for _, key := range keys {
			id := string(key[bytes.LastIndexByte(key, ':')+1:])
			if err := deleteMessageKeys(txn, key, chatID, id); err != nil {
				return err
			}
		}
		count = len(keys)
		return nil
	})
	if err != nil {
		return 0, errors.Internal(err)
	}
	if count > 0 {
		m.log.Debug("Purged old messages", "chat_id", chatID, "count", count)
	}
	return count, nil
}

// deleteMessageKeys removes a message, its id index and every read receipt it collected.
func deleteMessageKeys(txn *badger.Txn, key []byte, chatID, id string) error {
	prefix := receiptScanPrefix(chatID, id)
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	var receipts [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		receipts = append(receipts, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range append(receipts, key, messageIndexKey(id)) {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// scanMessages visits the chat's messages in key order (or reverse) until visit returns false.
// Keys handed to visit are copies and stay valid after the iterator moves.
func scanMessages(txn *badger.Txn, chatID string, reverse bool, visit func(key []byte, msg domain.Message) bool) error {
	prefix := messageScanPrefix(chatID)
	options := badger.DefaultIteratorOptions
	options.Reverse = reverse
	it := txn.NewIterator(options)
	defer it.Close()

	seek := prefix
	if reverse {
		seek = seekLast(prefix)
	}
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		msg, err := decodeMessage(item)
		if err != nil {
			return err
		}
		if !visit(item.KeyCopy(nil), msg) {
			return nil
		}
	}
	return nil
}

// seekLast positions a reverse iterator after every key sharing prefix.
func seekLast(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), 0xFF)
}

func decodeMessage(item *badger.Item) (domain.Message, error) {
	var disk diskMessage
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &disk)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return toMessage(disk), nil
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:       message.ID,
		ChatID:   message.ChatID,
		SenderID: message.SenderID,
		Content:  message.Content,
		Type:     string(message.Type),
		Status:   string(message.Status),
		Language: message.Language,
		At:       message.CreatedAt.UnixNano(),
	}
}

func toMessage(disk diskMessage) domain.Message {
	return domain.Message{
		ID:        disk.ID,
		ChatID:    disk.ChatID,
		SenderID:  disk.SenderID,
		Content:   disk.Content,
		Type:      domain.MessageType(disk.Type),
		Status:    domain.MessageStatus(disk.Status),
		Language:  disk.Language,
		CreatedAt: time.Unix(0, disk.At).UTC(),
	}
}
