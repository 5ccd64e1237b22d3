package repositories

import (
	"chat-core/errors"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key layout:
//
//	user:id:{id}                  -> diskUser
//	user:email:{lower(email)}     -> id
//	user:name:{lower(username)}   -> id
//	chat:{id}                     -> diskChat
//	pair:{min}:{max}              -> chat id (SINGLE chats only)
//	member:{user}:{chat}          -> empty
//	msg:{chat}:{ts19}:{id}        -> diskMessage
//	msgid:{id}                    -> msg key
//	receipt:{chat}:{msg}:{reader} -> read time (unix nano)
const (
	userPrefix     = "user:id:"
	emailPrefix    = "user:email:"
	usernamePrefix = "user:name:"
	chatPrefix     = "chat:"
	pairPrefix     = "pair:"
	memberPrefix   = "member:"
	msgPrefix      = "msg:"
	msgIndexPrefix = "msgid:"
	receiptPrefix  = "receipt:"
)

const maxTxnRetries = 8

func userKey(id string) []byte           { return []byte(userPrefix + id) }
func emailKey(email string) []byte       { return []byte(emailPrefix + email) }
func usernameKey(username string) []byte { return []byte(usernamePrefix + username) }
func chatKey(id string) []byte           { return []byte(chatPrefix + id) }
func pairKey(pair string) []byte         { return []byte(pairPrefix + pair) }
func memberKey(userID, chatID string) []byte {
	return []byte(memberPrefix + userID + ":" + chatID)
}
func memberScanPrefix(userID string) []byte { return []byte(memberPrefix + userID + ":") }
func messageScanPrefix(chatID string) []byte {
	return []byte(msgPrefix + chatID + ":")
}

// messageKey embeds a 19-digit zero padded timestamp so a prefix scan returns
// messages in chronological order.
func messageKey(chatID string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", msgPrefix, chatID, at.UnixNano(), id))
}
func messageIndexKey(id string) []byte { return []byte(msgIndexPrefix + id) }
func receiptScanPrefix(chatID, messageID string) []byte {
	return []byte(receiptPrefix + chatID + ":" + messageID + ":")
}
func receiptKey(chatID, messageID, readerID string) []byte {
	return []byte(receiptPrefix + chatID + ":" + messageID + ":" + readerID)
}

// update runs fn in a read-write transaction. Badger aborts a commit whose reads were
// overwritten by a concurrent commit; fn is then replayed against fresh data.
// fn must reset any state it accumulates.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err := db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return errors.ErrTxnConflict
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(key, data)
}

func getString(txn *badger.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	return string(val), err
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

// notFound maps badger.ErrKeyNotFound to the given domain error and
// anything else unexpected to an internal error.
func notFound(err error, target error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return target
	}
	return errors.Internal(err)
}

// clock hands out strictly increasing timestamps so two writes in the same
// nanosecond still keep their insertion order.
type clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newClock() *clock {
	return &clock{now: func() time.Time { return time.Now().UTC() }}
}

func (c *clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now()
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}
