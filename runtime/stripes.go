package runtime

import (
	"hash/fnv"
	"sync"
)

// ChatLocks serializes work per chat without holding one mutex per chat id.
// Two chats hashing to the same stripe simply share a lock.
type ChatLocks struct {
	stripes []sync.Mutex
}

func NewChatLocks(n int) *ChatLocks {
	if n <= 0 {
		n = 64
	}
	return &ChatLocks{stripes: make([]sync.Mutex, n)}
}

func (c *ChatLocks) Lock(chatID string) func() {
	m := &c.stripes[Shard(chatID, len(c.stripes))]
	m.Lock()
	return m.Unlock
}

// Shard maps a chat id onto [0, n).
func Shard(chatID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(chatID))
	return int(h.Sum32() % uint32(n))
}
