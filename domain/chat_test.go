package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPairKey_IsOrderIndependent(t *testing.T) {
	req := require.New(t)
	req.Equal(PairKey("alice", "bob"), PairKey("bob", "alice"))
	req.NotEqual(PairKey("alice", "bob"), PairKey("alice", "carol"))
}

func TestToChatType(t *testing.T) {
	req := require.New(t)
	chatType, ok := ToChatType("group")
	req.True(ok)
	req.Equal(GROUP, chatType)

	_, ok = ToChatType("CHANNEL")
	req.False(ok)
}

func TestSortByActivity(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	chats := []Chat{
		{ID: "old", LastActivity: now.Add(-time.Hour), CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "b", LastActivity: now, CreatedAt: now.Add(-time.Hour)},
		{ID: "a", LastActivity: now, CreatedAt: now.Add(-time.Hour)},
		{ID: "recent", LastActivity: now.Add(time.Minute), CreatedAt: now},
	}

	SortByActivity(chats)

	ids := make([]string, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	// Given equal activity and creation, the id breaks the tie
	req.Equal([]string{"recent", "a", "b", "old"}, ids)
}
