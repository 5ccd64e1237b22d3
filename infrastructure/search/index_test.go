package search

import (
	"chat-core/domain"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T) *BlugeIndex {
	index, err := NewBlugeIndex(t.TempDir(), logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func TestBlugeIndex_Search(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	messages := []domain.Message{
		{ID: "m1", ChatID: "c1", Content: "Lunch at NOON?", CreatedAt: now},
		{ID: "m2", ChatID: "c1", Content: "afternoon tea", CreatedAt: now.Add(time.Second)},
		{ID: "m3", ChatID: "c1", Content: "nothing here", CreatedAt: now.Add(2 * time.Second)},
		{ID: "m4", ChatID: "c2", Content: "noon in another chat", CreatedAt: now},
		{ID: "m5", ChatID: "c1", Content: "cost: 3.5$ (approx)", CreatedAt: now.Add(3 * time.Second)},
	}

	t.Run("should match substrings case-insensitively within one chat", func(t *testing.T) {
		req := require.New(t)
		index := newIndex(t)
		for _, m := range messages {
			req.NoError(index.Index(m))
		}

		ids, err := index.Search(ctx, "c1", "NoOn", 100)
		req.NoError(err)
		req.ElementsMatch([]string{"m1", "m2"}, ids)
	})

	t.Run("should treat regexp metacharacters literally", func(t *testing.T) {
		req := require.New(t)
		index := newIndex(t)
		for _, m := range messages {
			req.NoError(index.Index(m))
		}

		ids, err := index.Search(ctx, "c1", "3.5$ (", 100)
		req.NoError(err)
		req.Equal([]string{"m5"}, ids)
	})

	t.Run("should forget removed messages", func(t *testing.T) {
		req := require.New(t)
		index := newIndex(t)
		for _, m := range messages {
			req.NoError(index.Index(m))
		}
		req.NoError(index.Remove("m1"))

		ids, err := index.Search(ctx, "c1", "noon", 100)
		req.NoError(err)
		req.Equal([]string{"m2"}, ids)
	})
}
