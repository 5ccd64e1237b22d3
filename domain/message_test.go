package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageStatus_CanBecome(t *testing.T) {
	req := require.New(t)
	req.True(SENT.CanBecome(DELIVERED))
	req.True(SENT.CanBecome(READ))
	req.True(DELIVERED.CanBecome(READ))
	req.False(READ.CanBecome(DELIVERED))
	req.False(DELIVERED.CanBecome(SENT))
	req.False(READ.CanBecome(READ))
}

func TestToMessageType(t *testing.T) {
	req := require.New(t)
	msgType, ok := ToMessageType("")
	req.True(ok)
	req.Equal(TEXT, msgType)

	msgType, ok = ToMessageType("video")
	req.True(ok)
	req.Equal(VIDEO, msgType)

	_, ok = ToMessageType("sticker")
	req.False(ok)
}

func TestNewMessagePage(t *testing.T) {
	t.Run("should report more pages while the current one is not the last", func(t *testing.T) {
		req := require.New(t)
		page := NewMessagePage("c1", make([]Message, 2), 0, 2, 5)
		req.Equal(3, page.TotalPages)
		req.True(page.HasMore)
	})

	t.Run("should stop on the last page", func(t *testing.T) {
		req := require.New(t)
		page := NewMessagePage("c1", make([]Message, 1), 2, 2, 5)
		req.False(page.HasMore)
	})

	t.Run("should never expose a nil slice", func(t *testing.T) {
		req := require.New(t)
		page := NewMessagePage("c1", nil, 0, 50, 0)
		req.NotNil(page.Messages)
		req.Equal(0, page.TotalPages)
		req.False(page.HasMore)
	})
}
