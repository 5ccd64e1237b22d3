package runtime

import (
	"chat-core/errors"
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     string
	userID string

	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	failing bool

	// honorContext makes Send fail on a done context, like a full queue would.
	honorContext bool
}

func newFakeConn(userID string) *fakeConn {
	return &fakeConn{id: uuid.NewString(), userID: userID}
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrConnectionClosed
	}
	if c.honorContext && ctx.Err() != nil {
		return errors.ErrBackpressure
	}
	if c.failing {
		return errors.ErrBackpressure
	}
	c.frames = append(c.frames, payload)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestRegistry_Register_One_User_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newFakeConn("alice")

	// Given no user is connected
	req.Zero(registry.Count())

	// When a user connects
	registry.Register(conn)

	// Then
	req.Equal(1, registry.Count())
	req.Len(registry.ConnectionsOf([]string{"alice"}), 1)
	req.Empty(registry.ConnectionsOf([]string{"bob"}))
}

func TestRegistry_Register_Multiple_Devices(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	phone := newFakeConn("alice")
	laptop := newFakeConn("alice")

	// When the same user connects twice and registers one device twice
	registry.Register(phone)
	registry.Register(laptop)
	registry.Register(laptop)

	// Then both devices are kept once
	req.Equal(2, registry.Count())
	req.ElementsMatch([]any{phone, laptop}, toAny(registry.ConnectionsOf([]string{"alice"})))
}

func TestRegistry_Unregister_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newFakeConn("alice")
	registry.Register(conn)

	// When the connection leaves twice
	registry.Unregister(conn)
	registry.Unregister(conn)

	// Then nothing is left and no user entry lingers
	req.Zero(registry.Count())
	req.Empty(registry.sessions)
}

func TestRegistry_Concurrent_Lifecycles(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newFakeConn("user")
			registry.Register(conn)
			_ = registry.ConnectionsOf([]string{"user"})
			if i%2 == 0 {
				registry.Unregister(conn)
			}
		}(i)
	}
	wg.Wait()

	req.Equal(25, registry.Count())
}

func toAny[T any](items []T) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
