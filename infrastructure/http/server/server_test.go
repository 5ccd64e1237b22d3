package server

import (
	"bytes"
	"chat-core/auth"
	"chat-core/domain"
	"chat-core/observability"
	"chat-core/repositories"
	"chat-core/runtime"
	"chat-core/services"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const password = "Sup3r-Secret!pass"

type testServer struct {
	*httptest.Server
	registry *runtime.Registry
}

func newTestServer(t *testing.T) *testServer {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	users := repositories.NewUserRepository(db, log)
	chats := repositories.NewChatRepository(db, log)
	messages := repositories.NewMessageRepository(db, log)

	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	registry := runtime.NewRegistry()
	membership := services.NewMembership(log, chats)
	router := runtime.NewRouter(log, registry, membership, time.Second)
	locks := runtime.NewChatLocks(16)
	monitor, err := observability.NewHealthMonitor(registry)
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(Deps{
		Log:           log,
		Authenticator: issuer,
		Auth:          services.NewAuthService(log, users, issuer),
		Users:         services.NewUserService(log, users),
		Chats:         services.NewChatService(log, users, chats, messages),
		Messages:      services.NewMessageService(log, users, chats, messages, router, locks),
		Reads:         services.NewReadService(log, membership, chats, messages, router, locks),
		Membership:    membership,
		Hub:           router,
		Health:        monitor,
	}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, registry: registry}
}

// do sends a JSON request and decodes the JSON response into out when given.
func (s *testServer) do(t *testing.T, method, path, token string, body any, out any) int {
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type session struct {
	token string
	user  domain.User
}

func (s *testServer) register(t *testing.T, name string) session {
	var res authResponse
	status := s.do(t, http.MethodPost, "/api/auth/register", "", registerRequest{
		Email: name + "@example.com", Username: name, Password: password,
	}, &res)
	require.Equal(t, http.StatusCreated, status)
	require.NotNil(t, res.User)
	return session{token: res.Token, user: *res.User}
}

func (s *testServer) chat(t *testing.T, owner session, chatType string, members ...session) domain.Chat {
	ids := []string{owner.user.ID}
	for _, m := range members {
		ids = append(ids, m.user.ID)
	}
	var chat domain.Chat
	status := s.do(t, http.MethodPost, "/api/chats", owner.token,
		createChatRequest{ParticipantIDs: ids, Type: chatType}, &chat)
	require.Equal(t, http.StatusCreated, status)
	return chat
}

func TestAuthRoutes(t *testing.T) {
	srv := newTestServer(t)

	t.Run("should register then login", func(t *testing.T) {
		req := require.New(t)
		alice := srv.register(t, "alice")

		var res authResponse
		status := srv.do(t, http.MethodPost, "/api/auth/login", "",
			loginRequest{Email: "alice@example.com", Password: password}, &res)
		req.Equal(http.StatusOK, status)
		req.NotEmpty(res.Token)

		var me domain.User
		req.Equal(http.StatusOK, srv.do(t, http.MethodGet, "/api/users/me", res.Token, nil, &me))
		req.Equal(alice.user.ID, me.ID)
	})

	t.Run("should refuse a duplicate email", func(t *testing.T) {
		req := require.New(t)
		status := srv.do(t, http.MethodPost, "/api/auth/register", "", registerRequest{
			Email: "alice@example.com", Username: "alice2", Password: password,
		}, nil)
		req.Equal(http.StatusConflict, status)
	})

	t.Run("should refuse a wrong password", func(t *testing.T) {
		req := require.New(t)
		status := srv.do(t, http.MethodPost, "/api/auth/login", "",
			loginRequest{Email: "alice@example.com", Password: "nope"}, nil)
		req.Equal(http.StatusUnauthorized, status)
	})

	t.Run("should reject protected routes without a token", func(t *testing.T) {
		req := require.New(t)
		req.Equal(http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/chats", "", nil, nil))
		req.Equal(http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/chats", "garbage", nil, nil))
	})
}

func TestUserRoutes(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice")
	bob := srv.register(t, "bob")

	t.Run("should find users by username", func(t *testing.T) {
		req := require.New(t)
		var users []domain.User
		req.Equal(http.StatusOK, srv.do(t, http.MethodGet, "/api/users?q=BO", alice.token, nil, &users))
		req.Len(users, 1)
		req.Equal(bob.user.ID, users[0].ID)
		req.Equal(http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/users?q=", alice.token, nil, nil))
	})

	t.Run("should route me before the id", func(t *testing.T) {
		req := require.New(t)
		var user domain.User
		req.Equal(http.StatusOK, srv.do(t, http.MethodGet, "/api/users/"+bob.user.ID, alice.token, nil, &user))
		req.Equal("bob", user.Username)
		req.Equal(http.StatusNotFound, srv.do(t, http.MethodGet, "/api/users/unknown", alice.token, nil, nil))
	})

	t.Run("should rename unless the username is taken", func(t *testing.T) {
		req := require.New(t)
		var user domain.User
		req.Equal(http.StatusOK, srv.do(t, http.MethodPut, "/api/users/me", alice.token, updateUserRequest{Username: "alicia"}, &user))
		req.Equal("alicia", user.Username)
		req.Equal(http.StatusConflict, srv.do(t, http.MethodPut, "/api/users/me", alice.token, updateUserRequest{Username: "bob"}, nil))
	})

	t.Run("should delete the caller", func(t *testing.T) {
		req := require.New(t)
		req.Equal(http.StatusNoContent, srv.do(t, http.MethodDelete, "/api/users/me", bob.token, nil, nil))
		req.Equal(http.StatusNotFound, srv.do(t, http.MethodGet, "/api/users/me", bob.token, nil, nil))
	})
}

func TestChatRoutes(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice")
	bob := srv.register(t, "bob")
	carol := srv.register(t, "carol")

	t.Run("should refuse creating a chat the caller is not part of", func(t *testing.T) {
		req := require.New(t)
		status := srv.do(t, http.MethodPost, "/api/chats", carol.token, createChatRequest{
			ParticipantIDs: []string{alice.user.ID, bob.user.ID}, Type: "SINGLE",
		}, nil)
		req.Equal(http.StatusForbidden, status)
	})

	t.Run("should return the same single chat whoever opens it", func(t *testing.T) {
		req := require.New(t)
		first := srv.chat(t, alice, "SINGLE", bob)
		second := srv.chat(t, bob, "SINGLE", alice)
		req.Equal(first.ID, second.ID)
	})

	t.Run("should hide a chat from non participants", func(t *testing.T) {
		req := require.New(t)
		chat := srv.chat(t, alice, "SINGLE", bob)
		req.Equal(http.StatusForbidden, srv.do(t, http.MethodGet, "/api/chats/"+chat.ID, carol.token, nil, nil))
		req.Equal(http.StatusNotFound, srv.do(t, http.MethodGet, "/api/chats/unknown", carol.token, nil, nil))
	})

	t.Run("should add a participant to a group", func(t *testing.T) {
		req := require.New(t)
		group := srv.chat(t, alice, "GROUP", bob)

		var updated domain.Chat
		status := srv.do(t, http.MethodPost, "/api/chats/"+group.ID+"/participants", alice.token,
			participantRequest{UserID: carol.user.ID}, &updated)
		req.Equal(http.StatusOK, status)
		req.ElementsMatch([]string{alice.user.ID, bob.user.ID, carol.user.ID}, updated.ParticipantIDs)

		status = srv.do(t, http.MethodDelete, "/api/chats/"+group.ID+"/participants/"+bob.user.ID, carol.token, nil, &updated)
		req.Equal(http.StatusOK, status)
		req.ElementsMatch([]string{alice.user.ID, carol.user.ID}, updated.ParticipantIDs)
	})

	t.Run("should list summaries with unread counts", func(t *testing.T) {
		req := require.New(t)
		chat := srv.chat(t, alice, "SINGLE", bob)
		req.Equal(http.StatusCreated, srv.do(t, http.MethodPost, "/api/chats/"+chat.ID+"/messages", alice.token,
			sendMessageRequest{Content: "ping"}, nil))

		var summaries []domain.ChatSummary
		req.Equal(http.StatusOK, srv.do(t, http.MethodGet, "/api/chats", bob.token, nil, &summaries))
		req.NotEmpty(summaries)
		req.Equal(chat.ID, summaries[0].ID)
		req.Equal(1, summaries[0].UnreadCount)
		req.NotNil(summaries[0].LastMessage)
		req.Equal("ping", summaries[0].LastMessage.Content)
	})
}

func TestMessageRoutes(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice")
	bob := srv.register(t, "bob")
	carol := srv.register(t, "carol")
	chat := srv.chat(t, alice, "SINGLE", bob)
	other := srv.chat(t, alice, "SINGLE", carol)

	var sent domain.Message
	status := srv.do(t, http.MethodPost, "/api/chats/"+chat.ID+"/messages", alice.token,
		sendMessageRequest{Content: "  hello bob  "}, &sent)
	require.Equal(t, http.StatusCreated, status)

	t.Run("should trim and persist the message", func(t *testing.T) {
		req := require.New(t)
		req.Equal("hello bob", sent.Content)
		req.Equal(domain.TEXT, sent.Type)
		req.Equal(domain.SENT, sent.Status)
	})

	t.Run("should refuse empty content and outsiders", func(t *testing.T) {
		req := require.New(t)
		req.Equal(http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/chats/"+chat.ID+"/messages", alice.token,
			sendMessageRequest{Content: "   "}, nil))
		req.Equal(http.StatusForbidden, srv.do(t, http.MethodPost, "/api/chats/"+chat.ID+"/messages", carol.token,
			sendMessageRequest{Content: "let me in"}, nil))
	})

	t.Run("should page the history", func(t *testing.T) {
		req := require.New(t)
		var page domain.MessagePage
		req.Equal(http.StatusOK, srv.do(t, http.MethodGet, "/api/chats/"+chat.ID+"/messages?page=0&size=500", bob.token, nil, &page))
		req.Equal(100, page.PageSize)
		req.Equal(1, page.TotalMessages)
		req.Equal(http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/chats/"+chat.ID+"/messages?page=-1", bob.token, nil, nil))
		req.Equal(http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/chats/"+chat.ID+"/messages?page=abc", bob.token, nil, nil))
		req.Equal(http.StatusForbidden, srv.do(t, http.MethodGet, "/api/chats/"+chat.ID+"/messages", carol.token, nil, nil))
	})

	t.Run("should route search before the message id", func(t *testing.T) {
		req := require.New(t)
		var found []domain.Message
		req.Equal(http.StatusOK, srv.do(t, http.MethodGet, "/api/chats/"+chat.ID+"/messages/search?q=BOB", bob.token, nil, &found))
		req.Len(found, 1)
		req.Equal(sent.ID, found[0].ID)
		req.Equal(http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/chats/"+chat.ID+"/messages/search?q=", bob.token, nil, nil))
	})

	t.Run("should hide a message behind another chat", func(t *testing.T) {
		req := require.New(t)
		var msg domain.Message
		req.Equal(http.StatusOK, srv.do(t, http.MethodGet, "/api/chats/"+chat.ID+"/messages/"+sent.ID, alice.token, nil, &msg))
		req.Equal(sent.ID, msg.ID)
		req.Equal(http.StatusNotFound, srv.do(t, http.MethodGet, "/api/chats/"+other.ID+"/messages/"+sent.ID, alice.token, nil, nil))
	})

	t.Run("should track reads per reader", func(t *testing.T) {
		req := require.New(t)
		var count countResponse
		req.Equal(http.StatusOK, srv.do(t, http.MethodGet, "/api/chats/"+chat.ID+"/unread-count", bob.token, nil, &count))
		req.Equal(1, count.Count)
		req.Equal(http.StatusOK, srv.do(t, http.MethodPut, "/api/chats/"+chat.ID+"/read", bob.token, nil, &count))
		req.Equal(1, count.Count)
		req.Equal(http.StatusOK, srv.do(t, http.MethodPut, "/api/chats/"+chat.ID+"/read", bob.token, nil, &count))
		req.Equal(0, count.Count)
		req.Equal(http.StatusForbidden, srv.do(t, http.MethodPut, "/api/chats/"+chat.ID+"/read", carol.token, nil, nil))
	})

	t.Run("should only let the sender delete", func(t *testing.T) {
		req := require.New(t)
		path := "/api/chats/" + chat.ID + "/messages/" + sent.ID
		req.Equal(http.StatusForbidden, srv.do(t, http.MethodDelete, path, bob.token, nil, nil))
		req.Equal(http.StatusNoContent, srv.do(t, http.MethodDelete, path, alice.token, nil, nil))
		req.Equal(http.StatusNotFound, srv.do(t, http.MethodGet, path, alice.token, nil, nil))
	})
}

func TestWebSocket(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice")
	bob := srv.register(t, "bob")
	carol := srv.register(t, "carol")
	chat := srv.chat(t, alice, "SINGLE", bob)

	wsURL := func(token string) string {
		return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	}

	t.Run("should refuse the handshake without a valid token", func(t *testing.T) {
		req := require.New(t)
		_, resp, err := websocket.DefaultDialer.Dial(wsURL("invalid"), nil)
		req.Error(err)
		req.NotNil(resp)
		req.Equal(http.StatusUnauthorized, resp.StatusCode)
		req.Equal(0, srv.registry.Count())
	})

	t.Run("should push chat events to participants only", func(t *testing.T) {
		req := require.New(t)
		bobConn, _, err := websocket.DefaultDialer.Dial(wsURL(bob.token), nil)
		req.NoError(err)
		defer bobConn.Close()
		carolConn, _, err := websocket.DefaultDialer.Dial(wsURL(carol.token), nil)
		req.NoError(err)
		defer carolConn.Close()
		req.Eventually(func() bool { return srv.registry.Count() == 2 }, time.Second, 10*time.Millisecond)

		// When
		req.Equal(http.StatusCreated, srv.do(t, http.MethodPost, "/api/chats/"+chat.ID+"/messages", alice.token,
			sendMessageRequest{Content: "live"}, nil))

		// Then
		_ = bobConn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame map[string]any
		req.NoError(bobConn.ReadJSON(&frame))
		req.Equal("message_sent", frame["type"])
		req.Equal(chat.ID, frame["chat_id"])

		_ = carolConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		_, _, err = carolConn.ReadMessage()
		req.Error(err, fmt.Sprintf("carol is not in chat %s", chat.ID))
	})
}

func TestHealth(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	var health observability.Health
	req.Equal(http.StatusOK, srv.do(t, http.MethodGet, "/health", "", nil, &health))
	req.Equal("ok", health.Status)
	req.Positive(health.Goroutines)
}

func TestRecoverPanic(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	h := recoverPanic(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	req.Equal(http.StatusInternalServerError, rec.Code)
	req.Equal("close", rec.Header().Get("Connection"))
	req.NotContains(rec.Body.String(), "boom")
}
