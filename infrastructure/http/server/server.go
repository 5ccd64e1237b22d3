// Package server exposes the chat core over REST and hands authenticated
// WebSocket sessions to the connection router.
package server

import (
	"chat-core/auth"
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/observability"
	"chat-core/services"
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Hub owns the lifecycle of live connections.
type Hub interface {
	OnConnect(conn contract.Connection)
	OnDisconnect(conn contract.Connection)
}

// Authorizer resolves a chat for a caller, failing when the caller isn't a participant.
type Authorizer interface {
	Authorize(ctx context.Context, chatID, userID string) (domain.Chat, error)
}

type HealthSnapshotter interface {
	Snapshot() observability.Health
}

type Deps struct {
	Log                  *slog.Logger
	Authenticator        contract.Authenticator
	Auth                 services.IAuthService
	Users                services.IUserService
	Chats                services.IChatService
	Messages             services.IMessageService
	Reads                services.IReadService
	Membership           Authorizer
	Hub                  Hub
	Health               HealthSnapshotter
	ConnectionBufferSize int
	Upgrader             *websocket.Upgrader
}

type handler struct {
	Deps
}

// NewRouter registers every route. Literal segments are registered before
// their sibling path variables so that mux matches them first.
func NewRouter(deps Deps) *mux.Router {
	if deps.Upgrader == nil {
		deps.Upgrader = &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	}
	if deps.ConnectionBufferSize <= 0 {
		deps.ConnectionBufferSize = 64
	}
	h := &handler{Deps: deps}

	r := mux.NewRouter()
	r.Use(recoverPanic(deps.Log), logging(deps.Log))

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.serveWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(auth.Middleware(deps.Authenticator, func(w http.ResponseWriter, err error) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
	}))

	protected.HandleFunc("/users/me", h.me).Methods(http.MethodGet)
	protected.HandleFunc("/users/me", h.updateMe).Methods(http.MethodPut)
	protected.HandleFunc("/users/me", h.deleteMe).Methods(http.MethodDelete)
	protected.HandleFunc("/users", h.searchUsers).Methods(http.MethodGet)
	protected.HandleFunc("/users/{id}", h.getUser).Methods(http.MethodGet)

	protected.HandleFunc("/chats", h.createChat).Methods(http.MethodPost)
	protected.HandleFunc("/chats", h.listChats).Methods(http.MethodGet)
	protected.HandleFunc("/chats/{chatId}", h.getChat).Methods(http.MethodGet)
	protected.HandleFunc("/chats/{chatId}/participants", h.addParticipant).Methods(http.MethodPost)
	protected.HandleFunc("/chats/{chatId}/participants/{userId}", h.removeParticipant).Methods(http.MethodDelete)

	protected.HandleFunc("/chats/{chatId}/messages", h.listMessages).Methods(http.MethodGet)
	protected.HandleFunc("/chats/{chatId}/messages", h.sendMessage).Methods(http.MethodPost)
	protected.HandleFunc("/chats/{chatId}/messages/search", h.searchMessages).Methods(http.MethodGet)
	protected.HandleFunc("/chats/{chatId}/messages/{messageId}", h.getMessage).Methods(http.MethodGet)
	protected.HandleFunc("/chats/{chatId}/messages/{messageId}", h.deleteMessage).Methods(http.MethodDelete)

	protected.HandleFunc("/chats/{chatId}/read", h.markRead).Methods(http.MethodPut)
	protected.HandleFunc("/chats/{chatId}/unread-count", h.unreadCount).Methods(http.MethodGet)

	return r
}

// caller returns the identity injected by the auth middleware.
func caller(r *http.Request) string {
	userID, _ := auth.UserIDFromContext(r.Context())
	return userID
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(h.Log, w, r, err)
}
