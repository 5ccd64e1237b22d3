package server

import (
	"chat-core/domain"
	"chat-core/errors"
	"net/http"

	"github.com/gorilla/mux"
)

type sendMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

type countResponse struct {
	ChatID string `json:"chat_id"`
	Count  int    `json:"count"`
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	msg, err := h.Messages.SendMessage(r.Context(), mux.Vars(r)["chatId"], caller(r), req.Content, req.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["chatId"]
	page, err := queryInt(r, "page", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	size, err := queryInt(r, "size", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.Membership.Authorize(r.Context(), chatID, caller(r)); err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.Messages.ListMessagesPage(r.Context(), chatID, page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) searchMessages(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["chatId"]
	if _, err := h.Membership.Authorize(r.Context(), chatID, caller(r)); err != nil {
		h.fail(w, r, err)
		return
	}

	messages, err := h.Messages.SearchMessages(r.Context(), chatID, r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *handler) getMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messageInChat(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messageInChat(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Messages.DeleteMessage(r.Context(), msg.ID, caller(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// messageInChat loads a message addressed through a chat the caller belongs to.
// A message of another chat is reported as missing.
func (h *handler) messageInChat(r *http.Request) (domain.Message, error) {
	vars := mux.Vars(r)
	if _, err := h.Membership.Authorize(r.Context(), vars["chatId"], caller(r)); err != nil {
		return domain.Message{}, err
	}
	msg, err := h.Messages.GetMessage(r.Context(), vars["messageId"])
	if err != nil {
		return domain.Message{}, err
	}
	if msg.ChatID != vars["chatId"] {
		return domain.Message{}, errors.ErrMessageNotFound
	}
	return msg, nil
}

func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["chatId"]
	count, err := h.Reads.MarkRead(r.Context(), chatID, caller(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{ChatID: chatID, Count: count})
}

func (h *handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["chatId"]
	count, err := h.Reads.UnreadCount(r.Context(), chatID, caller(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{ChatID: chatID, Count: count})
}
