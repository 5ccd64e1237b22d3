package server

import (
	"chat-core/auth"
	"chat-core/errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

type createChatRequest struct {
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1"`
	Name           string   `json:"name"`
	Type           string   `json:"type" validate:"required"`
}

type participantRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (h *handler) createChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := auth.ValidateStruct(req); err != nil {
		h.fail(w, r, err)
		return
	}
	// A caller can only open chats it takes part in.
	if !lo.Contains(req.ParticipantIDs, caller(r)) {
		h.fail(w, r, errors.ErrNotParticipant)
		return
	}

	chat, err := h.Chats.CreateChat(r.Context(), req.ParticipantIDs, req.Name, req.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (h *handler) listChats(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Chats.ListChatSummaries(r.Context(), caller(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *handler) getChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.Membership.Authorize(r.Context(), mux.Vars(r)["chatId"], caller(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *handler) addParticipant(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["chatId"]
	var req participantRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := auth.ValidateStruct(req); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.Membership.Authorize(r.Context(), chatID, caller(r)); err != nil {
		h.fail(w, r, err)
		return
	}

	chat, err := h.Chats.AddParticipant(r.Context(), chatID, req.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *handler) removeParticipant(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := h.Membership.Authorize(r.Context(), vars["chatId"], caller(r)); err != nil {
		h.fail(w, r, err)
		return
	}

	chat, err := h.Chats.RemoveParticipant(r.Context(), vars["chatId"], vars["userId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}
