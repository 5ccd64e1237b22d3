package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

type updateUserRequest struct {
	Username string `json:"username"`
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.GetUser(r.Context(), caller(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.Users.UpdateUsername(r.Context(), caller(r), req.Username)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *handler) deleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.DeleteUser(r.Context(), caller(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) searchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
