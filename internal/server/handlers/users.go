package handlers

import (
	"net/http"

	"github.com/cloudzz-dev/rosterchat/internal/models"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeStoreError(w, "list users", err)
		return
	}
	writeUsers(w, users)
}

func writeUsers(w http.ResponseWriter, users []models.User) {
	out := make([]models.ChatUser, 0, len(users))
	for _, u := range users {
		out = append(out, models.ChatUser{ID: u.ID, Username: u.Username, Email: u.Email})
	}
	writeJSON(w, http.StatusOK, out)
}
