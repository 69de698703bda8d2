package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/cloudzz-dev/rosterchat/internal/models"
	"github.com/cloudzz-dev/rosterchat/internal/server/auth"
	"github.com/cloudzz-dev/rosterchat/internal/server/storage"
)

func (s *Server) issue(w http.ResponseWriter, u models.User) {
	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		UserID:   u.ID,
		Username: u.Username,
	})
	if err != nil {
		log.Printf("sign token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, models.AuthResponse{Token: token, UserID: u.ID, Username: u.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeValid(w, r, &req) {
		return
	}

	rec, err := s.store.UserByUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeStoreError(w, "login", err)
		return
	}
	if rec == nil || !auth.CheckPassword(rec.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.issue(w, rec.User)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeValid(w, r, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("hash password: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	u, err := s.store.CreateUser(r.Context(), req.Username, req.Email, hash)
	if errors.Is(err, storage.ErrConflict) {
		writeError(w, http.StatusBadRequest, "Registration failed: username already taken")
		return
	}
	if err != nil {
		writeStoreError(w, "register", err)
		return
	}
	log.Printf("Registered user %s", u.Username)
	s.issue(w, *u)
}
