// Package handlers serves the REST API consumed by the rosterchat client.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cloudzz-dev/rosterchat/internal/config"
	"github.com/cloudzz-dev/rosterchat/internal/models"
	"github.com/cloudzz-dev/rosterchat/internal/server/auth"
	"github.com/cloudzz-dev/rosterchat/internal/server/ratelimit"
	"github.com/cloudzz-dev/rosterchat/internal/server/storage"
)

type Server struct {
	cfg     config.Server
	store   storage.Store
	limiter *ratelimit.RateLimiter
}

func NewServer(cfg config.Server, store storage.Store, limiter *ratelimit.RateLimiter) *Server {
	return &Server{cfg: cfg, store: store, limiter: limiter}
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(s.limiter.Middleware).Post("/login", s.handleLogin)
			r.Post("/register", s.handleRegister)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/students", func(r chi.Router) {
				r.Get("/", s.handleListStudents)
				r.Post("/", s.handleCreateStudent)
				r.Get("/{id}", s.handleGetStudent)
				r.Put("/{id}", s.handleUpdateStudent)
				r.Delete("/{id}", s.handleDeleteStudent)
			})

			r.Route("/chat", func(r chi.Router) {
				r.Post("/send", s.handleSendMessage)
				r.Get("/conversation/{userId}", s.handleConversation)
				r.Post("/mark-read/{messageId}", s.handleMarkRead)
				r.Get("/unread", s.handleUnread)
				r.Get("/users", s.handleChatUsers)
				r.Get("/poll", s.handlePoll)
			})

			r.Get("/users", s.handleListUsers)
		})
	})

	return r
}

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		// A valid token may name a user the store no longer has.
		if _, err := s.store.UserByID(r.Context(), claims.UserID); err != nil {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}

func currentUserID(r *http.Request) string {
	if claims := claimsFromContext(r.Context()); claims != nil {
		return claims.UserID
	}
	return ""
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

// decodeValid decodes the body into out and validates it, writing a 400
// on failure.
func decodeValid(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := decodeJSON(r, out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := models.Validate(out); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":  verr.Error(),
				"fields": verr.Fields,
			})
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps storage failures onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, "already exists")
	default:
		log.Printf("%s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
