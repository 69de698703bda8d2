package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/cloudzz-dev/rosterchat/internal/config"
	"github.com/cloudzz-dev/rosterchat/internal/models"
	"github.com/cloudzz-dev/rosterchat/internal/server/ratelimit"
	"github.com/cloudzz-dev/rosterchat/internal/server/storage"
)

func newTestServer(t *testing.T, attempts int) *httptest.Server {
	t.Helper()
	cfg := config.Server{
		JWTSecret:      "test-secret",
		JWTIssuer:      "test",
		AccessTokenTTL: time.Hour,
	}
	srv := NewServer(cfg, storage.NewMemory(), ratelimit.New(attempts, time.Minute))
	app := httptest.NewServer(srv.Router())
	t.Cleanup(app.Close)
	return app
}

func doReq(t *testing.T, method, url, token string, body interface{}) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode error: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode error: %v", err)
	}
}

func register(t *testing.T, app *httptest.Server, username string) models.AuthResponse {
	t.Helper()
	resp := doReq(t, http.MethodPost, app.URL+"/api/auth/register", "", models.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register %s: expected 200, got %d", username, resp.StatusCode)
	}
	var out models.AuthResponse
	decode(t, resp, &out)
	return out
}

func TestHealth(t *testing.T) {
	app := newTestServer(t, 5)
	resp := doReq(t, http.MethodGet, app.URL+"/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	app := newTestServer(t, 10)
	reg := register(t, app, "alice")
	if reg.Token == "" || reg.UserID == "" || reg.Username != "alice" {
		t.Fatalf("unexpected register response %+v", reg)
	}

	resp := doReq(t, http.MethodPost, app.URL+"/api/auth/register", "", models.RegisterRequest{
		Username: "alice", Email: "a@example.com", Password: "x",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate register: expected 400, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodPost, app.URL+"/api/auth/login", "", models.LoginRequest{Username: "alice", Password: "secret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	var login models.AuthResponse
	decode(t, resp, &login)
	if login.UserID != reg.UserID || login.Token == "" {
		t.Fatalf("unexpected login response %+v", login)
	}

	resp = doReq(t, http.MethodPost, app.URL+"/api/auth/login", "", models.LoginRequest{Username: "alice", Password: "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodPost, app.URL+"/api/auth/login", "", models.LoginRequest{Username: "nobody", Password: "secret"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown user: expected 401, got %d", resp.StatusCode)
	}
}

func TestLoginRateLimited(t *testing.T) {
	app := newTestServer(t, 2)
	register(t, app, "alice")
	for i := 0; i < 2; i++ {
		doReq(t, http.MethodPost, app.URL+"/api/auth/login", "", models.LoginRequest{Username: "alice", Password: "wrong"}).Body.Close()
	}
	resp := doReq(t, http.MethodPost, app.URL+"/api/auth/login", "", models.LoginRequest{Username: "alice", Password: "secret"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	app := newTestServer(t, 5)
	for _, path := range []string{"/api/students", "/api/users", "/api/chat/unread"} {
		resp := doReq(t, http.MethodGet, app.URL+path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s without token: expected 401, got %d", path, resp.StatusCode)
		}
		resp = doReq(t, http.MethodGet, app.URL+path, "garbage", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s with bad token: expected 401, got %d", path, resp.StatusCode)
		}
	}
}

func TestStudentsCRUD(t *testing.T) {
	app := newTestServer(t, 5)
	token := register(t, app, "alice").Token

	create := models.CreateStudentRequest{
		Name:        "Ann",
		Courses:     []string{"Mathematics"},
		PhoneNumber: "5551234567",
		DateOfBirth: models.NewDate(2002, time.July, 4),
	}
	resp := doReq(t, http.MethodPost, app.URL+"/api/students", token, create)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	var created models.Student
	decode(t, resp, &created)
	if created.ID == "" || created.DateOfBirth.String() != "2002-07-04" {
		t.Fatalf("unexpected student %+v", created)
	}

	bad := create
	bad.PhoneNumber = "555-1234"
	resp = doReq(t, http.MethodPost, app.URL+"/api/students", token, bad)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid phone: expected 400, got %d", resp.StatusCode)
	}

	update := models.UpdateStudentRequest(create)
	update.Name = "Ann B"
	resp = doReq(t, http.MethodPut, app.URL+"/api/students/"+created.ID, token, update)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodPut, app.URL+"/api/students/missing", token, update)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("update missing: expected 404, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodGet, app.URL+"/api/students/"+created.ID, token, nil)
	var got models.Student
	decode(t, resp, &got)
	if got.Name != "Ann B" {
		t.Fatalf("expected updated name, got %q", got.Name)
	}

	resp = doReq(t, http.MethodDelete, app.URL+"/api/students/"+created.ID, token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodDelete, app.URL+"/api/students/"+created.ID, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodGet, app.URL+"/api/students", token, nil)
	var list []models.Student
	decode(t, resp, &list)
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}
}

func TestChatFlow(t *testing.T) {
	app := newTestServer(t, 5)
	alice := register(t, app, "alice")
	bob := register(t, app, "bob")

	watermark := models.FormatTimestamp(time.Now().UTC().Add(-time.Second))

	resp := doReq(t, http.MethodPost, app.URL+"/api/chat/send", bob.Token, models.MessageRequest{ReceiverID: alice.UserID, Content: "hi"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send: expected 200, got %d", resp.StatusCode)
	}
	var sent models.Message
	decode(t, resp, &sent)
	if sent.SenderUsername != "bob" || sent.ReceiverUsername != "alice" || sent.Read {
		t.Fatalf("unexpected message %+v", sent)
	}

	resp = doReq(t, http.MethodPost, app.URL+"/api/chat/send", bob.Token, models.MessageRequest{ReceiverID: "missing", Content: "hi"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("send to unknown user: expected 404, got %d", resp.StatusCode)
	}

	var polled []models.Message
	decode(t, doReq(t, http.MethodGet, app.URL+"/api/chat/poll?timestamp="+url.QueryEscape(watermark), alice.Token, nil), &polled)
	if len(polled) != 1 || polled[0].ID != sent.ID {
		t.Fatalf("expected the new message from poll, got %+v", polled)
	}
	resp = doReq(t, http.MethodGet, app.URL+"/api/chat/poll?timestamp=yesterday", alice.Token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad watermark: expected 400, got %d", resp.StatusCode)
	}

	var unread []models.Message
	decode(t, doReq(t, http.MethodGet, app.URL+"/api/chat/unread", alice.Token, nil), &unread)
	if len(unread) != 1 {
		t.Fatalf("expected one unread, got %d", len(unread))
	}

	var partners []models.ChatUser
	decode(t, doReq(t, http.MethodGet, app.URL+"/api/chat/users", alice.Token, nil), &partners)
	if len(partners) != 1 || partners[0].ID != bob.UserID {
		t.Fatalf("expected bob as partner, got %+v", partners)
	}

	var conv []models.Message
	decode(t, doReq(t, http.MethodGet, app.URL+"/api/chat/conversation/"+bob.UserID, alice.Token, nil), &conv)
	if len(conv) != 1 || !conv[0].Read {
		t.Fatalf("expected conversation read on fetch, got %+v", conv)
	}
	decode(t, doReq(t, http.MethodGet, app.URL+"/api/chat/unread", alice.Token, nil), &unread)
	if len(unread) != 0 {
		t.Fatalf("expected no unread after opening the conversation, got %d", len(unread))
	}

	resp = doReq(t, http.MethodPost, app.URL+"/api/chat/mark-read/"+sent.ID, alice.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mark-read: expected 200, got %d", resp.StatusCode)
	}

	var users []models.ChatUser
	decode(t, doReq(t, http.MethodGet, app.URL+"/api/users", alice.Token, nil), &users)
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %+v", users)
	}
}
