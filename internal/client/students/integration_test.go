package students

import (
	"context"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/cloudzz-dev/rosterchat/internal/client/api"
	"github.com/cloudzz-dev/rosterchat/internal/client/auth"
	"github.com/cloudzz-dev/rosterchat/internal/client/session"
	"github.com/cloudzz-dev/rosterchat/internal/config"
	"github.com/cloudzz-dev/rosterchat/internal/models"
	"github.com/cloudzz-dev/rosterchat/internal/server/handlers"
	"github.com/cloudzz-dev/rosterchat/internal/server/ratelimit"
	"github.com/cloudzz-dev/rosterchat/internal/server/storage"
)

func devBackend(t *testing.T) *api.Client {
	t.Helper()
	cfg := config.Server{JWTSecret: "test-secret", JWTIssuer: "test", AccessTokenTTL: time.Hour}
	app := httptest.NewServer(handlers.NewServer(cfg, storage.NewMemory(), ratelimit.New(10, time.Minute)).Router())
	t.Cleanup(app.Close)

	container := auth.New(session.NewMemoryStore())
	client := api.New(app.URL+"/api", container, api.WithUnauthorizedHandler(container.HandleUnauthorized))
	ctx := context.Background()
	if err := auth.Register(ctx, client, models.RegisterRequest{Username: "admin", Email: "admin@example.com", Password: "secret"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := container.SignIn(ctx, client, models.LoginRequest{Username: "admin", Password: "secret"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	return client
}

func TestLifecycleAgainstBackend(t *testing.T) {
	client := devBackend(t)
	s := New(client)
	ctx := context.Background()

	req := models.CreateStudentRequest{
		Name:        "Ann",
		Courses:     []string{"Computer Science", "Physics"},
		PhoneNumber: "5551234567",
		DateOfBirth: models.NewDate(2001, time.March, 9),
	}
	if err := s.Create(ctx, req); err != nil {
		t.Fatalf("Create: %v", err)
	}
	list := s.Snapshot().Students
	if len(list) != 1 || list[0].ID == "" {
		t.Fatalf("expected one student with an id, got %+v", list)
	}
	created := list[0]
	if !reflect.DeepEqual(created.EditRequest(), models.UpdateStudentRequest(req)) {
		t.Fatalf("fields differ from the request: %+v", created)
	}

	upd := created.EditRequest()
	upd.Name = "Ann B"
	upd.Courses = []string{"History"}
	if err := s.Update(ctx, created.ID, upd); err != nil {
		t.Fatalf("Update: %v", err)
	}
	list = s.Snapshot().Students
	if len(list) != 1 || !reflect.DeepEqual(list[0].EditRequest(), upd) {
		t.Fatalf("update not reflected: %+v", list)
	}

	s.RequestDelete(created.ID)
	if err := s.ConfirmDelete(ctx); err != nil {
		t.Fatalf("ConfirmDelete: %v", err)
	}
	for _, st := range s.Snapshot().Students {
		if st.ID == created.ID {
			t.Fatalf("deleted student still listed")
		}
	}

	s.RequestDelete(created.ID)
	if err := s.ConfirmDelete(ctx); !api.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := s.Snapshot().Error; got != MsgDeleteFailed {
		t.Fatalf("expected %q, got %q", MsgDeleteFailed, got)
	}
}
