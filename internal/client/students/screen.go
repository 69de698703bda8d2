// Package students holds the state behind the student management screen.
package students

import (
	"context"
	"sync"

	"github.com/cloudzz-dev/rosterchat/internal/client/debug"
	"github.com/cloudzz-dev/rosterchat/internal/models"
)

// Banner messages shown to the user.
const (
	MsgFetchFailed  = "Failed to fetch students"
	MsgCreateFailed = "Failed to add student"
	MsgUpdateFailed = "Failed to update student"
	MsgDeleteFailed = "Failed to delete student"
)

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	}
	return "idle"
}

// Service is the subset of the backend client the screen needs.
type Service interface {
	ListStudents(ctx context.Context) ([]models.Student, error)
	CreateStudent(ctx context.Context, req models.CreateStudentRequest) (*models.Student, error)
	UpdateStudent(ctx context.Context, id string, req models.UpdateStudentRequest) (*models.Student, error)
	DeleteStudent(ctx context.Context, id string) error
}

// State is a copy of the screen's contents for rendering.
type State struct {
	Status        Status
	Students      []models.Student
	Error         string
	PendingDelete string
}

type Screen struct {
	svc Service

	mu            sync.Mutex
	status        Status
	students      []models.Student
	errMsg        string
	pendingDelete string
}

func New(svc Service) *Screen {
	return &Screen{svc: svc}
}

// Load fetches the list. On failure the previous list stays visible.
func (s *Screen) Load(ctx context.Context) error {
	return s.load(ctx, false)
}

// load refreshes the list. With keepErr set the current banner is left
// alone whatever the outcome.
func (s *Screen) load(ctx context.Context, keepErr bool) error {
	s.mu.Lock()
	s.status = StatusLoading
	s.mu.Unlock()

	list, err := s.svc.ListStudents(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		debug.Error("list students", err)
		s.status = StatusError
		if !keepErr {
			s.errMsg = MsgFetchFailed
		}
		return err
	}
	s.students = list
	s.status = StatusReady
	if !keepErr {
		s.errMsg = ""
	}
	return nil
}

// Create validates req, submits it, then refetches the list whatever
// the outcome. Invalid input never reaches the backend.
func (s *Screen) Create(ctx context.Context, req models.CreateStudentRequest) error {
	if err := models.Validate(req); err != nil {
		return err
	}
	_, err := s.svc.CreateStudent(ctx, req)
	return s.afterMutation(ctx, "create student", MsgCreateFailed, err)
}

func (s *Screen) Update(ctx context.Context, id string, req models.UpdateStudentRequest) error {
	if err := models.Validate(req); err != nil {
		return err
	}
	_, err := s.svc.UpdateStudent(ctx, id, req)
	return s.afterMutation(ctx, "update student", MsgUpdateFailed, err)
}

// RequestDelete marks id for deletion. Nothing is sent until ConfirmDelete.
func (s *Screen) RequestDelete(id string) {
	s.mu.Lock()
	s.pendingDelete = id
	s.mu.Unlock()
}

func (s *Screen) PendingDelete() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingDelete, s.pendingDelete != ""
}

func (s *Screen) CancelDelete() {
	s.mu.Lock()
	s.pendingDelete = ""
	s.mu.Unlock()
}

// ConfirmDelete deletes the pending student. It is a no-op when no
// delete was requested.
func (s *Screen) ConfirmDelete(ctx context.Context) error {
	s.mu.Lock()
	id := s.pendingDelete
	s.pendingDelete = ""
	s.mu.Unlock()
	if id == "" {
		return nil
	}
	err := s.svc.DeleteStudent(ctx, id)
	return s.afterMutation(ctx, "delete student", MsgDeleteFailed, err)
}

func (s *Screen) afterMutation(ctx context.Context, op, msg string, err error) error {
	if err != nil {
		debug.Error(op, err)
		s.mu.Lock()
		s.errMsg = msg
		s.mu.Unlock()
	}
	// A failed mutation's banner survives the refetch.
	if lerr := s.load(ctx, err != nil); err == nil {
		return lerr
	}
	return err
}

func (s *Screen) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Status:        s.status,
		Students:      append([]models.Student(nil), s.students...),
		Error:         s.errMsg,
		PendingDelete: s.pendingDelete,
	}
}
