// Package storage persists users, students and messages for the
// development backend.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cloudzz-dev/rosterchat/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// UserRecord is a user together with their password hash.
type UserRecord struct {
	models.User
	PasswordHash string
}

type Store interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*UserRecord, error)
	UserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)

	ListStudents(ctx context.Context) ([]models.Student, error)
	GetStudent(ctx context.Context, id string) (*models.Student, error)
	CreateStudent(ctx context.Context, s models.Student) (*models.Student, error)
	UpdateStudent(ctx context.Context, s models.Student) (*models.Student, error)
	DeleteStudent(ctx context.Context, id string) error

	SaveMessage(ctx context.Context, senderID, receiverID, content string) (*models.Message, error)
	// Conversation returns the messages between me and partner, oldest
	// first, after marking partner's messages to me as read.
	Conversation(ctx context.Context, me, partner string) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID string) (*models.Message, error)
	Unread(ctx context.Context, me string) ([]models.Message, error)
	// MessagesSince returns messages sent or received by me stamped
	// strictly after since, oldest first.
	MessagesSince(ctx context.Context, me string, since time.Time) ([]models.Message, error)
	// Partners lists everyone me has exchanged messages with, most
	// recent first.
	Partners(ctx context.Context, me string) ([]models.User, error)

	Close() error
}

// now stamps messages at the millisecond precision the wire carries.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
