package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloudzz-dev/rosterchat/internal/models"
)

type Memory struct {
	mu       sync.RWMutex
	users    map[string]*UserRecord
	byName   map[string]string
	students map[string]models.Student
	order    []string
	messages []models.Message
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]*UserRecord),
		byName:   make(map[string]string),
		students: make(map[string]models.Student),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(username)
	if _, exists := m.byName[key]; exists {
		return nil, ErrConflict
	}
	rec := &UserRecord{
		User:         models.User{ID: uuid.NewString(), Username: username, Email: email},
		PasswordHash: passwordHash,
	}
	m.users[rec.ID] = rec
	m.byName[key] = rec.ID
	u := rec.User
	return &u, nil
}

func (m *Memory) UserByUsername(ctx context.Context, username string) (*UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[strings.ToLower(username)]
	if !ok {
		return nil, ErrNotFound
	}
	rec := *m.users[id]
	return &rec, nil
}

func (m *Memory) UserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u := rec.User
	return &u, nil
}

func (m *Memory) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.User, 0, len(m.users))
	for _, rec := range m.users {
		out = append(out, rec.User)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *Memory) ListStudents(ctx context.Context) ([]models.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Student, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, copyStudent(m.students[id]))
	}
	return out, nil
}

func (m *Memory) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, ErrNotFound
	}
	s = copyStudent(s)
	return &s, nil
}

func (m *Memory) CreateStudent(ctx context.Context, s models.Student) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.NewString()
	s = copyStudent(s)
	m.students[s.ID] = s
	m.order = append(m.order, s.ID)
	out := copyStudent(s)
	return &out, nil
}

func (m *Memory) UpdateStudent(ctx context.Context, s models.Student) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[s.ID]; !ok {
		return nil, ErrNotFound
	}
	s = copyStudent(s)
	m.students[s.ID] = s
	out := copyStudent(s)
	return &out, nil
}

func (m *Memory) DeleteStudent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[id]; !ok {
		return ErrNotFound
	}
	delete(m.students, id)
	for i, sid := range m.order {
		if sid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func copyStudent(s models.Student) models.Student {
	s.Courses = append([]string(nil), s.Courses...)
	return s
}

func (m *Memory) SaveMessage(ctx context.Context, senderID, receiverID, content string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sender, ok := m.users[senderID]
	if !ok {
		return nil, ErrNotFound
	}
	receiver, ok := m.users[receiverID]
	if !ok {
		return nil, ErrNotFound
	}
	msg := models.Message{
		ID:               uuid.NewString(),
		SenderID:         senderID,
		ReceiverID:       receiverID,
		SenderUsername:   sender.Username,
		ReceiverUsername: receiver.Username,
		Content:          content,
		Timestamp:        models.NewTimestamp(now()),
	}
	m.messages = append(m.messages, msg)
	return &msg, nil
}

func (m *Memory) Conversation(ctx context.Context, me, partner string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for i := range m.messages {
		msg := &m.messages[i]
		switch {
		case msg.SenderID == partner && msg.ReceiverID == me:
			msg.Read = true
		case msg.SenderID == me && msg.ReceiverID == partner:
		default:
			continue
		}
		out = append(out, *msg)
	}
	return out, nil
}

func (m *Memory) MarkRead(ctx context.Context, messageID string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.messages {
		if m.messages[i].ID == messageID {
			m.messages[i].Read = true
			msg := m.messages[i]
			return &msg, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Unread(ctx context.Context, me string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Message
	for _, msg := range m.messages {
		if msg.ReceiverID == me && !msg.Read {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *Memory) MessagesSince(ctx context.Context, me string, since time.Time) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Message
	for _, msg := range m.messages {
		if msg.Involves(me) && msg.Timestamp.After(since) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *Memory) Partners(ctx context.Context, me string) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []models.User
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if !msg.Involves(me) {
			continue
		}
		other := msg.ReceiverID
		if msg.ReceiverID == me {
			other = msg.SenderID
		}
		if other == me || seen[other] {
			continue
		}
		seen[other] = true
		if rec, ok := m.users[other]; ok {
			out = append(out, rec.User)
		}
	}
	return out, nil
}

var _ Store = (*Memory)(nil)
