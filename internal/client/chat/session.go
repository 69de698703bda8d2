// Package chat keeps the client's view of its conversations in sync with
// the backend by polling.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cloudzz-dev/rosterchat/internal/client/api"
	"github.com/cloudzz-dev/rosterchat/internal/client/debug"
	"github.com/cloudzz-dev/rosterchat/internal/models"
)

const (
	DefaultPollInterval   = 3 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

var ErrSessionClosed = errors.New("chat session closed")

// API is the part of the backend the session talks to.
type API interface {
	ChatUsers(ctx context.Context) ([]models.ChatUser, error)
	Users(ctx context.Context) ([]models.ChatUser, error)
	Unread(ctx context.Context) ([]models.Message, error)
	Conversation(ctx context.Context, userID string) ([]models.Message, error)
	SendMessage(ctx context.Context, req models.MessageRequest) (*models.Message, error)
	MarkRead(ctx context.Context, messageID string) (*models.Message, error)
	Poll(ctx context.Context, since time.Time) ([]models.Message, error)
}

type Option func(*Session)

func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock replaces the wall clock used for the poll watermark.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRequestTimeout bounds each timer driven poll.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// State is a copy of the session for rendering.
type State struct {
	Me                models.User
	ConversationUsers []models.ChatUser
	AllUsers          []models.ChatUser
	Selected          *models.ChatUser
	Messages          []models.Message
	UnreadCounts      map[string]int
	LastPoll          time.Time
}

// Session is the chat state of one logged in user. Create it with
// NewSession, start it with Initialize and stop it with Close.
type Session struct {
	api      API
	me       models.User
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu                sync.Mutex
	conversationUsers []models.ChatUser
	allUsers          []models.ChatUser
	selected          *models.ChatUser
	messages          []models.Message
	unread            map[string]int
	lastPoll          time.Time

	// Request sequence numbers. A response is applied only when it is
	// newer than the last one applied for the same surface.
	convSeq, convApplied     uint64
	unreadSeq, unreadApplied uint64
	usersSeq, usersApplied   uint64
	allSeq, allApplied       uint64

	changes chan struct{}
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}

	// Polls never overlap.
	pollMu sync.Mutex
}

func NewSession(api API, me models.User, opts ...Option) *Session {
	s := &Session{
		api:      api,
		me:       me,
		interval: DefaultPollInterval,
		timeout:  DefaultRequestTimeout,
		now:      time.Now,
		unread:   make(map[string]int),
		changes:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastPoll = s.now().UTC()
	return s
}

// Initialize loads conversation partners, all users and unread counts
// concurrently, then starts polling. A failed load leaves that list
// empty; the first error is returned after polling has started.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error { return s.refreshConversationUsers(ctx) })
	g.Go(func() error { return s.refreshAllUsers(ctx) })
	g.Go(func() error { return s.refreshUnread(ctx) })
	err := g.Wait()

	go s.run(loopCtx)
	debug.Log("chat session started for %s, polling every %s", s.me.Username, s.interval)
	return err
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollCtx, cancel := context.WithTimeout(ctx, s.timeout)
			err := s.Poll(pollCtx)
			cancel()
			if err == nil || ctx.Err() != nil {
				continue
			}
			debug.Error("poll messages", err)
			if errors.Is(err, api.ErrUnauthorized) || errors.Is(err, api.ErrNotAuthenticated) {
				debug.Log("credential gone, polling stopped")
				return
			}
		}
	}
}

// Close stops polling and waits for the loop to exit. It is safe to
// call more than once, but not from code running inside a poll, such as
// a logout listener reached through a 401.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel, done := s.cancel, s.done
	close(s.changes)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	debug.Log("chat session closed for %s", s.me.Username)
}

// Changes signals that the state changed. Signals coalesce, and the
// channel is closed by Close.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

func (s *Session) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyLocked()
}

func (s *Session) notifyLocked() {
	if s.closed {
		return
	}
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// SelectUser makes user the active partner and loads the conversation
// with them. Switching partners clears the thread at once so the old
// partner's messages are never shown under the new one. A nil user
// deselects.
func (s *Session) SelectUser(ctx context.Context, user *models.ChatUser) error {
	s.mu.Lock()
	if user == nil {
		s.selected = nil
		s.messages = nil
		s.notifyLocked()
		s.mu.Unlock()
		return nil
	}
	if s.selected == nil || s.selected.ID != user.ID {
		s.messages = nil
	}
	u := *user
	s.selected = &u
	s.notifyLocked()
	s.mu.Unlock()

	if err := s.fetchConversation(ctx, u.ID); err != nil {
		return err
	}
	var g errgroup.Group
	g.Go(func() error { return s.refreshUnread(ctx) })
	g.Go(func() error { return s.refreshConversationUsers(ctx) })
	return g.Wait()
}

// SendMessage sends content to the selected partner and then reloads
// the thread and the partner list. It does nothing when no partner is
// selected or content is blank.
func (s *Session) SendMessage(ctx context.Context, content string) error {
	s.mu.Lock()
	var partner string
	if s.selected != nil {
		partner = s.selected.ID
	}
	s.mu.Unlock()
	if partner == "" || strings.TrimSpace(content) == "" {
		return nil
	}

	if _, err := s.api.SendMessage(ctx, models.MessageRequest{ReceiverID: partner, Content: content}); err != nil {
		debug.Error("send message", err)
		return fmt.Errorf("send message: %w", err)
	}
	if err := s.fetchConversation(ctx, partner); err != nil {
		return err
	}
	return s.refreshConversationUsers(ctx)
}

// Poll asks for everything newer than the watermark. On success the
// watermark moves to the time the poll was issued; it never moves
// backwards and a failed poll leaves it alone. A message stamped at or
// before the watermark that reaches the backend late is missed.
func (s *Session) Poll(ctx context.Context) error {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	s.mu.Lock()
	since := s.lastPoll
	s.mu.Unlock()
	issued := s.now().UTC()

	msgs, err := s.api.Poll(ctx, since)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}

	s.mu.Lock()
	if issued.After(s.lastPoll) {
		s.lastPoll = issued
	}
	var partner string
	if s.selected != nil {
		partner = s.selected.ID
	}
	s.mu.Unlock()

	if len(msgs) == 0 {
		return nil
	}
	debug.Log("poll returned %d new messages", len(msgs))

	var errs []error
	if partner != "" {
		for _, m := range msgs {
			if m.Involves(partner) {
				errs = append(errs, s.fetchConversation(ctx, partner))
				break
			}
		}
	}
	errs = append(errs, s.refreshUnread(ctx))
	return errors.Join(errs...)
}

// RefreshMessages reloads the thread with the selected partner.
func (s *Session) RefreshMessages(ctx context.Context) error {
	s.mu.Lock()
	var partner string
	if s.selected != nil {
		partner = s.selected.ID
	}
	s.mu.Unlock()
	if partner == "" {
		return nil
	}
	return s.fetchConversation(ctx, partner)
}

// MarkRead marks one message read and recounts unread messages.
func (s *Session) MarkRead(ctx context.Context, messageID string) error {
	if _, err := s.api.MarkRead(ctx, messageID); err != nil {
		debug.Error("mark read", err)
		return fmt.Errorf("mark read: %w", err)
	}
	return s.refreshUnread(ctx)
}

func (s *Session) fetchConversation(ctx context.Context, partner string) error {
	s.mu.Lock()
	s.convSeq++
	seq := s.convSeq
	s.mu.Unlock()

	msgs, err := s.api.Conversation(ctx, partner)
	if err != nil {
		debug.Error("load conversation with "+partner, err)
		return fmt.Errorf("load conversation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil || s.selected.ID != partner || seq < s.convApplied {
		return nil
	}
	s.convApplied = seq
	s.messages = msgs
	s.notifyLocked()
	return nil
}

func (s *Session) refreshUnread(ctx context.Context) error {
	s.mu.Lock()
	s.unreadSeq++
	seq := s.unreadSeq
	s.mu.Unlock()

	msgs, err := s.api.Unread(ctx)
	if err != nil {
		debug.Error("load unread messages", err)
		return fmt.Errorf("load unread messages: %w", err)
	}
	counts := CountUnread(msgs, s.me.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.unreadApplied {
		return nil
	}
	s.unreadApplied = seq
	s.unread = counts
	s.notifyLocked()
	return nil
}

func (s *Session) refreshConversationUsers(ctx context.Context) error {
	s.mu.Lock()
	s.usersSeq++
	seq := s.usersSeq
	s.mu.Unlock()

	users, err := s.api.ChatUsers(ctx)
	if err != nil {
		debug.Error("load chat users", err)
		return fmt.Errorf("load chat users: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.usersApplied {
		return nil
	}
	s.usersApplied = seq
	s.conversationUsers = Addressable(users, s.me.ID)
	s.notifyLocked()
	return nil
}

func (s *Session) refreshAllUsers(ctx context.Context) error {
	s.mu.Lock()
	s.allSeq++
	seq := s.allSeq
	s.mu.Unlock()

	users, err := s.api.Users(ctx)
	if err != nil {
		debug.Error("load users", err)
		return fmt.Errorf("load users: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.allApplied {
		return nil
	}
	s.allApplied = seq
	s.allUsers = Addressable(users, s.me.ID)
	s.notifyLocked()
	return nil
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Me:                s.me,
		ConversationUsers: append([]models.ChatUser(nil), s.conversationUsers...),
		AllUsers:          append([]models.ChatUser(nil), s.allUsers...),
		Messages:          append([]models.Message(nil), s.messages...),
		UnreadCounts:      make(map[string]int, len(s.unread)),
		LastPoll:          s.lastPoll,
	}
	if s.selected != nil {
		u := *s.selected
		st.Selected = &u
	}
	for k, v := range s.unread {
		st.UnreadCounts[k] = v
	}
	return st
}
