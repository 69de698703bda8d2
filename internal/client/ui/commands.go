package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cloudzz-dev/rosterchat/internal/client/auth"
	"github.com/cloudzz-dev/rosterchat/internal/client/chat"
	"github.com/cloudzz-dev/rosterchat/internal/models"
)

type loggedOutMsg struct {
	reason auth.Reason
}

type loginResultMsg struct {
	user models.User
	err  error
}

type registerResultMsg struct {
	username string
	err      error
}

type studentsLoadedMsg struct{ err error }

type studentSavedMsg struct{ err error }

type studentDeletedMsg struct{ err error }

type chatChangedMsg struct {
	session *chat.Session
}

type chatClosedMsg struct{}

type chatInitMsg struct{ err error }

type chatSelectedMsg struct {
	session *chat.Session
	err     error
}

type chatSentMsg struct {
	session *chat.Session
	content string
	err     error
}

func (m Model) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.cfg.RequestTimeout)
}

// waitForLogout delivers the next logout notification. It is issued
// again after every delivery.
func waitForLogout(events <-chan auth.Reason) tea.Cmd {
	return func() tea.Msg {
		return loggedOutMsg{reason: <-events}
	}
}

// waitForChat delivers the next change of s.
func waitForChat(s *chat.Session) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-s.Changes(); !ok {
			return chatClosedMsg{}
		}
		return chatChangedMsg{session: s}
	}
}

func (m Model) signIn(req models.LoginRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.ctx()
		defer cancel()
		user, err := m.cfg.Auth.SignIn(ctx, m.cfg.API, req)
		return loginResultMsg{user: user, err: err}
	}
}

func (m Model) register(req models.RegisterRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.ctx()
		defer cancel()
		return registerResultMsg{username: req.Username, err: auth.Register(ctx, m.cfg.API, req)}
	}
}

func (m Model) loadStudents() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.ctx()
		defer cancel()
		return studentsLoadedMsg{err: m.students.Load(ctx)}
	}
}

func (m Model) saveStudent(id string, req models.CreateStudentRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.ctx()
		defer cancel()
		if id == "" {
			return studentSavedMsg{err: m.students.Create(ctx, req)}
		}
		return studentSavedMsg{err: m.students.Update(ctx, id, models.UpdateStudentRequest(req))}
	}
}

func (m Model) deleteStudent() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.ctx()
		defer cancel()
		return studentDeletedMsg{err: m.students.ConfirmDelete(ctx)}
	}
}

func (m Model) initChat(s *chat.Session) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.ctx()
		defer cancel()
		return chatInitMsg{err: s.Initialize(ctx)}
	}
}

func (m Model) selectPartner(s *chat.Session, user *models.ChatUser) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.ctx()
		defer cancel()
		return chatSelectedMsg{session: s, err: s.SelectUser(ctx, user)}
	}
}

func (m Model) sendMessage(s *chat.Session, content string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.ctx()
		defer cancel()
		return chatSentMsg{session: s, content: content, err: s.SendMessage(ctx, content)}
	}
}

func defaultDuration(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
