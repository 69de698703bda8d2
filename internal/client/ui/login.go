package ui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/cloudzz-dev/rosterchat/internal/client/api"
	"github.com/cloudzz-dev/rosterchat/internal/client/debug"
	"github.com/cloudzz-dev/rosterchat/internal/models"
)

const (
	authUsername = iota
	authPassword
	authEmail
)

func (m *Model) resetAuthInputs(view viewState) {
	username := newInput("Username", 32, 30)
	password := newInput("Password", 64, 30)
	password.EchoMode = textinput.EchoPassword
	m.authInputs = []textinput.Model{username, password}
	if view == viewRegister {
		m.authInputs = append(m.authInputs, newInput("Email", 254, 30))
	}
	m.authInputs[authUsername].Focus()
	m.authFocused = authUsername
	m.authError = ""
	m.view = view
}

func (m *Model) focusAuth(i int) {
	m.authInputs[m.authFocused].Blur()
	m.authFocused = (i + len(m.authInputs)) % len(m.authInputs)
	m.authInputs[m.authFocused].Focus()
}

func (m Model) updateAuth(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, tea.Quit
		case "tab", "down":
			m.focusAuth(m.authFocused + 1)
			return m, nil
		case "shift+tab", "up":
			m.focusAuth(m.authFocused - 1)
			return m, nil
		case "ctrl+r":
			next := viewRegister
			if m.view == viewRegister {
				next = viewLogin
			}
			m.resetAuthInputs(next)
			return m, nil
		case "enter":
			if m.busy {
				return m, nil
			}
			return m.submitAuth()
		}

	case loginResultMsg:
		m.busy = false
		if msg.err != nil {
			m.authError = authErrorText(msg.err, "Invalid credentials")
			return m, nil
		}
		m.user = msg.user
		m.notice = ""
		m.view = viewStudents
		return m, m.loadStudents()

	case registerResultMsg:
		m.busy = false
		if msg.err != nil {
			m.authError = authErrorText(msg.err, "Registration failed")
			return m, nil
		}
		m.resetAuthInputs(viewLogin)
		m.authInputs[authUsername].SetValue(msg.username)
		m.focusAuth(authPassword)
		m.notice = "Registration successful, please log in."
		return m, nil
	}

	var cmd tea.Cmd
	m.authInputs[m.authFocused], cmd = m.authInputs[m.authFocused].Update(msg)
	return m, cmd
}

func (m Model) submitAuth() (tea.Model, tea.Cmd) {
	username := strings.TrimSpace(m.authInputs[authUsername].Value())
	password := m.authInputs[authPassword].Value()
	m.authError = ""
	m.busy = true
	if m.view == viewRegister {
		return m, m.register(models.RegisterRequest{
			Username: username,
			Email:    strings.TrimSpace(m.authInputs[authEmail].Value()),
			Password: password,
		})
	}
	return m, m.signIn(models.LoginRequest{Username: username, Password: password})
}

// authErrorText keeps rejected credentials generic and shows field
// problems as they are.
func authErrorText(err error, fallback string) string {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, api.ErrInvalidCredentials):
		return "Invalid credentials"
	}
	debug.Error("auth", err)
	if msg := apiMessage(err); msg != "" {
		return fallback + ": " + msg
	}
	return fallback
}

func apiMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

func (m Model) authView() string {
	var s strings.Builder

	s.WriteString("\n")
	s.WriteString(titleStyle.Render("ROSTERCHAT"))
	s.WriteString("\n\n")

	if m.view == viewLogin {
		s.WriteString(selectedStyle.Render("  → Login"))
		s.WriteString(mutedStyle.Render("   Register\n"))
	} else {
		s.WriteString(mutedStyle.Render("  Login   "))
		s.WriteString(selectedStyle.Render("→ Register\n"))
	}
	s.WriteString(helpStyle.Render("  (Ctrl+R to switch)\n\n"))

	labels := []string{"Username", "Password", "Email"}
	for i, in := range m.authInputs {
		s.WriteString("  " + labels[i] + ":\n")
		s.WriteString("  " + in.View() + "\n\n")
	}

	if m.notice != "" {
		s.WriteString(noticeStyle.Render("  "+m.notice) + "\n\n")
	}
	if m.authError != "" {
		s.WriteString(errorStyle.Render("  "+m.authError) + "\n\n")
	}
	if m.busy {
		s.WriteString(mutedStyle.Render("  Working...") + "\n\n")
	}

	s.WriteString(helpStyle.Render("  Tab to switch fields • Enter to submit • Esc to quit\n"))
	return s.String()
}
