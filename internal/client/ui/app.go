// Package ui is the terminal front end: login, the student roster and
// chat.
package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/cloudzz-dev/rosterchat/internal/client/api"
	"github.com/cloudzz-dev/rosterchat/internal/client/auth"
	"github.com/cloudzz-dev/rosterchat/internal/client/chat"
	"github.com/cloudzz-dev/rosterchat/internal/client/students"
	"github.com/cloudzz-dev/rosterchat/internal/models"
)

type viewState int

const (
	viewLogin viewState = iota
	viewRegister
	viewStudents
	viewStudentForm
	viewConfirmDelete
	viewChat
	viewNewConversation
)

type Config struct {
	Auth           *auth.Container
	API            *api.Client
	PollInterval   time.Duration
	RequestTimeout time.Duration
}

// sessionSlot holds the open chat session so a logout can stop it
// before the UI gets around to handling the logout message.
type sessionSlot struct {
	mu sync.Mutex
	s  *chat.Session
}

func (h *sessionSlot) set(s *chat.Session) {
	h.mu.Lock()
	old := h.s
	h.s = s
	h.mu.Unlock()
	if old != nil && old != s {
		old.Close()
	}
}

func (h *sessionSlot) close() {
	h.set(nil)
}

type Model struct {
	cfg      Config
	events   chan auth.Reason
	slot     *sessionSlot
	students *students.Screen

	user   models.User
	view   viewState
	width  int
	height int
	notice string

	// Login and register
	authInputs  []textinput.Model
	authFocused int
	authError   string
	busy        bool

	// Students
	roster       students.State
	selectedRow  int
	form         studentForm
	studentError string

	// Chat
	chat        *chat.Session
	chatState   chat.State
	pending     *models.ChatUser // chosen partner the session has not taken yet
	sending     bool
	chatFocus   int // 0=conversation list, 1=compose
	selectedCon int
	pickerIndex int
	chatError   string
	compose     textinput.Model
	thread      viewport.Model
}

func New(cfg Config) Model {
	cfg.PollInterval = defaultDuration(cfg.PollInterval, chat.DefaultPollInterval)
	cfg.RequestTimeout = defaultDuration(cfg.RequestTimeout, chat.DefaultRequestTimeout)

	m := Model{
		cfg:      cfg,
		events:   make(chan auth.Reason, 4),
		slot:     &sessionSlot{},
		students: students.New(cfg.API),
		compose:  newInput("Type a message...", 1000, 50),
		thread:   viewport.New(80, 20),
	}
	m.resetAuthInputs(viewLogin)

	slot, events := m.slot, m.events
	cfg.Auth.OnLogout(func(r auth.Reason) {
		// A 401 can arrive from inside a poll, which Close waits for.
		go slot.close()
		select {
		case events <- r:
		default:
		}
	})

	if user, ok := cfg.Auth.User(); ok && cfg.Auth.IsAuthenticated() {
		m.user = user
		m.view = viewStudents
	}
	return m
}

func newInput(placeholder string, limit, width int) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = limit
	in.Width = width
	return in
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, waitForLogout(m.events)}
	if m.view == viewStudents {
		cmds = append(cmds, m.loadStudents())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.slot.close()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeThread()
		return m, nil

	case chatSentMsg:
		// A send can finish after the chat view was left.
		return m.sent(msg), nil

	case loggedOutMsg:
		m = m.toLogin()
		if msg.reason == auth.ReasonUnauthorized {
			m.notice = "Session expired, please log in again."
		}
		return m, waitForLogout(m.events)
	}

	switch m.view {
	case viewLogin, viewRegister:
		return m.updateAuth(msg)
	case viewStudents, viewStudentForm, viewConfirmDelete:
		return m.updateStudents(msg)
	case viewChat, viewNewConversation:
		return m.updateChat(msg)
	}
	return m, nil
}

// toLogin drops everything tied to the previous user.
func (m Model) toLogin() Model {
	m.slot.close()
	m.chat = nil
	m.chatState = chat.State{}
	m.pending = nil
	m.sending = false
	m.user = models.User{}
	m.students = students.New(m.cfg.API)
	m.roster = students.State{}
	m.busy = false
	m.notice = ""
	m.resetAuthInputs(viewLogin)
	return m
}

func (m Model) View() string {
	var body string
	switch m.view {
	case viewLogin, viewRegister:
		body = m.authView()
	case viewStudents:
		body = m.studentsView()
	case viewStudentForm:
		body = m.formView()
	case viewConfirmDelete:
		body = m.confirmDeleteView()
	case viewChat:
		body = m.chatView()
	case viewNewConversation:
		body = m.pickerView()
	}
	return body
}

func (m Model) header(title string) string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(title))
	if m.user.Username != "" {
		s.WriteString(mutedStyle.Render(fmt.Sprintf("  signed in as %s", m.user.Username)))
	}
	s.WriteString("\n\n")
	return s.String()
}
