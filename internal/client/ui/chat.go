package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cloudzz-dev/rosterchat/internal/models"
)

const listWidth = 24

func (m *Model) resizeThread() {
	w, h := m.width, m.height
	if w == 0 {
		w, h = 100, 30
	}
	m.thread.Width = max(20, w-listWidth-8)
	m.thread.Height = max(5, h-10)
	m.compose.Width = max(10, m.thread.Width-4)
	m.renderThread()
}

func (m Model) updateChat(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case chatChangedMsg:
		if msg.session != m.chat {
			return m, nil
		}
		m.syncChat()
		return m, waitForChat(m.chat)

	case chatClosedMsg:
		return m, nil

	case chatInitMsg:
		if msg.err != nil {
			m.chatError = "Some chat data could not be loaded."
		}
		return m, nil

	case chatSelectedMsg:
		if msg.session != m.chat {
			return m, nil
		}
		if msg.err != nil {
			m.chatError = "Could not load the conversation."
		}
		m.syncChat()
		return m, nil

	case tea.KeyMsg:
		if m.view == viewNewConversation {
			return m.pickerKey(msg)
		}
		return m.chatKey(msg)
	}

	if m.view == viewChat && m.chatFocus == 1 {
		var cmd tea.Cmd
		m.compose, cmd = m.compose.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) chatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.slot.close()
		m.chat = nil
		m.pending = nil
		m.sending = false
		m.view = viewStudents
		return m, m.loadStudents()
	case "tab":
		if m.chatFocus == 0 {
			m.chatFocus = 1
			cmd := m.compose.Focus()
			return m, cmd
		}
		m.chatFocus = 0
		m.compose.Blur()
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.thread, cmd = m.thread.Update(msg)
		return m, cmd
	}

	if m.chatFocus == 1 {
		if msg.String() == "enter" {
			content := m.compose.Value()
			if m.chatState.Selected == nil || strings.TrimSpace(content) == "" || m.sending {
				return m, nil
			}
			m.sending = true
			return m, m.sendMessage(m.chat, content)
		}
		var cmd tea.Cmd
		m.compose, cmd = m.compose.Update(msg)
		return m, cmd
	}

	users := m.chatState.ConversationUsers
	switch msg.String() {
	case "up", "k":
		if m.selectedCon > 0 {
			m.selectedCon--
		}
	case "down", "j":
		if m.selectedCon < len(users)-1 {
			m.selectedCon++
		}
	case "enter":
		if m.selectedCon < len(users) {
			return m.openConversation(users[m.selectedCon])
		}
	case "n":
		m.pickerIndex = 0
		m.view = viewNewConversation
	}
	return m, nil
}

func (m Model) openConversation(user models.ChatUser) (tea.Model, tea.Cmd) {
	m.chatError = ""
	m.chatFocus = 1
	m.view = viewChat
	u := user
	m.pending = &u
	m.syncChat()
	focus := m.compose.Focus()
	return m, tea.Batch(m.selectPartner(m.chat, &u), focus, textinput.Blink)
}

func (m Model) pickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	users := m.chatState.AllUsers
	switch msg.String() {
	case "esc", "q":
		m.view = viewChat
	case "up", "k":
		if m.pickerIndex > 0 {
			m.pickerIndex--
		}
	case "down", "j":
		if m.pickerIndex < len(users)-1 {
			m.pickerIndex++
		}
	case "enter":
		if m.pickerIndex < len(users) {
			return m.openConversation(users[m.pickerIndex])
		}
	}
	return m, nil
}

// syncChat copies the session state, keeping a partner chosen in the UI
// until the session reports it as selected.
func (m *Model) syncChat() {
	m.chatState = m.chat.Snapshot()
	if p := m.pending; p != nil {
		if sel := m.chatState.Selected; sel != nil && sel.ID == p.ID {
			m.pending = nil
		} else {
			m.chatState.Selected = p
			m.chatState.Messages = nil
		}
	}
	if m.selectedCon >= len(m.chatState.ConversationUsers) {
		m.selectedCon = max(0, len(m.chatState.ConversationUsers)-1)
	}
	m.renderThread()
}

// sent applies the outcome of a send started from the current session.
func (m Model) sent(msg chatSentMsg) Model {
	if msg.session == nil || msg.session != m.chat {
		return m
	}
	m.sending = false
	if msg.err != nil {
		m.chatError = "Message not sent. Press Enter to retry."
		return m
	}
	m.chatError = ""
	if m.compose.Value() == msg.content {
		m.compose.SetValue("")
	}
	return m
}

func (m *Model) renderThread() {
	m.thread.SetContent(renderMessages(m.chatState.Messages, m.chatState.Me.ID, m.thread.Width))
	m.thread.GotoBottom()
}

// renderMessages lays out a thread: sent messages on the right, received
// ones on the left with their read mark.
func renderMessages(msgs []models.Message, me string, width int) string {
	if len(msgs) == 0 {
		return mutedStyle.Render("No messages yet. Say hello!")
	}
	var s strings.Builder
	for _, msg := range msgs {
		at := msg.Timestamp.Local().Format("15:04")
		if msg.SenderID == me {
			block := ownMessageStyle.Render(msg.Content) + "\n" + mutedStyle.Render(at)
			s.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Right, block))
		} else {
			mark := "✓"
			if msg.Read {
				mark = "✓✓"
			}
			s.WriteString(otherMessageStyle.Render(msg.Content) + "\n" + mutedStyle.Render(at+" "+mark))
		}
		s.WriteString("\n\n")
	}
	return s.String()
}

// conversationList renders partners with their unread badge.
func conversationList(users []models.ChatUser, unread map[string]int, selected *models.ChatUser, cursor int, focused bool) string {
	if len(users) == 0 {
		return mutedStyle.Render("No conversations.\nPress 'n' to start one.")
	}
	var s strings.Builder
	for i, u := range users {
		prefix := "  "
		style := lipgloss.NewStyle()
		if focused && i == cursor {
			prefix = "→ "
			style = selectedStyle
		} else if selected != nil && selected.ID == u.ID {
			style = selectedStyle
		}
		line := style.Render(prefix + u.Username)
		if n := unread[u.ID]; n > 0 {
			line += " " + badgeStyle.Render(fmt.Sprint(n))
		}
		s.WriteString(line + "\n")
	}
	return s.String()
}

func (m Model) chatView() string {
	var s strings.Builder
	s.WriteString(m.header("Chat"))

	st := m.chatState
	left := paneStyle.Width(listWidth).Render(
		headerStyle.Render("Conversations") + "\n\n" +
			conversationList(st.ConversationUsers, st.UnreadCounts, st.Selected, m.selectedCon, m.chatFocus == 0),
	)

	var right strings.Builder
	if st.Selected == nil {
		right.WriteString(mutedStyle.Render("Select a user to start chatting"))
	} else {
		right.WriteString(headerStyle.Render("Chat with "+st.Selected.Username) + "\n")
		right.WriteString(m.thread.View() + "\n")
		right.WriteString(m.compose.View())
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, paneStyle.Render(right.String())))
	s.WriteString("\n")

	if m.chatError != "" {
		s.WriteString(errorStyle.Render("  "+m.chatError) + "\n")
	}
	help := "  Tab switch focus • ↑/↓ navigate • Enter open/send • n new conversation • Esc back"
	s.WriteString(helpStyle.Render(help))
	return s.String()
}

func (m Model) pickerView() string {
	var s strings.Builder
	s.WriteString(m.header("New Conversation"))

	users := m.chatState.AllUsers
	if len(users) == 0 {
		s.WriteString(mutedStyle.Render("  Nobody else is registered yet.") + "\n")
	}
	for i, u := range users {
		if i == m.pickerIndex {
			s.WriteString(selectedStyle.Render("→ "+u.Username) + "\n")
		} else {
			s.WriteString("  " + u.Username + "\n")
		}
	}
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("  ↑/↓ navigate • Enter to start chatting • Esc to cancel"))
	return s.String()
}
