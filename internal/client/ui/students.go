package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cloudzz-dev/rosterchat/internal/client/chat"
	"github.com/cloudzz-dev/rosterchat/internal/client/debug"
	"github.com/cloudzz-dev/rosterchat/internal/client/students"
	"github.com/cloudzz-dev/rosterchat/internal/models"
)

const (
	fieldName = iota
	fieldCourses
	fieldPhone
	fieldDateOfBirth
)

var formLabels = []string{"Name", "Courses", "Phone number", "Date of birth"}

// formKeys are the JSON names validation errors are reported under.
var formKeys = []string{"name", "courses", "phoneNumber", "dateOfBirth"}

type studentForm struct {
	id      string
	inputs  []textinput.Model
	focused int
	errors  map[string]string
}

func newStudentForm(st *models.Student) studentForm {
	f := studentForm{
		inputs: []textinput.Model{
			newInput("Full name", 100, 40),
			newInput(strings.Join(models.Courses[:2], ", "), 200, 40),
			newInput("10 digits", 10, 40),
			newInput("YYYY-MM-DD", 10, 40),
		},
	}
	if st != nil {
		f.id = st.ID
		f.inputs[fieldName].SetValue(st.Name)
		f.inputs[fieldCourses].SetValue(strings.Join(st.Courses, ", "))
		f.inputs[fieldPhone].SetValue(st.PhoneNumber)
		f.inputs[fieldDateOfBirth].SetValue(st.DateOfBirth.String())
	}
	f.inputs[fieldName].Focus()
	return f
}

func (f *studentForm) focus(i int) {
	f.inputs[f.focused].Blur()
	f.focused = (i + len(f.inputs)) % len(f.inputs)
	f.inputs[f.focused].Focus()
}

// request parses the form. Parse failures are reported per field; the
// rest of validation happens in the students screen.
func (f *studentForm) request() (models.CreateStudentRequest, bool) {
	f.errors = map[string]string{}
	req := models.CreateStudentRequest{
		Name:        strings.TrimSpace(f.inputs[fieldName].Value()),
		PhoneNumber: strings.TrimSpace(f.inputs[fieldPhone].Value()),
	}
	courses, err := models.ParseCourses(f.inputs[fieldCourses].Value())
	if err != nil {
		f.errors["courses"] = err.Error()
	}
	req.Courses = courses
	if raw := strings.TrimSpace(f.inputs[fieldDateOfBirth].Value()); raw != "" {
		dob, err := models.ParseDate(raw)
		if err != nil {
			f.errors["dateOfBirth"] = "use YYYY-MM-DD"
		}
		req.DateOfBirth = dob
	}
	return req, len(f.errors) == 0
}

func (m Model) updateStudents(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case studentsLoadedMsg:
		m.roster = m.students.Snapshot()
		m.clampRow()
		return m, nil

	case studentSavedMsg:
		m.roster = m.students.Snapshot()
		m.clampRow()
		m.busy = false
		var verr *models.ValidationError
		if errors.As(msg.err, &verr) {
			m.form.errors = verr.Fields
			return m, nil
		}
		m.view = viewStudents
		return m, nil

	case studentDeletedMsg:
		m.roster = m.students.Snapshot()
		m.clampRow()
		m.busy = false
		m.view = viewStudents
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case viewStudents:
			return m.studentsKey(msg)
		case viewConfirmDelete:
			return m.confirmKey(msg)
		case viewStudentForm:
			return m.formKey(msg)
		}
	}

	if m.view == viewStudentForm {
		var cmd tea.Cmd
		m.form.inputs[m.form.focused], cmd = m.form.inputs[m.form.focused].Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) clampRow() {
	if m.selectedRow >= len(m.roster.Students) {
		m.selectedRow = len(m.roster.Students) - 1
	}
	if m.selectedRow < 0 {
		m.selectedRow = 0
	}
}

func (m Model) selectedStudent() (*models.Student, bool) {
	if m.selectedRow < 0 || m.selectedRow >= len(m.roster.Students) {
		return nil, false
	}
	st := m.roster.Students[m.selectedRow]
	return &st, true
}

func (m Model) studentsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.slot.close()
		return m, tea.Quit
	case "up", "k":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "down", "j":
		if m.selectedRow < len(m.roster.Students)-1 {
			m.selectedRow++
		}
	case "r":
		return m, m.loadStudents()
	case "a":
		m.form = newStudentForm(nil)
		m.view = viewStudentForm
		return m, textinput.Blink
	case "e", "enter":
		if st, ok := m.selectedStudent(); ok {
			m.form = newStudentForm(st)
			m.view = viewStudentForm
			return m, textinput.Blink
		}
	case "d":
		if st, ok := m.selectedStudent(); ok {
			m.students.RequestDelete(st.ID)
			m.view = viewConfirmDelete
		}
	case "c":
		return m.openChat()
	case "L":
		if err := m.cfg.Auth.Logout(); err != nil {
			debug.Error("logout", err)
		}
	}
	return m, nil
}

func (m Model) confirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, m.deleteStudent()
	case "n", "N", "esc", "q":
		m.students.CancelDelete()
		m.view = viewStudents
	}
	return m, nil
}

func (m Model) formKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.view = viewStudents
		return m, nil
	case "tab", "down":
		m.form.focus(m.form.focused + 1)
		return m, nil
	case "shift+tab", "up":
		m.form.focus(m.form.focused - 1)
		return m, nil
	case "enter":
		if m.busy {
			return m, nil
		}
		req, ok := m.form.request()
		if !ok {
			return m, nil
		}
		m.busy = true
		return m, m.saveStudent(m.form.id, req)
	}
	var cmd tea.Cmd
	m.form.inputs[m.form.focused], cmd = m.form.inputs[m.form.focused].Update(msg)
	return m, cmd
}

func (m Model) openChat() (tea.Model, tea.Cmd) {
	s := chat.NewSession(m.cfg.API, m.user,
		chat.WithPollInterval(m.cfg.PollInterval),
		chat.WithRequestTimeout(m.cfg.RequestTimeout),
	)
	m.slot.set(s)
	m.chat = s
	m.chatState = s.Snapshot()
	m.pending = nil
	m.sending = false
	m.chatFocus = 0
	m.selectedCon = 0
	m.chatError = ""
	m.compose.SetValue("")
	m.compose.Blur()
	m.view = viewChat
	m.resizeThread()
	return m, tea.Batch(m.initChat(s), waitForChat(s))
}

func (m Model) studentsView() string {
	var s strings.Builder
	s.WriteString(m.header("Students"))

	switch m.roster.Status {
	case students.StatusIdle, students.StatusLoading:
		if len(m.roster.Students) == 0 {
			s.WriteString(mutedStyle.Render("  Loading students...") + "\n\n")
		}
	}
	if m.roster.Error != "" {
		s.WriteString(errorStyle.Render("  "+m.roster.Error) + "\n\n")
	}

	if len(m.roster.Students) == 0 && m.roster.Status == students.StatusReady {
		s.WriteString(mutedStyle.Render("  No students yet. Press 'a' to add one.") + "\n")
	} else if len(m.roster.Students) > 0 {
		s.WriteString(studentTable(m.roster.Students, m.selectedRow))
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("  ↑/↓ navigate • a add • e edit • d delete • r reload • c chat • L logout • q quit"))
	return s.String()
}

func studentTable(list []models.Student, selected int) string {
	row := func(cols ...string) string {
		widths := []int{24, 36, 12, 12}
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = lipgloss.NewStyle().Width(widths[i]).MaxWidth(widths[i]).Render(c)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
	}

	var s strings.Builder
	s.WriteString("  " + headerStyle.Render(row("Name", "Courses", "Phone", "Born")) + "\n")
	for i, st := range list {
		line := row(st.Name, strings.Join(st.Courses, ", "), st.PhoneNumber, st.DateOfBirth.Display())
		if i == selected {
			s.WriteString(selectedStyle.Render("→ "+line) + "\n")
		} else {
			s.WriteString("  " + line + "\n")
		}
	}
	return s.String()
}

func (m Model) formView() string {
	var s strings.Builder
	title := "Add Student"
	if m.form.id != "" {
		title = "Edit Student"
	}
	s.WriteString(m.header(title))

	for i, in := range m.form.inputs {
		s.WriteString("  " + formLabels[i] + ":\n")
		s.WriteString("  " + in.View() + "\n")
		if msg := m.form.errors[formKeys[i]]; msg != "" {
			s.WriteString(errorStyle.Render("    "+msg) + "\n")
		}
		s.WriteString("\n")
	}
	s.WriteString(mutedStyle.Render("  Courses: "+strings.Join(models.Courses, ", ")) + "\n\n")

	if m.roster.Error != "" {
		s.WriteString(errorStyle.Render("  "+m.roster.Error) + "\n\n")
	}
	if m.busy {
		s.WriteString(mutedStyle.Render("  Saving...") + "\n\n")
	}
	s.WriteString(helpStyle.Render("  Tab to switch fields • Enter to save • Esc to cancel"))
	return s.String()
}

func (m Model) confirmDeleteView() string {
	var s strings.Builder
	s.WriteString(m.header("Delete Student"))

	name := "this student"
	if id, ok := m.students.PendingDelete(); ok {
		for _, st := range m.roster.Students {
			if st.ID == id {
				name = st.Name
			}
		}
	}
	s.WriteString(paneStyle.Render(fmt.Sprintf("Delete %s? This cannot be undone.", name)))
	s.WriteString("\n\n")
	if m.busy {
		s.WriteString(mutedStyle.Render("  Deleting...") + "\n\n")
	}
	s.WriteString(helpStyle.Render("  y to delete • n to cancel"))
	return s.String()
}
