package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type loginForm struct {
	email      textinput.Model
	password   textinput.Model
	focus      int
	submitting bool
	problem    string
}

func newLoginForm() loginForm {
	email := textinput.New()
	email.Prompt = "Email:    "
	email.Placeholder = "admin@tenantA.com"
	email.CharLimit = 254
	email.Focus()

	pw := textinput.New()
	pw.Prompt = "Password: "
	pw.EchoMode = textinput.EchoPassword
	pw.EchoCharacter = '•'
	pw.CharLimit = 128

	return loginForm{email: email, password: pw}
}

func (f *loginForm) toggleFocus() tea.Cmd {
	if f.focus == 0 {
		f.focus = 1
		f.email.Blur()
		return f.password.Focus()
	}
	f.focus = 0
	f.password.Blur()
	return f.email.Focus()
}

// credentials returns trimmed email and raw password, or ok=false with problem set.
func (f *loginForm) credentials() (string, string, bool) {
	email := strings.TrimSpace(f.email.Value())
	password := f.password.Value()
	switch {
	case email == "" && password == "":
		f.problem = "Email and password are required"
	case email == "":
		f.problem = "Email is required"
	case password == "":
		f.problem = "Password is required"
	case !strings.Contains(email, "@"):
		f.problem = "Enter a valid email address"
	default:
		f.problem = ""
		return email, password, true
	}
	return "", "", false
}

func (f *loginForm) update(msg tea.Msg) tea.Cmd {
	if f.submitting {
		return nil
	}
	var cmd tea.Cmd
	if f.focus == 0 {
		f.email, cmd = f.email.Update(msg)
	} else {
		f.password, cmd = f.password.Update(msg)
	}
	return cmd
}

func (f *loginForm) view() string {
	lines := []string{
		titleStyle.Render("Flowbit Login"),
		"",
		f.email.View(),
		f.password.View(),
		"",
	}
	switch {
	case f.submitting:
		lines = append(lines, hintStyle.Render("Logging in..."))
	case f.problem != "":
		lines = append(lines, errorStyle.Render(f.problem))
	default:
		lines = append(lines, hintStyle.Render("enter next/submit  tab switch field  ctrl+c quit"))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}
