package tickets

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/flowbit/internal/api"
)

type formAction int

const (
	formNone formAction = iota
	formSubmit
	formCancel
)

// form is the create-ticket editor. Both fields are required.
type form struct {
	title       textinput.Model
	description textarea.Model
	focus       int
	submitting  bool
	problem     string
}

func newForm() form {
	ti := textinput.New()
	ti.Prompt = "Title: "
	ti.Placeholder = "Short summary"
	ti.CharLimit = 200
	ti.Focus()

	ta := textarea.New()
	ta.Placeholder = "What happened?"
	ta.ShowLineNumbers = false
	ta.SetHeight(4)
	ta.CharLimit = 4000

	return form{title: ti, description: ta}
}

func (f *form) setWidth(w int) {
	if w < 20 {
		w = 20
	}
	f.title.Width = w - len(f.title.Prompt) - 2
	f.description.SetWidth(w - 2)
}

func (f *form) update(msg tea.Msg) (formAction, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "esc":
			return formCancel, nil
		case "tab", "shift+tab":
			return formNone, f.toggleFocus()
		case "enter":
			if f.focus == 0 {
				return formNone, f.toggleFocus()
			}
		case "ctrl+s":
			return formSubmit, nil
		}
	}
	if f.submitting {
		return formNone, nil
	}
	var cmd tea.Cmd
	if f.focus == 0 {
		f.title, cmd = f.title.Update(msg)
	} else {
		f.description, cmd = f.description.Update(msg)
	}
	return formNone, cmd
}

func (f *form) toggleFocus() tea.Cmd {
	if f.focus == 0 {
		f.focus = 1
		f.title.Blur()
		return f.description.Focus()
	}
	f.focus = 0
	f.description.Blur()
	return f.title.Focus()
}

// validate returns the payload, or ok=false with f.problem set.
func (f *form) validate() (api.NewTicket, bool) {
	in := api.NewTicket{
		Title:       strings.TrimSpace(f.title.Value()),
		Description: strings.TrimSpace(f.description.Value()),
	}
	var missing []string
	if in.Title == "" {
		missing = append(missing, "title")
	}
	if in.Description == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		f.problem = strings.Join(missing, " and ") + " required"
		return api.NewTicket{}, false
	}
	f.problem = ""
	return in, true
}

func (f *form) view() string {
	lines := []string{
		headerStyle.Render("Create New Ticket"),
		f.title.View(),
		"Description:",
		f.description.View(),
	}
	switch {
	case f.submitting:
		lines = append(lines, hintStyle.Render("Creating..."))
	case f.problem != "":
		lines = append(lines, errorStyle.Render(f.problem))
	}
	lines = append(lines, hintStyle.Render("ctrl+s create  tab next field  esc cancel"))
	return formStyle.Render(strings.Join(lines, "\n"))
}
