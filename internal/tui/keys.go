package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type keyMap struct {
	Quit      key.Binding
	ForceQuit key.Binding
	Focus     key.Binding
	Up        key.Binding
	Down      key.Binding
	Open      key.Binding
	Home      key.Binding
	Goto      key.Binding
	Logout    key.Binding
	Back      key.Binding
	Submit    key.Binding
}

var keys = keyMap{
	Quit:      key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
	ForceQuit: key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	Focus:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
	Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Open:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	Home:      key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "home")),
	Goto:      key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "go to path")),
	Logout:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "logout")),
	Back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Submit:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.ForceQuit) {
		a.cancelPage()
		return a, tea.Quit
	}

	switch a.state {
	case stateLogin:
		return a, a.handleLoginKey(msg)
	case stateLoading, stateReloading:
		if key.Matches(msg, keys.Quit) {
			a.cancelPage()
			return a, tea.Quit
		}
		return a, nil
	}

	if a.gotoOpen {
		return a, a.handleGotoKey(msg)
	}

	if a.focus == focusContent && a.view != nil {
		if key.Matches(msg, keys.Back) && !a.viewCapturesInput() {
			a.focus = focusSidebar
			return a, nil
		}
		if key.Matches(msg, keys.Focus) && !a.viewCapturesInput() {
			a.focus = focusSidebar
			return a, nil
		}
		return a, a.forwardToView(msg)
	}

	switch {
	case key.Matches(msg, keys.Quit):
		a.cancelPage()
		return a, tea.Quit
	case key.Matches(msg, keys.Logout):
		a.logout()
		return a, nil
	case key.Matches(msg, keys.Focus):
		if a.view != nil {
			a.focus = focusContent
		}
	case key.Matches(msg, keys.Up):
		if a.cursor > 0 {
			a.cursor--
		}
	case key.Matches(msg, keys.Down):
		if a.cursor < len(a.screens)-1 {
			a.cursor++
		}
	case key.Matches(msg, keys.Open):
		if a.cursor < len(a.screens) {
			cmd := a.navigate(a.screens[a.cursor].ScreenURL)
			a.focus = focusContent
			return a, cmd
		}
	case key.Matches(msg, keys.Home):
		return a, a.navigate("/")
	case key.Matches(msg, keys.Goto):
		a.gotoInput = textinput.New()
		a.gotoInput.Prompt = "go to: "
		a.gotoInput.Placeholder = "/support"
		a.gotoInput.SetValue(a.path)
		a.gotoInput.CursorEnd()
		a.gotoOpen = true
		return a, a.gotoInput.Focus()
	}
	return a, nil
}

func (a *App) handleLoginKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "tab", "shift+tab":
		return a.login.toggleFocus()
	case "enter":
		if a.login.submitting {
			return nil
		}
		if a.login.focus == 0 {
			return a.login.toggleFocus()
		}
		email, password, ok := a.login.credentials()
		if !ok {
			return nil
		}
		a.login.submitting = true
		return a.submitLogin(email, password)
	}
	return a.login.update(msg)
}

func (a *App) handleGotoKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Back):
		a.gotoOpen = false
		return nil
	case key.Matches(msg, keys.Submit):
		a.gotoOpen = false
		cmd := a.navigate(a.gotoInput.Value())
		if a.view != nil || a.loading {
			a.focus = focusContent
		}
		return cmd
	}
	var cmd tea.Cmd
	a.gotoInput, cmd = a.gotoInput.Update(msg)
	return cmd
}
