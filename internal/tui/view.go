package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const sidebarWidth = 30

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7086"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6adc8"))
	activeStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1e1e2e")).Background(lipgloss.Color("#89b4fa"))
	spinnerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#cba6f7"))
	bannerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#1e1e2e")).Background(lipgloss.Color("#f38ba8")).Padding(0, 1)
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#45475a")).Padding(1, 3)
	sidebarStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, true, false, false).BorderForeground(lipgloss.Color("#45475a")).Padding(0, 1)
	sidebarActive = sidebarStyle.BorderForeground(lipgloss.Color("#89b4fa"))
)

func (a *App) View() string {
	switch a.state {
	case stateLogin:
		return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, a.login.view())
	case stateLoading:
		return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, a.spin.View()+" Loading application...")
	case stateReloading:
		return ""
	}
	side := a.renderSidebar()
	content := lipgloss.NewStyle().Width(a.contentWidth()).Padding(0, 1).Render(a.renderContent())
	return lipgloss.JoinHorizontal(lipgloss.Top, side, content)
}

func (a *App) contentWidth() int {
	w := a.width - sidebarWidth - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (a *App) contentHeight() int {
	h := a.height - 2
	if h < 5 {
		h = 5
	}
	return h
}

func (a *App) renderSidebar() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Navigation"))
	b.WriteString("\n")
	if c, ok := a.deps.Session.Claims(); ok {
		who := c.Subject
		if a.profile != nil && a.profile.Email != "" {
			who = a.profile.Email
		}
		b.WriteString(mutedStyle.Render(who))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(fmt.Sprintf("%s · %s", c.Tenant, c.Role)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	for i, s := range a.screens {
		label := s.Tenant
		if s.ScreenURL != "" {
			label = fmt.Sprintf("%s %s", s.Tenant, hintStyle.Render(s.ScreenURL))
		}
		switch {
		case i == a.cursor && a.focus == focusSidebar:
			b.WriteString(activeStyle.Render("> " + s.Tenant))
		case a.isActive(s.ScreenURL):
			b.WriteString("* " + label)
		default:
			b.WriteString("  " + label)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("enter open  h home  g go to\ntab pane  x logout  q quit"))

	style := sidebarStyle
	if a.focus == focusSidebar {
		style = sidebarActive
	}
	return style.Width(sidebarWidth).Height(a.contentHeight()).Render(b.String())
}

func (a *App) isActive(url string) bool {
	if a.path == "/" {
		return false
	}
	s, ok := a.deps.Registry.Resolve(a.path)
	return ok && s.ScreenURL == url
}

func (a *App) renderContent() string {
	var parts []string
	if a.banner != "" {
		parts = append(parts, bannerStyle.Render(a.banner))
	}
	if a.gotoOpen {
		parts = append(parts, a.gotoInput.View())
	}
	if a.status != "" {
		parts = append(parts, errorStyle.Render(a.status))
	}

	switch {
	case a.view != nil:
		parts = append(parts, a.view.View(a.contentWidth(), a.contentHeight()-len(parts)))
	case a.path == "/":
		parts = append(parts, a.renderWelcome())
	case a.loading:
		parts = append(parts, a.spin.View()+" Loading Support Tickets...")
	default:
		parts = append(parts, a.renderNotFound())
	}
	return strings.Join(parts, "\n")
}

func (a *App) renderWelcome() string {
	lines := []string{
		titleStyle.Render("Welcome to Flowbit Multitenant App"),
		"Select a screen from the sidebar to get started.",
		"",
		"Available Screens:",
	}
	for _, s := range a.screens {
		lines = append(lines, fmt.Sprintf("  %s - %s", s.Tenant, s.ScreenURL))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderNotFound() string {
	lines := []string{
		errorStyle.Render("No screen at " + a.path),
	}
	if a.suggestion != "" {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("Did you mean %s?", a.suggestion)))
	}
	return strings.Join(lines, "\n")
}
