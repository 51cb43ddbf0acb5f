package remote

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// View is a component hosted in the shell's content pane.
type View interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (View, tea.Cmd)
	View(width, height int) string
	Title() string
	// Close stops timers and background work; the view is discarded afterwards.
	Close()
}

// InputCapturer is implemented by views that own the keyboard while editing. The shell
// skips its global bindings while CapturesInput is true.
type InputCapturer interface {
	CapturesInput() bool
}

// Factory builds a view from the props a remote descriptor carries. ctx lives as long
// as the page that hosts the view.
type Factory func(ctx context.Context, props map[string]any) (View, error)

// Catalog maps component names a remote may reference to host factories.
type Catalog map[string]Factory

// Names lists the registered component names.
func (c Catalog) Names() []string {
	out := make([]string, 0, len(c))
	for name := range c {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RetryMsg asks the shell for a full reload, restarting the loader from Idle.
type RetryMsg struct{}

var (
	fallbackTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f38ba8"))
	fallbackBodyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6adc8"))
	fallbackHintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7086"))
)

var retryKey = key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry"))

// FallbackView is shown whenever the remote module cannot be resolved.
type FallbackView struct {
	entryURL string
	reason   error
}

func NewFallbackView(entryURL string, reason error) *FallbackView {
	return &FallbackView{entryURL: entryURL, reason: reason}
}

func (f *FallbackView) Init() tea.Cmd { return nil }

func (f *FallbackView) Update(msg tea.Msg) (View, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && key.Matches(k, retryKey) {
		return f, func() tea.Msg { return RetryMsg{} }
	}
	return f, nil
}

func (f *FallbackView) View(width, height int) string {
	where := f.entryURL
	if u, err := url.Parse(f.entryURL); err == nil && u.Host != "" {
		where = u.Host
	}
	lines := []string{
		fallbackTitleStyle.Render("Support Tickets App Unavailable"),
		"",
		fallbackBodyStyle.Render(fmt.Sprintf("Please ensure the support tickets service is running at %s", where)),
	}
	if f.reason != nil {
		lines = append(lines, fallbackHintStyle.Render(f.reason.Error()))
	}
	lines = append(lines, "", fallbackHintStyle.Render("r retry"))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, strings.Join(lines, "\n"))
}

func (f *FallbackView) Title() string { return "Support Tickets" }

func (f *FallbackView) Close() {}

// Reason is the failure that produced the fallback.
func (f *FallbackView) Reason() error { return f.reason }
