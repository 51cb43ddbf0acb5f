// Package tickets is the support tickets component mounted by the remote module.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/jask/flowbit/internal/api"
	"github.com/jask/flowbit/internal/remote"
)

// ComponentName is the catalog key remotes use to mount this component.
const ComponentName = "support-tickets"

// DefaultPollInterval is the list refresh period.
const DefaultPollInterval = 10 * time.Second

// Client is the slice of the API the component calls.
type Client interface {
	Tickets(ctx context.Context) ([]api.Ticket, error)
	CreateTicket(ctx context.Context, in api.NewTicket) (api.Ticket, error)
	UpdateTicketStatus(ctx context.Context, id, status string) (api.Ticket, error)
	DeleteTicket(ctx context.Context, id string) error
}

type Options struct {
	Client       Client
	PollInterval time.Duration
	Log          *logrus.Logger
}

// Factory adapts New to the remote catalog. Props may carry "title" and "pollSeconds".
func Factory(opts Options) remote.Factory {
	return func(ctx context.Context, props map[string]any) (remote.View, error) {
		if opts.Client == nil {
			return nil, errors.New("tickets: no api client")
		}
		o := opts
		if secs, ok := numberProp(props, "pollSeconds"); ok && secs > 0 {
			o.PollInterval = time.Duration(secs * float64(time.Second))
		}
		m := New(ctx, o)
		if title, ok := props["title"].(string); ok && strings.TrimSpace(title) != "" {
			m.title = title
		}
		return m, nil
	}
}

type mode int

const (
	modeList mode = iota
	modeForm
	modeConfirmDelete
)

var instances atomic.Uint64

type (
	loadedMsg struct {
		inst    uint64
		tickets []api.Ticket
		err     error
	}
	pollMsg struct {
		inst uint64
	}
	createdMsg struct {
		inst   uint64
		ticket api.Ticket
		err    error
	}
	statusMsg struct {
		inst   uint64
		ticket api.Ticket
		err    error
	}
	deletedMsg struct {
		inst uint64
		id   string
		err  error
	}
)

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	New     key.Binding
	Status  key.Binding
	Delete  key.Binding
	Refresh key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

var keys = keyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	New:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new ticket")),
	Status:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "next status")),
	Delete:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Confirm: key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "confirm")),
	Cancel:  key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n/esc", "cancel")),
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7086"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#cdd6f4")).Background(lipgloss.Color("#313244"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6adc8"))
	formStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#45475a")).Padding(0, 1)
	statusStyles  = map[string]lipgloss.Style{
		"open":        lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1")),
		"in progress": lipgloss.NewStyle().Foreground(lipgloss.Color("#f9e2af")),
		"closed":      lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7086")),
	}
)

// Model is the ticket list with its create form.
type Model struct {
	ctx      context.Context
	client   Client
	log      *logrus.Logger
	interval time.Duration
	inst     uint64
	title    string

	tickets  []api.Ticket
	loading  bool
	fetching bool
	err      error
	notice   string
	cursor   int
	mode     mode
	form     form
	width    int
	closed   bool
}

// New builds the component. Requests run under ctx.
func New(ctx context.Context, opts Options) *Model {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Model{
		ctx:      ctx,
		client:   opts.Client,
		log:      log,
		interval: interval,
		inst:     instances.Add(1),
		title:    "Support Tickets",
		loading:  true,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.schedulePoll())
}

func (m *Model) Title() string { return m.title }

// Close stops polling. Later messages for this instance are ignored.
func (m *Model) Close() { m.closed = true }

// CapturesInput reports whether keystrokes belong to the form.
func (m *Model) CapturesInput() bool { return m.mode == modeForm }

func (m *Model) Update(msg tea.Msg) (remote.View, tea.Cmd) {
	if m.closed {
		return m, nil
	}
	switch msg := msg.(type) {
	case pollMsg:
		if msg.inst != m.inst {
			return m, nil
		}
		cmds := []tea.Cmd{m.schedulePoll()}
		if !m.fetching {
			cmds = append(cmds, m.fetch())
		}
		return m, tea.Batch(cmds...)

	case loadedMsg:
		if msg.inst != m.inst {
			return m, nil
		}
		m.loading = false
		m.fetching = false
		if msg.err != nil {
			if !errors.Is(msg.err, context.Canceled) {
				m.log.WithError(msg.err).Warn("fetch tickets")
			}
			m.err = msg.err
			m.tickets = nil
			return m, nil
		}
		m.err = nil
		m.tickets = msg.tickets
		m.clampCursor()
		return m, nil

	case createdMsg:
		if msg.inst != m.inst {
			return m, nil
		}
		m.form.submitting = false
		if msg.err != nil {
			m.log.WithError(msg.err).Warn("create ticket")
			m.form.problem = "Could not create ticket: " + describe(msg.err)
			return m, nil
		}
		m.log.WithField("ticket", msg.ticket.ID).Info("ticket created")
		m.mode = modeList
		m.form = form{}
		m.notice = fmt.Sprintf("Created %q", msg.ticket.Title)
		return m, m.fetch()

	case statusMsg:
		if msg.inst != m.inst {
			return m, nil
		}
		if msg.err != nil {
			m.log.WithError(msg.err).Warn("update ticket status")
			m.notice = "Status update failed: " + describe(msg.err)
			return m, nil
		}
		for i := range m.tickets {
			if m.tickets[i].ID == msg.ticket.ID {
				m.tickets[i] = msg.ticket
			}
		}
		m.notice = fmt.Sprintf("%q is now %s", msg.ticket.Title, msg.ticket.Status)
		return m, nil

	case deletedMsg:
		if msg.inst != m.inst {
			return m, nil
		}
		if msg.err != nil {
			m.log.WithError(msg.err).Warn("delete ticket")
			m.notice = "Delete failed: " + describe(msg.err)
			return m, nil
		}
		kept := m.tickets[:0]
		for _, t := range m.tickets {
			if t.ID != msg.id {
				kept = append(kept, t)
			}
		}
		m.tickets = kept
		m.clampCursor()
		m.notice = "Ticket deleted"
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.mode == modeForm {
		_, cmd := m.form.update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (remote.View, tea.Cmd) {
	switch m.mode {
	case modeForm:
		action, cmd := m.form.update(msg)
		switch action {
		case formCancel:
			m.mode = modeList
			m.form = form{}
		case formSubmit:
			return m, m.submit()
		}
		return m, cmd

	case modeConfirmDelete:
		switch {
		case key.Matches(msg, keys.Confirm):
			m.mode = modeList
			if t, ok := m.selected(); ok {
				return m, m.remove(t.ID)
			}
		case key.Matches(msg, keys.Cancel):
			m.mode = modeList
		}
		return m, nil
	}

	if m.err != nil && key.Matches(msg, keys.Refresh) {
		return m, func() tea.Msg { return remote.RetryMsg{} }
	}
	switch {
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.tickets)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.New):
		m.mode = modeForm
		m.form = newForm()
		m.form.setWidth(m.formWidth())
		m.notice = ""
	case key.Matches(msg, keys.Status):
		if t, ok := m.selected(); ok {
			return m, m.advanceStatus(t)
		}
	case key.Matches(msg, keys.Delete):
		if _, ok := m.selected(); ok {
			m.mode = modeConfirmDelete
		}
	case key.Matches(msg, keys.Refresh):
		if !m.fetching {
			return m, m.fetch()
		}
	}
	return m, nil
}

func (m *Model) submit() tea.Cmd {
	if m.form.submitting {
		return nil
	}
	in, ok := m.form.validate()
	if !ok {
		return nil
	}
	m.form.submitting = true
	ctx, client, inst := m.ctx, m.client, m.inst
	return func() tea.Msg {
		t, err := client.CreateTicket(ctx, in)
		return createdMsg{inst: inst, ticket: t, err: err}
	}
}

func (m *Model) fetch() tea.Cmd {
	m.fetching = true
	ctx, client, inst := m.ctx, m.client, m.inst
	return func() tea.Msg {
		list, err := client.Tickets(ctx)
		return loadedMsg{inst: inst, tickets: list, err: err}
	}
}

func (m *Model) schedulePoll() tea.Cmd {
	inst := m.inst
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return pollMsg{inst: inst} })
}

func (m *Model) advanceStatus(t api.Ticket) tea.Cmd {
	ctx, client, inst := m.ctx, m.client, m.inst
	next := api.NextStatus(t.Status)
	return func() tea.Msg {
		updated, err := client.UpdateTicketStatus(ctx, t.ID, next)
		if err == nil && updated.ID == "" {
			updated = t
			updated.Status = next
		}
		return statusMsg{inst: inst, ticket: updated, err: err}
	}
}

func (m *Model) remove(id string) tea.Cmd {
	ctx, client, inst := m.ctx, m.client, m.inst
	return func() tea.Msg {
		return deletedMsg{inst: inst, id: id, err: client.DeleteTicket(ctx, id)}
	}
}

func (m *Model) selected() (api.Ticket, bool) {
	if m.cursor < 0 || m.cursor >= len(m.tickets) {
		return api.Ticket{}, false
	}
	return m.tickets[m.cursor], true
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.tickets) {
		m.cursor = len(m.tickets) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) formWidth() int {
	if m.width <= 0 {
		return 60
	}
	return m.width
}

func (m *Model) View(width, height int) string {
	if width > 0 && width != m.width {
		m.width = width
		if m.mode == modeForm {
			m.form.setWidth(width)
		}
	}
	if m.loading {
		return hintStyle.Render("Loading tickets...")
	}
	if m.err != nil {
		return strings.Join([]string{
			errorStyle.Render("Error"),
			describe(m.err),
			"",
			hintStyle.Render("r retry"),
		}, "\n")
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(m.title))
	b.WriteString("\n\n")
	if m.mode == modeForm {
		b.WriteString(m.form.view())
		b.WriteString("\n\n")
	}

	if len(m.tickets) == 0 {
		b.WriteString("No tickets found.\n")
	} else {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("Total tickets: %d", len(m.tickets))))
		b.WriteString("\n")
		for i, t := range m.tickets {
			b.WriteString(m.renderTicket(i, t, width))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	switch {
	case m.mode == modeConfirmDelete:
		if t, ok := m.selected(); ok {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Delete %q? y/n", t.Title)))
		}
	case m.notice != "":
		b.WriteString(mutedStyle.Render(m.notice))
	}
	if m.mode == modeList {
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("n new  s status  d delete  r refresh  j/k move"))
	}
	return b.String()
}

func (m *Model) renderTicket(i int, t api.Ticket, width int) string {
	st, ok := statusStyles[strings.ToLower(t.Status)]
	if !ok {
		st = mutedStyle
	}
	created := "-"
	if !t.CreatedAt.IsZero() {
		created = t.CreatedAt.Format("2006-01-02")
	}
	line := fmt.Sprintf("%s  %s", st.Render(fmt.Sprintf("[%s]", t.Status)), t.Title)
	meta := mutedStyle.Render(fmt.Sprintf("    created %s by %s", created, t.CreatedBy))
	if i != m.cursor {
		return line + "\n" + meta
	}
	desc := t.Description
	if r := []rune(desc); width > 8 && len(r) > width-4 {
		desc = string(r[:width-7]) + "..."
	}
	return selectedStyle.Render("> "+line) + "\n" + mutedStyle.Render("    "+desc) + "\n" + meta
}

func describe(err error) string {
	var se *api.StatusError
	switch {
	case errors.As(err, &se) && se.Detail != "":
		return se.Detail
	case errors.Is(err, api.ErrTimeout):
		return "the ticket service did not answer in time"
	case errors.Is(err, api.ErrUnauthorized):
		return "Please login to view tickets"
	}
	return err.Error()
}

func numberProp(props map[string]any, name string) (float64, bool) {
	switch v := props[name].(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
