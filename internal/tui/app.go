package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/jask/flowbit/internal/api"
	"github.com/jask/flowbit/internal/remote"
	"github.com/jask/flowbit/internal/screens"
	"github.com/jask/flowbit/internal/session"
)

// Gateway is the part of the API client the shell calls directly.
type Gateway interface {
	Login(ctx context.Context, username, password string) (string, error)
	Profile(ctx context.Context) (api.Profile, error)
}

// Loader resolves the remote module once per page.
type Loader interface {
	Load(ctx context.Context) remote.Handle
}

type Deps struct {
	Session  *session.Store
	API      Gateway
	Registry *screens.Registry
	Loader   Loader
	Log      *logrus.Logger
}

// App is the shell: login, screen navigation and the hosted remote view.
type App struct {
	root   context.Context
	deps   Deps
	state  appState
	focus  focusArea
	width  int
	height int

	// per-page state, discarded on reload
	epoch      uint64
	page       context.Context
	cancelPage context.CancelFunc
	screens    []api.Screen
	banner     string
	profile    *api.Profile
	handle     *remote.Handle
	loading    bool
	path       string
	cursor     int
	view       remote.View
	viewID     uint64
	login      loginForm
	spin       spinner.Model
	gotoInput  textinput.Model
	gotoOpen   bool
	suggestion string
	status     string
}

type appState string

const (
	stateLogin     appState = "login"
	stateLoading   appState = "loading"
	stateReady     appState = "ready"
	stateReloading appState = "reloading"
)

type focusArea string

const (
	focusSidebar focusArea = "sidebar"
	focusContent focusArea = "content"
)

// ReloadMsg discards every piece of page state and restarts from the session check.
type ReloadMsg struct {
	Reason string
}

type loginMsg struct {
	epoch uint64
	err   error
}

type screensMsg struct {
	epoch   uint64
	screens []api.Screen
	err     error
}

type profileMsg struct {
	epoch   uint64
	profile api.Profile
	err     error
}

type remoteMsg struct {
	epoch  uint64
	handle remote.Handle
}

// scopedMsg carries a hosted view's message back to that view only.
type scopedMsg struct {
	epoch  uint64
	viewID uint64
	msg    tea.Msg
}

type errMsg struct{ error }

func New(ctx context.Context, deps Deps) *App {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	a := &App{root: ctx, deps: deps, width: 100, height: 30}
	a.resetPage()
	return a
}

func (a *App) Init() tea.Cmd {
	return a.boot()
}

// resetPage is the full reload: everything page-scoped is dropped and in-flight work
// is cancelled. Messages from the previous epoch are ignored from here on.
func (a *App) resetPage() {
	if a.cancelPage != nil {
		a.cancelPage()
	}
	if a.view != nil {
		a.view.Close()
	}
	a.page, a.cancelPage = context.WithCancel(a.root)
	a.epoch++
	a.deps.Registry.Clear()
	a.screens = nil
	a.banner = ""
	a.profile = nil
	a.handle = nil
	a.loading = false
	a.path = "/"
	a.cursor = 0
	a.view = nil
	a.gotoOpen = false
	a.suggestion = ""
	a.status = ""
	a.focus = focusSidebar
	a.login = newLoginForm()
	a.spin = spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle))
}

// boot decides between the login view and loading the screen list.
func (a *App) boot() tea.Cmd {
	if !a.deps.Session.Authenticated() {
		a.state = stateLogin
		a.deps.Log.Debug("no session, showing login")
		if err := a.deps.Session.PersistError(); err != nil {
			a.login.problem = "Signed out, but the saved session could not be removed"
		}
		return textinput.Blink
	}
	a.state = stateLoading
	return tea.Batch(a.spin.Tick, a.loadScreens())
}

func (a *App) loadScreens() tea.Cmd {
	ctx, epoch, reg := a.page, a.epoch, a.deps.Registry
	return func() tea.Msg {
		list, err := reg.Load(ctx)
		return screensMsg{epoch: epoch, screens: list, err: err}
	}
}

func (a *App) loadProfile() tea.Cmd {
	ctx, epoch, gw := a.page, a.epoch, a.deps.API
	return func() tea.Msg {
		p, err := gw.Profile(ctx)
		return profileMsg{epoch: epoch, profile: p, err: err}
	}
}

func (a *App) loadRemote() tea.Cmd {
	a.loading = true
	ctx, epoch, loader := a.page, a.epoch, a.deps.Loader
	return func() tea.Msg {
		return remoteMsg{epoch: epoch, handle: loader.Load(ctx)}
	}
}

func (a *App) submitLogin(email, password string) tea.Cmd {
	ctx, epoch := a.page, a.epoch
	gw, store := a.deps.API, a.deps.Session
	return func() tea.Msg {
		token, err := gw.Login(ctx, email, password)
		if err != nil {
			return loginMsg{epoch: epoch, err: err}
		}
		if err := store.SetToken(token); err != nil {
			return errMsg{fmt.Errorf("save session: %w", err)}
		}
		return loginMsg{epoch: epoch}
	}
}

func (a *App) logout() {
	a.deps.Log.Info("logout requested")
	a.deps.Registry.Clear()
	a.screens = nil
	a.state = stateReloading
	// the session signals the reload
	a.deps.Session.Clear()
}

// scope tags cmd's result with the current page and view so a discarded view never
// sees it.
func (a *App) scope(cmd tea.Cmd) tea.Cmd {
	if cmd == nil {
		return nil
	}
	epoch, id := a.epoch, a.viewID
	return func() tea.Msg {
		return scopedMsg{epoch: epoch, viewID: id, msg: cmd()}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
		return a, a.forwardToView(tea.WindowSizeMsg{Width: a.contentWidth(), Height: a.contentHeight()})

	case ReloadMsg:
		a.deps.Log.WithField("reason", m.Reason).WithField("epoch", a.epoch).Info("reloading shell")
		a.resetPage()
		return a, a.boot()

	case remote.RetryMsg:
		return a, func() tea.Msg { return ReloadMsg{Reason: "retry"} }

	case loginMsg:
		if m.epoch != a.epoch {
			return a, nil
		}
		a.login.submitting = false
		if m.err != nil {
			a.deps.Log.WithError(m.err).Warn("login failed")
			a.login.problem = loginProblem(m.err)
			return a, nil
		}
		a.login = newLoginForm()
		a.state = stateLoading
		return a, tea.Batch(a.spin.Tick, a.loadScreens())

	case screensMsg:
		if m.epoch != a.epoch {
			return a, nil
		}
		if errors.Is(m.err, api.ErrUnauthorized) || errors.Is(m.err, context.Canceled) {
			// teardown is already under way; the reload signal follows
			return a, nil
		}
		a.screens = m.screens
		if m.err != nil {
			a.banner = "Failed to load screens"
		}
		a.state = stateReady
		return a, tea.Batch(a.loadProfile(), a.navigate(a.path))

	case profileMsg:
		if m.epoch != a.epoch {
			return a, nil
		}
		if m.err != nil {
			if !errors.Is(m.err, api.ErrUnauthorized) && !errors.Is(m.err, context.Canceled) {
				a.deps.Log.WithError(m.err).Warn("load profile")
			}
			return a, nil
		}
		p := m.profile
		a.profile = &p
		return a, nil

	case remoteMsg:
		if m.epoch != a.epoch {
			return a, nil
		}
		a.loading = false
		h := m.handle
		a.handle = &h
		if _, ok := a.deps.Registry.Resolve(a.path); ok && a.view == nil {
			return a, a.mount()
		}
		return a, nil

	case scopedMsg:
		if m.epoch != a.epoch || m.viewID != a.viewID || a.view == nil || m.msg == nil {
			return a, nil
		}
		if batch, ok := m.msg.(tea.BatchMsg); ok {
			cmds := make([]tea.Cmd, 0, len(batch))
			for _, c := range batch {
				cmds = append(cmds, a.scope(c))
			}
			return a, tea.Batch(cmds...)
		}
		if _, ok := m.msg.(remote.RetryMsg); ok {
			return a, func() tea.Msg { return ReloadMsg{Reason: "retry"} }
		}
		return a, a.forwardToView(m.msg)

	case errMsg:
		a.deps.Log.WithError(m.error).Error("shell error")
		if a.state == stateLogin {
			a.login.submitting = false
			a.login.problem = "Could not save the session"
			return a, nil
		}
		a.status = m.Error()
		return a, nil

	case spinner.TickMsg:
		if a.state != stateLoading && !a.loading {
			return a, nil
		}
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(m)
		return a, cmd

	case tea.KeyMsg:
		return a.handleKey(m)
	}

	if a.state == stateLogin {
		return a, a.login.update(msg)
	}
	if a.gotoOpen {
		var cmd tea.Cmd
		a.gotoInput, cmd = a.gotoInput.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) forwardToView(msg tea.Msg) tea.Cmd {
	if a.view == nil {
		return nil
	}
	next, cmd := a.view.Update(msg)
	a.view = next
	return a.scope(cmd)
}

// navigate switches the content pane to path.
func (a *App) navigate(path string) tea.Cmd {
	path = screens.Normalize(path)
	if a.view != nil {
		a.view.Close()
		a.view = nil
	}
	a.path = path
	a.suggestion = ""
	if path == "/" {
		return nil
	}
	if _, ok := a.deps.Registry.Resolve(path); !ok {
		a.suggestion = a.deps.Registry.Suggest(path)
		a.deps.Log.WithField("path", path).Debug("no route")
		return nil
	}
	if a.handle == nil {
		if a.loading {
			return nil
		}
		return tea.Batch(a.spin.Tick, a.loadRemote())
	}
	return a.mount()
}

func (a *App) mount() tea.Cmd {
	a.viewID++
	a.view = a.handle.Mount(a.page)
	cmds := []tea.Cmd{a.scope(a.view.Init())}
	if a.width > 0 {
		next, cmd := a.view.Update(tea.WindowSizeMsg{Width: a.contentWidth(), Height: a.contentHeight()})
		a.view = next
		cmds = append(cmds, a.scope(cmd))
	}
	return tea.Batch(cmds...)
}

func (a *App) viewCapturesInput() bool {
	if c, ok := a.view.(remote.InputCapturer); ok {
		return c.CapturesInput()
	}
	return false
}

func loginProblem(err error) string {
	switch {
	case errors.Is(err, api.ErrInvalidCredentials):
		return "Invalid credentials"
	case errors.Is(err, api.ErrTimeout):
		return "Login timed out"
	}
	var ne *api.NetworkError
	if errors.As(err, &ne) {
		return "Cannot reach the server"
	}
	return "Login failed"
}
