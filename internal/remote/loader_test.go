package remote

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/jask/flowbit/internal/logging"
)

type stubView struct {
	props  map[string]any
	closed bool
}

func (v *stubView) Init() tea.Cmd { return nil }
func (v *stubView) Update(tea.Msg) (View, tea.Cmd) { return v, nil }
func (v *stubView) View(int, int) string { return "tickets" }
func (v *stubView) Title() string { return "Support Tickets" }
func (v *stubView) Close() { v.closed = true }

func testCatalog() Catalog {
	return Catalog{
		"support-tickets": func(_ context.Context, props map[string]any) (View, error) {
			return &stubView{props: props}, nil
		},
	}
}

type entryServer struct {
	*httptest.Server
	fetches atomic.Int32
}

func serveEntry(t *testing.T, status int, script string) *entryServer {
	t.Helper()
	s := &entryServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fetches.Add(1)
		w.Header().Set("Content-Type", "application/javascript")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, script)
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestLoader(url string, timeout time.Duration) *Loader {
	return NewLoader(Config{
		EntryURL: url,
		Name:     "supportTicketsApp",
		Module:   "./App",
		Grace:    100 * time.Millisecond,
		Timeout:  timeout,
	}, testCatalog(), nil, logging.Discard())
}

const goodEntry = `
console.log("booting remote");
setTimeout(function () {
  registerRemote("supportTicketsApp", {
    "./App": function () {
      return { component: "support-tickets", title: "Support Tickets", props: { pollSeconds: 5 } };
    }
  });
}, 50);
`

func TestLoadSuccessAfterGrace(t *testing.T) {
	srv := serveEntry(t, http.StatusOK, goodEntry)
	l := newTestLoader(srv.URL+"/remoteEntry.js", time.Second)
	require.Equal(t, Idle, l.State())

	start := time.Now()
	h := l.Load(context.Background())
	require.NoError(t, h.Err)
	require.True(t, h.Loaded())
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond, "import must wait for the grace period")
	require.Equal(t, Resolved, l.State())
	require.Equal(t, "support-tickets", h.Descriptor.Component)
	require.Equal(t, "Support Tickets", h.Descriptor.Title)
	require.NotEmpty(t, h.AttemptID)

	v, ok := h.Mount(context.Background()).(*stubView)
	require.True(t, ok)
	require.EqualValues(t, 5, v.props["pollSeconds"])
	require.EqualValues(t, 1, srv.fetches.Load())
}

func TestScriptLoadFailureFallsBack(t *testing.T) {
	srv := serveEntry(t, http.StatusNotFound, "not here")
	h := newTestLoader(srv.URL, time.Second).Load(context.Background())
	require.False(t, h.Loaded())
	require.ErrorIs(t, h.Err, ErrScriptLoad)
	_, ok := h.Mount(context.Background()).(*FallbackView)
	require.True(t, ok)
	require.EqualValues(t, 1, srv.fetches.Load())
}

func TestUnreachableHostFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	h := newTestLoader(url, time.Second).Load(context.Background())
	require.ErrorIs(t, h.Err, ErrScriptLoad)
	require.IsType(t, &FallbackView{}, h.Mount(context.Background()))
}

func TestImportFailureAfterGraceFallsBack(t *testing.T) {
	cases := map[string]struct {
		script string
		want   error
	}{
		"registers too late": {
			script: `setTimeout(function () { registerRemote("supportTicketsApp", {"./App": function () { return {component: "support-tickets"}; }}); }, 500);`,
			want:   ErrContainerMissing,
		},
		"registers after an infinite delay": {
			script: `setTimeout(function () { registerRemote("supportTicketsApp", {"./App": function () { return {component: "support-tickets"}; }}); }, Infinity);`,
			want:   ErrContainerMissing,
		},
		"registers after a delay past the duration range": {
			script: `setTimeout(function () { registerRemote("supportTicketsApp", {"./App": function () { return {component: "support-tickets"}; }}); }, 1e13);`,
			want:   ErrContainerMissing,
		},
		"never registers": {
			script: `var supportTicketsApp = {};`,
			want:   ErrContainerMissing,
		},
		"wrong module": {
			script: `registerRemote("supportTicketsApp", {"./Other": function () { return {component: "support-tickets"}; }});`,
			want:   ErrModuleMissing,
		},
		"unknown component": {
			script: `registerRemote("supportTicketsApp", {"./App": function () { return {component: "billing"}; }});`,
			want:   ErrUnknownComponent,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := serveEntry(t, http.StatusOK, tc.script)
			h := newTestLoader(srv.URL, time.Second).Load(context.Background())
			require.False(t, h.Loaded())
			require.ErrorIs(t, h.Err, tc.want)
			require.IsType(t, &FallbackView{}, h.Mount(context.Background()))
		})
	}
}

func TestScriptErrorsFallBack(t *testing.T) {
	for name, script := range map[string]string{
		"syntax":    `registerRemote("supportTicketsApp", {`,
		"throws":    `throw new Error("boom");`,
		"factory":   `registerRemote("supportTicketsApp", {"./App": function () { throw new Error("nope"); }});`,
		"bad descr": `registerRemote("supportTicketsApp", {"./App": function () { return 42; }});`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := serveEntry(t, http.StatusOK, script)
			h := newTestLoader(srv.URL, time.Second).Load(context.Background())
			require.Error(t, h.Err)
			require.IsType(t, &FallbackView{}, h.Mount(context.Background()))
		})
	}
}

func TestRunawayScriptIsInterrupted(t *testing.T) {
	srv := serveEntry(t, http.StatusOK, `for (;;) {}`)
	start := time.Now()
	h := newTestLoader(srv.URL, 100*time.Millisecond).Load(context.Background())
	require.Error(t, h.Err)
	require.Less(t, time.Since(start), 2*time.Second)
	require.IsType(t, &FallbackView{}, h.Mount(context.Background()))
}

func TestEveryAttemptFetchesAgain(t *testing.T) {
	srv := serveEntry(t, http.StatusOK, goodEntry)
	l := newTestLoader(srv.URL, time.Second)

	first := l.Load(context.Background())
	second := l.Load(context.Background())
	require.True(t, first.Loaded())
	require.True(t, second.Loaded())
	require.NotSame(t, first.Mount(context.Background()), second.Mount(context.Background()))
	require.NotEqual(t, first.AttemptID, second.AttemptID)
	require.EqualValues(t, 2, srv.fetches.Load())
}

func TestMountBuildsFreshViews(t *testing.T) {
	srv := serveEntry(t, http.StatusOK, goodEntry)
	h := newTestLoader(srv.URL, time.Second).Load(context.Background())
	a := h.Mount(context.Background())
	b := h.Mount(context.Background())
	require.NotSame(t, a, b)
	require.EqualValues(t, 1, srv.fetches.Load())

	failing := NewLoader(Config{EntryURL: srv.URL, Name: "supportTicketsApp", Module: "./App", Grace: 100 * time.Millisecond, Timeout: time.Second},
		Catalog{"support-tickets": func(context.Context, map[string]any) (View, error) { return nil, errors.New("no client") }},
		nil, logging.Discard())
	h = failing.Load(context.Background())
	require.True(t, h.Loaded())
	require.IsType(t, &FallbackView{}, h.Mount(context.Background()))
}

func TestCanceledLoad(t *testing.T) {
	srv := serveEntry(t, http.StatusOK, goodEntry)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := newTestLoader(srv.URL, time.Second).Load(ctx)
	require.True(t, errors.Is(h.Err, context.Canceled))
}

func TestFallbackRetryKey(t *testing.T) {
	f := NewFallbackView("http://localhost:3001/remoteEntry.js", ErrScriptLoad)
	require.Contains(t, f.View(80, 20), "Support Tickets App Unavailable")
	require.Contains(t, f.View(80, 20), "localhost:3001")

	_, cmd := f.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.NotNil(t, cmd)
	require.Equal(t, RetryMsg{}, cmd())

	_, cmd = f.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	require.Nil(t, cmd)
}

func TestTimersRunInDueOrder(t *testing.T) {
	e, err := newEntry(logging.Discard().WithField("t", "x"))
	require.NoError(t, err)
	require.NoError(t, e.run(context.Background(), `
var order = [];
setTimeout(function () { order.push("b"); }, 80);
setTimeout(function () { order.push("a"); setTimeout(function () { order.push("c"); }, 10); }, 20);
setTimeout(function () { order.push("late"); }, 150);
var cancelled = setTimeout(function () { order.push("x"); }, 5);
clearTimeout(cancelled);
`, time.Second))
	e.advance(context.Background(), 100*time.Millisecond, time.Second)
	require.Equal(t, []any{"a", "c", "b"}, e.vm.Get("order").Export())
}

func TestDueAtSaturates(t *testing.T) {
	require.Equal(t, 5*time.Second, dueAt(0, 5000))
	require.Equal(t, time.Second, dueAt(time.Second, -20))
	require.Equal(t, time.Second, dueAt(time.Second, math.NaN()))
	require.Equal(t, never, dueAt(0, math.Inf(1)))
	require.Equal(t, never, dueAt(0, 1e13))
	require.Equal(t, never, dueAt(never-time.Second, 2000), "a nested timer must not wrap around")
}
