package tickets

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/jask/flowbit/internal/api"
	"github.com/jask/flowbit/internal/logging"
	"github.com/jask/flowbit/internal/remote"
)

type fakeClient struct {
	mu        sync.Mutex
	list      []api.Ticket
	listErr   error
	createErr error
	fetches   int
	created   []api.NewTicket
	patched   []string
	deleted   []string
}

func (f *fakeClient) Tickets(context.Context) ([]api.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return append([]api.Ticket(nil), f.list...), f.listErr
}

func (f *fakeClient) CreateTicket(_ context.Context, in api.NewTicket) (api.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return api.Ticket{}, f.createErr
	}
	f.created = append(f.created, in)
	t := api.Ticket{ID: "new", Title: in.Title, Description: in.Description, Status: "Open"}
	f.list = append(f.list, t)
	return t, nil
}

func (f *fakeClient) UpdateTicketStatus(_ context.Context, id, status string) (api.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patched = append(f.patched, id+"="+status)
	for _, t := range f.list {
		if t.ID == id {
			t.Status = status
			return t, nil
		}
	}
	return api.Ticket{}, &api.StatusError{Code: 404, Detail: "Ticket not found"}
}

func (f *fakeClient) DeleteTicket(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeClient) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(m *Model, s string) {
	for _, r := range s {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

// started returns a model whose initial fetch has completed.
func started(t *testing.T, client *fakeClient) *Model {
	t.Helper()
	m := New(context.Background(), Options{Client: client, PollInterval: time.Hour, Log: logging.Discard()})
	batch, ok := m.Init()().(tea.BatchMsg)
	require.True(t, ok)
	require.Len(t, batch, 2)
	m.Update(batch[0]())
	require.Equal(t, 1, client.fetchCount())
	return m
}

func TestInitialLoadShowsTickets(t *testing.T) {
	client := &fakeClient{list: []api.Ticket{
		{ID: "1", Title: "Printer jammed", Description: "3rd floor", Status: "Open", CreatedBy: "user@tenantA.com"},
		{ID: "2", Title: "VPN down", Status: "In Progress"},
	}}
	m := New(context.Background(), Options{Client: client, PollInterval: time.Hour, Log: logging.Discard()})
	require.Contains(t, m.View(80, 20), "Loading tickets...")

	batch := m.Init()().(tea.BatchMsg)
	m.Update(batch[0]())
	out := m.View(80, 20)
	require.Contains(t, out, "Total tickets: 2")
	require.Contains(t, out, "Printer jammed")
	require.Contains(t, out, "3rd floor")
}

func TestEmptyAndErrorStates(t *testing.T) {
	m := started(t, &fakeClient{})
	require.Contains(t, m.View(80, 20), "No tickets found.")

	client := &fakeClient{listErr: &api.NetworkError{Op: "get", Err: errors.New("connection refused")}}
	m = started(t, client)
	out := m.View(80, 20)
	require.Contains(t, out, "Error")
	require.Contains(t, out, "connection refused")

	_, cmd := m.Update(keyMsg("r"))
	require.NotNil(t, cmd)
	require.Equal(t, remote.RetryMsg{}, cmd())
}

func TestCreateSuccessRefetchesOnceAndClosesForm(t *testing.T) {
	client := &fakeClient{}
	m := started(t, client)

	m.Update(keyMsg("n"))
	require.True(t, m.CapturesInput())
	typeText(m, "Broken chair")
	m.Update(keyMsg("tab"))
	typeText(m, "Leg snapped")

	_, cmd := m.Update(keyMsg("ctrl+s"))
	require.NotNil(t, cmd)
	_, again := m.Update(keyMsg("ctrl+s"))
	require.Nil(t, again, "no duplicate submit while in flight")

	created := cmd()
	require.Equal(t, []api.NewTicket{{Title: "Broken chair", Description: "Leg snapped"}}, client.created)

	_, refetch := m.Update(created)
	require.False(t, m.CapturesInput(), "form closes on success")
	require.NotNil(t, refetch)
	m.Update(refetch())
	require.Equal(t, 2, client.fetchCount(), "exactly one refetch after create")
	require.Contains(t, m.View(80, 20), "Broken chair")
}

func TestCreateRequiresBothFields(t *testing.T) {
	client := &fakeClient{}
	m := started(t, client)

	m.Update(keyMsg("n"))
	typeText(m, "Only a title")
	_, cmd := m.Update(keyMsg("ctrl+s"))
	require.Nil(t, cmd)
	require.Empty(t, client.created)
	require.Contains(t, m.View(80, 30), "description required")
	require.True(t, m.CapturesInput())

	m.Update(keyMsg("esc"))
	require.False(t, m.CapturesInput())
}

func TestCreateFailureKeepsFormOpen(t *testing.T) {
	client := &fakeClient{createErr: &api.StatusError{Code: 422, Detail: "field required"}}
	m := started(t, client)

	m.Update(keyMsg("n"))
	typeText(m, "T")
	m.Update(keyMsg("tab"))
	typeText(m, "D")
	_, cmd := m.Update(keyMsg("ctrl+s"))
	_, next := m.Update(cmd())
	require.Nil(t, next)
	require.True(t, m.CapturesInput())
	require.Contains(t, m.View(80, 30), "field required")
	require.Equal(t, 1, client.fetchCount())
}

func TestStatusCycleAndDelete(t *testing.T) {
	client := &fakeClient{list: []api.Ticket{{ID: "1", Title: "A", Status: "Open"}, {ID: "2", Title: "B", Status: "Closed"}}}
	m := started(t, client)

	_, cmd := m.Update(keyMsg("s"))
	m.Update(cmd())
	require.Equal(t, []string{"1=In Progress"}, client.patched)
	require.Equal(t, "In Progress", m.tickets[0].Status)

	m.Update(keyMsg("j"))
	m.Update(keyMsg("d"))
	require.Contains(t, m.View(80, 20), `Delete "B"? y/n`)
	_, cmd = m.Update(keyMsg("y"))
	m.Update(cmd())
	require.Equal(t, []string{"2"}, client.deleted)
	require.Len(t, m.tickets, 1)
	require.Equal(t, 0, m.cursor)
}

func TestPollingStopsAfterClose(t *testing.T) {
	client := &fakeClient{}
	m := New(context.Background(), Options{Client: client, PollInterval: 10 * time.Millisecond, Log: logging.Discard()})
	batch := m.Init()().(tea.BatchMsg)
	m.Update(batch[0]())

	tick := batch[1]()
	require.IsType(t, pollMsg{}, tick)
	_, cmd := m.Update(tick)
	require.NotNil(t, cmd, "a live view reschedules and refetches")

	m.Close()
	_, cmd = m.Update(tick)
	require.Nil(t, cmd)
	_, cmd = m.Update(loadedMsg{inst: m.inst, tickets: []api.Ticket{{ID: "x"}}})
	require.Nil(t, cmd)
	require.Empty(t, m.tickets)
}

func TestMessagesFromOtherInstancesAreIgnored(t *testing.T) {
	a := started(t, &fakeClient{})
	b := started(t, &fakeClient{})
	a.Update(loadedMsg{inst: b.inst, tickets: []api.Ticket{{ID: "b"}}})
	require.Empty(t, a.tickets)
}

func TestFactoryReadsProps(t *testing.T) {
	f := Factory(Options{Client: &fakeClient{}, Log: logging.Discard()})
	v, err := f(context.Background(), map[string]any{"pollSeconds": int64(3), "title": "Helpdesk"})
	require.NoError(t, err)
	m := v.(*Model)
	require.Equal(t, 3*time.Second, m.interval)
	require.Equal(t, "Helpdesk", m.Title())

	_, err = Factory(Options{})(context.Background(), nil)
	require.Error(t, err)
}
