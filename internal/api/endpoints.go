package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Ticket statuses known to the service, in cycle order.
var TicketStatuses = []string{"Open", "In Progress", "Closed"}

// Screen is one tenant-scoped route returned by /me/screens.
type Screen struct {
	Tenant    string `json:"tenant"`
	ScreenURL string `json:"screenUrl"`
}

// Profile is the caller's identity from /me/profile.
type Profile struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	CustomerID string    `json:"customer_id"`
	Role       string    `json:"role"`
	CreatedAt  Timestamp `json:"created_at"`
}

// Ticket mirrors the service's ticket resource.
type Ticket struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	CustomerID  string     `json:"customer_id"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   Timestamp  `json:"created_at"`
	UpdatedAt   *Timestamp `json:"updated_at,omitempty"`
}

// NewTicket is the create payload.
type NewTicket struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Timestamp accepts the service's naive ISO datetimes as well as RFC 3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("api: unrecognized timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// Login exchanges credentials for a bearer token. It never touches the session.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("api: create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	data, err := c.do(ctx, req, false)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusBadRequest) {
			return "", fmt.Errorf("%w: %s", ErrInvalidCredentials, se.Detail)
		}
		return "", err
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("api: decode login response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("api: login response carried no token")
	}
	return out.AccessToken, nil
}

// Screens lists the caller's tenant screens in sidebar order.
func (c *Client) Screens(ctx context.Context) ([]Screen, error) {
	var out []Screen
	if err := c.Do(ctx, http.MethodGet, "/me/screens", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var out Profile
	err := c.Do(ctx, http.MethodGet, "/me/profile", nil, &out)
	return out, err
}

func (c *Client) Tickets(ctx context.Context) ([]Ticket, error) {
	var out []Ticket
	if err := c.Do(ctx, http.MethodGet, "/api/tickets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Ticket(ctx context.Context, id string) (Ticket, error) {
	var out Ticket
	err := c.Do(ctx, http.MethodGet, "/api/tickets/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) CreateTicket(ctx context.Context, in NewTicket) (Ticket, error) {
	var out Ticket
	err := c.Do(ctx, http.MethodPost, "/api/tickets", in, &out)
	return out, err
}

func (c *Client) UpdateTicketStatus(ctx context.Context, id, status string) (Ticket, error) {
	var out Ticket
	err := c.Do(ctx, http.MethodPatch, "/api/tickets/"+url.PathEscape(id), map[string]string{"status": status}, &out)
	return out, err
}

func (c *Client) DeleteTicket(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodDelete, "/api/tickets/"+url.PathEscape(id), nil, nil)
}

// NextStatus returns the status after current in TicketStatuses, wrapping around.
// Unknown statuses move to the first one.
func NextStatus(current string) string {
	for i, s := range TicketStatuses {
		if strings.EqualFold(s, current) {
			return TicketStatuses[(i+1)%len(TicketStatuses)]
		}
	}
	return TicketStatuses[0]
}
