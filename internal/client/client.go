// Package client is the agent-side HTTP client for the attendance API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/field-attendance/internal/window"
)

// Session is the signed-in user context a client acts for. It is created at
// login and discarded at logout.
type Session struct {
	AgentID   string
	Email     string
	Role      string
	GroupName string
	Token     string
}

// WindowConfig is the window as served by the API.
type WindowConfig struct {
	Scope         string
	Window        window.TimeWindow
	GraceMinutes  int
	LateThreshold window.Clock
	IsDefault     bool
}

// Record is a stored attendance marking.
type Record struct {
	ID             string
	AgentID        string
	CalendarDate   string
	MarkedAt       time.Time
	Location       string
	Sector         string
	Classification window.Classification
}

// Status is the server's view of the agent's day.
type Status struct {
	AgentID        string
	CalendarDate   string
	HasMarkedToday bool
	Record         *Record
	State          window.State
	Window         WindowConfig
	ServerTime     time.Time
}

// HistoryEntry is one day of an attendance history.
type HistoryEntry struct {
	CalendarDate   string
	Classification window.Classification
	Record         *Record
}

// History is an attendance listing with its aggregates.
type History struct {
	AgentID        string
	From           string
	To             string
	Entries        []HistoryEntry
	PresentCount   int
	LateCount      int
	AbsentCount    int
	ExpectedDays   int
	AttendanceRate float64
}

// MarkInput is the marking form.
type MarkInput struct {
	Location string
	Sector   string
	// ClientTime is sent for audit; the server ignores it for classification.
	ClientTime time.Time
}

// Client talks to the attendance API on behalf of a session.
type Client struct {
	baseURL    string
	session    Session
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New constructs a Client for baseURL.
func New(baseURL string, session Session, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		session:    session,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the session the client acts for.
func (c *Client) Session() Session {
	return c.session
}

// Window fetches the window for scope; empty scope means the caller's own.
func (c *Client) Window(ctx context.Context, scope string) (WindowConfig, error) {
	query := url.Values{}
	if scope != "" {
		query.Set("scope", scope)
	}
	var body windowEnvelope
	if err := c.do(ctx, http.MethodGet, "/window-config", query, nil, &body); err != nil {
		return WindowConfig{}, err
	}
	return body.Window.toWindowConfig()
}

// UpdateWindow replaces the window for scope. Manager sessions only.
func (c *Client) UpdateWindow(ctx context.Context, scope, start, end string, graceMinutes *int) (WindowConfig, error) {
	query := url.Values{}
	if scope != "" {
		query.Set("scope", scope)
	}
	payload := map[string]any{"start_time": start, "end_time": end}
	if graceMinutes != nil {
		payload["grace_minutes"] = *graceMinutes
	}
	var body windowEnvelope
	if err := c.do(ctx, http.MethodPut, "/window-config", query, payload, &body); err != nil {
		return WindowConfig{}, err
	}
	return body.Window.toWindowConfig()
}

// Status fetches today's status for the session agent.
func (c *Client) Status(ctx context.Context) (Status, error) {
	query := url.Values{}
	if c.session.AgentID != "" {
		query.Set("agent_id", c.session.AgentID)
	}
	var body statusPayload
	if err := c.do(ctx, http.MethodGet, "/attendance/status", query, nil, &body); err != nil {
		return Status{}, err
	}
	return body.toStatus()
}

// Mark submits today's attendance.
func (c *Client) Mark(ctx context.Context, input MarkInput) (Record, error) {
	payload := map[string]any{
		"location": input.Location,
		"sector":   input.Sector,
	}
	if !input.ClientTime.IsZero() {
		payload["client_time"] = input.ClientTime.Format(time.RFC3339Nano)
	}
	var body recordEnvelope
	if err := c.do(ctx, http.MethodPost, "/attendance", nil, payload, &body); err != nil {
		return Record{}, err
	}
	return body.Record.toRecord()
}

// History lists attendance between from and to ("YYYY-MM-DD"; empty for defaults).
func (c *Client) History(ctx context.Context, from, to string) (History, error) {
	query := url.Values{}
	if c.session.AgentID != "" {
		query.Set("agent_id", c.session.AgentID)
	}
	if from != "" {
		query.Set("from", from)
	}
	if to != "" {
		query.Set("to", to)
	}
	var body historyPayload
	if err := c.do(ctx, http.MethodGet, "/attendance/history", query, nil, &body); err != nil {
		return History{}, err
	}
	return body.toHistory()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}

	op := method + " " + path
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	}

	return decodeError(resp)
}

func decodeError(resp *http.Response) error {
	var body errorPayload
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body)

	switch body.ErrorCode {
	case "ALREADY_MARKED":
		marked := &AlreadyMarkedError{}
		if body.Record != nil {
			if rec, err := body.Record.toRecord(); err == nil {
				marked.Record = rec
			}
		}
		return marked
	case "WINDOW_CLOSED":
		return ErrWindowClosed
	case "WINDOW_NOT_OPEN":
		return ErrWindowNotOpen
	case "VALIDATION_FAILED":
		return &ValidationError{FieldErrors: body.Errors}
	case "RATE_LIMITED":
		return ErrRateLimited
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, body.Message)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &NetworkError{Op: resp.Request.Method + " " + resp.Request.URL.Path, Err: fmt.Errorf("server unavailable (%d)", resp.StatusCode)}
	}
	return &APIError{StatusCode: resp.StatusCode, Code: body.ErrorCode, Message: body.Message}
}
