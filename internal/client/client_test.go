package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/field-attendance/internal/window"
)

const statusJSON = `{
  "agent_id": "agent-7",
  "calendar_date": "2024-03-14",
  "has_marked_today": true,
  "time": "2024-03-14T06:10:00Z",
  "classification": "present",
  "record": {"id": "rec-1", "agent_id": "agent-7", "calendar_date": "2024-03-14", "marked_at": "2024-03-14T06:10:00Z", "location": "Pasar Baru", "sector": "Retail", "classification": "present"},
  "state": "already_marked",
  "window": {"scope": "global", "start_time": "06:00", "end_time": "09:00", "grace_minutes": 15, "late_threshold": "06:15"},
  "server_time": "2024-03-14T07:00:00Z"
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, Session{AgentID: "agent-7", Token: "tok"}), srv
}

func TestClient_Status(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/attendance/status", r.URL.Path)
		assert.Equal(t, "agent-7", r.URL.Query().Get("agent_id"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(statusJSON))
	})

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.HasMarkedToday)
	assert.Equal(t, window.StateAlreadyMarked, status.State)
	require.NotNil(t, status.Record)
	assert.Equal(t, window.ClassificationPresent, status.Record.Classification)
	assert.Equal(t, window.MustClock(6, 0), status.Window.Window.Start)
	assert.Equal(t, window.MustClock(6, 15), status.Window.LateThreshold)
}

func TestClient_Mark(t *testing.T) {
	t.Run("sends the form and decodes the record", func(t *testing.T) {
		clientTime := time.Date(2024, time.March, 14, 7, 4, 0, 0, time.UTC)
		c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Downtown", body["location"])
			assert.Equal(t, "Health", body["sector"])
			assert.Equal(t, "2024-03-14T07:04:00Z", body["client_time"])
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"record":{"id":"rec-1","marked_at":"2024-03-14T07:05:00Z","classification":"late"}}`))
		})

		rec, err := c.Mark(context.Background(), MarkInput{Location: "Downtown", Sector: "Health", ClientTime: clientTime})
		require.NoError(t, err)
		assert.Equal(t, window.ClassificationLate, rec.Classification)
		assert.Equal(t, time.Date(2024, time.March, 14, 7, 5, 0, 0, time.UTC), rec.MarkedAt)
	})

	t.Run("maps error codes", func(t *testing.T) {
		tests := []struct {
			name   string
			status int
			body   string
			check  func(t *testing.T, err error)
		}{
			{
				name:   "already marked",
				status: http.StatusConflict,
				body:   `{"error_code":"ALREADY_MARKED","message":"attendance already marked for today","record":{"id":"rec-0","classification":"present"}}`,
				check: func(t *testing.T, err error) {
					var marked *AlreadyMarkedError
					require.ErrorAs(t, err, &marked)
					assert.Equal(t, "rec-0", marked.Record.ID)
					assert.ErrorIs(t, err, ErrAlreadyMarked)
				},
			},
			{
				name:   "window closed",
				status: http.StatusForbidden,
				body:   `{"error_code":"WINDOW_CLOSED","message":"attendance window has closed"}`,
				check: func(t *testing.T, err error) {
					assert.ErrorIs(t, err, ErrWindowClosed)
					assert.Equal(t, "attendance window has closed", err.Error())
				},
			},
			{
				name:   "window not open",
				status: http.StatusForbidden,
				body:   `{"error_code":"WINDOW_NOT_OPEN"}`,
				check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrWindowNotOpen) },
			},
			{
				name:   "validation",
				status: http.StatusUnprocessableEntity,
				body:   `{"error_code":"VALIDATION_FAILED","errors":{"sector":"sector is required"}}`,
				check: func(t *testing.T, err error) {
					var vErr *ValidationError
					require.ErrorAs(t, err, &vErr)
					assert.Equal(t, "sector is required", vErr.FieldErrors["sector"])
				},
			},
			{
				name:   "forbidden",
				status: http.StatusForbidden,
				body:   `{"error_code":"AUTH_FORBIDDEN","message":"nope"}`,
				check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnauthorized) },
			},
			{
				name:   "rate limited",
				status: http.StatusTooManyRequests,
				body:   `{"error_code":"RATE_LIMITED"}`,
				check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrRateLimited) },
			},
			{
				name:   "unavailable",
				status: http.StatusServiceUnavailable,
				body:   ``,
				check:  func(t *testing.T, err error) { assert.True(t, IsNetworkError(err)) },
			},
			{
				name:   "other",
				status: http.StatusInternalServerError,
				body:   `{"error_code":"INTERNAL","message":"an internal error occurred"}`,
				check: func(t *testing.T, err error) {
					var apiErr *APIError
					require.ErrorAs(t, err, &apiErr)
					assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
				},
			},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tc.status)
					_, _ = w.Write([]byte(tc.body))
				})
				_, err := c.Mark(context.Background(), MarkInput{Location: "x", Sector: "y"})
				require.Error(t, err)
				tc.check(t, err)
			})
		}
	})
}

func TestClient_NetworkFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(url, Session{Token: "tok"})
	_, err := c.Status(context.Background())
	var nErr *NetworkError
	require.True(t, errors.As(err, &nErr))
	assert.Equal(t, "GET /attendance/status", nErr.Op)

	garbled, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>proxy error</html>"))
	})
	_, err = garbled.Status(context.Background())
	assert.True(t, IsNetworkError(err))
}

func TestClient_WindowAndHistory(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/window-config":
			if r.Method == http.MethodPut {
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "5:30 AM", body["start_time"])
				assert.EqualValues(t, 5, body["grace_minutes"])
			}
			assert.Equal(t, "manager:m-1", r.URL.Query().Get("scope"))
			_, _ = w.Write([]byte(`{"window":{"scope":"manager:m-1","start_time":"05:30","end_time":"08:30","grace_minutes":5}}`))
		case "/attendance/history":
			assert.Equal(t, "2024-03-01", r.URL.Query().Get("from"))
			_, _ = w.Write([]byte(`{"agent_id":"agent-7","entries":[{"calendar_date":"2024-03-01","classification":"absent"}],"absent_count":1,"expected_days":1}`))
		default:
			http.NotFound(w, r)
		}
	})

	cfg, err := c.Window(context.Background(), "manager:m-1")
	require.NoError(t, err)
	assert.Equal(t, "05:30-08:30", cfg.Window.String())
	assert.Equal(t, window.MustClock(5, 35), cfg.LateThreshold)

	grace := 5
	_, err = c.UpdateWindow(context.Background(), "manager:m-1", "5:30 AM", "8:30 AM", &grace)
	require.NoError(t, err)

	history, err := c.History(context.Background(), "2024-03-01", "")
	require.NoError(t, err)
	require.Len(t, history.Entries, 1)
	assert.Equal(t, window.ClassificationAbsent, history.Entries[0].Classification)
	assert.Equal(t, 1, history.AbsentCount)
}
