package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/field-attendance/internal/calendar"
	"github.com/example/field-attendance/internal/client"
	"github.com/example/field-attendance/internal/config"
	"github.com/example/field-attendance/internal/identity"
	"github.com/example/field-attendance/internal/metrics"
	"github.com/example/field-attendance/internal/persistence/memory"
	"github.com/example/field-attendance/internal/testfixtures"
	"github.com/example/field-attendance/internal/window"
)

const testSecret = "test-secret"

func testConfig() config.Config {
	return config.Config{
		HTTPPort:          8080,
		Storage:           config.StorageMemory,
		TokenSecret:       testSecret,
		Location:          time.UTC,
		DefaultWindow:     window.TimeWindow{Start: window.MustClock(6, 0), End: window.MustClock(9, 0)},
		GraceMinutes:      15,
		Workdays:          calendar.DefaultWorkdays,
		MarkRateLimit:     10,
		MarkRateBurst:     10,
		MigrationsEnabled: true,
		LogLevel:          slog.LevelInfo,
	}
}

type testServer struct {
	URL    string
	Clock  *testfixtures.Clock
	Tokens *identity.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clock := testfixtures.NewClock(time.Time{})
	ids := testfixtures.NewIDGenerator("record")
	handler, err := newHandler(serverDeps{
		Config:  testConfig(),
		Store:   memory.New(),
		Metrics: metrics.New(),
		Now:     clock.NowFunc(),
		NewID:   ids.NextFunc(),
		Logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens, err := identity.NewTokenManager(testSecret, clock.NowFunc())
	require.NoError(t, err)
	return &testServer{URL: srv.URL, Clock: clock, Tokens: tokens}
}

func (s *testServer) client(t *testing.T, userID, role, scope string) *client.Client {
	t.Helper()
	token, err := s.Tokens.Issue(userID, role, scope, 24*time.Hour)
	require.NoError(t, err)
	return client.New(s.URL, client.Session{AgentID: userID, Role: role, Token: token})
}

func TestServerMarksAttendanceEndToEnd(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)
	server.Clock.SetTimeOfDay(6, 10)

	agent := server.client(t, "agent-7", "agent", "manager:m-1")

	status, err := agent.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.HasMarkedToday)
	assert.Equal(t, window.StateOpen, status.State)
	assert.True(t, status.Window.IsDefault)

	record, err := agent.Mark(ctx, client.MarkInput{Location: "Jl. Sudirman 1", Sector: "north"})
	require.NoError(t, err)
	assert.Equal(t, "record-1", record.ID)
	assert.Equal(t, window.ClassificationPresent, record.Classification)
	assert.Equal(t, "2024-03-14", record.CalendarDate)

	status, err = agent.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.HasMarkedToday)
	assert.Equal(t, window.StateAlreadyMarked, status.State)

	server.Clock.SetTimeOfDay(6, 40)
	_, err = agent.Mark(ctx, client.MarkInput{Location: "Jl. Thamrin 5", Sector: "south"})
	require.ErrorIs(t, err, client.ErrAlreadyMarked)
	var already *client.AlreadyMarkedError
	require.True(t, errors.As(err, &already))
	assert.Equal(t, "record-1", already.Record.ID)
	assert.Equal(t, "Jl. Sudirman 1", already.Record.Location)
}

func TestServerAppliesTeamWindows(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)

	manager := server.client(t, "m-1", "manager", "manager:m-1")
	grace := 10
	cfg, err := manager.UpdateWindow(ctx, "manager:m-1", "7:00 AM", "10:00", &grace)
	require.NoError(t, err)
	assert.Equal(t, window.MustClock(7, 10), cfg.LateThreshold)

	server.Clock.SetTimeOfDay(9, 30)

	teamAgent := server.client(t, "agent-7", "agent", "manager:m-1")
	status, err := teamAgent.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, window.StateOpenWarning, status.State)

	record, err := teamAgent.Mark(ctx, client.MarkInput{Location: "Depot", Sector: "east"})
	require.NoError(t, err)
	assert.Equal(t, window.ClassificationLate, record.Classification)

	otherAgent := server.client(t, "agent-9", "agent", "")
	_, err = otherAgent.Mark(ctx, client.MarkInput{Location: "Depot", Sector: "east"})
	require.ErrorIs(t, err, client.ErrWindowClosed)

	_, err = teamAgent.UpdateWindow(ctx, "manager:m-1", "05:00", "06:00", nil)
	require.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestServerHistorySynthesizesAbsences(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)
	server.Clock.Set(time.Date(2024, time.March, 12, 6, 5, 0, 0, time.UTC))
	agent := server.client(t, "agent-7", "agent", "")

	_, err := agent.Mark(ctx, client.MarkInput{Location: "Depot", Sector: "east"})
	require.NoError(t, err)

	server.Clock.Set(time.Date(2024, time.March, 14, 9, 30, 0, 0, time.UTC))
	_, err = agent.History(ctx, "2024-03-11", "2024-03-14")
	require.ErrorIs(t, err, client.ErrUnauthorized, "the day-one token has expired")

	agent = server.client(t, "agent-7", "agent", "")
	history, err := agent.History(ctx, "2024-03-11", "2024-03-14")
	require.NoError(t, err)

	assert.Equal(t, 4, history.ExpectedDays)
	assert.Equal(t, 1, history.PresentCount)
	assert.Equal(t, 3, history.AbsentCount)
	assert.InDelta(t, 0.25, history.AttendanceRate, 1e-9)
	require.Len(t, history.Entries, 4)
	assert.Equal(t, window.ClassificationPresent, history.Entries[1].Classification)
}

func TestServerPublicAndProtectedRoutes(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/attendance/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	anonymous := client.New(server.URL, client.Session{AgentID: "agent-7"})
	_, err = anonymous.Status(context.Background())
	require.ErrorIs(t, err, client.ErrUnauthorized)

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "attendance_http_requests_total")
}

func TestOpenStorage(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	t.Run("memory", func(t *testing.T) {
		cfg := testConfig()
		store, err := openStorage(cfg, logger)
		require.NoError(t, err)
		require.NoError(t, store.Ping(context.Background()))
		require.NoError(t, store.Close())
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := testConfig()
		cfg.Storage = config.StorageSQLite
		cfg.SQLiteDSN = filepath.Join(t.TempDir(), "attendance.db")

		store, err := openStorage(cfg, logger)
		require.NoError(t, err)
		defer store.Close()

		require.NoError(t, store.Migrate(context.Background()))
		require.NoError(t, store.Ping(context.Background()))
	})
}

func TestIssueToken(t *testing.T) {
	cfg := testConfig()

	var out bytes.Buffer
	err := issueToken([]string{"-subject", "m-1", "-role", "manager", "-scope", "manager:m-1", "-ttl", "1h"}, cfg, &out)
	require.NoError(t, err)

	tokens, err := identity.NewTokenManager(testSecret, nil)
	require.NoError(t, err)
	claims, err := tokens.Validate(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "m-1", claims.Subject)
	assert.Equal(t, "manager", claims.Role)
	assert.Equal(t, "manager:m-1", claims.Scope)

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing subject", args: []string{"-role", "agent"}},
		{name: "unknown role", args: []string{"-subject", "a-1", "-role", "owner"}},
		{name: "non-positive ttl", args: []string{"-subject", "a-1", "-ttl", "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			assert.Error(t, issueToken(tt.args, cfg, &buf))
		})
	}
}
