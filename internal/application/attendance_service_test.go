package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/example/field-attendance/internal/calendar"
	"github.com/example/field-attendance/internal/persistence"
	"github.com/example/field-attendance/internal/window"
)

type attendanceRepoStub struct {
	records map[string]AttendanceRecord

	getErr   error
	claimErr error
	listErr  error

	claimed []AttendanceRecord
}

func newAttendanceRepoStub(records ...AttendanceRecord) *attendanceRepoStub {
	stub := &attendanceRepoStub{records: make(map[string]AttendanceRecord)}
	for _, r := range records {
		stub.records[r.AgentID+"|"+r.CalendarDate] = r
	}
	return stub
}

func (r *attendanceRepoStub) ClaimDay(ctx context.Context, record AttendanceRecord) (AttendanceRecord, error) {
	if r.claimErr != nil {
		return AttendanceRecord{}, r.claimErr
	}
	key := record.AgentID + "|" + record.CalendarDate
	if existing, ok := r.records[key]; ok {
		return existing, persistence.ErrDuplicate
	}
	r.records[key] = record
	r.claimed = append(r.claimed, record)
	return record, nil
}

func (r *attendanceRepoStub) GetForDay(ctx context.Context, agentID, calendarDate string) (AttendanceRecord, error) {
	if r.getErr != nil {
		return AttendanceRecord{}, r.getErr
	}
	rec, ok := r.records[agentID+"|"+calendarDate]
	if !ok {
		return AttendanceRecord{}, persistence.ErrNotFound
	}
	return rec, nil
}

func (r *attendanceRepoStub) ListRange(ctx context.Context, agentID, from, to string) ([]AttendanceRecord, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []AttendanceRecord
	for _, rec := range r.records {
		if rec.AgentID == agentID && rec.CalendarDate >= from && rec.CalendarDate <= to {
			out = append(out, rec)
		}
	}
	return out, nil
}

// racingRepo reports no record on read but loses the claim to a concurrent writer.
type racingRepo struct {
	*attendanceRepoStub
	winner AttendanceRecord
}

func (r *racingRepo) ClaimDay(ctx context.Context, record AttendanceRecord) (AttendanceRecord, error) {
	return r.winner, persistence.ErrDuplicate
}

type staticWindows struct {
	cfg    WindowConfig
	err    error
	scopes []string
}

func (s *staticWindows) GetWindow(ctx context.Context, scope string) (WindowConfig, error) {
	s.scopes = append(s.scopes, scope)
	return s.cfg, s.err
}

func marchAt(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, time.UTC)
}

func newTestAttendanceService(t *testing.T, repo AttendanceRepository, now time.Time) (*AttendanceService, *staticWindows, *metricsStub) {
	t.Helper()
	windows := &staticWindows{cfg: WindowConfig{Scope: GlobalScope, Window: mustWindow(t, "06:00", "09:00"), GraceMinutes: 15}}
	metrics := &metricsStub{}
	svc := NewAttendanceService(repo, windows, calendar.New(time.UTC, nil), func() string { return "rec-1" }, func() time.Time { return now }).
		WithMetrics(metrics)
	return svc, windows, metrics
}

var agent = Principal{UserID: "agent-7", Role: RoleAgent, Scope: ManagerScope("m-1")}

func markParams() MarkAttendanceParams {
	return MarkAttendanceParams{Principal: agent, Location: "  Pasar Baru  ", Sector: "Retail"}
}

func TestAttendanceService_MarkAttendance(t *testing.T) {
	t.Run("classifies against the late threshold", func(t *testing.T) {
		tests := []struct {
			name string
			now  time.Time
			want window.Classification
		}{
			{name: "inside grace", now: marchAt(14, 6, 10), want: window.ClassificationPresent},
			{name: "at threshold", now: marchAt(14, 6, 15), want: window.ClassificationPresent},
			{name: "after threshold", now: marchAt(14, 7, 5), want: window.ClassificationLate},
			{name: "at window end", now: marchAt(14, 9, 0), want: window.ClassificationLate},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				repo := newAttendanceRepoStub()
				svc, windows, metrics := newTestAttendanceService(t, repo, tc.now)

				rec, err := svc.MarkAttendance(context.Background(), markParams())
				if err != nil {
					t.Fatalf("MarkAttendance returned error: %v", err)
				}
				if rec.Classification != tc.want {
					t.Fatalf("expected %s, got %s", tc.want, rec.Classification)
				}
				if rec.ID != "rec-1" || rec.AgentID != agent.UserID || rec.CalendarDate != "2024-03-14" {
					t.Fatalf("unexpected record identity %+v", rec)
				}
				if rec.Location != "Pasar Baru" {
					t.Fatalf("expected trimmed location, got %q", rec.Location)
				}
				if !rec.MarkedAt.Equal(tc.now) {
					t.Fatalf("expected server time %v, got %v", tc.now, rec.MarkedAt)
				}
				if len(windows.scopes) != 1 || windows.scopes[0] != agent.Scope {
					t.Fatalf("expected window resolved for agent scope, got %v", windows.scopes)
				}
				if len(metrics.recorded) != 1 || metrics.recorded[0] != tc.want {
					t.Fatalf("expected recorded metric, got %v", metrics.recorded)
				}
			})
		}
	})

	t.Run("stores the client clock without trusting it", func(t *testing.T) {
		repo := newAttendanceRepoStub()
		svc, _, _ := newTestAttendanceService(t, repo, marchAt(14, 6, 5))
		skewed := marchAt(14, 23, 0)
		params := markParams()
		params.ClientTime = &skewed

		rec, err := svc.MarkAttendance(context.Background(), params)
		if err != nil {
			t.Fatalf("MarkAttendance returned error: %v", err)
		}
		if rec.Classification != window.ClassificationPresent {
			t.Fatalf("expected server clock classification, got %s", rec.Classification)
		}
		if rec.ClientReportedAt == nil || !rec.ClientReportedAt.Equal(skewed) {
			t.Fatalf("expected client time stored, got %v", rec.ClientReportedAt)
		}
	})

	t.Run("rejects markings outside the window", func(t *testing.T) {
		tests := []struct {
			name string
			now  time.Time
			want error
		}{
			{name: "one minute after end", now: marchAt(14, 9, 1), want: ErrWindowClosed},
			{name: "before opening", now: marchAt(14, 5, 59), want: ErrWindowNotOpen},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				repo := newAttendanceRepoStub()
				svc, _, metrics := newTestAttendanceService(t, repo, tc.now)

				_, err := svc.MarkAttendance(context.Background(), markParams())
				if !errors.Is(err, tc.want) {
					t.Fatalf("expected %v, got %v", tc.want, err)
				}
				if len(repo.claimed) != 0 {
					t.Fatalf("expected no record written, got %v", repo.claimed)
				}
				if len(metrics.rejected) != 1 || metrics.rejected[0] != ErrorKind(tc.want) {
					t.Fatalf("expected rejection metric, got %v", metrics.rejected)
				}
			})
		}
	})

	t.Run("reports the existing record when already marked", func(t *testing.T) {
		existing := AttendanceRecord{ID: "rec-0", AgentID: agent.UserID, CalendarDate: "2024-03-14", Classification: window.ClassificationPresent}
		repo := newAttendanceRepoStub(existing)
		svc, _, _ := newTestAttendanceService(t, repo, marchAt(14, 9, 30))

		_, err := svc.MarkAttendance(context.Background(), markParams())
		var marked *AlreadyMarkedError
		if !errors.As(err, &marked) {
			t.Fatalf("expected AlreadyMarkedError even after close, got %v", err)
		}
		if marked.Record.ID != "rec-0" {
			t.Fatalf("expected existing record, got %+v", marked.Record)
		}
		if !errors.Is(err, ErrAlreadyMarked) {
			t.Fatalf("expected errors.Is ErrAlreadyMarked")
		}
	})

	t.Run("maps a lost claim race to already marked", func(t *testing.T) {
		winner := AttendanceRecord{ID: "rec-winner", AgentID: agent.UserID, CalendarDate: "2024-03-14"}
		repo := &racingRepo{attendanceRepoStub: newAttendanceRepoStub(), winner: winner}
		svc, _, _ := newTestAttendanceService(t, repo, marchAt(14, 7, 0))

		_, err := svc.MarkAttendance(context.Background(), markParams())
		var marked *AlreadyMarkedError
		if !errors.As(err, &marked) || marked.Record.ID != "rec-winner" {
			t.Fatalf("expected AlreadyMarkedError with winner, got %v", err)
		}
	})

	t.Run("validates location and sector", func(t *testing.T) {
		svc, _, _ := newTestAttendanceService(t, newAttendanceRepoStub(), marchAt(14, 7, 0))

		params := markParams()
		params.Location = "   "
		params.Sector = ""
		_, err := svc.MarkAttendance(context.Background(), params)

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"location", "sector"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s error, got %v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("refuses marking on behalf of another agent", func(t *testing.T) {
		svc, _, _ := newTestAttendanceService(t, newAttendanceRepoStub(), marchAt(14, 7, 0))

		params := markParams()
		params.AgentID = "agent-8"
		if _, err := svc.MarkAttendance(context.Background(), params); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}

		params = markParams()
		params.Principal = Principal{}
		if _, err := svc.MarkAttendance(context.Background(), params); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for anonymous principal, got %v", err)
		}
	})

	t.Run("surfaces repository failures", func(t *testing.T) {
		boom := errors.New("connection reset")
		repo := newAttendanceRepoStub()
		repo.getErr = boom
		svc, _, _ := newTestAttendanceService(t, repo, marchAt(14, 7, 0))

		if _, err := svc.MarkAttendance(context.Background(), markParams()); !errors.Is(err, boom) {
			t.Fatalf("expected repository error, got %v", err)
		}
	})
}

func TestAttendanceService_Status(t *testing.T) {
	t.Run("reports the time state when unmarked", func(t *testing.T) {
		svc, _, _ := newTestAttendanceService(t, newAttendanceRepoStub(), marchAt(14, 8, 20))

		status, err := svc.Status(context.Background(), StatusParams{Principal: agent})
		if err != nil {
			t.Fatalf("Status returned error: %v", err)
		}
		if status.HasMarkedToday || status.Record != nil {
			t.Fatalf("expected unmarked status, got %+v", status)
		}
		if status.State != window.StateOpenWarning {
			t.Fatalf("expected open_warning, got %s", status.State)
		}
		if status.CalendarDate != "2024-03-14" {
			t.Fatalf("unexpected date %s", status.CalendarDate)
		}
	})

	t.Run("already marked outranks the time state", func(t *testing.T) {
		existing := AttendanceRecord{ID: "rec-0", AgentID: agent.UserID, CalendarDate: "2024-03-14"}
		svc, _, _ := newTestAttendanceService(t, newAttendanceRepoStub(existing), marchAt(14, 12, 0))

		status, err := svc.Status(context.Background(), StatusParams{Principal: agent})
		if err != nil {
			t.Fatalf("Status returned error: %v", err)
		}
		if !status.HasMarkedToday || status.State != window.StateAlreadyMarked {
			t.Fatalf("expected already_marked, got %+v", status)
		}
		if status.Record == nil || status.Record.ID != "rec-0" {
			t.Fatalf("expected record attached, got %+v", status.Record)
		}
	})

	t.Run("restricts reading other agents to managers", func(t *testing.T) {
		svc, windows, _ := newTestAttendanceService(t, newAttendanceRepoStub(), marchAt(14, 7, 0))

		if _, err := svc.Status(context.Background(), StatusParams{Principal: agent, AgentID: "agent-8"}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		manager := Principal{UserID: "m-1", Role: RoleManager, Scope: GlobalScope}
		status, err := svc.Status(context.Background(), StatusParams{Principal: manager, AgentID: "agent-8", Scope: ManagerScope("m-1")})
		if err != nil {
			t.Fatalf("expected manager read to succeed, got %v", err)
		}
		if status.AgentID != "agent-8" {
			t.Fatalf("expected target agent, got %s", status.AgentID)
		}
		if got := windows.scopes[len(windows.scopes)-1]; got != ManagerScope("m-1") {
			t.Fatalf("expected the agent's scope to be resolved, got %q", got)
		}
	})

	t.Run("requires a scope when reading another agent", func(t *testing.T) {
		svc, windows, _ := newTestAttendanceService(t, newAttendanceRepoStub(), marchAt(14, 7, 0))
		manager := Principal{UserID: "m-1", Role: RoleManager, Scope: GlobalScope}

		_, err := svc.Status(context.Background(), StatusParams{Principal: manager, AgentID: "agent-8"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["scope"]; !ok {
			t.Fatalf("expected scope error, got %v", vErr.FieldErrors)
		}
		if len(windows.scopes) != 0 {
			t.Fatalf("expected no window lookup, got %v", windows.scopes)
		}

		_, err = svc.History(context.Background(), HistoryParams{Principal: manager, AgentID: "agent-8"})
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError from History, got %v", err)
		}
	})
}

func TestAttendanceService_History(t *testing.T) {
	records := []AttendanceRecord{
		{ID: "r-11", AgentID: agent.UserID, CalendarDate: "2024-03-11", Classification: window.ClassificationPresent},
		{ID: "r-13", AgentID: agent.UserID, CalendarDate: "2024-03-13", Classification: window.ClassificationLate},
		{ID: "other", AgentID: "agent-8", CalendarDate: "2024-03-12", Classification: window.ClassificationPresent},
	}
	from := marchAt(11, 0, 0)
	to := marchAt(16, 0, 0)

	t.Run("synthesizes absences once the window closed", func(t *testing.T) {
		svc, _, metrics := newTestAttendanceService(t, newAttendanceRepoStub(records...), marchAt(14, 10, 0))

		history, err := svc.History(context.Background(), HistoryParams{Principal: agent, From: from, To: to})
		if err != nil {
			t.Fatalf("History returned error: %v", err)
		}

		want := []struct {
			date string
			c    window.Classification
		}{
			{"2024-03-11", window.ClassificationPresent},
			{"2024-03-12", window.ClassificationAbsent},
			{"2024-03-13", window.ClassificationLate},
			{"2024-03-14", window.ClassificationAbsent},
		}
		if len(history.Entries) != len(want) {
			t.Fatalf("expected %d entries, got %+v", len(want), history.Entries)
		}
		for i, w := range want {
			got := history.Entries[i]
			if got.CalendarDate != w.date || got.Classification != w.c {
				t.Fatalf("entry %d: expected %s %s, got %s %s", i, w.date, w.c, got.CalendarDate, got.Classification)
			}
		}
		if history.PresentCount != 1 || history.LateCount != 1 || history.AbsentCount != 2 || history.ExpectedDays != 4 {
			t.Fatalf("unexpected counts %+v", history)
		}
		if history.AttendanceRate != 0.5 {
			t.Fatalf("expected rate 0.5, got %v", history.AttendanceRate)
		}
		if history.From != "2024-03-11" || history.To != "2024-03-16" {
			t.Fatalf("unexpected range %s..%s", history.From, history.To)
		}
		if metrics.served != 1 {
			t.Fatalf("expected history metric, got %d", metrics.served)
		}
	})

	t.Run("does not count today while the window is open", func(t *testing.T) {
		svc, _, _ := newTestAttendanceService(t, newAttendanceRepoStub(records...), marchAt(14, 7, 0))

		history, err := svc.History(context.Background(), HistoryParams{Principal: agent, From: from, To: to})
		if err != nil {
			t.Fatalf("History returned error: %v", err)
		}
		if history.ExpectedDays != 3 || history.AbsentCount != 1 {
			t.Fatalf("expected today excluded, got %+v", history)
		}
		if math.Abs(history.AttendanceRate-2.0/3.0) > 1e-9 {
			t.Fatalf("expected rate 2/3, got %v", history.AttendanceRate)
		}
	})

	t.Run("includes records on rest days", func(t *testing.T) {
		sunday := AttendanceRecord{ID: "r-10", AgentID: agent.UserID, CalendarDate: "2024-03-10", Classification: window.ClassificationLate}
		svc, _, _ := newTestAttendanceService(t, newAttendanceRepoStub(sunday), marchAt(11, 10, 0))

		history, err := svc.History(context.Background(), HistoryParams{Principal: agent, From: marchAt(10, 0, 0), To: marchAt(11, 0, 0)})
		if err != nil {
			t.Fatalf("History returned error: %v", err)
		}
		if history.ExpectedDays != 2 || history.LateCount != 1 || history.AbsentCount != 1 {
			t.Fatalf("unexpected history %+v", history)
		}
		if history.Entries[0].Record == nil || history.Entries[0].Record.ID != "r-10" {
			t.Fatalf("expected sunday record attached, got %+v", history.Entries[0])
		}
	})

	t.Run("defaults to the trailing thirty days", func(t *testing.T) {
		svc, _, _ := newTestAttendanceService(t, newAttendanceRepoStub(), marchAt(14, 7, 0))

		history, err := svc.History(context.Background(), HistoryParams{Principal: agent})
		if err != nil {
			t.Fatalf("History returned error: %v", err)
		}
		if history.From != "2024-02-14" || history.To != "2024-03-14" {
			t.Fatalf("unexpected default range %s..%s", history.From, history.To)
		}
	})

	t.Run("empty ranges yield a zero rate", func(t *testing.T) {
		svc, _, _ := newTestAttendanceService(t, newAttendanceRepoStub(), marchAt(17, 7, 0))

		sunday := marchAt(17, 0, 0)
		history, err := svc.History(context.Background(), HistoryParams{Principal: agent, From: sunday, To: sunday})
		if err != nil {
			t.Fatalf("History returned error: %v", err)
		}
		if history.ExpectedDays != 0 || history.AttendanceRate != 0 {
			t.Fatalf("expected empty history, got %+v", history)
		}
	})

	t.Run("rejects inverted ranges", func(t *testing.T) {
		svc, _, _ := newTestAttendanceService(t, newAttendanceRepoStub(), marchAt(14, 7, 0))

		_, err := svc.History(context.Background(), HistoryParams{Principal: agent, From: to, To: from})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("reports the range limit in days", func(t *testing.T) {
		svc, _, _ := newTestAttendanceService(t, newAttendanceRepoStub(), marchAt(14, 7, 0))

		_, err := svc.History(context.Background(), HistoryParams{Principal: agent, From: marchAt(1, 0, 0).AddDate(-2, 0, 0), To: marchAt(14, 0, 0)})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		want := fmt.Sprintf("range must not exceed %d days", calendar.MaxRangeDays)
		if got := vErr.FieldErrors["to"]; got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	})
}
