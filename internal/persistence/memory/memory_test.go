package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/field-attendance/internal/persistence"
)

func TestWindowConfigRepository(t *testing.T) {
	ctx := context.Background()
	storage := New()

	if _, err := storage.GetWindowConfig(ctx, "global"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	cfg := persistence.WindowConfig{Scope: "", StartMinute: 300, EndMinute: 540, GraceMinutes: 15, UpdatedBy: "mgr-1"}
	if err := storage.SaveWindowConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveWindowConfig failed: %v", err)
	}

	fetched, err := storage.GetWindowConfig(ctx, persistence.GlobalScope)
	if err != nil {
		t.Fatalf("GetWindowConfig failed: %v", err)
	}
	if fetched.StartMinute != 300 || fetched.EndMinute != 540 || fetched.Scope != persistence.GlobalScope {
		t.Fatalf("unexpected window config: %#v", fetched)
	}

	cfg.StartMinute = 360
	if err := storage.SaveWindowConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveWindowConfig failed: %v", err)
	}
	fetched, _ = storage.GetWindowConfig(ctx, "")
	if fetched.StartMinute != 360 {
		t.Fatalf("expected overwrite, got %#v", fetched)
	}

	inverted := persistence.WindowConfig{Scope: "manager:m1", StartMinute: 540, EndMinute: 300}
	if err := storage.SaveWindowConfig(ctx, inverted); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestAttendanceRepository(t *testing.T) {
	ctx := context.Background()
	storage := New()

	markedAt := time.Date(2024, time.March, 14, 7, 5, 0, 0, time.UTC)
	reported := markedAt.Add(-time.Minute)
	record := persistence.AttendanceRecord{
		ID:               "rec-1",
		AgentID:          "agent-1",
		CalendarDate:     "2024-03-14",
		MarkedAt:         markedAt,
		Location:         "Site A",
		Sector:           "North",
		Classification:   "late",
		ClientReportedAt: &reported,
	}

	stored, err := storage.ClaimDay(ctx, record)
	if err != nil {
		t.Fatalf("ClaimDay failed: %v", err)
	}
	if stored.ID != record.ID {
		t.Fatalf("unexpected stored record: %#v", stored)
	}

	second := record
	second.ID = "rec-2"
	second.Location = "Site B"
	existing, err := storage.ClaimDay(ctx, second)
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if existing.ID != "rec-1" || existing.Location != "Site A" {
		t.Fatalf("expected original record on conflict, got %#v", existing)
	}

	fetched, err := storage.GetForDay(ctx, "agent-1", "2024-03-14")
	if err != nil {
		t.Fatalf("GetForDay failed: %v", err)
	}
	*fetched.ClientReportedAt = time.Time{}
	again, _ := storage.GetForDay(ctx, "agent-1", "2024-03-14")
	if !again.ClientReportedAt.Equal(reported) {
		t.Fatalf("expected stored record to be isolated from callers")
	}

	if _, err := storage.GetForDay(ctx, "agent-1", "2024-03-15"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := storage.ClaimDay(ctx, persistence.AttendanceRecord{ID: "x"}); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestListRange(t *testing.T) {
	ctx := context.Background()
	storage := New()

	for i, date := range []string{"2024-03-13", "2024-03-11", "2024-03-12", "2024-03-20"} {
		rec := persistence.AttendanceRecord{ID: fmt.Sprintf("rec-%d", i), AgentID: "agent-1", CalendarDate: date}
		if _, err := storage.ClaimDay(ctx, rec); err != nil {
			t.Fatalf("ClaimDay failed: %v", err)
		}
	}
	if _, err := storage.ClaimDay(ctx, persistence.AttendanceRecord{ID: "other", AgentID: "agent-2", CalendarDate: "2024-03-12"}); err != nil {
		t.Fatalf("ClaimDay failed: %v", err)
	}

	records, err := storage.ListRange(ctx, "agent-1", "2024-03-11", "2024-03-13")
	if err != nil {
		t.Fatalf("ListRange failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, want := range []string{"2024-03-11", "2024-03-12", "2024-03-13"} {
		if records[i].CalendarDate != want {
			t.Fatalf("record %d: expected %s, got %s", i, want, records[i].CalendarDate)
		}
	}
}

func TestClaimDayConcurrent(t *testing.T) {
	ctx := context.Background()
	storage := New()

	const attempts = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := storage.ClaimDay(ctx, persistence.AttendanceRecord{
				ID:           fmt.Sprintf("rec-%d", i),
				AgentID:      "agent-1",
				CalendarDate: "2024-03-14",
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, persistence.ErrDuplicate) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", successes)
	}
}
