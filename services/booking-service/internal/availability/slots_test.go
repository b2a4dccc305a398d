package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/model"
)

type fakeLookup struct {
	taken map[time.Time]bool
	err   error
}

func (f fakeLookup) FindActiveAt(_ context.Context, _ string, date time.Time) (model.Appointment, bool, error) {
	if f.err != nil {
		return model.Appointment{}, false, f.err
	}
	if f.taken[date] {
		return model.Appointment{Date: date}, true, nil
	}
	return model.Appointment{}, false, nil
}

func TestChecker_HasConflict(t *testing.T) {
	hour := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	c := NewChecker(fakeLookup{taken: map[time.Time]bool{hour: true}})

	conflict, err := c.HasConflict(context.Background(), "p1", hour)
	if err != nil || !conflict {
		t.Fatalf("expected conflict, got %v err=%v", conflict, err)
	}
	conflict, err = c.HasConflict(context.Background(), "p1", hour.Add(time.Hour))
	if err != nil || conflict {
		t.Fatalf("expected free hour, got %v err=%v", conflict, err)
	}

	boom := errors.New("boom")
	if _, err := NewChecker(fakeLookup{err: boom}).HasConflict(context.Background(), "p1", hour); !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestDaySlots_Basic(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	windowStart := day.Add(8 * time.Hour)
	windowEnd := day.Add(12 * time.Hour)

	taken := []time.Time{day.Add(9 * time.Hour)}
	now := day.Add(8*time.Hour + 30*time.Minute)

	slots := DaySlots(windowStart, windowEnd, taken, now)
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(slots))
	}
	want := []bool{false, false, true, true} // 08:00 past, 09:00 taken
	for i, s := range slots {
		if s.Available != want[i] {
			t.Fatalf("slot %s: expected available=%v", s.Time.Format(time.RFC3339), want[i])
		}
	}
}

func TestDaySlots_EmptyWindow(t *testing.T) {
	at := time.Date(2026, 1, 28, 8, 0, 0, 0, time.UTC)
	if slots := DaySlots(at, at, nil, at); slots != nil {
		t.Fatalf("expected no slots, got %d", len(slots))
	}
}
