package schedule

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeBlockingSource struct {
	appts []Appointment
	err   error
	reads int
}

func (f *fakeBlockingSource) BlockingAppointments(_ context.Context, barberID string, window Interval) ([]Appointment, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	var out []Appointment
	for _, a := range f.appts {
		if a.BarberID == barberID && a.Blocked().Overlaps(window) {
			out = append(out, a)
		}
	}
	return out, nil
}

func appt(barberID string, start time.Time, dur, before, after time.Duration, status Status) Appointment {
	return Appointment{
		ID:           "a-" + start.Format("150405"),
		BarberID:     barberID,
		Start:        start,
		Duration:     dur,
		BufferBefore: before,
		BufferAfter:  after,
		Status:       status,
	}
}

func TestHasConflict_BufferEnforcement(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	// Existing appointment 10:00-10:30 with a 15-minute after-buffer blocks through 10:45.
	src := &fakeBlockingSource{appts: []Appointment{
		appt("b1", day.Add(10*time.Hour), 30*time.Minute, 0, 15*time.Minute, StatusScheduled),
	}}
	checker := NewChecker(src)

	conflict, err := checker.HasConflict(context.Background(), "b1", iv(day.Add(10*time.Hour+30*time.Minute), day.Add(11*time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !conflict {
		t.Fatal("10:30 start must be rejected while the after-buffer runs through 10:45")
	}

	conflict, err = checker.HasConflict(context.Background(), "b1", iv(day.Add(10*time.Hour+45*time.Minute), day.Add(11*time.Hour+15*time.Minute)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conflict {
		t.Fatal("10:45 start touches the buffer boundary and must be accepted")
	}

	conflict, err = checker.HasConflict(context.Background(), "b1", iv(day.Add(10*time.Hour+46*time.Minute), day.Add(11*time.Hour+16*time.Minute)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conflict {
		t.Fatal("10:46 start is past the buffer and must be accepted")
	}
}

func TestHasConflict_NonBlockingStatusesIgnored(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	src := &fakeBlockingSource{appts: []Appointment{
		appt("b1", day.Add(10*time.Hour), time.Hour, 0, 0, StatusCancelled),
		appt("b1", day.Add(10*time.Hour), time.Hour, 0, 0, StatusNoShow),
		appt("b1", day.Add(10*time.Hour), time.Hour, 0, 0, StatusCompleted),
	}}
	checker := NewChecker(src)

	conflict, err := checker.HasConflict(context.Background(), "b1", iv(day.Add(10*time.Hour), day.Add(11*time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conflict {
		t.Fatal("cancelled/no-show/completed appointments must never block")
	}
}

func TestHasConflict_FailsClosed(t *testing.T) {
	src := &fakeBlockingSource{err: errors.New("connection refused")}
	checker := NewChecker(src)

	day := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	_, err := checker.HasConflict(context.Background(), "b1", iv(day, day.Add(30*time.Minute)))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on source failure, got %v", err)
	}
}

func TestFilterConflicts_SingleReadAndCorrectness(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	src := &fakeBlockingSource{appts: []Appointment{
		appt("b1", day.Add(12*time.Hour), 30*time.Minute, 0, 0, StatusConfirmed),
	}}
	checker := NewChecker(src)

	rule := mondayRule("b1")
	candidates, err := ComputeCandidates(rule, day, 30*time.Minute, basePolicy(), day.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	free, err := checker.FilterConflicts(context.Background(), "b1", candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.reads != 1 {
		t.Fatalf("bulk filter must issue a single source read, got %d", src.reads)
	}

	// A 12:00-12:30 appointment excludes exactly the 11:45, 12:00, and 12:15
	// starts for a 30-minute service; 11:30 and 12:30 touch boundaries and stay.
	excluded := map[string]bool{"11:45": true, "12:00": true, "12:15": true}
	for _, f := range free {
		if excluded[f.Start.Format("15:04")] {
			t.Errorf("start %s should have been filtered out", f.Start.Format("15:04"))
		}
	}
	if len(free) != len(candidates)-3 {
		t.Fatalf("expected %d free candidates, got %d", len(candidates)-3, len(free))
	}
	has := func(hhmm string) bool {
		for _, f := range free {
			if f.Start.Format("15:04") == hhmm {
				return true
			}
		}
		return false
	}
	if !has("11:30") || !has("12:30") {
		t.Fatal("boundary-touching 11:30 and 12:30 starts must survive (half-open intervals)")
	}
}

func TestFilterConflicts_FailsClosed(t *testing.T) {
	src := &fakeBlockingSource{err: errors.New("timeout")}
	checker := NewChecker(src)

	day := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	_, err := checker.FilterConflicts(context.Background(), "b1", []Interval{iv(day, day.Add(30*time.Minute))})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on source failure, got %v", err)
	}
}

func TestFilterConflicts_EmptyCandidates(t *testing.T) {
	src := &fakeBlockingSource{}
	checker := NewChecker(src)

	free, err := checker.FilterConflicts(context.Background(), "b1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if free != nil {
		t.Fatalf("expected nil, got %v", free)
	}
	if src.reads != 0 {
		t.Fatal("no source read expected for an empty candidate set")
	}
}
