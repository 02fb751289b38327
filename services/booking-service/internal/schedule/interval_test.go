package schedule

import (
	"testing"
	"time"
)

func iv(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

func TestOverlaps_HalfOpen(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	min := func(m int) time.Time { return base.Add(time.Duration(m) * time.Minute) }

	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"disjoint", iv(min(0), min(30)), iv(min(60), min(90)), false},
		{"touching boundary is not a conflict", iv(min(0), min(30)), iv(min(30), min(60)), false},
		{"partial overlap", iv(min(0), min(30)), iv(min(15), min(45)), true},
		{"contained", iv(min(0), min(60)), iv(min(15), min(30)), true},
		{"identical", iv(min(0), min(30)), iv(min(0), min(30)), true},
		{"one minute overlap", iv(min(0), min(31)), iv(min(30), min(60)), true},
	}
	for _, tc := range cases {
		if got := tc.a.Overlaps(tc.b); got != tc.want {
			t.Errorf("%s: a.Overlaps(b) = %v, want %v", tc.name, got, tc.want)
		}
		if got := tc.b.Overlaps(tc.a); got != tc.want {
			t.Errorf("%s: b.Overlaps(a) = %v, want %v (overlap must be symmetric)", tc.name, got, tc.want)
		}
	}
}

func TestContains(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	min := func(m int) time.Time { return base.Add(time.Duration(m) * time.Minute) }

	window := iv(min(0), min(480))
	cases := []struct {
		name  string
		other Interval
		want  bool
	}{
		{"inside", iv(min(60), min(90)), true},
		{"flush with both edges", iv(min(0), min(480)), true},
		{"ends at close", iv(min(450), min(480)), true},
		{"runs past close", iv(min(465), min(495)), false},
		{"starts before open", iv(min(-15), min(30)), false},
	}
	for _, tc := range cases {
		if got := window.Contains(tc.other); got != tc.want {
			t.Errorf("%s: Contains = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAppointmentBlocked_ExpandsBuffers(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	a := Appointment{
		Start:        start,
		Duration:     30 * time.Minute,
		BufferBefore: 10 * time.Minute,
		BufferAfter:  15 * time.Minute,
		Status:       StatusConfirmed,
	}
	blocked := a.Blocked()
	if !blocked.Start.Equal(start.Add(-10 * time.Minute)) {
		t.Fatalf("blocked start = %s, want 09:50", blocked.Start)
	}
	if !blocked.End.Equal(start.Add(45 * time.Minute)) {
		t.Fatalf("blocked end = %s, want 10:45", blocked.End)
	}
}

func TestStatusBlocks(t *testing.T) {
	blocking := []Status{StatusScheduled, StatusConfirmed, StatusPending}
	for _, s := range blocking {
		if !s.Blocks() {
			t.Errorf("status %q should block", s)
		}
	}
	nonBlocking := []Status{StatusCompleted, StatusCancelled, StatusNoShow, Status("unknown")}
	for _, s := range nonBlocking {
		if s.Blocks() {
			t.Errorf("status %q should not block", s)
		}
	}
}
