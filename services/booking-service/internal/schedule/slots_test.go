package schedule

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type fakeRuleSource struct {
	rules map[string]map[time.Weekday]WorkingHoursRule
	calls int
}

func (f *fakeRuleSource) WorkingHours(_ context.Context, barberID string, weekday time.Weekday) (WorkingHoursRule, error) {
	f.calls++
	byDay, ok := f.rules[barberID]
	if !ok {
		return WorkingHoursRule{}, ErrNotFound
	}
	rule, ok := byDay[weekday]
	if !ok {
		return WorkingHoursRule{BarberID: barberID, Weekday: weekday}, nil
	}
	return rule, nil
}

type fakeRoster struct {
	ids []string
	err error
}

func (f *fakeRoster) ActiveBarberIDs(_ context.Context) ([]string, error) {
	return f.ids, f.err
}

func weekdayRules(barberID string, weekdays ...time.Weekday) map[time.Weekday]WorkingHoursRule {
	out := map[time.Weekday]WorkingHoursRule{}
	for _, wd := range weekdays {
		out[wd] = WorkingHoursRule{BarberID: barberID, Weekday: wd, StartMinute: 9 * 60, EndMinute: 17 * 60, Active: true}
	}
	return out
}

func newTestAggregator(rules *fakeRuleSource, src *fakeBlockingSource, roster *fakeRoster, now time.Time) *Aggregator {
	return NewAggregator(rules, NewChecker(src), roster).WithClock(func() time.Time { return now })
}

func TestAvailableSlots_SingleBarber(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rules := &fakeRuleSource{rules: map[string]map[time.Weekday]WorkingHoursRule{"b1": weekdayRules("b1", time.Monday)}}
	src := &fakeBlockingSource{appts: []Appointment{
		appt("b1", day.Add(12*time.Hour), 30*time.Minute, 0, 0, StatusScheduled),
	}}
	agg := newTestAggregator(rules, src, &fakeRoster{}, day.Add(-time.Hour))

	slots, err := agg.AvailableSlots(context.Background(), SlotQuery{
		BarberID:        "b1",
		Day:             day,
		ServiceDuration: 30 * time.Minute,
		Policy:          basePolicy(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 28 { // 31 candidates minus the 11:45/12:00/12:15 starts
		t.Fatalf("expected 28 slots, got %d", len(slots))
	}
	for _, s := range slots {
		if !s.Available || s.BarberID != "b1" {
			t.Fatalf("bad slot: %+v", s)
		}
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Start.Before(slots[i-1].Start) {
			t.Fatal("slots must be sorted by start time")
		}
	}
}

func TestAvailableSlots_AnyBarberMergeOrder(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rules := &fakeRuleSource{rules: map[string]map[time.Weekday]WorkingHoursRule{
		"b1": weekdayRules("b1", time.Monday),
		"b2": weekdayRules("b2", time.Monday),
	}}
	agg := newTestAggregator(rules, &fakeBlockingSource{}, &fakeRoster{ids: []string{"b2", "b1"}}, day.Add(-time.Hour))

	slots, err := agg.AvailableSlots(context.Background(), SlotQuery{
		Day:             day,
		ServiceDuration: 30 * time.Minute,
		Policy:          basePolicy(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 62 {
		t.Fatalf("expected 62 merged slots, got %d", len(slots))
	}
	// Equal start times tie-break on barber ID regardless of roster order.
	if slots[0].BarberID != "b1" || slots[1].BarberID != "b2" {
		t.Fatalf("tie-break order wrong: %s then %s", slots[0].BarberID, slots[1].BarberID)
	}
	if !slots[0].Start.Equal(slots[1].Start) {
		t.Fatal("first two slots should share a start time")
	}
}

func TestAvailableSlots_ServiceBuffersSingleRead(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rules := &fakeRuleSource{rules: map[string]map[time.Weekday]WorkingHoursRule{"b1": weekdayRules("b1", time.Monday)}}
	src := &fakeBlockingSource{appts: []Appointment{
		appt("b1", day.Add(12*time.Hour), 30*time.Minute, 0, 0, StatusScheduled),
	}}
	agg := newTestAggregator(rules, src, &fakeRoster{}, day.Add(-time.Hour))

	slots, err := agg.AvailableSlots(context.Background(), SlotQuery{
		BarberID:        "b1",
		Day:             day,
		ServiceDuration: 30 * time.Minute,
		BufferBefore:    15 * time.Minute,
		BufferAfter:     15 * time.Minute,
		Policy:          basePolicy(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Expanded intervals [t-15m, t+45m) collide with the 12:00-12:30 booking
	// for starts 11:30 through 12:30, so 5 of the 31 candidates drop out.
	if len(slots) != 26 {
		t.Fatalf("expected 26 slots, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Start.After(day.Add(11*time.Hour+15*time.Minute)) && s.Start.Before(day.Add(12*time.Hour+45*time.Minute)) {
			t.Fatalf("slot at %s should have been filtered by the service buffers", s.Start)
		}
		if !s.End.Equal(s.Start.Add(30 * time.Minute)) {
			t.Fatalf("slot %s must carry unexpanded times, got end %s", s.Start, s.End)
		}
	}
	if src.reads != 1 {
		t.Fatalf("buffered query must stay a single storage read, saw %d", src.reads)
	}
}

func TestNextAvailable_HonorsServiceBuffers(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) // Monday
	rules := &fakeRuleSource{rules: map[string]map[time.Weekday]WorkingHoursRule{"b1": weekdayRules("b1", time.Monday)}}
	src := &fakeBlockingSource{appts: []Appointment{
		appt("b1", now.Add(90*time.Minute), 30*time.Minute, 0, 0, StatusConfirmed), // 09:30-10:00
	}}
	agg := newTestAggregator(rules, src, &fakeRoster{}, now)

	slot, err := agg.NextAvailable(context.Background(), SlotQuery{
		BarberID:        "b1",
		ServiceDuration: 30 * time.Minute,
		BufferAfter:     15 * time.Minute,
		Policy:          basePolicy(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A 09:00 start ends 09:30 but its after-buffer runs to 09:45, into the
	// 09:30 booking; the first start whose expanded interval clears it is 10:00.
	want := now.Add(2 * time.Hour)
	if !slot.Start.Equal(want) {
		t.Fatalf("next available = %s, want %s", slot.Start, want)
	}
}

func TestAvailableSlots_Idempotent(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rules := &fakeRuleSource{rules: map[string]map[time.Weekday]WorkingHoursRule{
		"b1": weekdayRules("b1", time.Monday),
		"b2": weekdayRules("b2", time.Monday),
	}}
	src := &fakeBlockingSource{appts: []Appointment{
		appt("b1", day.Add(10*time.Hour), time.Hour, 0, 15*time.Minute, StatusPending),
	}}
	agg := newTestAggregator(rules, src, &fakeRoster{ids: []string{"b1", "b2"}}, day.Add(-time.Hour))

	q := SlotQuery{Day: day, ServiceDuration: 45 * time.Minute, Policy: basePolicy()}
	first, err := agg.AvailableSlots(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := agg.AvailableSlots(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical queries against unchanged data must return identical ordered output")
	}
}

func TestAvailableSlots_UnknownBarber(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rules := &fakeRuleSource{rules: map[string]map[time.Weekday]WorkingHoursRule{}}
	agg := newTestAggregator(rules, &fakeBlockingSource{}, &fakeRoster{}, day.Add(-time.Hour))

	_, err := agg.AvailableSlots(context.Background(), SlotQuery{
		BarberID:        "ghost",
		Day:             day,
		ServiceDuration: 30 * time.Minute,
		Policy:          basePolicy(),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown barber, got %v", err)
	}
}

func TestAvailableSlots_RosterFailureIsUnavailable(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	agg := newTestAggregator(&fakeRuleSource{}, &fakeBlockingSource{}, &fakeRoster{err: errors.New("down")}, day.Add(-time.Hour))

	_, err := agg.AvailableSlots(context.Background(), SlotQuery{
		Day:             day,
		ServiceDuration: 30 * time.Minute,
		Policy:          basePolicy(),
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestNextAvailable_ShortCircuits(t *testing.T) {
	// Wednesday is the only working day; now is Monday. The scan must stop at
	// Wednesday without touching the rest of the window.
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) // Monday
	rules := &fakeRuleSource{rules: map[string]map[time.Weekday]WorkingHoursRule{
		"b1": weekdayRules("b1", time.Wednesday),
	}}
	agg := newTestAggregator(rules, &fakeBlockingSource{}, &fakeRoster{}, now)

	slot, err := agg.NextAvailable(context.Background(), SlotQuery{
		BarberID:        "b1",
		ServiceDuration: 30 * time.Minute,
		Policy:          basePolicy(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	if !slot.Start.Equal(want) {
		t.Fatalf("next available = %s, want %s", slot.Start, want)
	}
	// Mon, Tue, Wed: three rule lookups, no more.
	if rules.calls != 3 {
		t.Fatalf("expected the scan to stop after 3 days, saw %d rule lookups", rules.calls)
	}
}

func TestNextAvailable_NothingInWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	rules := &fakeRuleSource{rules: map[string]map[time.Weekday]WorkingHoursRule{
		"b1": {}, // known barber, never working
	}}
	policy := basePolicy()
	policy.MaxAdvanceDays = 7
	agg := newTestAggregator(rules, &fakeBlockingSource{}, &fakeRoster{}, now)

	_, err := agg.NextAvailable(context.Background(), SlotQuery{
		BarberID:        "b1",
		ServiceDuration: 30 * time.Minute,
		Policy:          policy,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
