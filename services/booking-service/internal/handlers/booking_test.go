package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bookedbarber/scheduling/services/booking-service/internal/model"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/outbox"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/policy"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/schedule"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeTx satisfies pgx.Tx for the handler's commit/rollback calls; the fake
// store ignores the tx entirely.
type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeStore struct {
	services map[string]storage.ShopService
	rules    map[string]schedule.WorkingHoursRule
	barbers  []string
	appts    []model.Appointment
	idem     map[string]storage.IdempotencyRecord

	createErr     error
	created       int
	blockingReads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		services: map[string]storage.ShopService{},
		rules:    map[string]schedule.WorkingHoursRule{},
		idem:     map[string]storage.IdempotencyRecord{},
	}
}

func (f *fakeStore) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (f *fakeStore) GetService(_ context.Context, _, serviceID string) (storage.ShopService, error) {
	svc, ok := f.services[serviceID]
	if !ok {
		return storage.ShopService{}, pgx.ErrNoRows
	}
	return svc, nil
}

func (f *fakeStore) GetWorkingHours(_ context.Context, _, barberID string, weekday time.Weekday) (schedule.WorkingHoursRule, error) {
	rule, ok := f.rules[barberID]
	if !ok {
		return schedule.WorkingHoursRule{}, fmt.Errorf("barber %s: %w", barberID, schedule.ErrNotFound)
	}
	if rule.Weekday != weekday {
		return schedule.WorkingHoursRule{BarberID: barberID, Weekday: weekday}, nil
	}
	return rule, nil
}

func (f *fakeStore) ActiveBarberIDs(context.Context, string) ([]string, error) {
	return f.barbers, nil
}

func (f *fakeStore) ListBlockingAppointments(_ context.Context, _, barberID string, start, end time.Time) ([]model.Appointment, error) {
	f.blockingReads++
	var out []model.Appointment
	for _, a := range f.appts {
		if a.BarberID != barberID {
			continue
		}
		bStart := a.StartTime.Add(-time.Duration(a.BufferBeforeMinutes) * time.Minute)
		bEnd := a.EndTime().Add(time.Duration(a.BufferAfterMinutes) * time.Minute)
		if bStart.Before(end) && start.Before(bEnd) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByShop(_ context.Context, _, barberID string, _ int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appts {
		if barberID == "" || a.BarberID == barberID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) LockIdempotencyKey(_ context.Context, _ pgx.Tx, shopID, key string) (storage.IdempotencyRecord, bool, error) {
	rec, ok := f.idem[key]
	if !ok {
		f.idem[key] = storage.IdempotencyRecord{ShopID: shopID, IdempotencyKey: key}
	}
	return rec, ok, nil
}

func (f *fakeStore) FinalizeIdempotency(_ context.Context, _ pgx.Tx, shopID, key, appointmentID string, statusCode int, response []byte) error {
	f.idem[key] = storage.IdempotencyRecord{
		ShopID:          shopID,
		IdempotencyKey:  key,
		AppointmentID:   appointmentID,
		StatusCode:      statusCode,
		ResponsePayload: response,
	}
	return nil
}

func (f *fakeStore) Create(_ context.Context, _ pgx.Tx, appt *model.Appointment) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	stored := *appt
	stored.ID = fmt.Sprintf("appt-%d", f.created)
	f.appts = append(f.appts, stored)
	return stored.ID, nil
}

func (f *fakeStore) GetAppointmentForUpdate(_ context.Context, _ pgx.Tx, _, appointmentID string) (model.Appointment, error) {
	for _, a := range f.appts {
		if a.ID == appointmentID {
			return a, nil
		}
	}
	return model.Appointment{}, pgx.ErrNoRows
}

func (f *fakeStore) CancelAppointment(_ context.Context, _ pgx.Tx, _, appointmentID, reason string) (time.Time, error) {
	cancelledAt := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	for i := range f.appts {
		if f.appts[i].ID == appointmentID {
			f.appts[i].Status = string(schedule.StatusCancelled)
			f.appts[i].CancelledAt = &cancelledAt
			f.appts[i].CancelReason = reason
		}
	}
	return cancelledAt, nil
}

type fakeOutbox struct {
	events []outbox.Event
}

func (f *fakeOutbox) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	f.events = append(f.events, evt)
	return nil
}

// Monday 2026-03-02; the barber works 09:00-17:00 and the 30-minute service
// carries a 15-minute after-buffer.
func newTestHandler() (*BookingHandler, *fakeStore, *fakeOutbox) {
	store := newFakeStore()
	store.services["svc1"] = storage.ShopService{
		ID:                 "svc1",
		ShopID:             "s1",
		Name:               "Haircut",
		DurationMinutes:    30,
		BufferAfterMinutes: 15,
	}
	store.rules["b1"] = schedule.WorkingHoursRule{
		BarberID:    "b1",
		Weekday:     time.Monday,
		StartMinute: 9 * 60,
		EndMinute:   17 * 60,
		Active:      true,
	}
	store.barbers = []string{"b1"}

	ob := &fakeOutbox{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pol := schedule.BookingPolicy{
		MaxAdvanceDays:      30,
		SameDayCutoffMinute: -1,
		SlotIncrement:       15 * time.Minute,
	}
	h := NewBookingHandler(store, ob, logger, policy.NewStaticProvider(pol), nil)
	h.clock = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }
	return h, store, ob
}

func TestSlots_FiltersServiceBuffersInOneRead(t *testing.T) {
	h, store, _ := newTestHandler()
	booked := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	store.appts = append(store.appts, model.Appointment{
		ID:              "existing",
		ShopID:          "s1",
		BarberID:        "b1",
		StartTime:       booked,
		DurationMinutes: 30,
		Status:          string(schedule.StatusScheduled),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?shop_id=s1&barber_id=b1&service_id=svc1&date=2026-03-02", nil)
	rr := httptest.NewRecorder()
	h.Slots(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var items []slotItem
	if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(items) == 0 {
		t.Fatal("expected slots")
	}
	// Starts 09:00 through 09:45 all collide with the 09:30 booking once the
	// after-buffer is applied, so the first offered slot is 10:00.
	if items[0].StartTime != "2026-03-02T10:00:00Z" {
		t.Fatalf("first slot = %s, want 10:00", items[0].StartTime)
	}
	if store.blockingReads != 1 {
		t.Fatalf("slot listing must issue one appointment read, saw %d", store.blockingReads)
	}
}

func TestSlots_MissingParams(t *testing.T) {
	h, _, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?shop_id=s1", nil)
	rr := httptest.NewRecorder()
	h.Slots(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestSlots_UnknownService(t *testing.T) {
	h, _, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?shop_id=s1&service_id=nope&date=2026-03-02", nil)
	rr := httptest.NewRecorder()
	h.Slots(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func createReq(t *testing.T, start, idempotencyKey string) *http.Request {
	t.Helper()
	body := fmt.Sprintf(`{"shop_id":"s1","service_id":"svc1","barber_id":"b1","customer_name":"Ana","start_time":%q}`, start)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body))
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return req
}

func TestCreate_IdempotentReplay(t *testing.T) {
	h, store, ob := newTestHandler()

	rr := httptest.NewRecorder()
	h.Create(rr, createReq(t, "2026-03-02T10:00:00Z", "k1"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("first call status = %d, body %s", rr.Code, rr.Body.String())
	}
	firstBody := rr.Body.String()
	if len(ob.events) != 1 || ob.events[0].EventType != outbox.EventAppointmentBooked {
		t.Fatalf("expected one booked event, got %+v", ob.events)
	}

	rr = httptest.NewRecorder()
	h.Create(rr, createReq(t, "2026-03-02T10:00:00Z", "k1"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("replay status = %d", rr.Code)
	}
	if rr.Body.String() != firstBody {
		t.Fatalf("replay body %s differs from original %s", rr.Body.String(), firstBody)
	}
	if store.created != 1 {
		t.Fatalf("replay must not insert again, saw %d inserts", store.created)
	}
}

func TestCreate_OffGridStartIsInvalid(t *testing.T) {
	h, _, _ := newTestHandler()
	rr := httptest.NewRecorder()
	h.Create(rr, createReq(t, "2026-03-02T10:05:00Z", ""))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}
}

func TestCreate_TakenSlotConflicts(t *testing.T) {
	h, store, _ := newTestHandler()
	booked := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	store.appts = append(store.appts, model.Appointment{
		ID:              "existing",
		ShopID:          "s1",
		BarberID:        "b1",
		StartTime:       booked,
		DurationMinutes: 30,
		Status:          string(schedule.StatusConfirmed),
	})

	rr := httptest.NewRecorder()
	h.Create(rr, createReq(t, "2026-03-02T10:00:00Z", ""))
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
}

func TestCreate_InsertRaceConflicts(t *testing.T) {
	h, store, _ := newTestHandler()
	store.createErr = &pgconn.PgError{Code: "23P01"}

	rr := httptest.NewRecorder()
	h.Create(rr, createReq(t, "2026-03-02T10:00:00Z", "k2"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	// The aborted transaction cannot finalize the key, so a retry may proceed.
	if rec := store.idem["k2"]; rec.StatusCode != 0 {
		t.Fatalf("insert race must leave the idempotency key open, got status %d", rec.StatusCode)
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", 50},
		{"10", 10},
		{"200", 200},
		{"201", 50},
		{"0", 50},
		{"-5", 50},
		{"abc", 50},
	}
	for _, tc := range cases {
		if got := clampLimit(tc.raw, 50, 200); got != tc.want {
			t.Fatalf("clampLimit(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestScheduleErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errSlotTaken, http.StatusConflict},
		{schedule.ErrInvalidDate, http.StatusUnprocessableEntity},
		{schedule.ErrNotFound, http.StatusNotFound},
		{schedule.ErrUnavailable, http.StatusServiceUnavailable},
		{schedule.WrapUnavailable(schedule.ErrNotFound), http.StatusServiceUnavailable},
		{http.ErrBodyNotAllowed, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := scheduleErrorStatus(tc.err); got != tc.want {
			t.Fatalf("scheduleErrorStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
