package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bookedbarber/scheduling/services/booking-service/internal/model"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/outbox"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/policy"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/schedule"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/slotcache"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

// bookingStore is the slice of the storage layer the handler needs. The
// production implementation is *storage.BookingRepository.
type bookingStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetService(ctx context.Context, shopID, serviceID string) (storage.ShopService, error)
	GetWorkingHours(ctx context.Context, shopID, barberID string, weekday time.Weekday) (schedule.WorkingHoursRule, error)
	ActiveBarberIDs(ctx context.Context, shopID string) ([]string, error)
	ListBlockingAppointments(ctx context.Context, shopID, barberID string, start, end time.Time) ([]model.Appointment, error)
	ListByShop(ctx context.Context, shopID, barberID string, limit int) ([]model.Appointment, error)
	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, shopID, key string) (storage.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, shopID, key, appointmentID string, statusCode int, response []byte) error
	Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error)
	GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, shopID, appointmentID string) (model.Appointment, error)
	CancelAppointment(ctx context.Context, tx pgx.Tx, shopID, appointmentID, reason string) (time.Time, error)
}

// eventStore writes outbox events inside the booking transaction.
type eventStore interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type BookingHandler struct {
	repo       bookingStore
	outboxRepo eventStore
	logger     *slog.Logger
	policy     policy.Provider
	cache      *slotcache.Cache // nil disables memoization
	clock      func() time.Time
}

func NewBookingHandler(repo bookingStore, outboxRepo eventStore, logger *slog.Logger, policyProvider policy.Provider, cache *slotcache.Cache) *BookingHandler {
	return &BookingHandler{
		repo:       repo,
		outboxRepo: outboxRepo,
		logger:     logger,
		policy:     policyProvider,
		cache:      cache,
		clock:      time.Now,
	}
}

// shopStore binds the repository to one shop so it satisfies the kernel's
// source interfaces, converting rows to kernel values at the boundary.
type shopStore struct {
	repo   bookingStore
	shopID string
}

func (s shopStore) BlockingAppointments(ctx context.Context, barberID string, window schedule.Interval) ([]schedule.Appointment, error) {
	appts, err := s.repo.ListBlockingAppointments(ctx, s.shopID, barberID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	out := make([]schedule.Appointment, 0, len(appts))
	for _, a := range appts {
		out = append(out, schedule.Appointment{
			ID:           a.ID,
			BarberID:     a.BarberID,
			Start:        a.StartTime,
			Duration:     time.Duration(a.DurationMinutes) * time.Minute,
			BufferBefore: time.Duration(a.BufferBeforeMinutes) * time.Minute,
			BufferAfter:  time.Duration(a.BufferAfterMinutes) * time.Minute,
			Status:       schedule.Status(a.Status),
		})
	}
	return out, nil
}

func (s shopStore) WorkingHours(ctx context.Context, barberID string, weekday time.Weekday) (schedule.WorkingHoursRule, error) {
	return s.repo.GetWorkingHours(ctx, s.shopID, barberID, weekday)
}

func (s shopStore) ActiveBarberIDs(ctx context.Context) ([]string, error) {
	return s.repo.ActiveBarberIDs(ctx, s.shopID)
}

func (h *BookingHandler) aggregator(shopID string) *schedule.Aggregator {
	store := shopStore{repo: h.repo, shopID: shopID}
	return schedule.NewAggregator(store, schedule.NewChecker(store), store).WithClock(h.clock)
}

// slotQuery folds the service's duration and buffers into a kernel query, so
// the aggregator's single bulk read accounts for the prospective appointment's
// full blocked interval.
func slotQuery(barberID string, day time.Time, svc storage.ShopService, pol schedule.BookingPolicy) schedule.SlotQuery {
	return schedule.SlotQuery{
		BarberID:        barberID,
		Day:             day,
		ServiceDuration: time.Duration(svc.DurationMinutes) * time.Minute,
		BufferBefore:    time.Duration(svc.BufferBeforeMinutes) * time.Minute,
		BufferAfter:     time.Duration(svc.BufferAfterMinutes) * time.Minute,
		Policy:          pol,
	}
}

type slotItem struct {
	BarberID  string `json:"barber_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
}

type createBookingRequest struct {
	ShopID        string `json:"shop_id"`
	ServiceID     string `json:"service_id"`
	BarberID      string `json:"barber_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	StartTime     string `json:"start_time"`
}

type createBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
}

type cancelBookingRequest struct {
	ShopID        string `json:"shop_id"`
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type cancelBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at"`
}

type listAppointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	BarberID      string `json:"barber_id"`
	ServiceID     string `json:"service_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// Slots serves GET /api/v1/public/slots: the bookable slots for a shop, date,
// and service, for one barber or merged across the roster.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	barberID := strings.TrimSpace(r.URL.Query().Get("barber_id"))
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	tzName := strings.TrimSpace(r.URL.Query().Get("tz"))
	if shopID == "" || serviceID == "" || dateStr == "" {
		http.Error(w, "shop_id, service_id, and date are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	svc, err := h.repo.GetService(ctx, shopID, serviceID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load service", http.StatusServiceUnavailable)
		return
	}

	pol, err := h.policy.BookingPolicy(ctx, shopID)
	if err != nil {
		http.Error(w, "failed to load booking policy", http.StatusServiceUnavailable)
		return
	}

	day, err := time.ParseInLocation("2006-01-02", dateStr, pol.Location())
	if err != nil {
		http.Error(w, "invalid date (expected YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	displayLoc := pol.Location()
	if tzName != "" {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			http.Error(w, "invalid tz", http.StatusBadRequest)
			return
		}
		displayLoc = loc
	}

	var cacheKey string
	if h.cache != nil {
		barberKey := barberID
		if barberKey == "" {
			barberKey = "any"
		}
		cacheKey = h.cache.Key(ctx, shopID, barberKey, serviceID, dateStr, displayLoc.String())
		if body, ok := h.cache.Get(ctx, cacheKey); ok {
			writeJSONBytes(w, http.StatusOK, body)
			return
		}
	}

	slots, err := h.aggregator(shopID).AvailableSlots(ctx, slotQuery(barberID, day, svc, pol))
	if err != nil {
		h.writeScheduleError(w, err)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			BarberID:  s.BarberID,
			StartTime: s.Start.In(displayLoc).Format(time.RFC3339),
			EndTime:   s.End.In(displayLoc).Format(time.RFC3339),
			Available: s.Available,
		})
	}

	body, err := json.Marshal(items)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if h.cache != nil {
		h.cache.Set(ctx, cacheKey, body)
	}
	writeJSONBytes(w, http.StatusOK, body)
}

// NextAvailable serves GET /api/v1/public/slots/next: the earliest bookable
// slot within the policy's advance window, scanning day by day.
func (h *BookingHandler) NextAvailable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	barberID := strings.TrimSpace(r.URL.Query().Get("barber_id"))
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	tzName := strings.TrimSpace(r.URL.Query().Get("tz"))
	if shopID == "" || serviceID == "" {
		http.Error(w, "shop_id and service_id are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	svc, err := h.repo.GetService(ctx, shopID, serviceID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load service", http.StatusServiceUnavailable)
		return
	}

	pol, err := h.policy.BookingPolicy(ctx, shopID)
	if err != nil {
		http.Error(w, "failed to load booking policy", http.StatusServiceUnavailable)
		return
	}

	displayLoc := pol.Location()
	if tzName != "" {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			http.Error(w, "invalid tz", http.StatusBadRequest)
			return
		}
		displayLoc = loc
	}

	slot, err := h.aggregator(shopID).NextAvailable(ctx, slotQuery(barberID, time.Time{}, svc, pol))
	if err != nil {
		h.writeScheduleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, slotItem{
		BarberID:  slot.BarberID,
		StartTime: slot.Start.In(displayLoc).Format(time.RFC3339),
		EndTime:   slot.End.In(displayLoc).Format(time.RFC3339),
		Available: slot.Available,
	})
}

// Create serves POST /api/v1/public/book. The kernel check here is advisory;
// the transactional insert and the table's exclusion constraint are what
// prevent double-booking under concurrency.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.ShopID = strings.TrimSpace(req.ShopID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.BarberID = strings.TrimSpace(req.BarberID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.ShopID == "" || req.ServiceID == "" || req.BarberID == "" || req.CustomerName == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	svc, err := h.repo.GetService(ctx, req.ShopID, req.ServiceID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load service", http.StatusServiceUnavailable)
		return
	}

	pol, err := h.policy.BookingPolicy(ctx, req.ShopID)
	if err != nil {
		http.Error(w, "failed to load booking policy", http.StatusServiceUnavailable)
		return
	}

	appt := &model.Appointment{
		ShopID:              req.ShopID,
		ServiceID:           req.ServiceID,
		BarberID:            req.BarberID,
		CustomerName:        req.CustomerName,
		CustomerEmail:       strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:       strings.TrimSpace(req.CustomerPhone),
		StartTime:           startTime.UTC(),
		DurationMinutes:     svc.DurationMinutes,
		BufferBeforeMinutes: svc.BufferBeforeMinutes,
		BufferAfterMinutes:  svc.BufferAfterMinutes,
		Status:              string(schedule.StatusScheduled),
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, exists, err := h.repo.LockIdempotencyKey(ctx, tx, appt.ShopID, idempotencyKey)
		if err != nil {
			http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
			return
		}
		if exists && rec.StatusCode > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			if len(rec.ResponsePayload) > 0 {
				_, _ = w.Write(rec.ResponsePayload)
				return
			}
			_ = json.NewEncoder(w).Encode(createBookingResponse{AppointmentID: rec.AppointmentID})
			return
		}
	}

	if err := h.precheckBookable(ctx, req.ShopID, req.BarberID, startTime, svc, pol); err != nil {
		// Dependency errors are not finalized so the client can retry with the same key.
		if !errors.Is(err, schedule.ErrUnavailable) && idempotencyKey != "" {
			if h.finalizeIdempotencyError(ctx, tx, appt.ShopID, idempotencyKey, scheduleErrorStatus(err), err.Error()) {
				_ = tx.Commit(ctx)
				h.writeScheduleError(w, err)
				return
			}
		}
		h.writeScheduleError(w, err)
		return
	}

	// The exclusion constraint is the real guard against concurrent
	// double-booking; a conflict here aborts the transaction, so the
	// idempotency row is intentionally left unfinalized.
	id, err := h.repo.Create(ctx, tx, appt)
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	evtPayload, err := json.Marshal(map[string]any{
		"appointment_id": id,
		"shop_id":        appt.ShopID,
		"barber_id":      appt.BarberID,
		"service_id":     appt.ServiceID,
		"customer_email": appt.CustomerEmail,
		"customer_phone": appt.CustomerPhone,
		"start_time":     appt.StartTime.Format(time.RFC3339),
		"end_time":       appt.EndTime().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     outbox.EventAppointmentBooked,
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	respBody, err := json.Marshal(createBookingResponse{AppointmentID: id})
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if idempotencyKey != "" {
		if err := h.repo.FinalizeIdempotency(ctx, tx, appt.ShopID, idempotencyKey, id, http.StatusCreated, respBody); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	if h.cache != nil {
		h.cache.Invalidate(ctx, appt.ShopID)
	}

	writeJSONBytes(w, http.StatusCreated, respBody)
}

// Cancel serves POST /api/v1/appointments/cancel. Cancelling is idempotent:
// an already-cancelled appointment returns its original cancellation.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ShopID = strings.TrimSpace(req.ShopID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.ShopID == "" || req.AppointmentID == "" {
		http.Error(w, "shop_id and appointment_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetAppointmentForUpdate(ctx, tx, req.ShopID, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	if appt.Status == string(schedule.StatusCancelled) && appt.CancelledAt != nil {
		h.writeCancelResponse(w, appt.ID, appt.CancelledAt.UTC())
		return
	}
	if !schedule.Status(appt.Status).Blocks() {
		http.Error(w, "appointment cannot be cancelled", http.StatusConflict)
		return
	}

	cancelledAt, err := h.repo.CancelAppointment(ctx, tx, req.ShopID, appt.ID, req.Reason)
	if err != nil {
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}

	cancelPayload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"shop_id":        appt.ShopID,
		"barber_id":      appt.BarberID,
		"service_id":     appt.ServiceID,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":       appt.EndTime().UTC().Format(time.RFC3339),
		"cancelled_at":   cancelledAt.UTC().Format(time.RFC3339),
		"reason":         req.Reason,
	})
	if err != nil {
		http.Error(w, "failed to build cancellation event", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentCancelled,
		Payload:       cancelPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	if h.cache != nil {
		h.cache.Invalidate(ctx, req.ShopID)
	}
	h.writeCancelResponse(w, appt.ID, cancelledAt.UTC())
}

// List serves GET /api/v1/appointments, optionally narrowed to one barber.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	shopID := strings.TrimSpace(r.Header.Get("X-Shop-Id"))
	if shopID == "" {
		shopID = strings.TrimSpace(r.URL.Query().Get("shop_id"))
	}
	if shopID == "" {
		http.Error(w, "shop_id required", http.StatusBadRequest)
		return
	}
	barberID := strings.TrimSpace(r.URL.Query().Get("barber_id"))
	limit := clampLimit(r.URL.Query().Get("limit"), 50, 200)

	appts, err := h.repo.ListByShop(r.Context(), shopID, barberID, limit)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	items := make([]listAppointmentItem, 0, len(appts))
	for _, appt := range appts {
		item := listAppointmentItem{
			AppointmentID: appt.ID,
			BarberID:      appt.BarberID,
			ServiceID:     appt.ServiceID,
			StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
			EndTime:       appt.EndTime().UTC().Format(time.RFC3339),
			Status:        appt.Status,
			CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
		}
		if appt.CancelledAt != nil {
			item.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

// precheckBookable is the advisory write-path validation: the start must be a
// valid candidate under the working hours and policy, and the buffer-expanded
// interval must be conflict-free at read time.
func (h *BookingHandler) precheckBookable(ctx context.Context, shopID, barberID string, start time.Time, svc storage.ShopService, pol schedule.BookingPolicy) error {
	store := shopStore{repo: h.repo, shopID: shopID}

	rule, err := store.WorkingHours(ctx, barberID, start.In(pol.Location()).Weekday())
	if err != nil {
		if errors.Is(err, schedule.ErrNotFound) {
			return err
		}
		return schedule.WrapUnavailable(err)
	}

	duration := time.Duration(svc.DurationMinutes) * time.Minute
	candidates, err := schedule.ComputeCandidates(rule, start, duration, pol, h.clock())
	if err != nil {
		return err
	}
	found := false
	for _, c := range candidates {
		if c.Start.Equal(start) {
			found = true
			break
		}
	}
	if !found {
		return schedule.ErrInvalidDate
	}

	expanded := schedule.Interval{
		Start: start.UTC().Add(-time.Duration(svc.BufferBeforeMinutes) * time.Minute),
		End:   start.UTC().Add(duration + time.Duration(svc.BufferAfterMinutes)*time.Minute),
	}
	conflict, err := schedule.NewChecker(store).HasConflict(ctx, barberID, expanded)
	if err != nil {
		return err
	}
	if conflict {
		return errSlotTaken
	}
	return nil
}

var errSlotTaken = errors.New("time slot already booked")

func scheduleErrorStatus(err error) int {
	switch {
	case errors.Is(err, errSlotTaken):
		return http.StatusConflict
	case errors.Is(err, schedule.ErrInvalidDate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, schedule.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, schedule.ErrUnavailable):
		// Fail closed: an unreadable source is "cannot determine", not "available".
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *BookingHandler) writeScheduleError(w http.ResponseWriter, err error) {
	status := scheduleErrorStatus(err)
	switch status {
	case http.StatusConflict:
		http.Error(w, "time slot already booked", status)
	case http.StatusServiceUnavailable:
		http.Error(w, "availability temporarily unavailable", status)
	case http.StatusInternalServerError:
		http.Error(w, "internal error", status)
	default:
		http.Error(w, err.Error(), status)
	}
}

func (h *BookingHandler) writeCancelResponse(w http.ResponseWriter, appointmentID string, cancelledAt time.Time) {
	writeJSON(w, http.StatusOK, cancelBookingResponse{
		AppointmentID: appointmentID,
		Status:        string(schedule.StatusCancelled),
		CancelledAt:   cancelledAt.Format(time.RFC3339),
	})
}

func (h *BookingHandler) finalizeIdempotencyError(ctx context.Context, tx pgx.Tx, shopID, key string, statusCode int, msg string) bool {
	body, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return false
	}
	if err := h.repo.FinalizeIdempotency(ctx, tx, shopID, key, "", statusCode, body); err != nil {
		h.logger.Error("failed to finalize idempotency (error)", "err", err)
		return false
	}
	return true
}

func clampLimit(raw string, def, max int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	writeJSONBytes(w, status, body)
}

func writeJSONBytes(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
