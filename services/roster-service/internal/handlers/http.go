package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bookedbarber/scheduling/libs/auth"
	"github.com/bookedbarber/scheduling/services/roster-service/internal/outbox"
	"github.com/bookedbarber/scheduling/services/roster-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	repo      *storage.Repository
	outbox    *outbox.Repository
	logger    *slog.Logger
	jwtSecret string
	tokenTTL  time.Duration
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, jwtSecret string, tokenTTL time.Duration) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = 1 * time.Hour
	}
	return &Handler{
		repo:      repo,
		outbox:    outboxRepo,
		logger:    logger,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

func shopIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Shop-Id"))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Password = strings.TrimSpace(req.Password)
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	admin, err := h.repo.GetAdminByEmail(r.Context(), req.Email)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to lookup admin", http.StatusInternalServerError)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	now := time.Now()
	token, err := auth.SignHS256(auth.Claims{
		Sub:    admin.ID,
		ShopID: admin.ShopID,
		Role:   admin.Role,
		Iat:    now.Unix(),
		Exp:    now.Add(h.tokenTTL).Unix(),
	}, h.jwtSecret)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
	})
}

// RequireAdmin verifies the bearer token and pins X-Shop-Id to the token's
// shop claim so downstream handlers never trust a client-supplied shop id.
func (h *Handler) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := auth.ParseAndVerifyHS256(token, h.jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if claims.ShopID == "" {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		r.Header.Set("X-Shop-Id", claims.ShopID)
		next(w, r)
	}
}

func (h *Handler) GetShop(w http.ResponseWriter, r *http.Request) {
	shopID := shopIDFromHeader(r)
	if shopID == "" {
		http.Error(w, "missing X-Shop-Id", http.StatusBadRequest)
		return
	}

	s, err := h.repo.GetOrCreateShop(r.Context(), shopID)
	if err != nil {
		http.Error(w, "failed to load shop", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"shop_id":  s.ShopID,
		"name":     s.Name,
		"timezone": s.Timezone,
	})
}

func (h *Handler) UpdateShop(w http.ResponseWriter, r *http.Request) {
	shopID := shopIDFromHeader(r)
	if shopID == "" {
		http.Error(w, "missing X-Shop-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name     string `json:"name"`
		Timezone string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		http.Error(w, "invalid timezone", http.StatusBadRequest)
		return
	}

	if err := h.repo.UpdateShop(r.Context(), shopID, req.Name, req.Timezone); err != nil {
		http.Error(w, "failed to update shop", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	shopID := shopIDFromHeader(r)
	if shopID == "" {
		http.Error(w, "missing X-Shop-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name                string  `json:"name"`
		DurationMins        int     `json:"duration_minutes"`
		BufferBeforeMinutes int     `json:"buffer_before_minutes"`
		BufferAfterMinutes  int     `json:"buffer_after_minutes"`
		Price               float64 `json:"price"`
		Description         string  `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" || req.DurationMins <= 0 {
		http.Error(w, "name and duration_minutes required", http.StatusBadRequest)
		return
	}
	if req.BufferBeforeMinutes < 0 || req.BufferAfterMinutes < 0 {
		http.Error(w, "buffers must be non-negative", http.StatusBadRequest)
		return
	}

	id, err := h.repo.CreateService(r.Context(), storage.ShopService{
		ShopID:              shopID,
		Name:                req.Name,
		DurationMins:        req.DurationMins,
		BufferBeforeMinutes: req.BufferBeforeMinutes,
		BufferAfterMinutes:  req.BufferAfterMinutes,
		Price:               strconv.FormatFloat(req.Price, 'f', 2, 64),
		Description:         req.Description,
	})
	if err != nil {
		http.Error(w, "failed to create service", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id": id,
	})
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	shopID := shopIDFromHeader(r)
	if shopID == "" {
		http.Error(w, "missing X-Shop-Id", http.StatusBadRequest)
		return
	}

	services, err := h.repo.ListServices(r.Context(), shopID, 100)
	if err != nil {
		http.Error(w, "failed to list services", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(services)
}

func (h *Handler) CreateBarber(w http.ResponseWriter, r *http.Request) {
	shopID := shopIDFromHeader(r)
	if shopID == "" {
		http.Error(w, "missing X-Shop-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name     string `json:"name"`
		IsActive *bool  `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	id, err := h.repo.CreateBarber(r.Context(), shopID, req.Name, isActive)
	if err != nil {
		http.Error(w, "failed to create barber", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id": id,
	})
}

func (h *Handler) ListBarbers(w http.ResponseWriter, r *http.Request) {
	shopID := shopIDFromHeader(r)
	if shopID == "" {
		http.Error(w, "missing X-Shop-Id", http.StatusBadRequest)
		return
	}

	barbers, err := h.repo.ListBarbers(r.Context(), shopID, 100)
	if err != nil {
		http.Error(w, "failed to list barbers", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(barbers)
}

func (h *Handler) SetBarberActive(w http.ResponseWriter, r *http.Request) {
	shopID := shopIDFromHeader(r)
	if shopID == "" {
		http.Error(w, "missing X-Shop-Id", http.StatusBadRequest)
		return
	}

	barberID := strings.TrimSpace(r.URL.Query().Get("barber_id"))
	if barberID == "" {
		http.Error(w, "barber_id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		IsActive bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	if err := h.repo.SetBarberActive(r.Context(), shopID, barberID, req.IsActive); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "barber not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update barber", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListWorkingHours(w http.ResponseWriter, r *http.Request) {
	shopID := shopIDFromHeader(r)
	if shopID == "" {
		http.Error(w, "missing X-Shop-Id", http.StatusBadRequest)
		return
	}

	barberID := strings.TrimSpace(r.URL.Query().Get("barber_id"))
	if barberID == "" {
		http.Error(w, "barber_id is required", http.StatusBadRequest)
		return
	}

	wh, err := h.repo.ListWorkingHours(r.Context(), shopID, barberID)
	if err != nil {
		http.Error(w, "failed to list working hours", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(wh)
}

func (h *Handler) UpsertWorkingHours(w http.ResponseWriter, r *http.Request) {
	shopID := shopIDFromHeader(r)
	if shopID == "" {
		http.Error(w, "missing X-Shop-Id", http.StatusBadRequest)
		return
	}

	barberID := strings.TrimSpace(r.URL.Query().Get("barber_id"))
	if barberID == "" {
		http.Error(w, "barber_id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Weekday     int  `json:"weekday"`
		IsWorking   bool `json:"is_working"`
		StartMinute int  `json:"start_minute"`
		EndMinute   int  `json:"end_minute"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		http.Error(w, "weekday must be between 0 and 6", http.StatusBadRequest)
		return
	}

	startMin := req.StartMinute
	endMin := req.EndMinute
	if !req.IsWorking {
		startMin = 0
		endMin = 0
	} else {
		if startMin < 0 || startMin >= 1440 || endMin <= 0 || endMin > 1440 || startMin >= endMin {
			http.Error(w, "invalid start_minute/end_minute", http.StatusBadRequest)
			return
		}
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.repo.UpsertWorkingHours(ctx, tx, shopID, barberID, req.Weekday, req.IsWorking, startMin, endMin); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "barber not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to upsert working hours", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"shop_id":      shopID,
		"barber_id":    barberID,
		"weekday":      req.Weekday,
		"is_working":   req.IsWorking,
		"start_minute": startMin,
		"end_minute":   endMin,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "barber",
		AggregateID:   barberID,
		EventType:     outbox.EventWorkingHoursUpdated,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	shopID := shopIDFromHeader(r)
	if shopID == "" {
		http.Error(w, "missing X-Shop-Id", http.StatusBadRequest)
		return
	}

	p, err := h.repo.GetBookingPolicy(r.Context(), shopID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "no policy configured", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load policy", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"shop_id":                p.ShopID,
		"min_lead_minutes":       p.MinLeadMinutes,
		"max_advance_days":       p.MaxAdvanceDays,
		"same_day_cutoff_minute": p.SameDayCutoffMinute,
		"slot_increment_minutes": p.SlotIncrementMins,
	})
}

func (h *Handler) UpsertPolicy(w http.ResponseWriter, r *http.Request) {
	shopID := shopIDFromHeader(r)
	if shopID == "" {
		http.Error(w, "missing X-Shop-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		MinLeadMinutes      int `json:"min_lead_minutes"`
		MaxAdvanceDays      int `json:"max_advance_days"`
		SameDayCutoffMinute int `json:"same_day_cutoff_minute"`
		SlotIncrementMins   int `json:"slot_increment_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.MinLeadMinutes < 0 {
		http.Error(w, "min_lead_minutes must be non-negative", http.StatusBadRequest)
		return
	}
	if req.MaxAdvanceDays < 1 {
		http.Error(w, "max_advance_days must be at least 1", http.StatusBadRequest)
		return
	}
	// -1 disables the same-day cutoff entirely.
	if req.SameDayCutoffMinute < -1 || req.SameDayCutoffMinute > 1439 {
		http.Error(w, "same_day_cutoff_minute must be -1 or between 0 and 1439", http.StatusBadRequest)
		return
	}
	if req.SlotIncrementMins <= 0 || req.SlotIncrementMins > 1440 {
		http.Error(w, "invalid slot_increment_minutes", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.repo.UpsertBookingPolicy(ctx, tx, storage.BookingPolicy{
		ShopID:              shopID,
		MinLeadMinutes:      req.MinLeadMinutes,
		MaxAdvanceDays:      req.MaxAdvanceDays,
		SameDayCutoffMinute: req.SameDayCutoffMinute,
		SlotIncrementMins:   req.SlotIncrementMins,
	}); err != nil {
		http.Error(w, "failed to upsert policy", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"shop_id":                shopID,
		"min_lead_minutes":       req.MinLeadMinutes,
		"max_advance_days":       req.MaxAdvanceDays,
		"same_day_cutoff_minute": req.SameDayCutoffMinute,
		"slot_increment_minutes": req.SlotIncrementMins,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "shop",
		AggregateID:   shopID,
		EventType:     outbox.EventPolicyUpdated,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
