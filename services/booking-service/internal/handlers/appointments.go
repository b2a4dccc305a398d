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

	"github.com/md-rashed-zaman/hourbook/libs/httpx"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/model"
)

// Service is the slice of booking.Service the HTTP layer calls.
type Service interface {
	ListAppointments(ctx context.Context, userID string, page int) ([]booking.AppointmentView, error)
	BookAppointment(ctx context.Context, requesterID, providerID string, date time.Time) (model.Appointment, error)
	CancelAppointment(ctx context.Context, requesterID, appointmentID string) (model.Appointment, error)
	ListProviderSchedule(ctx context.Context, providerID string, day time.Time) ([]booking.ScheduleEntry, error)
	ProviderDayAvailability(ctx context.Context, providerID string, day time.Time) ([]availability.Slot, error)
}

type AppointmentHandler struct {
	svc    Service
	logger *slog.Logger
	loc    *time.Location
}

func NewAppointmentHandler(svc Service, logger *slog.Logger, loc *time.Location) *AppointmentHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &AppointmentHandler{svc: svc, logger: logger, loc: loc}
}

// Wrap decorates a route's handler. The pattern is passed so callers can label metrics or pick
// per-route middleware.
type Wrap func(pattern string, h http.Handler) http.Handler

func (h *AppointmentHandler) Register(mux *http.ServeMux, wrap Wrap) {
	if wrap == nil {
		wrap = func(_ string, h http.Handler) http.Handler { return h }
	}
	routes := []struct {
		pattern string
		fn      http.HandlerFunc
	}{
		{"GET /appointments", h.List},
		{"POST /appointments", h.Create},
		{"DELETE /appointments/{id}", h.Cancel},
		{"GET /schedule", h.Schedule},
		{"GET /providers/{id}/availability", h.Availability},
	}
	for _, r := range routes {
		mux.Handle(r.pattern, wrap(r.pattern, r.fn))
	}
}

type createAppointmentRequest struct {
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
}

type appointmentItem struct {
	ID         string  `json:"id"`
	ClientID   string  `json:"client_id"`
	ProviderID string  `json:"provider_id"`
	Date       string  `json:"date"`
	CanceledAt *string `json:"canceled_at"`
}

type providerItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type listAppointmentItem struct {
	ID         string       `json:"id"`
	Date       string       `json:"date"`
	Past       bool         `json:"past"`
	Cancelable bool         `json:"cancelable"`
	Provider   providerItem `json:"provider"`
}

type clientItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type scheduleItem struct {
	ID     string     `json:"id"`
	Date   string     `json:"date"`
	Past   bool       `json:"past"`
	Client clientItem `json:"client"`
}

type slotItem struct {
	Time      string `json:"time"`
	Value     string `json:"value"`
	Available bool   `json:"available"`
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid page")
			return
		}
		page = n
	}

	views, err := h.svc.ListAppointments(r.Context(), httpx.RequesterFromContext(r.Context()), page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]listAppointmentItem, 0, len(views))
	for _, v := range views {
		items = append(items, listAppointmentItem{
			ID:         v.ID,
			Date:       h.format(v.Date),
			Past:       v.Past,
			Cancelable: v.Cancelable,
			Provider: providerItem{
				ID:        v.Provider.ID,
				Name:      v.Provider.Name,
				AvatarURL: v.Provider.AvatarURL,
			},
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	if req.ProviderID == "" || strings.TrimSpace(req.Date) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "provider_id and date required")
		return
	}
	date, err := time.Parse(time.RFC3339, strings.TrimSpace(req.Date))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date")
		return
	}

	appt, err := h.svc.BookAppointment(r.Context(), httpx.RequesterFromContext(r.Context()), req.ProviderID, date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"appointment": h.item(appt)})
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointment id required")
		return
	}

	appt, err := h.svc.CancelAppointment(r.Context(), httpx.RequesterFromContext(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointment": h.item(appt)})
}

func (h *AppointmentHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	day, ok := h.parseDay(w, r)
	if !ok {
		return
	}

	entries, err := h.svc.ListProviderSchedule(r.Context(), httpx.RequesterFromContext(r.Context()), day)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]scheduleItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, scheduleItem{
			ID:     e.ID,
			Date:   h.format(e.Date),
			Past:   e.Past,
			Client: clientItem{ID: e.Client.ID, Name: e.Client.Name},
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

func (h *AppointmentHandler) Availability(w http.ResponseWriter, r *http.Request) {
	day, ok := h.parseDay(w, r)
	if !ok {
		return
	}

	slots, err := h.svc.ProviderDayAvailability(r.Context(), r.PathValue("id"), day)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		t := s.Time.In(h.loc)
		items = append(items, slotItem{
			Time:      t.Format("15:04"),
			Value:     h.format(t),
			Available: s.Available,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"slots": items})
}

// parseDay reads ?date= as YYYY-MM-DD in the reference timezone, or as a full RFC3339 instant.
func (h *AppointmentHandler) parseDay(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		httpx.WriteError(w, http.StatusBadRequest, "date required")
		return time.Time{}, false
	}
	if day, err := time.ParseInLocation(time.DateOnly, raw, h.loc); err == nil {
		return day, true
	}
	if day, err := time.Parse(time.RFC3339, raw); err == nil {
		return day, true
	}
	httpx.WriteError(w, http.StatusBadRequest, "invalid date")
	return time.Time{}, false
}

func (h *AppointmentHandler) item(appt model.Appointment) appointmentItem {
	item := appointmentItem{
		ID:         appt.ID,
		ClientID:   appt.ClientID,
		ProviderID: appt.ProviderID,
		Date:       h.format(appt.Date),
	}
	if at, ok := appt.State.CanceledAt(); ok {
		s := h.format(at)
		item.CanceledAt = &s
	}
	return item
}

func (h *AppointmentHandler) format(t time.Time) string {
	return t.In(h.loc).Format(time.RFC3339)
}

func (h *AppointmentHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		httpx.WriteError(w, status, "internal error")
		return
	}
	httpx.WriteError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, booking.ErrInvalidProvider),
		errors.Is(err, booking.ErrNotOwner),
		errors.Is(err, booking.ErrTooLate),
		errors.Is(err, booking.ErrNotProvider):
		return http.StatusUnauthorized
	case errors.Is(err, booking.ErrSelfBooking),
		errors.Is(err, booking.ErrPastDate),
		errors.Is(err, booking.ErrSlotUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrAlreadyCanceled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
