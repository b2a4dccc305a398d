// Package booking implements the appointment use cases: listing, booking, cancelling and the
// provider's daily schedule.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/hourbook/libs/otel"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/directory"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/jobs"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidProvider = errors.New("appointments can only be booked with providers")
	ErrSelfBooking     = errors.New("booking an appointment with yourself is not allowed")
	ErrPastDate        = errors.New("past dates are not permitted")
	ErrSlotUnavailable = errors.New("appointment date is not available")
	ErrNotProvider     = errors.New("only providers have a schedule")

	ErrNotFound        = storage.ErrNotFound
	ErrAlreadyCanceled = storage.ErrAlreadyCanceled
	ErrNotOwner        = policy.ErrNotOwner
	ErrTooLate         = policy.ErrTooLate
)

const jobPayloadTimeout = 5 * time.Second

// Notifier tells a provider about a new booking. It must not fail the booking.
type Notifier interface {
	NotifyNewBooking(ctx context.Context, providerID, clientName string, slot time.Time)
}

// Recorder receives outcome labels for metrics.
type Recorder interface {
	Booking(outcome string)
	Cancellation(outcome string)
}

type Config struct {
	Location *time.Location
	PageSize int
	// Schedule window for provider day listings, in whole hours of the reference day.
	OpenHour  int
	CloseHour int
}

type Service struct {
	store     storage.Store
	users     directory.Directory
	clock     clock.Clock
	slots     *availability.Checker
	notifier  Notifier
	queue     jobs.Queue
	recorder  Recorder
	logger    *slog.Logger
	tracer    trace.Tracer
	loc       *time.Location
	pageSize  int
	openHour  int
	closeHour int
}

func NewService(store storage.Store, users directory.Directory, clk clock.Clock, notifier Notifier, queue jobs.Queue, recorder Recorder, logger *slog.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = storage.DefaultPageSize
	}
	if cfg.OpenHour < 0 || cfg.OpenHour > 23 {
		cfg.OpenHour = 8
	}
	if cfg.CloseHour <= cfg.OpenHour || cfg.CloseHour > 24 {
		cfg.CloseHour = 20
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		store:     store,
		users:     users,
		clock:     clk,
		slots:     availability.NewChecker(store),
		notifier:  notifier,
		queue:     queue,
		recorder:  recorder,
		logger:    logger,
		tracer:    otelx.Tracer("hourbook/booking"),
		loc:       cfg.Location,
		pageSize:  cfg.PageSize,
		openHour:  cfg.OpenHour,
		closeHour: cfg.CloseHour,
	}
}

// BookAppointment validates and books the hour containing date for requesterID with providerID.
// Checks run in order and stop at the first failure: provider, self-booking, past date, slot.
func (s *Service) BookAppointment(ctx context.Context, requesterID, providerID string, date time.Time) (model.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "booking.BookAppointment", trace.WithAttributes(
		attribute.String("provider_id", providerID),
	))
	defer span.End()

	appt, err := s.book(ctx, requesterID, providerID, date)
	s.recorder.Booking(outcome(err))
	if err != nil {
		span.RecordError(err)
		return model.Appointment{}, err
	}
	s.logger.Info("appointment booked", "appointment_id", appt.ID, "client_id", requesterID, "provider_id", providerID, "date", appt.Date)

	s.notifyProvider(ctx, requesterID, appt)
	return appt, nil
}

func (s *Service) book(ctx context.Context, requesterID, providerID string, date time.Time) (model.Appointment, error) {
	provider, err := s.users.FindByID(ctx, providerID)
	if err != nil && !errors.Is(err, directory.ErrUserNotFound) {
		return model.Appointment{}, fmt.Errorf("lookup provider: %w", err)
	}
	if err != nil || !provider.Provider {
		return model.Appointment{}, ErrInvalidProvider
	}

	if providerID == requesterID {
		return model.Appointment{}, ErrSelfBooking
	}

	hour := clock.NormalizeToHour(date, s.loc)
	if clock.IsPast(hour, s.clock.Now()) {
		return model.Appointment{}, ErrPastDate
	}

	taken, err := s.slots.HasConflict(ctx, providerID, hour)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("check slot: %w", err)
	}
	if taken {
		return model.Appointment{}, ErrSlotUnavailable
	}

	appt, err := s.store.Create(ctx, requesterID, providerID, hour)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return model.Appointment{}, ErrSlotUnavailable
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Service) notifyProvider(ctx context.Context, clientID string, appt model.Appointment) {
	client, err := s.users.FindByID(ctx, clientID)
	if err != nil {
		s.logger.Error("provider notification skipped: client lookup failed", "appointment_id", appt.ID, "client_id", clientID, "err", err)
		return
	}
	s.notifier.NotifyNewBooking(ctx, appt.ProviderID, client.Name, appt.Date)
}

// CancelAppointment cancels appointmentID on behalf of requesterID and queues the cancellation
// mail. The cancellation stands even if the mail cannot be queued.
func (s *Service) CancelAppointment(ctx context.Context, requesterID, appointmentID string) (model.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "booking.CancelAppointment", trace.WithAttributes(
		attribute.String("appointment_id", appointmentID),
	))
	defer span.End()

	appt, err := s.cancel(ctx, requesterID, appointmentID)
	s.recorder.Cancellation(outcome(err))
	if err != nil {
		span.RecordError(err)
		return model.Appointment{}, err
	}
	s.logger.Info("appointment canceled", "appointment_id", appt.ID, "client_id", requesterID)

	s.enqueueCancellationMail(ctx, appt)
	return appt, nil
}

func (s *Service) cancel(ctx context.Context, requesterID, appointmentID string) (model.Appointment, error) {
	appt, err := s.store.FetchByID(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}

	now := s.clock.Now()
	if !appt.IsActive() {
		if appt.ClientID != requesterID {
			return model.Appointment{}, ErrNotOwner
		}
		return model.Appointment{}, ErrAlreadyCanceled
	}
	if err := policy.CanCancel(appt, requesterID, now); err != nil {
		return model.Appointment{}, err
	}
	return s.store.MarkCanceled(ctx, appt.ID, now)
}

// enqueueCancellationMail runs after the cancellation committed, so it outlives the request.
func (s *Service) enqueueCancellationMail(ctx context.Context, appt model.Appointment) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobPayloadTimeout)
	defer cancel()

	canceledAt, _ := appt.State.CanceledAt()
	payload := jobs.CancellationMail{
		AppointmentID: appt.ID,
		Date:          appt.Date,
		CanceledAt:    canceledAt,
		Client:        s.party(ctx, appt.ClientID),
		Provider:      s.party(ctx, appt.ProviderID),
	}
	if err := s.queue.Enqueue(ctx, jobs.KindCancellationMail, payload); err != nil {
		s.logger.Error("cancellation mail not queued", "appointment_id", appt.ID, "err", err)
	}
}

// party resolves a user for a job payload. A failed lookup still yields the id so the worker can
// resolve it later.
func (s *Service) party(ctx context.Context, userID string) jobs.Party {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Warn("user lookup for job payload failed", "user_id", userID, "err", err)
		return jobs.Party{ID: userID}
	}
	return jobs.Party{ID: u.ID, Name: u.Name, Email: u.Email}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidProvider):
		return "invalid_provider"
	case errors.Is(err, ErrSelfBooking):
		return "self_booking"
	case errors.Is(err, ErrPastDate):
		return "past_date"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrTooLate):
		return "too_late"
	case errors.Is(err, ErrAlreadyCanceled):
		return "already_canceled"
	default:
		return "error"
	}
}

type nopRecorder struct{}

func (nopRecorder) Booking(string)      {}
func (nopRecorder) Cancellation(string) {}
