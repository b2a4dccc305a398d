package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/directory"
)

type ProviderSummary struct {
	ID        string
	Name      string
	AvatarURL string
}

// AppointmentView is one row of a client's appointment list. Past and Cancelable are computed
// against the clock at read time.
type AppointmentView struct {
	ID         string
	Date       time.Time
	Past       bool
	Cancelable bool
	Provider   ProviderSummary
}

type ClientSummary struct {
	ID   string
	Name string
}

type ScheduleEntry struct {
	ID     string
	Date   time.Time
	Past   bool
	Client ClientSummary
}

// ListAppointments returns one page (1-based) of userID's active appointments, earliest first.
func (s *Service) ListAppointments(ctx context.Context, userID string, page int) ([]AppointmentView, error) {
	appts, err := s.store.ListByClient(ctx, userID, page, s.pageSize)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	names := s.resolver()
	views := make([]AppointmentView, 0, len(appts))
	for _, a := range appts {
		provider := names(ctx, a.ProviderID)
		views = append(views, AppointmentView{
			ID:         a.ID,
			Date:       a.Date.In(s.loc),
			Past:       a.IsPast(now),
			Cancelable: a.IsCancelable(now),
			Provider: ProviderSummary{
				ID:        a.ProviderID,
				Name:      provider.Name,
				AvatarURL: provider.AvatarURL,
			},
		})
	}
	return views, nil
}

// ListProviderSchedule returns providerID's active appointments on the calendar day of day in the
// reference timezone, earliest first. The caller must be a provider.
func (s *Service) ListProviderSchedule(ctx context.Context, providerID string, day time.Time) ([]ScheduleEntry, error) {
	if err := s.requireProvider(ctx, providerID); err != nil {
		return nil, err
	}

	start, end := clock.DayBounds(day, s.loc)
	appts, err := s.store.ListByProviderBetween(ctx, providerID, start, end)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	names := s.resolver()
	entries := make([]ScheduleEntry, 0, len(appts))
	for _, a := range appts {
		client := names(ctx, a.ClientID)
		entries = append(entries, ScheduleEntry{
			ID:     a.ID,
			Date:   a.Date.In(s.loc),
			Past:   a.IsPast(now),
			Client: ClientSummary{ID: a.ClientID, Name: client.Name},
		})
	}
	return entries, nil
}

// ProviderDayAvailability lists the provider's bookable hours for the day of day, within the
// configured opening window.
func (s *Service) ProviderDayAvailability(ctx context.Context, providerID string, day time.Time) ([]availability.Slot, error) {
	provider, err := s.users.FindByID(ctx, providerID)
	if err != nil && !errors.Is(err, directory.ErrUserNotFound) {
		return nil, fmt.Errorf("lookup provider: %w", err)
	}
	if err != nil || !provider.Provider {
		return nil, ErrInvalidProvider
	}

	y, m, d := day.In(s.loc).Date()
	open := time.Date(y, m, d, s.openHour, 0, 0, 0, s.loc)
	closing := time.Date(y, m, d, s.closeHour, 0, 0, 0, s.loc)

	appts, err := s.store.ListByProviderBetween(ctx, providerID, open, closing)
	if err != nil {
		return nil, err
	}
	taken := make([]time.Time, 0, len(appts))
	for _, a := range appts {
		taken = append(taken, a.Date)
	}
	return availability.DaySlots(open, closing, taken, s.clock.Now()), nil
}

func (s *Service) requireProvider(ctx context.Context, userID string) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil && !errors.Is(err, directory.ErrUserNotFound) {
		return fmt.Errorf("lookup requester: %w", err)
	}
	if err != nil || !u.Provider {
		return ErrNotProvider
	}
	return nil
}

// resolver returns a per-call memoized user lookup. Missing users resolve to an empty profile.
func (s *Service) resolver() func(ctx context.Context, id string) directory.User {
	seen := make(map[string]directory.User)
	return func(ctx context.Context, id string) directory.User {
		if u, ok := seen[id]; ok {
			return u
		}
		u, err := s.users.FindByID(ctx, id)
		if err != nil {
			s.logger.Warn("user lookup failed", "user_id", id, "err", err)
			u = directory.User{ID: id}
		}
		seen[id] = u
		return u
	}
}
