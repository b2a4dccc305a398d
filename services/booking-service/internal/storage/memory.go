package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/model"
)

// MemoryStore keeps appointments in process. The slot check and the insert in Create happen
// under one lock.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]model.Appointment
	order []string
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]model.Appointment),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, clientID, providerID string, date time.Time) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.findActiveLocked(providerID, date); found {
		return model.Appointment{}, ErrConflict
	}
	appt := model.Appointment{
		ID:         uuid.NewString(),
		ClientID:   clientID,
		ProviderID: providerID,
		Date:       date,
		State:      model.Active(),
		CreatedAt:  s.now(),
	}
	s.byID[appt.ID] = appt
	s.order = append(s.order, appt.ID)
	return appt, nil
}

func (s *MemoryStore) FetchByID(_ context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appt, ok := s.byID[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

func (s *MemoryStore) FindActiveAt(_ context.Context, providerID string, date time.Time) (model.Appointment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appt, found := s.findActiveLocked(providerID, date)
	return appt, found, nil
}

func (s *MemoryStore) ListByClient(_ context.Context, clientID string, page, pageSize int) ([]model.Appointment, error) {
	offset, limit := PageOffset(page, pageSize)

	all := s.filter(func(a model.Appointment) bool {
		return a.ClientID == clientID && a.IsActive()
	})
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *MemoryStore) ListByProviderBetween(_ context.Context, providerID string, start, end time.Time) ([]model.Appointment, error) {
	return s.filter(func(a model.Appointment) bool {
		return a.ProviderID == providerID && a.IsActive() && !a.Date.Before(start) && a.Date.Before(end)
	}), nil
}

func (s *MemoryStore) MarkCanceled(_ context.Context, id string, at time.Time) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.byID[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	canceled, err := appt.Cancel(at)
	if err != nil {
		return model.Appointment{}, err
	}
	s.byID[id] = canceled
	return canceled, nil
}

func (s *MemoryStore) findActiveLocked(providerID string, date time.Time) (model.Appointment, bool) {
	for _, appt := range s.byID {
		if appt.ProviderID == providerID && appt.IsActive() && appt.Date.Equal(date) {
			return appt, true
		}
	}
	return model.Appointment{}, false
}

// filter returns matching appointments ordered by date, ties broken by insertion order.
func (s *MemoryStore) filter(keep func(model.Appointment) bool) []model.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Appointment
	for _, id := range s.order {
		if appt := s.byID[id]; keep(appt) {
			out = append(out, appt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

var _ Store = (*MemoryStore)(nil)
