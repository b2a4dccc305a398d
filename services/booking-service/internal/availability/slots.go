package availability

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/model"
)

// Lookup finds the active appointment occupying an exact provider hour.
type Lookup interface {
	FindActiveAt(ctx context.Context, providerID string, date time.Time) (model.Appointment, bool, error)
}

// Checker answers whether a provider hour is taken. The answer is advisory; exclusivity is
// decided when the store inserts.
type Checker struct {
	lookup Lookup
}

func NewChecker(lookup Lookup) *Checker {
	return &Checker{lookup: lookup}
}

func (c *Checker) HasConflict(ctx context.Context, providerID string, hour time.Time) (bool, error) {
	_, found, err := c.lookup.FindActiveAt(ctx, providerID, hour)
	if err != nil {
		return false, err
	}
	return found, nil
}

// Slot is one bookable hour of a provider's day.
type Slot struct {
	Time      time.Time
	Available bool
}

// DaySlots lists every hour start within [windowStart, windowEnd). A slot is available when it
// does not start before now and no active appointment occupies it.
//
// All times are expected to be hour aligned in the reference location.
func DaySlots(windowStart, windowEnd time.Time, taken []time.Time, now time.Time) []Slot {
	if !windowEnd.After(windowStart) {
		return nil
	}

	busy := make(map[int64]struct{}, len(taken))
	for _, t := range taken {
		busy[t.Unix()] = struct{}{}
	}

	var slots []Slot
	for t := windowStart; t.Before(windowEnd); t = t.Add(time.Hour) {
		_, occupied := busy[t.Unix()]
		slots = append(slots, Slot{Time: t, Available: !occupied && !t.Before(now)})
	}
	return slots
}
