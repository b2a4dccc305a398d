package storage

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/model"
)

const DefaultPageSize = 20

var (
	ErrNotFound        = errors.New("appointment not found")
	ErrConflict        = errors.New("provider slot already taken")
	ErrAlreadyCanceled = model.ErrAlreadyCanceled
)

// Store persists appointments. Create is the only place slot exclusivity is decided: it must
// reject a second active appointment for the same provider and hour even under concurrent calls.
type Store interface {
	Create(ctx context.Context, clientID, providerID string, date time.Time) (model.Appointment, error)
	FetchByID(ctx context.Context, id string) (model.Appointment, error)
	FindActiveAt(ctx context.Context, providerID string, date time.Time) (model.Appointment, bool, error)
	// ListByClient returns one page of the client's active appointments, earliest first.
	ListByClient(ctx context.Context, clientID string, page, pageSize int) ([]model.Appointment, error)
	// ListByProviderBetween returns active appointments with start <= date < end, earliest first.
	ListByProviderBetween(ctx context.Context, providerID string, start, end time.Time) ([]model.Appointment, error)
	// MarkCanceled sets canceled_at when it is still null. A repeated call fails with
	// ErrAlreadyCanceled and keeps the original timestamp.
	MarkCanceled(ctx context.Context, id string, at time.Time) (model.Appointment, error)
}

// PageOffset converts a 1-based page into a row offset. Pages below 1 read as the first page;
// pages past the largest representable offset are clamped to it and read as empty.
func PageOffset(page, pageSize int) (offset, limit int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	if maxPage := math.MaxInt/pageSize + 1; page > maxPage {
		page = maxPage
	}
	return (page - 1) * pageSize, pageSize
}
