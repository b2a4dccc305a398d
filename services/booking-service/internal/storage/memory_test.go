package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var slot = time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)

func TestMemoryStore_ConcurrentCreateKeepsSlotExclusive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const clients = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	created, conflicts := 0, 0
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Create(ctx, fmt.Sprintf("client-%d", i), "provider-1", slot)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, clients-1, conflicts)
}

func TestMemoryStore_CancelFreesSlot(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	appt, err := store.Create(ctx, "c1", "p1", slot)
	require.NoError(t, err)

	_, found, err := store.FindActiveAt(ctx, "p1", slot)
	require.NoError(t, err)
	require.True(t, found)

	canceledAt := slot.Add(-5 * time.Hour)
	canceled, err := store.MarkCanceled(ctx, appt.ID, canceledAt)
	require.NoError(t, err)
	at, ok := canceled.State.CanceledAt()
	require.True(t, ok)
	assert.True(t, at.Equal(canceledAt))

	_, found, err = store.FindActiveAt(ctx, "p1", slot)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = store.Create(ctx, "c2", "p1", slot)
	assert.NoError(t, err)
}

func TestMemoryStore_MarkCanceledTwice(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	appt, err := store.Create(ctx, "c1", "p1", slot)
	require.NoError(t, err)

	first := slot.Add(-10 * time.Hour)
	_, err = store.MarkCanceled(ctx, appt.ID, first)
	require.NoError(t, err)

	_, err = store.MarkCanceled(ctx, appt.ID, first.Add(time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyCanceled)

	got, err := store.FetchByID(ctx, appt.ID)
	require.NoError(t, err)
	at, _ := got.State.CanceledAt()
	assert.True(t, at.Equal(first), "canceled_at must keep the first value")

	_, err = store.MarkCanceled(ctx, "missing", first)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListByClientPaginates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// Insert out of order to prove the listing is sorted by date.
	for i := 24; i >= 0; i-- {
		_, err := store.Create(ctx, "c1", fmt.Sprintf("p-%d", i), slot.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}
	other, err := store.Create(ctx, "c2", "p-x", slot)
	require.NoError(t, err)
	canceled, err := store.Create(ctx, "c1", "p-y", slot.Add(-time.Hour))
	require.NoError(t, err)
	_, err = store.MarkCanceled(ctx, canceled.ID, slot.Add(-48*time.Hour))
	require.NoError(t, err)

	page1, err := store.ListByClient(ctx, "c1", 1, DefaultPageSize)
	require.NoError(t, err)
	require.Len(t, page1, 20)
	assert.True(t, page1[0].Date.Equal(slot))
	for i := 1; i < len(page1); i++ {
		assert.True(t, page1[i-1].Date.Before(page1[i].Date))
	}

	page2, err := store.ListByClient(ctx, "c1", 2, DefaultPageSize)
	require.NoError(t, err)
	require.Len(t, page2, 5)
	assert.True(t, page2[4].Date.Equal(slot.Add(24*time.Hour)))

	page0, err := store.ListByClient(ctx, "c1", 0, DefaultPageSize)
	require.NoError(t, err)
	assert.Equal(t, page1, page0, "page below 1 reads as the first page")

	page3, err := store.ListByClient(ctx, "c1", 3, DefaultPageSize)
	require.NoError(t, err)
	assert.Empty(t, page3)

	for _, a := range append(page1, page2...) {
		assert.NotEqual(t, other.ID, a.ID)
		assert.NotEqual(t, canceled.ID, a.ID)
	}
}

func TestMemoryStore_ListByProviderBetween(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	_, err := store.Create(ctx, "c1", "p1", day.Add(14*time.Hour))
	require.NoError(t, err)
	_, err = store.Create(ctx, "c2", "p1", day.Add(9*time.Hour))
	require.NoError(t, err)
	_, err = store.Create(ctx, "c3", "p1", day.Add(24*time.Hour)) // next day
	require.NoError(t, err)
	_, err = store.Create(ctx, "c4", "p2", day.Add(9*time.Hour))
	require.NoError(t, err)

	got, err := store.ListByProviderBetween(ctx, "p1", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c2", got[0].ClientID)
	assert.Equal(t, "c1", got[1].ClientID)
}

func TestPageOffset(t *testing.T) {
	off, lim := PageOffset(3, 0)
	assert.Equal(t, 40, off)
	assert.Equal(t, DefaultPageSize, lim)

	off, _ = PageOffset(-2, 20)
	assert.Equal(t, 0, off)
}

func TestPageOffset_HugePageDoesNotOverflow(t *testing.T) {
	off, _ := PageOffset(922337203685477581, 20)
	assert.GreaterOrEqual(t, off, 0)

	store := NewMemoryStore()
	ctx := context.Background()
	_, err := store.Create(ctx, "c1", "p1", slot)
	require.NoError(t, err)

	got, err := store.ListByClient(ctx, "c1", 922337203685477581, 20)
	require.NoError(t, err)
	assert.Empty(t, got)
}
