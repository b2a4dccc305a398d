package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/directory"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/jobs"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queuedJob struct {
	kind    string
	payload any
}

type fakeQueue struct {
	mu   sync.Mutex
	err  error
	jobs []queuedJob
}

func (q *fakeQueue) Enqueue(_ context.Context, kind string, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, queuedJob{kind: kind, payload: payload})
	return nil
}

type fixture struct {
	svc   *Service
	store *storage.MemoryStore
	users *directory.Static
	clock *clock.Fixed
	sink  *notify.MemorySink
	queue *fakeQueue
}

const (
	clientID   = "client-c"
	providerID = "provider-p"
	plainID    = "plain-u"
)

var slotA = time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		store: storage.NewMemoryStore(),
		users: directory.NewStatic(
			directory.User{ID: clientID, Name: "Carla", Email: "carla@example.com"},
			directory.User{ID: providerID, Name: "Pedro", Email: "pedro@example.com", Provider: true},
			directory.User{ID: plainID, Name: "Ursula", Email: "ursula@example.com"},
		),
		clock: clock.NewFixed(now),
		sink:  &notify.MemorySink{},
		queue: &fakeQueue{},
	}
	notifier := notify.NewDispatcher(f.sink, logger, notify.Options{Location: time.UTC})
	f.svc = NewService(f.store, f.users, f.clock, notifier, f.queue, nil, logger, Config{Location: time.UTC})
	return f
}

func TestBook_CreatesAndNotifiesProvider(t *testing.T) {
	f := newFixture(t, slotA.Add(-48*time.Hour))

	appt, err := f.svc.BookAppointment(context.Background(), clientID, providerID, slotA)
	require.NoError(t, err)
	assert.True(t, appt.Date.Equal(slotA))
	assert.Equal(t, clientID, appt.ClientID)
	assert.Equal(t, providerID, appt.ProviderID)
	assert.True(t, appt.IsActive())

	notes := f.sink.All()
	require.Len(t, notes, 1)
	assert.Equal(t, providerID, notes[0].UserID)
	assert.Equal(t, "Novo agendamento de Carla para dia 10 de janeiro às 10:00", notes[0].Content)
}

func TestBook_FlooredDateHitsTakenSlot(t *testing.T) {
	f := newFixture(t, slotA.Add(-48*time.Hour))
	_, err := f.svc.BookAppointment(context.Background(), clientID, providerID, slotA)
	require.NoError(t, err)

	f.users.Put(directory.User{ID: "client-d", Name: "Davi"})
	_, err = f.svc.BookAppointment(context.Background(), "client-d", providerID, slotA.Add(15*time.Minute))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBook_RejectsPastAndCurrentHour(t *testing.T) {
	now := slotA.Add(30 * time.Minute)
	f := newFixture(t, now)

	_, err := f.svc.BookAppointment(context.Background(), clientID, providerID, now.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrPastDate)

	// The current hour floors to a start before now.
	_, err = f.svc.BookAppointment(context.Background(), clientID, providerID, now.Add(10*time.Minute))
	assert.ErrorIs(t, err, ErrPastDate)

	_, err = f.svc.BookAppointment(context.Background(), clientID, providerID, slotA.Add(time.Hour))
	assert.NoError(t, err)
}

func TestCancel_EnqueuesMailAndFreesSlot(t *testing.T) {
	f := newFixture(t, slotA.Add(-48*time.Hour))
	appt, err := f.svc.BookAppointment(context.Background(), clientID, providerID, slotA)
	require.NoError(t, err)

	f.clock.Set(slotA.Add(-3 * time.Hour))
	canceled, err := f.svc.CancelAppointment(context.Background(), clientID, appt.ID)
	require.NoError(t, err)
	at, ok := canceled.State.CanceledAt()
	require.True(t, ok)
	assert.True(t, at.Equal(slotA.Add(-3*time.Hour)))

	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, jobs.KindCancellationMail, f.queue.jobs[0].kind)
	mail, ok := f.queue.jobs[0].payload.(jobs.CancellationMail)
	require.True(t, ok)
	assert.Equal(t, appt.ID, mail.AppointmentID)
	assert.Equal(t, jobs.Party{ID: clientID, Name: "Carla", Email: "carla@example.com"}, mail.Client)
	assert.Equal(t, jobs.Party{ID: providerID, Name: "Pedro", Email: "pedro@example.com"}, mail.Provider)

	// The slot is free again.
	_, err = f.svc.BookAppointment(context.Background(), plainID, providerID, slotA)
	assert.NoError(t, err)
}

// ctxDirectory fails lookups once the caller's context is done, like the Postgres repository.
type ctxDirectory struct {
	next directory.Directory
}

func (d ctxDirectory) FindByID(ctx context.Context, id string) (directory.User, error) {
	if err := ctx.Err(); err != nil {
		return directory.User{}, err
	}
	return d.next.FindByID(ctx, id)
}

func TestCancel_MailPayloadSurvivesRequestCancellation(t *testing.T) {
	f := newFixture(t, slotA.Add(-48*time.Hour))
	appt, err := f.svc.BookAppointment(context.Background(), clientID, providerID, slotA)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(f.store, ctxDirectory{next: f.users}, f.clock, notify.NewDispatcher(f.sink, logger, notify.Options{}), f.queue, nil, logger, Config{Location: time.UTC})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.CancelAppointment(ctx, clientID, appt.ID)
	require.NoError(t, err)

	require.Len(t, f.queue.jobs, 1)
	mail, ok := f.queue.jobs[0].payload.(jobs.CancellationMail)
	require.True(t, ok)
	assert.Equal(t, "pedro@example.com", mail.Provider.Email)
	assert.Equal(t, "carla@example.com", mail.Client.Email)
}

func TestCancel_TooLateLeavesStateAlone(t *testing.T) {
	f := newFixture(t, slotA.Add(-48*time.Hour))
	appt, err := f.svc.BookAppointment(context.Background(), clientID, providerID, slotA)
	require.NoError(t, err)

	f.clock.Set(slotA.Add(-time.Hour))
	_, err = f.svc.CancelAppointment(context.Background(), clientID, appt.ID)
	assert.ErrorIs(t, err, ErrTooLate)

	got, err := f.store.FetchByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive())
	assert.Empty(t, f.queue.jobs)
}

func TestList_SecondPageHoldsRemainder(t *testing.T) {
	f := newFixture(t, slotA.Add(-48*time.Hour))
	for i := 0; i < 25; i++ {
		pid := fmt.Sprintf("provider-%02d", i)
		f.users.Put(directory.User{ID: pid, Name: "P" + pid, Provider: true, AvatarURL: "https://cdn.example.com/" + pid + ".png"})
		_, err := f.svc.BookAppointment(context.Background(), clientID, pid, slotA.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}

	page2, err := f.svc.ListAppointments(context.Background(), clientID, 2)
	require.NoError(t, err)
	require.Len(t, page2, 5)
	for i, v := range page2 {
		want := slotA.Add(time.Duration(20+i) * time.Hour)
		assert.True(t, v.Date.Equal(want), "entry %d: got %s want %s", i, v.Date, want)
		assert.Equal(t, fmt.Sprintf("provider-%02d", 20+i), v.Provider.ID)
		assert.NotEmpty(t, v.Provider.AvatarURL)
		assert.False(t, v.Past)
		assert.True(t, v.Cancelable)
	}
}

func TestBook_ValidationOrder(t *testing.T) {
	f := newFixture(t, slotA.Add(-48*time.Hour))
	past := slotA.Add(-72 * time.Hour)

	// Not a provider beats every other failure.
	_, err := f.svc.BookAppointment(context.Background(), clientID, plainID, past)
	assert.ErrorIs(t, err, ErrInvalidProvider)
	_, err = f.svc.BookAppointment(context.Background(), clientID, "ghost", slotA)
	assert.ErrorIs(t, err, ErrInvalidProvider)

	// Self booking beats past date.
	_, err = f.svc.BookAppointment(context.Background(), providerID, providerID, past)
	assert.ErrorIs(t, err, ErrSelfBooking)

	assert.Empty(t, f.sink.All())
}

func TestBook_ConcurrentRequestsKeepOneWinner(t *testing.T) {
	f := newFixture(t, slotA.Add(-48*time.Hour))
	const n = 20
	for i := 0; i < n; i++ {
		f.users.Put(directory.User{ID: fmt.Sprintf("c-%d", i), Name: "client"})
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.BookAppointment(context.Background(), fmt.Sprintf("c-%d", i), providerID, slotA)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	}
	assert.Equal(t, 1, ok)
}

func TestCancel_OwnershipAndRepeat(t *testing.T) {
	f := newFixture(t, slotA.Add(-48*time.Hour))
	appt, err := f.svc.BookAppointment(context.Background(), clientID, providerID, slotA)
	require.NoError(t, err)

	_, err = f.svc.CancelAppointment(context.Background(), providerID, appt.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = f.svc.CancelAppointment(context.Background(), clientID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := f.svc.CancelAppointment(context.Background(), clientID, appt.ID)
	require.NoError(t, err)
	firstAt, _ := first.State.CanceledAt()

	f.clock.Advance(time.Minute)
	_, err = f.svc.CancelAppointment(context.Background(), clientID, appt.ID)
	assert.ErrorIs(t, err, ErrAlreadyCanceled)

	got, err := f.store.FetchByID(context.Background(), appt.ID)
	require.NoError(t, err)
	gotAt, _ := got.State.CanceledAt()
	assert.True(t, gotAt.Equal(firstAt))
	assert.Len(t, f.queue.jobs, 1)
}

func TestCancel_QueueFailureDoesNotFailCancel(t *testing.T) {
	f := newFixture(t, slotA.Add(-48*time.Hour))
	appt, err := f.svc.BookAppointment(context.Background(), clientID, providerID, slotA)
	require.NoError(t, err)

	f.queue.err = jobs.ErrQueueFull
	canceled, err := f.svc.CancelAppointment(context.Background(), clientID, appt.ID)
	require.NoError(t, err)
	assert.False(t, canceled.IsActive())
}

type failingSink struct{}

func (failingSink) Create(context.Context, notify.Notification) error {
	return errors.New("notifications unavailable")
}

func TestBook_NotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, slotA.Add(-48*time.Hour))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc.notifier = notify.NewDispatcher(failingSink{}, logger, notify.Options{})

	appt, err := f.svc.BookAppointment(context.Background(), clientID, providerID, slotA)
	require.NoError(t, err)
	assert.NotEmpty(t, appt.ID)
}

func TestListProviderSchedule(t *testing.T) {
	f := newFixture(t, slotA.Add(-48*time.Hour))
	f.users.Put(directory.User{ID: "client-d", Name: "Davi"})

	_, err := f.svc.BookAppointment(context.Background(), clientID, providerID, slotA.Add(4*time.Hour))
	require.NoError(t, err)
	_, err = f.svc.BookAppointment(context.Background(), "client-d", providerID, slotA)
	require.NoError(t, err)
	_, err = f.svc.BookAppointment(context.Background(), clientID, providerID, slotA.Add(24*time.Hour))
	require.NoError(t, err)

	entries, err := f.svc.ListProviderSchedule(context.Background(), providerID, slotA)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ClientSummary{ID: "client-d", Name: "Davi"}, entries[0].Client)
	assert.Equal(t, ClientSummary{ID: clientID, Name: "Carla"}, entries[1].Client)

	_, err = f.svc.ListProviderSchedule(context.Background(), clientID, slotA)
	assert.ErrorIs(t, err, ErrNotProvider)
}

func TestProviderDayAvailability(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 10, 8, 30, 0, 0, time.UTC))
	_, err := f.svc.BookAppointment(context.Background(), clientID, providerID, slotA)
	require.NoError(t, err)

	slots, err := f.svc.ProviderDayAvailability(context.Background(), providerID, slotA)
	require.NoError(t, err)
	require.Len(t, slots, 12) // 08:00 to 19:00
	assert.False(t, slots[0].Available, "08:00 already started")
	assert.True(t, slots[1].Available)
	assert.False(t, slots[2].Available, "10:00 is booked")

	_, err = f.svc.ProviderDayAvailability(context.Background(), plainID, slotA)
	assert.ErrorIs(t, err, ErrInvalidProvider)
}

func TestProviderDayAvailability_DaylightSavingDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	f := newFixture(t, time.Date(2024, 3, 9, 12, 0, 0, 0, ny))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(f.store, f.users, f.clock, notify.NewDispatcher(f.sink, logger, notify.Options{}), f.queue, nil, logger, Config{Location: ny})

	// Clocks jump from 02:00 to 03:00 on this day.
	slots, err := svc.ProviderDayAvailability(context.Background(), providerID, time.Date(2024, 3, 10, 0, 0, 0, 0, ny))
	require.NoError(t, err)
	require.Len(t, slots, 12)
	assert.Equal(t, 8, slots[0].Time.In(ny).Hour())
	assert.Equal(t, 19, slots[len(slots)-1].Time.In(ny).Hour())
}
