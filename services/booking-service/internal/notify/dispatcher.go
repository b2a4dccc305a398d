package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/hourbook/libs/locale"
	"github.com/prometheus/client_golang/prometheus"
)

type Notification struct {
	Content string
	UserID  string
	Read    bool
}

// Sink stores in-app notifications.
type Sink interface {
	Create(ctx context.Context, n Notification) error
}

type Options struct {
	Locale   locale.Locale
	Location *time.Location
	Timeout  time.Duration
	Failures prometheus.Counter
}

// Dispatcher records provider notifications. It never reports failure to the caller: a booking
// that committed stays committed whether or not its notification lands.
type Dispatcher struct {
	sink     Sink
	logger   *slog.Logger
	locale   locale.Locale
	loc      *time.Location
	timeout  time.Duration
	failures prometheus.Counter
}

func NewDispatcher(sink Sink, logger *slog.Logger, opts Options) *Dispatcher {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Locale == "" {
		opts.Locale = locale.PtBR
	}
	return &Dispatcher{
		sink:     sink,
		logger:   logger,
		locale:   opts.Locale,
		loc:      opts.Location,
		timeout:  opts.Timeout,
		failures: opts.Failures,
	}
}

// NotifyNewBooking tells providerID that clientName booked slot. The write gets its own deadline
// and survives cancellation of ctx.
func (d *Dispatcher) NotifyNewBooking(ctx context.Context, providerID, clientName string, slot time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	n := Notification{
		Content: NewBookingMessage(clientName, slot.In(d.loc), d.locale),
		UserID:  providerID,
	}
	if err := d.sink.Create(ctx, n); err != nil {
		d.logger.Error("provider notification failed", "provider_id", providerID, "err", err)
		if d.failures != nil {
			d.failures.Inc()
		}
	}
}
