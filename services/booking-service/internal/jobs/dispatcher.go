package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/hourbook/libs/otel"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/metrics"
	"github.com/sony/gobreaker/v2"
)

var (
	ErrQueueFull   = errors.New("job queue full")
	ErrQueueClosed = errors.New("job queue closed")
)

type DispatcherConfig struct {
	Buffer       int
	MaxAttempts  int
	Backoff      time.Duration
	DrainTimeout time.Duration

	// Breaker settings for the transport.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Dispatcher buffers jobs in memory and hands them to a Transport from a single goroutine.
// Delivery is at-least-once from the transport's point of view. Jobs still buffered when the
// process dies are lost.
type Dispatcher struct {
	transport Transport
	logger    *slog.Logger
	metrics   *metrics.Collector
	cfg       DispatcherConfig
	breaker   *gobreaker.CircuitBreaker[struct{}]
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
	ch     chan Job
}

func NewDispatcher(transport Transport, logger *slog.Logger, m *metrics.Collector, cfg DispatcherConfig) *Dispatcher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	d := &Dispatcher{
		transport: transport,
		logger:    logger,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
		ch:        make(chan Job, cfg.Buffer),
	}
	d.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "job-transport",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if d.metrics != nil {
				d.metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return d
}

// Enqueue encodes payload and offers it to the buffer. It returns ErrQueueFull instead of
// waiting when the buffer has no room.
func (d *Dispatcher) Enqueue(ctx context.Context, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	job := Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    body,
		EnqueuedAt: d.now().UTC(),
	}
	if k, ok := payload.(Keyed); ok {
		job.Key = k.JobKey()
	}
	job.Traceparent, job.Tracestate = otelx.TraceContextStrings(ctx)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.count(kind, "rejected")
		return ErrQueueClosed
	}
	select {
	case d.ch <- job:
		d.count(kind, "accepted")
		d.depth()
		return nil
	default:
		d.count(kind, "rejected")
		return ErrQueueFull
	}
}

// Run delivers jobs until ctx is done, then stops accepting new ones and drains what is left
// within DrainTimeout.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case job := <-d.ch:
			d.depth()
			d.deliver(ctx, job)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	d.mu.Lock()
	d.closed = true
	close(d.ch)
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DrainTimeout)
	defer cancel()

	for job := range d.ch {
		if ctx.Err() != nil {
			d.drop(job, ctx.Err())
			continue
		}
		d.deliver(ctx, job)
	}
	d.depth()
}

func (d *Dispatcher) deliver(ctx context.Context, job Job) {
	jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
	jobCtx, span := otelx.Tracer("hourbook/jobs").Start(jobCtx, "jobs.publish "+job.Kind)
	defer span.End()

	backoff := d.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		_, lastErr = d.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, d.transport.Publish(jobCtx, job)
		})
		if lastErr == nil {
			if d.metrics != nil {
				d.metrics.JobsPublished.WithLabelValues(job.Kind, "ok").Inc()
			}
			return
		}
		d.logger.Warn("job publish attempt failed",
			"job_id", job.ID, "kind", job.Kind, "attempt", attempt, "err", lastErr)
		if attempt == d.cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			d.drop(job, ctx.Err())
			return
		}
		backoff *= 2
	}
	span.RecordError(lastErr)
	d.drop(job, lastErr)
}

func (d *Dispatcher) drop(job Job, err error) {
	d.logger.Error("job dropped", "job_id", job.ID, "kind", job.Kind, "key", job.Key, "err", err)
	if d.metrics != nil {
		d.metrics.JobsPublished.WithLabelValues(job.Kind, "dropped").Inc()
	}
}

func (d *Dispatcher) count(kind, result string) {
	if d.metrics != nil {
		d.metrics.JobsEnqueued.WithLabelValues(kind, result).Inc()
	}
}

func (d *Dispatcher) depth() {
	if d.metrics != nil {
		d.metrics.JobQueueDepth.Set(float64(len(d.ch)))
	}
}

var _ Queue = (*Dispatcher)(nil)
