package jobs

import (
	"context"
	"encoding/json"
	"time"
)

// KindCancellationMail asks the mail worker to tell a provider that a client canceled.
const KindCancellationMail = "CancellationMail"

// Job is one unit of background work. ID doubles as the idempotency key consumers dedupe on.
type Job struct {
	ID          string
	Kind        string
	Key         string
	Payload     json.RawMessage
	EnqueuedAt  time.Time
	Traceparent string
	Tracestate  string
}

// Queue accepts jobs without blocking the caller.
type Queue interface {
	Enqueue(ctx context.Context, kind string, payload any) error
}

// Keyed payloads choose their partition key.
type Keyed interface {
	JobKey() string
}

type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CancellationMail struct {
	AppointmentID string    `json:"appointment_id"`
	Date          time.Time `json:"date"`
	CanceledAt    time.Time `json:"canceled_at"`
	Client        Party     `json:"client"`
	Provider      Party     `json:"provider"`
}

func (m CancellationMail) JobKey() string { return m.AppointmentID }
