package model

import (
	"errors"
	"time"
)

// CancellationWindow is how far ahead of the slot a client must cancel.
const CancellationWindow = 2 * time.Hour

var ErrAlreadyCanceled = errors.New("appointment already canceled")

type Status int

const (
	StatusActive Status = iota
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// State is either Active or Canceled(at). The zero value is Active.
type State struct {
	status     Status
	canceledAt time.Time
}

func Active() State { return State{status: StatusActive} }

func Canceled(at time.Time) State { return State{status: StatusCanceled, canceledAt: at} }

func (s State) Status() Status { return s.status }

// CanceledAt returns the cancellation instant and whether the appointment is canceled.
func (s State) CanceledAt() (time.Time, bool) {
	if s.status != StatusCanceled {
		return time.Time{}, false
	}
	return s.canceledAt, true
}

// StateFromNullable maps a nullable canceled_at column to a State.
func StateFromNullable(canceledAt *time.Time) State {
	if canceledAt == nil {
		return Active()
	}
	return Canceled(*canceledAt)
}

type Appointment struct {
	ID         string
	ClientID   string
	ProviderID string
	Date       time.Time
	State      State
	CreatedAt  time.Time
}

func (a Appointment) IsActive() bool { return a.State.status == StatusActive }

func (a Appointment) IsPast(now time.Time) bool { return a.Date.Before(now) }

// IsCancelable reports whether the appointment is active and now is strictly before the
// cancellation deadline.
func (a Appointment) IsCancelable(now time.Time) bool {
	return a.IsActive() && now.Before(a.CancelDeadline())
}

func (a Appointment) CancelDeadline() time.Time {
	return a.Date.Add(-CancellationWindow)
}

// Cancel moves an active appointment to Canceled(at). canceledAt is written once.
func (a Appointment) Cancel(at time.Time) (Appointment, error) {
	if !a.IsActive() {
		return a, ErrAlreadyCanceled
	}
	a.State = Canceled(at)
	return a, nil
}
