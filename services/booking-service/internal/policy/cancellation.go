package policy

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/model"
)

var (
	ErrNotOwner = errors.New("only the client who booked may cancel")
	ErrTooLate  = errors.New("appointments can only be canceled up to 2 hours in advance")
)

// CanCancel decides whether requesterID may cancel appt at now. Ownership is checked first.
// The deadline is exclusive: at exactly date-2h the appointment is no longer cancelable.
func CanCancel(appt model.Appointment, requesterID string, now time.Time) error {
	if appt.ClientID != requesterID {
		return ErrNotOwner
	}
	if !now.Before(appt.CancelDeadline()) {
		return ErrTooLate
	}
	return nil
}
