package notify

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/hourbook/libs/locale"
)

// NewBookingMessage is the text a provider sees for a new appointment.
func NewBookingMessage(clientName string, slot time.Time, l locale.Locale) string {
	switch l {
	case locale.EN:
		return fmt.Sprintf("New appointment from %s on %s", clientName, locale.FormatSlot(slot, l))
	default:
		return fmt.Sprintf("Novo agendamento de %s para %s", clientName, locale.FormatSlot(slot, l))
	}
}
