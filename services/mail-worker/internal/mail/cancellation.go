package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/hourbook/libs/locale"
	"github.com/md-rashed-zaman/hourbook/services/mail-worker/internal/email"
	"github.com/segmentio/kafka-go"
)

type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Cancellation is the CancellationMail job payload published by booking-service.
type Cancellation struct {
	AppointmentID string    `json:"appointment_id"`
	Date          time.Time `json:"date"`
	CanceledAt    time.Time `json:"canceled_at"`
	Client        Party     `json:"client"`
	Provider      Party     `json:"provider"`
}

// RenderCancellation builds the email telling the provider that a client canceled.
func RenderCancellation(c Cancellation, l locale.Locale, loc *time.Location) email.Message {
	if loc == nil {
		loc = time.UTC
	}
	when := locale.FormatSlot(c.Date.In(loc), l)

	var subject, body string
	switch l {
	case locale.EN:
		subject = "Appointment canceled"
		body = fmt.Sprintf("Hello, %s\n\nYou have a new cancellation.\n\nClient: %s\nDate: %s\n\nThis time slot is available again.",
			nameOr(c.Provider.Name, "there"), nameOr(c.Client.Name, "unknown"), when)
	default:
		subject = "Agendamento cancelado"
		body = fmt.Sprintf("Olá, %s\n\nVocê tem um novo cancelamento.\n\nCliente: %s\nData: %s\n\nO horário está novamente disponível para novos agendamentos.",
			nameOr(c.Provider.Name, "prestador"), nameOr(c.Client.Name, "desconhecido"), when)
	}
	return email.Message{
		To:      c.Provider.Email,
		ToName:  c.Provider.Name,
		Subject: subject,
		Body:    body,
	}
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}

// CancellationHandler decodes a CancellationMail message and sends it. Messages that can never
// succeed (undecodable, no recipient) are logged and acknowledged.
func CancellationHandler(sender email.Sender, logger *slog.Logger, l locale.Locale, loc *time.Location) func(ctx context.Context, msg kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var payload Cancellation
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid cancellation payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.AppointmentID == "" || strings.TrimSpace(payload.Provider.Email) == "" {
			logger.Error("cancellation payload missing required fields", "appointment_id", payload.AppointmentID)
			return nil
		}

		m := RenderCancellation(payload, l, loc)
		if err := sender.Send(ctx, m); err != nil {
			return fmt.Errorf("send cancellation mail: %w", err)
		}
		logger.Info("cancellation mail sent", "appointment_id", payload.AppointmentID, "provider_id", payload.Provider.ID)
		return nil
	}
}
