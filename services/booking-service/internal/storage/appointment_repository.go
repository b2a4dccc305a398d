package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/hourbook/libs/db"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/model"
)

// AppointmentRepository is the Postgres Store. Slot exclusivity comes from the partial unique
// index appointments_active_slot on (provider_id, date) where canceled_at is null.
type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

const appointmentColumns = `id::text, client_id::text, provider_id::text, date, canceled_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var appt model.Appointment
	var canceledAt *time.Time
	if err := row.Scan(
		&appt.ID,
		&appt.ClientID,
		&appt.ProviderID,
		&appt.Date,
		&canceledAt,
		&appt.CreatedAt,
	); err != nil {
		return model.Appointment{}, err
	}
	appt.State = model.StateFromNullable(canceledAt)
	return appt, nil
}

func (r *AppointmentRepository) Create(ctx context.Context, clientID, providerID string, date time.Time) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		INSERT INTO appointments (client_id, provider_id, date)
		VALUES ($1, $2, $3)
		RETURNING `+appointmentColumns,
		clientID, providerID, date))
	if err != nil {
		if db.HasCode(err, db.CodeUniqueViolation) || db.HasCode(err, db.CodeExclusion) {
			return model.Appointment{}, ErrConflict
		}
		return model.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}
	return appt, nil
}

func (r *AppointmentRepository) FetchByID(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if err != nil {
		if db.IsNoRows(err) || db.HasCode(err, db.CodeInvalidText) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, fmt.Errorf("fetch appointment: %w", err)
	}
	return appt, nil
}

func (r *AppointmentRepository) FindActiveAt(ctx context.Context, providerID string, date time.Time) (model.Appointment, bool, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1 AND date = $2 AND canceled_at IS NULL
	`, providerID, date))
	if err != nil {
		if db.IsNoRows(err) {
			return model.Appointment{}, false, nil
		}
		return model.Appointment{}, false, fmt.Errorf("find active appointment: %w", err)
	}
	return appt, true, nil
}

func (r *AppointmentRepository) ListByClient(ctx context.Context, clientID string, page, pageSize int) ([]model.Appointment, error) {
	offset, limit := PageOffset(page, pageSize)
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE client_id = $1 AND canceled_at IS NULL
		ORDER BY date ASC, id ASC
		LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list client appointments: %w", err)
	}
	return collect(rows)
}

func (r *AppointmentRepository) ListByProviderBetween(ctx context.Context, providerID string, start, end time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
			AND canceled_at IS NULL
			AND date >= $2
			AND date < $3
		ORDER BY date ASC
	`, providerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list provider appointments: %w", err)
	}
	return collect(rows)
}

func (r *AppointmentRepository) MarkCanceled(ctx context.Context, id string, at time.Time) (model.Appointment, error) {
	var appt model.Appointment
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		appt, err = scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET canceled_at = $2
			WHERE id = $1 AND canceled_at IS NULL
			RETURNING `+appointmentColumns,
			id, at))
		if err == nil {
			return nil
		}
		if !db.IsNoRows(err) {
			if db.HasCode(err, db.CodeInvalidText) {
				return ErrNotFound
			}
			return err
		}

		// Nothing updated: either the row is missing or it was canceled before.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrAlreadyCanceled
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyCanceled) {
			return model.Appointment{}, err
		}
		return model.Appointment{}, fmt.Errorf("cancel appointment: %w", err)
	}
	return appt, nil
}

func collect(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

var _ Store = (*AppointmentRepository)(nil)
