package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lessslie/Pelu-PetShop/internal/model"
	"github.com/lessslie/Pelu-PetShop/internal/repository"
	"github.com/lessslie/Pelu-PetShop/internal/schedule"
)

const appointmentColumns = `
	a.id, a.user_id, a.dog_name, a.appointment_date, a.start_time, a.dog_size,
	a.service_type, a.price, a.payment_status, a.payment_id, a.payment_date,
	a.created_at, a.updated_at`

const customerColumns = `
	TRIM(CONCAT_WS(' ', u.first_name, u.last_name)) AS customer_name,
	COALESCE(u.email, '') AS customer_email`

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{BaseRepository: NewBaseRepository(db)}
}

// lockDate takes a transaction-scoped advisory lock keyed by the calendar
// date, serializing every booking check-and-write for that day.
func lockDate(ctx context.Context, tx *sqlx.Tx, date time.Time) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, date.Format(schedule.DateLayout)); err != nil {
		return fmt.Errorf("failed to lock schedule for %s: %w", date.Format(schedule.DateLayout), err)
	}
	return nil
}

// overlaps reports whether any appointment other than exclude intersects the
// 90-minute interval of slot.
func overlaps(ctx context.Context, tx *sqlx.Tx, slot schedule.Booking, exclude uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE appointment_date = $1
			AND id <> $2
			AND start_time < $3
			AND start_time + INTERVAL '90 minutes' > $4
		)
	`
	var busy bool
	err := tx.GetContext(ctx, &busy, query,
		slot.Date.Format(schedule.DateLayout),
		exclude,
		slot.End(),
		slot.Start,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check overlapping appointments: %w", err)
	}
	return busy, nil
}

func (r *appointmentRepository) CreateIfFree(ctx context.Context, appointment *model.Appointment) error {
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockDate(ctx, tx, appointment.Date); err != nil {
			return err
		}

		busy, err := overlaps(ctx, tx, appointment.Booking(), appointment.ID)
		if err != nil {
			return err
		}
		if busy {
			return repository.ErrSlotTaken
		}

		query := `
			INSERT INTO appointments (
				id, user_id, dog_name, appointment_date, start_time,
				dog_size, service_type, price, payment_status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at, updated_at
		`
		err = tx.QueryRowxContext(ctx, query,
			appointment.ID,
			appointment.CustomerID,
			appointment.PetName,
			appointment.DateString(),
			appointment.StartTime,
			string(appointment.PetSize),
			string(appointment.ServiceType),
			appointment.Price,
			string(appointment.PaymentStatus),
		).Scan(&appointment.CreatedAt, &appointment.UpdatedAt)
		if err != nil {
			if isSlotViolation(err) {
				return repository.ErrSlotTaken
			}
			return fmt.Errorf("failed to create appointment: %w", err)
		}
		return nil
	})
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments a WHERE a.id = $1`

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) GetWithCustomer(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `, ` + customerColumns + `
		FROM appointments a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE a.id = $1
	`
	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

func changesRecord(changes *model.AppointmentChanges) goqu.Record {
	record := goqu.Record{"updated_at": goqu.L("NOW()")}
	if changes.CustomerID != nil {
		record["user_id"] = changes.CustomerID.String()
	}
	if changes.PetName != nil {
		record["dog_name"] = *changes.PetName
	}
	if changes.Date != nil {
		record["appointment_date"] = changes.Date.Format(schedule.DateLayout)
	}
	if changes.StartTime != nil {
		record["start_time"] = changes.StartTime.String() + ":00"
	}
	if changes.PetSize != nil {
		record["dog_size"] = string(*changes.PetSize)
	}
	if changes.ServiceType != nil {
		record["service_type"] = string(*changes.ServiceType)
	}
	if changes.Price != nil {
		record["price"] = *changes.Price
	}
	return record
}

func (r *appointmentRepository) UpdateIfFree(ctx context.Context, id uuid.UUID, changes *model.AppointmentChanges, slot *schedule.Booking) error {
	query, args, err := dialect.Update("appointments").
		Prepared(true).
		Set(changesRecord(changes)).
		Where(goqu.Ex{"id": id.String()}).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build appointment update: %w", err)
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if slot != nil {
			if err := lockDate(ctx, tx, slot.Date); err != nil {
				return err
			}
			busy, err := overlaps(ctx, tx, *slot, id)
			if err != nil {
				return err
			}
			if busy {
				return repository.ErrSlotTaken
			}
		}

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			if isSlotViolation(err) {
				return repository.ErrSlotTaken
			}
			return fmt.Errorf("failed to update appointment: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	ds := dialect.From(goqu.T("appointments").As("a")).
		Prepared(true).
		Select(goqu.L(appointmentColumns+", "+customerColumns)).
		LeftJoin(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("a.user_id")))).
		Order(goqu.I("a.appointment_date").Asc(), goqu.I("a.start_time").Asc())

	if filters != nil {
		if filters.CustomerID != nil {
			ds = ds.Where(goqu.I("a.user_id").Eq(filters.CustomerID.String()))
		}
		if filters.Date != nil {
			ds = ds.Where(goqu.I("a.appointment_date").Eq(filters.Date.Format(schedule.DateLayout)))
		}
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build appointment listing: %w", err)
	}

	appointments := make([]*model.Appointment, 0)
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListByDate(ctx context.Context, date time.Time) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		WHERE a.appointment_date = $1
		ORDER BY a.start_time ASC
	`
	appointments := make([]*model.Appointment, 0)
	if err := r.db.SelectContext(ctx, &appointments, query, date.Format(schedule.DateLayout)); err != nil {
		return nil, fmt.Errorf("failed to list appointments for %s: %w", date.Format(schedule.DateLayout), err)
	}
	return appointments, nil
}

func (r *appointmentRepository) UpdatePayment(ctx context.Context, id uuid.UUID, update *model.PaymentUpdate) (bool, error) {
	return updatePayment(ctx, r.db, "appointments", id, update)
}

func sourceStatuses(to model.PaymentStatus) pq.StringArray {
	sources := to.AllowedSources()
	out := make(pq.StringArray, 0, len(sources))
	for _, s := range sources {
		out = append(out, string(s))
	}
	return out
}

// updatePayment is the guarded payment transition shared by appointments and
// orders. Zero rows affected means either the row is missing (ErrNotFound) or
// its current status is not an allowed source (false, nil).
func updatePayment(ctx context.Context, db *sqlx.DB, table string, id uuid.UUID, update *model.PaymentUpdate) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET payment_status = $1, payment_id = $2, payment_date = $3, updated_at = NOW()
		WHERE id = $4 AND payment_status = ANY($5)
	`, pq.QuoteIdentifier(table))

	result, err := db.ExecContext(ctx, query,
		string(update.Status),
		update.PaymentID,
		update.PaidAt,
		id,
		sourceStatuses(update.Status),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update %s payment: %w", table, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}

	var exists bool
	existsQuery := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, pq.QuoteIdentifier(table))
	if err := db.GetContext(ctx, &exists, existsQuery, id); err != nil {
		return false, fmt.Errorf("failed to check %s: %w", table, err)
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return false, nil
}
