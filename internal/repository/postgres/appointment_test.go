package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessslie/Pelu-PetShop/internal/model"
	"github.com/lessslie/Pelu-PetShop/internal/repository"
	"github.com/lessslie/Pelu-PetShop/internal/schedule"
)

func setupMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

var wednesday = time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC)

func newAppointment() *model.Appointment {
	return &model.Appointment{
		ID:            uuid.New(),
		CustomerID:    uuid.New(),
		PetName:       "Firulais",
		Date:          wednesday,
		StartTime:     schedule.NewClock(10, 0),
		PetSize:       model.PetSizeMedium,
		ServiceType:   model.ServiceBath,
		Price:         3000,
		PaymentStatus: model.PaymentStatusPending,
	}
}

var appointmentRowColumns = []string{
	"id", "user_id", "dog_name", "appointment_date", "start_time", "dog_size",
	"service_type", "price", "payment_status", "payment_id", "payment_date",
	"created_at", "updated_at",
}

func TestAppointmentRepository_CreateIfFree(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAppointmentRepository(db)
	a := newAppointment()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)).
		WithArgs("2026-10-21").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("2026-10-21", a.ID.String(), "11:30:00", "10:00:00").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(a.ID.String(), a.CustomerID.String(), "Firulais", "2026-10-21", "10:00:00",
			"medium", "bath", 3000.0, "pending").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectCommit()

	err := repo.CreateIfFree(context.Background(), a)

	require.NoError(t, err)
	assert.Equal(t, now, a.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_CreateIfFree_Overlap(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAppointmentRepository(db)
	a := newAppointment()

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.CreateIfFree(context.Background(), a)

	assert.ErrorIs(t, err, repository.ErrSlotTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_CreateIfFree_ExclusionViolation(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAppointmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO appointments`).
		WillReturnError(&pq.Error{Code: codeExclusionViolation})
	mock.ExpectRollback()

	err := repo.CreateIfFree(context.Background(), newAppointment())

	assert.ErrorIs(t, err, repository.ErrSlotTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_Get(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAppointmentRepository(db)
	a := newAppointment()
	now := time.Now()

	mock.ExpectQuery(`FROM appointments a WHERE a.id = \$1`).
		WithArgs(a.ID.String()).
		WillReturnRows(sqlmock.NewRows(appointmentRowColumns).AddRow(
			a.ID.String(), a.CustomerID.String(), "Firulais", wednesday, "10:00:00", "medium",
			"bath", "3000.00", "pending", nil, nil, now, now,
		))

	got, err := repo.Get(context.Background(), a.ID)

	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, schedule.NewClock(10, 0), got.StartTime)
	assert.Equal(t, "2026-10-21", got.DateString())
	assert.Equal(t, 3000.0, got.Price)
	assert.Equal(t, model.PetSizeMedium, got.PetSize)
	assert.Nil(t, got.PaymentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_Get_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAppointmentRepository(db)

	mock.ExpectQuery(`FROM appointments a`).WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), uuid.New())

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAppointmentRepository_GetWithCustomer(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAppointmentRepository(db)
	a := newAppointment()
	now := time.Now()

	columns := append(append([]string{}, appointmentRowColumns...), "customer_name", "customer_email")
	mock.ExpectQuery(`LEFT JOIN users u ON u.id = a.user_id`).
		WithArgs(a.ID.String()).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			a.ID.String(), a.CustomerID.String(), "Firulais", wednesday, "10:00:00", "medium",
			"bath", "3000.00", "paid", "123", now, now, now, "Ana Perez", "ana@example.com",
		))

	got, err := repo.GetWithCustomer(context.Background(), a.ID)

	require.NoError(t, err)
	assert.Equal(t, "Ana Perez", got.CustomerName)
	assert.Equal(t, "ana@example.com", got.CustomerEmail)
	require.NotNil(t, got.PaymentID)
	assert.Equal(t, "123", *got.PaymentID)
	assert.Equal(t, model.PaymentStatusPaid, got.PaymentStatus)
}

func TestAppointmentRepository_UpdateIfFree_Reschedule(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAppointmentRepository(db)
	id := uuid.New()
	start := schedule.NewClock(14, 0)
	name := "Toby"
	changes := &model.AppointmentChanges{PetName: &name, StartTime: &start}
	slot := &schedule.Booking{Date: wednesday, Start: start}

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).WithArgs("2026-10-21").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("2026-10-21", id.String(), "15:30:00", "14:00:00").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE "appointments" SET`).
		WithArgs("Toby", "14:00:00", id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateIfFree(context.Background(), id, changes, slot)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_UpdateIfFree_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAppointmentRepository(db)
	name := "Toby"

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "appointments" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.UpdateIfFree(context.Background(), uuid.New(), &model.AppointmentChanges{PetName: &name}, nil)

	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_Delete(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAppointmentRepository(db)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM appointments WHERE id = $1`)).
		WithArgs(id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), id))

	mock.ExpectExec(`DELETE FROM appointments`).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), id), repository.ErrNotFound)
}

func TestAppointmentRepository_List_FilterByCustomer(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAppointmentRepository(db)
	customer := uuid.New()
	now := time.Now()

	columns := append(append([]string{}, appointmentRowColumns...), "customer_name", "customer_email")
	mock.ExpectQuery(`FROM "appointments" AS "a" LEFT JOIN "users" AS "u"`).
		WithArgs(customer.String()).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(uuid.NewString(), customer.String(), "A", wednesday, "09:00:00", "small", "bath", "2500", "pending", nil, nil, now, now, "Ana", "ana@example.com").
			AddRow(uuid.NewString(), customer.String(), "B", wednesday, "12:00:00", "large", "bath-and-cut", "4500", "pending", nil, nil, now, now, "Ana", "ana@example.com"))

	got, err := repo.List(context.Background(), &model.AppointmentFilters{CustomerID: &customer})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.ServiceBathAndCut, got[1].ServiceType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_ListByDate_Empty(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAppointmentRepository(db)

	mock.ExpectQuery(`WHERE a.appointment_date = \$1`).
		WithArgs("2026-10-21").
		WillReturnRows(sqlmock.NewRows(appointmentRowColumns))

	got, err := repo.ListByDate(context.Background(), wednesday)

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAppointmentRepository_UpdatePayment(t *testing.T) {
	paidAt := time.Now()
	update := &model.PaymentUpdate{Status: model.PaymentStatusPaid, PaymentID: "987", PaidAt: paidAt}

	t.Run("applied", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewAppointmentRepository(db)
		id := uuid.New()

		mock.ExpectExec(`UPDATE "appointments"`).
			WithArgs("paid", "987", paidAt, id.String(), `{"pending","failed"}`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		applied, err := repo.UpdatePayment(context.Background(), id, update)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("guarded", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewAppointmentRepository(db)

		mock.ExpectExec(`UPDATE "appointments"`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		applied, err := repo.UpdatePayment(context.Background(), uuid.New(), update)
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewAppointmentRepository(db)

		mock.ExpectExec(`UPDATE "appointments"`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := repo.UpdatePayment(context.Background(), uuid.New(), update)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("driver error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewAppointmentRepository(db)

		mock.ExpectExec(`UPDATE "appointments"`).WillReturnError(errors.New("connection reset"))

		_, err := repo.UpdatePayment(context.Background(), uuid.New(), update)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, repository.ErrNotFound)
	})
}
