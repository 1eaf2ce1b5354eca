//go:build integration

package reminder_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/PermAdut/autoservice-notify/internal/reminder"
	"github.com/PermAdut/autoservice-notify/pkg/worker"
)

const schema = `
CREATE TABLE companies (
	id bigserial PRIMARY KEY,
	name text NOT NULL,
	phone text, email text, address text, website text, time_zone text
);
CREATE TABLE customers (
	id bigserial PRIMARY KEY,
	company_id bigint NOT NULL REFERENCES companies(id),
	name text, phone text, email text
);
CREATE TABLE cars (
	id bigserial PRIMARY KEY,
	customer_id bigint NOT NULL REFERENCES customers(id),
	make text, model text, year int, license_plate text, vin text, mileage int
);
CREATE TABLE maintenance_reminders (
	id bigserial PRIMARY KEY,
	car_id bigint NOT NULL REFERENCES cars(id),
	type text NOT NULL,
	due_date date,
	due_mileage int,
	sent_at timestamptz
);
INSERT INTO companies (name, phone, time_zone) VALUES ('Downtown Auto', '+15550001111', 'America/New_York');
INSERT INTO customers (company_id, name, phone, email) VALUES (1, 'Jane Doe', '+15551234567', 'jane@example.com');
INSERT INTO cars (customer_id, make, model, year, license_plate, mileage) VALUES (1, 'Toyota', 'Corolla', 2019, 'AB123C', 44700);
`

func setup(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("service"),
		postgrescontainer.WithUsername("service"),
		postgrescontainer.WithPassword("service"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	conn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, conn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, schema)
	require.NoError(t, err)
	return pool
}

func TestRepository(t *testing.T) {
	ctx := context.Background()
	pool := setup(t)

	_, err := pool.Exec(ctx, `
		INSERT INTO maintenance_reminders (car_id, type, due_date, due_mileage, sent_at) VALUES
			(1, 'oil_change', '2026-04-03', NULL, NULL),
			(1, 'tire_rotation', NULL, 45000, NULL),
			(1, 'brake_check', '2026-09-01', NULL, NULL),
			(1, 'inspection', '2026-04-01', NULL, now()),
			(1, 'timing_belt', NULL, 90000, NULL)`)
	require.NoError(t, err)

	sentAt := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	repo := reminder.New(pool, reminder.WithNow(func() time.Time { return sentAt }))
	dueBefore := time.Date(2026, 4, 4, 9, 0, 0, 0, time.UTC)

	t.Run("due by date or mileage", func(t *testing.T) {
		due, err := repo.DueReminders(ctx, dueBefore)
		require.NoError(t, err)
		require.Len(t, due, 2)

		assert.Equal(t, "1", due[0].ReminderID)
		assert.Equal(t, "oil_change", due[0].Type)
		require.NotNil(t, due[0].DueDate)
		assert.Equal(t, time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC), *due[0].DueDate)
		assert.Nil(t, due[0].DueMileage)
		assert.Equal(t, "Toyota", due[0].Car.Make)
		assert.Equal(t, 44700, due[0].Car.Mileage)
		assert.Equal(t, "Jane Doe", due[0].Recipient.Name)
		assert.Equal(t, "America/New_York", due[0].Company.TimeZone)
		assert.NoError(t, due[0].Validate())

		assert.Equal(t, "2", due[1].ReminderID)
		require.NotNil(t, due[1].DueMileage)
		assert.Equal(t, 45000, *due[1].DueMileage)
		assert.Nil(t, due[1].DueDate)
	})

	t.Run("mileage margin", func(t *testing.T) {
		due, err := reminder.New(pool, reminder.WithMileageMargin(100)).DueReminders(ctx, dueBefore)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "oil_change", due[0].Type)
	})

	t.Run("limit", func(t *testing.T) {
		due, err := reminder.New(pool, reminder.WithLimit(1)).DueReminders(ctx, dueBefore)
		require.NoError(t, err)
		require.Len(t, due, 1)
	})

	t.Run("mark sent", func(t *testing.T) {
		require.NoError(t, repo.MarkReminderSent(ctx, "1"))
		require.NoError(t, repo.MarkReminderSent(ctx, "1"))

		var got time.Time
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT sent_at FROM maintenance_reminders WHERE id = 1`).Scan(&got))
		assert.True(t, got.Equal(sentAt))

		due, err := repo.DueReminders(ctx, dueBefore)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "2", due[0].ReminderID)
	})

	t.Run("unknown reminder is permanent", func(t *testing.T) {
		err := repo.MarkReminderSent(ctx, "404")
		require.ErrorIs(t, err, reminder.ErrNotFound)
		assert.True(t, worker.Permanent(err))
	})
}
