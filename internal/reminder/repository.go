// Package reminder reads maintenance reminders from the service database and
// records their delivery.
//
// It expects the business tables maintained by the main backend:
//
//	maintenance_reminders(id, car_id, type, due_date, due_mileage, sent_at)
//	cars(id, customer_id, make, model, year, license_plate, vin, mileage)
//	customers(id, company_id, name, phone, email)
//	companies(id, name, phone, email, address, website, time_zone)
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/PermAdut/autoservice-notify/pkg/logger"
	"github.com/PermAdut/autoservice-notify/pkg/notify"
	"github.com/PermAdut/autoservice-notify/pkg/worker"
)

const (
	DefaultMileageMargin = 500
	DefaultLimit         = 1000
)

// ErrNotFound is returned when marking a reminder id that does not exist.
// It is permanent: the delivery job fails instead of retrying.
var ErrNotFound = errors.Join(worker.ErrPermanent, errors.New("reminder: not found"))

// DB is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements scheduler.ReminderSource and worker.ReminderMarker.
type Repository struct {
	db      DB
	log     *slog.Logger
	margin  int
	limit   int
	nowFunc func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithMileageMargin treats a mileage reminder as due when the car is within
// n miles of it. Default 500.
func WithMileageMargin(n int) Option {
	return func(r *Repository) {
		if n >= 0 {
			r.margin = n
		}
	}
}

// WithLimit caps reminders per scan. Default 1000.
func WithLimit(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.limit = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.log = l
		}
	}
}

// WithNow sets the time source for sent_at.
func WithNow(fn func() time.Time) Option {
	return func(r *Repository) {
		if fn != nil {
			r.nowFunc = fn
		}
	}
}

// New creates a Repository over db.
func New(db DB, opts ...Option) *Repository {
	r := &Repository{
		db:      db,
		log:     logger.NewNope(),
		margin:  DefaultMileageMargin,
		limit:   DefaultLimit,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const dueRemindersSQL = `
SELECT r.id::text, r.type, r.due_date::timestamptz, r.due_mileage,
       coalesce(c.make, ''), coalesce(c.model, ''), coalesce(c.year, 0),
       coalesce(c.license_plate, ''), coalesce(c.vin, ''), coalesce(c.mileage, 0),
       coalesce(cu.name, ''), coalesce(cu.phone, ''), coalesce(cu.email, ''),
       co.name, coalesce(co.phone, ''), coalesce(co.email, ''), coalesce(co.address, ''),
       coalesce(co.website, ''), coalesce(co.time_zone, '')
FROM maintenance_reminders r
JOIN cars c ON c.id = r.car_id
JOIN customers cu ON cu.id = c.customer_id
JOIN companies co ON co.id = cu.company_id
WHERE r.sent_at IS NULL
  AND (
        r.due_date < $1
     OR (r.due_mileage IS NOT NULL AND coalesce(c.mileage, 0) + $2 >= r.due_mileage)
  )
ORDER BY r.due_date NULLS LAST, r.id
LIMIT $3`

// DueReminders returns unsent reminders due before dueBefore, by date or
// by current car mileage.
func (r *Repository) DueReminders(ctx context.Context, dueBefore time.Time) ([]notify.MaintenanceReminder, error) {
	rows, err := r.db.Query(ctx, dueRemindersSQL, dueBefore, r.margin, r.limit)
	if err != nil {
		return nil, fmt.Errorf("reminder: query due reminders: %w", err)
	}

	reminders, err := pgx.CollectRows(rows, scanReminder)
	if err != nil {
		return nil, fmt.Errorf("reminder: scan due reminders: %w", err)
	}
	return reminders, nil
}

func scanReminder(row pgx.CollectableRow) (notify.MaintenanceReminder, error) {
	var (
		m       notify.MaintenanceReminder
		dueDate *time.Time
		mileage *int32
	)
	err := row.Scan(
		&m.ReminderID, &m.Type, &dueDate, &mileage,
		&m.Car.Make, &m.Car.Model, &m.Car.Year,
		&m.Car.LicensePlate, &m.Car.VIN, &m.Car.Mileage,
		&m.Recipient.Name, &m.Recipient.Phone, &m.Recipient.Email,
		&m.Company.Name, &m.Company.Phone, &m.Company.Email, &m.Company.Address,
		&m.Company.Website, &m.Company.TimeZone,
	)
	if err != nil {
		return m, err
	}
	if dueDate != nil {
		d := dueDate.UTC()
		m.DueDate = &d
	}
	if mileage != nil {
		n := int(*mileage)
		m.DueMileage = &n
	}
	return m, nil
}

// MarkReminderSent sets sent_at once. Marking an already sent reminder is
// a no-op.
func (r *Repository) MarkReminderSent(ctx context.Context, reminderID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE maintenance_reminders SET sent_at = $2 WHERE id::text = $1 AND sent_at IS NULL`,
		reminderID, r.nowFunc().UTC(),
	)
	if err != nil {
		return fmt.Errorf("reminder: mark %s sent: %w", reminderID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM maintenance_reminders WHERE id::text = $1)`, reminderID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("reminder: mark %s sent: %w", reminderID, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, reminderID)
	}
	r.log.DebugContext(ctx, "reminder already marked sent", slog.String("reminder_id", reminderID))
	return nil
}

var _ worker.ReminderMarker = (*Repository)(nil)
