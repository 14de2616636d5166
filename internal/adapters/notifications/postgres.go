package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskmaster/taskview/internal/infrastructure/database"
	"github.com/taskmaster/taskview/internal/infrastructure/logger"
	"github.com/taskmaster/taskview/internal/ports"
)

// PostgresRegistration stores scheduled notifications in the
// scheduled_notifications table
type PostgresRegistration struct {
	db     *database.DB
	logger *logger.Logger
	now    func() time.Time
}

type notificationRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Tag         string    `db:"tag"`
	Body        string    `db:"body"`
	ShowTrigger time.Time `db:"show_trigger"`
	Icon        string    `db:"icon"`
	Badge       string    `db:"badge"`
	Data        []byte    `db:"data"`
	Actions     []byte    `db:"actions"`
	CreatedAt   time.Time `db:"created_at"`
}

func (row notificationRow) toNotification() (ports.ScheduledNotification, error) {
	n := ports.ScheduledNotification{
		ID:          row.ID,
		Title:       row.Title,
		Tag:         row.Tag,
		Body:        row.Body,
		ShowTrigger: row.ShowTrigger.UTC(),
		Icon:        row.Icon,
		Badge:       row.Badge,
		CreatedAt:   row.CreatedAt.UTC(),
	}

	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &n.Data); err != nil {
			return n, fmt.Errorf("decode data of notification %s: %w", row.ID, err)
		}
	}
	if len(row.Actions) > 0 {
		if err := json.Unmarshal(row.Actions, &n.Actions); err != nil {
			return n, fmt.Errorf("decode actions of notification %s: %w", row.ID, err)
		}
	}

	return n, nil
}

// NewPostgresRegistration creates a registration on top of db
func NewPostgresRegistration(db *database.DB, logger *logger.Logger) *PostgresRegistration {
	return &PostgresRegistration{
		db:     db,
		logger: logger.WithComponent("notification_store"),
		now:    time.Now,
	}
}

// WithClock replaces the clock used to decide what has already triggered.
func (r *PostgresRegistration) WithClock(now func() time.Time) *PostgresRegistration {
	r.now = now
	return r
}

func (r *PostgresRegistration) Notifications(ctx context.Context, filter ports.NotificationFilter) ([]ports.ScheduledNotification, error) {
	query := `
		SELECT id, title, tag, body, show_trigger, icon, badge, data, actions, created_at
		FROM scheduled_notifications
		WHERE tag = $1`
	args := []interface{}{filter.Tag}

	if !filter.IncludeTriggered {
		query += ` AND show_trigger > $2`
		args = append(args, r.now().UTC())
	}
	query += ` ORDER BY show_trigger, id`

	start := time.Now()
	var rows []notificationRow
	err := r.db.DB.SelectContext(ctx, &rows, query, args...)
	r.logger.LogDatabaseQuery("list scheduled notifications", millisSince(start), err)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	out := make([]ports.ScheduledNotification, 0, len(rows))
	for _, row := range rows {
		n, err := row.toNotification()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}

	return out, nil
}

func (r *PostgresRegistration) Close(ctx context.Context, id string) error {
	query := `DELETE FROM scheduled_notifications WHERE id = $1`

	start := time.Now()
	result, err := r.db.DB.ExecContext(ctx, query, id)
	r.logger.LogDatabaseQuery("delete scheduled notification", millisSince(start), err)
	if err != nil {
		return fmt.Errorf("close notification: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("close notification: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("close %s: %w", id, ports.ErrNotificationNotFound)
	}

	return nil
}

func (r *PostgresRegistration) Show(ctx context.Context, title string, opts ports.NotificationOptions) (ports.ScheduledNotification, error) {
	n, err := newScheduledNotification(title, opts, r.now())
	if err != nil {
		return ports.ScheduledNotification{}, err
	}

	data, err := json.Marshal(n.Data)
	if err != nil {
		return ports.ScheduledNotification{}, fmt.Errorf("encode notification data: %w", err)
	}
	actions, err := json.Marshal(n.Actions)
	if err != nil {
		return ports.ScheduledNotification{}, fmt.Errorf("encode notification actions: %w", err)
	}

	query := `
		INSERT INTO scheduled_notifications (id, title, tag, body, show_trigger, icon, badge, data, actions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	start := time.Now()
	_, err = r.db.DB.ExecContext(ctx, query,
		n.ID, n.Title, n.Tag, n.Body, n.ShowTrigger,
		n.Icon, n.Badge, data, actions, n.CreatedAt,
	)
	r.logger.LogDatabaseQuery("insert scheduled notification", millisSince(start), err)
	if err != nil {
		return ports.ScheduledNotification{}, fmt.Errorf("show notification: %w", err)
	}

	return n, nil
}

func (r *PostgresRegistration) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// Stats returns the connection pool counters of the database.
func (r *PostgresRegistration) Stats() map[string]interface{} {
	return r.db.GetConnectionInfo()
}

func millisSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
