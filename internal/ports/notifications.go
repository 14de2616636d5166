package ports

import (
	"context"
	"errors"
	"time"
)

// Notification errors
var (
	ErrNoRegistration       = errors.New("no notification registration available")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidTrigger       = errors.New("notification trigger time is invalid")
)

// PermissionState is the user's answer to the notification permission prompt
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionDefault PermissionState = "default"
)

// NotificationAction is a button shown on a notification
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// NotificationOptions describes a notification to schedule
type NotificationOptions struct {
	Tag         string                 `json:"tag"`
	Body        string                 `json:"body"`
	ShowTrigger time.Time              `json:"showTrigger"`
	Icon        string                 `json:"icon,omitempty"`
	Badge       string                 `json:"badge,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Actions     []NotificationAction   `json:"actions,omitempty"`
}

// ScheduledNotification is a notification held by a registration
type ScheduledNotification struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Tag         string                 `json:"tag"`
	Body        string                 `json:"body"`
	ShowTrigger time.Time              `json:"showTrigger"`
	Icon        string                 `json:"icon,omitempty"`
	Badge       string                 `json:"badge,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Actions     []NotificationAction   `json:"actions,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// Triggered reports whether the notification's trigger time has passed.
func (n ScheduledNotification) Triggered(now time.Time) bool {
	return !n.ShowTrigger.After(now)
}

// NotificationFilter selects notifications from a registration
type NotificationFilter struct {
	Tag              string
	IncludeTriggered bool
}

// NotificationCapability is the environment's notification support. An
// unsupported capability answers false to Supported and is never asked for
// anything else.
type NotificationCapability interface {
	Supported() bool
	RequestPermission(ctx context.Context) (PermissionState, error)
	// Registration returns ErrNoRegistration when no background registration exists.
	Registration(ctx context.Context) (NotificationRegistration, error)
}

// NotificationRegistration schedules and lists notifications
type NotificationRegistration interface {
	Notifications(ctx context.Context, filter NotificationFilter) ([]ScheduledNotification, error)
	Close(ctx context.Context, id string) error
	Show(ctx context.Context, title string, opts NotificationOptions) (ScheduledNotification, error)
	Ping(ctx context.Context) error
}

// StoreStatsReporter is implemented by registrations that can describe the
// state of their backing store, such as connection pool counters.
type StoreStatsReporter interface {
	Stats() map[string]interface{}
}
