package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskmaster/taskview/internal/domain/entities"
	"github.com/taskmaster/taskview/internal/infrastructure/config"
	"github.com/taskmaster/taskview/internal/infrastructure/logger"
	"github.com/taskmaster/taskview/internal/infrastructure/metrics"
	"github.com/taskmaster/taskview/internal/ports"
)

// ErrNotificationsUnsupported is returned by queries against an environment
// without triggered notifications.
var ErrNotificationsUnsupported = errors.New("triggered notifications are not supported")

// SyncState is where a task's notification sync ended up
type SyncState string

const (
	SyncUnsupported    SyncState = "unsupported"
	SyncNoRegistration SyncState = "no_registration"
	SyncCancelling     SyncState = "cancelling"
	SyncRescheduling   SyncState = "rescheduling"
	SyncIdle           SyncState = "idle"
	SyncFailed         SyncState = "failed"
)

// ScheduleOutcome is the result of scheduling a single reminder
type ScheduleOutcome string

const (
	OutcomeScheduled        ScheduleOutcome = "scheduled"
	OutcomePast             ScheduleOutcome = "past"
	OutcomeInvalid          ScheduleOutcome = "invalid"
	OutcomeUnsupported      ScheduleOutcome = "unsupported"
	OutcomePermissionDenied ScheduleOutcome = "permission_denied"
	OutcomeNoRegistration   ScheduleOutcome = "no_registration"
	OutcomeRejected         ScheduleOutcome = "rejected"
)

// ScheduleResult pairs a reminder with what happened to it
type ScheduleResult struct {
	At      entities.Instant `json:"at"`
	Outcome ScheduleOutcome  `json:"outcome"`
}

// SyncReport describes one cancel-then-reschedule run for a task
type SyncReport struct {
	TaskID    int64            `json:"taskID"`
	Tag       string           `json:"tag"`
	State     SyncState        `json:"state"`
	Cancelled int              `json:"cancelled"`
	Scheduled []ScheduleResult `json:"scheduled"`
}

// NotificationService keeps the scheduled reminder notifications of a task in
// line with its reminder dates
type NotificationService struct {
	capability ports.NotificationCapability
	cfg        config.NotificationsConfig
	metrics    *metrics.NotificationMetrics
	logger     *logger.Logger
	now        func() time.Time
}

// NewNotificationService creates a new notification service. metrics may be nil.
func NewNotificationService(capability ports.NotificationCapability, cfg config.NotificationsConfig, m *metrics.NotificationMetrics, logger *logger.Logger) *NotificationService {
	return &NotificationService{
		capability: capability,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.WithComponent("notifications"),
		now:        time.Now,
	}
}

// WithClock replaces the clock used to decide whether a reminder is in the past.
func (s *NotificationService) WithClock(now func() time.Time) *NotificationService {
	s.now = now
	return s
}

// Tag returns the notification tag shared by all reminders of a task.
func (s *NotificationService) Tag(taskID int64) string {
	return fmt.Sprintf("%s%d", s.cfg.TagPrefix, taskID)
}

// Sync cancels every notification scheduled for the task and then schedules
// one per reminder date. Cancelling always finishes before the first new
// notification is shown. Failures are logged and reported, never returned.
func (s *NotificationService) Sync(ctx context.Context, view *entities.TaskView) SyncReport {
	start := time.Now()
	report := SyncReport{
		TaskID:    view.ID,
		Tag:       s.Tag(view.ID),
		State:     SyncCancelling,
		Scheduled: []ScheduleResult{},
	}

	cancelled, state := s.CancelScheduled(ctx, view.ID)
	report.Cancelled = cancelled
	if state != SyncIdle {
		report.State = state
		s.metrics.ObserveSync(string(report.State), time.Since(start))
		return report
	}

	report.State = SyncRescheduling
	for _, at := range view.Reminders() {
		report.Scheduled = append(report.Scheduled, ScheduleResult{
			At:      at,
			Outcome: s.Schedule(ctx, view, at),
		})
	}
	report.State = SyncIdle

	s.metrics.ObserveSync(string(report.State), time.Since(start))
	return report
}

// SyncAsync runs Sync in the background. The returned channel yields the
// report once and is then closed.
func (s *NotificationService) SyncAsync(ctx context.Context, view *entities.TaskView) <-chan SyncReport {
	done := make(chan SyncReport, 1)
	go func() {
		defer close(done)
		done <- s.Sync(ctx, view)
	}()
	return done
}

// SyncTree syncs the view and every related task reachable from it, each task
// once with the reminders of all its occurrences. Different tasks are synced
// concurrently.
func (s *NotificationService) SyncTree(ctx context.Context, view *entities.TaskView) []SyncReport {
	views := view.Flatten()

	limit := s.cfg.SyncConcurrency
	if limit < 1 {
		limit = 1
	}

	reports := make([]SyncReport, len(views))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, v := range views {
		i, v := i, v
		g.Go(func() error {
			reports[i] = s.Sync(ctx, v)
			return nil
		})
	}
	_ = g.Wait()

	return reports
}

// CancelScheduled closes every notification tagged for the task, including
// ones that already fired. It returns how many were closed and SyncIdle on
// success, or the state that stopped it.
func (s *NotificationService) CancelScheduled(ctx context.Context, taskID int64) (int, SyncState) {
	tag := s.Tag(taskID)
	log := s.logger.WithTask(taskID, tag)

	if !s.capability.Supported() {
		log.Debugw("This environment does not support triggered notifications")
		return 0, SyncUnsupported
	}

	reg, err := s.capability.Registration(ctx)
	if err != nil {
		if errors.Is(err, ports.ErrNoRegistration) {
			log.Debugw("No notification registration, nothing to cancel")
			return 0, SyncNoRegistration
		}
		log.Debugw("Failed to look up notification registration", "error", err)
		return 0, SyncFailed
	}

	scheduled, err := reg.Notifications(ctx, ports.NotificationFilter{Tag: tag, IncludeTriggered: true})
	if err != nil {
		log.Debugw("Failed to list scheduled notifications", "error", err)
		return 0, SyncFailed
	}
	log.Debugw("Already scheduled notifications", "count", len(scheduled))

	cancelled := 0
	for _, n := range scheduled {
		if err := reg.Close(ctx, n.ID); err != nil {
			log.Debugw("Failed to close notification", "notification_id", n.ID, "error", err)
			continue
		}
		cancelled++
	}

	s.metrics.AddCancelled(cancelled)
	return cancelled, SyncIdle
}

// Schedule asks the environment to show a reminder for the task at the given
// time. Past and invalid times are skipped without touching the environment.
func (s *NotificationService) Schedule(ctx context.Context, view *entities.TaskView, at entities.Instant) ScheduleOutcome {
	outcome := s.schedule(ctx, view, at)
	s.metrics.ObserveSchedule(string(outcome))
	return outcome
}

func (s *NotificationService) schedule(ctx context.Context, view *entities.TaskView, at entities.Instant) ScheduleOutcome {
	tag := s.Tag(view.ID)
	log := s.logger.WithTask(view.ID, tag)

	if !at.Valid() {
		log.Debugw("Reminder date is invalid, not scheduling a notification")
		return OutcomeInvalid
	}

	if at.Before(s.now()) {
		log.Debugw("Date is in the past, not scheduling a notification", "date", at.String())
		return OutcomePast
	}

	if !s.capability.Supported() {
		log.Debugw("This environment does not support triggered notifications")
		return OutcomeUnsupported
	}

	permission, err := s.capability.RequestPermission(ctx)
	if err != nil || permission != ports.PermissionGranted {
		log.Debugw("Notification permission not granted, not scheduling", "permission", permission, "error", err)
		return OutcomePermissionDenied
	}

	reg, err := s.capability.Registration(ctx)
	if err != nil {
		log.Errorw("No notification registration available", "error", err)
		return OutcomeNoRegistration
	}

	_, err = reg.Show(ctx, s.cfg.Title, ports.NotificationOptions{
		Tag:         tag,
		Body:        view.Text,
		ShowTrigger: at.Time(),
		Icon:        s.cfg.Icon,
		Badge:       s.cfg.Badge,
		Data:        map[string]interface{}{"taskID": view.ID},
		Actions: []ports.NotificationAction{
			{Action: "mark-as-done", Title: "Done"},
			{Action: "show-task", Title: "Show task"},
		},
	})
	if err != nil {
		log.Debugw("Error scheduling notification", "date", at.String(), "error", err)
		return OutcomeRejected
	}

	log.Debugw("Notification scheduled", "date", at.String())
	return OutcomeScheduled
}

// Scheduled lists the notifications held for a task.
func (s *NotificationService) Scheduled(ctx context.Context, taskID int64, includeTriggered bool) ([]ports.ScheduledNotification, error) {
	if !s.capability.Supported() {
		return nil, ErrNotificationsUnsupported
	}

	reg, err := s.capability.Registration(ctx)
	if err != nil {
		return nil, err
	}

	scheduled, err := reg.Notifications(ctx, ports.NotificationFilter{
		Tag:              s.Tag(taskID),
		IncludeTriggered: includeTriggered,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	return scheduled, nil
}

// Ping checks that the notification store is reachable. An unsupported
// environment or a missing registration is not an error.
func (s *NotificationService) Ping(ctx context.Context) error {
	if !s.capability.Supported() {
		return nil
	}

	reg, err := s.capability.Registration(ctx)
	if errors.Is(err, ports.ErrNoRegistration) {
		return nil
	}
	if err != nil {
		return err
	}

	return reg.Ping(ctx)
}

// StoreStats returns the store counters of the current registration, or nil
// when the registration does not report any.
func (s *NotificationService) StoreStats(ctx context.Context) map[string]interface{} {
	if !s.capability.Supported() {
		return nil
	}

	reg, err := s.capability.Registration(ctx)
	if err != nil {
		return nil
	}

	reporter, ok := reg.(ports.StoreStatsReporter)
	if !ok {
		return nil
	}
	return reporter.Stats()
}
