package services

import (
	"context"

	"github.com/taskmaster/taskview/internal/domain/entities"
	"github.com/taskmaster/taskview/internal/infrastructure/logger"
)

// TaskViewService turns raw task records into views and keeps their reminder
// notifications in sync
type TaskViewService struct {
	notifications *NotificationService
	logger        *logger.Logger
}

// NewTaskViewService creates a new task view service
func NewTaskViewService(notifications *NotificationService, logger *logger.Logger) *TaskViewService {
	return &TaskViewService{
		notifications: notifications,
		logger:        logger.WithComponent("taskview"),
	}
}

// Normalize builds a view from a raw record. It never touches notifications.
func (s *TaskViewService) Normalize(raw entities.Record) *entities.TaskView {
	return entities.NewTaskView(raw)
}

// NormalizeAll builds a view for each raw record, in order.
func (s *TaskViewService) NormalizeAll(raws []entities.Record) []*entities.TaskView {
	views := make([]*entities.TaskView, 0, len(raws))
	for _, raw := range raws {
		views = append(views, entities.NewTaskView(raw))
	}
	return views
}

// Load normalizes a raw record and starts syncing its notifications. The view
// is usable right away; the channel delivers the sync report when done.
func (s *TaskViewService) Load(ctx context.Context, raw entities.Record) (*entities.TaskView, <-chan SyncReport) {
	view := entities.NewTaskView(raw)
	return view, s.notifications.SyncAsync(ctx, view)
}

// Sync syncs the notifications of each view and its related tasks.
func (s *TaskViewService) Sync(ctx context.Context, views []*entities.TaskView) []SyncReport {
	reports := make([]SyncReport, 0, len(views))
	for _, view := range views {
		reports = append(reports, s.notifications.SyncTree(ctx, view)...)
	}

	s.logger.Infow("Notifications synced", "tasks", len(views), "reports", len(reports))
	return reports
}

// Notifications exposes the underlying notification service.
func (s *TaskViewService) Notifications() *NotificationService {
	return s.notifications
}
