package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/taskmaster/taskview/internal/application/services"
	"github.com/taskmaster/taskview/internal/domain/entities"
	"github.com/taskmaster/taskview/internal/infrastructure/logger"
	"github.com/taskmaster/taskview/internal/ports"
)

// maxBodyBytes bounds the raw task payload read by Normalize.
const maxBodyBytes = 4 << 20

// TaskResponse is a normalized task plus values derived from it
type TaskResponse struct {
	Task         *entities.TaskView `json:"task"`
	HasDarkColor bool               `json:"hasDarkColor"`
}

// NormalizeResponse is returned by the normalize endpoint
type NormalizeResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// SyncRequest carries raw task records whose reminders should be synced
type SyncRequest struct {
	Tasks []entities.Record `json:"tasks" validate:"required,min=1"`
}

// SyncResponse is returned by the sync endpoint
type SyncResponse struct {
	Tasks   []TaskResponse         `json:"tasks"`
	Reports []services.SyncReport `json:"reports"`
}

// NotificationsResponse lists the notifications scheduled for a task
type NotificationsResponse struct {
	TaskID        int64                         `json:"taskID"`
	Tag           string                        `json:"tag"`
	Notifications []ports.ScheduledNotification `json:"notifications"`
}

// CancelResponse reports a cancellation
type CancelResponse struct {
	TaskID    int64              `json:"taskID"`
	Tag       string             `json:"tag"`
	Cancelled int                `json:"cancelled"`
	State     services.SyncState `json:"state"`
}

// TaskHandler handles task view requests
type TaskHandler struct {
	taskViewService *services.TaskViewService
	logger          *logger.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskViewService *services.TaskViewService, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{
		taskViewService: taskViewService,
		logger:          logger,
	}
}

// Normalize turns one raw task record, or an array of them, into task views
func (h *TaskHandler) Normalize(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	records, err := entities.RecordsFromJSON(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	views := h.taskViewService.NormalizeAll(records)

	return c.JSON(http.StatusOK, NormalizeResponse{Tasks: taskResponses(views)})
}

// Sync normalizes the given tasks and reschedules their reminder notifications
func (h *TaskHandler) Sync(c echo.Context) error {
	var req SyncRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	views := h.taskViewService.NormalizeAll(req.Tasks)
	reports := h.taskViewService.Sync(c.Request().Context(), views)

	return c.JSON(http.StatusOK, SyncResponse{
		Tasks:   taskResponses(views),
		Reports: reports,
	})
}

// ListNotifications lists the notifications scheduled for a task
func (h *TaskHandler) ListNotifications(c echo.Context) error {
	taskID, err := taskIDParam(c)
	if err != nil {
		return err
	}

	includeTriggered, _ := strconv.ParseBool(c.QueryParam("include_triggered"))

	notifications := h.taskViewService.Notifications()
	scheduled, err := notifications.Scheduled(c.Request().Context(), taskID, includeTriggered)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotificationsUnsupported):
			return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
		case errors.Is(err, ports.ErrNoRegistration):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		h.logger.Errorw("List notifications failed", "error", err, "task_id", taskID)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list notifications")
	}

	return c.JSON(http.StatusOK, NotificationsResponse{
		TaskID:        taskID,
		Tag:           notifications.Tag(taskID),
		Notifications: scheduled,
	})
}

// CancelNotifications cancels every notification scheduled for a task
func (h *TaskHandler) CancelNotifications(c echo.Context) error {
	taskID, err := taskIDParam(c)
	if err != nil {
		return err
	}

	notifications := h.taskViewService.Notifications()
	cancelled, state := notifications.CancelScheduled(c.Request().Context(), taskID)

	return c.JSON(http.StatusOK, CancelResponse{
		TaskID:    taskID,
		Tag:       notifications.Tag(taskID),
		Cancelled: cancelled,
		State:     state,
	})
}

func taskIDParam(c echo.Context) (int64, error) {
	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid task ID")
	}
	return taskID, nil
}

func taskResponses(views []*entities.TaskView) []TaskResponse {
	out := make([]TaskResponse, 0, len(views))
	for _, v := range views {
		out = append(out, TaskResponse{Task: v, HasDarkColor: v.HasDarkColor()})
	}
	return out
}
