package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/taskmaster/taskview/internal/domain/entities"
	"github.com/taskmaster/taskview/internal/infrastructure/config"
	"github.com/taskmaster/taskview/internal/infrastructure/logger"
	"github.com/taskmaster/taskview/internal/infrastructure/metrics"
	"github.com/taskmaster/taskview/internal/ports"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeCapability struct {
	supported  bool
	permission ports.PermissionState
	reg        *fakeRegistration
	regErr     error
}

func (f *fakeCapability) Supported() bool { return f.supported }

func (f *fakeCapability) RequestPermission(ctx context.Context) (ports.PermissionState, error) {
	return f.permission, nil
}

func (f *fakeCapability) Registration(ctx context.Context) (ports.NotificationRegistration, error) {
	if f.regErr != nil {
		return nil, f.regErr
	}
	if f.reg == nil {
		return nil, ports.ErrNoRegistration
	}
	return f.reg, nil
}

type fakeRegistration struct {
	mu       sync.Mutex
	calls    []string
	shown    []ports.ScheduledNotification
	existing map[string][]ports.ScheduledNotification
	listErr  error
	showErr  error
	closeErr error
}

func newFakeRegistration() *fakeRegistration {
	return &fakeRegistration{existing: make(map[string][]ports.ScheduledNotification)}
}

func (f *fakeRegistration) Notifications(ctx context.Context, filter ports.NotificationFilter) ([]ports.ScheduledNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("list:%s:%v", filter.Tag, filter.IncludeTriggered))
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.existing[filter.Tag], nil
}

func (f *fakeRegistration) Close(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "close:"+id)
	return f.closeErr
}

func (f *fakeRegistration) Show(ctx context.Context, title string, opts ports.NotificationOptions) (ports.ScheduledNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "show:"+opts.Tag)
	if f.showErr != nil {
		return ports.ScheduledNotification{}, f.showErr
	}
	n := ports.ScheduledNotification{
		ID:          fmt.Sprintf("n%d", len(f.shown)+1),
		Title:       title,
		Tag:         opts.Tag,
		Body:        opts.Body,
		ShowTrigger: opts.ShowTrigger,
		Icon:        opts.Icon,
		Badge:       opts.Badge,
		Data:        opts.Data,
		Actions:     opts.Actions,
	}
	f.shown = append(f.shown, n)
	return n, nil
}

func (f *fakeRegistration) Ping(ctx context.Context) error { return nil }

func (f *fakeRegistration) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func testConfig() config.NotificationsConfig {
	return config.NotificationsConfig{
		Supported:       true,
		Store:           "memory",
		Permission:      "granted",
		TagPrefix:       "taskmaster-task-",
		Title:           "TaskMaster Reminder",
		Icon:            "/icon.png",
		Badge:           "/badge.png",
		SyncConcurrency: 2,
	}
}

func newTestService(capability ports.NotificationCapability) (*NotificationService, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	svc := NewNotificationService(capability, testConfig(), nil, logger.FromZap(zap.New(core)))
	return svc.WithClock(func() time.Time { return testNow }), logs
}

func viewWithReminders(id int64, reminders ...interface{}) *entities.TaskView {
	return entities.NewTaskView(entities.Record{
		"id":            id,
		"text":          "Buy milk",
		"reminderDates": reminders,
	})
}

func TestNotificationService_Tag(t *testing.T) {
	svc, _ := newTestService(&fakeCapability{})
	assert.Equal(t, "taskmaster-task-42", svc.Tag(42))
}

func TestSchedule_PastDateNeverShows(t *testing.T) {
	reg := newFakeRegistration()
	svc, _ := newTestService(&fakeCapability{supported: true, permission: ports.PermissionGranted, reg: reg})

	outcome := svc.Schedule(context.Background(), viewWithReminders(1), entities.InstantOf(testNow.Add(-time.Second)))

	assert.Equal(t, OutcomePast, outcome)
	assert.Empty(t, reg.callLog())
}

func TestSchedule_InvalidDateIsSkipped(t *testing.T) {
	reg := newFakeRegistration()
	svc, _ := newTestService(&fakeCapability{supported: true, permission: ports.PermissionGranted, reg: reg})

	outcome := svc.Schedule(context.Background(), viewWithReminders(1), entities.InvalidInstant())

	assert.Equal(t, OutcomeInvalid, outcome)
	assert.Empty(t, reg.callLog())
}

func TestSchedule_ShowsNotification(t *testing.T) {
	reg := newFakeRegistration()
	svc, _ := newTestService(&fakeCapability{supported: true, permission: ports.PermissionGranted, reg: reg})
	at := testNow.Add(time.Hour)

	outcome := svc.Schedule(context.Background(), viewWithReminders(7), entities.InstantOf(at))

	require.Equal(t, OutcomeScheduled, outcome)
	require.Len(t, reg.shown, 1)
	n := reg.shown[0]
	assert.Equal(t, "TaskMaster Reminder", n.Title)
	assert.Equal(t, "taskmaster-task-7", n.Tag)
	assert.Equal(t, "Buy milk", n.Body)
	assert.Equal(t, at, n.ShowTrigger)
	assert.Equal(t, "/icon.png", n.Icon)
	assert.Equal(t, "/badge.png", n.Badge)
	assert.Equal(t, map[string]interface{}{"taskID": int64(7)}, n.Data)
	assert.Equal(t, []ports.NotificationAction{
		{Action: "mark-as-done", Title: "Done"},
		{Action: "show-task", Title: "Show task"},
	}, n.Actions)
}

func TestSchedule_SkipReasons(t *testing.T) {
	future := entities.InstantOf(testNow.Add(time.Hour))

	tests := []struct {
		name       string
		capability *fakeCapability
		outcome    ScheduleOutcome
		level      zapcore.Level
	}{
		{"unsupported", &fakeCapability{supported: false}, OutcomeUnsupported, zapcore.DebugLevel},
		{"permission denied", &fakeCapability{supported: true, permission: ports.PermissionDenied, reg: newFakeRegistration()}, OutcomePermissionDenied, zapcore.DebugLevel},
		{"permission default", &fakeCapability{supported: true, permission: ports.PermissionDefault, reg: newFakeRegistration()}, OutcomePermissionDenied, zapcore.DebugLevel},
		{"no registration", &fakeCapability{supported: true, permission: ports.PermissionGranted}, OutcomeNoRegistration, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, logs := newTestService(tt.capability)

			outcome := svc.Schedule(context.Background(), viewWithReminders(1), future)

			assert.Equal(t, tt.outcome, outcome)
			require.Equal(t, 1, logs.Len())
			assert.Equal(t, tt.level, logs.All()[0].Level)
			if tt.capability.reg != nil {
				assert.Empty(t, tt.capability.reg.shown)
			}
		})
	}
}

func TestSchedule_RejectionIsSwallowed(t *testing.T) {
	reg := newFakeRegistration()
	reg.showErr = errors.New("quota exceeded")
	svc, logs := newTestService(&fakeCapability{supported: true, permission: ports.PermissionGranted, reg: reg})

	outcome := svc.Schedule(context.Background(), viewWithReminders(1), entities.InstantOf(testNow.Add(time.Hour)))

	assert.Equal(t, OutcomeRejected, outcome)
	require.Equal(t, 1, logs.FilterMessage("Error scheduling notification").Len())
	assert.Equal(t, zapcore.DebugLevel, logs.FilterMessage("Error scheduling notification").All()[0].Level)
}

func TestSync_CancelsBeforeRescheduling(t *testing.T) {
	reg := newFakeRegistration()
	reg.existing["taskmaster-task-3"] = []ports.ScheduledNotification{{ID: "old1"}, {ID: "old2"}}
	svc, _ := newTestService(&fakeCapability{supported: true, permission: ports.PermissionGranted, reg: reg})

	view := viewWithReminders(3, testNow.Add(time.Hour).Unix(), testNow.Add(-time.Hour).Unix(), testNow.Add(2*time.Hour).Unix())
	report := svc.Sync(context.Background(), view)

	assert.Equal(t, SyncIdle, report.State)
	assert.Equal(t, "taskmaster-task-3", report.Tag)
	assert.Equal(t, 2, report.Cancelled)
	require.Len(t, report.Scheduled, 3)
	assert.Equal(t, OutcomeScheduled, report.Scheduled[0].Outcome)
	assert.Equal(t, OutcomePast, report.Scheduled[1].Outcome)
	assert.Equal(t, OutcomeScheduled, report.Scheduled[2].Outcome)

	assert.Equal(t, []string{
		"list:taskmaster-task-3:true",
		"close:old1",
		"close:old2",
		"show:taskmaster-task-3",
		"show:taskmaster-task-3",
	}, reg.callLog())
}

func TestSync_NoRemindersOnlyCancels(t *testing.T) {
	reg := newFakeRegistration()
	svc, _ := newTestService(&fakeCapability{supported: true, permission: ports.PermissionGranted, reg: reg})

	report := svc.Sync(context.Background(), viewWithReminders(3))

	assert.Equal(t, SyncIdle, report.State)
	assert.Empty(t, report.Scheduled)
	assert.Equal(t, []string{"list:taskmaster-task-3:true"}, reg.callLog())
}

func TestSync_TerminalStates(t *testing.T) {
	future := testNow.Add(time.Hour).Unix()

	t.Run("unsupported", func(t *testing.T) {
		svc, logs := newTestService(&fakeCapability{supported: false})
		report := svc.Sync(context.Background(), viewWithReminders(1, future))

		assert.Equal(t, SyncUnsupported, report.State)
		assert.Empty(t, report.Scheduled)
		assert.Equal(t, 0, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	})

	t.Run("no registration", func(t *testing.T) {
		svc, logs := newTestService(&fakeCapability{supported: true, permission: ports.PermissionGranted})
		report := svc.Sync(context.Background(), viewWithReminders(1, future))

		assert.Equal(t, SyncNoRegistration, report.State)
		assert.Empty(t, report.Scheduled)
		// the cancel path only logs at debug level
		assert.Equal(t, 0, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	})

	t.Run("listing fails", func(t *testing.T) {
		reg := newFakeRegistration()
		reg.listErr = errors.New("store down")
		svc, _ := newTestService(&fakeCapability{supported: true, permission: ports.PermissionGranted, reg: reg})
		report := svc.Sync(context.Background(), viewWithReminders(1, future))

		assert.Equal(t, SyncFailed, report.State)
		assert.Empty(t, reg.shown)
	})

	t.Run("registration lookup fails", func(t *testing.T) {
		svc, _ := newTestService(&fakeCapability{supported: true, regErr: errors.New("boom")})
		report := svc.Sync(context.Background(), viewWithReminders(1, future))

		assert.Equal(t, SyncFailed, report.State)
	})
}

func TestSync_CloseFailureContinues(t *testing.T) {
	reg := newFakeRegistration()
	reg.existing["taskmaster-task-5"] = []ports.ScheduledNotification{{ID: "a"}, {ID: "b"}}
	reg.closeErr = ports.ErrNotificationNotFound
	svc, _ := newTestService(&fakeCapability{supported: true, permission: ports.PermissionGranted, reg: reg})

	report := svc.Sync(context.Background(), viewWithReminders(5, testNow.Add(time.Hour).Unix()))

	assert.Equal(t, SyncIdle, report.State)
	assert.Equal(t, 0, report.Cancelled)
	assert.Len(t, reg.shown, 1)
}

func TestSync_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewNotificationMetrics(reg)
	capability := &fakeCapability{supported: true, permission: ports.PermissionGranted, reg: newFakeRegistration()}
	svc := NewNotificationService(capability, testConfig(), m, logger.NewNop()).WithClock(func() time.Time { return testNow })

	svc.Sync(context.Background(), viewWithReminders(1, testNow.Add(time.Hour).Unix()))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "taskview_notification_syncs_total")
	assert.Contains(t, names, "taskview_notification_schedules_total")
}

func TestSyncAsync_DeliversOnceAndCloses(t *testing.T) {
	reg := newFakeRegistration()
	svc, _ := newTestService(&fakeCapability{supported: true, permission: ports.PermissionGranted, reg: reg})

	done := svc.SyncAsync(context.Background(), viewWithReminders(9, testNow.Add(time.Hour).Unix()))

	report, ok := <-done
	require.True(t, ok)
	assert.Equal(t, SyncIdle, report.State)
	assert.Equal(t, int64(9), report.TaskID)

	_, ok = <-done
	assert.False(t, ok)
}

func TestSyncTree_SyncsEachTaskOnce(t *testing.T) {
	reg := newFakeRegistration()
	svc, _ := newTestService(&fakeCapability{supported: true, permission: ports.PermissionGranted, reg: reg})
	future := testNow.Add(time.Hour).Unix()

	view := entities.NewTaskView(entities.Record{
		"id":            1,
		"reminderDates": []interface{}{future},
		"related_tasks": map[string]interface{}{
			"subtask": []interface{}{
				map[string]interface{}{"id": 2, "reminderDates": []interface{}{future}},
				map[string]interface{}{"id": 3},
			},
			"related": []interface{}{map[string]interface{}{"id": 2}},
		},
	})

	reports := svc.SyncTree(context.Background(), view)

	require.Len(t, reports, 3)
	ids := []int64{reports[0].TaskID, reports[1].TaskID, reports[2].TaskID}
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids)
	for _, r := range reports {
		assert.Equal(t, SyncIdle, r.State)
		if r.TaskID == 2 {
			// the "related" copy has no reminders, the subtask copy has one
			require.Len(t, r.Scheduled, 1)
			assert.Equal(t, OutcomeScheduled, r.Scheduled[0].Outcome)
		}
	}
	assert.Len(t, reg.shown, 2)

	// per task, the listing happens before any show for that tag
	log := reg.callLog()
	for _, tag := range []string{"taskmaster-task-1", "taskmaster-task-2"} {
		listAt, showAt := -1, -1
		for i, c := range log {
			if c == "list:"+tag+":true" {
				listAt = i
			}
			if c == "show:"+tag && showAt == -1 {
				showAt = i
			}
		}
		assert.True(t, listAt >= 0 && listAt < showAt, "tag %s: %v", tag, log)
	}
}

func TestScheduled(t *testing.T) {
	reg := newFakeRegistration()
	reg.existing["taskmaster-task-4"] = []ports.ScheduledNotification{{ID: "x"}}
	svc, _ := newTestService(&fakeCapability{supported: true, reg: reg})

	got, err := svc.Scheduled(context.Background(), 4, false)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, []string{"list:taskmaster-task-4:false"}, reg.callLog())

	unsupported, _ := newTestService(&fakeCapability{})
	_, err = unsupported.Scheduled(context.Background(), 4, false)
	assert.ErrorIs(t, err, ErrNotificationsUnsupported)

	missing, _ := newTestService(&fakeCapability{supported: true})
	_, err = missing.Scheduled(context.Background(), 4, false)
	assert.ErrorIs(t, err, ports.ErrNoRegistration)
}

func TestPing(t *testing.T) {
	svc, _ := newTestService(&fakeCapability{supported: true, reg: newFakeRegistration()})
	assert.NoError(t, svc.Ping(context.Background()))

	missing, _ := newTestService(&fakeCapability{supported: true})
	assert.NoError(t, missing.Ping(context.Background()))

	broken, _ := newTestService(&fakeCapability{supported: true, regErr: errors.New("down")})
	assert.Error(t, broken.Ping(context.Background()))
}

type statsRegistration struct {
	*fakeRegistration
}

func (statsRegistration) Stats() map[string]interface{} {
	return map[string]interface{}{"open_connections": 2}
}

type statsCapability struct {
	fakeCapability
}

func (f *statsCapability) Registration(ctx context.Context) (ports.NotificationRegistration, error) {
	return statsRegistration{f.reg}, nil
}

func TestStoreStats(t *testing.T) {
	withStats, _ := newTestService(&statsCapability{fakeCapability{supported: true, reg: newFakeRegistration()}})
	assert.Equal(t, map[string]interface{}{"open_connections": 2}, withStats.StoreStats(context.Background()))

	plain, _ := newTestService(&fakeCapability{supported: true, reg: newFakeRegistration()})
	assert.Nil(t, plain.StoreStats(context.Background()))

	missing, _ := newTestService(&fakeCapability{supported: true})
	assert.Nil(t, missing.StoreStats(context.Background()))

	unsupported, _ := newTestService(&fakeCapability{})
	assert.Nil(t, unsupported.StoreStats(context.Background()))
}
