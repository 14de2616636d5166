package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/taskview/internal/ports"
)

func newRedisRegistration(t *testing.T) (*RedisRegistration, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	reg := NewRedisRegistration(client, "test")
	return reg.WithClock(func() time.Time { return testNow }), mr
}

func TestRedisRegistration_ShowAndList(t *testing.T) {
	ctx := context.Background()
	reg, mr := newRedisRegistration(t)

	later, err := reg.Show(ctx, "Reminder", reminder("task-1", testNow.Add(2*time.Hour)))
	require.NoError(t, err)
	sooner, err := reg.Show(ctx, "Reminder", reminder("task-1", testNow.Add(time.Hour)))
	require.NoError(t, err)
	_, err = reg.Show(ctx, "Reminder", reminder("task-2", testNow.Add(time.Hour)))
	require.NoError(t, err)

	assert.True(t, mr.Exists("test:notification:"+later.ID))

	got, err := reg.Notifications(ctx, ports.NotificationFilter{Tag: "task-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, sooner.ID, got[0].ID)
	assert.Equal(t, later.ID, got[1].ID)
	assert.Equal(t, "Buy milk", got[0].Body)
	assert.Equal(t, map[string]interface{}{"taskID": float64(1)}, got[0].Data)
	assert.True(t, got[0].ShowTrigger.Equal(testNow.Add(time.Hour)))
}

func TestRedisRegistration_TriggeredFilter(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRedisRegistration(t)

	_, err := reg.Show(ctx, "Reminder", reminder("task-1", testNow.Add(-time.Minute)))
	require.NoError(t, err)
	_, err = reg.Show(ctx, "Reminder", reminder("task-1", testNow))
	require.NoError(t, err)
	_, err = reg.Show(ctx, "Reminder", reminder("task-1", testNow.Add(time.Minute)))
	require.NoError(t, err)

	pending, err := reg.Notifications(ctx, ports.NotificationFilter{Tag: "task-1"})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	all, err := reg.Notifications(ctx, ports.NotificationFilter{Tag: "task-1", IncludeTriggered: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRedisRegistration_Close(t *testing.T) {
	ctx := context.Background()
	reg, mr := newRedisRegistration(t)

	n, err := reg.Show(ctx, "Reminder", reminder("task-1", testNow.Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, reg.Close(ctx, n.ID))
	assert.False(t, mr.Exists("test:notification:"+n.ID))
	assert.ErrorIs(t, reg.Close(ctx, n.ID), ports.ErrNotificationNotFound)

	got, err := reg.Notifications(ctx, ports.NotificationFilter{Tag: "task-1", IncludeTriggered: true})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisRegistration_SkipsDanglingIndexEntries(t *testing.T) {
	ctx := context.Background()
	reg, mr := newRedisRegistration(t)

	n, err := reg.Show(ctx, "Reminder", reminder("task-1", testNow.Add(time.Hour)))
	require.NoError(t, err)
	mr.Del("test:notification:" + n.ID)

	got, err := reg.Notifications(ctx, ports.NotificationFilter{Tag: "task-1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisRegistration_Ping(t *testing.T) {
	reg, mr := newRedisRegistration(t)

	assert.NoError(t, reg.Ping(context.Background()))

	mr.Close()
	assert.Error(t, reg.Ping(context.Background()))
}
