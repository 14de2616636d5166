package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskmaster/taskview/internal/infrastructure/config"
	"github.com/taskmaster/taskview/internal/ports"
)

// RedisRegistration stores each notification as a JSON string and indexes it
// in a sorted set per tag, scored by trigger time in milliseconds.
type RedisRegistration struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisClient connects to the configured Redis server
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.GetAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisRegistration creates a registration on top of client. Keys are
// namespaced under prefix.
func NewRedisRegistration(client redis.UniversalClient, prefix string) *RedisRegistration {
	if prefix == "" {
		prefix = "taskview"
	}
	return &RedisRegistration{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock replaces the clock used to decide what has already triggered.
func (r *RedisRegistration) WithClock(now func() time.Time) *RedisRegistration {
	r.now = now
	return r
}

func (r *RedisRegistration) notificationKey(id string) string {
	return fmt.Sprintf("%s:notification:%s", r.prefix, id)
}

func (r *RedisRegistration) tagKey(tag string) string {
	return fmt.Sprintf("%s:notifications:tag:%s", r.prefix, tag)
}

func (r *RedisRegistration) Notifications(ctx context.Context, filter ports.NotificationFilter) ([]ports.ScheduledNotification, error) {
	lower := "-inf"
	if !filter.IncludeTriggered {
		lower = "(" + strconv.FormatInt(r.now().UnixMilli(), 10)
	}

	ids, err := r.client.ZRangeByScore(ctx, r.tagKey(filter.Tag), &redis.ZRangeBy{Min: lower, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if len(ids) == 0 {
		return []ports.ScheduledNotification{}, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.notificationKey(id))
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}

	out := make([]ports.ScheduledNotification, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// indexed but gone
			continue
		}
		var n ports.ScheduledNotification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, fmt.Errorf("decode notification %s: %w", ids[i], err)
		}
		out = append(out, n)
	}

	sortByTrigger(out)
	return out, nil
}

func (r *RedisRegistration) Close(ctx context.Context, id string) error {
	raw, err := r.client.Get(ctx, r.notificationKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("close %s: %w", id, ports.ErrNotificationNotFound)
	}
	if err != nil {
		return fmt.Errorf("close notification: %w", err)
	}

	var n ports.ScheduledNotification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return fmt.Errorf("decode notification %s: %w", id, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.notificationKey(id))
		pipe.ZRem(ctx, r.tagKey(n.Tag), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("close notification: %w", err)
	}

	return nil
}

func (r *RedisRegistration) Show(ctx context.Context, title string, opts ports.NotificationOptions) (ports.ScheduledNotification, error) {
	n, err := newScheduledNotification(title, opts, r.now())
	if err != nil {
		return ports.ScheduledNotification{}, err
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return ports.ScheduledNotification{}, fmt.Errorf("encode notification: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.notificationKey(n.ID), payload, 0)
		pipe.ZAdd(ctx, r.tagKey(n.Tag), redis.Z{
			Score:  float64(n.ShowTrigger.UnixMilli()),
			Member: n.ID,
		})
		return nil
	})
	if err != nil {
		return ports.ScheduledNotification{}, fmt.Errorf("show notification: %w", err)
	}

	return n, nil
}

func (r *RedisRegistration) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
