package notifications

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskmaster/taskview/internal/ports"
)

// MemoryRegistration keeps scheduled notifications in process
type MemoryRegistration struct {
	mu            sync.RWMutex
	notifications map[string]ports.ScheduledNotification
	now           func() time.Time
}

// NewMemoryRegistration creates an empty in-memory registration
func NewMemoryRegistration() *MemoryRegistration {
	return &MemoryRegistration{
		notifications: make(map[string]ports.ScheduledNotification),
		now:           time.Now,
	}
}

// WithClock replaces the clock used to decide what has already triggered.
func (r *MemoryRegistration) WithClock(now func() time.Time) *MemoryRegistration {
	r.now = now
	return r
}

func (r *MemoryRegistration) Notifications(ctx context.Context, filter ports.NotificationFilter) ([]ports.ScheduledNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	out := make([]ports.ScheduledNotification, 0)
	for _, n := range r.notifications {
		if filter.Tag != "" && n.Tag != filter.Tag {
			continue
		}
		if !filter.IncludeTriggered && n.Triggered(now) {
			continue
		}
		out = append(out, n)
	}

	sortByTrigger(out)
	return out, nil
}

func (r *MemoryRegistration) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.notifications[id]; !ok {
		return fmt.Errorf("close %s: %w", id, ports.ErrNotificationNotFound)
	}
	delete(r.notifications, id)
	return nil
}

func (r *MemoryRegistration) Show(ctx context.Context, title string, opts ports.NotificationOptions) (ports.ScheduledNotification, error) {
	n, err := newScheduledNotification(title, opts, r.now())
	if err != nil {
		return ports.ScheduledNotification{}, err
	}

	r.mu.Lock()
	r.notifications[n.ID] = n
	r.mu.Unlock()

	return n, nil
}

func (r *MemoryRegistration) Ping(ctx context.Context) error {
	return ctx.Err()
}

func newScheduledNotification(title string, opts ports.NotificationOptions, now time.Time) (ports.ScheduledNotification, error) {
	if opts.ShowTrigger.IsZero() {
		return ports.ScheduledNotification{}, ports.ErrInvalidTrigger
	}

	return ports.ScheduledNotification{
		ID:          uuid.NewString(),
		Title:       title,
		Tag:         opts.Tag,
		Body:        opts.Body,
		ShowTrigger: opts.ShowTrigger.UTC(),
		Icon:        opts.Icon,
		Badge:       opts.Badge,
		Data:        opts.Data,
		Actions:     opts.Actions,
		CreatedAt:   now.UTC(),
	}, nil
}

func sortByTrigger(ns []ports.ScheduledNotification) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].ShowTrigger.Equal(ns[j].ShowTrigger) {
			return ns[i].ID < ns[j].ID
		}
		return ns[i].ShowTrigger.Before(ns[j].ShowTrigger)
	})
}
