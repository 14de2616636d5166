package notifications

import (
	"context"

	"github.com/taskmaster/taskview/internal/ports"
)

// Capability is a notification capability backed by a registration store and
// a fixed permission answer.
type Capability struct {
	supported    bool
	permission   ports.PermissionState
	registration ports.NotificationRegistration
}

// NewCapability returns a supported capability. A nil registration means the
// environment has no background registration.
func NewCapability(registration ports.NotificationRegistration, permission ports.PermissionState) *Capability {
	return &Capability{
		supported:    true,
		permission:   permission,
		registration: registration,
	}
}

// Unsupported returns a capability for an environment without triggered notifications.
func Unsupported() *Capability {
	return &Capability{permission: ports.PermissionDenied}
}

func (c *Capability) Supported() bool {
	return c.supported
}

func (c *Capability) RequestPermission(ctx context.Context) (ports.PermissionState, error) {
	if err := ctx.Err(); err != nil {
		return ports.PermissionDefault, err
	}
	return c.permission, nil
}

func (c *Capability) Registration(ctx context.Context) (ports.NotificationRegistration, error) {
	if !c.supported || c.registration == nil {
		return nil, ports.ErrNoRegistration
	}
	return c.registration, nil
}
