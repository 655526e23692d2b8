// Package motion describes the host device's motion service as the
// dispatcher sees it. Step detection, sensor fusion and calibration all
// happen behind Source; nothing here reproduces them.
package motion

import (
	"context"
	"errors"
	"time"

	"github.com/arko-chat/pedometer/internal/models"
)

var (
	ErrUnavailable      = errors.New("motion: capability unavailable")
	ErrPermissionDenied = errors.New("motion: sensor access denied")
)

type Capability int

const (
	StepCounting Capability = iota
	Distance
	FloorCounting
)

func (c Capability) String() string {
	switch c {
	case StepCounting:
		return "step_counting"
	case Distance:
		return "distance"
	case FloorCounting:
		return "floor_counting"
	default:
		return "unknown"
	}
}

// Handler receives platform callbacks. Implementations must return
// quickly: they run on the platform's delivery thread.
type Handler interface {
	OnUpdate(data models.PedometerData)
	// OnError reports a failure that ends the subscription.
	OnError(err error)
}

type Source interface {
	Available(ctx context.Context, c Capability) (bool, error)

	// StartUpdates begins delivering cumulative updates counted from
	// `from` to h until StopUpdates is called or OnError fires.
	StartUpdates(ctx context.Context, from time.Time, h Handler) error
	StopUpdates() error

	Query(ctx context.Context, start, end time.Time) (models.PedometerData, error)
}
