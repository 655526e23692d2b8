package motion

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/arko-chat/pedometer/internal/models"
)

// SimulatorOptions configures a Simulator. The zero value has every
// capability disabled.
type SimulatorOptions struct {
	StepCounting  bool
	Distance      bool
	FloorCounting bool
	History       bool

	Interval     time.Duration
	Cadence      float64 // steps per second
	StrideLength float64 // meters
}

// Simulator is a Source that walks at a constant cadence. Desktop builds
// have no motion coprocessor, so the desktop host runs on this.
type Simulator struct {
	opts SimulatorOptions
	now  func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Source = (*Simulator)(nil)

func NewSimulator(opts SimulatorOptions) *Simulator {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	return &Simulator{opts: opts, now: time.Now}
}

func (s *Simulator) Available(_ context.Context, c Capability) (bool, error) {
	switch c {
	case StepCounting:
		return s.opts.StepCounting, nil
	case Distance:
		return s.opts.Distance, nil
	case FloorCounting:
		return s.opts.FloorCounting, nil
	default:
		return false, fmt.Errorf("simulator: unknown capability %d", c)
	}
}

func (s *Simulator) StartUpdates(_ context.Context, from time.Time, h Handler) error {
	if !s.opts.StepCounting {
		return ErrUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Go(func() {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.OnUpdate(s.sample(from, s.now()))
			}
		}
	})
	return nil
}

func (s *Simulator) StopUpdates() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.cancel = nil
	s.wg.Wait()
	return nil
}

func (s *Simulator) Query(_ context.Context, start, end time.Time) (models.PedometerData, error) {
	if !s.opts.History || !s.opts.StepCounting {
		return models.PedometerData{}, ErrUnavailable
	}
	return s.sample(start, end), nil
}

func (s *Simulator) sample(start, end time.Time) models.PedometerData {
	elapsed := end.Sub(start).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	steps := int64(math.Floor(elapsed * s.opts.Cadence))

	data := models.PedometerData{
		StartDate:     start,
		EndDate:       end,
		NumberOfSteps: steps,
	}
	if s.opts.Distance {
		d := float64(steps) * s.opts.StrideLength
		data.Distance = &d
		if s.opts.StrideLength > 0 && s.opts.Cadence > 0 {
			pace := 1 / (s.opts.Cadence * s.opts.StrideLength)
			data.CurrentPace = &pace
		}
	}
	if s.opts.FloorCounting {
		var zero int64
		data.FloorsAscended = &zero
		data.FloorsDescended = &zero
	}
	if s.opts.Cadence > 0 {
		cadence := s.opts.Cadence
		data.CurrentCadence = &cadence
	}
	return data
}
