package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arko-chat/pedometer/internal/models"
	"github.com/arko-chat/pedometer/internal/motion"
)

// Source adapts a NativeMotion to motion.Source.
type Source struct {
	native NativeMotion

	mu       sync.Mutex
	listener *listener
}

var _ motion.Source = (*Source)(nil)

func NewSource(native NativeMotion) *Source {
	return &Source{native: native}
}

func (s *Source) Available(_ context.Context, c motion.Capability) (bool, error) {
	var (
		ok  bool
		err error
	)
	switch c {
	case motion.StepCounting:
		ok, err = s.native.IsStepCountingAvailable()
	case motion.Distance:
		ok, err = s.native.IsDistanceAvailable()
	case motion.FloorCounting:
		ok, err = s.native.IsFloorCountingAvailable()
	default:
		return false, fmt.Errorf("bridge: unknown capability %s", c)
	}
	if err != nil {
		return false, classify(err)
	}
	return ok, nil
}

func (s *Source) StartUpdates(_ context.Context, from time.Time, h motion.Handler) error {
	l := &listener{h: h}

	s.mu.Lock()
	if s.listener != nil {
		s.listener.detach()
	}
	s.listener = l
	s.mu.Unlock()

	if err := s.native.StartUpdates(models.Millis(from), l); err != nil {
		l.detach()
		return classify(err)
	}
	return nil
}

func (s *Source) StopUpdates() error {
	s.mu.Lock()
	if s.listener != nil {
		s.listener.detach()
		s.listener = nil
	}
	s.mu.Unlock()

	if err := s.native.StopUpdates(); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Source) Query(_ context.Context, start, end time.Time) (models.PedometerData, error) {
	raw, err := s.native.QueryData(models.Millis(start), models.Millis(end))
	if err != nil {
		return models.PedometerData{}, classify(err)
	}

	var data models.PedometerData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return models.PedometerData{}, fmt.Errorf("bridge: decode query result: %w", err)
	}
	return data, nil
}

// listener is what native code holds on to. After detach it ignores
// anything native still sends.
type listener struct {
	mu       sync.RWMutex
	h        motion.Handler
	detached bool
}

var _ UpdateListener = (*listener)(nil)

func (l *listener) detach() {
	l.mu.Lock()
	l.detached = true
	l.mu.Unlock()
}

func (l *listener) OnUpdate(payload string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.detached {
		return
	}

	var data models.PedometerData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		l.h.OnError(fmt.Errorf("bridge: decode update: %w", err))
		return
	}
	l.h.OnUpdate(data)
}

func (l *listener) OnError(code int, message string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.detached {
		return
	}
	l.h.OnError(errorFromCode(code, message))
}

func errorFromCode(code int, message string) error {
	switch code {
	case CodeUnavailable:
		return fmt.Errorf("%w: %s", motion.ErrUnavailable, message)
	case CodeDenied:
		return fmt.Errorf("%w: %s", motion.ErrPermissionDenied, message)
	default:
		return errors.New(message)
	}
}

func classify(err error) error {
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "unavailable:"):
		return fmt.Errorf("%w: %s", motion.ErrUnavailable, strings.TrimSpace(strings.TrimPrefix(msg, "unavailable:")))
	case strings.HasPrefix(msg, "denied:"):
		return fmt.Errorf("%w: %s", motion.ErrPermissionDenied, strings.TrimSpace(strings.TrimPrefix(msg, "denied:")))
	default:
		return err
	}
}
