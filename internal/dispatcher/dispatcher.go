// Package dispatcher turns bridge calls from the script context into
// motion.Source calls and relays results and update events back to the
// originating call id.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arko-chat/pedometer/internal/flight"
	"github.com/arko-chat/pedometer/internal/models"
	"github.com/arko-chat/pedometer/internal/motion"
)

// Policy decides what a start does while a subscription is running.
type Policy string

const (
	// PolicyReplace stops the running subscription, closes its call with
	// a done response and starts the new one.
	PolicyReplace Policy = "replace"
	// PolicyReject answers the new start with an already_active error.
	PolicyReject Policy = "reject"
)

var ErrClosed = errors.New("dispatcher: closed")

type Options struct {
	Policy Policy
	// AnsweredSize bounds how many answered calls are remembered to
	// suppress duplicate final responses.
	AnsweredSize int
}

type Dispatcher struct {
	source  motion.Source
	logger  *slog.Logger
	policy  Policy
	session *Session

	// replyMu makes the answered check, the send and the record one step.
	replyMu  sync.Mutex
	answered *lru.Cache[string, struct{}]
	queries  flight.Group[models.PedometerData]
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

func New(source motion.Source, logger *slog.Logger, opts Options) (*Dispatcher, error) {
	switch opts.Policy {
	case "":
		opts.Policy = PolicyReplace
	case PolicyReplace, PolicyReject:
	default:
		return nil, fmt.Errorf("dispatcher: unknown policy %q", opts.Policy)
	}
	if opts.AnsweredSize <= 0 {
		opts.AnsweredSize = 1024
	}

	answered, err := lru.New[string, struct{}](opts.AnsweredSize)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: answered cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		source:   source,
		logger:   logger,
		policy:   opts.Policy,
		session:  newSession(),
		answered: answered,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	d.wg.Go(d.relay)
	return d, nil
}

func (d *Dispatcher) Session() *Session {
	return d.session
}

// Dispatch handles one call. It returns once the call has been answered,
// or, for a start, once the subscription is running.
func (d *Dispatcher) Dispatch(ctx context.Context, call models.Call, r Responder) {
	d.logger.Debug("bridge call",
		"method", call.Method,
		"call", call.CallID,
		"responder", r.ID(),
	)

	var err error
	if d.closed.Load() {
		err = ErrClosed
	} else {
		err = d.handle(ctx, call, r)
	}

	recordCall(string(call.Method), err)
	if err != nil {
		d.logger.Info("bridge call failed",
			"method", call.Method,
			"call", call.CallID,
			"code", classify(err),
			"err", err,
		)
		d.fail(r, call.CallID, err)
	}
}

func (d *Dispatcher) handle(ctx context.Context, call models.Call, r Responder) error {
	switch call.Method {
	case models.MethodIsStepCountingAvailable:
		return d.capability(ctx, call, r, motion.StepCounting)
	case models.MethodIsDistanceAvailable:
		return d.capability(ctx, call, r, motion.Distance)
	case models.MethodIsFloorCountingAvailable:
		return d.capability(ctx, call, r, motion.FloorCounting)
	case models.MethodStartPedometerUpdates:
		return d.start(ctx, call, r, d.now())
	case models.MethodStartPedometerUpdatesFromDate:
		from, err := startDate(call.Args)
		if err != nil {
			return err
		}
		return d.start(ctx, call, r, from)
	case models.MethodStopPedometerUpdates:
		d.stop(call, r)
		return nil
	case models.MethodQueryData:
		return d.query(ctx, call, r)
	default:
		return &Error{Code: models.CodePlatform, Err: fmt.Errorf("unsupported action %q", call.Method)}
	}
}

func (d *Dispatcher) capability(ctx context.Context, call models.Call, r Responder, c motion.Capability) error {
	ok, err := d.source.Available(ctx, c)
	if err != nil {
		return fmt.Errorf("probe %s: %w", c, err)
	}
	d.reply(r, models.Response{
		CallID: call.CallID,
		Status: models.StatusOK,
		Data:   models.Capability{Available: ok},
	})
	return nil
}

func (d *Dispatcher) start(ctx context.Context, call models.Call, r Responder, from time.Time) error {
	ok, err := d.source.Available(ctx, motion.StepCounting)
	if err != nil {
		return fmt.Errorf("probe %s: %w", motion.StepCounting, err)
	}
	if !ok {
		return unavailable("step counting is not available on this device")
	}

	s := d.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.closed.Load() {
		return ErrClosed
	}
	if s.active != nil {
		if d.policy == PolicyReject {
			return ErrAlreadyActive
		}
		d.logger.Info("replacing pedometer subscription",
			"subscription", s.active.id,
			"call", s.active.callID,
		)
		d.stopLocked(true)
	}

	s.gen++
	h := handler{q: s.queue, gen: s.gen}
	if err := d.source.StartUpdates(ctx, from, h); err != nil {
		return fmt.Errorf("start updates: %w", err)
	}

	s.active = &subscription{
		id:        uuid.NewString(),
		gen:       s.gen,
		callID:    call.CallID,
		responder: r,
		from:      from,
		started:   d.now(),
	}
	setActive(true)

	d.logger.Info("pedometer updates started",
		"subscription", s.active.id,
		"call", call.CallID,
		"from", from,
	)
	return nil
}

func (d *Dispatcher) stop(call models.Call, r Responder) {
	s := d.session
	s.mu.Lock()
	if sub := s.active; sub != nil {
		sameCall := sub.callID == call.CallID && sub.responder.ID() == r.ID()
		d.stopLocked(!sameCall)
		d.logger.Info("pedometer updates stopped", "subscription", sub.id)
	}
	s.mu.Unlock()

	d.reply(r, models.Response{
		CallID: call.CallID,
		Status: models.StatusOK,
		Data:   models.Success{Success: true},
	})
}

// stopLocked empties the slot. Items the platform already queued for it
// carry the old generation and are dropped by the relay.
func (d *Dispatcher) stopLocked(notify bool) {
	s := d.session
	sub := s.active
	s.active = nil
	setActive(false)

	if err := d.source.StopUpdates(); err != nil {
		d.logger.Warn("platform stop failed", "subscription", sub.id, "err", err)
	}
	if notify {
		d.reply(sub.responder, models.Response{CallID: sub.callID, Status: models.StatusDone})
	}
}

func (d *Dispatcher) query(ctx context.Context, call models.Call, r Responder) error {
	start, end, err := window(call.Args)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("%d-%d", start.UnixMilli(), end.UnixMilli())
	data, _, err := d.queries.Do(key, func() (models.PedometerData, error) {
		return d.source.Query(ctx, start, end)
	})
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	d.reply(r, models.Response{
		CallID: call.CallID,
		Status: models.StatusOK,
		Data:   data,
	})
	return nil
}

// Detach is called when a script context goes away (navigation, closed
// socket). A subscription owned by it is stopped without notification,
// and the call ids it was answered on may be used again by the next page.
func (d *Dispatcher) Detach(r Responder) {
	d.forget(r)

	s := d.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || s.active.responder.ID() != r.ID() {
		return
	}
	d.logger.Info("recipient detached, stopping pedometer updates",
		"subscription", s.active.id,
		"responder", r.ID(),
	)
	d.stopLocked(false)
}

// Close stops any running subscription and the relay.
func (d *Dispatcher) Close() {
	if d.closed.Swap(true) {
		return
	}

	s := d.session
	s.mu.Lock()
	if s.active != nil {
		d.stopLocked(true)
	}
	s.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) relay() {
	for {
		it, ok := d.session.queue.pop(d.ctx)
		if !ok {
			return
		}
		d.deliver(it)
	}
}

func (d *Dispatcher) deliver(it item) {
	s := d.session
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := s.active
	if sub == nil || sub.gen != it.gen {
		recordDropped("stale")
		d.logger.Debug("dropping event for stopped subscription", "generation", it.gen)
		return
	}

	if it.err != nil {
		d.logger.Warn("pedometer updates failed",
			"subscription", sub.id,
			"call", sub.callID,
			"err", it.err,
		)
		d.stopLocked(false)
		d.fail(sub.responder, sub.callID, it.err)
		return
	}

	err := d.reply(sub.responder, models.Response{
		CallID:       sub.callID,
		Status:       models.StatusOK,
		KeepCallback: true,
		Data:         it.data,
	})
	if err != nil {
		// A gap in the stream is not allowed; end it instead.
		d.logger.Warn("pedometer update undeliverable, ending subscription",
			"subscription", sub.id,
			"call", sub.callID,
			"err", err,
		)
		d.stopLocked(false)
		d.fail(sub.responder, sub.callID, &Error{
			Code: models.CodePlatform,
			Err:  fmt.Errorf("deliver update: %w", err),
		})
		return
	}
	recordRelayed()
}

func (d *Dispatcher) fail(r Responder, callID string, err error) {
	d.reply(r, models.Response{
		CallID: callID,
		Status: models.StatusError,
		Error:  payload(err),
	})
}

// reply sends resp to r. A final response is sent at most once per
// responder and call id; it only counts as answered once r accepted it.
func (d *Dispatcher) reply(r Responder, resp models.Response) error {
	terminal := resp.Terminal()
	key := answeredKey(r, resp.CallID)

	if terminal {
		d.replyMu.Lock()
		defer d.replyMu.Unlock()
		if d.answered.Contains(key) {
			recordDropped("duplicate")
			d.logger.Warn("dropping second final response", "call", resp.CallID, "status", resp.Status)
			return nil
		}
	}

	if err := r.Send(resp); err != nil {
		recordDropped("send")
		d.logger.Warn("bridge send failed", "call", resp.CallID, "err", err)
		return err
	}
	if terminal {
		d.answered.Add(key, struct{}{})
	}
	return nil
}

func (d *Dispatcher) forget(r Responder) {
	prefix := answeredKey(r, "")

	d.replyMu.Lock()
	defer d.replyMu.Unlock()
	for _, key := range d.answered.Keys() {
		if strings.HasPrefix(key, prefix) {
			d.answered.Remove(key)
		}
	}
}

func answeredKey(r Responder, callID string) string {
	return r.ID() + "\x00" + callID
}
