package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arko-chat/pedometer/internal/models"
	"github.com/arko-chat/pedometer/internal/motion"
)

type fakeSource struct {
	mu sync.Mutex

	caps      map[motion.Capability]bool
	capErr    error
	startErr  error
	queryErr  error
	queryData models.PedometerData

	handler motion.Handler
	from    time.Time
	starts  int
	stops   int
	queries int
}

func newFakeSource() *fakeSource {
	return &fakeSource{caps: map[motion.Capability]bool{
		motion.StepCounting:  true,
		motion.Distance:      true,
		motion.FloorCounting: true,
	}}
}

func (f *fakeSource) Available(_ context.Context, c motion.Capability) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capErr != nil {
		return false, f.capErr
	}
	return f.caps[c], nil
}

func (f *fakeSource) StartUpdates(_ context.Context, from time.Time, h motion.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.handler = h
	f.from = from
	return nil
}

func (f *fakeSource) StopUpdates() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeSource) Query(_ context.Context, start, end time.Time) (models.PedometerData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return models.PedometerData{}, f.queryErr
	}
	data := f.queryData
	data.StartDate, data.EndDate = start, end
	return data, nil
}

func (f *fakeSource) currentHandler() motion.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

type recorder struct {
	id string
	ch chan models.Response
}

func newRecorder(id string) *recorder {
	return &recorder{id: id, ch: make(chan models.Response, 64)}
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(resp models.Response) error {
	r.ch <- resp
	return nil
}

func (r *recorder) next(t *testing.T) models.Response {
	t.Helper()
	select {
	case resp := <-r.ch:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: no response", r.id)
		return models.Response{}
	}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case resp := <-r.ch:
		t.Fatalf("%s: unexpected response %+v", r.id, resp)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestDispatcher(t *testing.T, src motion.Source, opts Options) *Dispatcher {
	t.Helper()
	d, err := New(src, slog.New(slog.NewTextHandler(io.Discard, nil)), opts)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func call(id string, method models.Method, args string) models.Call {
	c := models.Call{CallID: id, Method: method}
	if args != "" {
		c.Args = json.RawMessage(args)
	}
	return c
}

func steps(n int64, at time.Time) models.PedometerData {
	return models.PedometerData{StartDate: at.Add(-time.Minute), EndDate: at, NumberOfSteps: n}
}

func TestCapabilityQueriesAreRepeatable(t *testing.T) {
	src := newFakeSource()
	src.caps[motion.Distance] = false
	d := newTestDispatcher(t, src, Options{})
	rec := newRecorder("web")

	for i, id := range []string{"1", "2"} {
		d.Dispatch(context.Background(), call(id, models.MethodIsDistanceAvailable, ""), rec)
		resp := rec.next(t)
		require.Equal(t, id, resp.CallID, "attempt %d", i)
		require.Equal(t, models.StatusOK, resp.Status)
		require.Equal(t, models.Capability{Available: false}, resp.Data)
	}

	d.Dispatch(context.Background(), call("3", models.MethodIsStepCountingAvailable, ""), rec)
	require.Equal(t, models.Capability{Available: true}, rec.next(t).Data)

	d.Dispatch(context.Background(), call("4", models.MethodIsFloorCountingAvailable, ""), rec)
	require.Equal(t, models.Capability{Available: true}, rec.next(t).Data)

	require.Zero(t, src.starts)
	require.False(t, d.Session().State().Active)
}

func TestCapabilityLookupFailure(t *testing.T) {
	src := newFakeSource()
	src.capErr = motion.ErrPermissionDenied
	d := newTestDispatcher(t, src, Options{})
	rec := newRecorder("web")

	d.Dispatch(context.Background(), call("1", models.MethodIsFloorCountingAvailable, ""), rec)

	resp := rec.next(t)
	require.Equal(t, models.StatusError, resp.Status)
	require.Equal(t, models.CodePermissionDenied, resp.Error.Code)
}

func TestStopWhenIdleSucceeds(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(t, src, Options{})
	rec := newRecorder("web")

	d.Dispatch(context.Background(), call("1", models.MethodStopPedometerUpdates, ""), rec)

	resp := rec.next(t)
	require.Equal(t, models.StatusOK, resp.Status)
	require.Nil(t, resp.Error)
	require.Equal(t, models.Success{Success: true}, resp.Data)
	require.Zero(t, src.stops)
}

func TestEventsRelayedInOrder(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(t, src, Options{})
	rec := newRecorder("web")

	d.Dispatch(context.Background(), call("sub", models.MethodStartPedometerUpdates, ""), rec)
	require.True(t, d.Session().State().Active)

	base := time.Now()
	h := src.currentHandler()
	h.OnUpdate(steps(10, base.Add(1*time.Second)))
	h.OnUpdate(steps(25, base.Add(2*time.Second)))
	h.OnUpdate(steps(40, base.Add(3*time.Second)))

	for _, want := range []int64{10, 25, 40} {
		resp := rec.next(t)
		require.Equal(t, "sub", resp.CallID)
		require.Equal(t, models.StatusOK, resp.Status)
		require.True(t, resp.KeepCallback)
		require.Equal(t, want, resp.Data.(models.PedometerData).NumberOfSteps)
	}
	rec.none(t)
}

func TestStopDropsLateEvents(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(t, src, Options{})
	stream := newRecorder("stream")
	control := newRecorder("control")

	d.Dispatch(context.Background(), call("sub", models.MethodStartPedometerUpdates, ""), stream)
	stale := src.currentHandler()

	d.Dispatch(context.Background(), call("stop", models.MethodStopPedometerUpdates, ""), control)
	require.Equal(t, models.Success{Success: true}, control.next(t).Data)
	require.Equal(t, models.StatusDone, stream.next(t).Status)
	require.Equal(t, 1, src.stops)

	// the platform had one more sample in flight
	stale.OnUpdate(steps(99, time.Now()))

	// a fresh subscription behind it proves the relay already passed it
	next := newRecorder("next")
	d.Dispatch(context.Background(), call("sub2", models.MethodStartPedometerUpdates, ""), next)
	src.currentHandler().OnUpdate(steps(5, time.Now()))

	resp := next.next(t)
	require.Equal(t, "sub2", resp.CallID)
	require.Equal(t, int64(5), resp.Data.(models.PedometerData).NumberOfSteps)
	stream.none(t)
}

func TestQueryRejectsInvertedWindow(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(t, src, Options{})
	rec := newRecorder("web")

	d.Dispatch(context.Background(),
		call("q", models.MethodQueryData, `[{"startDate": 2000, "endDate": 1000}]`), rec)

	resp := rec.next(t)
	require.Equal(t, models.StatusError, resp.Status)
	require.Equal(t, models.CodeRange, resp.Error.Code)
	require.Zero(t, src.queries)
}

func TestQueryReturnsAggregate(t *testing.T) {
	src := newFakeSource()
	src.queryData = models.PedometerData{NumberOfSteps: 1234}
	d := newTestDispatcher(t, src, Options{})
	rec := newRecorder("web")

	args := `[{"startDate": 1700000000000, "endDate": 1700003600000}]`
	d.Dispatch(context.Background(), call("q1", models.MethodQueryData, args), rec)
	d.Dispatch(context.Background(), call("q2", models.MethodQueryData, args), rec)

	for _, id := range []string{"q1", "q2"} {
		resp := rec.next(t)
		require.Equal(t, id, resp.CallID)
		require.False(t, resp.KeepCallback)
		data := resp.Data.(models.PedometerData)
		require.Equal(t, int64(1234), data.NumberOfSteps)
		require.Equal(t, int64(1700000000000), data.StartDate.UnixMilli())
		require.Equal(t, int64(1700003600000), data.EndDate.UnixMilli())
	}
	require.Equal(t, 2, src.queries)
}

func TestQueryAfterPermissionRevoked(t *testing.T) {
	src := newFakeSource()
	src.queryData = models.PedometerData{NumberOfSteps: 40}
	d := newTestDispatcher(t, src, Options{})
	rec := newRecorder("web")

	args := `[{"startDate": 1000, "endDate": 5000}]`
	d.Dispatch(context.Background(), call("q1", models.MethodQueryData, args), rec)
	require.Equal(t, models.StatusOK, rec.next(t).Status)

	src.mu.Lock()
	src.queryErr = motion.ErrPermissionDenied
	src.mu.Unlock()

	d.Dispatch(context.Background(), call("q2", models.MethodQueryData, args), rec)

	resp := rec.next(t)
	require.Equal(t, models.StatusError, resp.Status)
	require.Equal(t, models.CodePermissionDenied, resp.Error.Code)
	require.Equal(t, 2, src.queries)
}

func TestQueryUnsupported(t *testing.T) {
	src := newFakeSource()
	src.queryErr = motion.ErrUnavailable
	d := newTestDispatcher(t, src, Options{})
	rec := newRecorder("web")

	d.Dispatch(context.Background(),
		call("q", models.MethodQueryData, `{"startDate": 1000, "endDate": 2000}`), rec)

	resp := rec.next(t)
	require.Equal(t, models.StatusError, resp.Status)
	require.Equal(t, models.CodeUnavailable, resp.Error.Code)
}

func TestDistanceUnsupportedStillStreamsSteps(t *testing.T) {
	src := newFakeSource()
	src.caps[motion.Distance] = false
	d := newTestDispatcher(t, src, Options{})
	rec := newRecorder("web")

	d.Dispatch(context.Background(), call("cap", models.MethodIsDistanceAvailable, ""), rec)
	require.Equal(t, models.Capability{Available: false}, rec.next(t).Data)

	d.Dispatch(context.Background(), call("sub", models.MethodStartPedometerUpdates, ""), rec)
	src.currentHandler().OnUpdate(steps(12, time.Now()))

	resp := rec.next(t)
	require.Equal(t, models.StatusOK, resp.Status)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"numberOfSteps":12`)
	require.NotContains(t, string(raw), "distance")
}

func TestStartFailures(t *testing.T) {
	t.Run("step counting unsupported", func(t *testing.T) {
		src := newFakeSource()
		src.caps[motion.StepCounting] = false
		d := newTestDispatcher(t, src, Options{})
		rec := newRecorder("web")

		d.Dispatch(context.Background(), call("sub", models.MethodStartPedometerUpdates, ""), rec)

		resp := rec.next(t)
		require.Equal(t, models.CodeUnavailable, resp.Error.Code)
		require.Zero(t, src.starts)
		require.False(t, d.Session().State().Active)
	})

	t.Run("permission denied", func(t *testing.T) {
		src := newFakeSource()
		src.startErr = motion.ErrPermissionDenied
		d := newTestDispatcher(t, src, Options{})
		rec := newRecorder("web")

		d.Dispatch(context.Background(), call("sub", models.MethodStartPedometerUpdates, ""), rec)

		resp := rec.next(t)
		require.Equal(t, models.StatusError, resp.Status)
		require.Equal(t, models.CodePermissionDenied, resp.Error.Code)
		require.False(t, d.Session().State().Active)
	})

	t.Run("unclassified", func(t *testing.T) {
		src := newFakeSource()
		src.startErr = errors.New("sensor hub offline")
		d := newTestDispatcher(t, src, Options{})
		rec := newRecorder("web")

		d.Dispatch(context.Background(), call("sub", models.MethodStartPedometerUpdates, ""), rec)
		require.Equal(t, models.CodePlatform, rec.next(t).Error.Code)
	})
}

func TestStartFromDate(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(t, src, Options{})
	rec := newRecorder("web")

	d.Dispatch(context.Background(),
		call("sub", models.MethodStartPedometerUpdatesFromDate, `[{"startDate": 1700000000000}]`), rec)
	require.Equal(t, int64(1700000000000), src.from.UnixMilli())
	require.True(t, d.Session().State().Active)

	d.Dispatch(context.Background(), call("bad", models.MethodStartPedometerUpdatesFromDate, `[]`), rec)
	require.Equal(t, models.CodeRange, rec.next(t).Error.Code)
}

func TestSecondStartRejected(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(t, src, Options{Policy: PolicyReject})
	first := newRecorder("first")
	second := newRecorder("second")

	d.Dispatch(context.Background(), call("a", models.MethodStartPedometerUpdates, ""), first)
	d.Dispatch(context.Background(),
		call("b", models.MethodStartPedometerUpdatesFromDate, `[{"startDate": 1000}]`), second)

	resp := second.next(t)
	require.Equal(t, models.CodeAlreadyActive, resp.Error.Code)
	require.Equal(t, "a", d.Session().State().CallID)

	src.currentHandler().OnUpdate(steps(3, time.Now()))
	require.Equal(t, "a", first.next(t).CallID)
}

func TestSecondStartReplaces(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(t, src, Options{Policy: PolicyReplace})
	first := newRecorder("first")
	second := newRecorder("second")

	d.Dispatch(context.Background(), call("a", models.MethodStartPedometerUpdates, ""), first)
	old := src.currentHandler()

	d.Dispatch(context.Background(), call("b", models.MethodStartPedometerUpdates, ""), second)
	require.Equal(t, models.StatusDone, first.next(t).Status)
	require.Equal(t, 1, src.stops)

	old.OnUpdate(steps(1, time.Now()))
	src.currentHandler().OnUpdate(steps(2, time.Now()))

	resp := second.next(t)
	require.Equal(t, "b", resp.CallID)
	require.Equal(t, int64(2), resp.Data.(models.PedometerData).NumberOfSteps)
	first.none(t)
}

func TestPlatformFailureEndsSubscription(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(t, src, Options{})
	rec := newRecorder("web")

	d.Dispatch(context.Background(), call("sub", models.MethodStartPedometerUpdates, ""), rec)
	h := src.currentHandler()
	h.OnUpdate(steps(4, time.Now()))
	h.OnError(motion.ErrPermissionDenied)
	h.OnUpdate(steps(8, time.Now()))

	require.Equal(t, int64(4), rec.next(t).Data.(models.PedometerData).NumberOfSteps)

	resp := rec.next(t)
	require.Equal(t, "sub", resp.CallID)
	require.Equal(t, models.StatusError, resp.Status)
	require.False(t, resp.KeepCallback)
	require.Equal(t, models.CodePermissionDenied, resp.Error.Code)
	require.False(t, d.Session().State().Active)
	require.Equal(t, 1, src.stops)
	rec.none(t)
}

func TestDetachStopsOwnSubscription(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(t, src, Options{})
	owner := newRecorder("owner")
	other := newRecorder("other")

	d.Dispatch(context.Background(), call("sub", models.MethodStartPedometerUpdates, ""), owner)

	d.Detach(other)
	require.True(t, d.Session().State().Active)

	d.Detach(owner)
	require.False(t, d.Session().State().Active)
	require.Equal(t, 1, src.stops)
	owner.none(t)
}

func TestDuplicateFinalResponseDropped(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(t, src, Options{})
	rec := newRecorder("web")

	d.Dispatch(context.Background(), call("same", models.MethodIsStepCountingAvailable, ""), rec)
	d.Dispatch(context.Background(), call("same", models.MethodIsStepCountingAvailable, ""), rec)

	require.Equal(t, "same", rec.next(t).CallID)
	rec.none(t)
}

func TestDetachAllowsReusedCallIDs(t *testing.T) {
	d := newTestDispatcher(t, newFakeSource(), Options{})
	rec := newRecorder("webview-1")

	d.Dispatch(context.Background(), call("pedometer1", models.MethodIsStepCountingAvailable, ""), rec)
	require.Equal(t, models.StatusOK, rec.next(t).Status)

	// The page reloaded and numbers its calls from the start again.
	d.Detach(rec)
	d.Dispatch(context.Background(), call("pedometer1", models.MethodIsStepCountingAvailable, ""), rec)

	resp := rec.next(t)
	require.Equal(t, "pedometer1", resp.CallID)
	require.Equal(t, models.StatusOK, resp.Status)
}

func TestDetachKeepsOtherRespondersAnswered(t *testing.T) {
	d := newTestDispatcher(t, newFakeSource(), Options{})
	page := newRecorder("webview-1")
	sock := newRecorder("ws-1")

	d.Dispatch(context.Background(), call("c1", models.MethodIsStepCountingAvailable, ""), sock)
	require.Equal(t, models.StatusOK, sock.next(t).Status)

	d.Detach(page)
	d.Dispatch(context.Background(), call("c1", models.MethodIsStepCountingAvailable, ""), sock)
	sock.none(t)
}

// flakyResponder refuses sends while full is set.
type flakyResponder struct {
	*recorder
	full atomic.Bool
}

func (f *flakyResponder) Send(resp models.Response) error {
	if f.full.Load() {
		return errBufferFull
	}
	return f.recorder.Send(resp)
}

var errBufferFull = errors.New("send buffer full")

func TestUndeliverableUpdateEndsSubscription(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(t, src, Options{})
	rec := &flakyResponder{recorder: newRecorder("ws-slow")}

	d.Dispatch(context.Background(), call("sub", models.MethodStartPedometerUpdates, ""), rec)
	h := src.currentHandler()
	now := time.Now()

	h.OnUpdate(steps(1, now))
	require.Equal(t, int64(1), rec.next(t).Data.(models.PedometerData).NumberOfSteps)

	rec.full.Store(true)
	h.OnUpdate(steps(2, now))
	require.Eventually(t, func() bool {
		return !d.Session().State().Active
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, src.stops)

	// Later events for the ended subscription go nowhere.
	rec.full.Store(false)
	h.OnUpdate(steps(3, now))
	rec.none(t)
}

func TestFailedFinalResponseCanBeRetried(t *testing.T) {
	d := newTestDispatcher(t, newFakeSource(), Options{})
	rec := &flakyResponder{recorder: newRecorder("ws-slow")}

	rec.full.Store(true)
	d.Dispatch(context.Background(), call("c1", models.MethodIsDistanceAvailable, ""), rec)
	rec.none(t)

	rec.full.Store(false)
	d.Dispatch(context.Background(), call("c1", models.MethodIsDistanceAvailable, ""), rec)

	resp := rec.next(t)
	require.Equal(t, "c1", resp.CallID)
	require.Equal(t, models.StatusOK, resp.Status)
}

func TestUnknownMethod(t *testing.T) {
	d := newTestDispatcher(t, newFakeSource(), Options{})
	rec := newRecorder("web")

	d.Dispatch(context.Background(), call("x", "deleteAllSteps", ""), rec)

	resp := rec.next(t)
	require.Equal(t, models.CodePlatform, resp.Error.Code)
	require.Contains(t, resp.Error.Message, "unsupported action")
}

func TestCloseEndsStream(t *testing.T) {
	src := newFakeSource()
	d, err := New(src, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})
	require.NoError(t, err)
	rec := newRecorder("web")

	d.Dispatch(context.Background(), call("sub", models.MethodStartPedometerUpdates, ""), rec)
	d.Close()
	require.Equal(t, models.StatusDone, rec.next(t).Status)

	d.Dispatch(context.Background(), call("late", models.MethodIsStepCountingAvailable, ""), rec)
	require.Equal(t, models.CodePlatform, rec.next(t).Error.Code)
}

func TestStartAfterCloseRefused(t *testing.T) {
	src := newFakeSource()
	d, err := New(src, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})
	require.NoError(t, err)
	d.Close()

	// A start that passed the closed check before Close ran.
	err = d.start(context.Background(), call("sub", models.MethodStartPedometerUpdates, ""), newRecorder("web"), time.Now())
	require.ErrorIs(t, err, ErrClosed)
	require.Zero(t, src.starts)
	require.False(t, d.Session().State().Active)
}

func TestUnknownPolicy(t *testing.T) {
	_, err := New(newFakeSource(), slog.New(slog.NewTextHandler(io.Discard, nil)), Options{Policy: "queue"})
	require.Error(t, err)
}
