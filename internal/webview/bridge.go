// Package webview carries bridge calls between a webview_go window and the
// dispatcher: pedometerExec is bound into the page, and responses are
// evaluated back into it.
package webview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/arko-chat/pedometer/internal/dispatcher"
	"github.com/arko-chat/pedometer/internal/models"
)

const (
	ExecBinding  = "pedometerExec"
	ResetBinding = "pedometerReset"

	callBuffer = 64
)

var (
	ErrBusy   = errors.New("webview: too many pending calls")
	ErrClosed = errors.New("webview: bridge closed")
)

// Window is the part of webview.WebView the bridge needs.
type Window interface {
	Bind(name string, f interface{}) error
	Init(js string)
	Eval(js string)
	Dispatch(f func())
}

// Bridge is the dispatcher.Responder for one window.
type Bridge struct {
	id     string
	w      Window
	d      *dispatcher.Dispatcher
	logger *slog.Logger

	calls  chan models.Call
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

var _ dispatcher.Responder = (*Bridge)(nil)

// Attach binds the bridge functions into w. Call it before Navigate so
// the bindings exist when the page's scripts run.
func Attach(w Window, d *dispatcher.Dispatcher, logger *slog.Logger) (*Bridge, error) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		id:     "webview-" + uuid.NewString(),
		w:      w,
		d:      d,
		logger: logger,
		calls:  make(chan models.Call, callBuffer),
		ctx:    ctx,
		cancel: cancel,
	}

	if err := w.Bind(ExecBinding, b.exec); err != nil {
		cancel()
		return nil, fmt.Errorf("bind %s: %w", ExecBinding, err)
	}
	if err := w.Bind(ResetBinding, b.reset); err != nil {
		cancel()
		return nil, fmt.Errorf("bind %s: %w", ResetBinding, err)
	}

	// Runs on every page load, so navigating away detaches the old page.
	w.Init(`if (window.` + ResetBinding + `) { window.` + ResetBinding + `(); }`)

	b.wg.Go(b.run)
	return b, nil
}

func (b *Bridge) ID() string {
	return b.id
}

// exec is called on the UI thread; it only queues.
func (b *Bridge) exec(callID string, method string, args json.RawMessage) error {
	if b.closed.Load() {
		return ErrClosed
	}
	select {
	case b.calls <- models.Call{CallID: callID, Method: models.Method(method), Args: args}:
		return nil
	default:
		return ErrBusy
	}
}

func (b *Bridge) reset() {
	b.logger.Debug("webview page reset", "bridge", b.id)
	b.d.Detach(b)
}

func (b *Bridge) run() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case call := <-b.calls:
			b.d.Dispatch(b.ctx, call, b)
		}
	}
}

func (b *Bridge) Send(resp models.Response) error {
	if b.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	js := "window.__pedometer && window.__pedometer.deliver(" + string(data) + ")"
	b.w.Dispatch(func() {
		b.w.Eval(js)
	})
	return nil
}

// Close detaches the window from the dispatcher. Call it before the
// window is destroyed.
func (b *Bridge) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.d.Detach(b)
	b.cancel()
	b.wg.Wait()
}
