package webview

import (
	"fmt"
	"log/slog"

	webview "github.com/webview/webview_go"

	"github.com/arko-chat/pedometer/components/assets"
	"github.com/arko-chat/pedometer/internal/dispatcher"
)

const BaseTitle = "Pedometer"

type WindowOptions struct {
	URL    string
	Title  string
	Width  int
	Height int
	Debug  bool
}

// Run opens a window on opts.URL with the bridge attached and blocks until
// it is closed. It must be called from the main goroutine.
func Run(opts WindowOptions, d *dispatcher.Dispatcher, logger *slog.Logger) error {
	if opts.Title == "" {
		opts.Title = BaseTitle
	}
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = 480, 800
	}

	shim, err := assets.Shim()
	if err != nil {
		return fmt.Errorf("load shim: %w", err)
	}

	w := webview.New(opts.Debug)
	defer w.Destroy()

	w.SetTitle(opts.Title)
	w.SetSize(opts.Width, opts.Height, webview.HintNone)

	b, err := Attach(w, d, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	w.Init(shim)
	w.Navigate(opts.URL)

	logger.Info("webview opened", "url", opts.URL)
	w.Run()
	logger.Info("webview closed")
	return nil
}
