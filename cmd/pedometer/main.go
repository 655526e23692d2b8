package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toqueteos/webbrowser"
	"golang.org/x/sync/errgroup"

	"github.com/arko-chat/pedometer/components/assets"
	"github.com/arko-chat/pedometer/internal/config"
	"github.com/arko-chat/pedometer/internal/dispatcher"
	"github.com/arko-chat/pedometer/internal/handlers"
	"github.com/arko-chat/pedometer/internal/logger"
	"github.com/arko-chat/pedometer/internal/motion"
	"github.com/arko-chat/pedometer/internal/router"
	"github.com/arko-chat/pedometer/internal/vite"
	"github.com/arko-chat/pedometer/internal/webview"
	"github.com/arko-chat/pedometer/internal/ws"
)

func main() {
	browser := flag.Bool("browser", false, "open the page in the system browser instead of a window")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	slogger := logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	src := motion.NewSimulator(cfg.SimulatorOptions())
	d, err := dispatcher.New(src, slogger, cfg.DispatcherOptions())
	if err != nil {
		slogger.Error("failed to create dispatcher", "err", err)
		os.Exit(1)
	}
	defer d.Close()

	hub := ws.NewHub(slogger)
	h := handlers.New(hub, d, slogger)

	var devProxy http.Handler
	if cfg.DevServerURL != "" {
		devProxy, err = vite.NewProxy(cfg.DevServerURL)
		if err != nil {
			slogger.Error("invalid dev server url", "err", err)
			os.Exit(1)
		}
		slogger.Info("proxying pages to dev server", "url", cfg.DevServerURL)
	}
	mux := router.New(h, assets.FS(), router.Pages(assets.FS(), devProxy), cfg.Token)

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		slogger.Error("failed to listen", "addr", cfg.ListenAddr, "err", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("http://127.0.0.1:%d", listener.Addr().(*net.TCPAddr).Port)
	slogger.Info("server starting", "addr", addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Handler: mux}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	page := assets.PageURL(addr, cfg.Token)
	if *browser {
		if err := webbrowser.Open(page); err != nil {
			slogger.Error("failed to open browser", "err", err)
			stop()
		}
		<-gctx.Done()
	} else {
		err := webview.Run(webview.WindowOptions{URL: page, Debug: true}, d, slogger)
		if err != nil {
			slogger.Error("webview failed", "err", err)
		}
		slogger.Info("window closed, shutting down")
		stop()
	}

	if err := g.Wait(); err != nil {
		slogger.Error("server error", "err", err)
	}
}
