// Package mobile is the gomobile entry point. Native code registers its
// motion implementation, starts the local bridge server and points the
// app's WebView at it.
package mobile

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/arko-chat/pedometer/components/assets"
	"github.com/arko-chat/pedometer/internal/bridge"
	"github.com/arko-chat/pedometer/internal/config"
	"github.com/arko-chat/pedometer/internal/credentials"
	"github.com/arko-chat/pedometer/internal/dispatcher"
	"github.com/arko-chat/pedometer/internal/handlers"
	"github.com/arko-chat/pedometer/internal/logger"
	"github.com/arko-chat/pedometer/internal/router"
	"github.com/arko-chat/pedometer/internal/ws"
)

var (
	mu       sync.Mutex
	stopFunc func()
	baseURL  string
	token    string
)

func RegisterMotion(m bridge.NativeMotion) {
	bridge.Register(m)
}

// Start runs the bridge server on loopback and returns the URL of the
// demo page, token included.
func Start(dataDir string) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	if stopFunc != nil {
		return "", fmt.Errorf("server already running")
	}

	native, err := bridge.Safe()
	if err != nil {
		return "", fmt.Errorf("call RegisterMotion before Start: %w", err)
	}

	cfg, err := config.LoadDir(dataDir)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Token == "" {
		if cfg.Token, err = credentials.NewToken(); err != nil {
			return "", err
		}
	}

	slogger := logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	d, err := dispatcher.New(bridge.NewSource(native), slogger, cfg.DispatcherOptions())
	if err != nil {
		return "", err
	}

	hub := ws.NewHub(slogger)
	h := handlers.New(hub, d, slogger)
	mux := router.New(h, assets.FS(), router.Pages(assets.FS(), nil), cfg.Token)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		d.Close()
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	addr := fmt.Sprintf("http://127.0.0.1:%d", listener.Addr().(*net.TCPAddr).Port)
	slogger.Info("mobile server starting", "addr", addr)

	srv := &http.Server{Handler: mux}

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			slogger.Error("server error", "err", err)
		}
	}()

	baseURL, token = addr, cfg.Token
	stopFunc = func() {
		hub.CloseAll()
		srv.Close()
		listener.Close()
		d.Close()
	}

	return assets.PageURL(addr, cfg.Token), nil
}

// ShimURL is the script a hybrid page includes to get window.pedometer.
// Empty until Start succeeds.
func ShimURL() string {
	mu.Lock()
	defer mu.Unlock()

	if baseURL == "" {
		return ""
	}
	return baseURL + assets.ShimPath + "?token=" + token
}

func Stop() {
	mu.Lock()
	defer mu.Unlock()

	if stopFunc != nil {
		stopFunc()
		stopFunc = nil
		baseURL, token = "", ""
	}
}
