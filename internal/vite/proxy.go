// Package vite forwards page requests to a frontend dev server, so a
// hybrid app under development is served from the same origin as the
// bridge socket.
package vite

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
)

func NewProxy(viteURL string) (http.Handler, error) {
	target, err := url.Parse(viteURL)
	if err != nil {
		return nil, fmt.Errorf("vite: parse dev url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("vite: dev url %q needs scheme and host", viteURL)
	}
	return httputil.NewSingleHostReverseProxy(target), nil
}
