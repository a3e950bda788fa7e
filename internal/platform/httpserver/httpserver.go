package httpserver

import (
	"net/http"
	"time"
)

// New builds the process HTTP server. Timeouts are fixed; the slowest
// endpoint is the weekly draw, which waits on batched model calls, so the
// write timeout stays generous.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}
