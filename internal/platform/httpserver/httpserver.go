package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with header, read and idle timeouts. The write
// timeout leaves headroom over the per-request deadline so timed out
// handlers can still write their error response.
func New(addr string, handler http.Handler, requestTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
