package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Chichichkin/LogServer/internal/applog"
)

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService serves the API until its context ends, then drains in-flight
// requests for at most shutdownTimeout.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

func (h *HTTPService) Serve(ctx context.Context) error {
	drained := make(chan error, 1)
	stopDrain := context.AfterFunc(ctx, func() {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.shutdownTimeout)
		defer cancel()
		applog.Info().Dur("timeout", h.shutdownTimeout).Msg("Draining HTTP server")
		drained <- h.server.Shutdown(drainCtx)
	})

	err := h.server.ListenAndServe()
	if stopDrain() {
		// the listener ended on its own, ctx is still live
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	}

	if shutdownErr := <-drained; shutdownErr != nil {
		return fmt.Errorf("http server shutdown failed: %w", shutdownErr)
	}
	return ctx.Err()
}

func (h *HTTPService) String() string {
	return "http-server"
}
