// Package httpserver contains the building blocks of the HTTP server: middlewares, JSON responses, structured API errors, and a runner with graceful shutdown.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	HeaderXHostID          = "X-Host-Id"
	HeaderXRequestID       = "X-Request-Id"
	HeaderXTimelockReentry = "X-Timelock-Reentry"
	HeaderContentType      = "Content-Type"
	ContentTypeJson        = "application/json; charset=utf-8"
)

// DefaultShutdownTimeout is the default value for ServeOpts.ShutdownTimeout.
const DefaultShutdownTimeout = 10 * time.Second

// ServeOpts contains the options for Serve.
type ServeOpts struct {
	// Time given to in-flight requests to complete after ctx is canceled
	// Default: DefaultShutdownTimeout
	ShutdownTimeout time.Duration
	// Set to serve HTTPS; the listener must not already be a TLS listener
	TLS    bool
	Logger *slog.Logger
}

// Serve runs srv on the listener until ctx is canceled, then shuts it down gracefully.
// It returns nil after a clean shutdown.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, opts ServeOpts) error {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if opts.TLS {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	opts.Logger.InfoContext(ctx, "HTTP server started", slog.String("addr", ln.Addr().String()), slog.Bool("tls", opts.TLS))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	opts.Logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return <-errCh
}
