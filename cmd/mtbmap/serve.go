package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bosqueabierto/mtbmap/internal/api"
	"github.com/bosqueabierto/mtbmap/internal/config"
	"github.com/bosqueabierto/mtbmap/internal/dispatcher"
	"github.com/bosqueabierto/mtbmap/internal/handlers"
)

const shutdownTimeout = 10 * time.Second

// newHandler wires the session, the event dispatcher and the HTTP routes.
func newHandler(ctx context.Context, a *app) (http.Handler, error) {
	session, err := a.openSession(ctx)
	if err != nil {
		return nil, err
	}

	d, err := dispatcher.New(a.logger.With("component", "dispatcher"))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	handlers.NewService(handlers.Dependencies{
		Session:       session,
		ZoomThreshold: config.GetRoutesConfig().ZoomThreshold,
		Logger:        a.logger.With("component", "handlers"),
	}).Register(d)
	a.logger.Debug("Registered event handlers", "commands", d.Commands())

	srv := api.NewServer(api.Dependencies{
		Session:     session,
		Source:      a.openSource(),
		Dispatcher:  d,
		Logger:      a.logger.With("component", "api"),
		Healthcheck: a.healthcheck,
	})
	return srv.Routes(), nil
}

// runServe serves until ctx is cancelled, then drains open requests.
func runServe(ctx context.Context, a *app, addr string) error {
	handler, err := newHandler(ctx, a)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return serve(ctx, a, ln, handler)
}

func serve(ctx context.Context, a *app, ln net.Listener, handler http.Handler) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	a.logger.Info("Serving trail map", "address", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
