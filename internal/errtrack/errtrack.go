// Package errtrack forwards non-fatal failures to Sentry.
package errtrack

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

type Config struct {
	DSN         string
	Environment string
	Release     string
	ServerName  string

	// Transport replaces the HTTP transport. Tests use it to capture events.
	Transport sentry.Transport
}

// Reporter sends errors to its own Sentry hub. A Reporter without a DSN
// drops everything.
type Reporter struct {
	hub    *sentry.Hub
	logger *slog.Logger
}

// New creates a Reporter. An empty DSN disables reporting.
func New(cfg Config, logger *slog.Logger) (*Reporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reporter{logger: logger}

	if cfg.DSN == "" {
		logger.Debug("Sentry DSN not configured - error tracking disabled")
		return r, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		ServerName:  cfg.ServerName,
		Transport:   cfg.Transport,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if event.Request != nil && event.Request.Headers != nil {
				delete(event.Request.Headers, "Authorization")
				delete(event.Request.Headers, "Cookie")
			}
			return event
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}
	r.hub = sentry.NewHub(client, sentry.NewScope())

	logger.Info("Sentry initialized", "environment", cfg.Environment, "release", cfg.Release)
	return r, nil
}

// Enabled reports whether events are sent anywhere.
func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// Report captures err with the given tags.
func (r *Reporter) Report(_ context.Context, err error, tags map[string]string) {
	if err == nil || !r.Enabled() {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
	r.logger.Debug("Exception captured in Sentry", "error", err.Error())
}

// Flush waits up to timeout for queued events to be sent.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}

// Recover captures a panic, flushes and re-panics. Use it deferred.
func (r *Reporter) Recover() {
	if v := recover(); v != nil {
		err, ok := v.(error)
		if !ok {
			err = fmt.Errorf("panic: %v", v)
		}
		r.Report(context.Background(), err, map[string]string{"panic": "true"})
		r.Flush(2 * time.Second)
		panic(v)
	}
}
