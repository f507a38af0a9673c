// Package dispatcher routes map client signals to their handlers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrUnknownCommand is returned when no handler is registered for an event.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned when a buffered handler cannot take another event.
	ErrQueueFull = errors.New("queue full")

	// errRouteClosed reports an event that reached a route replaced meanwhile.
	errRouteClosed = errors.New("route closed")
)

// Queued is the result of an event accepted by a buffered handler.
const Queued = "queued"

// Event is a signal sent by the map client, such as a zoom change or a pin click.
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(ctx context.Context, e Event) (any, error)

// Logger is the subset of *slog.Logger the dispatcher needs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// pendingEvent is an event waiting in a queue together with its detached context.
type pendingEvent struct {
	ctx context.Context
	e   Event
}

// route is one registered command.
type route struct {
	handle HandlerFunc
	// queue is nil for handlers run on the caller's goroutine
	queue chan pendingEvent
	attrs metric.MeasurementOption

	// mu guards closed and sends on queue against close
	mu     sync.RWMutex
	closed bool
}

// close stops accepting events. Events already queued still run.
func (r *route) close() {
	if r.queue == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
}

// Dispatcher routes events to registered handlers. Dispatch is safe for
// concurrent use, including with Register.
type Dispatcher struct {
	logger  Logger
	metrics instruments

	mu     sync.RWMutex
	routes map[string]*route
}

// New creates a Dispatcher that logs through logger.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger: logger,
		routes: make(map[string]*route),
	}
	var err error
	if d.metrics, err = newInstruments(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Register adds the handler for command, replacing any previous one. A
// replaced buffered handler finishes its queued events and then stops.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	r := &route{
		handle: h,
		attrs:  metric.WithAttributes(attribute.String("command", command)),
	}
	if s.logged {
		r.handle = d.logged(command, r.handle)
	}
	if s.queue > 0 {
		r.queue = make(chan pendingEvent, s.queue)
		go d.drain(r.queue, r.handle, r.attrs)
		r.handle = d.enqueue(command, r, s)
	}

	d.mu.Lock()
	prev := d.routes[command]
	d.routes[command] = r
	d.mu.Unlock()

	if prev != nil {
		prev.close()
	}
}

// Dispatch routes an event to its handler, stamping it first if needed.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) (any, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	for {
		d.mu.RLock()
		r, ok := d.routes[e.Command]
		d.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
		}
		result, err := r.handle(ctx, e)
		if errors.Is(err, errRouteClosed) {
			// replaced between lookup and send, use the new route
			continue
		}
		return result, err
	}
}

// HasHandler reports whether a handler is registered for command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.routes[command]
	return ok
}

// Commands returns the registered commands in sorted order.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.routes))
	for command := range d.routes {
		out = append(out, command)
	}
	slices.Sort(out)
	return out
}

// pending returns the queue length of every buffered command.
func (d *Dispatcher) pending() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int)
	for command, r := range d.routes {
		if r.queue != nil {
			out[command] = len(r.queue)
		}
	}
	return out
}

// drain runs queued events one at a time.
func (d *Dispatcher) drain(queue <-chan pendingEvent, handle HandlerFunc, attrs metric.MeasurementOption) {
	for p := range queue {
		_, _ = handle(p.ctx, p.e)
		d.metrics.processed.Add(context.Background(), 1, attrs)
	}
}

// enqueue returns the front half of a buffered handler. Queued events keep
// the values of the caller's context but not its cancellation.
func (d *Dispatcher) enqueue(command string, r *route, s settings) HandlerFunc {
	return func(ctx context.Context, e Event) (any, error) {
		p := pendingEvent{ctx: context.WithoutCancel(ctx), e: e}
		r.mu.RLock()
		defer r.mu.RUnlock()
		if r.closed {
			return nil, errRouteClosed
		}

		select {
		case r.queue <- p:
			return Queued, nil
		default:
		}

		switch {
		case s.coalesced:
			for {
				select {
				case r.queue <- p:
					return Queued, nil
				case <-r.queue:
					d.metrics.superseded.Add(ctx, 1, r.attrs)
				}
			}
		case s.blocking:
			select {
			case r.queue <- p:
				return Queued, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		default:
			d.metrics.dropped.Add(ctx, 1, r.attrs)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

func (d *Dispatcher) logged(command string, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))

		result, err := h(ctx, e)
		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
			return result, err
		}
		d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		return result, nil
	}
}
