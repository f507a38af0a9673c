package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/bosqueabierto/mtbmap/internal/dispatcher"

// instruments are the dispatcher's OTel metrics, created from the global
// meter provider (a no-op unless one is installed).
type instruments struct {
	pending    metric.Int64ObservableGauge
	processed  metric.Int64Counter
	dropped    metric.Int64Counter
	superseded metric.Int64Counter
}

func newInstruments(d *Dispatcher) (instruments, error) {
	m := otel.Meter(instrumentationName)
	var (
		in  instruments
		err error
	)

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&in.processed, "dispatcher.events.processed", "Queued events handled"},
		{&in.dropped, "dispatcher.events.dropped", "Events rejected by a full queue"},
		{&in.superseded, "dispatcher.events.superseded", "Pending events replaced by a newer one"},
	}
	for _, c := range counters {
		*c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return in, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}

	in.pending, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Events waiting in a handler queue"),
	)
	if err != nil {
		return in, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for command, n := range d.pending() {
			o.ObserveInt64(in.pending, int64(n), metric.WithAttributes(attribute.String("command", command)))
		}
		return nil
	}, in.pending)
	if err != nil {
		return in, fmt.Errorf("registering queue size callback: %w", err)
	}
	return in, nil
}
