package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// InstrumentationName identifies mtbmap records in the OTel log pipeline.
const InstrumentationName = "mtbmap"

// osStdout is where console output goes. Tests swap it for a pipe.
var osStdout io.Writer = os.Stdout

// Options selects the outputs of a SlogManager.
type Options struct {
	// File receives text records. When nil, records go to stdout.
	File io.Writer
	// Console also writes to stdout when a File is set.
	Console bool
	Level   string
	// Provider enables the OTel bridge when non-nil.
	Provider *sdklog.LoggerProvider
	// Graylog receives one JSON record per GELF message when non-nil.
	Graylog io.Writer
}

// SlogManager manages slog-based logging with optional OTel and Graylog output.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
	ctxProvider atomic.Pointer[ContextProvider]
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel reads debug, info, warn or error in any case. Anything else is
// info.
func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// utcTime renders record times as RFC 3339 in UTC.
func utcTime(_ []string, a slog.Attr) slog.Attr {
	if t, ok := a.Value.Any().(time.Time); ok && a.Key == slog.TimeKey {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// NewGraylogWriter opens a GELF UDP writer to addr (host:port).
func NewGraylogWriter(addr string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, err
	}
	w.Facility = InstrumentationName
	return w, nil
}

// Setup initializes the logging system. Calling it again replaces every output.
func (m *SlogManager) Setup(opts Options) {
	lvl := parseLevel(opts.Level)
	m.logProvider = opts.Provider

	m.logger = slog.New(NewContextHandler(outputs(opts, &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: utcTime,
	}), m.dynamicContext))
	m.logger.Info("Logging initialized", "level", strings.ToLower(lvl.String()))
}

func outputs(opts Options, ho *slog.HandlerOptions) MultiHandler {
	var out MultiHandler
	if opts.File == nil || opts.Console {
		out = append(out, slog.NewTextHandler(osStdout, ho))
	}
	if opts.File != nil {
		out = append(out, slog.NewTextHandler(opts.File, ho))
	}
	if opts.Graylog != nil {
		out = append(out, slog.NewJSONHandler(opts.Graylog, ho))
	}
	if opts.Provider != nil {
		out = append(out, otelslog.NewHandler(InstrumentationName, otelslog.WithLoggerProvider(opts.Provider)))
	}
	return out
}

// SetContext installs a provider whose attributes are added to every record
// logged from now on, including by loggers derived before the call.
func (m *SlogManager) SetContext(p ContextProvider) {
	if p == nil {
		m.ctxProvider.Store(nil)
		return
	}
	m.ctxProvider.Store(&p)
}

func (m *SlogManager) dynamicContext() []slog.Attr {
	if p := m.ctxProvider.Load(); p != nil {
		return (*p)()
	}
	return nil
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush pushes buffered OTel records to their exporters.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}

// WriteLog writes a log entry for a named operation at the given level.
func (m *SlogManager) WriteLog(operation, data, level string) {
	if m.logger != nil {
		m.logger.Log(context.Background(), parseLevel(level), data, "operation", operation)
	}
}
