package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/autodebug/autodebug/internal/logger"
	"github.com/autodebug/autodebug/pkg/metrics"
	"github.com/autodebug/autodebug/pkg/types"
)

// Launcher consumes parsed launch requests. The server never observes the outcome.
type Launcher interface {
	Launch(ctx context.Context, req types.LaunchRequest)
}

// LauncherFunc adapts a function to the Launcher interface
type LauncherFunc func(ctx context.Context, req types.LaunchRequest)

// Launch calls f(ctx, req)
func (f LauncherFunc) Launch(ctx context.Context, req types.LaunchRequest) {
	f(ctx, req)
}

// ErrorReporter surfaces steady-state errors (parse, transport) to the user
type ErrorReporter interface {
	ReportError(err error)
}

// ErrorReporterFunc adapts a function to the ErrorReporter interface
type ErrorReporterFunc func(err error)

// ReportError calls f(err)
func (f ErrorReporterFunc) ReportError(err error) {
	f(err)
}

// Dispatcher parses frames and forwards them to a Launcher
type Dispatcher struct {
	launcher Launcher
	reporter ErrorReporter
	logger   *logger.Logger
	metrics  *metrics.Collector
}

// NewDispatcher creates a dispatcher. A nil reporter only logs.
func NewDispatcher(launcher Launcher, reporter ErrorReporter, log *logger.Logger, m *metrics.Collector) *Dispatcher {
	if log == nil {
		log = logger.Global()
	}
	return &Dispatcher{
		launcher: launcher,
		reporter: reporter,
		logger:   log.With("component", "ipc_dispatch"),
		metrics:  m,
	}
}

// Dispatch parses raw as a JSON object and hands it to the launcher.
// A malformed frame is reported and dropped; it never returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, raw string) {
	req, err := ParseLaunchRequest(raw)
	if err != nil {
		d.metrics.RecordError("parse")
		d.logger.Warn("discarding malformed frame", "error", err, "bytes", len(raw))
		d.report(err)
		return
	}

	d.metrics.Dispatched(req.Type())
	d.logger.Debug("dispatching launch request", "type", req.Type())

	if d.launcher == nil {
		return
	}
	d.launcher.Launch(ctx, req)
}

// report forwards err to the configured reporter
func (d *Dispatcher) report(err error) {
	if d.reporter != nil {
		d.reporter.ReportError(err)
	}
}

// ParseLaunchRequest decodes one frame. The frame must hold exactly one JSON
// object; numbers are kept as json.Number so values pass through unchanged.
func ParseLaunchRequest(raw string) (types.LaunchRequest, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, types.WrapError(types.ErrCodeParse, "frame is not valid JSON", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, types.NewError(types.ErrCodeParse, "frame has trailing data after the JSON value")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, types.NewError(types.ErrCodeParse, fmt.Sprintf("frame is a JSON %s, not an object", jsonKind(v)))
	}
	return types.LaunchRequest(obj), nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	default:
		return "value"
	}
}
