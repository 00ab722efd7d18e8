package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const LogExporterName = "log"

type logExporterConfig struct {
	Level string `mapstructure:"level"`
}

// LogExporter writes finished spans as structured log entries.
type LogExporter struct {
	logger  *logrus.Logger
	level   logrus.Level
	stopped atomic.Bool
}

func NewLogExporter(settings map[string]any, logger *logrus.Logger) (sdktrace.SpanExporter, error) {
	var cfg logExporterConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, fmt.Errorf("invalid log exporter settings: %w", err)
	}
	level := logrus.DebugLevel
	if cfg.Level != "" {
		l, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level = l
	}
	return &LogExporter{logger: logger, level: level}, nil
}

func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.stopped.Load() {
		return nil
	}
	for _, s := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields := logrus.Fields{
			"span":        s.Name(),
			"trace_id":    s.SpanContext().TraceID().String(),
			"span_id":     s.SpanContext().SpanID().String(),
			"duration_ms": float64(s.EndTime().Sub(s.StartTime()).Microseconds()) / 1000,
		}
		if s.Parent().IsValid() {
			fields["parent_id"] = s.Parent().SpanID().String()
		}
		for _, kv := range s.Attributes() {
			fields[string(kv.Key)] = kv.Value.AsInterface()
		}
		if s.Status().Description != "" {
			fields["status"] = s.Status().Description
		}
		e.logger.WithFields(fields).Log(e.level, "span finished")
	}
	return nil
}

func (e *LogExporter) Shutdown(context.Context) error {
	e.stopped.Store(true)
	return nil
}
