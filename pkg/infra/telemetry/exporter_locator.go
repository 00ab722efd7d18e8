package telemetry

import (
	"fmt"

	"github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ExporterFactory builds a span exporter from free-form settings.
type ExporterFactory func(settings map[string]any, logger *logrus.Logger) (sdktrace.SpanExporter, error)

type ExporterLocator struct {
	exporters map[string]ExporterFactory
}

func NewExporterLocator(opts ...ExporterLocatorOption) *ExporterLocator {
	el := &ExporterLocator{
		exporters: make(map[string]ExporterFactory),
	}
	for _, opt := range opts {
		opt(el)
	}
	return el
}

// DefaultExporterLocator knows the exporters bundled with the service.
func DefaultExporterLocator() *ExporterLocator {
	return NewExporterLocator(WithExporter(LogExporterName, NewLogExporter))
}

func (p *ExporterLocator) GetExporter(name string, settings map[string]any, logger *logrus.Logger) (sdktrace.SpanExporter, error) {
	factory, ok := p.exporters[name]
	if !ok {
		return nil, fmt.Errorf("unknown exporter: %s", name)
	}
	exporter, err := factory(settings, logger)
	if err != nil {
		return nil, fmt.Errorf("exporter %s: %w", name, err)
	}
	return exporter, nil
}
