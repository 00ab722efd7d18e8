package telemetry

// ExporterLocatorOption is a function that configures an ExporterLocator
type ExporterLocatorOption func(*ExporterLocator)

// WithExporter registers an exporter factory with the given name
func WithExporter(name string, factory ExporterFactory) ExporterLocatorOption {
	return func(el *ExporterLocator) {
		if el.exporters == nil {
			el.exporters = make(map[string]ExporterFactory)
		}
		el.exporters[name] = factory
	}
}
