package telemetry

import (
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
)

// PrometheusReader is an OTEL metric reader backed by its own Prometheus registry.
type PrometheusReader struct {
	*prometheus.Exporter
	registry *promclient.Registry
}

// NewPrometheusReader creates a Prometheus exporter on a dedicated registry
// that also carries the Go runtime and process collectors.
func NewPrometheusReader() (*PrometheusReader, error) {
	registry := promclient.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return &PrometheusReader{Exporter: exporter, registry: registry}, nil
}

// Handler serves the reader's registry.
func (r *PrometheusReader) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
