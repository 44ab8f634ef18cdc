// Package metrics holds the Prometheus collectors for provider traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry all cloudbox collectors are registered on.
var Registry = prometheus.NewRegistry()

var (
	requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudbox_provider_requests_total",
		Help: "Total number of HTTP requests sent to storage providers",
	}, []string{"provider", "method", "class"})

	duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cloudbox_provider_request_duration_seconds",
		Help:    "Latency of HTTP requests sent to storage providers",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "method"})

	faults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudbox_provider_faults_total",
		Help: "Provider faults by mapped error kind",
	}, []string{"provider", "kind"})

	redirects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudbox_redirects_total",
		Help: "Region or endpoint redirects retried against the corrected target",
	}, []string{"provider"})
)

func init() {
	Registry.MustRegister(
		requests,
		duration,
		faults,
		redirects,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveRequest records one completed exchange. class is "success",
// "provider_fault" or "transport_fault".
func ObserveRequest(provider, method, class string, took time.Duration) {
	requests.WithLabelValues(provider, method, class).Inc()
	duration.WithLabelValues(provider, method).Observe(took.Seconds())
}

// ObserveFault records a provider fault by its mapped kind.
func ObserveFault(provider, kind string) {
	faults.WithLabelValues(provider, kind).Inc()
}

// ObserveRedirect records a redirect retry.
func ObserveRedirect(provider string) {
	redirects.WithLabelValues(provider).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
