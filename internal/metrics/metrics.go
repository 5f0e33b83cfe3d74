// Package metrics holds the prometheus collectors shared by the proxy, the
// mail API and the delivery daemon.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IMAPConnections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailgate_imap_connection_total",
			Help: "Incoming IMAP connections.",
		},
		[]string{
			"service", // imap, imaps
		},
	)
	IMAPCommands = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailgate_imap_command_duration_seconds",
			Help:    "IMAP command duration and result codes in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.100, 0.5, 1, 5, 10, 20},
		},
		[]string{
			"cmd",
			"result", // ok, no, bad, pending
		},
	)
	APIRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailgate_api_request_duration_seconds",
			Help:    "Mail API request duration by route and status code.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.100, 0.5, 1, 5, 10},
		},
		[]string{
			"route",
			"code",
		},
	)
	BackendOps = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailgate_backend_operation_duration_seconds",
			Help:    "Object store, flag store and send service call duration.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.100, 0.5, 1, 5, 10},
		},
		[]string{
			"op",     // list, get, put, copy, delete, flags, send, user
			"result", // ok, error
		},
	)
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailgate_delivery_total",
			Help: "Messages accepted or rejected by the LMTP delivery daemon.",
		},
		[]string{
			"result", // stored, rejected, error
		},
	)
)

// ObserveCommand records one IMAP command.
func ObserveCommand(cmd, result string, start time.Time) {
	IMAPCommands.WithLabelValues(cmd, result).Observe(time.Since(start).Seconds())
}

// ObserveBackend records one backing-store call.
func ObserveBackend(op string, err error, start time.Time) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	BackendOps.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

// ObserveRequest records one HTTP request.
func ObserveRequest(route string, code int, start time.Time) {
	APIRequests.WithLabelValues(route, strconv.Itoa(code)).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
