/*
Package metrics declares the Prometheus collectors for the hub and the
presence client and serves them over HTTP.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Hub metrics
	HubClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "comfycollab_hub_clients",
			Help: "Websocket clients currently registered across all canvases",
		},
	)

	HubCanvases = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "comfycollab_hub_canvases",
			Help: "Canvas sessions currently alive",
		},
	)

	HubRelayedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comfycollab_hub_relayed_events_total",
			Help: "Events relayed to peers by event type",
		},
		[]string{"event"},
	)

	HubHandshakeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comfycollab_hub_handshake_failures_total",
			Help: "Rejected websocket handshakes by reason",
		},
		[]string{"reason"},
	)

	// Presence client metrics
	PresenceRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "comfycollab_presence_records",
			Help: "Live presence records by kind",
		},
		[]string{"kind"},
	)

	PresenceEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comfycollab_presence_evictions_total",
			Help: "Presence records evicted by the staleness sweeper, by kind",
		},
		[]string{"kind"},
	)

	PresenceDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comfycollab_presence_dropped_total",
			Help: "Inbound presence frames ignored, by reason",
		},
		[]string{"reason"},
	)

	PresenceConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "comfycollab_presence_connected",
			Help: "Whether the presence channel is connected (1) or not (0)",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comfycollab_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comfycollab_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(HubClients)
	prometheus.MustRegister(HubCanvases)
	prometheus.MustRegister(HubRelayedTotal)
	prometheus.MustRegister(HubHandshakeFailures)
	prometheus.MustRegister(PresenceRecords)
	prometheus.MustRegister(PresenceEvictions)
	prometheus.MustRegister(PresenceDropped)
	prometheus.MustRegister(PresenceConnected)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
