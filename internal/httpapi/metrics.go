package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inference_mock_requests_total",
		Help: "HTTP requests served, by method, route and status code.",
	}, []string{"method", "route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inference_mock_request_duration_seconds",
		Help:    "Wall-clock time spent serving a request.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	chunksEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inference_mock_chunks_emitted_total",
		Help: "Stream chunks written to clients, by protocol.",
	}, []string{"protocol"})

	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inference_mock_active_streams",
		Help: "Streams currently being emitted.",
	})
)
