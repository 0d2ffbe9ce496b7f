package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parley_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ChatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_chat_requests_total",
			Help: "Total number of chat completion requests by outcome.",
		},
		[]string{"outcome"},
	)

	ThrottleRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_throttle_rejections_total",
			Help: "Requests rejected by rate limiting or quota, by scope.",
		},
		[]string{"scope"},
	)

	TokensRecordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_tokens_recorded_total",
			Help: "Tokens written to the usage ledger, by direction.",
		},
		[]string{"direction"},
	)

	CompletionStreamDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parley_completion_stream_duration_seconds",
			Help:    "Duration of upstream completion streams.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ChatRequestsTotal,
		ThrottleRejectionsTotal,
		TokensRecordedTotal,
		CompletionStreamDuration,
	)
}
