package encoder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	EncodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "typed_signer_encode_duration_seconds",
		Help:    "Time spent encoding and hashing typed data",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
	}, []string{"schema"})

	EncodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typed_signer_encode_errors_total",
		Help: "Total number of messages rejected by the encoder",
	}, []string{"schema"})
)
