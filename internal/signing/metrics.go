package signing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	SignatureRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typed_signer_signature_requests_total",
		Help: "Total number of signature requests by schema and outcome",
	}, []string{"schema", "outcome"})

	SigningDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "typed_signer_signing_duration_seconds",
		Help:    "Time from request to verified signature",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"schema"})
)
