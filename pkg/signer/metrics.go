package signer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var BridgeRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "typed_signer_bridge_request_duration_seconds",
	Help:    "Round-trip time of wallet bridge requests, including user approval",
	Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
}, []string{"method"})
