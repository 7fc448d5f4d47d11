package chain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	ChainCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typed_signer_chain_calls_total",
		Help: "Total number of read-only contract calls by method and outcome",
	}, []string{"method", "outcome"})

	ChainCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "typed_signer_chain_call_duration_seconds",
		Help:    "Latency of read-only contract calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typed_signer_transactions_total",
		Help: "Total number of relayer transactions by status",
	}, []string{"status"})

	ConfirmationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "typed_signer_confirmation_duration_seconds",
		Help:    "Time from send to receipt",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)
