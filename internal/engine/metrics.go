package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "typed_signer_submissions_total",
	Help: "Total number of signed payloads sent on-chain by final status",
}, []string{"schema", "status"})
