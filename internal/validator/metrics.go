package validator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	BatchVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typed_signer_batch_verdicts_total",
		Help: "Total number of candidate entries by filtering verdict",
	}, []string{"verdict"})

	CooldownReadFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "typed_signer_cooldown_read_failures_total",
		Help: "Total number of failed last-update reads during cooldown checks",
	})
)
