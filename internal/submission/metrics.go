package submission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var AssembleRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "typed_signer_assemble_rejections_total",
	Help: "Total number of signed cycles refused by the assembler",
}, []string{"reason"})
