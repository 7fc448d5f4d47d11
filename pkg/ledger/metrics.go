package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var LedgerCollisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "typed_signer_nonce_collisions_total",
	Help: "Total number of generated nonces rejected because they were already issued",
})
