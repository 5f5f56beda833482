// Package metrics exposes Prometheus instruments for the lending ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "toolcrib"

var (
	BorrowedLines = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "borrowed_lines_total",
		Help:      "Borrow lines applied.",
	})

	ReturnedLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "returned_lines_total",
		Help:      "Return lines applied, by match result.",
	}, []string{"match"})

	RejectedBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rejected_batches_total",
		Help:      "Batches rejected during validation, by reason.",
	}, []string{"kind", "reason"})

	OverReturnUnits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "over_return_units_total",
		Help:      "Units clamped away because a return exceeded total stock.",
	})

	OverdueMarked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "overdue_marked_total",
		Help:      "Transactions flipped to Overdue by the sweep.",
	})

	GateWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gate_wait_seconds",
		Help:      "Time spent waiting for the ledger gate.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
	}, []string{"op", "result"})
)
