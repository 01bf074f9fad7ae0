package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	calculationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_calculations_created_total",
		Help: "Calculator notes created",
	})

	recomputesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_recomputes_total",
		Help: "Recompute passes by outcome",
	}, []string{"outcome"})

	indexSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_index_saves_total",
		Help: "Index snapshot writes by result",
	}, []string{"result"})

	reconcilePruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_reconcile_pruned_total",
		Help: "Index entries dropped on load because their board item is gone",
	})

	indexEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tally_index_entries",
		Help: "Calculator notes currently tracked",
	})
)

// Recompute outcomes.
const (
	outcomeUpdated = "updated"
	outcomeRetired = "retired"
	outcomeGone    = "gone"
	outcomeFailed  = "failed"
)
