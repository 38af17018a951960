package chaintracks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkpointViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccoin_checkpoint_violations_total",
		Help: "The number of headers rejected because they conflict with a checkpoint.",
	})
	reorgsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccoin_reorgs_rejected_total",
		Help: "The number of chain tip changes refused because they fork at or below the last checkpoint.",
	})
	tipHeightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ccoin_chain_tip_height",
		Help: "Height of the current chain tip.",
	})
	lastCheckpointGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ccoin_last_checkpoint_height",
		Help: "Height of the highest checkpoint present on the main chain.",
	})
)
