package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StateReads tracks baseline lookups by result (hit, miss)
	StateReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_state_reads_total",
			Help: "Total number of baseline lookups",
		},
		[]string{"result"}, // "hit", "miss"
	)

	// StateErrors tracks Redis operation errors
	StateErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_state_errors_total",
			Help: "Total number of baseline store errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)

	// BaselineTotal is the last result count written
	BaselineTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_state_baseline_total",
			Help: "Result count of the last stored baseline",
		},
	)
)
