package runner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runnersStarted counts workers spawned by Start.
	runnersStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "varquery_runners_started_total",
			Help: "Total number of query runners started",
		},
		[]string{"dialect"},
	)
	// runnerRows counts variants pushed to result queues.
	runnerRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "varquery_runner_rows_total",
			Help: "Total number of variants produced by query runners",
		},
		[]string{"dialect"},
	)
	runnerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "varquery_runner_errors_total",
			Help: "Total number of backend failures delivered through result queues",
		},
		[]string{"dialect"},
	)
	// runnerSelfClosed counts runners that gave up on a consumer that
	// stopped draining the queue.
	runnerSelfClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "varquery_runner_self_closed_total",
			Help: "Total number of runners closed because nobody read their results",
		},
		[]string{"dialect"},
	)
	runnerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "varquery_runner_duration_seconds",
			Help:    "Wall time of query runners from start to exit",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dialect"},
	)
)
