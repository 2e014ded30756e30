package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Jira API Metrics
var (
	// JiraRequestsTotal counts Jira API calls by operation, dialect and result
	JiraRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jira_requests_total",
			Help: "Total Jira API requests by operation, dialect and result",
		},
		[]string{"operation", "dialect", "result"},
	)

	// JiraRequestDuration tracks Jira API latency in seconds
	JiraRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jira_request_duration_seconds",
			Help:    "Jira API request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation", "dialect"},
	)
)

// Timer Metrics
var (
	// ActiveTimers tracks the number of running timers
	ActiveTimers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "timer_active",
			Help: "Number of currently running timers",
		},
	)

	// TimerTicksTotal counts tick loop iterations
	TimerTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timer_ticks_total",
			Help: "Total tick loop iterations",
		},
	)

	// WorklogSubmissionsTotal counts worklog pushes by result (synced/failed)
	WorklogSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worklog_submissions_total",
			Help: "Total worklog submissions by result",
		},
		[]string{"result"},
	)

	// WorklogSecondsTotal sums the billed seconds of synced worklogs
	WorklogSecondsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worklog_seconds_total",
			Help: "Total seconds billed through synced worklogs",
		},
	)
)
