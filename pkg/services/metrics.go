package services

import "github.com/prometheus/client_golang/prometheus"

var (
	chatTurnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlmend_chat_turns_total",
			Help: "Total chat turns processed.",
		},
	)
	turnDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlmend_turn_duration_seconds",
			Help:    "End-to-end chat turn latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	autoFixChangesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlmend_autofix_changes_total",
			Help: "Total corrections applied to generated SQL.",
		},
	)
	autoFixIssuesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlmend_autofix_issues_total",
			Help: "Total unresolved references reported by the auto-fixer.",
		},
	)
	resolutionCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlmend_path_cache_hits_total",
			Help: "Session resolution cache hits.",
		},
	)
	resolutionCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlmend_path_cache_misses_total",
			Help: "Session resolution cache misses.",
		},
	)
	repairAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlmend_repair_attempts_total",
			Help: "LLM repair round-trips after failed executions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		chatTurnsTotal,
		turnDurationSeconds,
		autoFixChangesTotal,
		autoFixIssuesTotal,
		resolutionCacheHitsTotal,
		resolutionCacheMissesTotal,
		repairAttemptsTotal,
	)
}
