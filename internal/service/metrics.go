package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	taskTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tryon_task_transitions_total",
		Help: "Task status transitions won, by edge and the path that won them.",
	}, []string{"from", "to", "source"})

	taskSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tryon_task_submissions_total",
		Help: "Render worker submissions by result.",
	}, []string{"result"})

	webhooksIgnoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tryon_worker_webhooks_ignored_total",
		Help: "Worker callbacks that did not change a task, by reason.",
	}, []string{"reason"})

	deviceCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tryon_device_cache_lookups_total",
		Help: "Device cache lookups by result (hit or miss).",
	}, []string{"result"})
)
