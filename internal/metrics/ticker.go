package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backgroundTasksInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vectoradmin",
			Subsystem: "ticker",
			Name:      "tasks_in_progress",
			Help:      "最近一次推进时处于进行中的后台任务数量。",
		},
	)

	backgroundTasksCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vectoradmin",
			Subsystem: "ticker",
			Name:      "tasks_completed_total",
			Help:      "由进度推进器完成的后台任务总数。",
		},
	)
)

// ObserveTick 记录一次推进时的进行中任务数。
func ObserveTick(inProgress int) {
	backgroundTasksInProgress.Set(float64(inProgress))
}

// TaskCompleted 计数一个完成的任务。
func TaskCompleted() {
	backgroundTasksCompleted.Inc()
}
