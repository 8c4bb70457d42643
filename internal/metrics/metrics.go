package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailcam_jobs_submitted_total",
		Help: "Total number of jobs submitted, by type",
	}, []string{"type"})

	JobsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailcam_jobs_completed_total",
		Help: "Total number of jobs completed successfully, by type",
	}, []string{"type"})

	JobsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailcam_jobs_failed_total",
		Help: "Total number of jobs that failed, by type",
	}, []string{"type"})

	JobsCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailcam_jobs_cancelled_total",
		Help: "Total number of jobs cancelled, by type",
	}, []string{"type"})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trailcam_job_duration_seconds",
		Help:    "Time from dispatch to completion in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	})

	RunningJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trailcam_running_jobs",
		Help: "Current number of running jobs",
	})

	QueuedJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trailcam_queued_jobs",
		Help: "Current number of queued jobs",
	})
)
