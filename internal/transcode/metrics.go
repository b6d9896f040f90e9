package transcode

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "transcode_queue_depth",
	Help: "Number of jobs waiting to be transcoded",
})

var jobsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
	Name: "transcode_jobs_enqueued_total",
	Help: "Number of transcode jobs accepted",
})

var jobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "transcode_jobs_completed_total",
	Help: "Number of transcode jobs finished, by outcome",
}, []string{"outcome"})

var jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "transcode_job_duration_seconds",
	Help:    "Wall time per transcode job",
	Buckets: prometheus.ExponentialBuckets(1, 2, 12),
})
