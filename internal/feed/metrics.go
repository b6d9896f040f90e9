package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var readsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feed_reads_total",
	Help: "Number of aggregation reads served",
}, []string{"path"})

var readErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feed_read_errors_total",
	Help: "Number of aggregation reads that failed",
}, []string{"path"})

var postsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feed_posts_created_total",
	Help: "Number of posts created",
})

var viewIncrementErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feed_view_increment_errors_total",
	Help: "Number of fire-and-forget view increments that failed",
})
