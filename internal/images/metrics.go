package images

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	commitsTotal   *prometheus.CounterVec
	commitDuration *prometheus.HistogramVec
	inFlight       prometheus.Gauge
	bytesSaved     prometheus.Counter
}

// NewMetrics registers the commit collectors on reg. A nil reg keeps them
// private to the returned value.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelnote_image_commits_total",
			Help: "Image commits by pipeline outcome and final status.",
		}, []string{"outcome", "status"}),
		commitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelnote_image_commit_duration_seconds",
			Help:    "Duration of the detached transform and write of an image.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelnote_image_commits_in_flight",
			Help: "Image commits dispatched in-process and not finished yet.",
		}),
		bytesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelnote_image_bytes_saved_total",
			Help: "Bytes removed from uploads by shrinking.",
		}),
	}

	reg.MustRegister(
		m.commitsTotal,
		m.commitDuration,
		m.inFlight,
		m.bytesSaved,
	)
	return m
}
