package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staywatch_checks_total",
			Help: "Number of availability checks by platform and resulting status",
		},
		[]string{"platform", "status"},
	)

	CheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "staywatch_check_duration_seconds",
			Help:    "Duration of individual availability checks",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"platform"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "staywatch_cycle_duration_seconds",
			Help:    "Duration of full check cycles",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		},
	)

	BrowserPoolInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "staywatch_browser_pool_in_use",
			Help: "Browser handles currently acquired from the pool",
		},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staywatch_notifications_total",
			Help: "Availability notifications attempted, by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		ChecksTotal,
		CheckDuration,
		CycleDuration,
		BrowserPoolInUse,
		NotificationsTotal,
	)
}
