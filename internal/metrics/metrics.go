// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grade_uploads_total",
			Help: "Total number of roster uploads by outcome",
		},
		[]string{"tenant", "outcome"},
	)

	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grade_upload_rows_total",
			Help: "Student rows seen in uploads by result",
		},
		[]string{"tenant", "result"},
	)

	GradeWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grade_writes_total",
			Help: "Grades written by uploads",
		},
		[]string{"tenant", "op"},
	)

	ScorePercentHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grade_score_percent",
			Help:    "Distribution of uploaded scores as percentage of max points",
			Buckets: prometheus.LinearBuckets(0, 10, 16),
		},
		[]string{"tenant"},
	)

	UploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grade_upload_duration_seconds",
			Help:    "Time spent importing one upload",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
