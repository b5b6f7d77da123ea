package files

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quickshare_uploads_total",
		Help: "Uploads stored, by the backend that received the bytes.",
	}, []string{"backend"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quickshare_upload_bytes_total",
		Help: "Bytes accepted by successful uploads.",
	})

	uploadFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quickshare_upload_fallbacks_total",
		Help: "Uploads redirected to local storage because the active backend failed.",
	}, []string{"backend"})

	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quickshare_downloads_total",
		Help: "Verified share-link retrievals, by kind (download, preview).",
	}, []string{"kind"})

	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quickshare_sweep_runs_total",
		Help: "Expiry sweep runs.",
	})

	sweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quickshare_sweep_expired_total",
		Help: "Files soft-deleted because they expired.",
	})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quickshare_sweep_duration_seconds",
		Help:    "Duration of an expiry sweep run.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	reclaimedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quickshare_reclaimed_objects_total",
		Help: "Stored objects of deleted files removed from their backend, by outcome.",
	}, []string{"result"})
)
