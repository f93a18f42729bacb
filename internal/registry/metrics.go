package registry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jmerrifield20/LandRegistry/internal/model"
)

var (
	landregEventsReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "landreg_reconstruct_events_replayed_total",
		Help: "Total number of submission events read during reconstruction.",
	})
	landregRecordsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "landreg_reconstruct_records_dropped_total",
		Help: "Record fetches dropped from a reconstructed view, by reason.",
	}, []string{"reason"})
	landregSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "landreg_submissions_total",
		Help: "Record submissions by result.",
	}, []string{"result"})
	landregReviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "landreg_reviews_total",
		Help: "Officer reviews by decision and result.",
	}, []string{"decision", "result"})
)

// resultLabel maps an error to a low-cardinality metric label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, model.ErrRecordNotFound):
		return "not_found"
	default:
		return "error"
	}
}
