package postgres

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/media-push/pkg/metrics"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB, m *metrics.Metrics) BaseRepository {
	return BaseRepository{db: db, metrics: m}
}

// observe records the outcome and latency of one operation.
func (r *BaseRepository) observe(op string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveDB(op, err)
	r.metrics.DatabaseLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
