package retention

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	sqlstore "github.com/pretender-db/pretender/infrastructure/persistence/sql"
)

// StreamTrimmer periodically deletes stream records older than the
// configured retention window (spec §4.12), independent of the TTL
// Expirer: items and stream history age out on their own schedules.
type StreamTrimmer struct {
	db              *sqlx.DB
	clock           clockwork.Clock
	intervalSeconds int
	retention       time.Duration
	logger          *zap.Logger
}

// NewStreamTrimmer constructs a StreamTrimmer. retentionHours is how long a
// stream record survives before it is eligible for trimming.
func NewStreamTrimmer(db *sqlx.DB, clock clockwork.Clock, intervalSeconds, retentionHours int, logger *zap.Logger) *StreamTrimmer {
	return &StreamTrimmer{
		db:              db,
		clock:           clock,
		intervalSeconds: intervalSeconds,
		retention:       time.Duration(retentionHours) * time.Hour,
		logger:          logger,
	}
}

// Run blocks, trimming every tick until ctx is cancelled.
func (t *StreamTrimmer) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(time.Duration(t.intervalSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.trimOnce(ctx)
		}
	}
}

func (t *StreamTrimmer) trimOnce(ctx context.Context) {
	metadataDAO := sqlstore.NewMetadataDAO()
	tables, err := metadataDAO.List(ctx, t.db, "", maxTablesPerSweep)
	if err != nil {
		t.logger.Error("listing tables for stream trim", zap.Error(err))
		return
	}

	cutoff := t.clock.Now().Add(-t.retention).UTC()
	for _, tbl := range tables {
		if !tbl.StreamEnabled {
			continue
		}
		streamDAO := sqlstore.NewStreamDAO(tbl.Name)
		n, err := streamDAO.TrimBefore(ctx, t.db, cutoff)
		if err != nil {
			// Per-table isolation, same as the TTL Expirer.
			t.logger.Error("stream trim failed for table", zap.String("table", tbl.Name), zap.Error(err))
			continue
		}
		if n > 0 {
			t.logger.Info("trimmed stream records", zap.String("table", tbl.Name), zap.Int64("count", n))
		}
	}
}
