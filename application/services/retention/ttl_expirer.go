// Package retention implements the two periodic background sweeps (spec
// §4.12): TTL expiry and stream trimming. Both are driven by a
// clockwork.Clock so tests can advance virtual time instead of sleeping.
package retention

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pretender-db/pretender/application/services"
	"github.com/pretender-db/pretender/domain/attrvalue"
	"github.com/pretender-db/pretender/domain/table"
	sqlstore "github.com/pretender-db/pretender/infrastructure/persistence/sql"
	"github.com/pretender-db/pretender/pkg/utils"
)

// maxTablesPerSweep bounds how many tables one sweep iteration considers;
// see maxScanRows in application/services for the analogous Scan bound.
const maxTablesPerSweep = 10000

// TTLExpirer periodically deletes items whose TTL attribute names a past
// epoch-seconds value (spec §4.12). Deletion goes through ItemManager so
// expired items still mirror into GSIs and emit a REMOVE stream record like
// any other delete.
type TTLExpirer struct {
	db              *sqlx.DB
	items           *services.ItemManager
	encryption      *services.EncryptionHelper
	clock           clockwork.Clock
	intervalSeconds int
	pageSize        int
	logger          *zap.Logger
}

// NewTTLExpirer constructs a TTLExpirer. intervalSeconds is how often a full
// sweep runs; pageSize bounds how many items are scanned per page within a
// table.
func NewTTLExpirer(db *sqlx.DB, items *services.ItemManager, encryption *services.EncryptionHelper, clock clockwork.Clock, intervalSeconds int, pageSize int, logger *zap.Logger) *TTLExpirer {
	return &TTLExpirer{
		db:              db,
		items:           items,
		encryption:      encryption,
		clock:           clock,
		intervalSeconds: intervalSeconds,
		pageSize:        pageSize,
		logger:          logger,
	}
}

// Run blocks, sweeping every tick until ctx is cancelled.
func (e *TTLExpirer) Run(ctx context.Context) {
	ticker := e.clock.NewTicker(time.Duration(e.intervalSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.sweepOnce(ctx)
		}
	}
}

func (e *TTLExpirer) sweepOnce(ctx context.Context) {
	metadataDAO := sqlstore.NewMetadataDAO()
	tables, err := metadataDAO.List(ctx, e.db, "", maxTablesPerSweep)
	if err != nil {
		e.logger.Error("listing tables for TTL sweep", zap.Error(err))
		return
	}

	for _, t := range tables {
		if !t.TTLEnabled {
			continue
		}
		if err := e.expireTable(ctx, t); err != nil {
			// Per-table isolation: one table's failure must not abort the
			// sweep for the rest (spec §4.12).
			e.logger.Error("TTL sweep failed for table", zap.String("table", t.Name), zap.Error(err))
		}
	}
}

func (e *TTLExpirer) expireTable(ctx context.Context, meta table.Metadata) error {
	itemDAO := sqlstore.NewItemDAO(meta.Name)
	now := e.clock.Now().Unix()
	var startHash, startSort string
	expiredCount := 0

	for {
		rows, err := itemDAO.Scan(ctx, e.db, startHash, startSort, e.pageSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			item, err := attrvalue.FromJSON(row.AttributesJSON)
			if err != nil {
				return err
			}
			item, err = e.encryption.DecryptOnRead(meta.Name, item)
			if err != nil {
				return err
			}
			if !isExpired(item, meta.TTLAttribute, now) {
				continue
			}

			key := attrvalue.Item{meta.HashKey: item[meta.HashKey]}
			if meta.SortKey != "" {
				key[meta.SortKey] = item[meta.SortKey]
			}
			if _, err := e.items.DeleteItem(ctx, services.DeleteItemInput{TableName: meta.Name, Key: key}); err != nil {
				e.logger.Error("expiring item", zap.String("table", meta.Name), zap.Error(err))
				continue
			}
			expiredCount++
		}

		last := rows[len(rows)-1]
		startHash, startSort = last.HashKeyValue, last.SortKeyValue
		if len(rows) < e.pageSize {
			break
		}
	}

	if expiredCount > 0 {
		e.logger.Info("TTL sweep expired items", zap.String("table", meta.Name), zap.Int("count", expiredCount))
	}
	return nil
}

// isExpired reports whether item's TTL attribute is a numeric epoch-seconds
// value at or before now. A missing or non-numeric TTL attribute never
// expires the item — matching real DynamoDB, which silently ignores TTL
// attributes that aren't Number type (spec's Open Question resolution, §9).
func isExpired(item attrvalue.Item, ttlAttribute string, now int64) bool {
	v, ok := item[ttlAttribute]
	if !ok {
		return false
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	epoch, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return false
	}
	return utils.IsExpired(epoch, now)
}
