package services

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/pretender-db/pretender/domain/attrvalue"
	"github.com/pretender-db/pretender/domain/stream"
	"github.com/pretender-db/pretender/domain/table"
	sqlstore "github.com/pretender-db/pretender/infrastructure/persistence/sql"
)

// StreamCapture assembles and appends stream records for item mutations
// (spec §4.9). It never opens its own transaction — callers pass the same
// *sqlx.Tx used for the item/GSI write so a capture failure fails the whole
// mutation.
type StreamCapture struct{}

// NewStreamCapture constructs a StreamCapture.
func NewStreamCapture() *StreamCapture { return &StreamCapture{} }

// Capture builds a stream.Record for one mutation and appends it within tx.
// oldItem/newItem may be nil depending on eventType (REMOVE has no new item,
// INSERT has no old item).
func (c *StreamCapture) Capture(ctx context.Context, tx *sqlx.Tx, meta table.Metadata, eventType stream.EventType, hashKeyValue, sortKeyValue string, oldItem, newItem attrvalue.Item) error {
	if !meta.StreamEnabled {
		return nil
	}

	keys := attrvalue.Item{}
	if newItem != nil {
		if v, ok := newItem[meta.HashKey]; ok {
			keys[meta.HashKey] = v
		}
	} else if oldItem != nil {
		if v, ok := oldItem[meta.HashKey]; ok {
			keys[meta.HashKey] = v
		}
	}
	if meta.SortKey != "" {
		if newItem != nil {
			if v, ok := newItem[meta.SortKey]; ok {
				keys[meta.SortKey] = v
			}
		} else if oldItem != nil {
			if v, ok := oldItem[meta.SortKey]; ok {
				keys[meta.SortKey] = v
			}
		}
	}

	keysJSON, err := attrvalue.ToJSON(keys)
	if err != nil {
		return err
	}

	var oldImageJSON, newImageJSON string
	if oldItem != nil {
		oldImageJSON, err = attrvalue.ToJSON(oldItem)
		if err != nil {
			return err
		}
	}
	if newItem != nil {
		newImageJSON, err = attrvalue.ToJSON(newItem)
		if err != nil {
			return err
		}
	}

	record := stream.NewRecord(meta.Name, meta.StreamViewType, eventType, hashKeyValue, sortKeyValue, keysJSON, oldImageJSON, newImageJSON)

	streamDAO := sqlstore.NewStreamDAO(meta.Name)
	_, err = streamDAO.Append(ctx, tx, sqlstore.StreamRow{
		EventID:        record.EventID.String(),
		EventType:      string(record.EventType),
		EventTimestamp: record.EventTimestamp,
		HashKeyValue:   record.HashKeyValue,
		SortKeyValue:   record.SortKeyValue,
		KeysJSON:       record.KeysJSON,
		OldImageJSON:   record.OldImageJSON,
		NewImageJSON:   record.NewImageJSON,
		ApproxMillis:   record.ApproximateCreationTimeMillis,
		SizeBytes:      record.SizeBytes,
		CreatedAt:      record.CreatedAt,
	})
	return err
}
