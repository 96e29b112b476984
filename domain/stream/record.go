// Package stream defines the stream-record entity (spec §3, §4.9): the
// change-data-capture event a mutation emits for a stream-enabled table.
package stream

import (
	"time"

	"github.com/google/uuid"

	"github.com/pretender-db/pretender/domain/table"
)

// EventType is a stream record's mutation kind.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventModify EventType = "MODIFY"
	EventRemove EventType = "REMOVE"
)

// Record is one change-data-capture event.
type Record struct {
	TableName    string
	SequenceNumber int64
	EventID      uuid.UUID
	EventType    EventType
	EventTimestamp time.Time

	HashKeyValue string
	SortKeyValue string // empty if the table has no sort key

	KeysJSON     string
	OldImageJSON string // empty unless the view type requires it
	NewImageJSON string // empty unless the view type requires it

	ApproximateCreationTimeMillis int64
	SizeBytes                     int
	CreatedAt                     time.Time
}

// NewRecord assembles a Record for one mutation, populating old/new image
// JSON according to the table's active StreamViewType (spec §4.9's table).
func NewRecord(tableName string, viewType table.StreamViewType, eventType EventType, hashKeyValue, sortKeyValue, keysJSON, oldImageJSON, newImageJSON string) Record {
	now := time.Now().UTC()
	r := Record{
		TableName:      tableName,
		EventID:        uuid.New(),
		EventType:      eventType,
		EventTimestamp: now,
		HashKeyValue:   hashKeyValue,
		SortKeyValue:   sortKeyValue,
		KeysJSON:       keysJSON,
		ApproximateCreationTimeMillis: now.UnixMilli(),
		CreatedAt:                     now,
	}

	switch eventType {
	case EventInsert:
		if viewType.NeedsNewImage() {
			r.NewImageJSON = newImageJSON
		}
	case EventModify:
		if viewType.NeedsOldImage() {
			r.OldImageJSON = oldImageJSON
		}
		if viewType.NeedsNewImage() {
			r.NewImageJSON = newImageJSON
		}
	case EventRemove:
		if viewType.NeedsOldImage() {
			r.OldImageJSON = oldImageJSON
		}
	}

	r.SizeBytes = len(r.KeysJSON) + len(r.OldImageJSON) + len(r.NewImageJSON)
	return r
}
