package services

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/pretender-db/pretender/domain/table"
	sqlstore "github.com/pretender-db/pretender/infrastructure/persistence/sql"
	"github.com/pretender-db/pretender/infrastructure/streamcodec"
	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

// singleShardID is the one, never-closing shard every stream-enabled table
// exposes. DynamoDB Streams resharding (splitting a shard under write
// pressure) has no equivalent need against a single relational backend, so
// this emulator models exactly one open shard per table (spec §4.10, §9).
const singleShardID = "shardId-00000000000000000001"

// StreamManager implements ListStreams/DescribeStream/GetShardIterator/
// GetRecords (spec §4.10-§4.11).
type StreamManager struct {
	db          *sqlx.DB
	metadataDAO *sqlstore.MetadataDAO
	codec       *streamcodec.Codec
}

// NewStreamManager constructs a StreamManager.
func NewStreamManager(db *sqlx.DB, codec *streamcodec.Codec) *StreamManager {
	return &StreamManager{db: db, metadataDAO: sqlstore.NewMetadataDAO(), codec: codec}
}

// StreamDescriptor is one ListStreams entry.
type StreamDescriptor struct {
	TableName string
}

// ListStreams returns every stream-enabled table, optionally filtered to
// one table name.
func (m *StreamManager) ListStreams(ctx context.Context, tableNameFilter string) ([]StreamDescriptor, error) {
	tables, err := m.metadataDAO.List(ctx, m.db, "", maxScanRows)
	if err != nil {
		return nil, err
	}
	var out []StreamDescriptor
	for _, t := range tables {
		if !t.StreamEnabled {
			continue
		}
		if tableNameFilter != "" && t.Name != tableNameFilter {
			continue
		}
		out = append(out, StreamDescriptor{TableName: t.Name})
	}
	return out, nil
}

// ShardDescription is one shard within a stream's DescribeStream response.
// EndingSequenceNumber is always nil: the single modeled shard never closes.
type ShardDescription struct {
	ShardID                 string
	StartingSequenceNumber   int64
	EndingSequenceNumber     *int64
}

// StreamDescription is DescribeStream's response.
type StreamDescription struct {
	TableName      string
	StreamViewType table.StreamViewType
	Shards         []ShardDescription
}

// DescribeStream reports a stream's shard layout and view type.
func (m *StreamManager) DescribeStream(ctx context.Context, tableName string) (*StreamDescription, error) {
	meta, err := m.metadataDAO.Get(ctx, m.db, tableName)
	if err != nil {
		return nil, err
	}
	if !meta.StreamEnabled {
		return nil, pretendererrors.NewResourceNotFoundError("table %q has no stream enabled", tableName)
	}

	streamDAO := sqlstore.NewStreamDAO(tableName)
	min, _, ok, err := streamDAO.MinMaxSequence(ctx, m.db)
	if err != nil {
		return nil, err
	}
	start := int64(0)
	if ok {
		start = min
	}

	return &StreamDescription{
		TableName:      tableName,
		StreamViewType: meta.StreamViewType,
		Shards: []ShardDescription{
			{ShardID: singleShardID, StartingSequenceNumber: start},
		},
	}, nil
}

// GetShardIterator issues an iterator positioned per iterType (spec §4.11).
func (m *StreamManager) GetShardIterator(ctx context.Context, tableName, shardID string, iterType streamcodec.IteratorType, sequenceNumber int64) (string, error) {
	meta, err := m.metadataDAO.Get(ctx, m.db, tableName)
	if err != nil {
		return "", err
	}
	if !meta.StreamEnabled {
		return "", pretendererrors.NewResourceNotFoundError("table %q has no stream enabled", tableName)
	}

	streamDAO := sqlstore.NewStreamDAO(tableName)
	cursor := streamcodec.Cursor{TableName: tableName, ShardID: shardID, Type: iterType}

	switch iterType {
	case streamcodec.TrimHorizon:
		min, ok, err := streamDAO.MinSequence(ctx, m.db)
		if err != nil {
			return "", err
		}
		if ok {
			cursor.SequenceNumber = min
		}
	case streamcodec.Latest:
		_, max, ok, err := streamDAO.MinMaxSequence(ctx, m.db)
		if err != nil {
			return "", err
		}
		if ok {
			cursor.SequenceNumber = max + 1
		}
	case streamcodec.AtSequenceNumber:
		cursor.SequenceNumber = sequenceNumber
	case streamcodec.AfterSequenceNumber:
		cursor.SequenceNumber = sequenceNumber + 1
	default:
		return "", pretendererrors.NewValidationError("unknown shard iterator type %q", iterType)
	}

	return m.codec.Encode(cursor)
}

// GetRecordsOutput is GetRecords' response.
type GetRecordsOutput struct {
	Records            []sqlstore.StreamRow
	NextShardIterator  string
}

// GetRecords fetches the records at and after an iterator's position.
// Reaching an iterator whose position has already been trimmed away
// surfaces TrimmedDataAccessException rather than silently skipping ahead
// (spec §4.12).
func (m *StreamManager) GetRecords(ctx context.Context, iterator string, limit int) (*GetRecordsOutput, error) {
	cursor, err := m.codec.Decode(iterator)
	if err != nil {
		return nil, err
	}

	streamDAO := sqlstore.NewStreamDAO(cursor.TableName)
	min, ok, err := streamDAO.MinSequence(ctx, m.db)
	if err != nil {
		return nil, err
	}
	if ok && cursor.SequenceNumber < min {
		return nil, pretendererrors.NewTrimmedDataAccessError()
	}

	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := streamDAO.RangeFrom(ctx, m.db, cursor.SequenceNumber, limit)
	if err != nil {
		return nil, err
	}

	nextCursor := cursor
	if len(rows) > 0 {
		nextCursor.SequenceNumber = rows[len(rows)-1].SequenceNumber + 1
	}
	nextIterator, err := m.codec.Encode(nextCursor)
	if err != nil {
		return nil, err
	}

	return &GetRecordsOutput{Records: rows, NextShardIterator: nextIterator}, nil
}
