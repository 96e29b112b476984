package sql

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

// StreamRow is a stream relation's column shape (spec §3's Stream Record).
type StreamRow struct {
	SequenceNumber int64     `db:"sequence_number"`
	EventID        string    `db:"event_id"`
	EventType      string    `db:"event_type"`
	EventTimestamp time.Time `db:"event_timestamp"`
	HashKeyValue   string    `db:"hash_key_value"`
	SortKeyValue   string    `db:"sort_key_value"`
	KeysJSON       string    `db:"keys_json"`
	OldImageJSON   string    `db:"old_image_json"`
	NewImageJSON   string    `db:"new_image_json"`
	ApproxMillis   int64     `db:"approx_creation_time_millis"`
	SizeBytes      int       `db:"size_bytes"`
	CreatedAt      time.Time `db:"created_at"`
}

// StreamDAO is the per-table stream-relation DAO. The sequence_number
// column is an identity column so every append is assigned a monotonic,
// dense, table-scoped sequence number by the database itself (spec §4.9,
// §9): the DDL below targets the default PostgreSQL driver's
// GENERATED ALWAYS AS IDENTITY; an HSQLDB deployment swaps this one DDL
// string for its own IDENTITY column syntax without touching the DAO's
// query logic.
type StreamDAO struct {
	tableName string
}

// NewStreamDAO constructs a StreamDAO for tableName.
func NewStreamDAO(tableName string) *StreamDAO {
	return &StreamDAO{tableName: tableName}
}

func (d *StreamDAO) relation() string {
	return StreamRelationName(d.tableName)
}

// EnsureRelation provisions the stream relation (CreateTable with streams enabled).
func (d *StreamDAO) EnsureRelation(ctx context.Context, ext sqlx.ExtContext) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + d.relation() + ` (
		sequence_number BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		event_id VARCHAR(36) NOT NULL,
		event_type VARCHAR(16) NOT NULL,
		event_timestamp TIMESTAMP NOT NULL,
		hash_key_value VARCHAR(1024) NOT NULL,
		sort_key_value VARCHAR(1024) NOT NULL DEFAULT '',
		keys_json TEXT NOT NULL,
		old_image_json TEXT NOT NULL DEFAULT '',
		new_image_json TEXT NOT NULL DEFAULT '',
		approx_creation_time_millis BIGINT NOT NULL,
		size_bytes INT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`
	if _, err := ext.ExecContext(ctx, ddl); err != nil {
		return pretendererrors.NewInternalError("provisioning stream relation for %q: %v", d.tableName, err)
	}
	return nil
}

// DropRelation destroys the stream relation (DeleteTable).
func (d *StreamDAO) DropRelation(ctx context.Context, ext sqlx.ExtContext) error {
	if _, err := ext.ExecContext(ctx, `DROP TABLE IF EXISTS `+d.relation()); err != nil {
		return pretendererrors.NewInternalError("dropping stream relation for %q: %v", d.tableName, err)
	}
	return nil
}

// Append inserts a new stream record, letting the identity column assign
// its sequence number, and returns that assigned number. Failure here must
// fail the whole enclosing mutation (spec §4.9), so the caller is expected
// to run Append inside the same transaction as the item/GSI writes.
func (d *StreamDAO) Append(ctx context.Context, ext sqlx.ExtContext, row StreamRow) (int64, error) {
	query := rebindCtx(ext, `INSERT INTO `+d.relation()+`
		(event_id, event_type, event_timestamp, hash_key_value, sort_key_value, keys_json, old_image_json, new_image_json, approx_creation_time_millis, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING sequence_number`)

	var seq int64
	err := ext.QueryRowxContext(ctx, query,
		row.EventID, row.EventType, row.EventTimestamp, row.HashKeyValue, normalizeSortValue(row.SortKeyValue),
		row.KeysJSON, row.OldImageJSON, row.NewImageJSON, row.ApproxMillis, row.SizeBytes, row.CreatedAt).Scan(&seq)
	if err != nil {
		return 0, pretendererrors.NewInternalError("appending stream record for %q: %v", d.tableName, err)
	}
	return seq, nil
}

// RangeFrom returns up to limit records with sequenceNumber >= from,
// ordered ascending — GetRecords' core read (spec §4.10).
func (d *StreamDAO) RangeFrom(ctx context.Context, ext sqlx.ExtContext, from int64, limit int) ([]StreamRow, error) {
	query := rebindCtx(ext, `SELECT sequence_number, event_id, event_type, event_timestamp, hash_key_value, sort_key_value,
		keys_json, old_image_json, new_image_json, approx_creation_time_millis, size_bytes, created_at
		FROM `+d.relation()+` WHERE sequence_number >= ? ORDER BY sequence_number ASC LIMIT ?`)

	var rows []StreamRow
	if err := sqlx.SelectContext(ctx, ext, &rows, query, from, limit); err != nil {
		return nil, pretendererrors.NewInternalError("reading stream records for %q: %v", d.tableName, err)
	}
	return rows, nil
}

// MinMaxSequence reports the current min/max sequence numbers present, for
// DescribeStream. ok is false if the stream has no records yet.
func (d *StreamDAO) MinMaxSequence(ctx context.Context, ext sqlx.ExtContext) (min int64, max int64, ok bool, err error) {
	query := rebindCtx(ext, `SELECT MIN(sequence_number), MAX(sequence_number) FROM `+d.relation())

	var minVal, maxVal sql.NullInt64
	row := ext.QueryRowxContext(ctx, query)
	if scanErr := row.Scan(&minVal, &maxVal); scanErr != nil {
		return 0, 0, false, pretendererrors.NewInternalError("reading sequence range for %q: %v", d.tableName, scanErr)
	}
	if !minVal.Valid {
		return 0, 0, false, nil
	}
	return minVal.Int64, maxVal.Int64, true, nil
}

// TrimBefore deletes every record older than cutoff (the Stream Trimmer,
// spec §4.12), returning the number of rows removed.
func (d *StreamDAO) TrimBefore(ctx context.Context, ext sqlx.ExtContext, cutoff time.Time) (int64, error) {
	query := rebindCtx(ext, `DELETE FROM `+d.relation()+` WHERE created_at < ?`)
	result, err := ext.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, pretendererrors.NewInternalError("trimming stream records for %q: %v", d.tableName, err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// MinSequence returns the smallest sequence number still present, used by
// the Stream Manager to detect whether an iterator points before the trim
// horizon. ok is false if the stream is empty.
func (d *StreamDAO) MinSequence(ctx context.Context, ext sqlx.ExtContext) (int64, bool, error) {
	min, _, ok, err := d.MinMaxSequence(ctx, ext)
	return min, ok, err
}
