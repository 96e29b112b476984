package sql

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

// noSortKey is the sentinel sort_key_value stored for tables without a
// sort key, so the (hash, sort) unique constraint works uniformly whether
// or not the table declares one.
const noSortKey = ""

// ItemRow is a stored item relation's column shape (spec §3's Stored Item Row).
type ItemRow struct {
	HashKeyValue   string    `db:"hash_key_value"`
	SortKeyValue   string    `db:"sort_key_value"`
	AttributesJSON string    `db:"attributes_json"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// ItemDAO is the per-table CRUD/scan DAO over a table's item relation.
type ItemDAO struct {
	tableName string
}

// NewItemDAO constructs an ItemDAO for tableName.
func NewItemDAO(tableName string) *ItemDAO {
	return &ItemDAO{tableName: tableName}
}

func (d *ItemDAO) relation() string {
	return ItemRelationName(d.tableName)
}

// EnsureRelation provisions the item relation (CreateTable, spec §4.6).
func (d *ItemDAO) EnsureRelation(ctx context.Context, ext sqlx.ExtContext) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + d.relation() + ` (
		hash_key_value VARCHAR(1024) NOT NULL,
		sort_key_value VARCHAR(1024) NOT NULL DEFAULT '',
		attributes_json TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (hash_key_value, sort_key_value)
	)`
	if _, err := ext.ExecContext(ctx, ddl); err != nil {
		return pretendererrors.NewInternalError("provisioning item relation for %q: %v", d.tableName, err)
	}
	return nil
}

// DropRelation destroys the item relation (DeleteTable, spec §4.6).
func (d *ItemDAO) DropRelation(ctx context.Context, ext sqlx.ExtContext) error {
	if _, err := ext.ExecContext(ctx, `DROP TABLE IF EXISTS `+d.relation()); err != nil {
		return pretendererrors.NewInternalError("dropping item relation for %q: %v", d.tableName, err)
	}
	return nil
}

// Get fetches one row by (hash, sort). Returns nil, nil if absent.
func (d *ItemDAO) Get(ctx context.Context, ext sqlx.ExtContext, hashValue, sortValue string) (*ItemRow, error) {
	query := rebindCtx(ext, `SELECT hash_key_value, sort_key_value, attributes_json, created_at, updated_at
		FROM `+d.relation()+` WHERE hash_key_value = ? AND sort_key_value = ?`)

	var row ItemRow
	if err := sqlx.GetContext(ctx, ext, &row, query, hashValue, normalizeSortValue(sortValue)); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, pretendererrors.NewInternalError("fetching item from %q: %v", d.tableName, err)
	}
	return &row, nil
}

// Put upserts a row: UPDATE first, then INSERT if no row existed. This
// avoids relying on driver-specific upsert syntax (ON CONFLICT vs MERGE),
// keeping the DAO portable across backends.
func (d *ItemDAO) Put(ctx context.Context, ext sqlx.ExtContext, hashValue, sortValue, attributesJSON string, now time.Time) error {
	sortValue = normalizeSortValue(sortValue)

	updateQuery := rebindCtx(ext, `UPDATE `+d.relation()+` SET attributes_json = ?, updated_at = ?
		WHERE hash_key_value = ? AND sort_key_value = ?`)
	result, err := ext.ExecContext(ctx, updateQuery, attributesJSON, now, hashValue, sortValue)
	if err != nil {
		return pretendererrors.NewInternalError("updating item in %q: %v", d.tableName, err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}

	insertQuery := rebindCtx(ext, `INSERT INTO `+d.relation()+`
		(hash_key_value, sort_key_value, attributes_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := ext.ExecContext(ctx, insertQuery, hashValue, sortValue, attributesJSON, now, now); err != nil {
		return pretendererrors.NewInternalError("inserting item into %q: %v", d.tableName, err)
	}
	return nil
}

// Delete removes a row by (hash, sort). Returns whether a row existed.
func (d *ItemDAO) Delete(ctx context.Context, ext sqlx.ExtContext, hashValue, sortValue string) (bool, error) {
	query := rebindCtx(ext, `DELETE FROM `+d.relation()+` WHERE hash_key_value = ? AND sort_key_value = ?`)
	result, err := ext.ExecContext(ctx, query, hashValue, normalizeSortValue(sortValue))
	if err != nil {
		return false, pretendererrors.NewInternalError("deleting item from %q: %v", d.tableName, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// QueryByHash returns every row for hashValue, ordered by sort_key_value
// ascending. The byte-wise SQL ordering is a candidate ordering only: when
// the sort key is numeric (N), the Item Manager re-sorts the returned rows
// using domain/expr's decimal-aware comparator before applying
// ScanIndexForward, Limit, and the sort-key condition, since SQL text
// ordering alone cannot express DynamoDB's numeric sort-key semantics.
func (d *ItemDAO) QueryByHash(ctx context.Context, ext sqlx.ExtContext, hashValue string) ([]ItemRow, error) {
	query := rebindCtx(ext, `SELECT hash_key_value, sort_key_value, attributes_json, created_at, updated_at
		FROM `+d.relation()+` WHERE hash_key_value = ? ORDER BY sort_key_value ASC`)

	var rows []ItemRow
	if err := sqlx.SelectContext(ctx, ext, &rows, query, hashValue); err != nil {
		return nil, pretendererrors.NewInternalError("querying items from %q: %v", d.tableName, err)
	}
	return rows, nil
}

// Scan returns up to limit rows strictly after (exclusiveStartHash,
// exclusiveStartSort) in (hash, sort) order. A caller that needs to detect
// whether a LastEvaluatedKey is needed asks for one row more than its page.
func (d *ItemDAO) Scan(ctx context.Context, ext sqlx.ExtContext, exclusiveStartHash, exclusiveStartSort string, limit int) ([]ItemRow, error) {
	exclusiveStartSort = normalizeSortValue(exclusiveStartSort)
	query := rebindCtx(ext, `SELECT hash_key_value, sort_key_value, attributes_json, created_at, updated_at
		FROM `+d.relation()+`
		WHERE (hash_key_value > ?) OR (hash_key_value = ? AND sort_key_value > ?)
		ORDER BY hash_key_value ASC, sort_key_value ASC
		LIMIT ?`)

	var rows []ItemRow
	if err := sqlx.SelectContext(ctx, ext, &rows, query, exclusiveStartHash, exclusiveStartHash, exclusiveStartSort, limit); err != nil {
		return nil, pretendererrors.NewInternalError("scanning %q: %v", d.tableName, err)
	}
	return rows, nil
}

func normalizeSortValue(sortValue string) string {
	if sortValue == "" {
		return noSortKey
	}
	return sortValue
}
