package sql

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

// GSIRow is a GSI mirror relation's column shape.
type GSIRow struct {
	GSIHashValue   string    `db:"gsi_hash_value"`
	GSISortValue   string    `db:"gsi_sort_value"`
	BaseHashValue  string    `db:"base_hash_value"`
	BaseSortValue  string    `db:"base_sort_value"`
	AttributesJSON string    `db:"attributes_json"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// GSIDAO is the per-GSI mirror-relation DAO.
type GSIDAO struct {
	tableName string
	indexName string
}

// NewGSIDAO constructs a GSIDAO for one GSI of tableName.
func NewGSIDAO(tableName, indexName string) *GSIDAO {
	return &GSIDAO{tableName: tableName, indexName: indexName}
}

func (d *GSIDAO) relation() string {
	return GSIRelationName(d.tableName, d.indexName)
}

// EnsureRelation provisions the GSI mirror relation.
func (d *GSIDAO) EnsureRelation(ctx context.Context, ext sqlx.ExtContext) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + d.relation() + ` (
		gsi_hash_value VARCHAR(1024) NOT NULL,
		gsi_sort_value VARCHAR(1024) NOT NULL DEFAULT '',
		base_hash_value VARCHAR(1024) NOT NULL,
		base_sort_value VARCHAR(1024) NOT NULL DEFAULT '',
		attributes_json TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (base_hash_value, base_sort_value)
	)`
	if _, err := ext.ExecContext(ctx, ddl); err != nil {
		return pretendererrors.NewInternalError("provisioning GSI relation %q: %v", d.indexName, err)
	}
	return nil
}

// DropRelation destroys the GSI mirror relation.
func (d *GSIDAO) DropRelation(ctx context.Context, ext sqlx.ExtContext) error {
	if _, err := ext.ExecContext(ctx, `DROP TABLE IF EXISTS `+d.relation()); err != nil {
		return pretendererrors.NewInternalError("dropping GSI relation %q: %v", d.indexName, err)
	}
	return nil
}

// Put replaces the mirror row for (baseHash, baseSort) with a fresh one:
// delete-then-insert, the stricter policy spec §9 mandates whenever a
// mirrored key attribute may have changed.
func (d *GSIDAO) Put(ctx context.Context, ext sqlx.ExtContext, gsiHash, gsiSort, baseHash, baseSort, attributesJSON string, now time.Time) error {
	if err := d.Delete(ctx, ext, baseHash, baseSort); err != nil {
		return err
	}
	query := rebindCtx(ext, `INSERT INTO `+d.relation()+`
		(gsi_hash_value, gsi_sort_value, base_hash_value, base_sort_value, attributes_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := ext.ExecContext(ctx, query, gsiHash, normalizeSortValue(gsiSort), baseHash, normalizeSortValue(baseSort), attributesJSON, now, now); err != nil {
		return pretendererrors.NewInternalError("inserting GSI mirror row for %q: %v", d.indexName, err)
	}
	return nil
}

// Delete removes the mirror row for a base item, a no-op if none exists —
// the item either never had the GSI key attribute, or is being removed.
func (d *GSIDAO) Delete(ctx context.Context, ext sqlx.ExtContext, baseHash, baseSort string) error {
	query := rebindCtx(ext, `DELETE FROM `+d.relation()+` WHERE base_hash_value = ? AND base_sort_value = ?`)
	if _, err := ext.ExecContext(ctx, query, baseHash, normalizeSortValue(baseSort)); err != nil {
		return pretendererrors.NewInternalError("deleting GSI mirror row for %q: %v", d.indexName, err)
	}
	return nil
}

// QueryByHash returns every mirror row for gsiHashValue, ordered by
// gsi_sort_value ascending (candidate ordering — see ItemDAO.QueryByHash).
func (d *GSIDAO) QueryByHash(ctx context.Context, ext sqlx.ExtContext, gsiHashValue string) ([]GSIRow, error) {
	query := rebindCtx(ext, `SELECT gsi_hash_value, gsi_sort_value, base_hash_value, base_sort_value, attributes_json, created_at, updated_at
		FROM `+d.relation()+` WHERE gsi_hash_value = ? ORDER BY gsi_sort_value ASC`)

	var rows []GSIRow
	if err := sqlx.SelectContext(ctx, ext, &rows, query, gsiHashValue); err != nil {
		return nil, pretendererrors.NewInternalError("querying GSI %q: %v", d.indexName, err)
	}
	return rows, nil
}
