package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pretender-db/pretender/domain/table"
	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

const metadataTableName = "pdb_metadata"

// metadataRow is pdb_metadata's column shape.
type metadataRow struct {
	Name           string    `db:"name"`
	HashKey        string    `db:"hash_key"`
	SortKey        sql.NullString `db:"sort_key"`
	GSIsJSON       string    `db:"gsis_json"`
	TTLAttribute   sql.NullString `db:"ttl_attribute"`
	TTLEnabled     bool      `db:"ttl_enabled"`
	StreamEnabled  bool      `db:"stream_enabled"`
	StreamViewType sql.NullString `db:"stream_view_type"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
}

// MetadataDAO persists table.Metadata in the shared pdb_metadata relation.
type MetadataDAO struct{}

// NewMetadataDAO constructs a MetadataDAO.
func NewMetadataDAO() *MetadataDAO { return &MetadataDAO{} }

// EnsureRelation provisions pdb_metadata if it does not already exist. This
// is the one relation that must exist before any CreateTable call, so it is
// provisioned once at startup rather than per-table like item/GSI/stream
// relations.
func (d *MetadataDAO) EnsureRelation(ctx context.Context, ext sqlx.ExtContext) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + metadataTableName + ` (
		name VARCHAR(255) PRIMARY KEY,
		hash_key VARCHAR(255) NOT NULL,
		sort_key VARCHAR(255),
		gsis_json TEXT NOT NULL,
		ttl_attribute VARCHAR(255),
		ttl_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		stream_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		stream_view_type VARCHAR(32),
		status VARCHAR(32) NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`
	if _, err := ext.ExecContext(ctx, ddl); err != nil {
		return pretendererrors.NewInternalError("provisioning metadata relation: %v", err)
	}
	return nil
}

// Insert creates a new metadata row. The primary key on name resolves
// concurrent CreateTable races first-committer-wins (spec §9): the second
// writer's INSERT fails against the existing row and is translated to
// ResourceInUseException.
func (d *MetadataDAO) Insert(ctx context.Context, ext sqlx.ExtContext, meta table.Metadata) error {
	row, err := toRow(meta)
	if err != nil {
		return err
	}

	query := rebindCtx(ext, `INSERT INTO `+metadataTableName+`
		(name, hash_key, sort_key, gsis_json, ttl_attribute, ttl_enabled, stream_enabled, stream_view_type, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = ext.ExecContext(ctx, query,
		row.Name, row.HashKey, row.SortKey, row.GSIsJSON, row.TTLAttribute,
		row.TTLEnabled, row.StreamEnabled, row.StreamViewType, row.Status, row.CreatedAt)
	if err != nil {
		if looksLikeUniqueViolation(err) {
			return pretendererrors.NewResourceInUseError(meta.Name)
		}
		return pretendererrors.NewInternalError("inserting table metadata: %v", err)
	}
	return nil
}

// Get fetches one table's metadata by name.
func (d *MetadataDAO) Get(ctx context.Context, ext sqlx.ExtContext, name string) (*table.Metadata, error) {
	query := rebindCtx(ext, `SELECT name, hash_key, sort_key, gsis_json, ttl_attribute, ttl_enabled,
		stream_enabled, stream_view_type, status, created_at FROM `+metadataTableName+` WHERE name = ?`)

	var row metadataRow
	if err := sqlx.GetContext(ctx, ext, &row, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, pretendererrors.NewResourceNotFoundError("table %q does not exist", name)
		}
		return nil, pretendererrors.NewInternalError("fetching table metadata: %v", err)
	}

	meta, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// List returns up to limit tables with name > exclusiveStartName, ordered
// by name, for ListTables pagination.
func (d *MetadataDAO) List(ctx context.Context, ext sqlx.ExtContext, exclusiveStartName string, limit int) ([]table.Metadata, error) {
	query := rebindCtx(ext, `SELECT name, hash_key, sort_key, gsis_json, ttl_attribute, ttl_enabled,
		stream_enabled, stream_view_type, status, created_at FROM `+metadataTableName+`
		WHERE name > ? ORDER BY name ASC LIMIT ?`)

	var rows []metadataRow
	if err := sqlx.SelectContext(ctx, ext, &rows, query, exclusiveStartName, limit); err != nil {
		return nil, pretendererrors.NewInternalError("listing tables: %v", err)
	}

	out := make([]table.Metadata, 0, len(rows))
	for _, row := range rows {
		meta, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, nil
}

// Update overwrites an existing metadata row (UpdateTable/UpdateTimeToLive).
func (d *MetadataDAO) Update(ctx context.Context, ext sqlx.ExtContext, meta table.Metadata) error {
	row, err := toRow(meta)
	if err != nil {
		return err
	}

	query := rebindCtx(ext, `UPDATE `+metadataTableName+` SET
		hash_key = ?, sort_key = ?, gsis_json = ?, ttl_attribute = ?, ttl_enabled = ?,
		stream_enabled = ?, stream_view_type = ?, status = ? WHERE name = ?`)

	result, err := ext.ExecContext(ctx, query,
		row.HashKey, row.SortKey, row.GSIsJSON, row.TTLAttribute, row.TTLEnabled,
		row.StreamEnabled, row.StreamViewType, row.Status, row.Name)
	if err != nil {
		return pretendererrors.NewInternalError("updating table metadata: %v", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return pretendererrors.NewResourceNotFoundError("table %q does not exist", meta.Name)
	}
	return nil
}

// Delete removes a table's metadata row.
func (d *MetadataDAO) Delete(ctx context.Context, ext sqlx.ExtContext, name string) error {
	query := rebindCtx(ext, `DELETE FROM `+metadataTableName+` WHERE name = ?`)
	result, err := ext.ExecContext(ctx, query, name)
	if err != nil {
		return pretendererrors.NewInternalError("deleting table metadata: %v", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return pretendererrors.NewResourceNotFoundError("table %q does not exist", name)
	}
	return nil
}

func toRow(meta table.Metadata) (metadataRow, error) {
	gsisJSON, err := json.Marshal(meta.GSIs)
	if err != nil {
		return metadataRow{}, pretendererrors.NewInternalError("marshalling GSI list: %v", err)
	}
	row := metadataRow{
		Name:          meta.Name,
		HashKey:       meta.HashKey,
		GSIsJSON:      string(gsisJSON),
		TTLEnabled:    meta.TTLEnabled,
		StreamEnabled: meta.StreamEnabled,
		Status:        string(meta.Status),
		CreatedAt:     meta.CreatedAt,
	}
	if meta.SortKey != "" {
		row.SortKey = sql.NullString{String: meta.SortKey, Valid: true}
	}
	if meta.TTLAttribute != "" {
		row.TTLAttribute = sql.NullString{String: meta.TTLAttribute, Valid: true}
	}
	if meta.StreamViewType != "" {
		row.StreamViewType = sql.NullString{String: string(meta.StreamViewType), Valid: true}
	}
	return row, nil
}

func fromRow(row metadataRow) (table.Metadata, error) {
	var gsis []table.GSI
	if err := json.Unmarshal([]byte(row.GSIsJSON), &gsis); err != nil {
		return table.Metadata{}, pretendererrors.NewInternalError("unmarshalling GSI list: %v", err)
	}
	meta := table.Metadata{
		Name:          row.Name,
		HashKey:       row.HashKey,
		GSIs:          gsis,
		TTLEnabled:    row.TTLEnabled,
		StreamEnabled: row.StreamEnabled,
		Status:        table.Status(row.Status),
		CreatedAt:     row.CreatedAt,
	}
	if row.SortKey.Valid {
		meta.SortKey = row.SortKey.String
	}
	if row.TTLAttribute.Valid {
		meta.TTLAttribute = row.TTLAttribute.String
	}
	if row.StreamViewType.Valid {
		meta.StreamViewType = table.StreamViewType(row.StreamViewType.String)
	}
	return meta, nil
}

func looksLikeUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func rebindCtx(ext sqlx.ExtContext, query string) string {
	return sqlx.Rebind(sqlx.BindType(ext.DriverName()), query)
}
