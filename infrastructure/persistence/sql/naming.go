package sql

import "strings"

// sanitizeIdentifier maps a DynamoDB table name (spec §3: 3-255 chars of
// [A-Za-z0-9_.\-]) onto a legal unquoted SQL identifier fragment by folding
// '.' and '-', which the table-name grammar allows but SQL identifiers
// don't, into '_'.
func sanitizeIdentifier(name string) string {
	replacer := strings.NewReplacer(".", "_", "-", "_")
	return strings.ToLower(replacer.Replace(name))
}

// ItemRelationName returns the per-table item relation name (spec §6).
func ItemRelationName(tableName string) string {
	return "pdb_item_" + sanitizeIdentifier(tableName)
}

// GSIRelationName returns a GSI mirror relation name (spec §6).
func GSIRelationName(tableName, indexName string) string {
	return ItemRelationName(tableName) + "_gsi_" + sanitizeIdentifier(indexName)
}

// StreamRelationName returns the per-table stream relation name (spec §6).
func StreamRelationName(tableName string) string {
	return "pdb_stream_" + sanitizeIdentifier(tableName)
}
