// Package facade is the typed entry point (spec §5): one method per
// DynamoDB operation, translating the real AWS SDK's request/response
// shapes onto the application/services managers and back, attaching
// ConsumedCapacity and mapping internal errors onto the DynamoDB exception
// taxonomy (spec §7).
package facade

import (
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pretender-db/pretender/domain/attrvalue"
	"github.com/pretender-db/pretender/domain/table"
	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

func toMetadata(tableName string, keySchema []ddbtypes.KeySchemaElement, gsis []ddbtypes.GlobalSecondaryIndex) table.Metadata {
	meta := table.Metadata{Name: tableName}
	for _, ks := range keySchema {
		name := derefString(ks.AttributeName)
		switch ks.KeyType {
		case ddbtypes.KeyTypeHash:
			meta.HashKey = name
		case ddbtypes.KeyTypeRange:
			meta.SortKey = name
		}
	}
	for _, gsi := range gsis {
		meta.GSIs = append(meta.GSIs, toGSI(gsi))
	}
	return meta
}

func toGSI(gsi ddbtypes.GlobalSecondaryIndex) table.GSI {
	g := table.GSI{IndexName: derefString(gsi.IndexName)}
	for _, ks := range gsi.KeySchema {
		name := derefString(ks.AttributeName)
		switch ks.KeyType {
		case ddbtypes.KeyTypeHash:
			g.HashKey = name
		case ddbtypes.KeyTypeRange:
			g.SortKey = name
		}
	}
	if gsi.Projection != nil {
		g.Projection = toProjectionType(gsi.Projection.ProjectionType)
		g.NonKeyAttributes = gsi.Projection.NonKeyAttributes
	}
	return g
}

func toProjectionType(p ddbtypes.ProjectionType) table.ProjectionType {
	switch p {
	case ddbtypes.ProjectionTypeKeysOnly:
		return table.ProjectionKeysOnly
	case ddbtypes.ProjectionTypeInclude:
		return table.ProjectionInclude
	default:
		return table.ProjectionAll
	}
}

func fromProjectionType(p table.ProjectionType) ddbtypes.ProjectionType {
	switch p {
	case table.ProjectionKeysOnly:
		return ddbtypes.ProjectionTypeKeysOnly
	case table.ProjectionInclude:
		return ddbtypes.ProjectionTypeInclude
	default:
		return ddbtypes.ProjectionTypeAll
	}
}

func toStreamViewType(v ddbtypes.StreamViewType) table.StreamViewType {
	switch v {
	case ddbtypes.StreamViewTypeNewImage:
		return table.StreamViewNewImage
	case ddbtypes.StreamViewTypeOldImage:
		return table.StreamViewOldImage
	case ddbtypes.StreamViewTypeNewAndOldImages:
		return table.StreamViewNewAndOldImages
	default:
		return table.StreamViewKeysOnly
	}
}

func fromStreamViewType(v table.StreamViewType) ddbtypes.StreamViewType {
	switch v {
	case table.StreamViewNewImage:
		return ddbtypes.StreamViewTypeNewImage
	case table.StreamViewOldImage:
		return ddbtypes.StreamViewTypeOldImage
	case table.StreamViewNewAndOldImages:
		return ddbtypes.StreamViewTypeNewAndOldImages
	default:
		return ddbtypes.StreamViewTypeKeysOnly
	}
}

// tableDescription renders meta as the TableDescription shape every table
// operation returns.
func tableDescription(meta table.Metadata) *ddbtypes.TableDescription {
	keySchema := []ddbtypes.KeySchemaElement{
		{AttributeName: &meta.HashKey, KeyType: ddbtypes.KeyTypeHash},
	}
	if meta.SortKey != "" {
		sortKey := meta.SortKey
		keySchema = append(keySchema, ddbtypes.KeySchemaElement{AttributeName: &sortKey, KeyType: ddbtypes.KeyTypeRange})
	}

	var gsiDescriptions []ddbtypes.GlobalSecondaryIndexDescription
	for _, gsi := range meta.GSIs {
		gsi := gsi
		gsiKeySchema := []ddbtypes.KeySchemaElement{
			{AttributeName: &gsi.HashKey, KeyType: ddbtypes.KeyTypeHash},
		}
		if gsi.SortKey != "" {
			gsiKeySchema = append(gsiKeySchema, ddbtypes.KeySchemaElement{AttributeName: &gsi.SortKey, KeyType: ddbtypes.KeyTypeRange})
		}
		gsiDescriptions = append(gsiDescriptions, ddbtypes.GlobalSecondaryIndexDescription{
			IndexName: &gsi.IndexName,
			KeySchema: gsiKeySchema,
			Projection: &ddbtypes.Projection{
				ProjectionType:   fromProjectionType(gsi.Projection),
				NonKeyAttributes: gsi.NonKeyAttributes,
			},
			IndexStatus: ddbtypes.IndexStatusActive,
		})
	}

	status := toTableStatus(meta.Status)
	created := meta.CreatedAt

	desc := &ddbtypes.TableDescription{
		TableName:              &meta.Name,
		TableStatus:            status,
		KeySchema:               keySchema,
		GlobalSecondaryIndexes:  gsiDescriptions,
		CreationDateTime:        &created,
	}
	if meta.StreamEnabled {
		desc.StreamSpecification = &ddbtypes.StreamSpecification{
			StreamEnabled:  boolPtr(true),
			StreamViewType: fromStreamViewType(meta.StreamViewType),
		}
	}
	return desc
}

func toTableStatus(s table.Status) ddbtypes.TableStatus {
	switch s {
	case table.StatusCreating:
		return ddbtypes.TableStatusCreating
	case table.StatusUpdating:
		return ddbtypes.TableStatusUpdating
	case table.StatusDeleting:
		return ddbtypes.TableStatusDeleting
	default:
		return ddbtypes.TableStatusActive
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolPtr(b bool) *bool { return &b }

func toItem(m map[string]ddbtypes.AttributeValue) attrvalue.Item {
	if m == nil {
		return nil
	}
	return attrvalue.Item(m)
}

func fromItem(item attrvalue.Item) map[string]ddbtypes.AttributeValue {
	if item == nil {
		return nil
	}
	return map[string]ddbtypes.AttributeValue(item)
}

// toErrorOrNil translates an internal error into the facade's error return.
// pretendererrors.DynamoError already carries the exception code the caller
// is expected to switch on; the facade does not re-wrap it.
func toErrorOrNil(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := pretendererrors.As(err); ok {
		return err
	}
	return pretendererrors.Wrap(err, "unexpected failure")
}
