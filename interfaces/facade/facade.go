package facade

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/pretender-db/pretender/application/services"
	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

// Facade is the single entry point driving every DynamoDB-shaped operation
// against the underlying managers (spec §5). It never touches the storage
// layer directly.
type Facade struct {
	tables  *services.TableManager
	items   *services.ItemManager
	streams *services.StreamManager
	logger  *zap.Logger
}

// New constructs a Facade.
func New(tables *services.TableManager, items *services.ItemManager, streams *services.StreamManager, logger *zap.Logger) *Facade {
	return &Facade{tables: tables, items: items, streams: streams, logger: logger}
}

// CreateTable provisions a new table.
func (f *Facade) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput) (*dynamodb.CreateTableOutput, error) {
	meta := toMetadata(derefString(in.TableName), in.KeySchema, in.GlobalSecondaryIndexes)
	if in.StreamSpecification != nil && in.StreamSpecification.StreamEnabled != nil && *in.StreamSpecification.StreamEnabled {
		meta.StreamEnabled = true
		meta.StreamViewType = toStreamViewType(in.StreamSpecification.StreamViewType)
	}

	created, err := f.tables.CreateTable(ctx, meta)
	if err != nil {
		return nil, toErrorOrNil(err)
	}
	return &dynamodb.CreateTableOutput{TableDescription: tableDescription(*created)}, nil
}

// DescribeTable fetches one table's description.
func (f *Facade) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
	meta, err := f.tables.DescribeTable(ctx, derefString(in.TableName))
	if err != nil {
		return nil, toErrorOrNil(err)
	}
	return &dynamodb.DescribeTableOutput{Table: tableDescription(*meta)}, nil
}

// ListTables lists table names.
func (f *Facade) ListTables(ctx context.Context, in *dynamodb.ListTablesInput) (*dynamodb.ListTablesOutput, error) {
	limit := 100
	if in.Limit != nil {
		limit = int(*in.Limit)
	}
	tables, err := f.tables.ListTables(ctx, derefString(in.ExclusiveStartTableName), limit)
	if err != nil {
		return nil, toErrorOrNil(err)
	}

	out := &dynamodb.ListTablesOutput{}
	for _, t := range tables {
		out.TableNames = append(out.TableNames, t.Name)
	}
	if len(tables) == limit {
		last := tables[len(tables)-1].Name
		out.LastEvaluatedTableName = &last
	}
	return out, nil
}

// DeleteTable drops a table and every relation it owns.
func (f *Facade) DeleteTable(ctx context.Context, in *dynamodb.DeleteTableInput) (*dynamodb.DeleteTableOutput, error) {
	meta, err := f.tables.DeleteTable(ctx, derefString(in.TableName))
	if err != nil {
		return nil, toErrorOrNil(err)
	}
	return &dynamodb.DeleteTableOutput{TableDescription: tableDescription(*meta)}, nil
}

// UpdateTimeToLive enables or disables TTL expiry.
func (f *Facade) UpdateTimeToLive(ctx context.Context, in *dynamodb.UpdateTimeToLiveInput) (*dynamodb.UpdateTimeToLiveOutput, error) {
	spec := in.TimeToLiveSpecification
	if spec == nil {
		return nil, pretendererrors.NewValidationError("TimeToLiveSpecification is required")
	}
	enabled := spec.Enabled != nil && *spec.Enabled

	_, err := f.tables.UpdateTimeToLive(ctx, derefString(in.TableName), enabled, derefString(spec.AttributeName))
	if err != nil {
		return nil, toErrorOrNil(err)
	}
	return &dynamodb.UpdateTimeToLiveOutput{
		TimeToLiveSpecification: spec,
	}, nil
}

// UpdateTable adds/removes GSIs and toggles stream capture.
func (f *Facade) UpdateTable(ctx context.Context, in *dynamodb.UpdateTableInput) (*dynamodb.UpdateTableOutput, error) {
	upd := services.UpdateTableInput{}
	for _, u := range in.GlobalSecondaryIndexUpdates {
		if u.Create != nil {
			upd.AddGSIs = append(upd.AddGSIs, toGSI(ddbtypes.GlobalSecondaryIndex{
				IndexName:  u.Create.IndexName,
				KeySchema:  u.Create.KeySchema,
				Projection: u.Create.Projection,
			}))
		}
		if u.Delete != nil {
			upd.RemoveGSINames = append(upd.RemoveGSINames, derefString(u.Delete.IndexName))
		}
	}
	if in.StreamSpecification != nil {
		enabled := in.StreamSpecification.StreamEnabled != nil && *in.StreamSpecification.StreamEnabled
		upd.StreamEnabled = &enabled
		upd.StreamViewType = toStreamViewType(in.StreamSpecification.StreamViewType)
	}

	meta, err := f.tables.UpdateTable(ctx, derefString(in.TableName), upd)
	if err != nil {
		return nil, toErrorOrNil(err)
	}
	return &dynamodb.UpdateTableOutput{TableDescription: tableDescription(*meta)}, nil
}

func consumedCapacity(returnMode ddbtypes.ReturnConsumedCapacity, tableName string, units float64) *ddbtypes.ConsumedCapacity {
	if returnMode == ddbtypes.ReturnConsumedCapacityNone || returnMode == "" {
		return nil
	}
	return &ddbtypes.ConsumedCapacity{
		TableName:     &tableName,
		CapacityUnits: &units,
	}
}

func toReturnValues(rv ddbtypes.ReturnValue) services.ReturnValues {
	switch rv {
	case ddbtypes.ReturnValueAllOld:
		return services.ReturnAllOld
	case ddbtypes.ReturnValueAllNew:
		return services.ReturnAllNew
	case ddbtypes.ReturnValueUpdatedOld:
		return services.ReturnUpdatedOld
	case ddbtypes.ReturnValueUpdatedNew:
		return services.ReturnUpdatedNew
	default:
		return services.ReturnNone
	}
}

// PutItem writes one item.
func (f *Facade) PutItem(ctx context.Context, in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
	result, err := f.items.PutItem(ctx, services.PutItemInput{
		TableName:                 derefString(in.TableName),
		Item:                      toItem(in.Item),
		ConditionExpression:       derefString(in.ConditionExpression),
		ExpressionAttributeNames:  in.ExpressionAttributeNames,
		ExpressionAttributeValues: toItem(in.ExpressionAttributeValues),
		ReturnValues:              toReturnValues(in.ReturnValues),
	})
	if err != nil {
		return nil, toErrorOrNil(err)
	}
	return &dynamodb.PutItemOutput{
		Attributes:       fromItem(result.Attributes),
		ConsumedCapacity: consumedCapacity(in.ReturnConsumedCapacity, derefString(in.TableName), result.ConsumedCapacityUnits),
	}, nil
}

// GetItem fetches one item by key.
func (f *Facade) GetItem(ctx context.Context, in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
	result, err := f.items.GetItem(ctx, services.GetItemInput{
		TableName:      derefString(in.TableName),
		Key:            toItem(in.Key),
		ConsistentRead: in.ConsistentRead != nil && *in.ConsistentRead,
	})
	if err != nil {
		return nil, toErrorOrNil(err)
	}
	return &dynamodb.GetItemOutput{
		Item:             fromItem(result.Item),
		ConsumedCapacity: consumedCapacity(in.ReturnConsumedCapacity, derefString(in.TableName), result.ConsumedCapacityUnits),
	}, nil
}

// DeleteItem removes one item by key.
func (f *Facade) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error) {
	result, err := f.items.DeleteItem(ctx, services.DeleteItemInput{
		TableName:                 derefString(in.TableName),
		Key:                       toItem(in.Key),
		ConditionExpression:       derefString(in.ConditionExpression),
		ExpressionAttributeNames:  in.ExpressionAttributeNames,
		ExpressionAttributeValues: toItem(in.ExpressionAttributeValues),
		ReturnValues:              toReturnValues(in.ReturnValues),
	})
	if err != nil {
		return nil, toErrorOrNil(err)
	}
	return &dynamodb.DeleteItemOutput{
		Attributes:       fromItem(result.Attributes),
		ConsumedCapacity: consumedCapacity(in.ReturnConsumedCapacity, derefString(in.TableName), result.ConsumedCapacityUnits),
	}, nil
}

// UpdateItem applies an UpdateExpression to one item, creating it if absent.
func (f *Facade) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
	result, err := f.items.UpdateItem(ctx, services.UpdateItemInput{
		TableName:                 derefString(in.TableName),
		Key:                       toItem(in.Key),
		UpdateExpression:          derefString(in.UpdateExpression),
		ConditionExpression:       derefString(in.ConditionExpression),
		ExpressionAttributeNames:  in.ExpressionAttributeNames,
		ExpressionAttributeValues: toItem(in.ExpressionAttributeValues),
		ReturnValues:              toReturnValues(in.ReturnValues),
	})
	if err != nil {
		return nil, toErrorOrNil(err)
	}
	return &dynamodb.UpdateItemOutput{
		Attributes:       fromItem(result.Attributes),
		ConsumedCapacity: consumedCapacity(in.ReturnConsumedCapacity, derefString(in.TableName), result.ConsumedCapacityUnits),
	}, nil
}
