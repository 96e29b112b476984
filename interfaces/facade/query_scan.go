package facade

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/pretender-db/pretender/application/services"
	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

// Query evaluates a KeyConditionExpression against the base table or a GSI.
func (f *Facade) Query(ctx context.Context, in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
	limit, err := resolveLimit(in.Limit)
	if err != nil {
		return nil, toErrorOrNil(err)
	}

	result, err := f.items.Query(ctx, services.QueryInput{
		TableName:                 derefString(in.TableName),
		IndexName:                 derefString(in.IndexName),
		KeyConditionExpression:    derefString(in.KeyConditionExpression),
		FilterExpression:          derefString(in.FilterExpression),
		ExpressionAttributeNames:  in.ExpressionAttributeNames,
		ExpressionAttributeValues: toItem(in.ExpressionAttributeValues),
		ScanIndexForward:          in.ScanIndexForward == nil || *in.ScanIndexForward,
		Limit:                     limit,
		ExclusiveStartKey:         toItem(in.ExclusiveStartKey),
	})
	if err != nil {
		return nil, toErrorOrNil(err)
	}

	out := &dynamodb.QueryOutput{
		Count:                  int32(result.Count),
		ScannedCount:           int32(result.ScannedCount),
		LastEvaluatedKey:       fromItem(result.LastEvaluatedKey),
		ConsumedCapacity:       consumedCapacity(in.ReturnConsumedCapacity, derefString(in.TableName), result.ConsumedCapacityUnits),
	}
	for _, item := range result.Items {
		out.Items = append(out.Items, fromItem(item))
	}
	return out, nil
}

// Scan walks an entire table in keyset order.
func (f *Facade) Scan(ctx context.Context, in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
	limit, err := resolveLimit(in.Limit)
	if err != nil {
		return nil, toErrorOrNil(err)
	}

	result, err := f.items.Scan(ctx, services.ScanInput{
		TableName:                 derefString(in.TableName),
		FilterExpression:          derefString(in.FilterExpression),
		ExpressionAttributeNames:  in.ExpressionAttributeNames,
		ExpressionAttributeValues: toItem(in.ExpressionAttributeValues),
		Limit:                     limit,
		ExclusiveStartKey:         toItem(in.ExclusiveStartKey),
	})
	if err != nil {
		return nil, toErrorOrNil(err)
	}

	out := &dynamodb.ScanOutput{
		Count:            int32(result.Count),
		ScannedCount:     int32(result.ScannedCount),
		LastEvaluatedKey: fromItem(result.LastEvaluatedKey),
		ConsumedCapacity: consumedCapacity(in.ReturnConsumedCapacity, derefString(in.TableName), result.ConsumedCapacityUnits),
	}
	for _, item := range result.Items {
		out.Items = append(out.Items, fromItem(item))
	}
	return out, nil
}

// resolveLimit distinguishes an omitted Limit (nil, meaning unlimited) from
// an explicit Limit=0, which DynamoDB rejects outright (spec §8 Boundary
// Behavior).
func resolveLimit(p *int32) (int, error) {
	if p == nil {
		return 0, nil
	}
	if *p == 0 {
		return 0, pretendererrors.NewValidationError("Limit must be greater than 0")
	}
	return int(*p), nil
}
