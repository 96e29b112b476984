package facade

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pretender-db/pretender/application/services"
)

// BatchGetItem fetches multiple items, possibly across tables, in one round trip.
func (f *Facade) BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
	req := services.BatchGetItemInput{}
	for tableName, keysAndAttrs := range in.RequestItems {
		bg := services.BatchGetRequest{TableName: tableName}
		for _, key := range keysAndAttrs.Keys {
			bg.Keys = append(bg.Keys, toItem(key))
		}
		req.Requests = append(req.Requests, bg)
	}

	result, err := f.items.BatchGetItem(ctx, req)
	if err != nil {
		return nil, toErrorOrNil(err)
	}

	out := &dynamodb.BatchGetItemOutput{Responses: make(map[string][]map[string]ddbtypes.AttributeValue)}
	for tableName, items := range result.ItemsByTable {
		for _, item := range items {
			out.Responses[tableName] = append(out.Responses[tableName], fromItem(item))
		}
	}
	return out, nil
}

// BatchWriteItem applies a batch of independent Put/Delete requests.
func (f *Facade) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
	req := services.BatchWriteItemInput{RequestsByTable: make(map[string][]services.WriteRequest)}
	for tableName, writeReqs := range in.RequestItems {
		for _, wr := range writeReqs {
			switch {
			case wr.PutRequest != nil:
				req.RequestsByTable[tableName] = append(req.RequestsByTable[tableName], services.WriteRequest{PutItem: toItem(wr.PutRequest.Item)})
			case wr.DeleteRequest != nil:
				req.RequestsByTable[tableName] = append(req.RequestsByTable[tableName], services.WriteRequest{DeleteKey: toItem(wr.DeleteRequest.Key)})
			}
		}
	}

	if _, err := f.items.BatchWriteItem(ctx, req); err != nil {
		return nil, toErrorOrNil(err)
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

// TransactGetItems reads every leg's item inside one database transaction.
func (f *Facade) TransactGetItems(ctx context.Context, in *dynamodb.TransactGetItemsInput) (*dynamodb.TransactGetItemsOutput, error) {
	req := services.TransactGetItemsInput{}
	for _, leg := range in.TransactItems {
		if leg.Get == nil {
			continue
		}
		req.Items = append(req.Items, services.TransactGetItem{
			TableName: derefString(leg.Get.TableName),
			Key:       toItem(leg.Get.Key),
		})
	}

	result, err := f.items.TransactGetItems(ctx, req)
	if err != nil {
		return nil, toErrorOrNil(err)
	}

	out := &dynamodb.TransactGetItemsOutput{}
	for _, item := range result.Items {
		out.Responses = append(out.Responses, ddbtypes.ItemResponse{Item: fromItem(item)})
	}
	return out, nil
}

// TransactWriteItems applies every leg atomically.
func (f *Facade) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
	req := services.TransactWriteItemsInput{}
	for _, leg := range in.TransactItems {
		switch {
		case leg.Put != nil:
			req.Items = append(req.Items, services.TransactWriteItem{
				Op:                        services.TransactPut,
				TableName:                 derefString(leg.Put.TableName),
				Item:                      toItem(leg.Put.Item),
				ConditionExpression:       derefString(leg.Put.ConditionExpression),
				ExpressionAttributeNames:  leg.Put.ExpressionAttributeNames,
				ExpressionAttributeValues: toItem(leg.Put.ExpressionAttributeValues),
			})
		case leg.Delete != nil:
			req.Items = append(req.Items, services.TransactWriteItem{
				Op:                        services.TransactDelete,
				TableName:                 derefString(leg.Delete.TableName),
				Key:                       toItem(leg.Delete.Key),
				ConditionExpression:       derefString(leg.Delete.ConditionExpression),
				ExpressionAttributeNames:  leg.Delete.ExpressionAttributeNames,
				ExpressionAttributeValues: toItem(leg.Delete.ExpressionAttributeValues),
			})
		case leg.Update != nil:
			req.Items = append(req.Items, services.TransactWriteItem{
				Op:                        services.TransactUpdate,
				TableName:                 derefString(leg.Update.TableName),
				Key:                       toItem(leg.Update.Key),
				UpdateExpression:          derefString(leg.Update.UpdateExpression),
				ConditionExpression:       derefString(leg.Update.ConditionExpression),
				ExpressionAttributeNames:  leg.Update.ExpressionAttributeNames,
				ExpressionAttributeValues: toItem(leg.Update.ExpressionAttributeValues),
			})
		case leg.ConditionCheck != nil:
			req.Items = append(req.Items, services.TransactWriteItem{
				Op:                        services.TransactConditionCheck,
				TableName:                 derefString(leg.ConditionCheck.TableName),
				Key:                       toItem(leg.ConditionCheck.Key),
				ConditionExpression:       derefString(leg.ConditionCheck.ConditionExpression),
				ExpressionAttributeNames:  leg.ConditionCheck.ExpressionAttributeNames,
				ExpressionAttributeValues: toItem(leg.ConditionCheck.ExpressionAttributeValues),
			})
		}
	}

	if _, err := f.items.TransactWriteItems(ctx, req); err != nil {
		return nil, toErrorOrNil(err)
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}
