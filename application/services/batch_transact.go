package services

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jmoiron/sqlx"

	"github.com/pretender-db/pretender/domain/attrvalue"
	"github.com/pretender-db/pretender/domain/capacity"
	"github.com/pretender-db/pretender/domain/expr"
	"github.com/pretender-db/pretender/domain/stream"
	sqlstore "github.com/pretender-db/pretender/infrastructure/persistence/sql"
	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
	"github.com/pretender-db/pretender/pkg/utils"
)

// BatchGetRequest is one table's keys within a BatchGetItem call.
type BatchGetRequest struct {
	TableName string
	Keys      []attrvalue.Item
}

// BatchGetItemInput is BatchGetItem's request (spec §4.8). Unlike real
// DynamoDB, every key is always fully processed in one pass — there is no
// UnprocessedKeys concept to model against a single relational backend.
type BatchGetItemInput struct {
	Requests []BatchGetRequest
}

// BatchGetItemOutput is BatchGetItem's response.
type BatchGetItemOutput struct {
	ItemsByTable          map[string][]attrvalue.Item
	ConsumedCapacityUnits float64
}

// BatchGetItem fetches multiple items, across one or more tables.
func (m *ItemManager) BatchGetItem(ctx context.Context, in BatchGetItemInput) (*BatchGetItemOutput, error) {
	out := &BatchGetItemOutput{ItemsByTable: make(map[string][]attrvalue.Item)}
	for _, req := range in.Requests {
		meta, err := m.loadTable(ctx, req.TableName)
		if err != nil {
			return nil, err
		}
		for _, key := range req.Keys {
			hashVal, sortVal, err := keysOf(*meta, key)
			if err != nil {
				return nil, err
			}
			item, err := m.fetchDecrypted(ctx, m.db, *meta, hashVal, sortVal)
			if err != nil {
				return nil, err
			}
			if item == nil {
				continue
			}
			out.ItemsByTable[req.TableName] = append(out.ItemsByTable[req.TableName], item)
			units, err := capacity.Read(item)
			if err != nil {
				return nil, err
			}
			out.ConsumedCapacityUnits += units
		}
	}
	return out, nil
}

// WriteRequest is one item's Put or Delete within a BatchWriteItem call.
// Exactly one of PutItem/DeleteKey is set.
type WriteRequest struct {
	PutItem   attrvalue.Item
	DeleteKey attrvalue.Item
}

// BatchWriteItemInput is BatchWriteItem's request. Like real DynamoDB,
// each request is applied independently (no ConditionExpression, no
// cross-item atomicity) — TransactWriteItems is the atomic alternative.
type BatchWriteItemInput struct {
	RequestsByTable map[string][]WriteRequest
}

// BatchWriteItemOutput is BatchWriteItem's response.
type BatchWriteItemOutput struct {
	ConsumedCapacityUnits float64
}

// BatchWriteItem applies a batch of independent Put/Delete requests.
func (m *ItemManager) BatchWriteItem(ctx context.Context, in BatchWriteItemInput) (*BatchWriteItemOutput, error) {
	out := &BatchWriteItemOutput{}
	for tableName, reqs := range in.RequestsByTable {
		for _, req := range reqs {
			switch {
			case req.PutItem != nil:
				r, err := m.PutItem(ctx, PutItemInput{TableName: tableName, Item: req.PutItem})
				if err != nil {
					return nil, err
				}
				out.ConsumedCapacityUnits += r.ConsumedCapacityUnits
			case req.DeleteKey != nil:
				r, err := m.DeleteItem(ctx, DeleteItemInput{TableName: tableName, Key: req.DeleteKey})
				if err != nil {
					return nil, err
				}
				out.ConsumedCapacityUnits += r.ConsumedCapacityUnits
			}
		}
	}
	return out, nil
}

// TransactGetItem is one leg of a TransactGetItems call.
type TransactGetItem struct {
	TableName string
	Key       attrvalue.Item
}

// TransactGetItemsInput is TransactGetItems' request.
type TransactGetItemsInput struct {
	Items []TransactGetItem
}

// TransactGetItemsOutput is TransactGetItems' response. Items is positional,
// one entry per input leg; a leg with no matching row yields a nil entry.
type TransactGetItemsOutput struct {
	Items                 []attrvalue.Item
	ConsumedCapacityUnits float64
}

// TransactGetItems fetches every leg's item, possibly across tables, inside
// one database transaction. The number of legs is not limited here.
func (m *ItemManager) TransactGetItems(ctx context.Context, in TransactGetItemsInput) (*TransactGetItemsOutput, error) {
	out := &TransactGetItemsOutput{Items: make([]attrvalue.Item, len(in.Items))}
	err := sqlstore.WithTx(ctx, m.db, func(tx *sqlx.Tx) error {
		for i, leg := range in.Items {
			meta, err := m.loadTable(ctx, leg.TableName)
			if err != nil {
				return err
			}
			hashVal, sortVal, err := keysOf(*meta, leg.Key)
			if err != nil {
				return err
			}
			item, err := m.fetchDecrypted(ctx, tx, *meta, hashVal, sortVal)
			if err != nil {
				return err
			}
			out.Items[i] = item
			units, err := capacity.Read(item)
			if err != nil {
				return err
			}
			out.ConsumedCapacityUnits += units
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TransactWriteOp selects one leg's operation within TransactWriteItems.
type TransactWriteOp int

const (
	TransactPut TransactWriteOp = iota
	TransactDelete
	TransactUpdate
	TransactConditionCheck
)

// TransactWriteItem is one leg of a TransactWriteItems call.
type TransactWriteItem struct {
	Op                        TransactWriteOp
	TableName                 string
	Item                      attrvalue.Item // TransactPut
	Key                       attrvalue.Item // TransactDelete/TransactUpdate/TransactConditionCheck
	UpdateExpression          string         // TransactUpdate
	ConditionExpression       string
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue
}

// TransactWriteItemsInput is TransactWriteItems' request.
type TransactWriteItemsInput struct {
	Items []TransactWriteItem
}

// TransactWriteItemsOutput is TransactWriteItems' response.
type TransactWriteItemsOutput struct {
	ConsumedCapacityUnits float64
}

// TransactWriteItems applies every leg inside one transaction: if any leg's
// ConditionExpression (or ConditionCheck) fails, every leg is rolled back
// and TransactionCanceledException reports "ConditionalCheckFailed" at that
// leg's position and "None" elsewhere (spec §9).
func (m *ItemManager) TransactWriteItems(ctx context.Context, in TransactWriteItemsInput) (*TransactWriteItemsOutput, error) {
	reasons := pretendererrors.NewTransactionReasons(len(in.Items))
	out := &TransactWriteItemsOutput{}

	err := sqlstore.WithTx(ctx, m.db, func(tx *sqlx.Tx) error {
		for i, leg := range in.Items {
			var units float64
			var legErr error

			switch leg.Op {
			case TransactPut:
				units, legErr = m.transactPut(ctx, tx, leg)
			case TransactDelete:
				units, legErr = m.transactDelete(ctx, tx, leg)
			case TransactUpdate:
				units, legErr = m.transactUpdate(ctx, tx, leg)
			case TransactConditionCheck:
				legErr = m.transactConditionCheck(ctx, tx, leg)
			}

			if legErr != nil {
				if pretendererrors.Is(legErr, pretendererrors.CodeConditionalCheckFailed) {
					reasons.Fail(i, pretendererrors.ReasonConditionalCheckFailed)
					continue
				}
				return legErr
			}
			out.ConsumedCapacityUnits += units
		}

		return reasons.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *ItemManager) transactPut(ctx context.Context, tx *sqlx.Tx, leg TransactWriteItem) (float64, error) {
	meta, err := m.metadataDAO.Get(ctx, tx, leg.TableName)
	if err != nil {
		return 0, err
	}
	hashVal, sortVal, err := keysOf(*meta, leg.Item)
	if err != nil {
		return 0, err
	}

	sizeBytes, err := attrvalue.Size(leg.Item)
	if err != nil {
		return 0, err
	}
	if err := utils.ValidateItemSize(sizeBytes); err != nil {
		return 0, err
	}

	existingItem, err := m.fetchDecrypted(ctx, tx, *meta, hashVal, sortVal)
	if err != nil {
		return 0, err
	}
	if err := evaluateConditionAgainst(leg.ConditionExpression, leg.ExpressionAttributeNames, leg.ExpressionAttributeValues, existingItem); err != nil {
		return 0, err
	}

	encrypted, err := m.encryption.EncryptOnWrite(leg.TableName, leg.Item, *meta)
	if err != nil {
		return 0, err
	}
	attributesJSON, err := attrvalue.ToJSON(encrypted)
	if err != nil {
		return 0, err
	}

	itemDAO := sqlstore.NewItemDAO(meta.Name)
	if err := itemDAO.Put(ctx, tx, hashVal, sortVal, attributesJSON, time.Now().UTC()); err != nil {
		return 0, err
	}
	if err := m.syncGSIMirrors(ctx, tx, *meta, hashVal, sortVal, encrypted); err != nil {
		return 0, err
	}

	eventType := stream.EventInsert
	if existingItem != nil {
		eventType = stream.EventModify
	}
	if err := m.streamCapture.Capture(ctx, tx, *meta, eventType, hashVal, sortVal, existingItem, leg.Item); err != nil {
		return 0, err
	}

	return capacity.Write(leg.Item)
}

func (m *ItemManager) transactDelete(ctx context.Context, tx *sqlx.Tx, leg TransactWriteItem) (float64, error) {
	meta, err := m.metadataDAO.Get(ctx, tx, leg.TableName)
	if err != nil {
		return 0, err
	}
	hashVal, sortVal, err := keysOf(*meta, leg.Key)
	if err != nil {
		return 0, err
	}

	existingItem, err := m.fetchDecrypted(ctx, tx, *meta, hashVal, sortVal)
	if err != nil {
		return 0, err
	}
	if err := evaluateConditionAgainst(leg.ConditionExpression, leg.ExpressionAttributeNames, leg.ExpressionAttributeValues, existingItem); err != nil {
		return 0, err
	}
	if existingItem == nil {
		return 0, nil
	}

	itemDAO := sqlstore.NewItemDAO(meta.Name)
	if _, err := itemDAO.Delete(ctx, tx, hashVal, sortVal); err != nil {
		return 0, err
	}
	for _, gsi := range meta.GSIs {
		if err := sqlstore.NewGSIDAO(meta.Name, gsi.IndexName).Delete(ctx, tx, hashVal, sortVal); err != nil {
			return 0, err
		}
	}
	if err := m.streamCapture.Capture(ctx, tx, *meta, stream.EventRemove, hashVal, sortVal, existingItem, nil); err != nil {
		return 0, err
	}

	return capacity.Write(existingItem)
}

func (m *ItemManager) transactUpdate(ctx context.Context, tx *sqlx.Tx, leg TransactWriteItem) (float64, error) {
	meta, err := m.metadataDAO.Get(ctx, tx, leg.TableName)
	if err != nil {
		return 0, err
	}
	hashVal, sortVal, err := keysOf(*meta, leg.Key)
	if err != nil {
		return 0, err
	}

	ue, err := expr.ParseUpdateExpression(leg.UpdateExpression, leg.ExpressionAttributeNames, leg.ExpressionAttributeValues)
	if err != nil {
		return 0, err
	}

	existingItem, err := m.fetchDecrypted(ctx, tx, *meta, hashVal, sortVal)
	if err != nil {
		return 0, err
	}
	if err := evaluateConditionAgainst(leg.ConditionExpression, leg.ExpressionAttributeNames, leg.ExpressionAttributeValues, existingItem); err != nil {
		return 0, err
	}

	base := existingItem
	if base == nil {
		base = attrvalue.Item{}
		for k, v := range leg.Key {
			base[k] = v
		}
	}
	newItem, err := ue.Apply(base)
	if err != nil {
		return 0, err
	}
	for k, v := range leg.Key {
		newItem[k] = v
	}

	sizeBytes, err := attrvalue.Size(newItem)
	if err != nil {
		return 0, err
	}
	if err := utils.ValidateItemSize(sizeBytes); err != nil {
		return 0, err
	}

	encrypted, err := m.encryption.EncryptOnWrite(leg.TableName, newItem, *meta)
	if err != nil {
		return 0, err
	}
	attributesJSON, err := attrvalue.ToJSON(encrypted)
	if err != nil {
		return 0, err
	}

	itemDAO := sqlstore.NewItemDAO(meta.Name)
	if err := itemDAO.Put(ctx, tx, hashVal, sortVal, attributesJSON, time.Now().UTC()); err != nil {
		return 0, err
	}
	if err := m.syncGSIMirrors(ctx, tx, *meta, hashVal, sortVal, encrypted); err != nil {
		return 0, err
	}

	eventType := stream.EventInsert
	if existingItem != nil {
		eventType = stream.EventModify
	}
	if err := m.streamCapture.Capture(ctx, tx, *meta, eventType, hashVal, sortVal, existingItem, newItem); err != nil {
		return 0, err
	}

	return capacity.Write(newItem)
}

func (m *ItemManager) transactConditionCheck(ctx context.Context, tx *sqlx.Tx, leg TransactWriteItem) error {
	meta, err := m.metadataDAO.Get(ctx, tx, leg.TableName)
	if err != nil {
		return err
	}
	hashVal, sortVal, err := keysOf(*meta, leg.Key)
	if err != nil {
		return err
	}
	existingItem, err := m.fetchDecrypted(ctx, tx, *meta, hashVal, sortVal)
	if err != nil {
		return err
	}
	return evaluateConditionAgainst(leg.ConditionExpression, leg.ExpressionAttributeNames, leg.ExpressionAttributeValues, existingItem)
}
