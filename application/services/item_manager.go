package services

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/pretender-db/pretender/domain/attrvalue"
	"github.com/pretender-db/pretender/domain/capacity"
	"github.com/pretender-db/pretender/domain/expr"
	"github.com/pretender-db/pretender/domain/stream"
	"github.com/pretender-db/pretender/domain/table"
	sqlstore "github.com/pretender-db/pretender/infrastructure/persistence/sql"
	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
	"github.com/pretender-db/pretender/pkg/utils"
)

// ReturnValues mirrors DynamoDB's ReturnValues enum (spec §4.8).
type ReturnValues string

const (
	ReturnNone        ReturnValues = "NONE"
	ReturnAllOld      ReturnValues = "ALL_OLD"
	ReturnUpdatedOld  ReturnValues = "UPDATED_OLD"
	ReturnAllNew      ReturnValues = "ALL_NEW"
	ReturnUpdatedNew  ReturnValues = "UPDATED_NEW"
)

// ItemManager implements PutItem/GetItem/UpdateItem/DeleteItem (spec §4.8),
// each running inside one transaction spanning the item row, every GSI
// mirror, and (if enabled) a stream record.
type ItemManager struct {
	db            *sqlx.DB
	metadataDAO   *sqlstore.MetadataDAO
	encryption    *EncryptionHelper
	streamCapture *StreamCapture
	logger        *zap.Logger
}

// NewItemManager constructs an ItemManager.
func NewItemManager(db *sqlx.DB, encryption *EncryptionHelper, streamCapture *StreamCapture, logger *zap.Logger) *ItemManager {
	return &ItemManager{
		db:            db,
		metadataDAO:   sqlstore.NewMetadataDAO(),
		encryption:    encryption,
		streamCapture: streamCapture,
		logger:        logger,
	}
}

func (m *ItemManager) loadTable(ctx context.Context, name string) (*table.Metadata, error) {
	return m.metadataDAO.Get(ctx, m.db, name)
}

// keysOf extracts the lexical (hash, sort) key values from item.
func keysOf(meta table.Metadata, item attrvalue.Item) (hashVal, sortVal string, err error) {
	hashVal, err = attrvalue.ExtractKeyValue(item, meta.HashKey)
	if err != nil {
		return "", "", err
	}
	if meta.SortKey != "" {
		sortVal, err = attrvalue.ExtractKeyValue(item, meta.SortKey)
		if err != nil {
			return "", "", err
		}
	}
	return hashVal, sortVal, nil
}

// syncGSIMirrors updates every GSI's mirror row for the base item identified
// by (baseHash, baseSort). An item that lacks a GSI's indexed hash attribute
// does not appear in that index (spec §3), so its mirror row is removed.
func (m *ItemManager) syncGSIMirrors(ctx context.Context, tx *sqlx.Tx, meta table.Metadata, baseHash, baseSort string, item attrvalue.Item) error {
	now := time.Now().UTC()
	for _, gsi := range meta.GSIs {
		gsiDAO := sqlstore.NewGSIDAO(meta.Name, gsi.IndexName)

		gsiHashVal, hasHash, err := extractOptionalKey(item, gsi.HashKey)
		if err != nil {
			return err
		}
		if !hasHash {
			if err := gsiDAO.Delete(ctx, tx, baseHash, baseSort); err != nil {
				return err
			}
			continue
		}

		var gsiSortVal string
		if gsi.SortKey != "" {
			gsiSortVal, _, err = extractOptionalKey(item, gsi.SortKey)
			if err != nil {
				return err
			}
		}

		projected := buildProjection(meta, gsi, item)
		attributesJSON, err := attrvalue.ToJSON(projected)
		if err != nil {
			return err
		}
		if err := gsiDAO.Put(ctx, tx, gsiHashVal, gsiSortVal, baseHash, baseSort, attributesJSON, now); err != nil {
			return err
		}
	}
	return nil
}

// projectAttributes returns the subset of item named by attrNames, used to
// scope UPDATED_OLD/UPDATED_NEW to only the attributes an UpdateExpression
// actually touched (spec §4.8). A nil item or empty attrNames yields nil.
func projectAttributes(item attrvalue.Item, attrNames []string) attrvalue.Item {
	if item == nil || len(attrNames) == 0 {
		return nil
	}
	out := attrvalue.Item{}
	for _, name := range attrNames {
		if v, ok := item[name]; ok {
			out[name] = v
		}
	}
	return out
}

func extractOptionalKey(item attrvalue.Item, name string) (string, bool, error) {
	if name == "" {
		return "", false, nil
	}
	if _, present := item[name]; !present {
		return "", false, nil
	}
	v, err := attrvalue.ExtractKeyValue(item, name)
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func evaluateConditionAgainst(exprStr string, names map[string]string, values map[string]types.AttributeValue, item attrvalue.Item) error {
	if exprStr == "" {
		return nil
	}
	cond, err := expr.ParseCondition(exprStr, names, values)
	if err != nil {
		return err
	}
	evalItem := item
	if evalItem == nil {
		evalItem = attrvalue.Item{}
	}
	ok, err := cond.Evaluate(evalItem)
	if err != nil {
		return err
	}
	if !ok {
		return pretendererrors.NewConditionalCheckFailedError()
	}
	return nil
}

func (m *ItemManager) fetchDecrypted(ctx context.Context, ext sqlx.ExtContext, meta table.Metadata, hashVal, sortVal string) (attrvalue.Item, error) {
	itemDAO := sqlstore.NewItemDAO(meta.Name)
	row, err := itemDAO.Get(ctx, ext, hashVal, sortVal)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	item, err := attrvalue.FromJSON(row.AttributesJSON)
	if err != nil {
		return nil, err
	}
	return m.encryption.DecryptOnRead(meta.Name, item)
}

// PutItemInput is PutItem's request (spec §4.8).
type PutItemInput struct {
	TableName                 string `validate:"required,min=3,max=255"`
	Item                      attrvalue.Item `validate:"required"`
	ConditionExpression       string
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue
	ReturnValues              ReturnValues
}

// PutItemOutput is PutItem's response.
type PutItemOutput struct {
	Attributes            attrvalue.Item
	ConsumedCapacityUnits  float64
}

// PutItem overwrites (or creates) the item identified by Item's key
// attributes, honoring ConditionExpression and emitting a stream record.
func (m *ItemManager) PutItem(ctx context.Context, in PutItemInput) (*PutItemOutput, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, pretendererrors.NewValidationError("%s", err)
	}

	meta, err := m.loadTable(ctx, in.TableName)
	if err != nil {
		return nil, err
	}

	hashVal, sortVal, err := keysOf(*meta, in.Item)
	if err != nil {
		return nil, err
	}

	sizeBytes, err := attrvalue.Size(in.Item)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateItemSize(sizeBytes); err != nil {
		return nil, err
	}

	out := &PutItemOutput{}
	err = sqlstore.WithTx(ctx, m.db, func(tx *sqlx.Tx) error {
		existingItem, err := m.fetchDecrypted(ctx, tx, *meta, hashVal, sortVal)
		if err != nil {
			return err
		}

		if err := evaluateConditionAgainst(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, existingItem); err != nil {
			return err
		}

		encrypted, err := m.encryption.EncryptOnWrite(in.TableName, in.Item, *meta)
		if err != nil {
			return err
		}
		attributesJSON, err := attrvalue.ToJSON(encrypted)
		if err != nil {
			return err
		}

		itemDAO := sqlstore.NewItemDAO(meta.Name)
		if err := itemDAO.Put(ctx, tx, hashVal, sortVal, attributesJSON, time.Now().UTC()); err != nil {
			return err
		}
		if err := m.syncGSIMirrors(ctx, tx, *meta, hashVal, sortVal, encrypted); err != nil {
			return err
		}

		eventType := stream.EventInsert
		if existingItem != nil {
			eventType = stream.EventModify
		}
		if err := m.streamCapture.Capture(ctx, tx, *meta, eventType, hashVal, sortVal, existingItem, in.Item); err != nil {
			return err
		}

		if in.ReturnValues == ReturnAllOld {
			out.Attributes = existingItem
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	units, err := capacity.Write(in.Item)
	if err != nil {
		return nil, err
	}
	out.ConsumedCapacityUnits = units
	return out, nil
}

// GetItemInput is GetItem's request. ConsistentRead is accepted but has no
// effect: a single relational backend has no replica-lag window to model.
type GetItemInput struct {
	TableName      string `validate:"required,min=3,max=255"`
	Key            attrvalue.Item `validate:"required"`
	ConsistentRead bool
}

// GetItemOutput is GetItem's response. Item is nil if no row matched.
type GetItemOutput struct {
	Item                  attrvalue.Item
	ConsumedCapacityUnits float64
}

// GetItem fetches one item by its key.
func (m *ItemManager) GetItem(ctx context.Context, in GetItemInput) (*GetItemOutput, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, pretendererrors.NewValidationError("%s", err)
	}

	meta, err := m.loadTable(ctx, in.TableName)
	if err != nil {
		return nil, err
	}

	hashVal, sortVal, err := keysOf(*meta, in.Key)
	if err != nil {
		return nil, err
	}

	item, err := m.fetchDecrypted(ctx, m.db, *meta, hashVal, sortVal)
	if err != nil {
		return nil, err
	}

	units, err := capacity.Read(item)
	if err != nil {
		return nil, err
	}
	return &GetItemOutput{Item: item, ConsumedCapacityUnits: units}, nil
}

// DeleteItemInput is DeleteItem's request.
type DeleteItemInput struct {
	TableName                 string `validate:"required,min=3,max=255"`
	Key                       attrvalue.Item `validate:"required"`
	ConditionExpression       string
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue
	ReturnValues              ReturnValues
}

// DeleteItemOutput is DeleteItem's response.
type DeleteItemOutput struct {
	Attributes            attrvalue.Item
	ConsumedCapacityUnits  float64
}

// DeleteItem removes one item by key, honoring ConditionExpression and
// emitting a REMOVE stream record when the item existed.
func (m *ItemManager) DeleteItem(ctx context.Context, in DeleteItemInput) (*DeleteItemOutput, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, pretendererrors.NewValidationError("%s", err)
	}

	meta, err := m.loadTable(ctx, in.TableName)
	if err != nil {
		return nil, err
	}

	hashVal, sortVal, err := keysOf(*meta, in.Key)
	if err != nil {
		return nil, err
	}

	out := &DeleteItemOutput{}
	err = sqlstore.WithTx(ctx, m.db, func(tx *sqlx.Tx) error {
		existingItem, err := m.fetchDecrypted(ctx, tx, *meta, hashVal, sortVal)
		if err != nil {
			return err
		}
		if existingItem == nil {
			return evaluateConditionAgainst(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, nil)
		}

		if err := evaluateConditionAgainst(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, existingItem); err != nil {
			return err
		}

		itemDAO := sqlstore.NewItemDAO(meta.Name)
		if _, err := itemDAO.Delete(ctx, tx, hashVal, sortVal); err != nil {
			return err
		}
		for _, gsi := range meta.GSIs {
			if err := sqlstore.NewGSIDAO(meta.Name, gsi.IndexName).Delete(ctx, tx, hashVal, sortVal); err != nil {
				return err
			}
		}
		if err := m.streamCapture.Capture(ctx, tx, *meta, stream.EventRemove, hashVal, sortVal, existingItem, nil); err != nil {
			return err
		}

		if in.ReturnValues == ReturnAllOld {
			out.Attributes = existingItem
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	units, err := capacity.Write(out.Attributes)
	if err != nil {
		return nil, err
	}
	out.ConsumedCapacityUnits = units
	return out, nil
}

// UpdateItemInput is UpdateItem's request.
type UpdateItemInput struct {
	TableName                 string `validate:"required,min=3,max=255"`
	Key                       attrvalue.Item `validate:"required"`
	UpdateExpression          string `validate:"required"`
	ConditionExpression       string
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue
	ReturnValues              ReturnValues
}

// UpdateItemOutput is UpdateItem's response.
type UpdateItemOutput struct {
	Attributes            attrvalue.Item
	ConsumedCapacityUnits  float64
}

// UpdateItem applies an UpdateExpression to the item identified by Key,
// creating it if absent, honoring ConditionExpression and emitting a stream
// record.
func (m *ItemManager) UpdateItem(ctx context.Context, in UpdateItemInput) (*UpdateItemOutput, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, pretendererrors.NewValidationError("%s", err)
	}

	meta, err := m.loadTable(ctx, in.TableName)
	if err != nil {
		return nil, err
	}

	hashVal, sortVal, err := keysOf(*meta, in.Key)
	if err != nil {
		return nil, err
	}

	ue, err := expr.ParseUpdateExpression(in.UpdateExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	out := &UpdateItemOutput{}
	var newItem attrvalue.Item
	err = sqlstore.WithTx(ctx, m.db, func(tx *sqlx.Tx) error {
		existingItem, err := m.fetchDecrypted(ctx, tx, *meta, hashVal, sortVal)
		if err != nil {
			return err
		}

		if err := evaluateConditionAgainst(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, existingItem); err != nil {
			return err
		}

		base := existingItem
		if base == nil {
			base = attrvalue.Item{}
			for k, v := range in.Key {
				base[k] = v
			}
		}

		newItem, err = ue.Apply(base)
		if err != nil {
			return err
		}
		for k, v := range in.Key {
			newItem[k] = v
		}

		sizeBytes, err := attrvalue.Size(newItem)
		if err != nil {
			return err
		}
		if err := utils.ValidateItemSize(sizeBytes); err != nil {
			return err
		}

		encrypted, err := m.encryption.EncryptOnWrite(in.TableName, newItem, *meta)
		if err != nil {
			return err
		}
		attributesJSON, err := attrvalue.ToJSON(encrypted)
		if err != nil {
			return err
		}

		itemDAO := sqlstore.NewItemDAO(meta.Name)
		if err := itemDAO.Put(ctx, tx, hashVal, sortVal, attributesJSON, time.Now().UTC()); err != nil {
			return err
		}
		if err := m.syncGSIMirrors(ctx, tx, *meta, hashVal, sortVal, encrypted); err != nil {
			return err
		}

		eventType := stream.EventInsert
		if existingItem != nil {
			eventType = stream.EventModify
		}
		if err := m.streamCapture.Capture(ctx, tx, *meta, eventType, hashVal, sortVal, existingItem, newItem); err != nil {
			return err
		}

		switch in.ReturnValues {
		case ReturnAllOld:
			out.Attributes = existingItem
		case ReturnAllNew:
			out.Attributes = newItem
		case ReturnUpdatedOld:
			out.Attributes = projectAttributes(existingItem, ue.AffectedAttributeNames())
		case ReturnUpdatedNew:
			out.Attributes = projectAttributes(newItem, ue.AffectedAttributeNames())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	units, err := capacity.Write(newItem)
	if err != nil {
		return nil, err
	}
	out.ConsumedCapacityUnits = units
	return out, nil
}
