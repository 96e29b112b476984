package services

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pretender-db/pretender/domain/attrvalue"
	"github.com/pretender-db/pretender/domain/capacity"
	"github.com/pretender-db/pretender/domain/expr"
	sqlstore "github.com/pretender-db/pretender/infrastructure/persistence/sql"
	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

// QueryInput is Query's request (spec §4.2, §4.8).
type QueryInput struct {
	TableName                 string
	IndexName                 string // empty queries the base table
	KeyConditionExpression    string
	FilterExpression          string
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue
	ScanIndexForward          bool
	Limit                     int // 0 means unlimited
	ExclusiveStartKey         attrvalue.Item
}

// QueryOutput is Query's response.
type QueryOutput struct {
	Items                 []attrvalue.Item
	LastEvaluatedKey       attrvalue.Item
	Count                  int
	ScannedCount           int
	ConsumedCapacityUnits  float64
}

// Query evaluates a KeyConditionExpression against the base table or one
// GSI. SQL can only order the sort key as text, which is wrong for numeric
// (N) sort keys, so the full per-hash candidate set is fetched, then
// re-sorted and filtered in Go using domain/expr's decimal-aware comparator
// (see ItemDAO.QueryByHash) before Limit/ExclusiveStartKey are applied.
func (m *ItemManager) Query(ctx context.Context, in QueryInput) (*QueryOutput, error) {
	meta, err := m.loadTable(ctx, in.TableName)
	if err != nil {
		return nil, err
	}

	kc, err := expr.ParseKeyCondition(in.KeyConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	var sortKeyName string
	var candidates []attrvalue.Item

	if in.IndexName == "" {
		if kc.HashKeyName != meta.HashKey {
			return nil, pretendererrors.NewValidationError("key condition hash attribute %q does not match table hash key %q", kc.HashKeyName, meta.HashKey)
		}
		sortKeyName = meta.SortKey

		hashVal, err := attrvalue.ExtractKeyValue(attrvalue.Item{kc.HashKeyName: kc.HashKeyValue}, kc.HashKeyName)
		if err != nil {
			return nil, err
		}

		itemDAO := sqlstore.NewItemDAO(meta.Name)
		rows, err := itemDAO.QueryByHash(ctx, m.db, hashVal)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			item, err := attrvalue.FromJSON(row.AttributesJSON)
			if err != nil {
				return nil, err
			}
			item, err = m.encryption.DecryptOnRead(meta.Name, item)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, item)
		}
	} else {
		gsi, ok := meta.GSIByName(in.IndexName)
		if !ok {
			return nil, pretendererrors.NewValidationError("table %q has no GSI %q", in.TableName, in.IndexName)
		}
		if kc.HashKeyName != gsi.HashKey {
			return nil, pretendererrors.NewValidationError("key condition hash attribute %q does not match index hash key %q", kc.HashKeyName, gsi.HashKey)
		}
		sortKeyName = gsi.SortKey

		hashVal, err := attrvalue.ExtractKeyValue(attrvalue.Item{kc.HashKeyName: kc.HashKeyValue}, kc.HashKeyName)
		if err != nil {
			return nil, err
		}

		gsiDAO := sqlstore.NewGSIDAO(meta.Name, in.IndexName)
		rows, err := gsiDAO.QueryByHash(ctx, m.db, hashVal)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			item, err := attrvalue.FromJSON(row.AttributesJSON)
			if err != nil {
				return nil, err
			}
			item, err = m.encryption.DecryptOnRead(meta.Name, item)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, item)
		}
	}

	candidates, err = filterBySortCondition(candidates, sortKeyName, kc)
	if err != nil {
		return nil, err
	}
	sortByKey(candidates, sortKeyName, in.ScanIndexForward)

	candidates, err = skipPastExclusiveStart(candidates, meta.HashKey, sortKeyName, in.ExclusiveStartKey)
	if err != nil {
		return nil, err
	}

	scannedCount := len(candidates)
	page, lastKey := paginate(candidates, meta.HashKey, sortKeyName, in.Limit)

	filtered, err := applyFilter(page, in.FilterExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	units, err := totalReadCapacity(page)
	if err != nil {
		return nil, err
	}

	return &QueryOutput{
		Items:                 filtered,
		LastEvaluatedKey:      lastKey,
		Count:                 len(filtered),
		ScannedCount:          scannedCount,
		ConsumedCapacityUnits: units,
	}, nil
}

// ScanInput is Scan's request (spec §4.8).
type ScanInput struct {
	TableName                 string
	FilterExpression          string
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue
	Limit                     int
	ExclusiveStartKey         attrvalue.Item
}

// ScanOutput is Scan's response.
type ScanOutput struct {
	Items                 []attrvalue.Item
	LastEvaluatedKey       attrvalue.Item
	Count                  int
	ScannedCount           int
	ConsumedCapacityUnits  float64
}

// Scan walks the base table in (hash, sort) keyset order.
func (m *ItemManager) Scan(ctx context.Context, in ScanInput) (*ScanOutput, error) {
	meta, err := m.loadTable(ctx, in.TableName)
	if err != nil {
		return nil, err
	}

	var startHash, startSort string
	if in.ExclusiveStartKey != nil {
		startHash, startSort, err = keysOf(*meta, in.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
	}

	limit := in.Limit
	fetchLimit := limit
	if fetchLimit > 0 {
		fetchLimit++
	} else {
		fetchLimit = 0
	}

	itemDAO := sqlstore.NewItemDAO(meta.Name)
	var rows []sqlstore.ItemRow
	if fetchLimit > 0 {
		rows, err = itemDAO.Scan(ctx, m.db, startHash, startSort, fetchLimit)
	} else {
		rows, err = itemDAO.Scan(ctx, m.db, startHash, startSort, maxScanRows)
	}
	if err != nil {
		return nil, err
	}

	var lastKey attrvalue.Item
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	items := make([]attrvalue.Item, 0, len(rows))
	for _, row := range rows {
		item, err := attrvalue.FromJSON(row.AttributesJSON)
		if err != nil {
			return nil, err
		}
		item, err = m.encryption.DecryptOnRead(meta.Name, item)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if limit > 0 && len(items) == limit {
		last := items[len(items)-1]
		lastKey = attrvalue.Item{meta.HashKey: last[meta.HashKey]}
		if meta.SortKey != "" {
			lastKey[meta.SortKey] = last[meta.SortKey]
		}
	}

	scannedCount := len(items)
	filtered, err := applyFilter(items, in.FilterExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	units, err := totalReadCapacity(items)
	if err != nil {
		return nil, err
	}

	return &ScanOutput{
		Items:                 filtered,
		LastEvaluatedKey:      lastKey,
		Count:                 len(filtered),
		ScannedCount:          scannedCount,
		ConsumedCapacityUnits: units,
	}, nil
}

// maxScanRows bounds an unlimited Scan's single fetch. A real deployment
// would cursor through the table in pages; this emulator's exercise scope
// fetches one bounded page instead of implementing a server-side cursor.
const maxScanRows = 10000

func filterBySortCondition(items []attrvalue.Item, sortKeyName string, kc *expr.KeyCondition) ([]attrvalue.Item, error) {
	if kc.SortKeyName == "" {
		return items, nil
	}
	out := make([]attrvalue.Item, 0, len(items))
	for _, item := range items {
		v, ok := item[sortKeyName]
		if !ok {
			continue
		}
		var match bool
		var err error
		switch kc.Operator {
		case expr.SortOpBetween:
			var loOK, hiOK bool
			loOK, err = expr.EvaluateComparator(expr.SortOpGE, v, kc.SortValue1)
			if err == nil {
				hiOK, err = expr.EvaluateComparator(expr.SortOpLE, v, kc.SortValue2)
			}
			match = loOK && hiOK
		case expr.SortOpBeginsWith:
			match, err = expr.BeginsWith(v, kc.SortValue1)
		default:
			match, err = expr.EvaluateComparator(kc.Operator, v, kc.SortValue1)
		}
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, item)
		}
	}
	return out, nil
}

func sortByKey(items []attrvalue.Item, sortKeyName string, forward bool) {
	if sortKeyName == "" {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		vi, iok := items[i][sortKeyName]
		vj, jok := items[j][sortKeyName]
		if !iok || !jok {
			return false
		}
		cmp, err := expr.Compare(vi, vj)
		if err != nil {
			return false
		}
		if forward {
			return cmp < 0
		}
		return cmp > 0
	})
}

func skipPastExclusiveStart(items []attrvalue.Item, hashKeyName, sortKeyName string, startKey attrvalue.Item) ([]attrvalue.Item, error) {
	if startKey == nil {
		return items, nil
	}
	startHash, startHashOK := startKey[hashKeyName]
	if !startHashOK {
		return items, nil
	}
	var startSort types.AttributeValue
	if sortKeyName != "" {
		startSort = startKey[sortKeyName]
	}

	for i, item := range items {
		hv, ok := item[hashKeyName]
		if !ok {
			continue
		}
		cmp, err := expr.Compare(hv, startHash)
		if err != nil {
			return nil, err
		}
		if cmp != 0 {
			continue
		}
		if startSort == nil {
			return items[i+1:], nil
		}
		sv, ok := item[sortKeyName]
		if !ok {
			continue
		}
		scmp, err := expr.Compare(sv, startSort)
		if err != nil {
			return nil, err
		}
		if scmp == 0 {
			return items[i+1:], nil
		}
	}
	return items, nil
}

func paginate(items []attrvalue.Item, hashKeyName, sortKeyName string, limit int) ([]attrvalue.Item, attrvalue.Item) {
	if limit <= 0 || len(items) <= limit {
		return items, nil
	}
	page := items[:limit]
	last := page[len(page)-1]
	lastKey := attrvalue.Item{hashKeyName: last[hashKeyName]}
	if sortKeyName != "" {
		lastKey[sortKeyName] = last[sortKeyName]
	}
	return page, lastKey
}

func applyFilter(items []attrvalue.Item, filterExpr string, names map[string]string, values map[string]types.AttributeValue) ([]attrvalue.Item, error) {
	if filterExpr == "" {
		return items, nil
	}
	cond, err := expr.ParseCondition(filterExpr, names, values)
	if err != nil {
		return nil, err
	}
	out := make([]attrvalue.Item, 0, len(items))
	for _, item := range items {
		ok, err := cond.Evaluate(item)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func totalReadCapacity(items []attrvalue.Item) (float64, error) {
	var total float64
	for _, item := range items {
		units, err := capacity.Read(item)
		if err != nil {
			return 0, err
		}
		total += units
	}
	return total, nil
}
