// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"storj.io/pretender/itembase/expr"
)

// matchedItem pairs a decoded item with the physical key of the row it was
// read from, which pagination tokens are derived from.
type matchedItem struct {
	item map[string]*dynamodb.AttributeValue
	key  rowKey
}

// Query returns items of one partition in sort-key order. With IndexName it
// reads from a global secondary index; the sort condition is then evaluated
// against the decoded items because the physical sort value of an index row
// is a composite.
func (db *DB) Query(ctx context.Context, req *dynamodb.QueryInput) (_ *dynamodb.QueryOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	meta, err := db.GetTableMetadata(ctx, aws.StringValue(req.TableName))
	if err != nil {
		return nil, err
	}

	keyExpr := aws.StringValue(req.KeyConditionExpression)
	if keyExpr == "" {
		return nil, ErrInvalidExpression.New("key condition expression is required")
	}

	limit := int(aws.Int64Value(req.Limit))
	forward := req.ScanIndexForward == nil || *req.ScanIndexForward

	var matched []matchedItem
	indexName := aws.StringValue(req.IndexName)
	if indexName == "" {
		matched, err = db.queryTable(ctx, meta, keyExpr, req, forward, limit)
	} else {
		matched, err = db.queryIndex(ctx, meta, indexName, keyExpr, req, forward, limit)
	}
	if err != nil {
		return nil, err
	}

	out := &dynamodb.QueryOutput{}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
		last := matched[len(matched)-1].item
		lek := keyAttributesOf(meta, last)
		if indexName != "" {
			gsi, _ := meta.Index(indexName)
			lek[gsi.HashKey] = last[gsi.HashKey]
			if gsi.SortKey != "" {
				lek[gsi.SortKey] = last[gsi.SortKey]
			}
		}
		out.LastEvaluatedKey = lek
	}

	out.ScannedCount = aws.Int64(int64(len(matched)))
	countOnly := aws.StringValue(req.Select) == dynamodb.SelectCount

	for _, m := range matched {
		ok, err := applyFilter(aws.StringValue(req.FilterExpression),
			req.ExpressionAttributeNames, req.ExpressionAttributeValues, m.item)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if countOnly {
			out.Count = aws.Int64(aws.Int64Value(out.Count) + 1)
			continue
		}
		item, err := project(aws.StringValue(req.ProjectionExpression), req.ExpressionAttributeNames, m.item)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, item)
	}
	if !countOnly {
		out.Count = aws.Int64(int64(len(out.Items)))
	}
	return out, nil
}

// queryTable runs a key condition against the base relation, compiled to
// SQL over the sort column. Fetches one item past the limit so the caller
// can tell whether more matches remain.
func (db *DB) queryTable(ctx context.Context, meta TableMetadata, keyExpr string, req *dynamodb.QueryInput, forward bool, limit int) (_ []matchedItem, err error) {
	defer mon.Task()(&ctx)(&err)

	kc, err := expr.ParseKeyCondition(keyExpr, meta.HashKey, meta.SortKey,
		req.ExpressionAttributeNames, req.ExpressionAttributeValues)
	if err != nil {
		return nil, ErrInvalidExpression.Wrap(err)
	}

	var start *rowKey
	if req.ExclusiveStartKey != nil {
		startKey, err := primaryKeyOf(meta, req.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		start = &startKey
	}

	relation := itemRelationName(meta.Name)
	want := 0
	if limit > 0 {
		want = limit + 1
	}

	var matched []matchedItem
	for {
		fetch := want - len(matched)
		if want == 0 {
			fetch = sweepScanPageSize
		}
		rows, err := db.queryRows(ctx, db.db, relation, kc.HashValue, kc.SortSQL, kc.SortBinds, start, forward, fetch)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			item, err := decodeItem(row.AttributesJSON)
			if err != nil {
				return nil, err
			}
			key := rowKey{Hash: row.HashKeyValue, Sort: row.SortKeyValue.String}
			if itemExpired(meta, item, db.nowFn()) {
				if err := db.purgeExpired(ctx, meta, item, key); err != nil {
					return nil, err
				}
				continue
			}
			matched = append(matched, matchedItem{item: item, key: key})
		}
		if len(rows) < fetch || (want > 0 && len(matched) >= want) {
			return matched, nil
		}
		lastRow := rows[len(rows)-1]
		start = &rowKey{Hash: lastRow.HashKeyValue, Sort: lastRow.SortKeyValue.String}
	}
}

// queryIndex runs a key condition against an index relation. The hash bind
// selects the physical partition and the whole key condition is then
// re-evaluated per item, since comparators cannot be pushed down onto the
// composite sort value.
func (db *DB) queryIndex(ctx context.Context, meta TableMetadata, indexName, keyExpr string, req *dynamodb.QueryInput, forward bool, limit int) (_ []matchedItem, err error) {
	defer mon.Task()(&ctx)(&err)

	gsi, ok := meta.Index(indexName)
	if !ok {
		return nil, ErrInvalidItem.New("index %q does not exist on table %q", indexName, meta.Name)
	}

	kc, err := expr.ParseKeyCondition(keyExpr, gsi.HashKey, gsi.SortKey,
		req.ExpressionAttributeNames, req.ExpressionAttributeValues)
	if err != nil {
		return nil, ErrInvalidExpression.Wrap(err)
	}

	var start *rowKey
	if req.ExclusiveStartKey != nil {
		primary, err := primaryKeyOf(meta, req.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		startKey, has, err := indexKeyOf(meta, gsi, req.ExclusiveStartKey, primary)
		if err != nil {
			return nil, err
		}
		if !has {
			return nil, ErrInvalidItem.New("exclusive start key lacks index key attributes")
		}
		start = &startKey
	}

	relation := indexRelationName(meta.Name, indexName)
	want := 0
	if limit > 0 {
		want = limit + 1
	}

	var matched []matchedItem
	for {
		rows, err := db.queryRows(ctx, db.db, relation, kc.HashValue, "", nil, start, forward, sweepScanPageSize)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if want > 0 && len(matched) >= want {
				return matched, nil
			}
			item, err := decodeItem(row.AttributesJSON)
			if err != nil {
				return nil, err
			}
			if itemExpired(meta, item, db.nowFn()) {
				continue
			}
			ok, err := expr.EvalCondition(keyExpr,
				req.ExpressionAttributeNames, req.ExpressionAttributeValues, item)
			if err != nil {
				return nil, ErrInvalidExpression.Wrap(err)
			}
			if !ok {
				continue
			}
			matched = append(matched, matchedItem{
				item: item,
				key:  rowKey{Hash: row.HashKeyValue, Sort: row.SortKeyValue.String},
			})
		}
		if len(rows) < sweepScanPageSize {
			return matched, nil
		}
		lastRow := rows[len(rows)-1]
		start = &rowKey{Hash: lastRow.HashKeyValue, Sort: lastRow.SortKeyValue.String}
	}
}
