// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// Scan walks a table or index across partitions in (hash, sort) order.
func (db *DB) Scan(ctx context.Context, req *dynamodb.ScanInput) (_ *dynamodb.ScanOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	meta, err := db.GetTableMetadata(ctx, aws.StringValue(req.TableName))
	if err != nil {
		return nil, err
	}

	relation := itemRelationName(meta.Name)
	indexName := aws.StringValue(req.IndexName)
	var gsi GSI
	if indexName != "" {
		var ok bool
		gsi, ok = meta.Index(indexName)
		if !ok {
			return nil, ErrInvalidItem.New("index %q does not exist on table %q", indexName, meta.Name)
		}
		relation = indexRelationName(meta.Name, indexName)
	}

	var start *rowKey
	if req.ExclusiveStartKey != nil {
		primary, err := primaryKeyOf(meta, req.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		if indexName == "" {
			start = &primary
		} else {
			startKey, has, err := indexKeyOf(meta, gsi, req.ExclusiveStartKey, primary)
			if err != nil {
				return nil, err
			}
			if !has {
				return nil, ErrInvalidItem.New("exclusive start key lacks index key attributes")
			}
			start = &startKey
		}
	}

	limit := int(aws.Int64Value(req.Limit))
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
		rows, err := db.scanRows(ctx, db.db, relation, start, fetch)
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
				// the base relation is purged; stale index rows go with it
				if indexName == "" {
					if err := db.purgeExpired(ctx, meta, item, key); err != nil {
						return nil, err
					}
				}
				continue
			}
			matched = append(matched, matchedItem{item: item, key: key})
		}
		if len(rows) < fetch || (want > 0 && len(matched) >= want) {
			break
		}
		lastRow := rows[len(rows)-1]
		start = &rowKey{Hash: lastRow.HashKeyValue, Sort: lastRow.SortKeyValue.String}
	}

	out := &dynamodb.ScanOutput{}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
		last := matched[len(matched)-1].item
		lek := keyAttributesOf(meta, last)
		if indexName != "" {
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
