// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"go.uber.org/zap"
)

// BatchGetItem fetches up to 100 items across tables. Reads are independent,
// not a snapshot.
func (db *DB) BatchGetItem(ctx context.Context, req *dynamodb.BatchGetItemInput) (_ *dynamodb.BatchGetItemOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	total := 0
	for _, tableReq := range req.RequestItems {
		total += len(tableReq.Keys)
	}
	if total == 0 {
		return nil, ErrInvalidItem.New("batch get requires at least one key")
	}
	if total > BatchGetLimit {
		return nil, ErrInvalidItem.New("batch get supports at most %d keys, got %d", BatchGetLimit, total)
	}

	out := &dynamodb.BatchGetItemOutput{
		Responses:       map[string][]map[string]*dynamodb.AttributeValue{},
		UnprocessedKeys: map[string]*dynamodb.KeysAndAttributes{},
	}

	for tableName, tableReq := range req.RequestItems {
		meta, err := db.GetTableMetadata(ctx, tableName)
		if err != nil {
			return nil, err
		}

		keys := make([]rowKey, 0, len(tableReq.Keys))
		for _, keyAttrs := range tableReq.Keys {
			key, err := primaryKeyOf(meta, keyAttrs)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}

		rows, err := db.batchGetRows(ctx, db.db, itemRelationName(meta.Name), keys)
		if err != nil {
			return nil, err
		}

		items := make([]map[string]*dynamodb.AttributeValue, 0, len(rows))
		for _, row := range rows {
			item, err := decodeItem(row.AttributesJSON)
			if err != nil {
				return nil, err
			}
			if itemExpired(meta, item, db.nowFn()) {
				key := rowKey{Hash: row.HashKeyValue, Sort: row.SortKeyValue.String}
				if err := db.purgeExpired(ctx, meta, item, key); err != nil {
					return nil, err
				}
				continue
			}
			item, err = project(aws.StringValue(tableReq.ProjectionExpression), tableReq.ExpressionAttributeNames, item)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		out.Responses[tableName] = items
	}
	return out, nil
}

// BatchWriteItem runs up to 25 put and delete requests. The batch is not
// atomic: each request commits on its own and failed requests come back in
// UnprocessedItems.
func (db *DB) BatchWriteItem(ctx context.Context, req *dynamodb.BatchWriteItemInput) (_ *dynamodb.BatchWriteItemOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	total := 0
	for _, requests := range req.RequestItems {
		total += len(requests)
	}
	if total == 0 {
		return nil, ErrInvalidItem.New("batch write requires at least one request")
	}
	if total > BatchWriteLimit {
		return nil, ErrInvalidItem.New("batch write supports at most %d requests, got %d", BatchWriteLimit, total)
	}

	out := &dynamodb.BatchWriteItemOutput{
		UnprocessedItems: map[string][]*dynamodb.WriteRequest{},
	}

	for tableName, requests := range req.RequestItems {
		// a missing table leaves its requests unprocessed, the rest of the
		// batch still runs
		if _, err := db.GetTableMetadata(ctx, tableName); err != nil {
			if !ErrTableNotFound.Has(err) {
				return nil, err
			}
			db.log.Warn("batch write against a missing table",
				zap.String("table", tableName))
			out.UnprocessedItems[tableName] = append(out.UnprocessedItems[tableName], requests...)
			continue
		}

		for _, request := range requests {
			switch {
			case request.PutRequest != nil:
				_, err = db.PutItem(ctx, &dynamodb.PutItemInput{
					TableName: aws.String(tableName),
					Item:      request.PutRequest.Item,
				})
			case request.DeleteRequest != nil:
				_, err = db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
					TableName: aws.String(tableName),
					Key:       request.DeleteRequest.Key,
				})
			default:
				err = ErrInvalidItem.New("write request must carry a put or a delete")
			}
			if err != nil {
				if ErrInvalidItem.Has(err) || ErrItemTooLarge.Has(err) {
					return nil, err
				}
				db.log.Warn("batch write request failed",
					zap.String("table", tableName), zap.Error(err))
				out.UnprocessedItems[tableName] = append(out.UnprocessedItems[tableName], request)
			}
		}
	}

	for tableName := range out.UnprocessedItems {
		if len(out.UnprocessedItems[tableName]) == 0 {
			delete(out.UnprocessedItems, tableName)
		}
	}
	return out, nil
}
