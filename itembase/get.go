// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// GetItem fetches a single item by primary key. Expired items are purged
// lazily and reported as absent.
func (db *DB) GetItem(ctx context.Context, req *dynamodb.GetItemInput) (_ *dynamodb.GetItemOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	meta, err := db.GetTableMetadata(ctx, aws.StringValue(req.TableName))
	if err != nil {
		return nil, err
	}
	key, err := primaryKeyOf(meta, req.Key)
	if err != nil {
		return nil, err
	}

	row, err := db.getRow(ctx, db.db, itemRelationName(meta.Name), key)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return &dynamodb.GetItemOutput{}, nil
	}

	item, err := decodeItem(row.AttributesJSON)
	if err != nil {
		return nil, err
	}
	if itemExpired(meta, item, db.nowFn()) {
		if err := db.purgeExpired(ctx, meta, item, key); err != nil {
			return nil, err
		}
		return &dynamodb.GetItemOutput{}, nil
	}

	item, err = project(aws.StringValue(req.ProjectionExpression), req.ExpressionAttributeNames, item)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}
