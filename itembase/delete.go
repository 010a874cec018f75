// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/jmoiron/sqlx"
)

// DeleteItem removes an item by primary key. Deleting an absent item
// succeeds without effect, matching the hosted service.
func (db *DB) DeleteItem(ctx context.Context, req *dynamodb.DeleteItemInput) (_ *dynamodb.DeleteItemOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	meta, err := db.GetTableMetadata(ctx, aws.StringValue(req.TableName))
	if err != nil {
		return nil, err
	}
	key, err := primaryKeyOf(meta, req.Key)
	if err != nil {
		return nil, err
	}

	var oldItem map[string]*dynamodb.AttributeValue
	err = db.withTx(ctx, func(tx *sqlx.Tx) error {
		oldItem, err = db.loadForWrite(ctx, tx, meta, key)
		if err != nil {
			return err
		}
		if err := checkCondition(aws.StringValue(req.ConditionExpression),
			req.ExpressionAttributeNames, req.ExpressionAttributeValues, oldItem); err != nil {
			return err
		}
		if oldItem == nil {
			return nil
		}

		if _, err := db.deleteRow(ctx, tx, itemRelationName(meta.Name), key); err != nil {
			return err
		}
		if err := db.reconcileIndexes(ctx, tx, meta, oldItem, nil, key, db.nowFn()); err != nil {
			return err
		}
		return db.captureStreamEvent(ctx, tx, meta, eventRemove, oldItem, nil, key)
	})
	if err != nil {
		return nil, err
	}

	out := &dynamodb.DeleteItemOutput{}
	if aws.StringValue(req.ReturnValues) == dynamodb.ReturnValueAllOld && oldItem != nil {
		out.Attributes = oldItem
	}
	return out, nil
}
