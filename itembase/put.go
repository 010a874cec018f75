// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/jmoiron/sqlx"
)

// PutItem writes a full item, replacing any existing item under the same
// key. The read, condition check, write, index maintenance and stream
// capture all happen in one SQL transaction.
func (db *DB) PutItem(ctx context.Context, req *dynamodb.PutItemInput) (_ *dynamodb.PutItemOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	meta, err := db.GetTableMetadata(ctx, aws.StringValue(req.TableName))
	if err != nil {
		return nil, err
	}
	key, encoded, err := encodeItem(meta, req.Item)
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

		now := db.nowFn()
		if err := db.upsertRow(ctx, tx, itemRelationName(meta.Name), key, []byte(encoded), now); err != nil {
			return err
		}
		if err := db.reconcileIndexes(ctx, tx, meta, oldItem, req.Item, key, now); err != nil {
			return err
		}

		eventType := eventInsert
		if oldItem != nil {
			eventType = eventModify
		}
		return db.captureStreamEvent(ctx, tx, meta, eventType, oldItem, req.Item, key)
	})
	if err != nil {
		return nil, err
	}

	out := &dynamodb.PutItemOutput{}
	if aws.StringValue(req.ReturnValues) == dynamodb.ReturnValueAllOld && oldItem != nil {
		out.Attributes = oldItem
	}
	return out, nil
}
