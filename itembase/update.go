// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/jmoiron/sqlx"

	"storj.io/pretender/itembase/attr"
)

// UpdateItem edits the attributes of a single item, creating it when it
// does not exist. The update expression is evaluated against a snapshot of
// the current item, so actions within one expression do not see each
// other's effects.
func (db *DB) UpdateItem(ctx context.Context, req *dynamodb.UpdateItemInput) (_ *dynamodb.UpdateItemOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	meta, err := db.GetTableMetadata(ctx, aws.StringValue(req.TableName))
	if err != nil {
		return nil, err
	}
	key, err := primaryKeyOf(meta, req.Key)
	if err != nil {
		return nil, err
	}

	var oldItem, newItem map[string]*dynamodb.AttributeValue
	err = db.withTx(ctx, func(tx *sqlx.Tx) error {
		oldItem, err = db.loadForWrite(ctx, tx, meta, key)
		if err != nil {
			return err
		}
		if err := checkCondition(aws.StringValue(req.ConditionExpression),
			req.ExpressionAttributeNames, req.ExpressionAttributeValues, oldItem); err != nil {
			return err
		}

		newItem = map[string]*dynamodb.AttributeValue{}
		if oldItem != nil {
			for name, value := range oldItem {
				newItem[name] = value
			}
		} else {
			for name, value := range req.Key {
				newItem[name] = value
			}
		}

		if expression := aws.StringValue(req.UpdateExpression); expression != "" {
			if err := applyUpdateExpression(expression,
				req.ExpressionAttributeNames, req.ExpressionAttributeValues, newItem); err != nil {
				return err
			}
		}

		newKey, encoded, err := encodeItem(meta, newItem)
		if err != nil {
			return err
		}
		if newKey != key {
			return ErrInvalidItem.New("update expression must not change key attributes")
		}

		now := db.nowFn()
		if err := db.upsertRow(ctx, tx, itemRelationName(meta.Name), key, []byte(encoded), now); err != nil {
			return err
		}
		if err := db.reconcileIndexes(ctx, tx, meta, oldItem, newItem, key, now); err != nil {
			return err
		}

		eventType := eventInsert
		if oldItem != nil {
			eventType = eventModify
		}
		return db.captureStreamEvent(ctx, tx, meta, eventType, oldItem, newItem, key)
	})
	if err != nil {
		return nil, err
	}

	out := &dynamodb.UpdateItemOutput{}
	switch aws.StringValue(req.ReturnValues) {
	case dynamodb.ReturnValueAllOld:
		if oldItem != nil {
			out.Attributes = oldItem
		}
	case dynamodb.ReturnValueAllNew:
		out.Attributes = newItem
	case dynamodb.ReturnValueUpdatedOld:
		out.Attributes = changedAttributes(newItem, oldItem)
	case dynamodb.ReturnValueUpdatedNew:
		out.Attributes = changedAttributes(oldItem, newItem)
	}
	return out, nil
}

// changedAttributes returns the attributes of after that differ from
// before, the shape of the UPDATED_* return values.
func changedAttributes(before, after map[string]*dynamodb.AttributeValue) map[string]*dynamodb.AttributeValue {
	if after == nil {
		return nil
	}
	changed := map[string]*dynamodb.AttributeValue{}
	for name, value := range after {
		if previous, ok := before[name]; !ok || !attr.Equal(previous, value) {
			changed[name] = value
		}
	}
	if len(changed) == 0 {
		return nil
	}
	return changed
}
