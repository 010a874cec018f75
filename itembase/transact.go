// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/jmoiron/sqlx"
)

// TransactWriteItems runs up to 25 write actions in one SQL transaction.
// If any action fails its condition the whole transaction rolls back and
// the error carries per-item cancellation reasons. Transactional writes do
// not emit stream records and do not maintain index projections.
func (db *DB) TransactWriteItems(ctx context.Context, req *dynamodb.TransactWriteItemsInput) (_ *dynamodb.TransactWriteItemsOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	if len(req.TransactItems) == 0 {
		return nil, ErrInvalidItem.New("transaction requires at least one item")
	}
	if len(req.TransactItems) > TransactLimit {
		return nil, ErrInvalidItem.New("transaction supports at most %d items, got %d", TransactLimit, len(req.TransactItems))
	}

	// Table metadata is resolved before the transaction opens; the metadata
	// queries run on the pool handle, which the transaction occupies.
	reasons := make([]CancellationReason, len(req.TransactItems))
	metas := make([]TableMetadata, len(req.TransactItems))
	failed := false
	for i, action := range req.TransactItems {
		reasons[i].Code = ReasonNone
		tableName, ok := writeActionTable(action)
		if !ok {
			reasons[i] = CancellationReason{Code: ReasonValidationError, Message: "transact item carries no action"}
			failed = true
			continue
		}
		meta, reason := db.transactMeta(ctx, tableName)
		if reason != nil {
			reasons[i] = *reason
			failed = true
			continue
		}
		metas[i] = meta
	}
	if failed {
		return nil, cancelledWith(reasons)
	}

	err = db.withTx(ctx, func(tx *sqlx.Tx) error {
		for i, action := range req.TransactItems {
			reason := db.applyTransactAction(ctx, tx, metas[i], action)
			reasons[i] = reason
			if reason.Code != ReasonNone {
				failed = true
			}
		}
		if failed {
			return cancelledWith(reasons)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func writeActionTable(action *dynamodb.TransactWriteItem) (*string, bool) {
	switch {
	case action.Put != nil:
		return action.Put.TableName, true
	case action.Update != nil:
		return action.Update.TableName, true
	case action.Delete != nil:
		return action.Delete.TableName, true
	case action.ConditionCheck != nil:
		return action.ConditionCheck.TableName, true
	default:
		return nil, false
	}
}

func (db *DB) applyTransactAction(ctx context.Context, tx *sqlx.Tx, meta TableMetadata, action *dynamodb.TransactWriteItem) CancellationReason {
	switch {
	case action.Put != nil:
		return db.transactPut(ctx, tx, meta, action.Put)
	case action.Update != nil:
		return db.transactUpdate(ctx, tx, meta, action.Update)
	case action.Delete != nil:
		return db.transactDelete(ctx, tx, meta, action.Delete)
	case action.ConditionCheck != nil:
		return db.transactConditionCheck(ctx, tx, meta, action.ConditionCheck)
	default:
		return CancellationReason{Code: ReasonValidationError, Message: "transact item carries no action"}
	}
}

// transactCurrent loads the current version of the target item, treating an
// expired item as absent. Unlike single-item writes it leaves the expired
// row for the sweeper, since transactions do not touch streams or indexes.
func (db *DB) transactCurrent(ctx context.Context, tx *sqlx.Tx, meta TableMetadata, key rowKey) (map[string]*dynamodb.AttributeValue, error) {
	row, err := db.getRow(ctx, tx, itemRelationName(meta.Name), key)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	item, err := decodeItem(row.AttributesJSON)
	if err != nil {
		return nil, err
	}
	if itemExpired(meta, item, db.nowFn()) {
		return nil, nil
	}
	return item, nil
}

func (db *DB) transactMeta(ctx context.Context, tableName *string) (TableMetadata, *CancellationReason) {
	meta, err := db.GetTableMetadata(ctx, aws.StringValue(tableName))
	if err != nil {
		if ErrTableNotFound.Has(err) {
			return TableMetadata{}, &CancellationReason{Code: ReasonResourceNotFound, Message: err.Error()}
		}
		return TableMetadata{}, &CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	return meta, nil
}

func conditionReason(err error, current map[string]*dynamodb.AttributeValue, returnValues *string) CancellationReason {
	reason := CancellationReason{Code: ReasonConditionalCheckFailed, Message: err.Error()}
	if aws.StringValue(returnValues) == dynamodb.ReturnValuesOnConditionCheckFailureAllOld {
		reason.Item = current
	}
	return reason
}

func (db *DB) transactPut(ctx context.Context, tx *sqlx.Tx, meta TableMetadata, put *dynamodb.Put) CancellationReason {
	key, encoded, err := encodeItem(meta, put.Item)
	if err != nil {
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	current, err := db.transactCurrent(ctx, tx, meta, key)
	if err != nil {
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	if err := checkCondition(aws.StringValue(put.ConditionExpression),
		put.ExpressionAttributeNames, put.ExpressionAttributeValues, current); err != nil {
		if ErrConditionalCheckFailed.Has(err) {
			return conditionReason(err, current, put.ReturnValuesOnConditionCheckFailure)
		}
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	if err := db.upsertRow(ctx, tx, itemRelationName(meta.Name), key, []byte(encoded), db.nowFn()); err != nil {
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	return CancellationReason{Code: ReasonNone}
}

func (db *DB) transactUpdate(ctx context.Context, tx *sqlx.Tx, meta TableMetadata, update *dynamodb.Update) CancellationReason {
	key, err := primaryKeyOf(meta, update.Key)
	if err != nil {
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	current, err := db.transactCurrent(ctx, tx, meta, key)
	if err != nil {
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	if err := checkCondition(aws.StringValue(update.ConditionExpression),
		update.ExpressionAttributeNames, update.ExpressionAttributeValues, current); err != nil {
		if ErrConditionalCheckFailed.Has(err) {
			return conditionReason(err, current, update.ReturnValuesOnConditionCheckFailure)
		}
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}

	next := map[string]*dynamodb.AttributeValue{}
	if current != nil {
		for name, value := range current {
			next[name] = value
		}
	} else {
		for name, value := range update.Key {
			next[name] = value
		}
	}
	if err := applyUpdateExpression(aws.StringValue(update.UpdateExpression),
		update.ExpressionAttributeNames, update.ExpressionAttributeValues, next); err != nil {
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}

	newKey, encoded, err := encodeItem(meta, next)
	if err != nil {
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	if newKey != key {
		return CancellationReason{Code: ReasonValidationError, Message: "update expression must not change key attributes"}
	}
	if err := db.upsertRow(ctx, tx, itemRelationName(meta.Name), key, []byte(encoded), db.nowFn()); err != nil {
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	return CancellationReason{Code: ReasonNone}
}

func (db *DB) transactDelete(ctx context.Context, tx *sqlx.Tx, meta TableMetadata, del *dynamodb.Delete) CancellationReason {
	key, err := primaryKeyOf(meta, del.Key)
	if err != nil {
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	current, err := db.transactCurrent(ctx, tx, meta, key)
	if err != nil {
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	if err := checkCondition(aws.StringValue(del.ConditionExpression),
		del.ExpressionAttributeNames, del.ExpressionAttributeValues, current); err != nil {
		if ErrConditionalCheckFailed.Has(err) {
			return conditionReason(err, current, del.ReturnValuesOnConditionCheckFailure)
		}
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	if _, err := db.deleteRow(ctx, tx, itemRelationName(meta.Name), key); err != nil {
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	return CancellationReason{Code: ReasonNone}
}

func (db *DB) transactConditionCheck(ctx context.Context, tx *sqlx.Tx, meta TableMetadata, check *dynamodb.ConditionCheck) CancellationReason {
	key, err := primaryKeyOf(meta, check.Key)
	if err != nil {
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	current, err := db.transactCurrent(ctx, tx, meta, key)
	if err != nil {
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	if err := checkCondition(aws.StringValue(check.ConditionExpression),
		check.ExpressionAttributeNames, check.ExpressionAttributeValues, current); err != nil {
		if ErrConditionalCheckFailed.Has(err) {
			return conditionReason(err, current, check.ReturnValuesOnConditionCheckFailure)
		}
		return CancellationReason{Code: ReasonValidationError, Message: err.Error()}
	}
	return CancellationReason{Code: ReasonNone}
}

// TransactGetItems reads up to 25 items in one SQL transaction so the
// responses reflect a single point in time.
func (db *DB) TransactGetItems(ctx context.Context, req *dynamodb.TransactGetItemsInput) (_ *dynamodb.TransactGetItemsOutput, err error) {
	defer mon.Task()(&ctx)(&err)

	if len(req.TransactItems) == 0 {
		return nil, ErrInvalidItem.New("transaction requires at least one item")
	}
	if len(req.TransactItems) > TransactLimit {
		return nil, ErrInvalidItem.New("transaction supports at most %d items, got %d", TransactLimit, len(req.TransactItems))
	}

	// Metadata first, for the same single-connection reason as in
	// TransactWriteItems. A missing table cancels the whole transaction
	// with a positioned ResourceNotFound reason.
	reasons := make([]CancellationReason, len(req.TransactItems))
	metas := make([]TableMetadata, len(req.TransactItems))
	failed := false
	for i, action := range req.TransactItems {
		reasons[i].Code = ReasonNone
		if action.Get == nil {
			return nil, ErrInvalidItem.New("transact item carries no get")
		}
		meta, reason := db.transactMeta(ctx, action.Get.TableName)
		if reason != nil {
			reasons[i] = *reason
			failed = true
			continue
		}
		metas[i] = meta
	}
	if failed {
		return nil, cancelledWith(reasons)
	}

	responses := make([]*dynamodb.ItemResponse, len(req.TransactItems))
	err = db.withTx(ctx, func(tx *sqlx.Tx) error {
		for i, action := range req.TransactItems {
			key, err := primaryKeyOf(metas[i], action.Get.Key)
			if err != nil {
				return err
			}
			item, err := db.transactCurrent(ctx, tx, metas[i], key)
			if err != nil {
				return err
			}
			if item != nil {
				item, err = project(aws.StringValue(action.Get.ProjectionExpression),
					action.Get.ExpressionAttributeNames, item)
				if err != nil {
					return err
				}
			}
			responses[i] = &dynamodb.ItemResponse{Item: item}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dynamodb.TransactGetItemsOutput{Responses: responses}, nil
}
