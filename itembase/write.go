// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"context"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/jmoiron/sqlx"

	"storj.io/pretender/itembase/expr"
)

// loadForWrite fetches the current version of an item inside a write
// transaction. An expired item is purged on the spot, inside the same
// transaction, and reported as absent.
func (db *DB) loadForWrite(ctx context.Context, tx *sqlx.Tx, meta TableMetadata, key rowKey) (_ map[string]*dynamodb.AttributeValue, err error) {
	defer mon.Task()(&ctx)(&err)

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
		if _, err := db.deleteRow(ctx, tx, itemRelationName(meta.Name), key); err != nil {
			return nil, err
		}
		if err := db.reconcileIndexes(ctx, tx, meta, item, nil, key, db.nowFn()); err != nil {
			return nil, err
		}
		if err := db.captureStreamEvent(ctx, tx, meta, eventRemove, item, nil, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return item, nil
}

// checkCondition evaluates an optional condition expression against the
// current item, nil meaning the item does not exist.
func checkCondition(expression string, names map[string]*string, values map[string]*dynamodb.AttributeValue, current map[string]*dynamodb.AttributeValue) error {
	if expression == "" {
		return nil
	}
	if current == nil {
		current = map[string]*dynamodb.AttributeValue{}
	}
	ok, err := expr.EvalCondition(expression, names, values, current)
	if err != nil {
		return ErrInvalidExpression.Wrap(err)
	}
	if !ok {
		return ErrConditionalCheckFailed.New("the conditional request failed")
	}
	return nil
}

// applyUpdateExpression mutates item per the update expression, mapping
// parse and evaluation failures to the invalid-expression class.
func applyUpdateExpression(expression string, names map[string]*string, values map[string]*dynamodb.AttributeValue, item map[string]*dynamodb.AttributeValue) error {
	if err := expr.ApplyUpdate(expression, names, values, item); err != nil {
		return ErrInvalidExpression.Wrap(err)
	}
	return nil
}

// applyFilter evaluates an optional filter expression against an item.
func applyFilter(expression string, names map[string]*string, values map[string]*dynamodb.AttributeValue, item map[string]*dynamodb.AttributeValue) (bool, error) {
	if expression == "" {
		return true, nil
	}
	ok, err := expr.EvalCondition(expression, names, values, item)
	if err != nil {
		return false, ErrInvalidExpression.Wrap(err)
	}
	return ok, nil
}

// project applies an optional projection expression to an item.
func project(expression string, names map[string]*string, item map[string]*dynamodb.AttributeValue) (map[string]*dynamodb.AttributeValue, error) {
	if expression == "" {
		return item, nil
	}
	attrs, err := expr.ParseProjection(expression, names)
	if err != nil {
		return nil, ErrInvalidExpression.Wrap(err)
	}
	return expr.ApplyProjection(item, attrs), nil
}
