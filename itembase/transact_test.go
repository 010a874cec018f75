// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase_test

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/pretender/itembase"
	"storj.io/pretender/itembase/itembasetest"
)

func TestTransactWriteItems(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)

		_, err := db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []*dynamodb.TransactWriteItem{
				{Put: &dynamodb.Put{
					TableName: aws.String("users"),
					Item: map[string]*dynamodb.AttributeValue{
						"pk":      {S: aws.String("u1")},
						"sk":      {S: aws.String("wallet")},
						"balance": {N: aws.String("100")},
					},
				}},
				{Put: &dynamodb.Put{
					TableName: aws.String("users"),
					Item: map[string]*dynamodb.AttributeValue{
						"pk":      {S: aws.String("u2")},
						"sk":      {S: aws.String("wallet")},
						"balance": {N: aws.String("0")},
					},
				}},
			},
		})
		require.NoError(t, err)

		// transfer between the two wallets
		_, err = db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []*dynamodb.TransactWriteItem{
				{Update: &dynamodb.Update{
					TableName: aws.String("users"),
					Key: map[string]*dynamodb.AttributeValue{
						"pk": {S: aws.String("u1")},
						"sk": {S: aws.String("wallet")},
					},
					UpdateExpression:    aws.String("SET balance = balance - :amount"),
					ConditionExpression: aws.String("balance >= :amount"),
					ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
						":amount": {N: aws.String("40")},
					},
				}},
				{Update: &dynamodb.Update{
					TableName: aws.String("users"),
					Key: map[string]*dynamodb.AttributeValue{
						"pk": {S: aws.String("u2")},
						"sk": {S: aws.String("wallet")},
					},
					UpdateExpression: aws.String("SET balance = balance + :amount"),
					ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
						":amount": {N: aws.String("40")},
					},
				}},
			},
		})
		require.NoError(t, err)

		balance := func(user string) string {
			out, err := db.GetItem(ctx, &dynamodb.GetItemInput{
				TableName: aws.String("users"),
				Key: map[string]*dynamodb.AttributeValue{
					"pk": {S: aws.String(user)},
					"sk": {S: aws.String("wallet")},
				},
			})
			require.NoError(t, err)
			return *out.Item["balance"].N
		}
		require.Equal(t, "60", balance("u1"))
		require.Equal(t, "40", balance("u2"))
	})
}

func TestTransactWriteItemsRollsBack(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)

		_, err := db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("users"),
			Item: map[string]*dynamodb.AttributeValue{
				"pk":      {S: aws.String("u1")},
				"sk":      {S: aws.String("wallet")},
				"balance": {N: aws.String("10")},
			},
		})
		require.NoError(t, err)

		_, err = db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []*dynamodb.TransactWriteItem{
				{Update: &dynamodb.Update{
					TableName: aws.String("users"),
					Key: map[string]*dynamodb.AttributeValue{
						"pk": {S: aws.String("u1")},
						"sk": {S: aws.String("wallet")},
					},
					UpdateExpression: aws.String("SET balance = balance - :amount"),
					ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
						":amount": {N: aws.String("5")},
					},
				}},
				{ConditionCheck: &dynamodb.ConditionCheck{
					TableName: aws.String("users"),
					Key: map[string]*dynamodb.AttributeValue{
						"pk": {S: aws.String("u1")},
						"sk": {S: aws.String("wallet")},
					},
					ConditionExpression: aws.String("balance >= :need"),
					ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
						":need": {N: aws.String("1000")},
					},
				}},
			},
		})
		require.True(t, itembase.ErrTransactionCancelled.Has(err))

		var cancelled *itembase.TransactionCancelledError
		require.True(t, errors.As(err, &cancelled))
		require.Len(t, cancelled.Reasons, 2)
		require.Equal(t, itembase.ReasonNone, cancelled.Reasons[0].Code)
		require.Equal(t, itembase.ReasonConditionalCheckFailed, cancelled.Reasons[1].Code)

		// the first update was rolled back
		out, err := db.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String("users"),
			Key: map[string]*dynamodb.AttributeValue{
				"pk": {S: aws.String("u1")},
				"sk": {S: aws.String("wallet")},
			},
		})
		require.NoError(t, err)
		require.Equal(t, "10", *out.Item["balance"].N)
	})
}

func TestTransactWriteItemsAcrossTables(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)
		_, err := db.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String("audit"),
			KeySchema: []*dynamodb.KeySchemaElement{
				{AttributeName: aws.String("pk"), KeyType: aws.String("HASH")},
			},
		})
		require.NoError(t, err)

		_, err = db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []*dynamodb.TransactWriteItem{
				{Put: &dynamodb.Put{
					TableName: aws.String("users"),
					Item: map[string]*dynamodb.AttributeValue{
						"pk":   {S: aws.String("u1")},
						"sk":   {S: aws.String("profile")},
						"name": {S: aws.String("Alice")},
					},
				}},
				{Put: &dynamodb.Put{
					TableName: aws.String("audit"),
					Item: map[string]*dynamodb.AttributeValue{
						"pk":     {S: aws.String("u1-created")},
						"action": {S: aws.String("create")},
					},
				}},
			},
		})
		require.NoError(t, err)

		out, err := db.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String("audit"),
			Key: map[string]*dynamodb.AttributeValue{
				"pk": {S: aws.String("u1-created")},
			},
		})
		require.NoError(t, err)
		require.Equal(t, "create", *out.Item["action"].S)
	})
}

func TestTransactGetItems(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)

		_, err := db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("users"),
			Item: map[string]*dynamodb.AttributeValue{
				"pk":   {S: aws.String("u1")},
				"sk":   {S: aws.String("profile")},
				"name": {S: aws.String("Alice")},
			},
		})
		require.NoError(t, err)

		out, err := db.TransactGetItems(ctx, &dynamodb.TransactGetItemsInput{
			TransactItems: []*dynamodb.TransactGetItem{
				{Get: &dynamodb.Get{
					TableName: aws.String("users"),
					Key: map[string]*dynamodb.AttributeValue{
						"pk": {S: aws.String("u1")},
						"sk": {S: aws.String("profile")},
					},
				}},
				{Get: &dynamodb.Get{
					TableName: aws.String("users"),
					Key: map[string]*dynamodb.AttributeValue{
						"pk": {S: aws.String("ghost")},
						"sk": {S: aws.String("profile")},
					},
				}},
			},
		})
		require.NoError(t, err)
		require.Len(t, out.Responses, 2)
		require.Equal(t, "Alice", *out.Responses[0].Item["name"].S)
		require.Nil(t, out.Responses[1].Item)
	})
}

func TestTransactWriteItemsResourceNotFound(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)

		_, err := db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []*dynamodb.TransactWriteItem{
				{Put: &dynamodb.Put{
					TableName: aws.String("nope"),
					Item: map[string]*dynamodb.AttributeValue{
						"pk": {S: aws.String("u1")},
					},
				}},
			},
		})
		require.True(t, itembase.ErrTransactionCancelled.Has(err))

		var cancelled *itembase.TransactionCancelledError
		require.True(t, errors.As(err, &cancelled))
		require.Equal(t, itembase.ReasonResourceNotFound, cancelled.Reasons[0].Code)
	})
}

func TestTransactGetItemsResourceNotFound(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)

		_, err := db.TransactGetItems(ctx, &dynamodb.TransactGetItemsInput{
			TransactItems: []*dynamodb.TransactGetItem{
				{Get: &dynamodb.Get{
					TableName: aws.String("users"),
					Key: map[string]*dynamodb.AttributeValue{
						"pk": {S: aws.String("u1")},
						"sk": {S: aws.String("profile")},
					},
				}},
				{Get: &dynamodb.Get{
					TableName: aws.String("nope"),
					Key: map[string]*dynamodb.AttributeValue{
						"pk": {S: aws.String("u1")},
					},
				}},
			},
		})
		require.True(t, itembase.ErrTransactionCancelled.Has(err))

		var cancelled *itembase.TransactionCancelledError
		require.True(t, errors.As(err, &cancelled))
		require.Len(t, cancelled.Reasons, 2)
		require.Equal(t, itembase.ReasonNone, cancelled.Reasons[0].Code)
		require.Equal(t, itembase.ReasonResourceNotFound, cancelled.Reasons[1].Code)
	})
}
