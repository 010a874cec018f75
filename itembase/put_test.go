// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase_test

import (
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/pretender/itembase"
	"storj.io/pretender/itembase/itembasetest"
)

func TestPutGetRoundTrip(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)

		item := map[string]*dynamodb.AttributeValue{
			"pk":     {S: aws.String("u1")},
			"sk":     {S: aws.String("profile")},
			"name":   {S: aws.String("Alice")},
			"count":  {N: aws.String("3")},
			"active": {BOOL: aws.Bool(true)},
			"tags":   {SS: aws.StringSlice([]string{"a", "b"})},
			"nested": {M: map[string]*dynamodb.AttributeValue{
				"depth": {N: aws.String("1")},
			}},
		}

		_, err := db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("users"),
			Item:      item,
		})
		require.NoError(t, err)

		out, err := db.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String("users"),
			Key: map[string]*dynamodb.AttributeValue{
				"pk": {S: aws.String("u1")},
				"sk": {S: aws.String("profile")},
			},
		})
		require.NoError(t, err)
		require.Equal(t, "Alice", *out.Item["name"].S)
		require.Equal(t, "3", *out.Item["count"].N)
		require.True(t, *out.Item["active"].BOOL)
		require.ElementsMatch(t, []string{"a", "b"}, aws.StringValueSlice(out.Item["tags"].SS))
		require.Equal(t, "1", *out.Item["nested"].M["depth"].N)
	})
}

func TestPutItemConditional(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)

		put := func() error {
			_, err := db.PutItem(ctx, &dynamodb.PutItemInput{
				TableName: aws.String("users"),
				Item: map[string]*dynamodb.AttributeValue{
					"pk": {S: aws.String("u1")},
					"sk": {S: aws.String("profile")},
				},
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			})
			return err
		}

		require.NoError(t, put())

		// the second identical put hits the existing item
		err := put()
		require.True(t, itembase.ErrConditionalCheckFailed.Has(err))
	})
}

func TestPutItemReturnValuesAllOld(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)

		_, err := db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("users"),
			Item: map[string]*dynamodb.AttributeValue{
				"pk":   {S: aws.String("u1")},
				"sk":   {S: aws.String("profile")},
				"name": {S: aws.String("before")},
			},
		})
		require.NoError(t, err)

		out, err := db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("users"),
			Item: map[string]*dynamodb.AttributeValue{
				"pk":   {S: aws.String("u1")},
				"sk":   {S: aws.String("profile")},
				"name": {S: aws.String("after")},
			},
			ReturnValues: aws.String("ALL_OLD"),
		})
		require.NoError(t, err)
		require.Equal(t, "before", *out.Attributes["name"].S)
	})
}

func TestPutItemValidation(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)

		// missing sort key
		_, err := db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("users"),
			Item: map[string]*dynamodb.AttributeValue{
				"pk": {S: aws.String("u1")},
			},
		})
		require.True(t, itembase.ErrInvalidItem.Has(err))

		// non-scalar hash key
		_, err = db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("users"),
			Item: map[string]*dynamodb.AttributeValue{
				"pk": {BOOL: aws.Bool(true)},
				"sk": {S: aws.String("profile")},
			},
		})
		require.True(t, itembase.ErrInvalidItem.Has(err))

		// unknown table
		_, err = db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("nope"),
			Item: map[string]*dynamodb.AttributeValue{
				"pk": {S: aws.String("u1")},
				"sk": {S: aws.String("profile")},
			},
		})
		require.True(t, itembase.ErrTableNotFound.Has(err))
	})
}

func TestPutItemRejectsEmptyValues(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)

		put := func(name string, value *dynamodb.AttributeValue) error {
			_, err := db.PutItem(ctx, &dynamodb.PutItemInput{
				TableName: aws.String("users"),
				Item: map[string]*dynamodb.AttributeValue{
					"pk": {S: aws.String("u1")},
					"sk": {S: aws.String("profile")},
					name: value,
				},
			})
			return err
		}

		// empty string set member
		err := put("tags", &dynamodb.AttributeValue{SS: aws.StringSlice([]string{"a", ""})})
		require.True(t, itembase.ErrInvalidItem.Has(err))

		// zero-length binary value
		err = put("blob", &dynamodb.AttributeValue{B: []byte{}})
		require.True(t, itembase.ErrInvalidItem.Has(err))

		// zero-length binary set member
		err = put("blobs", &dynamodb.AttributeValue{BS: [][]byte{{0x01}, {}}})
		require.True(t, itembase.ErrInvalidItem.Has(err))

		// the rules apply inside nested maps too
		err = put("nested", &dynamodb.AttributeValue{M: map[string]*dynamodb.AttributeValue{
			"inner": {SS: aws.StringSlice([]string{""})},
		}})
		require.True(t, itembase.ErrInvalidItem.Has(err))

		// non-empty values of the same types are fine
		err = put("tags", &dynamodb.AttributeValue{SS: aws.StringSlice([]string{"a", "b"})})
		require.NoError(t, err)
	})
}

func TestGetItemProjection(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)

		_, err := db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("users"),
			Item: map[string]*dynamodb.AttributeValue{
				"pk":    {S: aws.String("u1")},
				"sk":    {S: aws.String("profile")},
				"name":  {S: aws.String("Alice")},
				"email": {S: aws.String("alice@example.test")},
			},
		})
		require.NoError(t, err)

		out, err := db.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String("users"),
			Key: map[string]*dynamodb.AttributeValue{
				"pk": {S: aws.String("u1")},
				"sk": {S: aws.String("profile")},
			},
			ProjectionExpression:     aws.String("pk, #n"),
			ExpressionAttributeNames: map[string]*string{"#n": aws.String("name")},
		})
		require.NoError(t, err)
		require.Len(t, out.Item, 2)
		require.Equal(t, "Alice", *out.Item["name"].S)
	})
}

func TestGetItemMissing(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)

		out, err := db.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String("users"),
			Key: map[string]*dynamodb.AttributeValue{
				"pk": {S: aws.String("ghost")},
				"sk": {S: aws.String("profile")},
			},
		})
		require.NoError(t, err)
		require.Nil(t, out.Item)
	})
}
