// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase_test

import (
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/pretender/itembase"
	"storj.io/pretender/itembase/itembasetest"
)

func seedOrders(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
	_, err := db.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String("orders"),
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String("user"), KeyType: aws.String("HASH")},
			{AttributeName: aws.String("order"), KeyType: aws.String("RANGE")},
		},
		GlobalSecondaryIndexes: []*dynamodb.GlobalSecondaryIndex{{
			IndexName: aws.String("by-status"),
			KeySchema: []*dynamodb.KeySchemaElement{
				{AttributeName: aws.String("status"), KeyType: aws.String("HASH")},
				{AttributeName: aws.String("order"), KeyType: aws.String("RANGE")},
			},
			Projection: &dynamodb.Projection{ProjectionType: aws.String("ALL")},
		}},
	})
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		status := "open"
		if i%2 == 0 {
			status = "shipped"
		}
		_, err := db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("orders"),
			Item: map[string]*dynamodb.AttributeValue{
				"user":   {S: aws.String("u1")},
				"order":  {S: aws.String(fmt.Sprintf("ord-%03d", i))},
				"status": {S: aws.String(status)},
				"total":  {N: aws.String(fmt.Sprintf("%d", i*10))},
			},
		})
		require.NoError(t, err)
	}
}

func TestQueryPaginationWithBetween(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		seedOrders(ctx, t, db)

		req := &dynamodb.QueryInput{
			TableName:              aws.String("orders"),
			KeyConditionExpression: aws.String("#u = :u AND #o BETWEEN :lo AND :hi"),
			ExpressionAttributeNames: map[string]*string{
				"#u": aws.String("user"),
				"#o": aws.String("order"),
			},
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":u":  {S: aws.String("u1")},
				":lo": {S: aws.String("ord-001")},
				":hi": {S: aws.String("ord-004")},
			},
			Limit: aws.Int64(2),
		}

		first, err := db.Query(ctx, req)
		require.NoError(t, err)
		require.Len(t, first.Items, 2)
		require.Equal(t, "ord-001", *first.Items[0]["order"].S)
		require.Equal(t, "ord-002", *first.Items[1]["order"].S)
		require.NotNil(t, first.LastEvaluatedKey)

		req.ExclusiveStartKey = first.LastEvaluatedKey
		second, err := db.Query(ctx, req)
		require.NoError(t, err)
		require.Len(t, second.Items, 2)
		require.Equal(t, "ord-003", *second.Items[0]["order"].S)
		require.Equal(t, "ord-004", *second.Items[1]["order"].S)
		require.Nil(t, second.LastEvaluatedKey)
	})
}

func TestQueryDescendingAndBeginsWith(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		seedOrders(ctx, t, db)

		out, err := db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String("orders"),
			KeyConditionExpression: aws.String("#u = :u AND begins_with(#o, :prefix)"),
			ExpressionAttributeNames: map[string]*string{
				"#u": aws.String("user"),
				"#o": aws.String("order"),
			},
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":u":      {S: aws.String("u1")},
				":prefix": {S: aws.String("ord-")},
			},
			ScanIndexForward: aws.Bool(false),
		})
		require.NoError(t, err)
		require.Len(t, out.Items, 5)
		require.Equal(t, "ord-005", *out.Items[0]["order"].S)
		require.Equal(t, "ord-001", *out.Items[4]["order"].S)
	})
}

func TestQueryFilterAndCount(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		seedOrders(ctx, t, db)

		out, err := db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String("orders"),
			KeyConditionExpression: aws.String("#u = :u"),
			FilterExpression:       aws.String("total > :min"),
			ExpressionAttributeNames: map[string]*string{
				"#u": aws.String("user"),
			},
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":u":   {S: aws.String("u1")},
				":min": {N: aws.String("25")},
			},
		})
		require.NoError(t, err)
		require.Len(t, out.Items, 3)
		require.EqualValues(t, 3, *out.Count)
		require.EqualValues(t, 5, *out.ScannedCount)

		count, err := db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String("orders"),
			KeyConditionExpression: aws.String("#u = :u"),
			ExpressionAttributeNames: map[string]*string{
				"#u": aws.String("user"),
			},
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":u": {S: aws.String("u1")},
			},
			Select: aws.String("COUNT"),
		})
		require.NoError(t, err)
		require.Empty(t, count.Items)
		require.EqualValues(t, 5, *count.Count)
	})
}

func TestQueryIndex(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		seedOrders(ctx, t, db)

		out, err := db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String("orders"),
			IndexName:              aws.String("by-status"),
			KeyConditionExpression: aws.String("#s = :s"),
			ExpressionAttributeNames: map[string]*string{
				"#s": aws.String("status"),
			},
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":s": {S: aws.String("open")},
			},
		})
		require.NoError(t, err)
		require.Len(t, out.Items, 3)
		for _, item := range out.Items {
			require.Equal(t, "open", *item["status"].S)
		}
	})
}

func TestQueryIndexFollowsUpdates(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		seedOrders(ctx, t, db)

		// shipping an open order moves it between index partitions
		_, err := db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String("orders"),
			Key: map[string]*dynamodb.AttributeValue{
				"user":  {S: aws.String("u1")},
				"order": {S: aws.String("ord-001")},
			},
			UpdateExpression: aws.String("SET #s = :shipped"),
			ExpressionAttributeNames: map[string]*string{
				"#s": aws.String("status"),
			},
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":shipped": {S: aws.String("shipped")},
			},
		})
		require.NoError(t, err)

		query := func(status string) []map[string]*dynamodb.AttributeValue {
			out, err := db.Query(ctx, &dynamodb.QueryInput{
				TableName:              aws.String("orders"),
				IndexName:              aws.String("by-status"),
				KeyConditionExpression: aws.String("#s = :s"),
				ExpressionAttributeNames: map[string]*string{
					"#s": aws.String("status"),
				},
				ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
					":s": {S: aws.String(status)},
				},
			})
			require.NoError(t, err)
			return out.Items
		}

		require.Len(t, query("open"), 2)
		require.Len(t, query("shipped"), 3)

		// deleting the item removes its index row
		_, err = db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String("orders"),
			Key: map[string]*dynamodb.AttributeValue{
				"user":  {S: aws.String("u1")},
				"order": {S: aws.String("ord-001")},
			},
		})
		require.NoError(t, err)
		require.Len(t, query("shipped"), 2)
	})
}

func TestQueryErrors(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		seedOrders(ctx, t, db)

		// missing key condition
		_, err := db.Query(ctx, &dynamodb.QueryInput{
			TableName: aws.String("orders"),
		})
		require.True(t, itembase.ErrInvalidExpression.Has(err))

		// condition on a non-key attribute
		_, err = db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String("orders"),
			KeyConditionExpression: aws.String("total = :v"),
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":v": {N: aws.String("10")},
			},
		})
		require.True(t, itembase.ErrInvalidExpression.Has(err))

		// unknown index
		_, err = db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String("orders"),
			IndexName:              aws.String("nope"),
			KeyConditionExpression: aws.String("#u = :u"),
			ExpressionAttributeNames: map[string]*string{
				"#u": aws.String("user"),
			},
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":u": {S: aws.String("u1")},
			},
		})
		require.Error(t, err)
	})
}
