// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase_test

import (
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/pretender/itembase"
	"storj.io/pretender/itembase/itembasetest"
)

func enableTTL(ctx *testcontext.Context, t *testing.T, db *itembase.DB, table string) {
	_, err := db.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(table),
		TimeToLiveSpecification: &dynamodb.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String("expires"),
		},
	})
	require.NoError(t, err)
}

func TestTTLExpiryOnRead(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)
		enableTTL(ctx, t, db, "users")

		now := time.Now()
		_, err := db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("users"),
			Item: map[string]*dynamodb.AttributeValue{
				"pk":      {S: aws.String("u1")},
				"sk":      {S: aws.String("session")},
				"expires": {N: aws.String(strconv.FormatInt(now.Add(time.Hour).Unix(), 10))},
			},
		})
		require.NoError(t, err)

		key := map[string]*dynamodb.AttributeValue{
			"pk": {S: aws.String("u1")},
			"sk": {S: aws.String("session")},
		}

		out, err := db.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String("users"), Key: key,
		})
		require.NoError(t, err)
		require.NotNil(t, out.Item)

		// jump past the expiration timestamp
		db.TestingSetNow(func() time.Time { return now.Add(2 * time.Hour) })

		out, err = db.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String("users"), Key: key,
		})
		require.NoError(t, err)
		require.Nil(t, out.Item)

		// the purge also hides it from queries
		queried, err := db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String("users"),
			KeyConditionExpression: aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":pk": {S: aws.String("u1")},
			},
		})
		require.NoError(t, err)
		require.Empty(t, queried.Items)
	})
}

func TestTTLNonNumberNeverExpires(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)
		enableTTL(ctx, t, db, "users")

		_, err := db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("users"),
			Item: map[string]*dynamodb.AttributeValue{
				"pk":      {S: aws.String("u1")},
				"sk":      {S: aws.String("session")},
				"expires": {S: aws.String("tomorrow")},
			},
		})
		require.NoError(t, err)

		db.TestingSetNow(func() time.Time { return time.Now().Add(1000 * time.Hour) })

		out, err := db.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String("users"),
			Key: map[string]*dynamodb.AttributeValue{
				"pk": {S: aws.String("u1")},
				"sk": {S: aws.String("session")},
			},
		})
		require.NoError(t, err)
		require.NotNil(t, out.Item)
	})
}

func TestDeleteExpiredItems(t *testing.T) {
	itembasetest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *itembase.DB) {
		createUsersTable(ctx, t, db)
		enableTTL(ctx, t, db, "users")

		now := time.Now()
		for i := 0; i < 6; i++ {
			expires := now.Add(-time.Hour)
			if i%2 == 0 {
				expires = now.Add(time.Hour)
			}
			_, err := db.PutItem(ctx, &dynamodb.PutItemInput{
				TableName: aws.String("users"),
				Item: map[string]*dynamodb.AttributeValue{
					"pk":      {S: aws.String("u1")},
					"sk":      {S: aws.String(fmt.Sprintf("session-%d", i))},
					"expires": {N: aws.String(strconv.FormatInt(expires.Unix(), 10))},
				},
			})
			require.NoError(t, err)
		}

		meta, err := db.GetTableMetadata(ctx, "users")
		require.NoError(t, err)

		deleted, err := db.DeleteExpiredItems(ctx, meta, 100)
		require.NoError(t, err)
		require.Equal(t, 3, deleted)

		// second sweep finds nothing
		deleted, err = db.DeleteExpiredItems(ctx, meta, 100)
		require.NoError(t, err)
		require.Zero(t, deleted)

		out, err := db.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String("users")})
		require.NoError(t, err)
		require.Len(t, out.Items, 3)
	})
}
