// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/jmoiron/sqlx"

	"storj.io/pretender/itembase/attr"
)

// itemExpired reports whether the item's expiration timestamp has passed.
// The TTL attribute must be a number holding epoch seconds; any other type
// never expires.
func itemExpired(meta TableMetadata, item map[string]*dynamodb.AttributeValue, now time.Time) bool {
	if !meta.TTLEnabled {
		return false
	}
	value, ok := item[meta.TTLAttribute]
	if !ok || value.N == nil {
		return false
	}
	expires, err := attr.EpochSeconds(*value.N)
	if err != nil {
		return false
	}
	return !now.Before(time.Unix(expires, 0))
}

// purgeExpired removes an expired item that a read came across. The stream
// still records the removal so consumers observe expirations.
func (db *DB) purgeExpired(ctx context.Context, meta TableMetadata, item map[string]*dynamodb.AttributeValue, key rowKey) (err error) {
	defer mon.Task()(&ctx)(&err)

	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		deleted, err := db.deleteRow(ctx, tx, itemRelationName(meta.Name), key)
		if err != nil {
			return err
		}
		if !deleted {
			return nil
		}
		if err := db.reconcileIndexes(ctx, tx, meta, item, nil, key, db.nowFn()); err != nil {
			return err
		}
		return db.captureStreamEvent(ctx, tx, meta, eventRemove, item, nil, key)
	})
}

// DeleteExpiredItems sweeps one table for expired items, deleting at most
// batchSize of them. Returns the number deleted so the caller can loop until
// the table is clean.
func (db *DB) DeleteExpiredItems(ctx context.Context, meta TableMetadata, batchSize int) (deleted int, err error) {
	defer mon.Task()(&ctx)(&err)

	if !meta.TTLEnabled {
		return 0, nil
	}

	now := db.nowFn()
	var start *rowKey
	for deleted < batchSize {
		rows, err := db.scanRows(ctx, db.db, itemRelationName(meta.Name), start, sweepScanPageSize)
		if err != nil {
			return deleted, err
		}
		if len(rows) == 0 {
			return deleted, nil
		}

		for _, row := range rows {
			if deleted >= batchSize {
				return deleted, nil
			}
			item, err := decodeItem(row.AttributesJSON)
			if err != nil {
				return deleted, err
			}
			key := rowKey{Hash: row.HashKeyValue, Sort: row.SortKeyValue.String}
			if !itemExpired(meta, item, now) {
				continue
			}
			if err := db.purgeExpired(ctx, meta, item, key); err != nil {
				return deleted, err
			}
			deleted++
		}

		last := rows[len(rows)-1]
		start = &rowKey{Hash: last.HashKeyValue, Sort: last.SortKeyValue.String}
	}
	return deleted, nil
}

const sweepScanPageSize = 500
