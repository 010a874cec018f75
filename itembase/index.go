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

// indexKeyOf computes the index row key of an item. Index relations use the
// primary key as a suffix of the sort value, so items sharing an index key
// stay distinct and come back in a stable order. Returns ok=false when the
// item lacks the index hash key (sparse index).
func indexKeyOf(meta TableMetadata, gsi GSI, item map[string]*dynamodb.AttributeValue, primary rowKey) (key rowKey, ok bool, err error) {
	indexHash, ok := item[gsi.HashKey]
	if !ok {
		return rowKey{}, false, nil
	}
	hash, err := attr.ScalarString(indexHash)
	if err != nil {
		return rowKey{}, false, ErrInvalidItem.New("index %q hash key: %w", gsi.IndexName, err)
	}

	sort := ""
	if gsi.SortKey != "" {
		indexSort, ok := item[gsi.SortKey]
		if !ok {
			return rowKey{}, false, nil
		}
		s, err := attr.ScalarString(indexSort)
		if err != nil {
			return rowKey{}, false, ErrInvalidItem.New("index %q sort key: %w", gsi.IndexName, err)
		}
		sort = s + "#"
	}
	sort += primary.Hash
	if meta.HasSortKey() {
		sort += "#" + primary.Sort
	}
	return rowKey{Hash: hash, Sort: sort}, true, nil
}

// projectItem reduces an item to the attributes the index projects. Key
// attributes of the table and the index are always included.
func projectItem(meta TableMetadata, gsi GSI, item map[string]*dynamodb.AttributeValue) map[string]*dynamodb.AttributeValue {
	if gsi.ProjectionType == ProjectionAll {
		return item
	}

	keep := map[string]bool{
		meta.HashKey: true,
		gsi.HashKey:  true,
	}
	if meta.HasSortKey() {
		keep[meta.SortKey] = true
	}
	if gsi.SortKey != "" {
		keep[gsi.SortKey] = true
	}
	if gsi.ProjectionType == ProjectionInclude {
		for _, name := range gsi.NonKeyAttributes {
			keep[name] = true
		}
	}

	projected := make(map[string]*dynamodb.AttributeValue, len(keep))
	for name, value := range item {
		if keep[name] {
			projected[name] = value
		}
	}
	return projected
}

// reconcileIndexes updates every index relation of the table after a write:
// stale index rows are removed when the index key changed or vanished, and
// the current projection is written under the new key.
func (db *DB) reconcileIndexes(ctx context.Context, ex sqlx.ExtContext, meta TableMetadata, oldItem, newItem map[string]*dynamodb.AttributeValue, primary rowKey, now time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)

	for _, gsi := range meta.Indexes {
		relation := indexRelationName(meta.Name, gsi.IndexName)

		var oldKey, newKey rowKey
		var hasOld, hasNew bool
		if oldItem != nil {
			oldKey, hasOld, err = indexKeyOf(meta, gsi, oldItem, primary)
			if err != nil {
				return err
			}
		}
		if newItem != nil {
			newKey, hasNew, err = indexKeyOf(meta, gsi, newItem, primary)
			if err != nil {
				return err
			}
		}

		if hasOld && (!hasNew || oldKey != newKey) {
			if _, err := db.deleteRow(ctx, ex, relation, oldKey); err != nil {
				return err
			}
		}
		if hasNew {
			encoded, err := attr.ToJSON(projectItem(meta, gsi, newItem))
			if err != nil {
				return ErrInvalidItem.Wrap(err)
			}
			if err := db.upsertRow(ctx, ex, relation, newKey, []byte(encoded), now); err != nil {
				return err
			}
		}
	}
	return nil
}
