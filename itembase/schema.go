// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"context"

	"storj.io/pretender/shared/dbutil"
)

// Relation name prefixes. One physical relation per logical table, one per
// global secondary index and one per stream.
const (
	itemRelationPrefix   = "pdb_item_"
	streamRelationPrefix = "pdb_stream_"
)

func itemRelationName(table string) string {
	return itemRelationPrefix + dbutil.SanitizeName(table)
}

func indexRelationName(table, index string) string {
	return itemRelationName(table) + "_gsi_" + dbutil.SanitizeName(index)
}

func streamRelationName(table string) string {
	return streamRelationPrefix + dbutil.SanitizeName(table)
}

// createItemRelation creates the physical relation for a logical table or
// index. withSort decides whether the primary key includes the sort column;
// index relations always include it because their sort value is the
// uniqueness-preserving composite.
func (db *DB) createItemRelation(ctx context.Context, relation string, withSort bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	primaryKey := `PRIMARY KEY (hash_key_value)`
	sortColumn := `sort_key_value VARCHAR(2048),`
	if withSort {
		primaryKey = `PRIMARY KEY (hash_key_value, sort_key_value)`
		sortColumn = `sort_key_value VARCHAR(2048) NOT NULL,`
	}

	_, err = db.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+dbutil.QuoteIdent(relation)+` (
			hash_key_value VARCHAR(2048) NOT NULL,
			`+sortColumn+`
			attributes_json `+db.db.JSONType()+` NOT NULL,
			create_date TIMESTAMP NOT NULL,
			update_date TIMESTAMP NOT NULL,
			`+primaryKey+`
		)`)
	if err != nil {
		return Error.Wrap(err)
	}

	// best-effort; the primary key already covers point lookups
	_, _ = db.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS `+dbutil.QuoteIdent(relation+"_hash_idx")+`
		ON `+dbutil.QuoteIdent(relation)+` (hash_key_value)`)

	return nil
}

// createStreamRelation creates the change-record relation for a table.
// The sequence number is assigned by the engine's autoincrement, so it is
// monotonic per stream; gaps are permitted.
func (db *DB) createStreamRelation(ctx context.Context, table string) (err error) {
	defer mon.Task()(&ctx)(&err)

	relation := streamRelationName(table)
	_, err = db.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+dbutil.QuoteIdent(relation)+` (
			sequence_number `+db.db.AutoIncrementPK()+`,
			event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			approximate_creation_time BIGINT NOT NULL,
			hash_key_value VARCHAR(2048) NOT NULL,
			sort_key_value VARCHAR(2048),
			keys_json `+db.db.JSONType()+` NOT NULL,
			old_image_json `+db.db.JSONType()+`,
			new_image_json `+db.db.JSONType()+`,
			size_bytes BIGINT NOT NULL,
			create_date TIMESTAMP NOT NULL
		)`)
	return Error.Wrap(err)
}

// dropTableRelations drops the item relation, the stream relation and every
// index relation of a logical table. Index relations are discovered by
// listing the catalog for the known prefix, so indexes removed from the
// metadata are swept as well.
func (db *DB) dropTableRelations(ctx context.Context, table string) (err error) {
	defer mon.Task()(&ctx)(&err)

	indexRelations, err := db.db.ListRelations(ctx, itemRelationName(table)+"_gsi_%")
	if err != nil {
		return Error.Wrap(err)
	}
	for _, relation := range indexRelations {
		if err := db.db.DropRelation(ctx, relation); err != nil {
			return Error.Wrap(err)
		}
	}
	if err := db.db.DropRelation(ctx, itemRelationName(table)); err != nil {
		return Error.Wrap(err)
	}
	return db.db.DropRelation(ctx, streamRelationName(table))
}
