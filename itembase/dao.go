// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/zeebo/errs"

	"storj.io/pretender/shared/dbutil"
)

// itemRow is the physical shape of an item or index relation row.
type itemRow struct {
	HashKeyValue   string         `db:"hash_key_value"`
	SortKeyValue   sql.NullString `db:"sort_key_value"`
	AttributesJSON []byte         `db:"attributes_json"`
	CreateDate     time.Time      `db:"create_date"`
	UpdateDate     time.Time      `db:"update_date"`
}

// rowKey identifies a single row in a relation.
type rowKey struct {
	Hash string
	Sort string // empty when the relation has no sort key
}

func sortArg(sort string) interface{} {
	if sort == "" {
		return nil
	}
	return sort
}

// getRow fetches a single row, returning nil when it does not exist.
func (db *DB) getRow(ctx context.Context, ex sqlx.ExtContext, relation string, key rowKey) (_ *itemRow, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := dbutil.NamedQuery(ctx, ex, `
		SELECT hash_key_value, sort_key_value, attributes_json, create_date, update_date
		FROM `+dbutil.QuoteIdent(relation)+`
		WHERE hash_key_value = :hash AND COALESCE(sort_key_value, '') = :sort`,
		map[string]interface{}{
			"hash": key.Hash,
			"sort": key.Sort,
		})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, Error.Wrap(err)
		}
		return nil, nil
	}
	var row itemRow
	if err := rows.StructScan(&row); err != nil {
		return nil, Error.Wrap(err)
	}
	return &row, Error.Wrap(rows.Err())
}

// insertRow inserts a row, failing on primary key conflict.
func (db *DB) insertRow(ctx context.Context, ex sqlx.ExtContext, relation string, key rowKey, attributes []byte, now time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = dbutil.NamedExec(ctx, ex, `
		INSERT INTO `+dbutil.QuoteIdent(relation)+`
			(hash_key_value, sort_key_value, attributes_json, create_date, update_date)
		VALUES
			(:hash, :sort, `+db.db.BindJSON(":attrs")+`, :now, :now)`,
		map[string]interface{}{
			"hash":  key.Hash,
			"sort":  sortArg(key.Sort),
			"attrs": string(attributes),
			"now":   now,
		})
	return Error.Wrap(err)
}

// upsertRow inserts a row or replaces the attributes of an existing one,
// preserving create_date.
func (db *DB) upsertRow(ctx context.Context, ex sqlx.ExtContext, relation string, key rowKey, attributes []byte, now time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)

	conflict := `(hash_key_value)`
	if key.Sort != "" {
		conflict = `(hash_key_value, sort_key_value)`
	}

	_, err = dbutil.NamedExec(ctx, ex, `
		INSERT INTO `+dbutil.QuoteIdent(relation)+`
			(hash_key_value, sort_key_value, attributes_json, create_date, update_date)
		VALUES
			(:hash, :sort, `+db.db.BindJSON(":attrs")+`, :now, :now)
		ON CONFLICT `+conflict+` DO UPDATE SET
			attributes_json = `+db.db.BindJSON(":attrs")+`,
			update_date = :now`,
		map[string]interface{}{
			"hash":  key.Hash,
			"sort":  sortArg(key.Sort),
			"attrs": string(attributes),
			"now":   now,
		})
	return Error.Wrap(err)
}

// deleteRow deletes a single row, reporting whether it existed.
func (db *DB) deleteRow(ctx context.Context, ex sqlx.ExtContext, relation string, key rowKey) (deleted bool, err error) {
	defer mon.Task()(&ctx)(&err)

	res, err := dbutil.NamedExec(ctx, ex, `
		DELETE FROM `+dbutil.QuoteIdent(relation)+`
		WHERE hash_key_value = :hash AND COALESCE(sort_key_value, '') = :sort`,
		map[string]interface{}{
			"hash": key.Hash,
			"sort": key.Sort,
		})
	if err != nil {
		return false, Error.Wrap(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, Error.Wrap(err)
	}
	return affected > 0, nil
}

// queryRows fetches rows of one hash partition in sort order. sortSQL is an
// optional predicate over sort_key_value with its binds in sortBinds.
// exclusiveStart skips rows at or before the given sort value. limit 0 means
// no limit.
func (db *DB) queryRows(ctx context.Context, ex sqlx.ExtContext, relation, hash string, sortSQL string, sortBinds map[string]interface{}, exclusiveStart *rowKey, forward bool, limit int) (_ []itemRow, err error) {
	defer mon.Task()(&ctx)(&err)

	args := map[string]interface{}{"query_hash": hash}
	for name, value := range sortBinds {
		args[name] = value
	}

	var where strings.Builder
	where.WriteString(`hash_key_value = :query_hash`)
	if sortSQL != "" {
		where.WriteString(` AND (` + sortSQL + `)`)
	}
	if exclusiveStart != nil {
		if forward {
			where.WriteString(` AND COALESCE(sort_key_value, '') > :start_sort`)
		} else {
			where.WriteString(` AND COALESCE(sort_key_value, '') < :start_sort`)
		}
		args["start_sort"] = exclusiveStart.Sort
	}

	order := `ORDER BY COALESCE(sort_key_value, '') ASC`
	if !forward {
		order = `ORDER BY COALESCE(sort_key_value, '') DESC`
	}

	query := `
		SELECT hash_key_value, sort_key_value, attributes_json, create_date, update_date
		FROM ` + dbutil.QuoteIdent(relation) + `
		WHERE ` + where.String() + ` ` + order
	if limit > 0 {
		query += ` LIMIT ` + itoa(limit)
	}

	return db.collectRows(ctx, ex, query, args)
}

// scanRows walks a relation across partitions in (hash, sort) order.
func (db *DB) scanRows(ctx context.Context, ex sqlx.ExtContext, relation string, exclusiveStart *rowKey, limit int) (_ []itemRow, err error) {
	defer mon.Task()(&ctx)(&err)

	args := map[string]interface{}{}
	where := ``
	if exclusiveStart != nil {
		where = `
		WHERE hash_key_value > :start_hash
			OR (hash_key_value = :start_hash AND COALESCE(sort_key_value, '') > :start_sort)`
		args["start_hash"] = exclusiveStart.Hash
		args["start_sort"] = exclusiveStart.Sort
	}

	query := `
		SELECT hash_key_value, sort_key_value, attributes_json, create_date, update_date
		FROM ` + dbutil.QuoteIdent(relation) + where + `
		ORDER BY hash_key_value, COALESCE(sort_key_value, '')`
	if limit > 0 {
		query += ` LIMIT ` + itoa(limit)
	}

	return db.collectRows(ctx, ex, query, args)
}

// batchGetRows fetches several rows by key in a single statement.
func (db *DB) batchGetRows(ctx context.Context, ex sqlx.ExtContext, relation string, keys []rowKey) (_ []itemRow, err error) {
	defer mon.Task()(&ctx)(&err)

	if len(keys) == 0 {
		return nil, nil
	}

	var where strings.Builder
	args := map[string]interface{}{}
	for i, key := range keys {
		if i > 0 {
			where.WriteString(` OR `)
		}
		h, s := "h"+itoa(i), "s"+itoa(i)
		where.WriteString(`(hash_key_value = :` + h + ` AND COALESCE(sort_key_value, '') = :` + s + `)`)
		args[h] = key.Hash
		args[s] = key.Sort
	}

	return db.collectRows(ctx, ex, `
		SELECT hash_key_value, sort_key_value, attributes_json, create_date, update_date
		FROM `+dbutil.QuoteIdent(relation)+`
		WHERE `+where.String()+`
		ORDER BY hash_key_value, COALESCE(sort_key_value, '')`, args)
}

func (db *DB) collectRows(ctx context.Context, ex sqlx.ExtContext, query string, args map[string]interface{}) (_ []itemRow, err error) {
	rows, err := dbutil.NamedQuery(ctx, ex, query, args)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var result []itemRow
	for rows.Next() {
		var row itemRow
		if err := rows.StructScan(&row); err != nil {
			return nil, Error.Wrap(err)
		}
		result = append(result, row)
	}
	return result, Error.Wrap(rows.Err())
}

func itoa(n int) string { return strconv.Itoa(n) }
