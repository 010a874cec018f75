// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"

	"storj.io/pretender/shared/dbutil"
)

// StreamRecord is one change record read back from a stream relation.
type StreamRecord struct {
	SequenceNumber  int64          `db:"sequence_number"`
	EventID         string         `db:"event_id"`
	EventType       string         `db:"event_type"`
	ApproximateTime int64          `db:"approximate_creation_time"`
	HashKeyValue    string         `db:"hash_key_value"`
	SortKeyValue    sql.NullString `db:"sort_key_value"`
	KeysJSON        []byte         `db:"keys_json"`
	OldImageJSON    []byte         `db:"old_image_json"`
	NewImageJSON    []byte         `db:"new_image_json"`
	SizeBytes       int64          `db:"size_bytes"`
	CreateDate      time.Time      `db:"create_date"`
}

// StreamSequenceRange returns the lowest and highest sequence numbers of a
// stream. Both are zero when the stream is empty.
func (db *DB) StreamSequenceRange(ctx context.Context, table string) (min, max int64, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.db.QueryContext(ctx, `
		SELECT COALESCE(MIN(sequence_number), 0), COALESCE(MAX(sequence_number), 0)
		FROM `+dbutil.QuoteIdent(streamRelationName(table)))
	if err != nil {
		return 0, 0, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	if rows.Next() {
		if err := rows.Scan(&min, &max); err != nil {
			return 0, 0, Error.Wrap(err)
		}
	}
	return min, max, Error.Wrap(rows.Err())
}

// StreamRecordsAfter returns up to limit records with sequence numbers
// strictly greater than after, in sequence order.
func (db *DB) StreamRecordsAfter(ctx context.Context, table string, after int64, limit int) (_ []StreamRecord, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := dbutil.NamedQuery(ctx, db.db, `
		SELECT sequence_number, event_id, event_type, approximate_creation_time,
			hash_key_value, sort_key_value, keys_json,
			old_image_json, new_image_json, size_bytes, create_date
		FROM `+dbutil.QuoteIdent(streamRelationName(table))+`
		WHERE sequence_number > :after
		ORDER BY sequence_number
		LIMIT `+itoa(limit),
		map[string]interface{}{"after": after})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var records []StreamRecord
	for rows.Next() {
		var record StreamRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, Error.Wrap(err)
		}
		records = append(records, record)
	}
	return records, Error.Wrap(rows.Err())
}

// TrimStreamRecords deletes records created before the cutoff and returns
// how many were removed.
func (db *DB) TrimStreamRecords(ctx context.Context, table string, cutoff time.Time) (trimmed int64, err error) {
	defer mon.Task()(&ctx)(&err)

	res, err := dbutil.NamedExec(ctx, db.db, `
		DELETE FROM `+dbutil.QuoteIdent(streamRelationName(table))+`
		WHERE create_date < :cutoff`,
		map[string]interface{}{"cutoff": cutoff})
	if err != nil {
		return 0, Error.Wrap(err)
	}
	trimmed, err = res.RowsAffected()
	return trimmed, Error.Wrap(err)
}
