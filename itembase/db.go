// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package itembase implements the item engine of pretender: a
// DynamoDB-compatible document store backed by a relational SQL engine.
package itembase

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/pretender/shared/dbutil"
)

// DB implements the item engine on top of a SQL database.
type DB struct {
	log *zap.Logger
	db  *dbutil.DB

	nowFn func() time.Time
}

// Open opens a connection to the item database.
func Open(ctx context.Context, log *zap.Logger, url string) (*DB, error) {
	sdb, err := dbutil.Open(ctx, url)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	log.Debug("connected", zap.String("implementation", sdb.Impl.String()))

	return &DB{
		log:   log,
		db:    sdb,
		nowFn: time.Now,
	}, nil
}

// Implementation returns the SQL engine the database runs on.
func (db *DB) Implementation() dbutil.Implementation { return db.db.Impl }

// Ping checks whether the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return Error.Wrap(db.db.PingContext(ctx))
}

// Close closes the connection to the database.
func (db *DB) Close() error {
	return Error.Wrap(db.db.Close())
}

// TestingSetNow lets tests control the engine's wall clock.
func (db *DB) TestingSetNow(nowFn func() time.Time) {
	db.nowFn = nowFn
}

// MigrateToLatest creates the metadata relation. Per-table relations are
// created on demand by CreateTable.
func (db *DB) MigrateToLatest(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = db.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS table_metadata (
			name TEXT NOT NULL PRIMARY KEY,
			hash_key TEXT NOT NULL,
			sort_key TEXT,
			global_secondary_indexes `+db.db.JSONType()+` NOT NULL,
			ttl_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			ttl_attribute_name TEXT,
			stream_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			stream_view_type TEXT,
			stream_arn TEXT,
			stream_label TEXT,
			create_date TIMESTAMP NOT NULL
		)`)
	return Error.Wrap(err)
}

// DestroyTables drops all relations including the metadata. Only used to
// reset state in tests.
func (db *DB) DestroyTables(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	for _, prefix := range []string{"pdb_item_%", "pdb_stream_%"} {
		relations, err := db.db.ListRelations(ctx, prefix)
		if err != nil {
			return Error.Wrap(err)
		}
		for _, relation := range relations {
			if err := db.db.DropRelation(ctx, relation); err != nil {
				return Error.Wrap(err)
			}
		}
	}
	return db.db.DropRelation(ctx, "table_metadata")
}

// withTx runs fn inside a SQL transaction, committing on success and
// rolling back on error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return Error.Wrap(err)
	}
	if err := fn(tx); err != nil {
		return errs.Combine(err, tx.Rollback())
	}
	return Error.Wrap(tx.Commit())
}
