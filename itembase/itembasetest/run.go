// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package itembasetest provides a harness running tests against an
// in-memory SQL backed item engine.
package itembasetest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/pretender/itembase"
)

// Run opens a fresh in-memory engine, migrates it and calls fn.
func Run(t *testing.T, fn func(ctx *testcontext.Context, t *testing.T, db *itembase.DB)) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	log := zaptest.NewLogger(t)
	db, err := itembase.Open(ctx, log, "sqlite3://:memory:")
	require.NoError(t, err)
	defer ctx.Check(db.Close)

	require.NoError(t, db.MigrateToLatest(ctx))

	fn(ctx, t, db)
}
