// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package dbutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	for _, testcase := range []struct {
		url    string
		impl   Implementation
		driver string
	}{
		{"postgres://user:pw@host/db", Postgres, "pgx"},
		{"postgresql://user:pw@host/db", Postgres, "pgx"},
		{"cockroach://user:pw@host/db", Postgres, "pgx"},
		{"sqlite3://:memory:", SQLite, "sqlite3"},
		{"sqlite3://test.db", SQLite, "sqlite3"},
	} {
		impl, driver, _, err := ParseURL(testcase.url)
		require.NoError(t, err, testcase.url)
		require.Equal(t, testcase.impl, impl, testcase.url)
		require.Equal(t, testcase.driver, driver, testcase.url)
	}

	_, _, _, err := ParseURL("mysql://host/db")
	require.Error(t, err)
}

func TestSanitizeName(t *testing.T) {
	for _, testcase := range []struct {
		input    string
		expected string
	}{
		{"Users", "users"},
		{"user-table_1", "user-table_1"},
		{"weird name!", "weirdname"},
		{"Ta.ble", "table"},
	} {
		require.Equal(t, testcase.expected, SanitizeName(testcase.input))
	}
}

func TestQuoteIdent(t *testing.T) {
	require.Equal(t, `"pdb_item_users"`, QuoteIdent("pdb_item_users"))
	require.Equal(t, `"evil"`, QuoteIdent(`ev"il`))
}
