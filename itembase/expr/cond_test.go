// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package expr_test

import (
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/stretchr/testify/require"

	"storj.io/pretender/itembase/expr"
)

func testItem() map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"id":    {S: aws.String("item-1")},
		"v":     {N: aws.String("1")},
		"name":  {S: aws.String("Alice")},
		"blob":  {B: []byte{0x01, 0x02}},
		"tags":  {SS: aws.StringSlice([]string{"red", "green"})},
		"empty": {NULL: aws.Bool(true)},
	}
}

func TestEvalCondition(t *testing.T) {
	vals := map[string]*dynamodb.AttributeValue{
		":one":    {N: aws.String("1")},
		":two":    {N: aws.String("2")},
		":al":     {S: aws.String("Al")},
		":alice":  {S: aws.String("Alice")},
		":red":    {S: aws.String("red")},
		":blue":   {S: aws.String("blue")},
		":five":   {N: aws.String("5")},
		":strone": {S: aws.String("1")},
		":tag":    {S: aws.String("S")},
	}

	for _, testcase := range []struct {
		expression string
		expected   bool
	}{
		{"", true},
		{"v = :one", true},
		{"v = :two", false},
		{"v <> :two", true},
		{"v < :two", true},
		{"v >= :one", true},
		{"v BETWEEN :one AND :two", true},
		{"v BETWEEN :two AND :five", false},
		{"name = :alice AND v = :one", true},
		{"name = :alice AND v = :two", false},
		{"name = :alice OR v = :two", true},
		{"NOT v = :two", true},
		{"NOT (v = :one AND name = :alice)", false},
		{"v = :two OR v = :one AND name = :alice", true}, // AND binds tighter
		{"(v = :two OR v = :one) AND name = :alice", true},
		{"attribute_exists(name)", true},
		{"attribute_exists(missing)", false},
		{"attribute_not_exists(missing)", true},
		{"attribute_not_exists(name)", false},
		{"begins_with(name, :al)", true},
		{"begins_with(name, :red)", false},
		{"contains(tags, :red)", true},
		{"contains(tags, :blue)", false},
		{"v IN (:one, :two)", true},
		{"v IN (:two, :five)", false},
		{"size(name) = :five", true},
		{"attribute_type(name, :tag)", true},
		// missing attribute: every comparison is false
		{"missing = :one", false},
		{"missing <> :one", false},
		{"missing < :one", false},
		{"missing BETWEEN :one AND :two", false},
		// mismatched types: unequal, unordered
		{"v = :strone", false},
		{"v <> :strone", true},
		{"v < :strone", false},
	} {
		result, err := expr.EvalCondition(testcase.expression, nil, vals, testItem())
		require.NoError(t, err, testcase.expression)
		require.Equal(t, testcase.expected, result, testcase.expression)
	}
}

func TestEvalConditionContainsSubstring(t *testing.T) {
	result, err := expr.EvalCondition("contains(name, :al)", nil, map[string]*dynamodb.AttributeValue{
		":al": {S: aws.String("Al")},
	}, testItem())
	require.NoError(t, err)
	require.True(t, result)
}

func TestEvalConditionPlaceholders(t *testing.T) {
	result, err := expr.EvalCondition("#n = :v", map[string]*string{
		"#n": aws.String("name"),
	}, map[string]*dynamodb.AttributeValue{
		":v": {S: aws.String("Alice")},
	}, testItem())
	require.NoError(t, err)
	require.True(t, result)
}

func TestEvalConditionErrors(t *testing.T) {
	for _, expression := range []string{
		"v =",
		"v = :unbound",
		"#unbound = :one",
		"v ! :one",
		"(v = :one",
		"v = :one AND",
		"v = :one extra",
	} {
		_, err := expr.EvalCondition(expression, nil, map[string]*dynamodb.AttributeValue{
			":one": {N: aws.String("1")},
		}, testItem())
		require.Error(t, err, expression)
	}
}
