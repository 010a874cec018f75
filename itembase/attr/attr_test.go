// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package attr_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/stretchr/testify/require"

	"storj.io/pretender/itembase/attr"
)

func TestJSONRoundTrip(t *testing.T) {
	item := map[string]*dynamodb.AttributeValue{
		"id":     {S: aws.String("u1")},
		"count":  {N: aws.String("42.5")},
		"blob":   {B: []byte{0x01, 0x02, 0xff}},
		"active": {BOOL: aws.Bool(true)},
		"none":   {NULL: aws.Bool(true)},
		"tags":   {SS: aws.StringSlice([]string{"a", "b"})},
		"scores": {NS: aws.StringSlice([]string{"1", "2.5"})},
		"blobs":  {BS: [][]byte{{0x00}, {0x01}}},
		"list": {L: []*dynamodb.AttributeValue{
			{S: aws.String("x")},
			{N: aws.String("7")},
		}},
		"nested": {M: map[string]*dynamodb.AttributeValue{
			"inner": {S: aws.String("y")},
		}},
	}

	data, err := attr.ToJSON(item)
	require.NoError(t, err)

	decoded, err := attr.FromJSON(data)
	require.NoError(t, err)
	require.Len(t, decoded, len(item))
	for name, value := range item {
		require.True(t, attr.Equal(value, decoded[name]), "attribute %q", name)
	}
}

func TestToJSONRejectsEmptyValue(t *testing.T) {
	_, err := attr.ToJSON(map[string]*dynamodb.AttributeValue{
		"broken": {},
	})
	require.Error(t, err)
}

func TestExtractScalarKey(t *testing.T) {
	item := map[string]*dynamodb.AttributeValue{
		"s":    {S: aws.String("hello")},
		"n":    {N: aws.String("123")},
		"b":    {B: []byte("raw")},
		"bool": {BOOL: aws.Bool(true)},
	}

	for _, testcase := range []struct {
		name     string
		expected string
	}{
		{"s", "hello"},
		{"n", "123"},
		{"b", "raw"},
	} {
		value, err := attr.ExtractScalarKey(item, testcase.name)
		require.NoError(t, err)
		require.Equal(t, testcase.expected, value)
	}

	_, err := attr.ExtractScalarKey(item, "missing")
	require.Error(t, err)
	_, err = attr.ExtractScalarKey(item, "bool")
	require.Error(t, err)
	_, err = attr.ExtractScalarKey(map[string]*dynamodb.AttributeValue{
		"empty": {S: aws.String("")},
	}, "empty")
	require.Error(t, err)
}

func TestCompareNumbers(t *testing.T) {
	for _, testcase := range []struct {
		a, b     string
		expected int
	}{
		{"1", "1", 0},
		{"1", "2", -1},
		{"10", "9", 1},
		{"1.5", "1.50", 0},
		{"-1", "1", -1},
		{"0.1", "0.09999999999999999999999999999999", 1},
		{"1e3", "1000", 0},
		{"2.5e-1", "0.25", 0},
	} {
		cmp, err := attr.CompareNumbers(testcase.a, testcase.b)
		require.NoError(t, err, "%s vs %s", testcase.a, testcase.b)
		require.Equal(t, testcase.expected, cmp, "%s vs %s", testcase.a, testcase.b)
	}

	_, err := attr.CompareNumbers("abc", "1")
	require.Error(t, err)
}

func TestAddSubtractNumbers(t *testing.T) {
	sum, err := attr.AddNumbers("1.5", "2.25")
	require.NoError(t, err)
	require.Equal(t, "3.75", sum)

	sum, err = attr.AddNumbers("1", "-3")
	require.NoError(t, err)
	require.Equal(t, "-2", sum)

	diff, err := attr.SubtractNumbers("10", "0.5")
	require.NoError(t, err)
	require.Equal(t, "9.5", diff)

	canonical, err := attr.CanonicalNumber("1.2300e2")
	require.NoError(t, err)
	require.Equal(t, "123", canonical)
}

func TestCompareMismatchedTypes(t *testing.T) {
	s := &dynamodb.AttributeValue{S: aws.String("1")}
	n := &dynamodb.AttributeValue{N: aws.String("1")}

	require.False(t, attr.Equal(s, n))
	_, ordered := attr.Compare(s, n)
	require.False(t, ordered)

	cmp, ordered := attr.Compare(s, &dynamodb.AttributeValue{S: aws.String("2")})
	require.True(t, ordered)
	require.Equal(t, -1, cmp)
}

func TestContains(t *testing.T) {
	require.True(t, attr.Contains(
		&dynamodb.AttributeValue{S: aws.String("hello world")},
		&dynamodb.AttributeValue{S: aws.String("lo wo")},
	))
	require.True(t, attr.Contains(
		&dynamodb.AttributeValue{SS: aws.StringSlice([]string{"a", "b"})},
		&dynamodb.AttributeValue{S: aws.String("b")},
	))
	require.True(t, attr.Contains(
		&dynamodb.AttributeValue{NS: aws.StringSlice([]string{"1.0", "2"})},
		&dynamodb.AttributeValue{N: aws.String("1")},
	))
	require.False(t, attr.Contains(
		&dynamodb.AttributeValue{SS: aws.StringSlice([]string{"a"})},
		&dynamodb.AttributeValue{S: aws.String("x")},
	))
}

func TestCompareNumbersConcurrent(t *testing.T) {
	var group sync.WaitGroup
	for g := 0; g < 16; g++ {
		group.Add(1)
		go func(g int) {
			defer group.Done()
			for i := 0; i < 100; i++ {
				a := fmt.Sprintf("1e%d", (g*7+i)%60)
				b := fmt.Sprintf("-2.5e-%d", (g*11+i)%60)
				cmp, err := attr.CompareNumbers(a, b)
				if err != nil || cmp != 1 {
					t.Errorf("CompareNumbers(%q, %q) = %d, %v", a, b, cmp, err)
					return
				}
			}
		}(g)
	}
	group.Wait()
}
