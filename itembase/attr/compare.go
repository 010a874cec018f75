// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package attr

import (
	"bytes"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// Equal reports semantic equality of two attribute values. Numbers compare
// as decimals, sets compare without regard to order, mismatched types are
// never equal.
func Equal(a, b *dynamodb.AttributeValue) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch {
	case a.S != nil && b.S != nil:
		return *a.S == *b.S
	case a.N != nil && b.N != nil:
		cmp, err := CompareNumbers(*a.N, *b.N)
		return err == nil && cmp == 0
	case a.B != nil && b.B != nil:
		return bytes.Equal(a.B, b.B)
	case a.BOOL != nil && b.BOOL != nil:
		return *a.BOOL == *b.BOOL
	case a.NULL != nil && b.NULL != nil:
		return true
	case a.L != nil && b.L != nil:
		if len(a.L) != len(b.L) {
			return false
		}
		for i := range a.L {
			if !Equal(a.L[i], b.L[i]) {
				return false
			}
		}
		return true
	case a.M != nil && b.M != nil:
		if len(a.M) != len(b.M) {
			return false
		}
		for key, av := range a.M {
			bv, ok := b.M[key]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case a.SS != nil && b.SS != nil:
		return stringSetEqual(aws.StringValueSlice(a.SS), aws.StringValueSlice(b.SS))
	case a.NS != nil && b.NS != nil:
		if len(a.NS) != len(b.NS) {
			return false
		}
		for _, n := range a.NS {
			if !numberSetContains(b.NS, *n) {
				return false
			}
		}
		return true
	case a.BS != nil && b.BS != nil:
		if len(a.BS) != len(b.BS) {
			return false
		}
		for _, el := range a.BS {
			found := false
			for _, other := range b.BS {
				if bytes.Equal(el, other) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders two attribute values. Strings compare by code units,
// numbers as decimals, binary byte-lexicographically. The second return is
// false when the values are of different or unordered types.
func Compare(a, b *dynamodb.AttributeValue) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	switch {
	case a.S != nil && b.S != nil:
		return strings.Compare(*a.S, *b.S), true
	case a.N != nil && b.N != nil:
		cmp, err := CompareNumbers(*a.N, *b.N)
		if err != nil {
			return 0, false
		}
		return cmp, true
	case a.B != nil && b.B != nil:
		return bytes.Compare(a.B, b.B), true
	default:
		return 0, false
	}
}

// Contains implements the contains() predicate: substring match on
// strings, membership on lists and sets.
func Contains(container, operand *dynamodb.AttributeValue) bool {
	if container == nil || operand == nil {
		return false
	}
	switch {
	case container.S != nil && operand.S != nil:
		return strings.Contains(*container.S, *operand.S)
	case container.L != nil:
		for _, el := range container.L {
			if Equal(el, operand) {
				return true
			}
		}
		return false
	case container.SS != nil && operand.S != nil:
		for _, s := range container.SS {
			if *s == *operand.S {
				return true
			}
		}
		return false
	case container.NS != nil && operand.N != nil:
		return numberSetContains(container.NS, *operand.N)
	case container.BS != nil && operand.B != nil:
		for _, b := range container.BS {
			if bytes.Equal(b, operand.B) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func stringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			return false
		}
	}
	return true
}

func numberSetContains(set []*string, n string) bool {
	for _, el := range set {
		cmp, err := CompareNumbers(*el, n)
		if err == nil && cmp == 0 {
			return true
		}
	}
	return false
}
