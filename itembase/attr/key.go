// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package attr

import (
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// ExtractScalarKey returns the scalar value of the named attribute as a
// string: S as-is, N as its decimal text, B as UTF-8 text. It fails when
// the attribute is missing, not scalar, or empty.
func ExtractScalarKey(item map[string]*dynamodb.AttributeValue, name string) (string, error) {
	value, ok := item[name]
	if !ok {
		return "", Error.New("key attribute %q missing", name)
	}
	s, err := ScalarString(value)
	if err != nil {
		return "", Error.New("key attribute %q: %w", name, err)
	}
	return s, nil
}

// ScalarString returns the string form of a scalar S, N or B value.
func ScalarString(value *dynamodb.AttributeValue) (string, error) {
	switch {
	case value == nil:
		return "", Error.New("missing value")
	case value.S != nil:
		if *value.S == "" {
			return "", Error.New("empty string value")
		}
		return *value.S, nil
	case value.N != nil:
		if *value.N == "" {
			return "", Error.New("empty number value")
		}
		return *value.N, nil
	case value.B != nil:
		if len(value.B) == 0 {
			return "", Error.New("empty binary value")
		}
		return string(value.B), nil
	default:
		return "", Error.New("not a scalar value")
	}
}

// IsScalar reports whether the value is of a key-eligible scalar type.
func IsScalar(value *dynamodb.AttributeValue) bool {
	return value != nil && (value.S != nil || value.N != nil || value.B != nil)
}

// TypeTag returns the wire tag of the value, e.g. "S", "N" or "M".
func TypeTag(value *dynamodb.AttributeValue) string {
	switch {
	case value == nil:
		return ""
	case value.S != nil:
		return "S"
	case value.N != nil:
		return "N"
	case value.B != nil:
		return "B"
	case value.BOOL != nil:
		return "BOOL"
	case value.NULL != nil:
		return "NULL"
	case value.L != nil:
		return "L"
	case value.M != nil:
		return "M"
	case value.SS != nil:
		return "SS"
	case value.NS != nil:
		return "NS"
	case value.BS != nil:
		return "BS"
	default:
		return ""
	}
}
