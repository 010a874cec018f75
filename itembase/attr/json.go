// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package attr implements the codec between the SDK attribute-value union
// and its JSON wire form. Numbers are carried as strings to preserve
// precision and binary values round-trip as base64.
package attr

import (
	"encoding/base64"
	"encoding/json"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/zeebo/errs"
)

// Error is the default error class for attribute codec failures.
var Error = errs.Class("attr")

// ToJSON encodes an attribute map into wire-tagged JSON,
// e.g. {"id":{"S":"u1"},"count":{"N":"3"}}.
func ToJSON(item map[string]*dynamodb.AttributeValue) (string, error) {
	encoded := make(map[string]interface{}, len(item))
	for name, value := range item {
		ev, err := encodeValue(value)
		if err != nil {
			return "", Error.New("attribute %q: %w", name, err)
		}
		encoded[name] = ev
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return "", Error.Wrap(err)
	}
	return string(data), nil
}

// FromJSON decodes wire-tagged JSON into an attribute map.
func FromJSON(data string) (map[string]*dynamodb.AttributeValue, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, Error.Wrap(err)
	}
	item := make(map[string]*dynamodb.AttributeValue, len(raw))
	for name, rawValue := range raw {
		value, err := decodeValue(rawValue)
		if err != nil {
			return nil, Error.New("attribute %q: %w", name, err)
		}
		item[name] = value
	}
	return item, nil
}

func encodeValue(v *dynamodb.AttributeValue) (map[string]interface{}, error) {
	switch {
	case v == nil:
		return nil, errs.New("missing value")
	case v.S != nil:
		return map[string]interface{}{"S": *v.S}, nil
	case v.N != nil:
		return map[string]interface{}{"N": *v.N}, nil
	case v.B != nil:
		return map[string]interface{}{"B": base64.StdEncoding.EncodeToString(v.B)}, nil
	case v.BOOL != nil:
		return map[string]interface{}{"BOOL": *v.BOOL}, nil
	case v.NULL != nil:
		return map[string]interface{}{"NULL": true}, nil
	case v.L != nil:
		list := make([]interface{}, 0, len(v.L))
		for _, el := range v.L {
			ev, err := encodeValue(el)
			if err != nil {
				return nil, err
			}
			list = append(list, ev)
		}
		return map[string]interface{}{"L": list}, nil
	case v.M != nil:
		m := make(map[string]interface{}, len(v.M))
		for key, el := range v.M {
			ev, err := encodeValue(el)
			if err != nil {
				return nil, err
			}
			m[key] = ev
		}
		return map[string]interface{}{"M": m}, nil
	case v.SS != nil:
		return map[string]interface{}{"SS": aws.StringValueSlice(v.SS)}, nil
	case v.NS != nil:
		return map[string]interface{}{"NS": aws.StringValueSlice(v.NS)}, nil
	case v.BS != nil:
		set := make([]string, 0, len(v.BS))
		for _, b := range v.BS {
			set = append(set, base64.StdEncoding.EncodeToString(b))
		}
		return map[string]interface{}{"BS": set}, nil
	default:
		return nil, errs.New("empty value")
	}
}

func decodeValue(raw json.RawMessage) (*dynamodb.AttributeValue, error) {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return nil, errs.Wrap(err)
	}
	if len(tagged) != 1 {
		return nil, errs.New("expected exactly one type tag, got %d", len(tagged))
	}

	for tag, body := range tagged {
		switch tag {
		case "S":
			var s string
			if err := json.Unmarshal(body, &s); err != nil {
				return nil, errs.Wrap(err)
			}
			return &dynamodb.AttributeValue{S: aws.String(s)}, nil
		case "N":
			var n string
			if err := json.Unmarshal(body, &n); err != nil {
				return nil, errs.Wrap(err)
			}
			return &dynamodb.AttributeValue{N: aws.String(n)}, nil
		case "B":
			var b64 string
			if err := json.Unmarshal(body, &b64); err != nil {
				return nil, errs.Wrap(err)
			}
			b, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				return nil, errs.Wrap(err)
			}
			return &dynamodb.AttributeValue{B: b}, nil
		case "BOOL":
			var b bool
			if err := json.Unmarshal(body, &b); err != nil {
				return nil, errs.Wrap(err)
			}
			return &dynamodb.AttributeValue{BOOL: aws.Bool(b)}, nil
		case "NULL":
			return &dynamodb.AttributeValue{NULL: aws.Bool(true)}, nil
		case "L":
			var elems []json.RawMessage
			if err := json.Unmarshal(body, &elems); err != nil {
				return nil, errs.Wrap(err)
			}
			list := make([]*dynamodb.AttributeValue, 0, len(elems))
			for _, el := range elems {
				v, err := decodeValue(el)
				if err != nil {
					return nil, err
				}
				list = append(list, v)
			}
			return &dynamodb.AttributeValue{L: list}, nil
		case "M":
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(body, &fields); err != nil {
				return nil, errs.Wrap(err)
			}
			m := make(map[string]*dynamodb.AttributeValue, len(fields))
			for key, el := range fields {
				v, err := decodeValue(el)
				if err != nil {
					return nil, err
				}
				m[key] = v
			}
			return &dynamodb.AttributeValue{M: m}, nil
		case "SS":
			var set []string
			if err := json.Unmarshal(body, &set); err != nil {
				return nil, errs.Wrap(err)
			}
			return &dynamodb.AttributeValue{SS: aws.StringSlice(set)}, nil
		case "NS":
			var set []string
			if err := json.Unmarshal(body, &set); err != nil {
				return nil, errs.Wrap(err)
			}
			return &dynamodb.AttributeValue{NS: aws.StringSlice(set)}, nil
		case "BS":
			var set []string
			if err := json.Unmarshal(body, &set); err != nil {
				return nil, errs.Wrap(err)
			}
			bs := make([][]byte, 0, len(set))
			for _, b64 := range set {
				b, err := base64.StdEncoding.DecodeString(b64)
				if err != nil {
					return nil, errs.Wrap(err)
				}
				bs = append(bs, b)
			}
			return &dynamodb.AttributeValue{BS: bs}, nil
		default:
			return nil, errs.New("unknown type tag %q", tag)
		}
	}
	return nil, errs.New("empty value")
}
