// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package itembase

import (
	"strconv"

	"github.com/aws/aws-sdk-go/service/dynamodb"

	"storj.io/pretender/itembase/attr"
)

// primaryKeyOf extracts the primary key of an item per the table schema.
func primaryKeyOf(meta TableMetadata, item map[string]*dynamodb.AttributeValue) (rowKey, error) {
	hash, err := attr.ExtractScalarKey(item, meta.HashKey)
	if err != nil {
		return rowKey{}, ErrInvalidItem.Wrap(err)
	}
	if len(hash) > MaxKeyValueSize {
		return rowKey{}, ErrInvalidItem.New("hash key value exceeds %d bytes", MaxKeyValueSize)
	}
	key := rowKey{Hash: hash}
	if meta.HasSortKey() {
		sort, err := attr.ExtractScalarKey(item, meta.SortKey)
		if err != nil {
			return rowKey{}, ErrInvalidItem.Wrap(err)
		}
		if len(sort) > MaxKeyValueSize {
			return rowKey{}, ErrInvalidItem.New("sort key value exceeds %d bytes", MaxKeyValueSize)
		}
		key.Sort = sort
	}
	return key, nil
}

// encodeItem validates an item against the table schema and returns its
// primary key and JSON encoding.
func encodeItem(meta TableMetadata, item map[string]*dynamodb.AttributeValue) (rowKey, string, error) {
	key, err := primaryKeyOf(meta, item)
	if err != nil {
		return rowKey{}, "", err
	}
	for name, value := range item {
		if err := validateAttribute(name, value); err != nil {
			return rowKey{}, "", err
		}
	}
	encoded, err := attr.ToJSON(item)
	if err != nil {
		return rowKey{}, "", ErrInvalidItem.Wrap(err)
	}
	if len(encoded) > MaxItemSize {
		return rowKey{}, "", ErrItemTooLarge.New("item is %d bytes, the cap is %d", len(encoded), MaxItemSize)
	}
	return key, encoded, nil
}

// validateAttribute walks an attribute value tree rejecting empty string set
// members and zero-length binary values, including inside lists and maps.
func validateAttribute(name string, value *dynamodb.AttributeValue) error {
	if value == nil {
		return ErrInvalidItem.New("attribute %q has no value", name)
	}
	if value.B != nil && len(value.B) == 0 {
		return ErrInvalidItem.New("attribute %q holds a zero-length binary value", name)
	}
	for _, member := range value.SS {
		if member == nil || *member == "" {
			return ErrInvalidItem.New("attribute %q holds an empty string set member", name)
		}
	}
	for _, member := range value.BS {
		if len(member) == 0 {
			return ErrInvalidItem.New("attribute %q holds a zero-length binary set member", name)
		}
	}
	for i, element := range value.L {
		if err := validateAttribute(name+"["+strconv.Itoa(i)+"]", element); err != nil {
			return err
		}
	}
	for sub, element := range value.M {
		if err := validateAttribute(name+"."+sub, element); err != nil {
			return err
		}
	}
	return nil
}

// decodeItem decodes the stored JSON form of an item.
func decodeItem(attributes []byte) (map[string]*dynamodb.AttributeValue, error) {
	item, err := attr.FromJSON(string(attributes))
	return item, Error.Wrap(err)
}

// keyAttributesOf returns just the primary key attributes of an item, the
// shape used for LastEvaluatedKey and stream record keys.
func keyAttributesOf(meta TableMetadata, item map[string]*dynamodb.AttributeValue) map[string]*dynamodb.AttributeValue {
	keys := map[string]*dynamodb.AttributeValue{
		meta.HashKey: item[meta.HashKey],
	}
	if meta.HasSortKey() {
		keys[meta.SortKey] = item[meta.SortKey]
	}
	return keys
}
