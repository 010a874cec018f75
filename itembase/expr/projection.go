// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package expr

import (
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// ParseProjection resolves a comma-separated projection expression into a
// list of attribute names.
func ParseProjection(expression string, names map[string]*string) ([]string, error) {
	p, err := newParser(expression, names, nil)
	if err != nil {
		return nil, err
	}

	var out []string
	for {
		name, err := p.attributeName()
		if err != nil {
			return nil, err
		}
		out = append(out, name)
		if p.done() {
			break
		}
		if err := p.expectSymbol(","); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ApplyProjection reduces an attribute map to the named attributes.
// Attributes absent from the source are absent from the result.
func ApplyProjection(item map[string]*dynamodb.AttributeValue, names []string) map[string]*dynamodb.AttributeValue {
	out := make(map[string]*dynamodb.AttributeValue, len(names))
	for _, name := range names {
		if value, ok := item[name]; ok {
			out[name] = value
		}
	}
	return out
}
