// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package expr

import (
	"strings"

	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// KeyCondition is the parsed form of a key-condition expression: the bound
// hash value plus an optional SQL fragment over the sort_key_value column
// with its named binds.
type KeyCondition struct {
	HashValue string
	SortSQL   string
	SortBinds map[string]interface{}
}

// ParseKeyCondition parses the grammar
//
//	hashAttr = :v [AND sortCond]
//
// where sortCond is one of `sortAttr {=,<,>,<=,>=} :v`,
// `sortAttr BETWEEN :lo AND :hi` or `begins_with(sortAttr, :v)`. The two
// conditions may appear in either order.
func ParseKeyCondition(expression string, hashAttr, sortAttr string, names map[string]*string, values map[string]*dynamodb.AttributeValue) (KeyCondition, error) {
	p, err := newParser(expression, names, values)
	if err != nil {
		return KeyCondition{}, err
	}

	var out KeyCondition
	hashSeen := false

	for {
		if err := p.parseKeyClause(hashAttr, sortAttr, &out, &hashSeen); err != nil {
			return KeyCondition{}, err
		}
		if p.done() {
			break
		}
		if err := p.expectKeyword("AND"); err != nil {
			return KeyCondition{}, err
		}
	}

	if !hashSeen {
		return KeyCondition{}, Error.New("missing condition on hash key %q", hashAttr)
	}
	return out, nil
}

func (p *parser) parseKeyClause(hashAttr, sortAttr string, out *KeyCondition, hashSeen *bool) error {
	if p.peekKeyword("begins_with") && p.peekAheadSymbol("(") {
		p.next()
		if err := p.expectSymbol("("); err != nil {
			return err
		}
		name, err := p.attributeName()
		if err != nil {
			return err
		}
		if err := p.expectSymbol(","); err != nil {
			return err
		}
		prefix, err := p.scalarBound()
		if err != nil {
			return err
		}
		if err := p.expectSymbol(")"); err != nil {
			return err
		}
		if sortAttr == "" || name != sortAttr {
			return Error.New("begins_with is only valid on the sort key")
		}
		if out.SortSQL != "" {
			return Error.New("duplicate condition on sort key %q", sortAttr)
		}
		out.SortSQL = `sort_key_value LIKE :sort_a ESCAPE '\'`
		out.SortBinds = map[string]interface{}{"sort_a": escapeLike(prefix) + "%"}
		return nil
	}

	name, err := p.attributeName()
	if err != nil {
		return err
	}

	switch {
	case name == hashAttr:
		if *hashSeen {
			return Error.New("duplicate condition on hash key %q", hashAttr)
		}
		if err := p.expectSymbol("="); err != nil {
			return Error.New("hash key %q only supports equality", hashAttr)
		}
		value, err := p.scalarBound()
		if err != nil {
			return err
		}
		out.HashValue = value
		*hashSeen = true
		return nil

	case sortAttr != "" && name == sortAttr:
		if out.SortSQL != "" {
			return Error.New("duplicate condition on sort key %q", sortAttr)
		}
		if p.peekKeyword("BETWEEN") {
			p.next()
			lo, err := p.scalarBound()
			if err != nil {
				return err
			}
			if err := p.expectKeyword("AND"); err != nil {
				return err
			}
			hi, err := p.scalarBound()
			if err != nil {
				return err
			}
			out.SortSQL = `sort_key_value BETWEEN :sort_a AND :sort_b`
			out.SortBinds = map[string]interface{}{"sort_a": lo, "sort_b": hi}
			return nil
		}
		tok := p.next()
		if tok.kind != tokenSymbol || !isComparator(tok.text) {
			return Error.New("expected comparator after sort key at position %d", tok.pos)
		}
		value, err := p.scalarBound()
		if err != nil {
			return err
		}
		out.SortSQL = `sort_key_value ` + tok.text + ` :sort_a`
		out.SortBinds = map[string]interface{}{"sort_a": value}
		return nil

	default:
		return Error.New("attribute %q is not a key of the target", name)
	}
}

// peekAheadSymbol reports whether the token after the next one is the given
// symbol, without consuming anything.
func (p *parser) peekAheadSymbol(symbol string) bool {
	if p.pos+1 >= len(p.toks) {
		return false
	}
	tok := p.toks[p.pos+1]
	return tok.kind == tokenSymbol && tok.text == symbol
}

func isComparator(s string) bool {
	switch s {
	case "=", "<", ">", "<=", ">=":
		return true
	}
	return false
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
