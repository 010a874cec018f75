// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package expr

import (
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"storj.io/pretender/itembase/attr"
)

// EvalCondition parses and evaluates a condition or filter expression
// against an attribute map. A nil or empty expression evaluates true.
// A predicate referencing a missing attribute evaluates false, except
// attribute_not_exists, which evaluates true.
func EvalCondition(expression string, names map[string]*string, values map[string]*dynamodb.AttributeValue, item map[string]*dynamodb.AttributeValue) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}
	p, err := newParser(expression, names, values)
	if err != nil {
		return false, err
	}
	node, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if !p.done() {
		return false, Error.New("unexpected token at position %d", p.peek().pos)
	}
	return node.eval(item), nil
}

type condNode interface {
	eval(item map[string]*dynamodb.AttributeValue) bool
}

// operand resolves to an attribute value at evaluation time.
type operand interface {
	resolve(item map[string]*dynamodb.AttributeValue) (*dynamodb.AttributeValue, bool)
}

type pathOperand struct{ name string }

func (o pathOperand) resolve(item map[string]*dynamodb.AttributeValue) (*dynamodb.AttributeValue, bool) {
	v, ok := item[o.name]
	return v, ok && v != nil
}

type valueOperand struct{ value *dynamodb.AttributeValue }

func (o valueOperand) resolve(map[string]*dynamodb.AttributeValue) (*dynamodb.AttributeValue, bool) {
	return o.value, true
}

type sizeOperand struct{ name string }

func (o sizeOperand) resolve(item map[string]*dynamodb.AttributeValue) (*dynamodb.AttributeValue, bool) {
	v, ok := item[o.name]
	if !ok || v == nil {
		return nil, false
	}
	var n int
	switch {
	case v.S != nil:
		n = len(*v.S)
	case v.B != nil:
		n = len(v.B)
	case v.L != nil:
		n = len(v.L)
	case v.M != nil:
		n = len(v.M)
	case v.SS != nil:
		n = len(v.SS)
	case v.NS != nil:
		n = len(v.NS)
	case v.BS != nil:
		n = len(v.BS)
	default:
		return nil, false
	}
	return &dynamodb.AttributeValue{N: aws.String(strconv.Itoa(n))}, true
}

type orNode struct{ left, right condNode }

func (n orNode) eval(item map[string]*dynamodb.AttributeValue) bool {
	return n.left.eval(item) || n.right.eval(item)
}

type andNode struct{ left, right condNode }

func (n andNode) eval(item map[string]*dynamodb.AttributeValue) bool {
	return n.left.eval(item) && n.right.eval(item)
}

type notNode struct{ inner condNode }

func (n notNode) eval(item map[string]*dynamodb.AttributeValue) bool {
	return !n.inner.eval(item)
}

type cmpNode struct {
	op          string
	left, right operand
}

func (n cmpNode) eval(item map[string]*dynamodb.AttributeValue) bool {
	left, lok := n.left.resolve(item)
	right, rok := n.right.resolve(item)
	if !lok || !rok {
		return false
	}
	switch n.op {
	case "=":
		return attr.Equal(left, right)
	case "<>":
		return !attr.Equal(left, right)
	default:
		cmp, ordered := attr.Compare(left, right)
		if !ordered {
			return false
		}
		switch n.op {
		case "<":
			return cmp < 0
		case "<=":
			return cmp <= 0
		case ">":
			return cmp > 0
		case ">=":
			return cmp >= 0
		}
		return false
	}
}

type betweenNode struct{ value, lo, hi operand }

func (n betweenNode) eval(item map[string]*dynamodb.AttributeValue) bool {
	value, ok := n.value.resolve(item)
	if !ok {
		return false
	}
	lo, ok := n.lo.resolve(item)
	if !ok {
		return false
	}
	hi, ok := n.hi.resolve(item)
	if !ok {
		return false
	}
	cmpLo, ordered := attr.Compare(value, lo)
	if !ordered || cmpLo < 0 {
		return false
	}
	cmpHi, ordered := attr.Compare(value, hi)
	return ordered && cmpHi <= 0
}

type inNode struct {
	value   operand
	options []operand
}

func (n inNode) eval(item map[string]*dynamodb.AttributeValue) bool {
	value, ok := n.value.resolve(item)
	if !ok {
		return false
	}
	for _, option := range n.options {
		if candidate, ok := option.resolve(item); ok && attr.Equal(value, candidate) {
			return true
		}
	}
	return false
}

type existsNode struct {
	name   string
	negate bool
}

func (n existsNode) eval(item map[string]*dynamodb.AttributeValue) bool {
	v, ok := item[n.name]
	exists := ok && v != nil
	if n.negate {
		return !exists
	}
	return exists
}

type beginsWithNode struct {
	path  operand
	value operand
}

func (n beginsWithNode) eval(item map[string]*dynamodb.AttributeValue) bool {
	v, ok := n.path.resolve(item)
	if !ok {
		return false
	}
	prefix, ok := n.value.resolve(item)
	if !ok {
		return false
	}
	switch {
	case v.S != nil && prefix.S != nil:
		return strings.HasPrefix(*v.S, *prefix.S)
	case v.B != nil && prefix.B != nil:
		return len(v.B) >= len(prefix.B) && string(v.B[:len(prefix.B)]) == string(prefix.B)
	default:
		return false
	}
}

type containsNode struct {
	path  operand
	value operand
}

func (n containsNode) eval(item map[string]*dynamodb.AttributeValue) bool {
	container, ok := n.path.resolve(item)
	if !ok {
		return false
	}
	needle, ok := n.value.resolve(item)
	if !ok {
		return false
	}
	return attr.Contains(container, needle)
}

type typeNode struct {
	path operand
	tag  string
}

func (n typeNode) eval(item map[string]*dynamodb.AttributeValue) bool {
	v, ok := n.path.resolve(item)
	return ok && attr.TypeTag(v) == n.tag
}

func (p *parser) parseOr() (condNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peekKeyword("OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (condNode, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peekKeyword("AND") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (condNode, error) {
	if p.peekKeyword("NOT") {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.parseCondPrimary()
}

func (p *parser) parseCondPrimary() (condNode, error) {
	tok := p.peek()
	if tok.kind == tokenSymbol && tok.text == "(" {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	if tok.kind == tokenIdent && p.peekAheadSymbol("(") {
		switch strings.ToLower(tok.text) {
		case "attribute_exists", "attribute_not_exists":
			p.next()
			p.next() // (
			name, err := p.attributeName()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			return existsNode{name: name, negate: strings.EqualFold(tok.text, "attribute_not_exists")}, nil

		case "begins_with", "contains", "attribute_type":
			p.next()
			p.next() // (
			path, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(","); err != nil {
				return nil, err
			}
			arg, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			switch strings.ToLower(tok.text) {
			case "begins_with":
				return beginsWithNode{path: path, value: arg}, nil
			case "contains":
				return containsNode{path: path, value: arg}, nil
			default:
				value, ok := arg.(valueOperand)
				if !ok || value.value.S == nil {
					return nil, Error.New("attribute_type expects a string type tag")
				}
				return typeNode{path: path, tag: *value.value.S}, nil
			}
		}
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	switch {
	case p.peekKeyword("BETWEEN"):
		p.next()
		lo, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return nil, err
		}
		hi, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return betweenNode{value: left, lo: lo, hi: hi}, nil

	case p.peekKeyword("IN"):
		p.next()
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		var options []operand
		for {
			option, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			options = append(options, option)
			if p.peek().kind == tokenSymbol && p.peek().text == "," {
				p.next()
				continue
			}
			break
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return inNode{value: left, options: options}, nil

	default:
		op := p.next()
		if op.kind != tokenSymbol || (!isComparator(op.text) && op.text != "<>") {
			return nil, Error.New("expected comparator at position %d", op.pos)
		}
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return cmpNode{op: op.text, left: left, right: right}, nil
	}
}

func (p *parser) parseOperand() (operand, error) {
	tok := p.peek()
	switch {
	case tok.kind == tokenValue:
		value, err := p.boundValue()
		if err != nil {
			return nil, err
		}
		return valueOperand{value: value}, nil

	case tok.kind == tokenIdent && strings.EqualFold(tok.text, "size") && p.peekAheadSymbol("("):
		p.next()
		p.next() // (
		name, err := p.attributeName()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return sizeOperand{name: name}, nil

	case tok.kind == tokenIdent || tok.kind == tokenName:
		name, err := p.attributeName()
		if err != nil {
			return nil, err
		}
		return pathOperand{name: name}, nil

	default:
		return nil, Error.New("expected operand at position %d", tok.pos)
	}
}
