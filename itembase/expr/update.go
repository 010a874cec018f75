// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package expr

import (
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"storj.io/pretender/itembase/attr"
)

// ApplyUpdate parses an update expression and applies it to the attribute
// map in place. The clauses SET, REMOVE, ADD and DELETE may appear in any
// order, each at most once. All operand paths refer to the pre-update
// image of the item.
func ApplyUpdate(expression string, names map[string]*string, values map[string]*dynamodb.AttributeValue, item map[string]*dynamodb.AttributeValue) error {
	p, err := newParser(expression, names, values)
	if err != nil {
		return err
	}

	actions, err := p.parseUpdate()
	if err != nil {
		return err
	}

	snapshot := make(map[string]*dynamodb.AttributeValue, len(item))
	for name, value := range item {
		snapshot[name] = value
	}
	for _, action := range actions {
		if err := action.apply(snapshot, item); err != nil {
			return err
		}
	}
	return nil
}

type updateAction interface {
	apply(snapshot, item map[string]*dynamodb.AttributeValue) error
}

func (p *parser) parseUpdate() ([]updateAction, error) {
	var actions []updateAction
	seen := map[string]bool{}

	for !p.done() {
		tok := p.next()
		if tok.kind != tokenIdent {
			return nil, Error.New("expected update clause at position %d", tok.pos)
		}
		clause := strings.ToUpper(tok.text)
		if seen[clause] {
			return nil, Error.New("duplicate %s clause", clause)
		}
		seen[clause] = true

		var parse func() (updateAction, error)
		switch clause {
		case "SET":
			parse = p.parseSetAction
		case "REMOVE":
			parse = p.parseRemoveAction
		case "ADD":
			parse = p.parseAddAction
		case "DELETE":
			parse = p.parseDeleteAction
		default:
			return nil, Error.New("unknown update clause %q", tok.text)
		}

		for {
			action, err := parse()
			if err != nil {
				return nil, err
			}
			actions = append(actions, action)
			if p.peek().kind == tokenSymbol && p.peek().text == "," {
				p.next()
				continue
			}
			break
		}
	}

	if len(actions) == 0 {
		return nil, Error.New("empty update expression")
	}
	return actions, nil
}

// setAction implements `SET path = expr`.
type setAction struct {
	path string
	expr setTerm
}

func (a setAction) apply(snapshot, item map[string]*dynamodb.AttributeValue) error {
	value, err := a.expr.value(snapshot)
	if err != nil {
		return err
	}
	item[a.path] = value
	return nil
}

type setTerm interface {
	value(snapshot map[string]*dynamodb.AttributeValue) (*dynamodb.AttributeValue, error)
}

type pathTerm struct{ name string }

func (t pathTerm) value(snapshot map[string]*dynamodb.AttributeValue) (*dynamodb.AttributeValue, error) {
	v, ok := snapshot[t.name]
	if !ok || v == nil {
		return nil, Error.New("operand attribute %q missing", t.name)
	}
	return v, nil
}

type valueTerm struct{ v *dynamodb.AttributeValue }

func (t valueTerm) value(map[string]*dynamodb.AttributeValue) (*dynamodb.AttributeValue, error) {
	return t.v, nil
}

type ifNotExistsTerm struct {
	path     string
	fallback setTerm
}

func (t ifNotExistsTerm) value(snapshot map[string]*dynamodb.AttributeValue) (*dynamodb.AttributeValue, error) {
	if v, ok := snapshot[t.path]; ok && v != nil {
		return v, nil
	}
	return t.fallback.value(snapshot)
}

type listAppendTerm struct{ left, right setTerm }

func (t listAppendTerm) value(snapshot map[string]*dynamodb.AttributeValue) (*dynamodb.AttributeValue, error) {
	left, err := t.left.value(snapshot)
	if err != nil {
		return nil, err
	}
	right, err := t.right.value(snapshot)
	if err != nil {
		return nil, err
	}
	if left.L == nil || right.L == nil {
		return nil, Error.New("list_append operands must be lists")
	}
	joined := make([]*dynamodb.AttributeValue, 0, len(left.L)+len(right.L))
	joined = append(joined, left.L...)
	joined = append(joined, right.L...)
	return &dynamodb.AttributeValue{L: joined}, nil
}

type arithmeticTerm struct {
	op          string
	left, right setTerm
}

func (t arithmeticTerm) value(snapshot map[string]*dynamodb.AttributeValue) (*dynamodb.AttributeValue, error) {
	left, err := t.left.value(snapshot)
	if err != nil {
		return nil, err
	}
	right, err := t.right.value(snapshot)
	if err != nil {
		return nil, err
	}
	if left.N == nil || right.N == nil {
		return nil, Error.New("arithmetic operands must be numbers")
	}
	var result string
	if t.op == "+" {
		result, err = attr.AddNumbers(*left.N, *right.N)
	} else {
		result, err = attr.SubtractNumbers(*left.N, *right.N)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &dynamodb.AttributeValue{N: aws.String(result)}, nil
}

func (p *parser) parseSetAction() (updateAction, error) {
	path, err := p.attributeName()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("="); err != nil {
		return nil, err
	}
	term, err := p.parseSetTerm()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind == tokenSymbol && (tok.text == "+" || tok.text == "-") {
		p.next()
		right, err := p.parseSetTerm()
		if err != nil {
			return nil, err
		}
		term = arithmeticTerm{op: tok.text, left: term, right: right}
	}
	return setAction{path: path, expr: term}, nil
}

func (p *parser) parseSetTerm() (setTerm, error) {
	tok := p.peek()
	switch {
	case tok.kind == tokenValue:
		value, err := p.boundValue()
		if err != nil {
			return nil, err
		}
		return valueTerm{v: value}, nil

	case tok.kind == tokenIdent && strings.EqualFold(tok.text, "if_not_exists") && p.peekAheadSymbol("("):
		p.next()
		p.next() // (
		path, err := p.attributeName()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(","); err != nil {
			return nil, err
		}
		fallback, err := p.parseSetTerm()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return ifNotExistsTerm{path: path, fallback: fallback}, nil

	case tok.kind == tokenIdent && strings.EqualFold(tok.text, "list_append") && p.peekAheadSymbol("("):
		p.next()
		p.next() // (
		left, err := p.parseSetTerm()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(","); err != nil {
			return nil, err
		}
		right, err := p.parseSetTerm()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return listAppendTerm{left: left, right: right}, nil

	case tok.kind == tokenIdent || tok.kind == tokenName:
		path, err := p.attributeName()
		if err != nil {
			return nil, err
		}
		return pathTerm{name: path}, nil

	default:
		return nil, Error.New("expected SET operand at position %d", tok.pos)
	}
}

// removeAction implements `REMOVE path`.
type removeAction struct{ path string }

func (a removeAction) apply(snapshot, item map[string]*dynamodb.AttributeValue) error {
	delete(item, a.path)
	return nil
}

func (p *parser) parseRemoveAction() (updateAction, error) {
	path, err := p.attributeName()
	if err != nil {
		return nil, err
	}
	return removeAction{path: path}, nil
}

// addAction implements `ADD path :v`: numeric addition or set union,
// creating the attribute when absent.
type addAction struct {
	path  string
	value *dynamodb.AttributeValue
}

func (a addAction) apply(snapshot, item map[string]*dynamodb.AttributeValue) error {
	existing, ok := snapshot[a.path]
	if !ok || existing == nil {
		item[a.path] = a.value
		return nil
	}
	switch {
	case existing.N != nil && a.value.N != nil:
		sum, err := attr.AddNumbers(*existing.N, *a.value.N)
		if err != nil {
			return Error.Wrap(err)
		}
		item[a.path] = &dynamodb.AttributeValue{N: aws.String(sum)}
		return nil
	case existing.SS != nil && a.value.SS != nil:
		item[a.path] = &dynamodb.AttributeValue{SS: unionStringSet(existing.SS, a.value.SS)}
		return nil
	case existing.NS != nil && a.value.NS != nil:
		item[a.path] = &dynamodb.AttributeValue{NS: unionNumberSet(existing.NS, a.value.NS)}
		return nil
	case existing.BS != nil && a.value.BS != nil:
		item[a.path] = &dynamodb.AttributeValue{BS: unionBinarySet(existing.BS, a.value.BS)}
		return nil
	default:
		return Error.New("ADD requires matching number or set types for %q", a.path)
	}
}

func (p *parser) parseAddAction() (updateAction, error) {
	path, err := p.attributeName()
	if err != nil {
		return nil, err
	}
	value, err := p.boundValue()
	if err != nil {
		return nil, err
	}
	return addAction{path: path, value: value}, nil
}

// deleteAction implements `DELETE path :v`: set difference, dropping the
// attribute when the set becomes empty.
type deleteAction struct {
	path  string
	value *dynamodb.AttributeValue
}

func (a deleteAction) apply(snapshot, item map[string]*dynamodb.AttributeValue) error {
	existing, ok := snapshot[a.path]
	if !ok || existing == nil {
		return nil
	}
	var remaining *dynamodb.AttributeValue
	switch {
	case existing.SS != nil && a.value.SS != nil:
		kept := diffStringSet(existing.SS, a.value.SS)
		if len(kept) > 0 {
			remaining = &dynamodb.AttributeValue{SS: kept}
		}
	case existing.NS != nil && a.value.NS != nil:
		kept := diffNumberSet(existing.NS, a.value.NS)
		if len(kept) > 0 {
			remaining = &dynamodb.AttributeValue{NS: kept}
		}
	case existing.BS != nil && a.value.BS != nil:
		kept := diffBinarySet(existing.BS, a.value.BS)
		if len(kept) > 0 {
			remaining = &dynamodb.AttributeValue{BS: kept}
		}
	default:
		return Error.New("DELETE requires matching set types for %q", a.path)
	}
	if remaining == nil {
		delete(item, a.path)
	} else {
		item[a.path] = remaining
	}
	return nil
}

func (p *parser) parseDeleteAction() (updateAction, error) {
	path, err := p.attributeName()
	if err != nil {
		return nil, err
	}
	value, err := p.boundValue()
	if err != nil {
		return nil, err
	}
	return deleteAction{path: path, value: value}, nil
}

func unionStringSet(a, b []*string) []*string {
	out := append([]*string{}, a...)
	for _, el := range b {
		found := false
		for _, existing := range out {
			if *existing == *el {
				found = true
				break
			}
		}
		if !found {
			out = append(out, el)
		}
	}
	return out
}

func unionNumberSet(a, b []*string) []*string {
	out := append([]*string{}, a...)
	for _, el := range b {
		if !numberIn(out, *el) {
			out = append(out, el)
		}
	}
	return out
}

func unionBinarySet(a, b [][]byte) [][]byte {
	out := append([][]byte{}, a...)
	for _, el := range b {
		if !binaryIn(out, el) {
			out = append(out, el)
		}
	}
	return out
}

func diffStringSet(a, b []*string) []*string {
	var out []*string
	for _, el := range a {
		found := false
		for _, removed := range b {
			if *el == *removed {
				found = true
				break
			}
		}
		if !found {
			out = append(out, el)
		}
	}
	return out
}

func diffNumberSet(a, b []*string) []*string {
	var out []*string
	for _, el := range a {
		if !numberIn(b, *el) {
			out = append(out, el)
		}
	}
	return out
}

func diffBinarySet(a, b [][]byte) [][]byte {
	var out [][]byte
	for _, el := range a {
		if !binaryIn(b, el) {
			out = append(out, el)
		}
	}
	return out
}

func numberIn(set []*string, n string) bool {
	for _, el := range set {
		cmp, err := attr.CompareNumbers(*el, n)
		if err == nil && cmp == 0 {
			return true
		}
	}
	return false
}

func binaryIn(set [][]byte, b []byte) bool {
	for _, el := range set {
		if string(el) == string(b) {
			return true
		}
	}
	return false
}
