// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package expr implements the three expression languages of the hosted
// service: key conditions, update expressions and condition/filter
// expressions. All three are hand-written recursive-descent parsers over a
// shared token scanner.
package expr

import (
	"strings"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/zeebo/errs"

	"storj.io/pretender/itembase/attr"
)

// Error is the error class for invalid expressions.
var Error = errs.Class("expression")

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenName  // #placeholder
	tokenValue // :placeholder
	tokenSymbol
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func isIdentStart(r byte) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r byte) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func tokenize(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(' || c == ')' || c == ',' || c == '+' || c == '-' || c == '=':
			toks = append(toks, token{kind: tokenSymbol, text: string(c), pos: i})
			i++
		case c == '<':
			if i+1 < len(input) && (input[i+1] == '=' || input[i+1] == '>') {
				toks = append(toks, token{kind: tokenSymbol, text: input[i : i+2], pos: i})
				i += 2
			} else {
				toks = append(toks, token{kind: tokenSymbol, text: "<", pos: i})
				i++
			}
		case c == '>':
			if i+1 < len(input) && input[i+1] == '=' {
				toks = append(toks, token{kind: tokenSymbol, text: ">=", pos: i})
				i += 2
			} else {
				toks = append(toks, token{kind: tokenSymbol, text: ">", pos: i})
				i++
			}
		case c == '#' || c == ':':
			start := i
			i++
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			if i == start+1 {
				return nil, Error.New("invalid placeholder at position %d", start)
			}
			kind := tokenName
			if c == ':' {
				kind = tokenValue
			}
			toks = append(toks, token{kind: kind, text: input[start:i], pos: start})
		case isIdentStart(c):
			start := i
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			toks = append(toks, token{kind: tokenIdent, text: input[start:i], pos: start})
		default:
			return nil, Error.New("unexpected character %q at position %d", c, i)
		}
	}
	return toks, nil
}

// parser walks a token stream, resolving #name and :value placeholders
// against the per-request maps.
type parser struct {
	toks   []token
	pos    int
	names  map[string]*string
	values map[string]*dynamodb.AttributeValue
}

func newParser(expression string, names map[string]*string, values map[string]*dynamodb.AttributeValue) (*parser, error) {
	toks, err := tokenize(expression)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks, names: names, values: values}, nil
}

func (p *parser) peek() token {
	if p.pos >= len(p.toks) {
		return token{kind: tokenEOF, pos: len(p.toks)}
	}
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *parser) done() bool { return p.peek().kind == tokenEOF }

// peekKeyword reports whether the next token is the given bare word.
func (p *parser) peekKeyword(word string) bool {
	tok := p.peek()
	return tok.kind == tokenIdent && strings.EqualFold(tok.text, word)
}

func (p *parser) expectKeyword(word string) error {
	if !p.peekKeyword(word) {
		return Error.New("expected %s at position %d", word, p.peek().pos)
	}
	p.next()
	return nil
}

func (p *parser) expectSymbol(symbol string) error {
	tok := p.peek()
	if tok.kind != tokenSymbol || tok.text != symbol {
		return Error.New("expected %q at position %d", symbol, tok.pos)
	}
	p.next()
	return nil
}

// attributeName consumes an attribute reference, resolving #placeholders.
func (p *parser) attributeName() (string, error) {
	tok := p.next()
	switch tok.kind {
	case tokenIdent:
		return tok.text, nil
	case tokenName:
		if p.names == nil {
			return "", Error.New("no expression attribute names supplied for %s", tok.text)
		}
		resolved, ok := p.names[tok.text]
		if !ok || resolved == nil {
			return "", Error.New("unresolved attribute name %s", tok.text)
		}
		return *resolved, nil
	default:
		return "", Error.New("expected attribute name at position %d", tok.pos)
	}
}

// boundValue consumes a :value reference.
func (p *parser) boundValue() (*dynamodb.AttributeValue, error) {
	tok := p.next()
	if tok.kind != tokenValue {
		return nil, Error.New("expected value placeholder at position %d", tok.pos)
	}
	value, ok := p.values[tok.text]
	if !ok || value == nil {
		return nil, Error.New("unresolved value %s", tok.text)
	}
	return value, nil
}

// scalarBound consumes a :value reference and returns its scalar string.
func (p *parser) scalarBound() (string, error) {
	value, err := p.boundValue()
	if err != nil {
		return "", err
	}
	s, err := attr.ScalarString(value)
	if err != nil {
		return "", Error.New("non-scalar bind value: %v", err)
	}
	return s, nil
}
