// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package shellvalue parses the textual output of a shell run under
// `set -o posix; set` into typed values: a scalar, an indexed array, or an
// associative array, per the closed word grammar below (not general bash
// word-splitting — only the escape forms a POSIX `set` dump actually
// produces).
package shellvalue

import (
	"fmt"
	"strconv"
	"strings"
)

// indexedArrayLimit is the threshold below which an array's integer keys
// make it "indexed" rather than "associative".
const indexedArrayLimit = 1000

// Kind discriminates the ShellValue union.
type Kind int

const (
	KindScalar Kind = iota
	KindIndexedArray
	KindAssociativeArray
)

// Value is the ShellValue tagged union: exactly one field is meaningful,
// selected by Kind.
type Value struct {
	Kind   Kind
	Scalar string
	Array  []string          // KindIndexedArray
	Map    map[string]string // KindAssociativeArray
}

func (v *Value) String() string {
	switch v.Kind {
	case KindScalar:
		return v.Scalar
	case KindIndexedArray:
		return fmt.Sprintf("%v", v.Array)
	case KindAssociativeArray:
		return fmt.Sprintf("%v", v.Map)
	default:
		return ""
	}
}

// Vars maps shell variable names to their parsed values.
type Vars map[string]*Value

// Parse parses the full textual output of `set -o posix; set`.
func Parse(data string) (Vars, error) {
	p := &parser{s: data}
	vars := Vars{}
	for !p.atEOF() {
		p.skipNewlines()
		if p.atEOF() {
			break
		}
		name, err := p.scanName()
		if err != nil {
			return nil, err
		}
		if err := p.expect('='); err != nil {
			return nil, fmt.Errorf("shellvalue: variable %q: %w", name, err)
		}
		v, err := p.scanValue()
		if err != nil {
			return nil, fmt.Errorf("shellvalue: variable %q: %w", name, err)
		}
		if !p.atEOF() {
			if err := p.expect('\n'); err != nil {
				return nil, fmt.Errorf("shellvalue: variable %q: %w", name, err)
			}
		}
		vars[name] = v
	}
	return vars, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) atEOF() bool { return p.pos >= len(p.s) }

func (p *parser) peek() byte {
	if p.atEOF() {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) skipNewlines() {
	for !p.atEOF() && p.peek() == '\n' {
		p.pos++
	}
}

func (p *parser) expect(c byte) error {
	if p.atEOF() || p.peek() != c {
		return fmt.Errorf("expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}

func (p *parser) scanName() (string, error) {
	start := p.pos
	if p.atEOF() || !(isLetter(p.peek()) || p.peek() == '_') {
		return "", fmt.Errorf("shellvalue: invalid variable name at offset %d", p.pos)
	}
	p.pos++
	for !p.atEOF() && (isLetter(p.peek()) || isDigit(p.peek()) || p.peek() == '_') {
		p.pos++
	}
	return p.s[start:p.pos], nil
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

// scanValue scans either an array literal or a (possibly empty) scalar word
// run, stopping before an unescaped newline.
func (p *parser) scanValue() (*Value, error) {
	if p.peek() == '(' {
		return p.scanArray()
	}
	s, err := p.scanWordRun()
	if err != nil {
		return nil, err
	}
	return &Value{Kind: KindScalar, Scalar: s}, nil
}

func (p *parser) scanArray() (*Value, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	entries := map[string]string{}
	for {
		p.skipSpaces()
		if p.peek() == ')' {
			p.pos++
			break
		}
		if p.atEOF() {
			return nil, fmt.Errorf("unterminated array literal")
		}
		if err := p.expect('['); err != nil {
			return nil, err
		}
		keyStart := p.pos
		for !p.atEOF() && p.peek() != ']' {
			p.pos++
		}
		key := p.s[keyStart:p.pos]
		if err := p.expect(']'); err != nil {
			return nil, err
		}
		if err := p.expect('='); err != nil {
			return nil, err
		}
		word, err := p.scanWord()
		if err != nil {
			return nil, err
		}
		entries[key] = word
	}
	return classify(entries), nil
}

func (p *parser) skipSpaces() {
	for !p.atEOF() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

// scanWordRun scans a whitespace-delimited run of words up to (but not
// consuming) an unescaped newline, concatenating them (the grammar defines a
// scalar VALUE as "a possibly-empty concatenation of words").
func (p *parser) scanWordRun() (string, error) {
	var b strings.Builder
	for !p.atEOF() && p.peek() != '\n' {
		if p.peek() == ' ' || p.peek() == '\t' {
			p.pos++
			continue
		}
		w, err := p.scanWord()
		if err != nil {
			return "", err
		}
		b.WriteString(w)
	}
	return b.String(), nil
}

// metachars are the characters a bare (unquoted, unescaped) run of word
// characters must not contain.
const metachars = "|&;<>()$`\\\"' \t\n[]"

func (p *parser) scanWord() (string, error) {
	var b strings.Builder
	wroteAny := false
	for !p.atEOF() {
		c := p.peek()
		switch {
		case c == '\\':
			p.pos++
			if p.atEOF() {
				return "", fmt.Errorf("trailing backslash")
			}
			b.WriteByte(p.peek())
			p.pos++
			wroteAny = true
		case c == '\'':
			s, err := p.scanSingleQuoted()
			if err != nil {
				return "", err
			}
			b.WriteString(s)
			wroteAny = true
		case c == '"':
			s, err := p.scanDoubleQuoted()
			if err != nil {
				return "", err
			}
			b.WriteString(s)
			wroteAny = true
		case c == '$' && p.pos+1 < len(p.s) && p.s[p.pos+1] == '\'':
			p.pos++
			s, err := p.scanAnsiCQuoted()
			if err != nil {
				return "", err
			}
			b.WriteString(s)
			wroteAny = true
		case strings.IndexByte(metachars, c) >= 0:
			if !wroteAny {
				return "", fmt.Errorf("unexpected %q at offset %d", c, p.pos)
			}
			return b.String(), nil
		default:
			b.WriteByte(c)
			p.pos++
			wroteAny = true
		}
	}
	return b.String(), nil
}

func (p *parser) scanSingleQuoted() (string, error) {
	p.pos++ // opening '
	start := p.pos
	for !p.atEOF() && p.peek() != '\'' {
		p.pos++
	}
	if p.atEOF() {
		return "", fmt.Errorf("unterminated single-quoted string")
	}
	s := p.s[start:p.pos]
	p.pos++ // closing '
	return s, nil
}

func (p *parser) scanDoubleQuoted() (string, error) {
	p.pos++ // opening "
	var b strings.Builder
	for {
		if p.atEOF() {
			return "", fmt.Errorf("unterminated double-quoted string")
		}
		c := p.peek()
		if c == '"' {
			p.pos++
			return b.String(), nil
		}
		if c == '\\' {
			p.pos++
			if p.atEOF() {
				return "", fmt.Errorf("trailing backslash in double-quoted string")
			}
			b.WriteByte(p.peek())
			p.pos++
			continue
		}
		b.WriteByte(c)
		p.pos++
	}
}

// scanAnsiCQuoted scans a $'...' string; p.pos is positioned at the opening
// "'" (the leading "$" was already consumed by the caller).
func (p *parser) scanAnsiCQuoted() (string, error) {
	p.pos++ // opening '
	var b strings.Builder
	for {
		if p.atEOF() {
			return "", fmt.Errorf("unterminated $'...' string")
		}
		c := p.peek()
		if c == '\'' {
			p.pos++
			return b.String(), nil
		}
		if c != '\\' {
			b.WriteByte(c)
			p.pos++
			continue
		}
		p.pos++
		if p.atEOF() {
			return "", fmt.Errorf("trailing backslash in $'...' string")
		}
		esc := p.peek()
		if esc >= '0' && esc <= '7' && p.pos+2 < len(p.s) && isOctalDigit(p.s[p.pos+1]) && isOctalDigit(p.s[p.pos+2]) {
			n, err := strconv.ParseUint(p.s[p.pos:p.pos+3], 8, 8)
			if err != nil {
				return "", fmt.Errorf("invalid octal escape: %w", err)
			}
			b.WriteByte(byte(n))
			p.pos += 3
			continue
		}
		decoded, ok := ansiCEscapes[esc]
		if !ok {
			return "", fmt.Errorf("unsupported $'...' escape %q", esc)
		}
		b.WriteByte(decoded)
		p.pos++
	}
}

func isOctalDigit(c byte) bool { return c >= '0' && c <= '7' }

var ansiCEscapes = map[byte]byte{
	'a': '\a', 'b': '\b', 'e': 0x1b, 'E': 0x1b, 'f': '\f', 'n': '\n',
	'r': '\r', 't': '\t', 'v': '\v', '\\': '\\', '\'': '\'', '"': '"', '?': '?',
}

// classify applies the indexed-vs-associative threshold rule.
func classify(entries map[string]string) *Value {
	maxIdx := -1
	allIndices := true
	for k := range entries {
		n, err := strconv.Atoi(k)
		if err != nil || n < 0 || n >= indexedArrayLimit {
			allIndices = false
			break
		}
		if n > maxIdx {
			maxIdx = n
		}
	}
	if !allIndices {
		return &Value{Kind: KindAssociativeArray, Map: entries}
	}
	arr := make([]string, maxIdx+1)
	for k, v := range entries {
		n, _ := strconv.Atoi(k)
		arr[n] = v
	}
	return &Value{Kind: KindIndexedArray, Array: arr}
}
