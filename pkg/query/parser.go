package query

import (
	"fmt"
	"strings"
	"unicode"
)

// document is a parsed query document.
type document struct {
	name       string
	selections []selection
}

// selection is one "[alias:] key" entry. A key starting with "$" refers to
// a variable holding the actual key.
type selection struct {
	alias string
	key   string
}

// SyntaxError reports a malformed query document.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at token %d: %s", e.Pos, e.Msg)
}

func lex(src string) []string {
	var tokens []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range src {
		switch {
		case unicode.IsSpace(r) || r == ',':
			flush()
		case r == '{' || r == '}' || r == ':':
			flush()
			tokens = append(tokens, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()

	return tokens
}

func isPunct(tok string) bool {
	return tok == "{" || tok == "}" || tok == ":"
}

// parse turns src into a document. It returns ErrEmptyDocument when src
// contains no selections.
func parse(src string) (*document, error) {
	tokens := lex(src)
	if len(tokens) == 0 {
		return nil, ErrEmptyDocument
	}

	doc := &document{}
	pos := 0
	braced := false

	if tokens[pos] == "query" {
		pos++
		if pos < len(tokens) && !isPunct(tokens[pos]) {
			doc.name = tokens[pos]
			pos++
		}
		if pos >= len(tokens) || tokens[pos] != "{" {
			return nil, &SyntaxError{Pos: pos, Msg: `expected "{" after query`}
		}
	}
	if pos < len(tokens) && tokens[pos] == "{" {
		braced = true
		pos++
	}

	closed := false
	for pos < len(tokens) {
		tok := tokens[pos]
		if tok == "}" {
			if !braced {
				return nil, &SyntaxError{Pos: pos, Msg: `unexpected "}"`}
			}
			closed = true
			pos++
			break
		}
		if isPunct(tok) {
			return nil, &SyntaxError{Pos: pos, Msg: fmt.Sprintf("unexpected %q", tok)}
		}

		sel := selection{alias: strings.TrimPrefix(tok, "$"), key: tok}
		pos++
		if pos < len(tokens) && tokens[pos] == ":" {
			pos++
			if pos >= len(tokens) || isPunct(tokens[pos]) {
				return nil, &SyntaxError{Pos: pos, Msg: fmt.Sprintf("expected key after alias %q", sel.alias)}
			}
			sel.key = tokens[pos]
			pos++
		}
		if sel.key == "$" {
			return nil, &SyntaxError{Pos: pos - 1, Msg: "missing variable name"}
		}
		doc.selections = append(doc.selections, sel)
	}

	if braced && !closed {
		return nil, &SyntaxError{Pos: pos, Msg: `missing closing "}"`}
	}
	if pos < len(tokens) {
		return nil, &SyntaxError{Pos: pos, Msg: "unexpected tokens after document"}
	}
	if len(doc.selections) == 0 {
		return nil, ErrEmptyDocument
	}

	return doc, nil
}
