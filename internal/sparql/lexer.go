package sparql

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIRI
	tokPName
	tokVar
	tokString
	tokLangTag
	tokDatatypeMark // ^^
	tokInteger
	tokDecimal
	tokDouble
	tokKeyword
	tokPunct
	tokBlank
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// ParseError reports malformed query text.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

type lexer struct {
	src    string
	pos    int
	tokens []token
}

func lineCol(src string, pos int) (int, int) {
	line, col := 1, 1
	for i, r := range src {
		if i >= pos {
			break
		}
		if r == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

func errorAt(src string, pos int, format string, args ...any) *ParseError {
	line, col := lineCol(src, pos)
	return &ParseError{Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

func tokenize(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			l.tokens = append(l.tokens, token{kind: tokEOF, pos: l.pos})
			return l.tokens, nil
		}
		if err := l.next(); err != nil {
			return nil, err
		}
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *lexer) emit(kind tokenKind, start int, text string) {
	l.tokens = append(l.tokens, token{kind: kind, text: text, pos: start})
}

func (l *lexer) next() error {
	start := l.pos
	c := l.src[l.pos]

	switch {
	case c == '<':
		if end, ok := l.iriEnd(); ok {
			l.emit(tokIRI, start, l.src[start+1:end])
			l.pos = end + 1
			return nil
		}
		if strings.HasPrefix(l.src[l.pos:], "<=") {
			l.pos += 2
			l.emit(tokPunct, start, "<=")
			return nil
		}
		l.pos++
		l.emit(tokPunct, start, "<")
		return nil
	case c == '?' || c == '$':
		l.pos++
		name := l.name()
		if name == "" {
			return errorAt(l.src, start, "empty variable name")
		}
		l.emit(tokVar, start, name)
		return nil
	case c == '"' || c == '\'':
		s, err := l.stringLit()
		if err != nil {
			return err
		}
		l.emit(tokString, start, s)
		return nil
	case c == '@':
		l.pos++
		tag := l.langTag()
		if tag == "" {
			return errorAt(l.src, start, "empty language tag")
		}
		l.emit(tokLangTag, start, tag)
		return nil
	case c == '^':
		if strings.HasPrefix(l.src[l.pos:], "^^") {
			l.pos += 2
			l.emit(tokDatatypeMark, start, "^^")
			return nil
		}
		return errorAt(l.src, start, "unexpected '^'")
	case c == '_' && strings.HasPrefix(l.src[l.pos:], "_:"):
		l.pos += 2
		l.emit(tokBlank, start, l.name())
		return nil
	case isDigit(c) || ((c == '+' || c == '-' || c == '.') && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
		return l.number()
	}

	for _, op := range []string{"&&", "||", "!=", ">="} {
		if strings.HasPrefix(l.src[l.pos:], op) {
			l.pos += len(op)
			l.emit(tokPunct, start, op)
			return nil
		}
	}
	if strings.ContainsRune("{}().;,*=!>[]", rune(c)) {
		l.pos++
		l.emit(tokPunct, start, string(c))
		return nil
	}

	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	if unicode.IsLetter(r) || c == ':' {
		word := l.name()
		if l.pos < len(l.src) && l.src[l.pos] == ':' {
			l.pos++
			local := l.localName()
			l.emit(tokPName, start, word+":"+local)
			return nil
		}
		l.emit(tokKeyword, start, word)
		return nil
	}
	return errorAt(l.src, start, "unexpected character %q", r)
}

// iriEnd finds the closing '>' of an IRI reference starting at l.pos. IRIs
// cannot contain whitespace, which separates them from the '<' operator.
func (l *lexer) iriEnd() (int, bool) {
	for i := l.pos + 1; i < len(l.src); i++ {
		switch l.src[i] {
		case '>':
			return i, true
		case ' ', '\t', '\n', '\r', '<', '"', '{', '}', '|', '^', '`', '\\':
			return 0, false
		}
	}
	return 0, false
}

func (l *lexer) name() string {
	start := l.pos
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-') {
			break
		}
		l.pos += size
	}
	return l.src[start:l.pos]
}

// localName reads the local part of a prefixed name. A trailing '.' ends
// the triple, not the name.
func (l *lexer) localName() string {
	start := l.pos
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.' || r == ':' || r == '%') {
			break
		}
		l.pos += size
	}
	for l.pos > start && l.src[l.pos-1] == '.' {
		l.pos--
	}
	return l.src[start:l.pos]
}

func (l *lexer) langTag() string {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if !(isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-') {
			break
		}
		l.pos++
	}
	return l.src[start:l.pos]
}

func (l *lexer) stringLit() (string, error) {
	start := l.pos
	quote := l.src[l.pos]
	long := strings.HasPrefix(l.src[l.pos:], strings.Repeat(string(quote), 3))
	if long {
		l.pos += 3
	} else {
		l.pos++
	}

	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\':
			if l.pos+1 >= len(l.src) {
				return "", errorAt(l.src, l.pos, "unterminated escape")
			}
			esc := l.src[l.pos+1]
			switch esc {
			case 't':
				sb.WriteByte('\t')
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case '"', '\'', '\\':
				sb.WriteByte(esc)
			default:
				return "", errorAt(l.src, l.pos, "unknown escape \\%c", esc)
			}
			l.pos += 2
		case long && strings.HasPrefix(l.src[l.pos:], strings.Repeat(string(quote), 3)):
			l.pos += 3
			return sb.String(), nil
		case !long && c == quote:
			l.pos++
			return sb.String(), nil
		case !long && (c == '\n' || c == '\r'):
			return "", errorAt(l.src, l.pos, "newline in string literal")
		default:
			sb.WriteByte(c)
			l.pos++
		}
	}
	return "", errorAt(l.src, start, "unterminated string literal")
}

func (l *lexer) number() error {
	start := l.pos
	if c := l.src[l.pos]; c == '+' || c == '-' {
		l.pos++
	}
	kind := tokInteger
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos+1 < len(l.src) && l.src[l.pos] == '.' && isDigit(l.src[l.pos+1]) {
		kind = tokDecimal
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		kind = tokDouble
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		digits := l.pos
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
		if digits == l.pos {
			return errorAt(l.src, start, "malformed exponent")
		}
	}
	l.emit(kind, start, l.src[start:l.pos])
	return nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
