// Package scanner turns Kuroko source text into a stream of tokens for
// the compiler's single-pass Pratt parser. It has no notion of grammar:
// it reports characters, indentation, and literals, and lets the
// compiler decide what any of it means.
package scanner

import (
	"strings"

	"kuroko/internal/token"
)

// Scanner holds all per-scan state as plain values so that it is cheaply
// copyable — the compiler snapshots it wholesale (Tell/Rewind) to
// re-parse an already-scanned region (rewinding, see compiler package).
type Scanner struct {
	source string

	cursor    int // byte offset of the next unread rune
	line      int
	col       int
	lineStart int // byte offset of the start of the current line

	startOfLine bool // true until the first non-indentation token of a line is produced

	hasUngot bool
	ungot    token.Token
}

// New creates a Scanner positioned at the start of source.
func New(source string) *Scanner {
	return &Scanner{
		source:      source,
		cursor:      0,
		line:        1,
		col:         1,
		lineStart:   0,
		startOfLine: true,
	}
}

// Tell captures the scanner's current state. The returned value is safe
// to hold onto and later pass to Rewind any number of times.
func (s *Scanner) Tell() Scanner {
	return *s
}

// Rewind restores a previously captured state.
func (s *Scanner) Rewind(state Scanner) {
	*s = state
}

// Unget pushes a single token back; the next Scan call returns it again
// before consuming any more source.
func (s *Scanner) Unget(t token.Token) {
	s.hasUngot = true
	s.ungot = t
}

func (s *Scanner) peek() byte {
	if s.cursor >= len(s.source) {
		return 0
	}
	return s.source[s.cursor]
}

func (s *Scanner) peekAt(off int) byte {
	if s.cursor+off >= len(s.source) {
		return 0
	}
	return s.source[s.cursor+off]
}

func (s *Scanner) advance() byte {
	c := s.peek()
	s.cursor++
	if c == '\n' {
		s.line++
		s.col = 1
		s.lineStart = s.cursor
	} else {
		s.col++
	}
	return c
}

func (s *Scanner) atEnd() bool {
	return s.cursor >= len(s.source)
}

func (s *Scanner) match(c byte) bool {
	if s.peek() != c {
		return false
	}
	s.advance()
	return true
}

func (s *Scanner) make(typ token.Type, start int, line, col, lineStart int) token.Token {
	return token.Token{
		Type:      typ,
		Lexeme:    s.source[start:s.cursor],
		Line:      line,
		Col:       col,
		LineStart: lineStart,
	}
}

func (s *Scanner) makeError(msg string, line, col, lineStart int) token.Token {
	return token.Token{Type: token.ERROR, Lexeme: msg, Line: line, Col: col, LineStart: lineStart}
}

// Scan returns the next token. It never returns token.RETRY to a caller
// that asked via Next (which loops); Scan itself is the raw one-shot
// primitive described in §4.2 and can hand back RETRY so the compiler
// sees the same "ignore and ask again" signal the C implementation does.
func (s *Scanner) Scan() token.Token {
	if s.hasUngot {
		s.hasUngot = false
		return s.ungot
	}
	return s.scanOne()
}

// Next is Scan plus the RETRY-absorbing loop; nearly every caller wants
// this instead of raw Scan.
func (s *Scanner) Next() token.Token {
	for {
		t := s.Scan()
		if t.Type != token.RETRY {
			return t
		}
	}
}

func (s *Scanner) scanOne() token.Token {
	// At the start of a line, leading whitespace becomes a single
	// INDENTATION token (or RETRY for a blank/comment-only line).
	if s.startOfLine {
		return s.scanIndentation()
	}

	s.skipInlineWhitespace()

	line, col, lineStart := s.line, s.col, s.lineStart
	start := s.cursor

	if s.atEnd() {
		return s.make(token.EOF, start, line, col, lineStart)
	}

	c := s.advance()

	if c == '\n' {
		s.startOfLine = true
		return s.make(token.EOL, start, line, col, lineStart)
	}

	if c == '#' {
		for s.peek() != '\n' && !s.atEnd() {
			s.advance()
		}
		return token.Token{Type: token.RETRY}
	}

	if c == '\\' && s.peek() == '\n' {
		s.advance()
		return token.Token{Type: token.RETRY}
	}

	if isDigit(c) {
		return s.scanNumber(start, line, col, lineStart)
	}

	if isIdentStart(c) {
		return s.scanIdentifierOrPrefix(c, start, line, col, lineStart)
	}

	if c == '"' || c == '\'' {
		return s.scanString(c, start, line, col, lineStart)
	}

	return s.scanOperator(c, start, line, col, lineStart)
}

// scanIndentation measures the leading whitespace of a line. A line that
// is blank, or whitespace-then-comment, yields RETRY instead so the
// compiler simply asks again.
func (s *Scanner) scanIndentation() token.Token {
	line, col, lineStart := s.line, s.col, s.lineStart
	start := s.cursor

	sawSpace, sawTab := false, false
	width := 0
	for {
		switch s.peek() {
		case ' ':
			sawSpace = true
			width++
			s.advance()
			continue
		case '\t':
			sawTab = true
			width += 8 - (width % 8)
			s.advance()
			continue
		}
		break
	}

	if sawSpace && sawTab {
		s.startOfLine = false
		return s.makeError("mixed tabs and spaces in indentation", line, col, lineStart)
	}

	// Blank line or comment-only line: swallow it and ask again.
	if s.peek() == '\n' {
		s.advance()
		return token.Token{Type: token.RETRY}
	}
	if s.peek() == '#' {
		for s.peek() != '\n' && !s.atEnd() {
			s.advance()
		}
		if s.peek() == '\n' {
			s.advance()
		}
		return token.Token{Type: token.RETRY}
	}
	if s.atEnd() {
		return s.make(token.EOF, start, line, col, lineStart)
	}

	s.startOfLine = false
	if width == 0 && s.cursor == start {
		// No leading whitespace at all: re-dispatch into the normal
		// one-token-at-a-time scan without emitting INDENTATION.
		return s.scanOne()
	}

	t := s.make(token.INDENTATION, start, line, col, lineStart)
	t.Col = width // carry the measured width in Col for the compiler
	return t
}

func (s *Scanner) skipInlineWhitespace() {
	for s.peek() == ' ' || s.peek() == '\t' || s.peek() == '\r' {
		s.advance()
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func (s *Scanner) scanNumber(start, line, col, lineStart int) token.Token {
	typ := token.INT

	if s.source[start] == '0' && (s.peek() == 'x' || s.peek() == 'X') {
		s.advance()
		for isHexDigit(s.peek()) {
			s.advance()
		}
		return s.make(token.INT, start, line, col, lineStart)
	}
	if s.source[start] == '0' && (s.peek() == 'b' || s.peek() == 'B') {
		s.advance()
		for s.peek() == '0' || s.peek() == '1' {
			s.advance()
		}
		return s.make(token.INT, start, line, col, lineStart)
	}
	if s.source[start] == '0' && (s.peek() == 'o' || s.peek() == 'O') {
		s.advance()
		for s.peek() >= '0' && s.peek() <= '7' {
			s.advance()
		}
		return s.make(token.INT, start, line, col, lineStart)
	}

	for isDigit(s.peek()) {
		s.advance()
	}
	if s.peek() == '.' && isDigit(s.peekAt(1)) {
		typ = token.FLOAT
		s.advance()
		for isDigit(s.peek()) {
			s.advance()
		}
	}
	if s.peek() == 'e' || s.peek() == 'E' {
		save := s.cursor
		s.advance()
		if s.peek() == '+' || s.peek() == '-' {
			s.advance()
		}
		if isDigit(s.peek()) {
			typ = token.FLOAT
			for isDigit(s.peek()) {
				s.advance()
			}
		} else {
			s.cursor = save
		}
	}
	return s.make(typ, start, line, col, lineStart)
}

func (s *Scanner) scanIdentifierOrPrefix(first byte, start, line, col, lineStart int) token.Token {
	// A bare b/f/r immediately followed by a quote is a string-prefix
	// token; the *next* Scan call produces the string/bytes literal.
	if (first == 'b' || first == 'f' || first == 'r') && (s.peek() == '"' || s.peek() == '\'') {
		switch first {
		case 'b':
			return s.make(token.PREFIX_B, start, line, col, lineStart)
		case 'f':
			return s.make(token.PREFIX_F, start, line, col, lineStart)
		default:
			return s.make(token.PREFIX_R, start, line, col, lineStart)
		}
	}

	for isIdentCont(s.peek()) {
		s.advance()
	}
	lexeme := s.source[start:s.cursor]
	return token.Token{Type: token.LookupIdent(lexeme), Lexeme: lexeme, Line: line, Col: col, LineStart: lineStart}
}

func (s *Scanner) scanString(quote byte, start, line, col, lineStart int) token.Token {
	triple := s.peek() == quote && s.peekAt(1) == quote
	if triple {
		s.advance()
		s.advance()
	}

	for {
		if s.atEnd() {
			return s.makeError("unterminated string literal", line, col, lineStart)
		}
		c := s.peek()
		if c == '\\' {
			s.advance()
			if !s.atEnd() {
				s.advance()
			}
			continue
		}
		if c == quote {
			if !triple {
				s.advance()
				break
			}
			if s.peekAt(1) == quote && s.peekAt(2) == quote {
				s.advance()
				s.advance()
				s.advance()
				break
			}
			s.advance()
			continue
		}
		s.advance()
	}

	typ := token.STRING
	if triple {
		typ = token.BIG_STRING
	}
	return s.make(typ, start, line, col, lineStart)
}

// scanOperator handles everything punctuation-shaped, using longest-match
// lookahead for the compound operators listed in §4.2.
func (s *Scanner) scanOperator(c byte, start, line, col, lineStart int) token.Token {
	mk := func(typ token.Type) token.Token { return s.make(typ, start, line, col, lineStart) }

	switch c {
	case '(':
		return mk(token.LPAREN)
	case ')':
		return mk(token.RPAREN)
	case '[':
		return mk(token.LBRACKET)
	case ']':
		return mk(token.RBRACKET)
	case '{':
		return mk(token.LBRACE)
	case '}':
		return mk(token.RBRACE)
	case ',':
		return mk(token.COMMA)
	case ':':
		return mk(token.COLON)
	case ';':
		return mk(token.SEMICOLON)
	case '~':
		return mk(token.TILDE)
	case '.':
		if s.peek() == '.' && s.peekAt(1) == '.' {
			s.advance()
			s.advance()
			return mk(token.ELLIPSIS)
		}
		return mk(token.DOT)
	case '+':
		if s.match('+') {
			return mk(token.PLUS_PLUS)
		}
		if s.match('=') {
			return mk(token.PLUS_EQUAL)
		}
		return mk(token.PLUS)
	case '-':
		if s.match('-') {
			return mk(token.MINUS_MINUS)
		}
		if s.match('>') {
			return mk(token.ARROW)
		}
		if s.match('=') {
			return mk(token.MINUS_EQUAL)
		}
		return mk(token.MINUS)
	case '*':
		if s.match('*') {
			if s.match('=') {
				return mk(token.DOUBLE_STAR_EQUAL)
			}
			return mk(token.DOUBLE_STAR)
		}
		if s.match('=') {
			return mk(token.STAR_EQUAL)
		}
		return mk(token.STAR)
	case '/':
		if s.match('/') {
			if s.match('=') {
				return mk(token.DOUBLE_SLASH_EQUAL)
			}
			return mk(token.DOUBLE_SLASH)
		}
		if s.match('=') {
			return mk(token.SLASH_EQUAL)
		}
		return mk(token.SLASH)
	case '%':
		if s.match('=') {
			return mk(token.PERCENT_EQUAL)
		}
		return mk(token.PERCENT)
	case '=':
		if s.match('=') {
			return mk(token.EQUAL_EQUAL)
		}
		return mk(token.EQUAL)
	case '!':
		if s.match('=') {
			return mk(token.BANG_EQUAL)
		}
		return mk(token.BANG)
	case '<':
		if s.match('<') {
			if s.match('=') {
				return mk(token.LEFT_SHIFT_EQUAL)
			}
			return mk(token.LEFT_SHIFT)
		}
		if s.match('=') {
			return mk(token.LESS_EQUAL)
		}
		return mk(token.LESS)
	case '>':
		if s.match('>') {
			if s.match('=') {
				return mk(token.RIGHT_SHIFT_EQUAL)
			}
			return mk(token.RIGHT_SHIFT)
		}
		if s.match('=') {
			return mk(token.GREATER_EQUAL)
		}
		return mk(token.GREATER)
	case '&':
		if s.match('=') {
			return mk(token.AMP_EQUAL)
		}
		return mk(token.AMP)
	case '|':
		if s.match('=') {
			return mk(token.PIPE_EQUAL)
		}
		return mk(token.PIPE)
	case '^':
		if s.match('=') {
			return mk(token.CARET_EQUAL)
		}
		return mk(token.CARET)
	case '@':
		if s.match('=') {
			return mk(token.AT_EQUAL)
		}
		return mk(token.AT)
	}

	return s.makeError("unexpected character "+strings.TrimSpace(string(c)), line, col, lineStart)
}

// LineText returns the full source line containing byte offset
// lineStart, without its trailing newline — used by the error surface to
// underline the offending token.
func LineText(source string, lineStart int) string {
	end := strings.IndexByte(source[lineStart:], '\n')
	if end < 0 {
		return source[lineStart:]
	}
	return source[lineStart : lineStart+end]
}
