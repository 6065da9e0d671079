package compiler

import (
	"fmt"

	"kuroko/internal/scanner"
	"kuroko/internal/token"
)

// SyntaxError is the host-level exception the compiler raises for
// every failure kind in §7. It carries enough location detail for a
// caller to print a Python-style traceback pointer without the
// compiler knowing anything about how that caller renders text.
type SyntaxError struct {
	Msg    string
	Line   int
	File   string
	Lineno int
	Colno  int
	Width  int
	Func   string
	Text   string
}

func (e *SyntaxError) Error() string {
	if e.Func != "" {
		return fmt.Sprintf("%s:%d:%d: SyntaxError: %s (in %s)", e.File, e.Lineno, e.Colno, e.Msg, e.Func)
	}
	return fmt.Sprintf("%s:%d:%d: SyntaxError: %s", e.File, e.Lineno, e.Colno, e.Msg)
}

// errorAt raises a SyntaxError for tok, unless the compiler is already
// in panic mode: once hadError is set, further calls are suppressed
// until the enclosing declaration resynchronizes (§4.5/§7). The first
// raised error for a compile unit is retained on c.firstError.
func (c *Compiler) errorAt(tok token.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	line := scanner.LineText(c.source, tok.LineStart)
	err := &SyntaxError{
		Msg:    msg,
		Line:   tok.Line,
		File:   c.fileName,
		Lineno: tok.Line,
		Colno:  tok.Col,
		Width:  len(tok.Lexeme),
		Func:   c.currentFuncName(),
		Text:   line,
	}
	if c.firstError == nil {
		c.firstError = err
	}
}

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *Compiler) error(msg string)          { c.errorAt(c.previous, msg) }

func (c *Compiler) currentFuncName() string {
	if c.frame == nil {
		return ""
	}
	return c.frame.qualName
}

// synchronize fast-forwards to EOF after a top-level declaration
// parse error, per §4.5: no attempt at statement-level recovery.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != token.EOF {
		c.advance()
	}
}
