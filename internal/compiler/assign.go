package compiler

import (
	"kuroko/internal/chunk"
	"kuroko/internal/token"
)

// targetListShape is the minimal lookahead summary §4.3 rewind kind 3
// needs: how many comma-separated targets sit on the left of `=`, and
// which one (if any) carries a leading `*`. Nested tuple/list target
// groups are re-walked for real at store time instead of being
// flattened into this shape, so they do not need their own entry
// here.
type targetListShape struct {
	count            int
	starIndex        int
	singleIsBareName bool
}

// parseTargetListSpeculative peeks at the upcoming tokens to decide
// whether this looks like a multi-target or tuple-unpacking
// assignment. It parses speculatively with the chunk recorder wrapped
// around the attempt so nothing it emits survives, then reports
// whether a trailing `=` confirms it actually is an assignment. A
// single bare name is reported as `nil` so the caller's fast path
// (ordinary namedVariable-driven `x = expr`) handles it without any
// rewind at all.
func (c *Compiler) parseTargetListSpeculative() *targetListShape {
	rec := c.frame.Chunk.Record()
	shape := c.scanTargetList(token.EQUAL)
	c.frame.Chunk.Rewind(rec)

	if !c.check(token.EQUAL) {
		return nil
	}
	if shape.count == 1 && shape.starIndex == -1 && shape.singleIsBareName {
		return nil
	}
	return shape
}

// scanTargetList walks a comma-separated target list up to (but not
// consuming) stop, parsing each target at PrecDelTarget under
// ExprAssignTarget so every existing primary/trailer handler
// (namedVariable, dot, subscript, grouping, arrayLiteral) participates
// without needing a second grammar — their ExprCanAssign-only branches
// simply fall through to an ordinary load, which the caller discards.
func (c *Compiler) scanTargetList(stop token.Type) *targetListShape {
	shape := &targetListShape{starIndex: -1}
	for {
		starred := c.match(token.STAR)
		startTok := c.current
		c.parsePrecedence(ExprAssignTarget, PrecDelTarget)
		switch {
		case starred:
			shape.starIndex = shape.count
		case shape.count == 0:
			shape.singleIsBareName = startTok.Type == token.IDENTIFIER &&
				c.previous.Type == token.IDENTIFIER &&
				c.previous.Lexeme == startTok.Lexeme
		default:
			shape.singleIsBareName = false
		}
		shape.count++
		if !c.match(token.COMMA) {
			break
		}
		if c.check(stop) {
			break
		}
	}
	return shape
}

// compileAssignment implements the replay half of rewind kind 3: the
// RHS is compiled and unpacked first (so every target's value is
// already sitting on the stack), then the scanner is rewound back to
// the start of the target list and each target is re-walked a second
// time, this time emitting a store instead of a load.
func (c *Compiler) compileAssignment(start exprCheckpoint, shape *targetListShape) {
	eqCP := c.skipToEquals(start)

	c.restoreCheckpoint(eqCP)
	c.consume(token.EQUAL, "expected '=' in assignment")
	c.skipNewlines()
	c.compileAssignmentRHS()
	afterRHS := c.tellCheckpoint()

	if shape.starIndex >= 0 {
		c.emitBytes(chunk.OP_UNPACK_EX, byte(shape.starIndex))
		c.emit(byte(shape.count))
	} else {
		c.emitBytes(chunk.OP_UNPACK, byte(shape.count))
	}

	c.restoreCheckpoint(start)
	for i := 0; i < shape.count; i++ {
		c.compileStoreTarget()
		if i != shape.count-1 {
			c.consume(token.COMMA, "expected ',' between assignment targets")
		}
	}
	c.restoreCheckpoint(afterRHS)
}

// skipToEquals re-walks the target list purely to find the token
// checkpoint sitting right at the `=`, discarding any bytecode the
// walk incidentally emits.
func (c *Compiler) skipToEquals(start exprCheckpoint) exprCheckpoint {
	c.restoreCheckpoint(start)
	rec := c.frame.Chunk.Record()
	c.scanTargetList(token.EQUAL)
	c.frame.Chunk.Rewind(rec)
	return c.tellCheckpoint()
}

// compileAssignmentRHS compiles the right-hand side, folding a
// comma-separated list of values into an implicit tuple the same way
// Python treats `a, b = 1, 2`.
func (c *Compiler) compileAssignmentRHS() {
	c.parsePrecedence(ExprNormal, PrecOr)
	count := 1
	for c.match(token.COMMA) {
		if c.check(token.EOL) || c.check(token.EOF) || c.check(token.SEMICOLON) {
			break
		}
		c.parsePrecedence(ExprNormal, PrecOr)
		count++
	}
	if count > 1 {
		c.emitOp(chunk.OP_TUPLE)
		c.emit(byte(count))
	}
}

// compileStoreTarget parses one assignment target assuming its value
// already sits on top of the stack, and emits the matching store.
// Chained trailers (`a.b.c`, `a[0].b`) are not handled: only a single
// attribute or subscript trailer directly on
// a name is recognized as a store target, which covers the ordinary
// forms this language's assignment statements use.
func (c *Compiler) compileStoreTarget() {
	if c.match(token.STAR) {
		c.compileStoreTarget()
		return
	}
	if c.match(token.LPAREN) {
		c.compileStoreTupleBody(token.RPAREN)
		return
	}
	if c.match(token.LBRACKET) {
		c.compileStoreTupleBody(token.RBRACKET)
		return
	}

	c.consume(token.IDENTIFIER, "expected assignment target")
	name := c.previous.Lexeme

	if c.match(token.DOT) {
		c.consume(token.IDENTIFIER, "expected attribute name after '.'")
		attr := c.mangleInCurrentClass(c.previous.Lexeme)
		c.namedVariable(name, ExprNormal)
		c.emitOp(chunk.OP_SWAP)
		c.emitNamedOp(chunk.OP_SET_PROPERTY, attr)
		return
	}
	if c.match(token.LBRACKET) {
		c.namedVariable(name, ExprNormal)
		c.parsePrecedence(ExprNormal, PrecTernary)
		c.consume(token.RBRACKET, "expected ']' in assignment target")
		c.emitBytes(chunk.OP_ROT, 3)
		c.emitOp(chunk.OP_SET_INDEX)
		return
	}

	if c.inImplicitSelfScope() {
		if idx, ok := c.lookupClassProperty(name); ok {
			c.emitBytes(chunk.OP_GET_LOCAL, 0)
			c.emitOp(chunk.OP_SWAP)
			c.emitBytes(chunk.OP_SET_PROPERTY, byte(idx))
			return
		}
	}
	if slot := c.resolveLocal(c.frame, name); slot != -1 {
		c.emitBytes(chunk.OP_SET_LOCAL, byte(slot))
		return
	}
	if up := c.resolveUpvalue(c.frame, name); up != -1 {
		c.emitBytes(chunk.OP_SET_UPVALUE, byte(up))
		return
	}
	c.emitNamedOp(chunk.OP_SET_GLOBAL, name)
}

// compileStoreTupleBody handles a parenthesized or bracketed nested
// target group: the value already on top of the stack is the
// not-yet-unpacked nested tuple/list, which this unpacks and stores
// into its own members exactly like the top-level case.
func (c *Compiler) compileStoreTupleBody(closeTok token.Type) {
	innerStart := c.tellCheckpoint()
	rec := c.frame.Chunk.Record()
	shape := c.scanTargetList(closeTok)
	c.frame.Chunk.Rewind(rec)
	c.restoreCheckpoint(innerStart)

	if shape.starIndex >= 0 {
		c.emitBytes(chunk.OP_UNPACK_EX, byte(shape.starIndex))
		c.emit(byte(shape.count))
	} else {
		c.emitBytes(chunk.OP_UNPACK, byte(shape.count))
	}
	for i := 0; i < shape.count; i++ {
		c.compileStoreTarget()
		if i != shape.count-1 {
			c.consume(token.COMMA, "expected ',' between assignment targets")
		}
	}
	c.match(token.COMMA)
	c.consume(closeTok, "expected closing delimiter after assignment target group")
}
