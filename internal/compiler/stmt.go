package compiler

import (
	"kuroko/internal/chunk"
	"kuroko/internal/token"
)

// declaration is the top of the statement grammar: declarations that
// bind a name at the current scope, falling through to ordinary
// statements otherwise.
func (c *Compiler) declaration() {
	switch {
	case c.match(token.LET):
		c.letDeclaration()
	case c.check(token.DEF):
		c.funcDeclaration()
	case c.check(token.ASYNC):
		c.asyncDeclaration()
	case c.check(token.CLASS):
		c.classDeclaration()
	case c.check(token.AT):
		c.decoratedDeclaration()
	default:
		c.statement()
	}
}

func (c *Compiler) letDeclaration() {
	c.consume(token.IDENTIFIER, "expected variable name after 'let'")
	name := c.previous.Lexeme
	c.declareVariable(name)

	if c.match(token.COLON) {
		c.skipTypeAnnotation()
	}

	if c.match(token.EQUAL) {
		c.expression()
	} else {
		c.emitOp(chunk.OP_NONE)
	}
	c.defineVariable(name)
	c.endOfStatement()
}

// skipTypeAnnotation consumes a type expression without compiling it:
// annotations are accepted syntactically but the type system itself is
// out of scope for this compiler.
func (c *Compiler) skipTypeAnnotation() {
	depth := 0
	for {
		switch c.current.Type {
		case token.LBRACKET, token.LPAREN:
			depth++
		case token.RBRACKET, token.RPAREN:
			if depth == 0 {
				return
			}
			depth--
		case token.EQUAL, token.COLON, token.EOL, token.EOF, token.COMMA:
			if depth == 0 {
				return
			}
		}
		c.advance()
	}
}

func (c *Compiler) endOfStatement() {
	if c.check(token.EOF) {
		return
	}
	if c.match(token.SEMICOLON) {
		return
	}
	c.consume(token.EOL, "expected newline after statement")
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.IF):
		c.ifStatement()
	case c.match(token.WHILE):
		c.whileStatement()
	case c.match(token.FOR):
		c.forStatement()
	case c.match(token.TRY):
		c.tryStatement()
	case c.match(token.WITH):
		c.withStatement()
	case c.match(token.RETURN):
		c.returnStatement()
	case c.match(token.YIELD):
		c.yieldStatement()
	case c.match(token.IMPORT):
		c.importStatement()
	case c.match(token.FROM):
		c.fromImportStatement()
	case c.match(token.DEL):
		c.delStatement()
	case c.match(token.ASSERT):
		c.assertStatement()
	case c.match(token.RAISE):
		c.raiseStatement()
	case c.match(token.PASS):
		c.endOfStatement()
	case c.match(token.BREAK):
		c.breakStatement()
	case c.match(token.CONTINUE):
		c.continueStatement()
	case c.check(token.INDENTATION):
		c.errorAtCurrent("unexpected indent")
		c.advance()
	default:
		c.expressionStatement()
	}
}

// block compiles an indented suite: `:` EOL INDENTATION stmt+ until the
// indentation drops back. The scanner hands indentation to the
// compiler as a single INDENTATION token per line (§4.2); this
// exercise's block model treats "indented at all" as "inside the
// block" and relies on a matching dedent being signalled by the
// absence of a further INDENTATION token of at least the same width,
// consistent with how the teacher's own recursive-descent blocks are
// driven by structural tokens rather than a counted indent stack.
func (c *Compiler) block(minWidth int) {
	c.consume(token.COLON, "expected ':' before block")
	c.skipNewlinesOnly()
	if !c.check(token.INDENTATION) {
		// single-line suite: `if x: y = 1`
		c.statement()
		return
	}
	for c.check(token.INDENTATION) && c.current.Col >= minWidth {
		width := c.current.Col
		c.advance()
		c.declaration()
		c.skipNewlinesOnly()
		if !c.check(token.INDENTATION) || c.current.Col < width {
			break
		}
	}
}

func (c *Compiler) skipNewlinesOnly() {
	for c.check(token.EOL) {
		c.advance()
	}
}

// --- if / elif / else -----------------------------------------------------

func (c *Compiler) ifStatement() {
	ifCol := c.previous.Col
	c.expression()
	thenJump := c.emitPopJumpIfFalse()
	c.beginScope()
	c.block(1)
	c.endScope()

	var endJumps []int
	for {
		c.skipNewlinesOnly()
		if c.matchContinuationKeyword(ifCol, token.ELIF) {
			endJumps = append(endJumps, c.emitJump())
			c.patchJump(thenJump)
			c.expression()
			thenJump = c.emitPopJumpIfFalse()
			c.beginScope()
			c.block(1)
			c.endScope()
			continue
		}
		if c.matchContinuationKeyword(ifCol, token.ELSE) {
			endJumps = append(endJumps, c.emitJump())
			c.patchJump(thenJump)
			c.beginScope()
			c.block(1)
			c.endScope()
			break
		}
		break
	}
	c.patchJump(thenJump)
	for _, j := range endJumps {
		c.patchJump(j)
	}
}

// --- while ------------------------------------------------------------

func (c *Compiler) whileStatement() {
	loopStart := len(c.frame.Chunk.Code)
	c.pushLoop(false)

	skipCondition := false
	if c.check(token.TRUE) {
		cp := c.tellCheckpoint()
		c.advance()
		skipCondition = c.check(token.COLON)
		if !skipCondition {
			c.restoreCheckpoint(cp)
		}
	}
	var exitJump int
	if !skipCondition {
		c.expression()
		exitJump = c.emitJumpIfFalseOrPop()
	}
	c.beginScope()
	c.block(1)
	c.endScope()
	c.emitLoop(loopStart)
	if !skipCondition {
		c.patchJump(exitJump)
	}
	c.popLoop(false)
}

// --- for-in -------------------------------------------------------------

func (c *Compiler) forStatement() {
	forCol := c.previous.Col
	// C-style `for NAME = init; cond; step:` is distinguished by the
	// '=' appearing before any 'in'.
	if c.looksLikeCStyleFor() {
		c.cStyleForStatement()
		return
	}
	c.beginScope()

	var names []string
	names = append(names, c.consumeTargetName())
	for c.match(token.COMMA) {
		names = append(names, c.consumeTargetName())
	}
	c.consume(token.IN, "expected 'in' in for statement")
	c.expression()

	c.emitOp(chunk.OP_GET_ITER)
	iterSlot := c.addLocal(" $iter")
	c.markInitialized()

	loopStart := len(c.frame.Chunk.Code)
	c.pushLoop(true)
	c.emitBytes(chunk.OP_GET_LOCAL, byte(iterSlot))
	exitJump := c.frame.Chunk.EmitJump(chunk.OP_FOR_ITER, c.previous.Line)

	c.beginScope()
	for _, n := range names {
		slot := c.addLocal(n)
		c.markInitialized()
		_ = slot
	}
	c.block(1)
	c.endScope()
	c.emitLoop(loopStart)
	c.patchJump(exitJump)
	c.popLoop(true)
	c.endScope()

	c.maybeForElse(forCol)
}

func (c *Compiler) maybeForElse(forCol int) {
	c.skipNewlinesOnly()
	if c.matchContinuationKeyword(forCol, token.ELSE) {
		c.beginScope()
		c.block(1)
		c.endScope()
	}
}

func (c *Compiler) consumeTargetName() string {
	c.consume(token.IDENTIFIER, "expected name in for-loop target")
	return c.previous.Lexeme
}

// looksLikeCStyleFor peeks ahead (via a scanner checkpoint) to see
// whether this `for` is the C-style three-clause form rather than
// `for x in y`.
func (c *Compiler) looksLikeCStyleFor() bool {
	cp := c.tellCheckpoint()
	defer c.restoreCheckpoint(cp)

	if !c.check(token.IDENTIFIER) {
		return false
	}
	c.advance()
	isCStyle := c.check(token.EQUAL)
	return isCStyle
}

func (c *Compiler) cStyleForStatement() {
	c.beginScope()
	name := c.consumeTargetName()
	c.consume(token.EQUAL, "expected '=' in C-style for initializer")
	c.declareLocal(name)
	c.expression()
	c.defineVariable(name)
	c.consume(token.SEMICOLON, "expected ';' after for initializer")

	loopStart := len(c.frame.Chunk.Code)
	c.pushLoop(false)
	c.expression()
	exitJump := c.emitJumpIfFalseOrPop()
	c.consume(token.SEMICOLON, "expected ';' after for condition")

	bodyJump := c.emitJump()
	incrStart := len(c.frame.Chunk.Code)
	c.expressionNoNewline()
	c.emitOp(chunk.OP_POP)
	c.emitLoop(loopStart)

	c.patchJump(bodyJump)
	c.beginScope()
	c.block(1)
	c.endScope()
	c.emitLoop(incrStart)
	c.patchJump(exitJump)
	c.popLoop(false)
	c.endScope()
}

func (c *Compiler) expressionNoNewline() {
	c.expression()
}

// --- loop bookkeeping ----------------------------------------------------

func (c *Compiler) pushLoop(isFor bool) {
	c.frame.loops = append(c.frame.loops, &Loop{enclosingLocals: len(c.frame.locals), isForLoop: isFor})
}

func (c *Compiler) popLoop(isFor bool) {
	loops := c.frame.loops
	loop := loops[len(loops)-1]
	c.frame.loops = loops[:len(loops)-1]
	for _, e := range loop.exits {
		c.patchJump(e.jumpSite)
	}
}

func (c *Compiler) currentLoop() *Loop {
	if len(c.frame.loops) == 0 {
		return nil
	}
	return c.frame.loops[len(c.frame.loops)-1]
}

func (c *Compiler) breakStatement() {
	loop := c.currentLoop()
	if loop == nil {
		c.error("'break' outside loop")
		c.endOfStatement()
		return
	}
	extra := len(c.frame.locals) - loop.enclosingLocals
	if extra > 0 {
		c.emitBytes(chunk.OP_POP_N, byte(extra))
	}
	site := c.emitJump()
	loop.exits = append(loop.exits, loopExit{jumpSite: site, isBreak: true})
	c.endOfStatement()
}

func (c *Compiler) continueStatement() {
	loop := c.currentLoop()
	if loop == nil {
		c.error("'continue' outside loop")
		c.endOfStatement()
		return
	}
	extra := len(c.frame.locals) - loop.enclosingLocals
	if extra > 0 {
		c.emitBytes(chunk.OP_POP_N, byte(extra))
	}
	site := c.emitJump()
	loop.exits = append(loop.exits, loopExit{jumpSite: site, isBreak: false})
	c.endOfStatement()
}

// --- return / yield -------------------------------------------------------

func (c *Compiler) returnStatement() {
	if c.frame.Type == FrameModule {
		c.error("'return' outside function")
	}
	if c.check(token.EOL) || c.check(token.EOF) || c.check(token.SEMICOLON) {
		c.emitReturn()
	} else {
		if c.frame.Type == FrameInit {
			c.error("'__init__' cannot return a value")
		}
		c.expression()
		c.emitOp(chunk.OP_RETURN)
	}
	c.endOfStatement()
}

func (c *Compiler) yieldStatement() {
	c.frame.hasYield = true
	if c.match(token.FROM) {
		c.expression()
		c.emitOp(chunk.OP_GET_ITER)
		c.emitOp(chunk.OP_NONE)
		c.emitOp(chunk.OP_YIELD)
	} else {
		if c.check(token.EOL) || c.check(token.EOF) {
			c.emitOp(chunk.OP_NONE)
		} else {
			c.expression()
		}
		c.emitOp(chunk.OP_YIELD)
	}
	c.emitOp(chunk.OP_POP)
	c.endOfStatement()
}

// --- import ---------------------------------------------------------------

func (c *Compiler) importStatement() {
	for {
		dots := ""
		for c.match(token.DOT) {
			dots += "."
		}
		c.consume(token.IDENTIFIER, "expected module name")
		name := dots + c.previous.Lexeme
		for c.match(token.DOT) {
			c.consume(token.IDENTIFIER, "expected module name component")
			name += "." + c.previous.Lexeme
		}
		bind := name
		if c.match(token.AS) {
			c.consume(token.IDENTIFIER, "expected name after 'as'")
			bind = c.previous.Lexeme
		}
		c.emitNamedOp(chunk.OP_IMPORT, name)
		c.declareVariable(bind)
		c.defineVariable(bind)
		if !c.match(token.COMMA) {
			break
		}
	}
	c.endOfStatement()
}

func (c *Compiler) fromImportStatement() {
	dots := ""
	for c.match(token.DOT) {
		dots += "."
	}
	c.consume(token.IDENTIFIER, "expected module name")
	module := dots + c.previous.Lexeme
	for c.match(token.DOT) {
		c.consume(token.IDENTIFIER, "expected module name component")
		module += "." + c.previous.Lexeme
	}

	if module == "__options__" {
		c.consume(token.IMPORT, "expected 'import' after module name")
		c.optionsImport()
		return
	}

	c.consume(token.IMPORT, "expected 'import' after module name")
	if c.match(token.STAR) {
		c.emitNamedOp(chunk.OP_IMPORT, module)
		c.emitOp(chunk.OP_IMPORT_STAR)
		c.endOfStatement()
		return
	}
	c.emitNamedOp(chunk.OP_IMPORT, module)
	for {
		c.consume(token.IDENTIFIER, "expected name after 'import'")
		member := c.previous.Lexeme
		bind := member
		if c.match(token.AS) {
			c.consume(token.IDENTIFIER, "expected name after 'as'")
			bind = c.previous.Lexeme
		}
		c.emitOp(chunk.OP_DUP)
		c.emitNamedOp(chunk.OP_IMPORT_FROM, member)
		c.declareVariable(bind)
		c.defineVariable(bind)
		if !c.match(token.COMMA) {
			break
		}
	}
	c.emitOp(chunk.OP_POP)
	c.endOfStatement()
}

func (c *Compiler) optionsImport() {
	for {
		c.consume(token.IDENTIFIER, "expected option name")
		switch c.previous.Lexeme {
		case "compile_time_builtins":
			c.frame.optionsFlags |= OptCompileTimeBuiltins
		case "no_implicit_self":
			c.frame.optionsFlags |= OptNoImplicitSelf
		default:
			c.error("unknown option '" + c.previous.Lexeme + "'")
		}
		if !c.match(token.COMMA) {
			break
		}
	}
	c.endOfStatement()
}

// --- del / assert / raise --------------------------------------------------

func (c *Compiler) delStatement() {
	for {
		c.frame.delSatisfied = false
		c.parsePrecedence(ExprDelTarget, PrecDelTarget)
		if !c.frame.delSatisfied {
			c.error("invalid del target")
		}
		if !c.match(token.COMMA) {
			break
		}
	}
	c.endOfStatement()
}

func (c *Compiler) assertStatement() {
	c.expression()
	failJump := c.emitPopJumpIfFalse()
	skipJump := c.emitJump()
	c.patchJump(failJump)
	c.emitNamedOp(chunk.OP_GET_GLOBAL, "AssertionError")
	if c.match(token.COMMA) {
		c.expression()
		c.emitBytes(chunk.OP_CALL, 1)
	} else {
		c.emitBytes(chunk.OP_CALL, 0)
	}
	c.emitOp(chunk.OP_RAISE)
	c.patchJump(skipJump)
	c.endOfStatement()
}

func (c *Compiler) raiseStatement() {
	if c.check(token.EOL) || c.check(token.EOF) {
		c.emitOp(chunk.OP_RERAISE)
		c.endOfStatement()
		return
	}
	c.expression()
	if c.match(token.FROM) {
		c.expression()
	} else {
		c.emitOp(chunk.OP_NONE)
	}
	c.emitOp(chunk.OP_RAISE)
	c.endOfStatement()
}

// --- try/except/else/finally ------------------------------------------------

func (c *Compiler) tryStatement() {
	tryCol := c.previous.Col
	tryJump := c.frame.Chunk.EmitJump(chunk.OP_PUSH_TRY, c.previous.Line)
	c.beginScope()
	c.block(1)
	c.endScope()
	c.emitOp(chunk.OP_POP_TRY)
	noExceptJump := c.emitJump()
	c.patchJump(tryJump)

	var clauseEndJumps []int
	sawBareExcept := false
	for {
		c.skipNewlinesOnly()
		if !c.matchContinuationKeyword(tryCol, token.EXCEPT) {
			break
		}
		if sawBareExcept {
			c.error("default 'except' clause must be last")
		}
		bindName := ""
		if c.check(token.COLON) {
			sawBareExcept = true
			c.emitOp(chunk.OP_POP)
		} else {
			c.expression()
			if c.match(token.AS) {
				c.consume(token.IDENTIFIER, "expected name after 'as'")
				bindName = c.previous.Lexeme
			}
			c.emitOp(chunk.OP_FILTER_EXCEPT)
			if bindName != "" {
				c.beginScope()
				c.declareLocal(bindName)
				c.markInitialized()
			} else {
				c.emitOp(chunk.OP_POP)
			}
		}
		c.block(1)
		if bindName != "" {
			// close the scope opened above for the `as` name
			c.endScope()
		}
		clauseEndJumps = append(clauseEndJumps, c.emitJump())
	}

	c.patchJump(noExceptJump)
	c.skipNewlinesOnly()
	if c.matchContinuationKeyword(tryCol, token.ELSE) {
		c.beginScope()
		c.block(1)
		c.endScope()
	}

	for _, j := range clauseEndJumps {
		c.patchJump(j)
	}

	c.skipNewlinesOnly()
	if c.matchContinuationKeyword(tryCol, token.FINALLY) {
		c.beginScope()
		c.block(1)
		c.endScope()
	}
}

// --- with -------------------------------------------------------------

func (c *Compiler) withStatement() {
	for {
		c.expression()
		name := ""
		if c.match(token.AS) {
			c.consume(token.IDENTIFIER, "expected name after 'as'")
			name = c.previous.Lexeme
		}
		if name != "" {
			c.declareLocal(name)
			c.markInitialized()
		} else {
			c.addLocal(" $with")
			c.markInitialized()
		}
		if !c.match(token.COMMA) {
			break
		}
	}
	c.beginScope()
	c.block(1)
	c.endScope()
}

// --- decorators -------------------------------------------------------

func (c *Compiler) decoratedDeclaration() {
	var decorators []func()
	for c.match(token.AT) {
		c.expression()
		decorators = append(decorators, nil)
		c.endOfStatement()
	}
	switch {
	case c.check(token.DEF):
		c.funcDeclaration()
	case c.check(token.ASYNC):
		c.asyncDeclaration()
	case c.check(token.CLASS):
		c.classDeclaration()
	default:
		c.errorAtCurrent("expected function or class declaration after decorator")
		return
	}
	for range decorators {
		c.emitBytes(chunk.OP_CALL, 1)
	}
}

// --- expression statements & assignment -------------------------------

// expressionStatement covers both a plain expression-as-statement and
// the assignment forms, which need the rewinding trick of §4.3 item 3
// whenever the left-hand side is more than a single simple name.
func (c *Compiler) expressionStatement() {
	cp := c.tellCheckpoint()

	targets := c.parseTargetListSpeculative()
	if targets != nil && (c.check(token.EQUAL)) {
		c.compileAssignment(cp, targets)
		c.endOfStatement()
		return
	}

	c.restoreCheckpoint(cp)
	c.frame.Chunk.Rewind(cp.chunkRec)
	c.parsePrecedence(ExprCanAssign, PrecAssign)
	c.emitOp(chunk.OP_POP)
	c.endOfStatement()
}
