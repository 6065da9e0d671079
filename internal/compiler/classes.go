package compiler

import (
	"kuroko/internal/chunk"
	"kuroko/internal/token"
	"kuroko/internal/value"
)

// emitClosure seals co into the constant pool behind OP_CLOSURE and
// follows it with one (isLocal, index) byte pair per captured upvalue,
// mirroring the teacher's closure-creation encoding.
func (c *Compiler) emitClosure(co *value.CodeObject, upvalues []Upvalue) {
	idx := c.frame.Chunk.AddConstant(value.NewCode(co), c.host)
	if idx > 0xff {
		c.error("too many nested functions in this compilation unit")
		idx = 0
	}
	c.emitBytes(chunk.OP_CLOSURE, byte(idx))
	for _, u := range upvalues {
		if u.IsLocal {
			c.emit(1)
		} else {
			c.emit(0)
		}
		c.emit(u.Index)
	}
}

// --- function declarations / lambdas ------------------------------------

func (c *Compiler) funcDeclaration() {
	c.advance() // 'def'
	c.consume(token.IDENTIFIER, "expected function name")
	name := c.previous.Lexeme
	name = c.mangleInCurrentClass(name)
	c.declareVariable(name)
	if c.frame.scopeDepth > 0 {
		c.markInitialized()
	}

	// Direct class-body members go through classMethodMember instead
	// (see classBodyMember); reaching funcDeclaration with c.class set
	// only happens for an ordinary nested def inside a method's own
	// body, which is never itself a method.
	c.compileFunctionBody(name, FrameFunction)
	c.defineVariable(name)
}

func (c *Compiler) asyncDeclaration() {
	c.advance() // 'async'
	c.consume(token.DEF, "expected 'def' after 'async'")
	c.consume(token.IDENTIFIER, "expected function name")
	name := c.previous.Lexeme
	name = c.mangleInCurrentClass(name)
	c.declareVariable(name)
	if c.frame.scopeDepth > 0 {
		c.markInitialized()
	}

	// See funcDeclaration: async def inside a class body is compiled
	// via classMethodMember instead, never through here.
	c.compileFunctionBody(name, FrameCoroutine)
	c.defineVariable(name)
}

func (c *Compiler) lambda(ctx ExprContext) {
	co, upvalues := c.compileFunctionValue("<lambda>", FrameLambda, func() {
		c.frame.isLambdaBody = true
		if !c.check(token.COLON) {
			c.parameterList(token.COLON)
		}
		c.consume(token.COLON, "expected ':' after lambda parameters")
		c.expression()
		c.emitOp(chunk.OP_RETURN)
	})
	c.emitClosure(co, upvalues)
}

// compileFunctionBody parses `(params) [-> type] : suite` for a def
// statement and leaves the resulting closure pushed on the stack.
func (c *Compiler) compileFunctionBody(name string, ftype FrameType) {
	co, upvalues := c.compileFunctionValue(name, ftype, func() {
		c.consume(token.LPAREN, "expected '(' after function name")
		c.parameterList(token.RPAREN)
		c.consume(token.RPAREN, "expected ')' after parameters")
		if c.match(token.ARROW) {
			c.skipTypeAnnotation()
		}
		c.block(1)
	})
	c.emitClosure(co, upvalues)
}

// compileFunctionValue pushes a new frame, lets body parse the
// parameter list and suite into it, and returns the sealed code object
// along with the upvalue table the enclosing frame needs to wire up.
func (c *Compiler) compileFunctionValue(name string, ftype FrameType, body func()) (*value.CodeObject, []Upvalue) {
	qual := name
	if c.class != nil {
		qual = c.class.name + "." + name
	}
	c.pushFrame(ftype, name, qual)
	c.beginScope()
	body()
	upvalues := append([]Upvalue(nil), c.frame.upvalues...)
	co := c.endFrame()
	return co, upvalues
}

// parameterList implements the full positional/default/*args/**kwargs
// parameter grammar of §4.3 "Functions": required positionals, then
// defaulted ones (each wrapped in an OP_TEST_ARG so the default
// expression is only evaluated when the caller omitted the argument),
// an optional *rest, then keyword-only parameters, then an optional
// **kwargs.
func (c *Compiler) parameterList(closing token.Type) {
	f := c.frame
	sawDefault := false
	for !c.check(closing) {
		if c.match(token.STAR) {
			if c.check(token.IDENTIFIER) {
				c.advance()
				restName := c.previous.Lexeme
				c.declareLocal(restName)
				c.markInitialized()
				f.collectsArgs = true
				f.argNames = append(f.argNames, restName)
			}
			// bare '*' marks the keyword-only separator without a rest name
			for c.match(token.COMMA) {
				if c.check(closing) || c.check(token.DOUBLE_STAR) {
					break
				}
				c.parameterKeywordOnly()
			}
			if c.check(token.DOUBLE_STAR) {
				continue
			}
			break
		}
		if c.match(token.DOUBLE_STAR) {
			c.consume(token.IDENTIFIER, "expected name after '**'")
			kwName := c.previous.Lexeme
			c.declareLocal(kwName)
			c.markInitialized()
			f.collectsKeywords = true
			f.argNames = append(f.argNames, kwName)
			break
		}

		c.consume(token.IDENTIFIER, "expected parameter name")
		pname := c.previous.Lexeme
		c.declareLocal(pname)
		c.markInitialized()
		f.argNames = append(f.argNames, pname)

		if c.match(token.COLON) {
			c.skipTypeAnnotation()
		}

		if c.match(token.EQUAL) {
			sawDefault = true
			slot := len(f.locals) - 1
			testJump := c.frame.Chunk.EmitJump(chunk.OP_TEST_ARG, c.previous.Line)
			c.emit(byte(slot))
			c.expression()
			c.emitBytes(chunk.OP_SET_LOCAL, byte(slot))
			c.emitOp(chunk.OP_POP)
			c.patchJump(testJump)
			f.keywordArgs++
		} else {
			if sawDefault {
				c.error("non-default parameter follows default parameter")
			}
			f.requiredArgs++
		}
		f.potentialPositionals++

		if !c.match(token.COMMA) {
			break
		}
		c.skipNewlines()
	}
}

func (c *Compiler) parameterKeywordOnly() {
	f := c.frame
	c.consume(token.IDENTIFIER, "expected parameter name")
	pname := c.previous.Lexeme
	c.declareLocal(pname)
	c.markInitialized()
	f.argNames = append(f.argNames, pname)
	if c.match(token.COLON) {
		c.skipTypeAnnotation()
	}
	if c.match(token.EQUAL) {
		slot := len(f.locals) - 1
		testJump := c.frame.Chunk.EmitJump(chunk.OP_TEST_ARG, c.previous.Line)
		c.emit(byte(slot))
		c.expression()
		c.emitBytes(chunk.OP_SET_LOCAL, byte(slot))
		c.emitOp(chunk.OP_POP)
		c.patchJump(testJump)
	} else {
		c.error("keyword-only parameter '" + pname + "' requires a default")
	}
	f.keywordArgs++
}

// --- classes ----------------------------------------------------------

func (c *Compiler) classDeclaration() {
	c.advance() // 'class'
	c.consume(token.IDENTIFIER, "expected class name")
	name := c.previous.Lexeme
	c.declareVariable(name)

	c.emitNamedOp(chunk.OP_CLASS, name)
	hasSuper := false
	if c.match(token.LPAREN) {
		if !c.check(token.RPAREN) {
			c.parsePrecedence(ExprNormal, PrecTernary)
			hasSuper = true
			for c.match(token.COMMA) {
				// additional mixins accepted syntactically; the single-
				// inheritance VM model this compiler targets only wires
				// up the first, so each extra base is evaluated and popped.
				c.parsePrecedence(ExprNormal, PrecTernary)
				c.emitOp(chunk.OP_POP)
			}
		}
		c.consume(token.RPAREN, "expected ')' after base class list")
	}

	c.pushClass(name)
	defer c.popClass()

	if hasSuper {
		c.emitOp(chunk.OP_INHERIT)
	}

	c.consume(token.COLON, "expected ':' before class body")
	c.skipNewlinesOnly()

	if c.maybeDocstring() {
		c.skipNewlinesOnly()
	}

	// Class bodies compile straight into the frame active when `class`
	// was encountered: OP_CLASS above leaves the class object on the
	// stack, each member appends an OP_METHOD/property binding against
	// it, and defineVariable below finally pops it into its binding.
	// There is no separate runtime scope for the body itself, so only
	// the member loop's indentation width is tracked here, the same
	// way block() tracks it for ordinary suites.
	if c.check(token.INDENTATION) {
		width := c.current.Col
		for c.check(token.INDENTATION) && c.current.Col >= width {
			c.advance()
			c.classBodyMember()
			c.skipNewlinesOnly()
			if !c.check(token.INDENTATION) || c.current.Col < width {
				break
			}
		}
	} else {
		c.classBodyMember()
	}

	c.defineVariable(name)
}

// classBodyMember compiles one line of a class body. Methods become
// ordinary closures bound with OP_METHOD; `let` fields register a
// class-property slot consulted by namedVariable's implicit-self
// resolution; `@` decorators wrap the member that follows them;
// anything else is an ordinary declaration (nested classes, pass,
// plain statements).
func (c *Compiler) classBodyMember() {
	switch {
	case c.check(token.DEF):
		c.classMethodMember(false)
	case c.check(token.ASYNC):
		c.classMethodMember(true)
	case c.match(token.LET):
		c.classPropertyMember()
	case c.match(token.AT):
		c.classDecoratedMember()
	default:
		c.declaration()
	}
}

func (c *Compiler) classMethodMember(isAsync bool) {
	if isAsync {
		c.advance() // 'async'
	}
	c.consume(token.DEF, "expected 'def'")
	c.consume(token.IDENTIFIER, "expected method name")
	name := c.previous.Lexeme
	mangled := c.mangleInCurrentClass(name)

	ftype := FrameMethod
	switch {
	case isAsync:
		ftype = FrameCoroutineMethod
	case name == "__init__":
		ftype = FrameInit
	}
	c.compileFunctionBodyNoImplicitSelfCheck(mangled, ftype)
	c.emitNamedOp(chunk.OP_METHOD, mangled)

	c.registerClassProperty(mangled)
}

// compileFunctionBodyNoImplicitSelfCheck behaves like
// compileFunctionBody but honors the no_implicit_self option: under it
// the method compiles as a plain FrameFunction, so pushFrame still
// reserves slot 0 but does not name it `self`, and bare names are not
// resolved through the class's property chain.
func (c *Compiler) compileFunctionBodyNoImplicitSelfCheck(name string, ftype FrameType) {
	if c.frame.optionsFlags&OptNoImplicitSelf != 0 {
		ftype = FrameFunction
	}
	c.compileFunctionBody(name, ftype)
}

func (c *Compiler) classPropertyMember() {
	c.consume(token.IDENTIFIER, "expected property name")
	name := c.mangleInCurrentClass(c.previous.Lexeme)
	if c.match(token.COLON) {
		c.skipTypeAnnotation()
	}
	if c.match(token.EQUAL) {
		c.expression()
	} else {
		c.emitOp(chunk.OP_NONE)
	}
	c.emitNamedOp(chunk.OP_METHOD, name)
	c.registerClassProperty(name)
	c.endOfStatement()
}

func (c *Compiler) classDecoratedMember() {
	c.expression()
	c.endOfStatement()
	c.classBodyMember()
	c.emitBytes(chunk.OP_CALL, 1)
}

// registerClassProperty links `name` into the current class context's
// property chain (classctx.go) so methods compiled later in the same
// class body — each in its own freshly pushed Frame — can still
// reference it bare and have namedVariable rewrite the access through
// the implicit self receiver.
func (c *Compiler) registerClassProperty(name string) {
	if c.class == nil {
		return
	}
	c.class.properties = &classProperty{name: name, next: c.class.properties}
}

// lookupClassProperty consults the property chain threaded by
// registerClassProperty. A match is re-interned into the *current*
// frame's own constant pool (never the one active when the property
// was declared, since every method body lives in its own Chunk) and
// that fresh index is what the caller emits OP_GET_PROPERTY /
// OP_SET_PROPERTY against.
func (c *Compiler) lookupClassProperty(name string) (int, bool) {
	if c.class == nil {
		return 0, false
	}
	for p := c.class.properties; p != nil; p = p.next {
		if p.name == name {
			idx := c.frame.Chunk.AddConstant(value.NewString(c.host.InternString([]byte(name))), c.host)
			return idx, true
		}
	}
	return 0, false
}

// compileAssignOrLoad emits an implicit-self property access: push
// `self` (always local slot 0 inside a method frame, per pushFrame's
// reservation), then load/store/compound-assign the property at
// constant index idx.
func (c *Compiler) compileAssignOrLoad(getOp, setOp chunk.OpCode, idx int, ctx ExprContext) {
	c.emitBytes(chunk.OP_GET_LOCAL, 0)
	if ctx == ExprCanAssign && c.match(token.EQUAL) {
		c.expression()
		c.emitBytes(setOp, byte(idx))
		return
	}
	if ctx == ExprCanAssign && c.matchCompoundAssign() {
		c.emitOp(chunk.OP_DUP)
		c.emitBytes(getOp, byte(idx))
		c.compileCompoundAssignRHS()
		c.emitBytes(setOp, byte(idx))
		return
	}
	c.emitBytes(getOp, byte(idx))
}

// --- comprehensions -----------------------------------------------------

type comprehensionKind int

const (
	comprehensionList comprehensionKind = iota
	comprehensionSet
	comprehensionDict
)

// comprehensionSpec carries what the caller (arrayLiteral /
// mapOrSetLiteral) already knows when it spots a trailing `for`:
// where the element (or key) expression started, which collection op
// builds the result, and which token closes the literal.
type comprehensionSpec struct {
	elemStart exprCheckpoint
	kind      comprehensionKind
	collOp    chunk.OpCode
	name      string
	closeTok  token.Type
}

// compileComprehension implements §4.3 rewind kind 2. The element
// expression (and, for dicts, the key already consumed ahead of it)
// sits compiled at the tail of the current chunk, but it needs to run
// once per loop iteration inside a fresh frame instead of once here —
// so it is rewound away (chunk only) and the whole comprehension is
// rebuilt as an immediately-invoked nested function: build an empty
// result collection, run the `for`/`if` clause chain, and inside the
// innermost body re-parse the original element text (scanner rewind,
// same ternary-style trick) so its bytecode lands after the loop
// header instead of before it, then fold it into the result and
// return it.
func (c *Compiler) compileComprehension(spec comprehensionSpec) {
	c.frame.Chunk.Rewind(spec.elemStart.chunkRec)
	forCP := c.tellCheckpoint()

	co, upvalues := c.compileFunctionValue(spec.name, FrameFunction, func() {
		c.emitOp(spec.collOp)
		c.emit(0)
		resultSlot := c.addLocal(" $result")
		c.markInitialized()

		c.consume(token.FOR, "expected 'for' in comprehension")
		c.compileComprehensionClause(spec, resultSlot, forCP)

		c.emitBytes(chunk.OP_GET_LOCAL, byte(resultSlot))
		c.emitOp(chunk.OP_RETURN)
	})
	c.emitClosure(co, upvalues)
	c.emitBytes(chunk.OP_CALL, 0)

	c.restoreCheckpoint(forCP)
	c.consume(token.FOR, "expected 'for' in comprehension")
	c.skipCompiledComprehensionClause(spec)
	c.consume(spec.closeTok, "expected closing delimiter after comprehension")
}

// compileComprehensionClause compiles one `for TARGET in ITER [if
// COND]` header (further trailing `for` clauses nest recursively) and,
// in its innermost body, re-parses the original element/key-value
// expression from source via a scanner-only rewind to elemStart,
// appending it to the running result.
func (c *Compiler) compileComprehensionClause(spec comprehensionSpec, resultSlot int, forCP exprCheckpoint) {
	var names []string
	names = append(names, c.consumeTargetName())
	for c.match(token.COMMA) {
		names = append(names, c.consumeTargetName())
	}
	c.consume(token.IN, "expected 'in' in comprehension clause")
	c.parsePrecedence(ExprNormal, PrecOr)

	c.emitOp(chunk.OP_GET_ITER)
	iterSlot := c.addLocal(" $compiter")
	c.markInitialized()

	loopStart := len(c.frame.Chunk.Code)
	c.pushLoop(true)
	c.emitBytes(chunk.OP_GET_LOCAL, byte(iterSlot))
	exitJump := c.frame.Chunk.EmitJump(chunk.OP_FOR_ITER, c.previous.Line)

	c.beginScope()
	for _, n := range names {
		c.addLocal(n)
		c.markInitialized()
	}

	var guardJumps []int
	for c.match(token.IF) {
		c.parsePrecedence(ExprNormal, PrecOr)
		guardJumps = append(guardJumps, c.emitPopJumpIfFalse())
	}

	if c.match(token.FOR) {
		c.compileComprehensionClause(spec, resultSlot, forCP)
	} else {
		c.compileComprehensionBody(spec, resultSlot)
	}

	for _, j := range guardJumps {
		c.patchJump(j)
	}
	c.endScope()
	c.emitLoop(loopStart)
	c.patchJump(exitJump)
	c.popLoop(true)
}

// compileComprehensionBody re-parses the element (or key/value pair)
// expression from its original source text and folds it into the
// result collection being built in resultSlot.
func (c *Compiler) compileComprehensionBody(spec comprehensionSpec, resultSlot int) {
	after := c.tellCheckpoint()
	c.restoreCheckpoint(spec.elemStart)

	switch spec.kind {
	case comprehensionDict:
		c.emitBytes(chunk.OP_GET_LOCAL, byte(resultSlot))
		c.parsePrecedence(ExprNormal, PrecTernary)
		c.consume(token.COLON, "expected ':' in dict comprehension")
		c.parsePrecedence(ExprNormal, PrecTernary)
		c.emitOp(chunk.OP_SET_INDEX)
		c.emitOp(chunk.OP_POP)
	default:
		// list/set comprehensions fold the element via the same
		// "append"-by-name convention dot() uses for ordinary method
		// calls; the concrete append/add semantics live in the VM,
		// which this compiler only targets, never runs.
		c.emitBytes(chunk.OP_GET_LOCAL, byte(resultSlot))
		methodName := "append"
		if spec.kind == comprehensionSet {
			methodName = "add"
		}
		c.parsePrecedence(ExprNormal, PrecTernary)
		c.emitNamedOp(chunk.OP_INVOKE, methodName)
		c.emit(1)
		c.emitOp(chunk.OP_POP)
	}

	c.restoreCheckpoint(after)
}

// skipCompiledComprehensionClause re-walks the `for`/`if` header
// tokens a second time (without emitting anything) purely to land the
// compiler's token cursor on the closing delimiter, mirroring the
// structure compileComprehensionClause already validated.
func (c *Compiler) skipCompiledComprehensionClause(spec comprehensionSpec) {
	c.consumeTargetName()
	for c.match(token.COMMA) {
		c.consumeTargetName()
	}
	c.consume(token.IN, "expected 'in' in comprehension clause")
	c.skipExpressionTokens()
	for c.check(token.IF) {
		c.advance()
		c.skipExpressionTokens()
	}
	if c.match(token.FOR) {
		c.skipCompiledComprehensionClause(spec)
		return
	}
}

// skipExpressionTokens advances past a single expression's worth of
// tokens without emitting bytecode, by rewinding the chunk recorder
// around an ordinary parse.
func (c *Compiler) skipExpressionTokens() {
	rec := c.frame.Chunk.Record()
	c.parsePrecedence(ExprNormal, PrecOr)
	c.frame.Chunk.Rewind(rec)
}

func (c *Compiler) skipElementTokens(spec comprehensionSpec) {
	rec := c.frame.Chunk.Record()
	c.parsePrecedence(ExprNormal, PrecTernary)
	if spec.kind == comprehensionDict {
		c.consume(token.COLON, "expected ':' in dict comprehension")
		c.parsePrecedence(ExprNormal, PrecTernary)
	}
	c.frame.Chunk.Rewind(rec)
}
