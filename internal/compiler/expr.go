package compiler

import (
	"strconv"
	"strings"

	"kuroko/internal/chunk"
	"kuroko/internal/token"
	"kuroko/internal/value"
)

// parsePrecedence is the heart of the Pratt parser (§4.3): advance one
// token, dispatch its prefix handler, then keep consuming infix
// handlers whose rule precedence is at least prec.
func (c *Compiler) parsePrecedence(ctx ExprContext, prec Precedence) {
	pushedCheckpoint := prec <= PrecTernary
	depthBefore := len(c.ternaryStack)
	if pushedCheckpoint {
		c.pushTernaryCheckpoint(c.tellCheckpoint())
	}

	c.advance()
	rule := c.rule(c.previous.Type)
	if rule.Prefix == nil {
		c.error("expected expression, found " + c.previous.Type.Display())
		if pushedCheckpoint {
			c.popTernaryCheckpoint()
		}
		return
	}
	innerCtx := ctx
	if prec > PrecAssign {
		innerCtx = ExprNormal
	}
	rule.Prefix(innerCtx)

	for prec <= c.rule(c.current.Type).Precedence {
		c.advance()
		infix := c.rule(c.previous.Type).Infix
		if infix == nil {
			break
		}
		infix(innerCtx)
	}

	if pushedCheckpoint && len(c.ternaryStack) > depthBefore {
		// ternary() pops its own checkpoint itself when it fires;
		// otherwise (X was not a ternary) it is still here and must be
		// discarded so outer checkpoints stay balanced.
		c.popTernaryCheckpoint()
	}
}

// expression parses a general-purpose expression, stopping before a
// bare statement-level `=` or top-level `,` (those are handled by the
// assignment-target rewinding machinery in stmt.go).
func (c *Compiler) expression() {
	c.parsePrecedence(ExprNormal, PrecTernary)
}

// --- literals -----------------------------------------------------------

func (c *Compiler) number(ctx ExprContext) {
	text := strings.ReplaceAll(c.previous.Lexeme, "_", "")
	if c.previous.Type == token.FLOAT {
		v, err := c.host.NewFloat(text)
		if err != nil {
			c.error("invalid float literal '" + text + "'")
			return
		}
		c.emitConstantValue(v)
		return
	}
	v, err := c.host.NewInt(text)
	if err != nil {
		c.error("invalid integer literal '" + text + "'")
		return
	}
	c.emitConstantValue(v)
}

func decodeStringLiteral(lexeme string) string {
	if len(lexeme) >= 6 && strings.HasPrefix(lexeme, `"""`) && strings.HasSuffix(lexeme, `"""`) {
		return decodeEscapes(lexeme[3 : len(lexeme)-3])
	}
	if len(lexeme) >= 2 {
		return decodeEscapes(lexeme[1 : len(lexeme)-1])
	}
	return lexeme
}

// decodeEscapes implements the compile-time escape decoding of §4.3:
// \x, \u, \U, octal, and the usual C-style single-letter escapes.
func decodeEscapes(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' || i+1 >= len(s) {
			b.WriteByte(ch)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			// up to three octal digits
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			n, _ := strconv.ParseUint(s[i:j], 8, 16)
			if n <= 0xff {
				b.WriteByte(byte(n))
			} else {
				b.WriteRune(rune(n))
			}
			i = j - 1
		case '\\':
			b.WriteByte('\\')
		case '\'':
			b.WriteByte('\'')
		case '"':
			b.WriteByte('"')
		case 'x':
			if i+2 < len(s) {
				if n, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
					b.WriteByte(byte(n))
					i += 2
					continue
				}
			}
			b.WriteByte('x')
		case 'u':
			if i+4 < len(s) {
				if n, err := strconv.ParseUint(s[i+1:i+5], 16, 32); err == nil {
					b.WriteRune(rune(n))
					i += 4
					continue
				}
			}
			b.WriteByte('u')
		case 'U':
			if i+8 < len(s) {
				if n, err := strconv.ParseUint(s[i+1:i+9], 16, 32); err == nil {
					b.WriteRune(rune(n))
					i += 8
					continue
				}
			}
			b.WriteByte('U')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func (c *Compiler) string_(ctx ExprContext) {
	decoded := decodeStringLiteral(c.previous.Lexeme)
	interned := c.host.InternString([]byte(decoded))
	c.emitConstantValue(value.NewString(interned))
}

// prefixedString handles the b"…"/f"…"/r"…" forms: the scanner has
// already emitted a one-letter PREFIX_* token, and the following
// string token is always present per §4.2.
func (c *Compiler) prefixedString(ctx ExprContext) {
	prefix := c.previous.Type
	c.consume(token.STRING, "expected string after prefix")
	raw := c.previous.Lexeme
	body := raw
	if len(body) >= 2 {
		body = body[1 : len(body)-1]
	}
	switch prefix {
	case token.PREFIX_R:
		c.emitConstantValue(value.NewString(c.host.InternString([]byte(body))))
	case token.PREFIX_B:
		c.emitConstantValue(value.NewBytes([]byte(decodeEscapes(body))))
	case token.PREFIX_F:
		c.compileFString(body)
	}
}

// compileFString compiles an f-string into a sequence of pushed
// pieces formatted via OP_FORMAT_VALUE, joined by OP_STRING_CONCAT
// (§4.3 "Strings"): a simplified single-concat-op encoding of the
// `MAKE_STRING n` idea in §6.4, since the VM that interprets the
// final opcode choice is outside this component's scope.
func (c *Compiler) compileFString(body string) {
	parts := splitFStringParts(body)
	count := 0
	for _, part := range parts {
		if part.isExpr {
			sub := New(part.text, c.fileName, c.host)
			sub.frame = c.frame
			sub.class = c.class
			sub.advance()
			sub.expression()
			c.hadError = c.hadError || sub.hadError
			if sub.firstError != nil && c.firstError == nil {
				c.firstError = sub.firstError
			}
			c.emitOp(chunk.OP_FORMAT_VALUE)
		} else {
			c.emitConstantValue(value.NewString(c.host.InternString([]byte(decodeEscapes(part.text)))))
		}
		count++
	}
	if count == 0 {
		c.emitConstantValue(value.NewString(""))
		count = 1
	}
	for i := 1; i < count; i++ {
		c.emitOp(chunk.OP_STRING_CONCAT)
	}
}

type fstringPart struct {
	text   string
	isExpr bool
}

// splitFStringParts performs the minimal brace-splitting an f-string
// needs: `{{`/`}}` are literal braces, `{expr}` is a nested expression
// compiled by a fresh sub-compiler sharing this frame.
func splitFStringParts(body string) []fstringPart {
	var parts []fstringPart
	var lit strings.Builder
	i := 0
	for i < len(body) {
		switch {
		case body[i] == '{' && i+1 < len(body) && body[i+1] == '{':
			lit.WriteByte('{')
			i += 2
		case body[i] == '}' && i+1 < len(body) && body[i+1] == '}':
			lit.WriteByte('}')
			i += 2
		case body[i] == '{':
			if lit.Len() > 0 {
				parts = append(parts, fstringPart{text: lit.String()})
				lit.Reset()
			}
			depth := 1
			j := i + 1
			for j < len(body) && depth > 0 {
				if body[j] == '{' {
					depth++
				} else if body[j] == '}' {
					depth--
					if depth == 0 {
						break
					}
				}
				j++
			}
			parts = append(parts, fstringPart{text: body[i+1 : j], isExpr: true})
			i = j + 1
		default:
			lit.WriteByte(body[i])
			i++
		}
	}
	if lit.Len() > 0 {
		parts = append(parts, fstringPart{text: lit.String()})
	}
	return parts
}

func (c *Compiler) literal(ctx ExprContext) {
	switch c.previous.Type {
	case token.TRUE:
		c.emitOp(chunk.OP_TRUE)
	case token.FALSE:
		c.emitOp(chunk.OP_FALSE)
	case token.NONE:
		c.emitOp(chunk.OP_NONE)
	}
}

func (c *Compiler) ellipsis(ctx ExprContext) {
	if v, ok := c.host.LookupBuiltin("Ellipsis"); ok {
		c.emitConstantValue(v)
		return
	}
	c.emitConstantValue(value.NewString("..."))
}

// --- names, calls, attributes, subscription -----------------------------

func (c *Compiler) variable(ctx ExprContext) {
	name := c.previous.Lexeme
	c.namedVariable(name, ctx)
}

func (c *Compiler) namedVariable(name string, ctx ExprContext) {
	var getOp, setOp chunk.OpCode
	var argByte = -1

	if c.inImplicitSelfScope() {
		if idx, ok := c.lookupClassProperty(name); ok {
			c.compileAssignOrLoad(chunk.OP_GET_PROPERTY, chunk.OP_SET_PROPERTY, idx, ctx)
			return
		}
	}

	if slot := c.resolveLocal(c.frame, name); slot != -1 {
		getOp, setOp, argByte = chunk.OP_GET_LOCAL, chunk.OP_SET_LOCAL, slot
	} else if up := c.resolveUpvalue(c.frame, name); up != -1 {
		getOp, setOp, argByte = chunk.OP_GET_UPVALUE, chunk.OP_SET_UPVALUE, up
	} else {
		c.namedGlobal(name, ctx)
		return
	}

	if ctx == ExprCanAssign && c.match(token.EQUAL) {
		c.expression()
		c.emitBytes(setOp, byte(argByte))
		return
	}
	if ctx == ExprCanAssign && c.matchCompoundAssign() {
		c.emitBytes(getOp, byte(argByte))
		c.compileCompoundAssignRHS()
		c.emitBytes(setOp, byte(argByte))
		return
	}
	c.emitBytes(getOp, byte(argByte))
}

func (c *Compiler) namedGlobal(name string, ctx ExprContext) {
	if ctx == ExprCanAssign && c.match(token.EQUAL) {
		c.expression()
		c.emitNamedOp(chunk.OP_SET_GLOBAL, name)
		return
	}
	if ctx == ExprCanAssign && c.matchCompoundAssign() {
		c.emitNamedOp(chunk.OP_GET_GLOBAL, name)
		c.compileCompoundAssignRHS()
		c.emitNamedOp(chunk.OP_SET_GLOBAL, name)
		return
	}
	c.emitNamedOp(chunk.OP_GET_GLOBAL, name)
}

// matchCompoundAssign recognizes +=, -=, and friends, leaving the
// binary opcode to apply on c.pendingCompoundOp.
var compoundOps = map[token.Type]chunk.OpCode{
	token.PLUS_EQUAL:         chunk.OP_ADD,
	token.MINUS_EQUAL:        chunk.OP_SUBTRACT,
	token.STAR_EQUAL:         chunk.OP_MULTIPLY,
	token.SLASH_EQUAL:        chunk.OP_DIVIDE,
	token.DOUBLE_SLASH_EQUAL: chunk.OP_FLOORDIV,
	token.PERCENT_EQUAL:      chunk.OP_MODULO,
	token.DOUBLE_STAR_EQUAL:  chunk.OP_POWER,
	token.AMP_EQUAL:          chunk.OP_BIT_AND,
	token.PIPE_EQUAL:         chunk.OP_BIT_OR,
	token.CARET_EQUAL:        chunk.OP_BIT_XOR,
	token.LEFT_SHIFT_EQUAL:   chunk.OP_SHIFT_LEFT,
	token.RIGHT_SHIFT_EQUAL:  chunk.OP_SHIFT_RIGHT,
}

func (c *Compiler) matchCompoundAssign() bool {
	if _, ok := compoundOps[c.current.Type]; !ok {
		return false
	}
	c.pendingCompoundOp = compoundOps[c.current.Type]
	c.advance()
	return true
}

func (c *Compiler) compileCompoundAssignRHS() {
	c.expression()
	c.emitOp(c.pendingCompoundOp)
}

func (c *Compiler) grouping(ctx ExprContext) {
	c.skipNewlines()
	if c.match(token.RPAREN) {
		c.emitOp(chunk.OP_TUPLE)
		c.emit(0)
		return
	}
	count := 0
	isTuple := false
	for {
		c.skipNewlines()
		c.parsePrecedence(ExprNormal, PrecTernary)
		count++
		c.skipNewlines()
		if c.match(token.COMMA) {
			isTuple = true
			c.skipNewlines()
			if c.check(token.RPAREN) {
				break
			}
			continue
		}
		break
	}
	c.skipNewlines()
	c.consume(token.RPAREN, "expected ')' after expression")
	if isTuple {
		c.emitOp(chunk.OP_TUPLE)
		c.emit(byte(count))
	}
}

func (c *Compiler) call(ctx ExprContext) {
	argCount := c.argumentList(token.RPAREN)
	c.emitBytes(chunk.OP_CALL, byte(argCount))
}

// argumentList parses a comma-separated expression list up to (and
// consuming) close, returning how many values were pushed.
func (c *Compiler) argumentList(close token.Type) int {
	count := 0
	c.skipNewlines()
	if !c.check(close) {
		for {
			c.skipNewlines()
			c.parsePrecedence(ExprNormal, PrecTernary)
			count++
			c.skipNewlines()
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.skipNewlines()
	c.consume(close, "expected closing delimiter in argument list")
	return count
}

func (c *Compiler) dot(ctx ExprContext) {
	c.consume(token.IDENTIFIER, "expected property name after '.'")
	name := c.mangleInCurrentClass(c.previous.Lexeme)

	if ctx == ExprMethodCall && c.check(token.LPAREN) {
		c.advance()
		argCount := c.argumentList(token.RPAREN)
		c.emitNamedOp(chunk.OP_INVOKE, name)
		c.emit(byte(argCount))
		return
	}

	if ctx == ExprCanAssign && c.match(token.EQUAL) {
		c.expression()
		c.emitNamedOp(chunk.OP_SET_PROPERTY, name)
		return
	}
	if ctx == ExprCanAssign && c.matchCompoundAssign() {
		c.emitOp(chunk.OP_DUP)
		c.emitNamedOp(chunk.OP_GET_PROPERTY, name)
		c.compileCompoundAssignRHS()
		c.emitNamedOp(chunk.OP_SET_PROPERTY, name)
		return
	}
	if ctx == ExprDelTarget && c.isEndOfDelTarget() {
		c.emitNamedOp(chunk.OP_DEL_PROPERTY, name)
		c.frame.delSatisfied = true
		return
	}
	c.emitNamedOp(chunk.OP_GET_PROPERTY, name)
}

func (c *Compiler) isEndOfDelTarget() bool {
	return c.check(token.COMMA) || c.check(token.EOL) || c.check(token.EOF) || c.check(token.SEMICOLON)
}

func (c *Compiler) subscript(ctx ExprContext) {
	// Slice detection: `[` start [`:` end [`:` step]] `]`.
	if c.check(token.COLON) {
		c.compileSlice(true, ctx)
		return
	}
	c.parsePrecedence(ExprNormal, PrecTernary)
	if c.check(token.COLON) {
		c.compileSliceContinue(ctx)
		return
	}
	c.consume(token.RBRACKET, "expected ']' after index")

	if ctx == ExprCanAssign && c.match(token.EQUAL) {
		c.expression()
		c.emitOp(chunk.OP_SET_INDEX)
		return
	}
	if ctx == ExprCanAssign && c.matchCompoundAssign() {
		c.emitOp(chunk.OP_DUP_TOP_N)
		c.emit(2)
		c.emitOp(chunk.OP_GET_INDEX)
		c.compileCompoundAssignRHS()
		c.emitOp(chunk.OP_SET_INDEX)
		return
	}
	if ctx == ExprDelTarget && c.isEndOfDelTarget() {
		c.emitOp(chunk.OP_DEL_INDEX)
		c.frame.delSatisfied = true
		return
	}
	c.emitOp(chunk.OP_GET_INDEX)
}

func (c *Compiler) compileSlice(noStart bool, ctx ExprContext) {
	if noStart {
		c.emitOp(chunk.OP_NONE)
	}
	c.compileSliceContinue(ctx)
}

func (c *Compiler) compileSliceContinue(ctx ExprContext) {
	c.consume(token.COLON, "expected ':' in slice")
	n := 2
	if c.check(token.RBRACKET) || c.check(token.COLON) {
		c.emitOp(chunk.OP_NONE)
	} else {
		c.parsePrecedence(ExprNormal, PrecTernary)
	}
	if c.match(token.COLON) {
		n = 3
		if c.check(token.RBRACKET) {
			c.emitOp(chunk.OP_NONE)
		} else {
			c.parsePrecedence(ExprNormal, PrecTernary)
		}
	}
	c.consume(token.RBRACKET, "expected ']' after slice")
	c.emitBytes(chunk.OP_GET_SLICE, byte(n))
}

func (c *Compiler) arrayLiteral(ctx ExprContext) {
	count := 0
	c.skipNewlines()
	if !c.check(token.RBRACKET) {
		elemStart := c.tellCheckpoint()
		c.parsePrecedence(ExprNormal, PrecTernary)
		count++
		c.skipNewlines()
		if c.check(token.FOR) {
			c.compileComprehension(comprehensionSpec{
				elemStart: elemStart,
				kind:      comprehensionList,
				collOp:    chunk.OP_ARRAY,
				name:      "<listcomp>",
				closeTok:  token.RBRACKET,
			})
			return
		}
		for c.match(token.COMMA) {
			c.skipNewlines()
			if c.check(token.RBRACKET) {
				break
			}
			c.parsePrecedence(ExprNormal, PrecTernary)
			count++
			c.skipNewlines()
		}
	}
	c.consume(token.RBRACKET, "expected ']' after list literal")
	c.emitOp(chunk.OP_ARRAY)
	c.emit(byte(count))
}

func (c *Compiler) mapOrSetLiteral(ctx ExprContext) {
	c.skipNewlines()
	if c.match(token.RBRACE) {
		c.emitOp(chunk.OP_MAP)
		c.emit(0)
		return
	}
	elemStart := c.tellCheckpoint()
	c.parsePrecedence(ExprNormal, PrecTernary)
	if c.match(token.COLON) {
		c.parsePrecedence(ExprNormal, PrecTernary)
		count := 1
		c.skipNewlines()
		if c.check(token.FOR) {
			c.compileComprehension(comprehensionSpec{
				elemStart: elemStart,
				kind:      comprehensionDict,
				collOp:    chunk.OP_MAP,
				name:      "<dictcomp>",
				closeTok:  token.RBRACE,
			})
			return
		}
		for c.match(token.COMMA) {
			c.skipNewlines()
			if c.check(token.RBRACE) {
				break
			}
			c.parsePrecedence(ExprNormal, PrecTernary)
			c.consume(token.COLON, "expected ':' in map literal")
			c.parsePrecedence(ExprNormal, PrecTernary)
			count++
			c.skipNewlines()
		}
		c.consume(token.RBRACE, "expected '}' after map literal")
		c.emitOp(chunk.OP_MAP)
		c.emit(byte(count))
		return
	}
	count := 1
	c.skipNewlines()
	if c.check(token.FOR) {
		c.compileComprehension(comprehensionSpec{
			elemStart: elemStart,
			kind:      comprehensionSet,
			collOp:    chunk.OP_SET,
			name:      "<setcomp>",
			closeTok:  token.RBRACE,
		})
		return
	}
	for c.match(token.COMMA) {
		c.skipNewlines()
		if c.check(token.RBRACE) {
			break
		}
		c.parsePrecedence(ExprNormal, PrecTernary)
		count++
		c.skipNewlines()
	}
	c.consume(token.RBRACE, "expected '}' after set literal")
	c.emitOp(chunk.OP_SET)
	c.emit(byte(count))
}

// --- unary / binary -------------------------------------------------------

func (c *Compiler) await(ctx ExprContext) {
	c.frame.hasAwait = true
	c.parsePrecedence(ExprNormal, PrecNot)
	c.emitOp(chunk.OP_AWAIT)
}

func (c *Compiler) unary(ctx ExprContext) {
	op := c.previous.Type
	c.parsePrecedence(ExprNormal, PrecNot)
	switch op {
	case token.MINUS:
		c.emitOp(chunk.OP_NEGATE)
	case token.TILDE:
		c.emitOp(chunk.OP_BIT_NOT)
	case token.NOT:
		c.emitOp(chunk.OP_NOT)
	case token.STAR, token.DOUBLE_STAR:
		// A leading '*'/'**' here means call-site or literal unpacking;
		// no unpack opcode is emitted for it, so the operand is simply
		// left on the stack as-is.
	}
}

var binaryOps = map[token.Type]chunk.OpCode{
	token.PLUS:         chunk.OP_ADD,
	token.MINUS:        chunk.OP_SUBTRACT,
	token.STAR:         chunk.OP_MULTIPLY,
	token.SLASH:        chunk.OP_DIVIDE,
	token.DOUBLE_SLASH: chunk.OP_FLOORDIV,
	token.PERCENT:      chunk.OP_MODULO,
	token.DOUBLE_STAR:  chunk.OP_POWER,
	token.AMP:          chunk.OP_BIT_AND,
	token.PIPE:         chunk.OP_BIT_OR,
	token.CARET:        chunk.OP_BIT_XOR,
	token.LEFT_SHIFT:   chunk.OP_SHIFT_LEFT,
	token.RIGHT_SHIFT:  chunk.OP_SHIFT_RIGHT,
}

func (c *Compiler) binary(ctx ExprContext) {
	op := c.previous.Type
	rule := c.rule(op)
	c.parsePrecedence(ExprNormal, rule.Precedence+1)
	c.emitOp(binaryOps[op])
}

var comparisonOps = map[token.Type]chunk.OpCode{
	token.EQUAL_EQUAL:   chunk.OP_EQUAL,
	token.BANG_EQUAL:    chunk.OP_NOT_EQUAL,
	token.LESS:          chunk.OP_LESS,
	token.LESS_EQUAL:    chunk.OP_LESS_EQUAL,
	token.GREATER:       chunk.OP_GREATER,
	token.GREATER_EQUAL: chunk.OP_GREATER_EQUAL,
}

// comparison implements chained comparisons (`a < b < c`) per §4.3:
// each comparand is evaluated once via OP_DUP + OP_SWAP so the next
// comparison can reuse it, with a short-circuit jump on first failure.
func (c *Compiler) comparison(ctx ExprContext) {
	op := c.previous.Type
	rule := c.rule(op)
	c.parsePrecedence(ExprNormal, rule.Precedence+1)
	c.emitOp(comparisonOps[op])

	for isComparisonToken(c.current.Type) {
		c.emitOp(chunk.OP_DUP)
		jumpSite := c.emitJumpIfFalseOrPop()
		c.advance()
		next := c.previous.Type
		nextRule := c.rule(next)
		c.parsePrecedence(ExprNormal, nextRule.Precedence+1)
		c.emitOp(comparisonOps[next])
		c.patchJump(jumpSite)
	}
}

func isComparisonToken(t token.Type) bool {
	_, ok := comparisonOps[t]
	return ok
}

func (c *Compiler) isOrIn(ctx ExprContext) {
	op := c.previous.Type
	negate := false
	if op == token.IS && c.match(token.NOT) {
		negate = true
	}
	rule := c.rule(op)
	c.parsePrecedence(ExprNormal, rule.Precedence+1)
	if op == token.IS {
		c.emitOp(chunk.OP_IS)
	} else {
		c.emitOp(chunk.OP_CONTAINS)
	}
	if negate {
		c.emitOp(chunk.OP_NOT)
	}
}

// notIn handles `X not in Y`: NOT appears in infix position here
// (after X), immediately requiring IN.
func (c *Compiler) notIn(ctx ExprContext) {
	c.consume(token.IN, "expected 'in' after 'not'")
	rule := c.rule(token.IN)
	c.parsePrecedence(ExprNormal, rule.Precedence+1)
	c.emitOp(chunk.OP_CONTAINS)
	c.emitOp(chunk.OP_NOT)
}

func (c *Compiler) and_(ctx ExprContext) {
	jump := c.emitJumpIfFalseOrPop()
	c.parsePrecedence(ExprNormal, PrecAnd+1)
	c.patchJump(jump)
}

func (c *Compiler) or_(ctx ExprContext) {
	jump := c.emitJumpIfTrueOrPop()
	c.parsePrecedence(ExprNormal, PrecOr+1)
	c.patchJump(jump)
}

// ternary implements `X if C else Y` (§4.3 rewind kind 1). By the time
// this infix handler fires, X has already been compiled eagerly and
// its bytecode is sitting at the top of the current chunk — wrong,
// since C must run first. The fix is the checkpoint taken by
// parsePrecedence before X was parsed: rewind the chunk past X's
// bytes (discarding them), compile C for real, emit the branch, then
// rewind the *scanner* back to that same checkpoint and re-parse X so
// its bytecode lands after the branch instead of before it.
func (c *Compiler) ternary(ctx ExprContext) {
	cp := c.popTernaryCheckpoint()

	c.frame.Chunk.Rewind(cp.chunkRec)

	c.parsePrecedence(ExprNormal, PrecOr)
	afterCond := c.tellCheckpoint()

	elseJump := c.emitPopJumpIfFalse()
	c.restoreCheckpoint(cp)
	c.parsePrecedence(ExprNormal, PrecTernary+1)
	endJump := c.emitJump()

	c.patchJump(elseJump)
	c.restoreCheckpoint(afterCond)
	c.consume(token.ELSE, "expected 'else' in conditional expression")
	c.parsePrecedence(ExprNormal, PrecTernary)

	c.patchJump(endJump)
}
