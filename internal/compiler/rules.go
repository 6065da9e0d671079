package compiler

import "kuroko/internal/token"

// Precedence is the ladder of §4.3, loosest to tightest.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssign
	PrecComma
	PrecMustAssign
	PrecCanAssign
	PrecDelTarget
	PrecTernary
	PrecOr
	PrecAnd
	PrecNot
	PrecComparison
	PrecBitOr
	PrecBitXor
	PrecBitAnd
	PrecShift
	PrecSum
	PrecTerm
	PrecFactor
	PrecExponent
	PrecPrimary
)

// ExprContext is the expression-kind tag threaded through every parse
// handler (§4.3): it governs which trailing operators are legal and
// whether a handler should emit a load or a store.
type ExprContext int

const (
	ExprNormal ExprContext = iota
	ExprCanAssign
	ExprAssignTarget
	ExprDelTarget
	ExprMethodCall
	ExprClassParameters
)

type prefixFn func(ctx ExprContext)
type infixFn func(ctx ExprContext)

type ParseRule struct {
	Prefix     prefixFn
	Infix      infixFn
	Precedence Precedence
}

// buildRules constructs the Pratt table bound to this compiler
// instance. It is built once per Compiler rather than as a package
// global because every handler is a method value closing over c.
func (c *Compiler) buildRules() map[token.Type]ParseRule {
	r := make(map[token.Type]ParseRule)

	r[token.INT] = ParseRule{Prefix: c.number, Precedence: PrecNone}
	r[token.FLOAT] = ParseRule{Prefix: c.number, Precedence: PrecNone}
	r[token.STRING] = ParseRule{Prefix: c.string_, Precedence: PrecNone}
	r[token.BIG_STRING] = ParseRule{Prefix: c.string_, Precedence: PrecNone}
	r[token.PREFIX_B] = ParseRule{Prefix: c.prefixedString, Precedence: PrecNone}
	r[token.PREFIX_F] = ParseRule{Prefix: c.prefixedString, Precedence: PrecNone}
	r[token.PREFIX_R] = ParseRule{Prefix: c.prefixedString, Precedence: PrecNone}
	r[token.TRUE] = ParseRule{Prefix: c.literal, Precedence: PrecNone}
	r[token.FALSE] = ParseRule{Prefix: c.literal, Precedence: PrecNone}
	r[token.NONE] = ParseRule{Prefix: c.literal, Precedence: PrecNone}
	r[token.ELLIPSIS] = ParseRule{Prefix: c.ellipsis, Precedence: PrecNone}
	r[token.IDENTIFIER] = ParseRule{Prefix: c.variable, Precedence: PrecNone}
	r[token.LPAREN] = ParseRule{Prefix: c.grouping, Infix: c.call, Precedence: PrecPrimary}
	r[token.LBRACKET] = ParseRule{Prefix: c.arrayLiteral, Infix: c.subscript, Precedence: PrecPrimary}
	r[token.LBRACE] = ParseRule{Prefix: c.mapOrSetLiteral, Precedence: PrecNone}
	r[token.DOT] = ParseRule{Infix: c.dot, Precedence: PrecPrimary}
	r[token.LAMBDA] = ParseRule{Prefix: c.lambda, Precedence: PrecNone}
	r[token.AWAIT] = ParseRule{Prefix: c.await, Precedence: PrecNone}

	r[token.MINUS] = ParseRule{Prefix: c.unary, Infix: c.binary, Precedence: PrecSum}
	r[token.PLUS] = ParseRule{Infix: c.binary, Precedence: PrecSum}
	r[token.TILDE] = ParseRule{Prefix: c.unary, Precedence: PrecNone}
	r[token.NOT] = ParseRule{Prefix: c.unary, Infix: c.notIn, Precedence: PrecComparison}
	r[token.STAR] = ParseRule{Prefix: c.unary, Infix: c.binary, Precedence: PrecTerm}
	r[token.SLASH] = ParseRule{Infix: c.binary, Precedence: PrecTerm}
	r[token.DOUBLE_SLASH] = ParseRule{Infix: c.binary, Precedence: PrecTerm}
	r[token.PERCENT] = ParseRule{Infix: c.binary, Precedence: PrecTerm}
	r[token.DOUBLE_STAR] = ParseRule{Prefix: c.unary, Infix: c.binary, Precedence: PrecExponent}
	r[token.AMP] = ParseRule{Infix: c.binary, Precedence: PrecBitAnd}
	r[token.PIPE] = ParseRule{Infix: c.binary, Precedence: PrecBitOr}
	r[token.CARET] = ParseRule{Infix: c.binary, Precedence: PrecBitXor}
	r[token.LEFT_SHIFT] = ParseRule{Infix: c.binary, Precedence: PrecShift}
	r[token.RIGHT_SHIFT] = ParseRule{Infix: c.binary, Precedence: PrecShift}

	r[token.EQUAL_EQUAL] = ParseRule{Infix: c.comparison, Precedence: PrecComparison}
	r[token.BANG_EQUAL] = ParseRule{Infix: c.comparison, Precedence: PrecComparison}
	r[token.LESS] = ParseRule{Infix: c.comparison, Precedence: PrecComparison}
	r[token.LESS_EQUAL] = ParseRule{Infix: c.comparison, Precedence: PrecComparison}
	r[token.GREATER] = ParseRule{Infix: c.comparison, Precedence: PrecComparison}
	r[token.GREATER_EQUAL] = ParseRule{Infix: c.comparison, Precedence: PrecComparison}
	r[token.IS] = ParseRule{Infix: c.isOrIn, Precedence: PrecComparison}
	r[token.IN] = ParseRule{Infix: c.isOrIn, Precedence: PrecComparison}

	r[token.AND] = ParseRule{Infix: c.and_, Precedence: PrecAnd}
	r[token.OR] = ParseRule{Infix: c.or_, Precedence: PrecOr}
	r[token.IF] = ParseRule{Infix: c.ternary, Precedence: PrecTernary}

	return r
}

func (c *Compiler) rule(t token.Type) ParseRule {
	return c.rules[t]
}
