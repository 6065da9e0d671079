// Package chunk implements the Chunk Emitter (§4.1): an append-only
// bytecode buffer with a constant pool, a sparse line map, an optional
// expression map for underline-style error spans, and the
// OVERLONG_JUMP escape mechanism used when a jump offset does not fit
// in 16 bits. The compiler is the only writer; nothing here knows how
// to execute the bytecode it assembles.
package chunk

import (
	"fmt"

	"kuroko/internal/value"
)

type OpCode byte

const (
	OP_CONSTANT OpCode = iota
	OP_CONSTANT_LONG
	OP_NONE
	OP_TRUE
	OP_FALSE
	OP_POP
	OP_POP_N
	OP_DUP
	OP_SWAP

	// Variables.
	OP_GET_GLOBAL
	OP_SET_GLOBAL
	OP_DEFINE_GLOBAL
	OP_GET_LOCAL
	OP_SET_LOCAL
	OP_GET_UPVALUE
	OP_SET_UPVALUE
	OP_CLOSE_UPVALUE
	OP_GET_PROPERTY
	OP_SET_PROPERTY
	OP_DEL_PROPERTY
	OP_GET_INDEX
	OP_SET_INDEX
	OP_DEL_INDEX
	OP_GET_SLICE

	// Arithmetic and bitwise.
	OP_ADD
	OP_SUBTRACT
	OP_MULTIPLY
	OP_DIVIDE
	OP_FLOORDIV
	OP_MODULO
	OP_POWER
	OP_NEGATE
	OP_BIT_AND
	OP_BIT_OR
	OP_BIT_XOR
	OP_BIT_NOT
	OP_SHIFT_LEFT
	OP_SHIFT_RIGHT
	OP_INVERT

	// Comparisons and boolean logic.
	OP_EQUAL
	OP_NOT_EQUAL
	OP_GREATER
	OP_GREATER_EQUAL
	OP_LESS
	OP_LESS_EQUAL
	OP_NOT
	OP_IS
	OP_IN
	OP_CONTAINS

	// Control flow.
	OP_JUMP
	OP_JUMP_IF_FALSE
	OP_JUMP_IF_TRUE
	OP_POP_JUMP_IF_FALSE
	OP_JUMP_IF_FALSE_OR_POP
	OP_JUMP_IF_TRUE_OR_POP
	OP_LOOP
	OP_BREAK
	OP_CONTINUE

	// Functions and classes.
	OP_CALL
	OP_CALL_KW
	OP_INVOKE
	OP_CLOSURE
	OP_RETURN
	OP_YIELD
	OP_AWAIT
	OP_CLASS
	OP_METHOD
	OP_INHERIT
	OP_GET_SUPER
	OP_SUPER_INVOKE
	OP_DOCSTRING

	// Collections.
	OP_TUPLE
	OP_ARRAY
	OP_MAP
	OP_SET
	OP_UNPACK
	OP_UNPACK_EX

	// Iteration.
	OP_GET_ITER
	OP_FOR_ITER

	// Exception handling.
	OP_PUSH_TRY
	OP_POP_TRY
	OP_RAISE
	OP_RERAISE
	OP_FILTER_EXCEPT

	// Imports.
	OP_IMPORT
	OP_IMPORT_FROM
	OP_IMPORT_STAR

	// Assignment helpers.
	OP_DUP_TOP_N
	OP_ROT

	// OP_TEST_ARG guards a parameter default: a 16-bit jump offset (in
	// EmitJump style) followed by the local slot byte the default
	// belongs to. If the caller already supplied that argument, the
	// default expression and its OP_SET_LOCAL/OP_POP are skipped rather
	// than evaluated and discarded.
	OP_TEST_ARG

	// Literals / strings.
	OP_STRING_CONCAT
	OP_FORMAT_VALUE

	// Escape mechanism for an overlong jump (§4.1): the opcode at the
	// jump site is overwritten with this marker and the real 32-bit
	// offset is recorded in the chunk's overlong-jump table.
	OP_OVERLONG_JUMP

	OP_PRINT // REPL/debug convenience, mirrors the teacher's print statement opcode
)

var opNames = map[OpCode]string{
	OP_CONSTANT:             "OP_CONSTANT",
	OP_CONSTANT_LONG:        "OP_CONSTANT_LONG",
	OP_NONE:                 "OP_NONE",
	OP_TRUE:                 "OP_TRUE",
	OP_FALSE:                "OP_FALSE",
	OP_POP:                  "OP_POP",
	OP_POP_N:                "OP_POP_N",
	OP_DUP:                  "OP_DUP",
	OP_SWAP:                 "OP_SWAP",
	OP_GET_GLOBAL:           "OP_GET_GLOBAL",
	OP_SET_GLOBAL:           "OP_SET_GLOBAL",
	OP_DEFINE_GLOBAL:        "OP_DEFINE_GLOBAL",
	OP_GET_LOCAL:            "OP_GET_LOCAL",
	OP_SET_LOCAL:            "OP_SET_LOCAL",
	OP_GET_UPVALUE:          "OP_GET_UPVALUE",
	OP_SET_UPVALUE:          "OP_SET_UPVALUE",
	OP_CLOSE_UPVALUE:        "OP_CLOSE_UPVALUE",
	OP_GET_PROPERTY:         "OP_GET_PROPERTY",
	OP_SET_PROPERTY:         "OP_SET_PROPERTY",
	OP_DEL_PROPERTY:         "OP_DEL_PROPERTY",
	OP_GET_INDEX:            "OP_GET_INDEX",
	OP_SET_INDEX:            "OP_SET_INDEX",
	OP_DEL_INDEX:            "OP_DEL_INDEX",
	OP_GET_SLICE:            "OP_GET_SLICE",
	OP_ADD:                  "OP_ADD",
	OP_SUBTRACT:             "OP_SUBTRACT",
	OP_MULTIPLY:             "OP_MULTIPLY",
	OP_DIVIDE:               "OP_DIVIDE",
	OP_FLOORDIV:             "OP_FLOORDIV",
	OP_MODULO:               "OP_MODULO",
	OP_POWER:                "OP_POWER",
	OP_NEGATE:               "OP_NEGATE",
	OP_BIT_AND:              "OP_BIT_AND",
	OP_BIT_OR:               "OP_BIT_OR",
	OP_BIT_XOR:              "OP_BIT_XOR",
	OP_BIT_NOT:              "OP_BIT_NOT",
	OP_SHIFT_LEFT:           "OP_SHIFT_LEFT",
	OP_SHIFT_RIGHT:          "OP_SHIFT_RIGHT",
	OP_INVERT:               "OP_INVERT",
	OP_EQUAL:                "OP_EQUAL",
	OP_NOT_EQUAL:            "OP_NOT_EQUAL",
	OP_GREATER:              "OP_GREATER",
	OP_GREATER_EQUAL:        "OP_GREATER_EQUAL",
	OP_LESS:                 "OP_LESS",
	OP_LESS_EQUAL:           "OP_LESS_EQUAL",
	OP_NOT:                  "OP_NOT",
	OP_IS:                   "OP_IS",
	OP_IN:                   "OP_IN",
	OP_CONTAINS:             "OP_CONTAINS",
	OP_JUMP:                 "OP_JUMP",
	OP_JUMP_IF_FALSE:        "OP_JUMP_IF_FALSE",
	OP_JUMP_IF_TRUE:         "OP_JUMP_IF_TRUE",
	OP_POP_JUMP_IF_FALSE:    "OP_POP_JUMP_IF_FALSE",
	OP_JUMP_IF_FALSE_OR_POP: "OP_JUMP_IF_FALSE_OR_POP",
	OP_JUMP_IF_TRUE_OR_POP:  "OP_JUMP_IF_TRUE_OR_POP",
	OP_LOOP:                 "OP_LOOP",
	OP_BREAK:                "OP_BREAK",
	OP_CONTINUE:             "OP_CONTINUE",
	OP_CALL:                 "OP_CALL",
	OP_CALL_KW:              "OP_CALL_KW",
	OP_INVOKE:               "OP_INVOKE",
	OP_CLOSURE:              "OP_CLOSURE",
	OP_RETURN:               "OP_RETURN",
	OP_YIELD:                "OP_YIELD",
	OP_AWAIT:                "OP_AWAIT",
	OP_CLASS:                "OP_CLASS",
	OP_METHOD:               "OP_METHOD",
	OP_INHERIT:              "OP_INHERIT",
	OP_GET_SUPER:            "OP_GET_SUPER",
	OP_SUPER_INVOKE:         "OP_SUPER_INVOKE",
	OP_DOCSTRING:            "OP_DOCSTRING",
	OP_TUPLE:                "OP_TUPLE",
	OP_ARRAY:                "OP_ARRAY",
	OP_MAP:                  "OP_MAP",
	OP_SET:                  "OP_SET",
	OP_UNPACK:               "OP_UNPACK",
	OP_UNPACK_EX:            "OP_UNPACK_EX",
	OP_GET_ITER:             "OP_GET_ITER",
	OP_FOR_ITER:             "OP_FOR_ITER",
	OP_PUSH_TRY:             "OP_PUSH_TRY",
	OP_POP_TRY:              "OP_POP_TRY",
	OP_RAISE:                "OP_RAISE",
	OP_RERAISE:              "OP_RERAISE",
	OP_FILTER_EXCEPT:        "OP_FILTER_EXCEPT",
	OP_IMPORT:               "OP_IMPORT",
	OP_IMPORT_FROM:          "OP_IMPORT_FROM",
	OP_IMPORT_STAR:          "OP_IMPORT_STAR",
	OP_DUP_TOP_N:            "OP_DUP_TOP_N",
	OP_ROT:                  "OP_ROT",
	OP_TEST_ARG:             "OP_TEST_ARG",
	OP_STRING_CONCAT:        "OP_STRING_CONCAT",
	OP_FORMAT_VALUE:         "OP_FORMAT_VALUE",
	OP_OVERLONG_JUMP:        "OP_OVERLONG_JUMP",
	OP_PRINT:                "OP_PRINT",
}

func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OP_%d", byte(op))
}

// lineRun is one entry of the sparse line map (§4.6): bytecode offsets
// from Offset up to (but not including) the next entry's Offset all
// belong to Line.
type lineRun struct {
	Offset int
	Line   int
}

// ExprSpan is one row of the optional expression map (§4.6), used to
// underline the operator and operand columns of an error the way
// PEP-657 does. Only recorded when all four columns fit in a byte.
type ExprSpan struct {
	InstrOffset int
	LeftCol     byte
	OpCol       byte
	OpEndCol    byte
	RightEndCol byte
}

// overlongEntry backs the OP_OVERLONG_JUMP escape: Site is the offset
// of the marker opcode, OrigOp is the opcode it replaced, and Offset
// is the real (possibly >65535) jump distance.
type overlongEntry struct {
	Site   int
	OrigOp OpCode
	Offset int32
}

type Chunk struct {
	Code      []byte
	Constants []value.Value
	FileName  string

	lines    []lineRun
	expr     []ExprSpan
	overlong []overlongEntry
}

func New(fileName string) *Chunk {
	return &Chunk{FileName: fileName}
}

// Write appends one byte, recording a new line-map run only when the
// line has changed since the previous write (§4.1 "sparse line map").
func (c *Chunk) Write(b byte, line int) int {
	offset := len(c.Code)
	c.Code = append(c.Code, b)
	if len(c.lines) == 0 || c.lines[len(c.lines)-1].Line != line {
		c.lines = append(c.lines, lineRun{Offset: offset, Line: line})
	}
	return offset
}

// WriteOp is Write for an opcode byte.
func (c *Chunk) WriteOp(op OpCode, line int) int {
	return c.Write(byte(op), line)
}

// Line returns the source line recorded for a bytecode offset.
func (c *Chunk) Line(offset int) int {
	line := 0
	for _, run := range c.lines {
		if run.Offset > offset {
			break
		}
		line = run.Line
	}
	return line
}

// AddConstant interns v into the pool and pushes it onto the host
// stack first so a freshly-built object stays GC reachable across any
// further allocation AddConstant itself triggers (mirrors the
// teacher's own comment about constant-pool safety).
func (c *Chunk) AddConstant(v value.Value, host value.Host) int {
	if host != nil {
		host.Push(v)
	}
	c.Constants = append(c.Constants, v)
	if host != nil {
		host.Pop()
	}
	return len(c.Constants) - 1
}

const longConstantThreshold = 256

// EmitConstant writes either OP_CONSTANT (8-bit operand) or
// OP_CONSTANT_LONG (24-bit operand) depending on where index falls in
// the pool, and returns the instruction's starting offset.
func (c *Chunk) EmitConstant(index int, line int) int {
	if index < longConstantThreshold {
		start := c.WriteOp(OP_CONSTANT, line)
		c.Write(byte(index), line)
		return start
	}
	start := c.WriteOp(OP_CONSTANT_LONG, line)
	c.Write(byte(index>>16), line)
	c.Write(byte(index>>8), line)
	c.Write(byte(index), line)
	return start
}

// AddExprSpan records an expression-mapping row if all four columns
// fit in a byte; otherwise it is silently dropped, same as the
// teacher's constant-pool overflow handling degrades gracefully
// instead of erroring.
func (c *Chunk) AddExprSpan(instrOffset, leftCol, opCol, opEndCol, rightEndCol int) {
	if leftCol > 0xff || opCol > 0xff || opEndCol > 0xff || rightEndCol > 0xff {
		return
	}
	c.expr = append(c.expr, ExprSpan{
		InstrOffset: instrOffset,
		LeftCol:     byte(leftCol),
		OpCol:       byte(opCol),
		OpEndCol:    byte(opEndCol),
		RightEndCol: byte(rightEndCol),
	})
}

// ExprSpanFor returns the expression span recorded for instrOffset, if any.
func (c *Chunk) ExprSpanFor(instrOffset int) (ExprSpan, bool) {
	for _, e := range c.expr {
		if e.InstrOffset == instrOffset {
			return e, true
		}
	}
	return ExprSpan{}, false
}

// Recorder is a cheap checkpoint of chunk length, taken before a
// speculative (rewindable) parse and restored via Rewind if the
// compiler decides to re-parse instead of keep what it emitted.
type Recorder struct {
	codeLen      int
	lineLen      int
	constantsLen int
	exprLen      int
	overlongLen  int
}

func (c *Chunk) Record() Recorder {
	return Recorder{
		codeLen:      len(c.Code),
		lineLen:      len(c.lines),
		constantsLen: len(c.Constants),
		exprLen:      len(c.expr),
		overlongLen:  len(c.overlong),
	}
}

// Rewind truncates the chunk back to a previously taken Recorder,
// discarding everything emitted since (§4.3 rewinding).
func (c *Chunk) Rewind(r Recorder) {
	c.Code = c.Code[:r.codeLen]
	c.lines = c.lines[:r.lineLen]
	c.Constants = c.Constants[:r.constantsLen]
	c.expr = c.expr[:r.exprLen]
	c.overlong = c.overlong[:r.overlongLen]
}

// EmitJump writes a jump opcode followed by a placeholder 16-bit
// operand and returns the offset of that operand, to be supplied to
// PatchJump once the destination is known.
func (c *Chunk) EmitJump(op OpCode, line int) int {
	c.WriteOp(op, line)
	c.Write(0xff, line)
	c.Write(0xff, line)
	return len(c.Code) - 2
}

// PatchJump fills in the jump operand at site so that it lands on the
// current end of the chunk. When the distance does not fit in 16
// bits, it escapes to OP_OVERLONG_JUMP: the opcode immediately before
// the operand is overwritten with the marker, and the real distance
// is recorded in the overlong-jump table keyed by that opcode's
// offset (site-1).
func (c *Chunk) PatchJump(site int) error {
	jump := len(c.Code) - (site + 2)
	if jump < 0 {
		return fmt.Errorf("chunk: negative jump distance %d at offset %d", jump, site)
	}
	if jump <= 0xffff {
		c.Code[site] = byte(jump >> 8)
		c.Code[site+1] = byte(jump)
		return nil
	}
	opSite := site - 1
	if opSite < 0 {
		return fmt.Errorf("chunk: overlong jump with no preceding opcode at offset %d", site)
	}
	orig := OpCode(c.Code[opSite])
	c.overlong = append(c.overlong, overlongEntry{Site: opSite, OrigOp: orig, Offset: int32(jump)})
	c.Code[opSite] = byte(OP_OVERLONG_JUMP)
	// The original 16-bit operand slot still carries the low 16 bits so
	// a linear scanner that hasn't consulted the overlong table can at
	// least see the instruction is 3 bytes wide; the authoritative value
	// lives in the aux table.
	c.Code[site] = byte(jump >> 8)
	c.Code[site+1] = byte(jump)
	return nil
}

// OverlongFor looks up the real jump distance and shadowed opcode for
// a site previously escaped by PatchJump.
func (c *Chunk) OverlongFor(site int) (OpCode, int32, bool) {
	for _, e := range c.overlong {
		if e.Site == site {
			return e.OrigOp, e.Offset, true
		}
	}
	return 0, 0, false
}

// EmitLoop writes OP_LOOP (or an overlong-escaped backward jump) back
// to start, the mirror image of EmitJump/PatchJump for a known,
// already-past destination.
func (c *Chunk) EmitLoop(start int, line int) error {
	c.WriteOp(OP_LOOP, line)
	offset := len(c.Code) - start + 2
	if offset <= 0xffff {
		c.Write(byte(offset>>8), line)
		c.Write(byte(offset), line)
		return nil
	}
	opSite := len(c.Code) - 1
	c.overlong = append(c.overlong, overlongEntry{Site: opSite, OrigOp: OP_LOOP, Offset: int32(offset)})
	c.Code[opSite] = byte(OP_OVERLONG_JUMP)
	c.Write(byte(offset>>8), line)
	c.Write(byte(offset), line)
	return nil
}
