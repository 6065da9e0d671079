// Package compiler implements the single-pass Pratt-style bytecode
// compiler: no intermediate syntax tree, one token of lookahead, and
// controlled rewinding to disambiguate the handful of constructs that
// need it (ternaries, comprehension bodies, complex assignment
// targets). A class's base-class list is parsed left to right with no
// rewinding.
package compiler

import (
	"fmt"

	"kuroko/internal/chunk"
	"kuroko/internal/scanner"
	"kuroko/internal/token"
	"kuroko/internal/value"
)

// Option flags toggled by `from __options__ import name` and
// inherited by nested frames (§4.3 "Options").
const (
	OptCompileTimeBuiltins uint32 = 1 << iota
	OptNoImplicitSelf
)

// Compiler holds all state for one compile() call (§5: synchronous,
// single-threaded per call; concurrent calls each get their own
// Compiler and take the host's compile-lock externally).
type Compiler struct {
	source   string
	fileName string
	host     value.Host

	scan     *scanner.Scanner
	current  token.Token
	previous token.Token

	hadError   bool
	panicMode  bool
	firstError *SyntaxError

	frame *Frame
	class *classFrame

	rules map[token.Type]ParseRule

	// sawStatementAfterFirstExpr and statementCount are not read or
	// written anywhere: a module that is a single bare expression is
	// not retroactively marked TYPE_LAMBDA.
	sawStatementAfterFirstExpr bool
	statementCount             int

	// ternaryStack holds the checkpoint taken before parsing an
	// expression that might turn out to have a trailing `if` (§4.3
	// rewind kind 1), one entry per nested parsePrecedence call eligible
	// to see a ternary.
	ternaryStack []exprCheckpoint

	pendingCompoundOp chunk.OpCode
}

// New prepares a compiler for one compile unit. host supplies string
// interning, numeric construction, and the builtins table (§6.3).
func New(source, fileName string, host value.Host) *Compiler {
	c := &Compiler{
		source:   source,
		fileName: fileName,
		host:     host,
		scan:     scanner.New(source),
	}
	c.rules = c.buildRules()
	return c
}

// Compile is the public entry point (§6.1): compile(source, filename)
// -> code-object | failure. On failure the returned error is the
// first SyntaxError raised during the compile.
func Compile(source, fileName string, host value.Host) (*value.CodeObject, error) {
	c := New(source, fileName, host)
	return c.Compile()
}

func (c *Compiler) Compile() (*value.CodeObject, error) {
	c.pushFrame(FrameModule, "<module>", "<module>")
	c.frame.Chunk.FileName = c.fileName

	c.advance()
	c.skipNewlines()

	if c.maybeDocstring() {
		c.skipNewlines()
	}

	for !c.check(token.EOF) {
		c.declaration()
		c.skipNewlines()
		if c.panicMode {
			c.synchronize()
		}
	}

	co := c.endFrame()
	if c.hadError {
		if c.firstError != nil {
			return nil, c.firstError
		}
		return nil, fmt.Errorf("compile %s: unspecified syntax error", c.fileName)
	}
	return co, nil
}

// maybeDocstring records a bare leading string literal as the module's
// docstring (§4.3 "Top-level"). Returns true only when it actually
// consumed a docstring statement; otherwise the caller's normal
// declaration loop handles c.current unchanged.
func (c *Compiler) maybeDocstring() bool {
	if c.current.Type != token.STRING && c.current.Type != token.BIG_STRING {
		return false
	}
	lexeme := c.current.Lexeme
	checkpoint := c.scan.Tell()
	next := c.scan.Next()
	if next.Type != token.EOL && next.Type != token.EOF {
		c.scan.Rewind(checkpoint)
		return false
	}
	doc := decodeStringLiteral(lexeme)
	c.emitConstantOp(chunk.OP_DOCSTRING, value.NewString(doc))
	c.advance()
	c.match(token.EOL)
	return true
}

// --- token plumbing -------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.scan.Next()
		if c.current.Type != token.ERROR {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(t token.Type) bool { return c.current.Type == t }

func (c *Compiler) match(t token.Type) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t token.Type, msg string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(msg + ", found " + c.current.Type.Display())
}

func (c *Compiler) skipNewlines() {
	for c.check(token.EOL) {
		c.advance()
	}
}

func (c *Compiler) emit(b byte)          { c.frame.Chunk.Write(b, c.previous.Line) }
func (c *Compiler) emitOp(op chunk.OpCode) int { return c.frame.Chunk.WriteOp(op, c.previous.Line) }
func (c *Compiler) emitBytes(op chunk.OpCode, operand byte) {
	c.emitOp(op)
	c.emit(operand)
}

func (c *Compiler) emitConstantValue(v value.Value) {
	idx := c.frame.Chunk.AddConstant(v, c.host)
	c.frame.Chunk.EmitConstant(idx, c.previous.Line)
}

// emitConstantOp adds v to the constant pool and emits op with a
// fixed 1-byte index operand. Used for every "named" instruction
// (globals, properties, imports, docstrings) rather than the
// OP_CONSTANT[_LONG] auto-widening used for pushed literal values:
// compilation units with more than 255 distinct such names are rare
// enough in this exercise's scope that a hard cap, reported as an
// ordinary compile error, is preferable to doubling the opcode set
// with a _LONG counterpart for every named instruction.
func (c *Compiler) emitConstantOp(op chunk.OpCode, v value.Value) {
	idx := c.frame.Chunk.AddConstant(v, c.host)
	if idx > 0xff {
		c.error("too many distinct names in this compilation unit")
		idx = 0
	}
	c.emitBytes(op, byte(idx))
}

func (c *Compiler) emitNamedOp(op chunk.OpCode, name string) {
	interned := c.host.InternString([]byte(name))
	c.emitConstantOp(op, value.NewString(interned))
}

func (c *Compiler) emitReturn() {
	if c.frame.Type == FrameInit {
		c.emitBytes(chunk.OP_GET_LOCAL, 0)
	} else {
		c.emitOp(chunk.OP_NONE)
	}
	c.emitOp(chunk.OP_RETURN)
}

// MarkCompilerRoots is the GC-facing half of the compile-time rooting
// contract: called from the host's mark phase if a collection happens
// while a compile is in flight, it walks the frame chain (a stack, not
// a cycle — every enclosing def/lambda/class body currently being
// compiled) and pushes each frame's already-added constants onto the
// host stack, the same transient rooting AddConstant already does for
// one constant while it's being interned. The caller pops the same
// count back off once the collection completes.
func (c *Compiler) MarkCompilerRoots(host value.Host) int {
	pushed := 0
	for f := c.frame; f != nil; f = f.enclosing {
		if f.Chunk == nil {
			continue
		}
		for _, v := range f.Chunk.Constants {
			host.Push(v)
			pushed++
		}
	}
	return pushed
}

// --- frame management -------------------------------------------------

func (c *Compiler) pushFrame(t FrameType, name, qualName string) {
	f := &Frame{
		enclosing: c.frame,
		Type:      t,
		Chunk:     chunk.New(c.fileName),
		name:      name,
		qualName:  qualName,
	}
	if c.frame != nil {
		f.optionsFlags = c.frame.optionsFlags
	}
	// Slot 0 is reserved: `self` for methods, the callee itself for
	// plain functions (mirrors the teacher's closure-in-slot-zero
	// convention), unused in module scope beyond that reservation.
	selfName := ""
	if t == FrameMethod || t == FrameInit || t == FrameCoroutineMethod {
		selfName = "self"
	}
	f.locals = append(f.locals, Local{Name: selfName, Depth: 0})
	c.frame = f
}

// endFrame closes the current frame, seals its chunk into a
// CodeObject, and pops back to the enclosing frame (nil at module
// scope, where the caller keeps the result instead of popping).
func (c *Compiler) endFrame() *value.CodeObject {
	c.emitReturn()

	f := c.frame
	var flags uint32
	if f.hasYield {
		flags |= value.FlagGenerator
	}
	if f.Type == FrameCoroutine || f.Type == FrameCoroutineMethod || f.hasAwait {
		flags |= value.FlagCoroutine
	}
	if f.collectsArgs {
		flags |= value.FlagCollectsArgs
	}
	if f.collectsKeywords {
		flags |= value.FlagCollectsKeywords
	}
	if f.isLambdaBody {
		flags |= value.FlagIsLambda
	}

	co := &value.CodeObject{
		Chunk:                f.Chunk,
		Name:                 f.name,
		QualName:             f.qualName,
		RequiredArgs:         f.requiredArgs,
		KeywordArgs:          f.keywordArgs,
		PotentialPositionals: f.potentialPositionals,
		Flags:                flags,
		ArgNames:             f.argNames,
		UpvalueCount:         len(f.upvalues),
		Locals:               f.localDebug,
	}

	c.frame = f.enclosing
	return co
}

// --- scopes -------------------------------------------------------------

func (c *Compiler) beginScope() { c.frame.scopeDepth++ }

// endScope pops locals that belong to the scope being closed, emitting
// OP_POP_N for plain locals and individual OP_CLOSE_UPVALUE for
// captured ones, and seals each local's debug-table death offset
// (§3 invariant 2 and 3, §4.3 "Scopes").
func (c *Compiler) endScope() {
	f := c.frame
	f.scopeDepth--

	popCount := 0
	flushPops := func() {
		if popCount == 0 {
			return
		}
		if popCount == 1 {
			c.emitOp(chunk.OP_POP)
		} else {
			c.emitBytes(chunk.OP_POP_N, byte(popCount))
		}
		popCount = 0
	}

	for len(f.locals) > 0 && f.locals[len(f.locals)-1].Depth > f.scopeDepth {
		last := f.locals[len(f.locals)-1]
		c.sealLocalDeath(len(f.locals) - 1)
		if last.IsCaptured {
			flushPops()
			c.emitOp(chunk.OP_CLOSE_UPVALUE)
		} else {
			popCount++
		}
		f.locals = f.locals[:len(f.locals)-1]
	}
	flushPops()
}

func (c *Compiler) sealLocalDeath(slot int) {
	for i := range c.frame.localDebug {
		if c.frame.localDebug[i].Slot == slot && c.frame.localDebug[i].Death == 0 {
			c.frame.localDebug[i].Death = len(c.frame.Chunk.Code)
		}
	}
}

// --- locals / upvalues / globals ---------------------------------------

func (c *Compiler) declareLocal(name string) {
	f := c.frame
	for i := len(f.locals) - 1; i >= 0; i-- {
		if f.locals[i].Depth != -1 && f.locals[i].Depth < f.scopeDepth {
			break
		}
		if f.locals[i].Name == name && f.locals[i].Depth != depthHidden {
			c.error("duplicate local '" + name + "' in this scope")
			return
		}
	}
	c.addLocal(name)
}

func (c *Compiler) addLocal(name string) int {
	f := c.frame
	if len(f.locals) >= 256 {
		c.error("too many locals in this function")
		return -1
	}
	slot := len(f.locals)
	f.locals = append(f.locals, Local{Name: name, Depth: depthUninitialized})
	f.localDebug = append(f.localDebug, value.LocalDebugEntry{Slot: slot, Name: name, Birth: len(f.Chunk.Code)})
	return slot
}

func (c *Compiler) markInitialized() {
	f := c.frame
	if f.scopeDepth == 0 {
		return
	}
	f.locals[len(f.locals)-1].Depth = f.scopeDepth
}

// resolveLocal implements §4.3 step 2.
func (c *Compiler) resolveLocal(f *Frame, name string) int {
	for i := len(f.locals) - 1; i >= 0; i-- {
		if f.locals[i].Name != name {
			continue
		}
		if f.locals[i].Depth == depthHidden {
			continue
		}
		if f.locals[i].Depth == depthUninitialized {
			c.error("cannot reference '" + name + "' in its own initializer")
			return -1
		}
		return i
	}
	return -1
}

// resolveUpvalue implements §4.3 step 3: recursively ask the enclosing
// frame, de-duplicating by name.
func (c *Compiler) resolveUpvalue(f *Frame, name string) int {
	if f.enclosing == nil {
		return -1
	}
	if local := c.resolveLocal(f.enclosing, name); local != -1 {
		f.enclosing.locals[local].IsCaptured = true
		return c.addUpvalue(f, byte(local), true, name)
	}
	if up := c.resolveUpvalue(f.enclosing, name); up != -1 {
		return c.addUpvalue(f, byte(up), false, name)
	}
	return -1
}

func (c *Compiler) addUpvalue(f *Frame, index byte, isLocal bool, name string) int {
	for i, u := range f.upvalues {
		if u.Name == name && u.IsLocal == isLocal && u.Index == index {
			return i
		}
	}
	f.upvalues = append(f.upvalues, Upvalue{Index: index, IsLocal: isLocal, Name: name})
	return len(f.upvalues) - 1
}

// declareVariable declares `name` as local if inside a non-module
// scope, leaving global declaration to defineVariable.
func (c *Compiler) declareVariable(name string) {
	if c.frame.scopeDepth == 0 {
		return
	}
	c.declareLocal(name)
}

// defineVariable emits the binding instruction for `name`: a local is
// simply marked initialized (its value is already on the stack in the
// right slot); a global needs an explicit OP_DEFINE_GLOBAL.
func (c *Compiler) defineVariable(name string) {
	if c.frame.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitNamedOp(chunk.OP_DEFINE_GLOBAL, name)
}
