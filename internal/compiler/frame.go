package compiler

import (
	"kuroko/internal/chunk"
	"kuroko/internal/value"
)

// FrameType distinguishes the kind of code object a Frame is building,
// per §3: top-level module body, ordinary function, bound method,
// __init__, lambda, static/class method, class builder body, or
// coroutine variants of function/method.
type FrameType int

const (
	FrameModule FrameType = iota
	FrameFunction
	FrameMethod
	FrameInit
	FrameLambda
	FrameStatic
	FrameClass
	FrameClassMethod
	FrameCoroutine
	FrameCoroutineMethod
)

func (t FrameType) String() string {
	switch t {
	case FrameModule:
		return "module"
	case FrameFunction:
		return "function"
	case FrameMethod:
		return "method"
	case FrameInit:
		return "init"
	case FrameLambda:
		return "lambda"
	case FrameStatic:
		return "staticmethod"
	case FrameClass:
		return "class"
	case FrameClassMethod:
		return "classmethod"
	case FrameCoroutine:
		return "coroutine"
	case FrameCoroutineMethod:
		return "coroutine method"
	default:
		return "?"
	}
}

// local scope-depth sentinels (§3).
const (
	depthUninitialized = -1
	depthHidden        = -2
)

// Local is one entry of a frame's local-variable table.
type Local struct {
	Name       string
	Depth      int
	IsCaptured bool
}

// Upvalue is one entry of a frame's upvalue table: either a direct
// reference to a local slot of the immediately enclosing frame, or a
// chained reference to one of that frame's own upvalues.
type Upvalue struct {
	Index   byte
	IsLocal bool
	Name    string
}

// loopExit records a break or continue jump awaiting patch at loop close.
type loopExit struct {
	jumpSite int
	isBreak  bool
}

// Loop tracks bookkeeping for the innermost active loop so break/continue
// can reset the VM stack to the depth it had at loop entry before jumping.
type Loop struct {
	enclosingLocals int
	exits           []loopExit
	isForLoop       bool
}

// classProperty is one link of the class-property chain consulted
// before local/upvalue/global resolution while compiling a method body
// (§4.3 "Variable resolution"). It is threaded on the classFrame
// (classctx.go), not on Frame, because the chain must survive into
// every method body compiled later in the same class even though each
// method gets its own freshly pushed Frame and Chunk.
type classProperty struct {
	name string
	next *classProperty
}

// Frame is the per-function compiler state of §3, stacked by an
// enclosing pointer so nested defs/lambdas/comprehensions see their
// lexical parents.
type Frame struct {
	enclosing *Frame
	Type      FrameType

	Chunk *chunk.Chunk

	scopeDepth int
	locals     []Local
	upvalues   []Upvalue

	loops []*Loop

	annotationCount int
	delSatisfied    bool

	optionsFlags uint32

	hasYield  bool
	hasAwait  bool
	isLambdaBody bool

	// debug bookkeeping, sealed into value.CodeObject.Locals on frame close.
	localDebug []value.LocalDebugEntry

	name     string
	qualName string

	requiredArgs         int
	keywordArgs          int
	potentialPositionals int
	collectsArgs         bool
	collectsKeywords     bool
	argNames             []string
}
