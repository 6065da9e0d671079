// Package value defines the thin runtime-value surface the compiler
// depends on (§6.3). The actual object model, string interning, and
// garbage collector belong to the VM; this package only carries enough
// shape for the compiler to build a constant pool and a CodeObject.
package value

import "fmt"

type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindCode
	KindTuple // constant tuple kind; no constructor in this package builds one
)

// Value is a tagged union, mirroring how the teacher's runtime represents
// values: a type tag plus one active field.
type Value struct {
	Kind    Kind
	AsBool  bool
	AsInt   int64
	AsFloat float64
	Obj     interface{} // string, []byte, *CodeObject, depending on Kind
}

func None() Value                 { return Value{Kind: KindNone} }
func NewBool(b bool) Value        { return Value{Kind: KindBool, AsBool: b} }
func NewInt(i int64) Value        { return Value{Kind: KindInt, AsInt: i} }
func NewFloat(f float64) Value    { return Value{Kind: KindFloat, AsFloat: f} }
func NewString(s string) Value    { return Value{Kind: KindString, Obj: s} }
func NewBytes(b []byte) Value     { return Value{Kind: KindBytes, Obj: append([]byte(nil), b...)} }
func NewCode(c *CodeObject) Value { return Value{Kind: KindCode, Obj: c} }

func (v Value) String() string {
	switch v.Kind {
	case KindNone:
		return "None"
	case KindBool:
		return fmt.Sprintf("%t", v.AsBool)
	case KindInt:
		return fmt.Sprintf("%d", v.AsInt)
	case KindFloat:
		return fmt.Sprintf("%g", v.AsFloat)
	case KindString:
		return fmt.Sprintf("%q", v.Obj)
	case KindBytes:
		return fmt.Sprintf("b%q", v.Obj)
	case KindCode:
		if co, ok := v.Obj.(*CodeObject); ok {
			return fmt.Sprintf("<code %s>", co.QualName)
		}
		return "<code ?>"
	default:
		return "<unknown>"
	}
}

// Code object flag bits (§3).
const (
	FlagGenerator uint32 = 1 << iota
	FlagCoroutine
	FlagCollectsArgs
	FlagCollectsKeywords
	FlagIsLambda
)

// LocalDebugEntry is one row of the local-name debug table (§4.6):
// slot, the instruction offset where the slot becomes live, the offset
// where its enclosing scope closed it, and its source name.
type LocalDebugEntry struct {
	Slot  int
	Birth int
	Death int
	Name  string
}

// CodeObject is the VM-facing artifact the compiler emits for a module,
// function, method, lambda, or comprehension body (§3 "Code object").
type CodeObject struct {
	Chunk interface{} // *chunk.Chunk; interface{} to avoid value<->chunk import cycle

	Name      string
	QualName  string
	Docstring string

	RequiredArgs         int
	KeywordArgs          int
	PotentialPositionals int
	UnnamedArgs          int

	Flags uint32

	ArgNames []string // positional + *rest name appended, keyword-only names appended

	UpvalueCount int
	Locals       []LocalDebugEntry
}

func (c *CodeObject) IsGenerator() bool      { return c.Flags&FlagGenerator != 0 }
func (c *CodeObject) IsCoroutine() bool      { return c.Flags&FlagCoroutine != 0 }
func (c *CodeObject) CollectsArgs() bool     { return c.Flags&FlagCollectsArgs != 0 }
func (c *CodeObject) CollectsKeywords() bool { return c.Flags&FlagCollectsKeywords != 0 }
func (c *CodeObject) IsLambda() bool         { return c.Flags&FlagIsLambda != 0 }

// Host is the collaborator surface the compiler needs from the value/GC
// runtime (§6.3): interning, numeric construction,
// stack push/pop to keep newly-allocated constants reachable across
// further allocations, and a builtins table lookup for the
// compile_time_builtins option and Ellipsis.
type Host interface {
	InternString(data []byte) string
	NewInt(text string) (Value, error)
	NewFloat(text string) (Value, error)
	Push(v Value)
	Pop() Value
	LookupBuiltin(name string) (Value, bool)
}
