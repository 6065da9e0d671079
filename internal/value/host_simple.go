package value

import (
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// SimpleHost is a minimal, dependency-free Host used by the CLI and by
// compiler tests. A real embedding interns strings on a GC heap and
// keeps a live VM stack; SimpleHost just does the arithmetic and keeps
// an in-memory slice standing in for that stack, which is enough to
// exercise every compiler code path that consumes a Host.
type SimpleHost struct {
	interned map[string]string
	stack    []Value
	builtins map[string]Value
}

func NewSimpleHost() *SimpleHost {
	return &SimpleHost{
		interned: make(map[string]string),
		builtins: defaultBuiltins(),
	}
}

func (h *SimpleHost) InternString(data []byte) string {
	s := string(data)
	if existing, ok := h.interned[s]; ok {
		return existing
	}
	h.interned[s] = s
	return s
}

func (h *SimpleHost) NewInt(text string) (Value, error) {
	text = strings.ReplaceAll(text, "_", "")
	base := 10
	switch {
	case strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X"):
		base, text = 16, text[2:]
	case strings.HasPrefix(text, "0b") || strings.HasPrefix(text, "0B"):
		base, text = 2, text[2:]
	case strings.HasPrefix(text, "0o") || strings.HasPrefix(text, "0O"):
		base, text = 8, text[2:]
	}
	i, err := strconv.ParseInt(text, base, 64)
	if err != nil {
		return Value{}, err
	}
	return NewInt(i), nil
}

func (h *SimpleHost) NewFloat(text string) (Value, error) {
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Value{}, err
	}
	return NewFloat(f), nil
}

func (h *SimpleHost) Push(v Value) { h.stack = append(h.stack, v) }

func (h *SimpleHost) Pop() Value {
	if len(h.stack) == 0 {
		return None()
	}
	v := h.stack[len(h.stack)-1]
	h.stack = h.stack[:len(h.stack)-1]
	return v
}

func (h *SimpleHost) LookupBuiltin(name string) (Value, bool) {
	v, ok := h.builtins[name]
	return v, ok
}

// BuiltinNames returns the registered builtin names in sorted order, for
// tooling that wants a stable listing (e.g. krokoc --builtins) rather than
// ranging over the map directly.
func (h *SimpleHost) BuiltinNames() []string {
	names := maps.Keys(h.builtins)
	slices.Sort(names)
	return names
}

func defaultBuiltins() map[string]Value {
	return map[string]Value{
		"Ellipsis": {Kind: KindString, Obj: "..."},
		"len":      {Kind: KindString, Obj: "<builtin len>"},
		"print":    {Kind: KindString, Obj: "<builtin print>"},
		"range":    {Kind: KindString, Obj: "<builtin range>"},
		"object":   {Kind: KindString, Obj: "<builtin object>"},
		"list":     {Kind: KindString, Obj: "<builtin list>"},
		"dict":     {Kind: KindString, Obj: "<builtin dict>"},
		"str":      {Kind: KindString, Obj: "<builtin str>"},
	}
}
