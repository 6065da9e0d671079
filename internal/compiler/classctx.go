package compiler

import "strings"

// classFrame is the class-compile context of §4.4: a stack entry kept
// alive for the duration of a class body's compilation, used for
// dunder-name mangling and for the property chain behind implicit-self
// name resolution. No `__class__` upvalue is created for it, so super()
// gets no compile-time support.
type classFrame struct {
	enclosing      *classFrame
	name           string
	hasAnnotations bool
	properties     *classProperty
}

func (c *Compiler) pushClass(name string) {
	c.class = &classFrame{enclosing: c.class, name: name}
}

func (c *Compiler) popClass() {
	c.class = c.class.enclosing
}

// mangle applies name-mangling (§4.3, Glossary "Name mangling"): a
// dunder-leading, non-dunder-trailing identifier inside a class body
// is rewritten to `_ClassName__name`, with the class name's own
// leading underscores stripped before prefixing.
func mangle(className, name string) string {
	if !isMangleCandidate(name) {
		return name
	}
	stripped := strings.TrimLeft(className, "_")
	return "_" + stripped + name
}

func isMangleCandidate(name string) bool {
	if !strings.HasPrefix(name, "__") {
		return false
	}
	return !strings.HasSuffix(name, "__")
}

// mangleInCurrentClass mangles name using the innermost enclosing
// class context, or returns it unchanged at module/function scope
// with no enclosing class.
func (c *Compiler) mangleInCurrentClass(name string) string {
	if c.class == nil {
		return name
	}
	return mangle(c.class.name, name)
}

// inImplicitSelfScope reports whether the frame currently being
// compiled is a method body with an implicit `self` receiver in local
// slot 0, i.e. whether a bare name should be checked against the
// enclosing class's property chain before falling back to ordinary
// local/upvalue/global resolution.
func (c *Compiler) inImplicitSelfScope() bool {
	if c.class == nil {
		return false
	}
	switch c.frame.Type {
	case FrameMethod, FrameInit, FrameCoroutineMethod:
		return c.frame.optionsFlags&OptNoImplicitSelf == 0
	default:
		return false
	}
}
