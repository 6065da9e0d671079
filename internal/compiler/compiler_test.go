package compiler

import (
	"strings"
	"testing"

	"kuroko/internal/chunk"
	"kuroko/internal/value"
)

func compileOK(t *testing.T, source string) *value.CodeObject {
	t.Helper()
	co, err := Compile(source, "<test>", value.NewSimpleHost())
	if err != nil {
		t.Fatalf("unexpected compile error for %q: %s", source, err)
	}
	return co
}

func compileErr(t *testing.T, source string) *SyntaxError {
	t.Helper()
	_, err := Compile(source, "<test>", value.NewSimpleHost())
	if err == nil {
		t.Fatalf("expected compile error for %q, got none", source)
	}
	se, ok := err.(*SyntaxError)
	if !ok {
		t.Fatalf("expected *SyntaxError for %q, got %T: %s", source, err, err)
	}
	return se
}

func codeContains(co *value.CodeObject, op chunk.OpCode) bool {
	ch, ok := co.Chunk.(*chunk.Chunk)
	if !ok {
		return false
	}
	for _, b := range ch.Code {
		if chunk.OpCode(b) == op {
			return true
		}
	}
	return false
}

func TestCompileSmoke(t *testing.T) {
	tests := []string{
		"1 + 2\n",
		"let x = 1\nlet y = x * 2\n",
		"if x:\n    pass\nelse:\n    pass\n",
		"while True:\n    break\n",
		"for x in range(10):\n    print(x)\n",
		"def add(a, b):\n    return a + b\n",
		"async def fetch():\n    await x\n",
	}
	for _, src := range tests {
		compileOK(t, src)
	}
}

func TestCompileModuleDocstring(t *testing.T) {
	co := compileOK(t, "\"a module docstring\"\nlet x = 1\n")
	if !codeContains(co, chunk.OP_DOCSTRING) {
		t.Fatalf("expected OP_DOCSTRING to be emitted for a leading bare string literal")
	}
}

// TestClassBodyEmitsIntoEnclosingChunk is the regression test for the
// class-compilation bug fixed this pass: OP_CLASS and OP_METHOD must
// land in the same chunk as the rest of module scope, not a discarded
// chunk belonging to a separate class frame.
func TestClassBodyEmitsIntoEnclosingChunk(t *testing.T) {
	co := compileOK(t, "class Point:\n    def move(self, dx):\n        return self.x + dx\n")
	if !codeContains(co, chunk.OP_CLASS) {
		t.Fatalf("expected OP_CLASS in the module chunk")
	}
	if !codeContains(co, chunk.OP_METHOD) {
		t.Fatalf("expected OP_METHOD in the module chunk")
	}
}

// TestImplicitSelfPropertyAccess exercises the property chain set up
// by registerClassProperty/lookupClassProperty: a bare name inside a
// method body that matches a property registered earlier in the class
// body resolves to OP_GET_PROPERTY against self instead of falling
// through to global/local lookup.
func TestImplicitSelfPropertyAccess(t *testing.T) {
	co := compileOK(t, "class Counter:\n    let count = 0\n    def bump(self):\n        return count\n")
	var bump *value.CodeObject
	for _, k := range co.Chunk.(*chunk.Chunk).Constants {
		if m, ok := k.Obj.(*value.CodeObject); ok && m.Name == "bump" {
			bump = m
		}
	}
	if bump == nil {
		t.Fatalf("expected bump's code object among the module constants")
	}
	if !codeContains(bump, chunk.OP_GET_PROPERTY) {
		t.Fatalf("expected implicit self.count to compile to OP_GET_PROPERTY")
	}
}

func TestClassMultipleMethodsEachGetOwnChunk(t *testing.T) {
	co := compileOK(t, strings.Join([]string{
		"class Shape:",
		"    def area(self):",
		"        return 0",
		"    def perimeter(self):",
		"        return 0",
		"",
	}, "\n"))
	if !codeContains(co, chunk.OP_METHOD) {
		t.Fatalf("expected at least one OP_METHOD")
	}
	var methods []*value.CodeObject
	for _, k := range co.Chunk.(*chunk.Chunk).Constants {
		if m, ok := k.Obj.(*value.CodeObject); ok {
			methods = append(methods, m)
		}
	}
	if len(methods) != 2 || methods[0].Chunk == methods[1].Chunk {
		t.Fatalf("expected area and perimeter in two separate chunks, got %d code objects", len(methods))
	}
}

func TestTernaryRewind(t *testing.T) {
	// §4.3 rewind kind 1: the parser commits to an ordinary expression
	// until it sees the trailing `if`, then rewinds to reparse as a
	// conditional expression.
	compileOK(t, "let x = 1 if True else 2\n")
}

func TestComprehensionRewind(t *testing.T) {
	// §4.3 rewind kind 2: a bracketed expression isn't known to be a
	// comprehension until the `for` keyword appears past the first
	// element.
	compileOK(t, "let xs = [x for x in range(10)]\n")
	compileOK(t, "let xs = [1, 2, 3]\n")
}

func TestTupleUnpackAssignmentRewind(t *testing.T) {
	// §4.3 rewind kind 3: `a, b = ...` isn't known to be a tuple-unpack
	// target until the comma appears before the `=`.
	compileOK(t, "let a = 0\nlet b = 0\na, b = 1, 2\n")
}

func TestSyntaxErrorIncludesLocation(t *testing.T) {
	se := compileErr(t, "let x = \n")
	if se.File != "<test>" {
		t.Fatalf("expected File to be the compile unit name, got %q", se.File)
	}
	if se.Lineno != 1 {
		t.Fatalf("expected error on line 1, got %d", se.Lineno)
	}
	if !strings.Contains(se.Error(), "SyntaxError") {
		t.Fatalf("expected formatted error to mention SyntaxError, got %q", se.Error())
	}
}

func TestSyntaxErrorDisplaysTokenName(t *testing.T) {
	// regression test for wiring token.Type.Display() into consume()'s
	// and parsePrecedence's error messages: an unterminated expression
	// at end of file must say "end of file", not a raw enum name like
	// "TOKEN_EOF".
	se := compileErr(t, "let x = (1 +")
	if !strings.Contains(se.Msg, "end of file") {
		t.Fatalf("expected error message to mention end of file, got %q", se.Msg)
	}
}

func TestDuplicateLocalIsAnError(t *testing.T) {
	compileErr(t, "def f():\n    let x = 1\n    let x = 2\n")
}

func TestReferencingLocalInOwnInitializerIsAnError(t *testing.T) {
	compileErr(t, "def f():\n    let x = x\n")
}

// TestNestedIfElifElse is the regression test for the dangling-
// continuation-clause bug: elif/else lines nested inside a function
// (or any other block) are preceded by an INDENTATION token at the
// same column as the `if`, which matchContinuationKeyword must peek
// past before testing for ELIF/ELSE.
func TestNestedIfElifElse(t *testing.T) {
	co := compileOK(t, strings.Join([]string{
		"def f(x):",
		"    if x:",
		"        return 1",
		"    elif x:",
		"        return 2",
		"    else:",
		"        return 3",
		"",
	}, "\n"))
	_ = co
}

func TestDeeplyNestedIfElse(t *testing.T) {
	// if/else nested two levels deep (inside a while, inside a function)
	// so the continuation clause's own column is neither 0 nor the
	// function body's column.
	compileOK(t, strings.Join([]string{
		"def f(x):",
		"    while x:",
		"        if x:",
		"            pass",
		"        else:",
		"            pass",
		"        break",
		"",
	}, "\n"))
}

// TestNestedForElse is the regression test for maybeForElse's
// continuation-clause lookahead when the for loop itself is nested.
func TestNestedForElse(t *testing.T) {
	compileOK(t, strings.Join([]string{
		"def f():",
		"    for x in range(3):",
		"        pass",
		"    else:",
		"        pass",
		"",
	}, "\n"))
}

// TestNestedTryExceptElseFinally is the regression test for
// tryStatement's except/else/finally continuation-clause lookahead
// when the try statement itself is nested.
func TestNestedTryExceptElseFinally(t *testing.T) {
	co := compileOK(t, strings.Join([]string{
		"def f():",
		"    try:",
		"        pass",
		"    except ValueError as e:",
		"        pass",
		"    except:",
		"        pass",
		"    else:",
		"        pass",
		"    finally:",
		"        pass",
		"",
	}, "\n"))
	_ = co
}

func TestMarkCompilerRootsWalksFrameChain(t *testing.T) {
	host := value.NewSimpleHost()
	c := New("let x = 1\n", "<test>", host)
	c.pushFrame(FrameModule, "<module>", "<module>")
	c.frame.Chunk.AddConstant(value.NewInt(1), host)
	c.pushFrame(FrameFunction, "inner", "<module>.inner")
	c.frame.Chunk.AddConstant(value.NewInt(2), host)
	c.frame.Chunk.AddConstant(value.NewInt(3), host)

	pushed := c.MarkCompilerRoots(host)
	if pushed != 3 {
		t.Fatalf("expected 3 constants pushed across both frames, got %d", pushed)
	}

	// Pushed in frame-chain order (innermost first), each frame's own
	// constants in pool order, so popping unwinds innermost-last.
	if v := host.Pop(); v.AsInt != 1 {
		t.Errorf("expected first pop to be the module frame's constant 1, got %v", v)
	}
	if v := host.Pop(); v.AsInt != 3 {
		t.Errorf("expected second pop to be the inner frame's constant 3, got %v", v)
	}
	if v := host.Pop(); v.AsInt != 2 {
		t.Errorf("expected last pop to be the inner frame's constant 2, got %v", v)
	}
}

func TestFirstErrorIsRetainedAcrossMultipleFailures(t *testing.T) {
	// panicMode suppresses everything after the first error until the
	// enclosing declaration resynchronizes, so the reported error
	// should always be the first one encountered.
	se := compileErr(t, "let x = \ndef\n")
	if se.Lineno != 1 {
		t.Fatalf("expected the retained error to be the first one (line 1), got line %d", se.Lineno)
	}
}
