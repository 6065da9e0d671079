package chunk

import (
	"fmt"

	"kuroko/internal/value"
)

// Disassemble prints every instruction in the chunk in the teacher's
// "offset line OP_NAME operand" layout; it exists for --disassembly
// and for debugging, never for anything the compiler itself consults.
func (c *Chunk) Disassemble(name string) {
	fmt.Printf("== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		offset = c.DisassembleInstruction(offset)
	}
}

// DisassembleAll disassembles this chunk and, recursively, every
// nested code object found in its constant pool.
func (c *Chunk) DisassembleAll(name string) {
	c.Disassemble(name)
	for _, constant := range c.Constants {
		if constant.Kind != value.KindCode {
			continue
		}
		co, ok := constant.Obj.(*value.CodeObject)
		if !ok {
			continue
		}
		if nested, ok := co.Chunk.(*Chunk); ok {
			fmt.Println()
			nested.DisassembleAll(co.QualName)
		}
	}
}

func (c *Chunk) DisassembleInstruction(offset int) int {
	fmt.Printf("%04d ", offset)
	if offset > 0 && c.Line(offset) == c.Line(offset-1) {
		fmt.Printf("   | ")
	} else {
		fmt.Printf("%4d ", c.Line(offset))
	}

	op := OpCode(c.Code[offset])
	if op == OP_OVERLONG_JUMP {
		return c.overlongJumpInstruction(offset)
	}

	switch op {
	case OP_CONSTANT:
		return c.constantInstruction(offset)
	case OP_CONSTANT_LONG:
		return c.constantLongInstruction(offset)
	case OP_GET_LOCAL, OP_SET_LOCAL, OP_GET_UPVALUE, OP_SET_UPVALUE,
		OP_CALL, OP_CALL_KW, OP_INVOKE, OP_SUPER_INVOKE, OP_POP_N,
		OP_DUP_TOP_N, OP_ROT, OP_UNPACK, OP_UNPACK_EX:
		return c.byteInstruction(offset)
	case OP_JUMP, OP_JUMP_IF_FALSE, OP_JUMP_IF_TRUE, OP_POP_JUMP_IF_FALSE,
		OP_JUMP_IF_FALSE_OR_POP, OP_JUMP_IF_TRUE_OR_POP, OP_LOOP,
		OP_ARRAY, OP_MAP, OP_SET, OP_TUPLE, OP_FOR_ITER, OP_PUSH_TRY:
		return c.shortInstruction(offset)
	case OP_GET_GLOBAL, OP_SET_GLOBAL, OP_DEFINE_GLOBAL, OP_GET_PROPERTY,
		OP_SET_PROPERTY, OP_DEL_PROPERTY, OP_IMPORT, OP_IMPORT_FROM,
		OP_GET_SUPER, OP_CLASS, OP_METHOD, OP_DOCSTRING:
		return c.constantInstruction(offset)
	case OP_CLOSURE:
		return c.closureInstruction(offset)
	case OP_TEST_ARG:
		return c.testArgInstruction(offset)
	default:
		return c.simpleInstruction(offset)
	}
}

func (c *Chunk) simpleInstruction(offset int) int {
	fmt.Println(OpCode(c.Code[offset]))
	return offset + 1
}

func (c *Chunk) constantInstruction(offset int) int {
	op := OpCode(c.Code[offset])
	constant := c.Code[offset+1]
	fmt.Printf("%-22s %4d '", op, constant)
	if int(constant) < len(c.Constants) {
		fmt.Print(c.Constants[constant])
	} else {
		fmt.Print("?")
	}
	fmt.Print("'\n")
	return offset + 2
}

func (c *Chunk) constantLongInstruction(offset int) int {
	index := int(c.Code[offset+1])<<16 | int(c.Code[offset+2])<<8 | int(c.Code[offset+3])
	fmt.Printf("%-22s %4d '", OP_CONSTANT_LONG, index)
	if index < len(c.Constants) {
		fmt.Print(c.Constants[index])
	} else {
		fmt.Print("?")
	}
	fmt.Print("'\n")
	return offset + 4
}

func (c *Chunk) byteInstruction(offset int) int {
	op := OpCode(c.Code[offset])
	slot := c.Code[offset+1]
	fmt.Printf("%-22s %4d\n", op, slot)
	return offset + 2
}

func (c *Chunk) shortInstruction(offset int) int {
	op := OpCode(c.Code[offset])
	operand := uint16(c.Code[offset+1])<<8 | uint16(c.Code[offset+2])
	fmt.Printf("%-22s %4d\n", op, operand)
	return offset + 3
}

func (c *Chunk) overlongJumpInstruction(offset int) int {
	origOp, real, ok := c.OverlongFor(offset)
	if !ok {
		fmt.Println("OP_OVERLONG_JUMP <missing aux entry>")
		return offset + 3
	}
	fmt.Printf("%-22s %4d  (was %s)\n", OP_OVERLONG_JUMP, real, origOp)
	return offset + 3
}

// testArgInstruction prints OP_TEST_ARG's jump offset followed by the
// local slot byte trailing it (the opcode's doc comment gives this
// operand layout).
func (c *Chunk) testArgInstruction(offset int) int {
	jump := uint16(c.Code[offset+1])<<8 | uint16(c.Code[offset+2])
	slot := c.Code[offset+3]
	fmt.Printf("%-22s %4d -> %d (slot %d)\n", OP_TEST_ARG, offset, int(offset)+3+int(jump), slot)
	return offset + 4
}

func (c *Chunk) closureInstruction(offset int) int {
	constant := c.Code[offset+1]
	fmt.Printf("%-22s %4d '", OP_CLOSURE, constant)
	if int(constant) < len(c.Constants) {
		fmt.Print(c.Constants[constant])
	} else {
		fmt.Print("?")
	}
	fmt.Print("'\n")
	next := offset + 2
	if int(constant) < len(c.Constants) {
		if co, ok := c.Constants[constant].Obj.(*value.CodeObject); ok {
			for i := 0; i < co.UpvalueCount && next+1 < len(c.Code); i++ {
				isLocal := c.Code[next]
				index := c.Code[next+1]
				kind := "upvalue"
				if isLocal != 0 {
					kind = "local"
				}
				fmt.Printf("%04d      |                     %s %d\n", next, kind, index)
				next += 2
			}
		}
	}
	return next
}
