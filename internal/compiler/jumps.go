package compiler

import "kuroko/internal/chunk"

func (c *Compiler) emitJump() int {
	return c.frame.Chunk.EmitJump(chunk.OP_JUMP, c.previous.Line)
}

func (c *Compiler) emitJumpIfFalseOrPop() int {
	return c.frame.Chunk.EmitJump(chunk.OP_JUMP_IF_FALSE_OR_POP, c.previous.Line)
}

func (c *Compiler) emitJumpIfTrueOrPop() int {
	return c.frame.Chunk.EmitJump(chunk.OP_JUMP_IF_TRUE_OR_POP, c.previous.Line)
}

func (c *Compiler) emitPopJumpIfFalse() int {
	return c.frame.Chunk.EmitJump(chunk.OP_POP_JUMP_IF_FALSE, c.previous.Line)
}

func (c *Compiler) patchJump(site int) {
	if err := c.frame.Chunk.PatchJump(site); err != nil {
		c.error(err.Error())
	}
}

func (c *Compiler) emitLoop(start int) {
	if err := c.frame.Chunk.EmitLoop(start, c.previous.Line); err != nil {
		c.error(err.Error())
	}
}
