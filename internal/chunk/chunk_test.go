package chunk

import (
	"testing"

	"kuroko/internal/value"
)

func TestWriteSparseLineMap(t *testing.T) {
	c := New("test")
	c.WriteOp(OP_TRUE, 1)
	c.WriteOp(OP_POP, 1)
	c.WriteOp(OP_TRUE, 2)

	if c.Line(0) != 1 || c.Line(1) != 1 || c.Line(2) != 2 {
		t.Fatalf("line map wrong: %d %d %d", c.Line(0), c.Line(1), c.Line(2))
	}
	if len(c.lines) != 2 {
		t.Fatalf("expected 2 sparse runs, got %d", len(c.lines))
	}
}

func TestAddConstantRoundTrip(t *testing.T) {
	c := New("test")
	idx := c.AddConstant(value.NewInt(42), nil)
	if c.Constants[idx].AsInt != 42 {
		t.Fatalf("constant not stored")
	}
}

func TestEmitConstantChoosesLongForm(t *testing.T) {
	c := New("test")
	var last int
	for i := 0; i < 300; i++ {
		idx := c.AddConstant(value.NewInt(int64(i)), nil)
		last = c.EmitConstant(idx, 1)
	}
	if OpCode(c.Code[last]) != OP_CONSTANT_LONG {
		t.Fatalf("expected OP_CONSTANT_LONG past threshold, got %s", OpCode(c.Code[last]))
	}
}

func TestEmitConstantShortForm(t *testing.T) {
	c := New("test")
	idx := c.AddConstant(value.NewInt(1), nil)
	start := c.EmitConstant(idx, 1)
	if OpCode(c.Code[start]) != OP_CONSTANT {
		t.Fatalf("expected OP_CONSTANT below threshold, got %s", OpCode(c.Code[start]))
	}
}

func TestPatchJumpOrdinary(t *testing.T) {
	c := New("test")
	site := c.EmitJump(OP_JUMP_IF_FALSE, 1)
	c.WriteOp(OP_TRUE, 1)
	c.WriteOp(OP_POP, 1)
	if err := c.PatchJump(site); err != nil {
		t.Fatalf("PatchJump: %v", err)
	}
	want := len(c.Code) - (site + 2)
	got := int(c.Code[site])<<8 | int(c.Code[site+1])
	if got != want {
		t.Fatalf("patched jump = %d, want %d", got, want)
	}
}

func TestPatchJumpOverlongEscapes(t *testing.T) {
	c := New("test")
	site := c.EmitJump(OP_JUMP, 1)
	// Pad past the 16-bit limit so the patch must escape.
	for i := 0; i < 0x10010; i++ {
		c.WriteOp(OP_POP, 1)
	}
	if err := c.PatchJump(site); err != nil {
		t.Fatalf("PatchJump: %v", err)
	}
	opSite := site - 1
	if OpCode(c.Code[opSite]) != OP_OVERLONG_JUMP {
		t.Fatalf("expected opcode at %d to be rewritten to OP_OVERLONG_JUMP, got %s", opSite, OpCode(c.Code[opSite]))
	}
	origOp, offset, ok := c.OverlongFor(opSite)
	if !ok {
		t.Fatalf("missing overlong table entry for site %d", opSite)
	}
	if origOp != OP_JUMP {
		t.Fatalf("overlong entry lost original opcode: got %s", origOp)
	}
	wantOffset := len(c.Code) - (site + 2)
	if int(offset) != wantOffset {
		t.Fatalf("overlong offset = %d, want %d", offset, wantOffset)
	}
}

func TestRecordRewindRoundTrip(t *testing.T) {
	c := New("test")
	c.WriteOp(OP_TRUE, 1)
	c.AddConstant(value.NewInt(1), nil)

	r := c.Record()

	c.WriteOp(OP_FALSE, 2)
	c.WriteOp(OP_POP, 2)
	c.AddConstant(value.NewInt(2), nil)

	c.Rewind(r)

	if len(c.Code) != 1 {
		t.Fatalf("rewind left code length %d, want 1", len(c.Code))
	}
	if len(c.Constants) != 1 {
		t.Fatalf("rewind left constants length %d, want 1", len(c.Constants))
	}
	if OpCode(c.Code[0]) != OP_TRUE {
		t.Fatalf("rewind corrupted surviving code")
	}
}

func TestEmitLoopBackwardOffset(t *testing.T) {
	c := New("test")
	start := len(c.Code)
	c.WriteOp(OP_TRUE, 1)
	c.WriteOp(OP_POP, 1)
	if err := c.EmitLoop(start, 1); err != nil {
		t.Fatalf("EmitLoop: %v", err)
	}
	last := len(c.Code) - 3
	if OpCode(c.Code[last]) != OP_LOOP {
		t.Fatalf("expected OP_LOOP, got %s", OpCode(c.Code[last]))
	}
}

func TestAddExprSpanDroppedWhenOutOfByteRange(t *testing.T) {
	c := New("test")
	c.AddExprSpan(0, 1, 2, 3, 4)
	if _, ok := c.ExprSpanFor(0); !ok {
		t.Fatalf("expected in-range span to be recorded")
	}
	c.AddExprSpan(1, 1, 2, 3, 1000)
	if _, ok := c.ExprSpanFor(1); ok {
		t.Fatalf("expected out-of-range span to be dropped")
	}
}
