package compiler

import (
	"kuroko/internal/chunk"
	"kuroko/internal/scanner"
	"kuroko/internal/token"
)

// exprCheckpoint is the `{chunk-recorder, scanner-state, parser-state}`
// triple of §4.3 "Rewinding": everything needed to either discard
// speculative bytecode or re-parse an already-scanned region from
// scratch.
type exprCheckpoint struct {
	scanState scanner.Scanner
	chunkRec  chunk.Recorder
	current   token.Token
	previous  token.Token
}

func (c *Compiler) tellCheckpoint() exprCheckpoint {
	return exprCheckpoint{
		scanState: c.scan.Tell(),
		chunkRec:  c.frame.Chunk.Record(),
		current:   c.current,
		previous:  c.previous,
	}
}

// restoreCheckpoint rewinds the scanner and parser token state but
// leaves the chunk untouched, for the cases (ternary's true-branch
// and else-branch jumps) where previously-emitted bytecode must
// survive the re-parse.
func (c *Compiler) restoreCheckpoint(cp exprCheckpoint) {
	c.scan.Rewind(cp.scanState)
	c.current = cp.current
	c.previous = cp.previous
}

// matchContinuationKeyword looks past a newline and, when present, a
// single INDENTATION token whose whitespace places the next token at
// col (the shape of a sibling clause line
// such as `elif`/`else`/`except`/`finally` written at the same column
// as the compound statement's own opening keyword) to see whether the
// next token is want. A plain c.match(want) would fail here even when
// the continuation is present, because block() never consumes the
// dedent INDENTATION token that precedes a sibling clause — it leaves
// it for whoever parses that sibling. On a match this consumes through
// the keyword, the same as c.match(want) would with no INDENTATION in
// the way; on a miss it rewinds completely, including any INDENTATION
// token speculatively consumed, so the enclosing block() still sees it
// as an ordinary sibling statement.
func (c *Compiler) matchContinuationKeyword(col int, want token.Type) bool {
	cp := c.tellCheckpoint()
	// INDENTATION carries its width in Col, while col is the keyword's
	// 1-based byte column, so compare against the raw whitespace length.
	if c.check(token.INDENTATION) && len(c.current.Lexeme) == col-1 {
		c.advance()
	}
	if c.match(want) {
		return true
	}
	c.restoreCheckpoint(cp)
	return false
}

func (c *Compiler) pushTernaryCheckpoint(cp exprCheckpoint) {
	c.ternaryStack = append(c.ternaryStack, cp)
}

func (c *Compiler) popTernaryCheckpoint() exprCheckpoint {
	cp := c.ternaryStack[len(c.ternaryStack)-1]
	c.ternaryStack = c.ternaryStack[:len(c.ternaryStack)-1]
	return cp
}
