package scanner

import (
	"testing"

	"kuroko/internal/token"
)

func collect(src string) []token.Token {
	s := New(src)
	var out []token.Token
	for {
		t := s.Next()
		out = append(out, t)
		if t.Type == token.EOF {
			break
		}
	}
	return out
}

func TestIndentationAndEOL(t *testing.T) {
	src := "if x:\n    y = 1\n"
	toks := collect(src)

	var types []token.Type
	for _, tok := range toks {
		types = append(types, tok.Type)
	}

	want := []token.Type{
		token.IF, token.IDENTIFIER, token.COLON, token.EOL,
		token.INDENTATION, token.IDENTIFIER, token.EQUAL, token.INT, token.EOL,
		token.EOF,
	}
	if len(types) != len(want) {
		t.Fatalf("token count = %d, want %d (%v)", len(types), len(want), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("token %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestBlankAndCommentLinesRetry(t *testing.T) {
	src := "x = 1\n\n# a comment\ny = 2\n"
	toks := collect(src)
	for _, tok := range toks {
		if tok.Type == token.RETRY {
			t.Fatalf("RETRY leaked to caller of Next(): %v", toks)
		}
	}
}

func TestOperatorsLongestMatch(t *testing.T) {
	cases := []struct {
		src  string
		want token.Type
	}{
		{"==", token.EQUAL_EQUAL},
		{"!=", token.BANG_EQUAL},
		{"<=", token.LESS_EQUAL},
		{">=", token.GREATER_EQUAL},
		{"<<", token.LEFT_SHIFT},
		{">>", token.RIGHT_SHIFT},
		{"**", token.DOUBLE_STAR},
		{"//", token.DOUBLE_SLASH},
		{"->", token.ARROW},
		{"//=", token.DOUBLE_SLASH_EQUAL},
		{"**=", token.DOUBLE_STAR_EQUAL},
		{"...", token.ELLIPSIS},
	}
	for _, c := range cases {
		s := New(c.src)
		got := s.Next()
		if got.Type != c.want {
			t.Errorf("scan(%q) = %s, want %s", c.src, got.Type, c.want)
		}
	}
}

func TestStringPrefixes(t *testing.T) {
	s := New(`b"x" f"y" r"z"`)
	types := []token.Type{
		token.PREFIX_B, token.STRING,
		token.PREFIX_F, token.STRING,
		token.PREFIX_R, token.STRING,
		token.EOF,
	}
	for i, want := range types {
		got := s.Next()
		if got.Type != want {
			t.Fatalf("token %d = %s, want %s", i, got.Type, want)
		}
	}
}

func TestTripleQuotedBigString(t *testing.T) {
	s := New(`"""hello
world"""`)
	got := s.Next()
	if got.Type != token.BIG_STRING {
		t.Fatalf("got %s, want BIG_STRING", got.Type)
	}
}

func TestNumberForms(t *testing.T) {
	cases := []struct {
		src  string
		want token.Type
	}{
		{"123", token.INT},
		{"0x1F", token.INT},
		{"0b101", token.INT},
		{"0o17", token.INT},
		{"1.5", token.FLOAT},
		{"1e10", token.FLOAT},
		{"1.5e-3", token.FLOAT},
		{"007", token.INT}, // leading zero without base prefix is still decimal
	}
	for _, c := range cases {
		s := New(c.src)
		got := s.Next()
		if got.Type != c.want {
			t.Errorf("scan(%q) = %s, want %s", c.src, got.Type, c.want)
		}
	}
}

func TestMixedTabsAndSpacesIsError(t *testing.T) {
	s := New("if x:\n \ty = 1\n")
	s.Next() // if
	s.Next() // x
	s.Next() // :
	s.Next() // EOL
	got := s.Next()
	if got.Type != token.ERROR {
		t.Fatalf("expected ERROR for mixed indentation, got %s", got.Type)
	}
}

func TestUngetAndRewind(t *testing.T) {
	s := New("a b c")
	first := s.Next()
	checkpoint := s.Tell()
	second := s.Next()

	s.Unget(second)
	again := s.Next()
	if again != second {
		t.Fatalf("unget did not replay token: got %v, want %v", again, second)
	}

	s.Rewind(checkpoint)
	replayed := s.Next()
	if replayed != second {
		t.Fatalf("rewind did not restore scanner state: got %v, want %v", replayed, second)
	}
	_ = first
}

func TestLineContinuation(t *testing.T) {
	s := New("x = 1 + \\\n    2\n")
	var types []token.Type
	for {
		tok := s.Next()
		types = append(types, tok.Type)
		if tok.Type == token.EOF {
			break
		}
	}
	// The continuation should not produce a visible EOL in the middle.
	eols := 0
	for _, typ := range types {
		if typ == token.EOL {
			eols++
		}
	}
	if eols != 1 {
		t.Fatalf("expected exactly 1 EOL across the continued line, got %d (%v)", eols, types)
	}
}
