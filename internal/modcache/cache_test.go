package modcache

import (
	"io/ioutil"
	"os"
	"testing"

	"kuroko/internal/compiler"
	"kuroko/internal/value"
)

func TestCachePutGet(t *testing.T) {
	dir, err := ioutil.TempDir("", "kuroko-modcache")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	cache, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cache.Close()

	source := "let x = 1\n"
	hash := Hash("example.kk", source)

	if _, ok, err := cache.Get(hash); err != nil || ok {
		t.Fatalf("expected miss on empty cache, got ok=%v err=%v", ok, err)
	}

	co, err := compiler.Compile(source, "example.kk", value.NewSimpleHost())
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	blob, err := Marshal(co)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := cache.Put(hash, blob, 1700000000); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := cache.Get(hash)
	if err != nil || !ok {
		t.Fatalf("expected hit after Put, got ok=%v err=%v", ok, err)
	}

	restored, err := Unmarshal(got)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if restored.QualName != co.QualName {
		t.Errorf("expected QualName %q, got %q", co.QualName, restored.QualName)
	}

	count, total, err := cache.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 cached entry, got %d", count)
	}
	if total != int64(len(blob)) {
		t.Errorf("expected %d total bytes, got %d", len(blob), total)
	}
}

func TestHashStable(t *testing.T) {
	a := Hash("f.kk", "let x = 1\n")
	b := Hash("f.kk", "let x = 1\n")
	c := Hash("f.kk", "let x = 2\n")
	if a != b {
		t.Errorf("expected identical source to hash identically")
	}
	if a == c {
		t.Errorf("expected different source to hash differently")
	}
}
