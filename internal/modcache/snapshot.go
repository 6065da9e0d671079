package modcache

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"kuroko/internal/chunk"
	"kuroko/internal/value"
)

// codeSnapshot, chunkSnapshot and constSnapshot are gob-encodable
// mirrors of value.CodeObject / chunk.Chunk / value.Value. The real
// types carry unexported fields (chunk's sparse line map, expression
// map) and an interface{}-typed Chunk field, neither of which gob can
// walk directly, so a cached entry only round-trips what a cache
// consumer actually needs: bytecode, constants, and call metadata.
// Line and expression debug maps are NOT preserved across a cache
// round-trip (see DESIGN.md) — a cache hit rebuilds a Chunk whose
// debug info attributes every instruction to line 1, which only
// matters for diagnostics produced while replaying a cached entry's
// disassembly, never for the compile that produced it.
type codeSnapshot struct {
	Chunk     *chunkSnapshot
	Name      string
	QualName  string
	Docstring string

	RequiredArgs         int
	KeywordArgs          int
	PotentialPositionals int
	UnnamedArgs          int

	Flags uint32

	ArgNames []string

	UpvalueCount int
	Locals       []value.LocalDebugEntry
}

type chunkSnapshot struct {
	FileName  string
	Code      []byte
	Constants []constSnapshot
}

type constSnapshot struct {
	Kind    value.Kind
	AsBool  bool
	AsInt   int64
	AsFloat float64
	Str     string
	Bytes   []byte
	Code    *codeSnapshot
}

func snapshotValue(v value.Value) (constSnapshot, error) {
	s := constSnapshot{Kind: v.Kind, AsBool: v.AsBool, AsInt: v.AsInt, AsFloat: v.AsFloat}
	switch v.Kind {
	case value.KindString:
		str, ok := v.Obj.(string)
		if !ok {
			return s, fmt.Errorf("modcache: string constant has non-string Obj")
		}
		s.Str = str
	case value.KindBytes:
		b, ok := v.Obj.([]byte)
		if !ok {
			return s, fmt.Errorf("modcache: bytes constant has non-[]byte Obj")
		}
		s.Bytes = append([]byte(nil), b...)
	case value.KindCode:
		co, ok := v.Obj.(*value.CodeObject)
		if !ok {
			return s, fmt.Errorf("modcache: code constant has non-CodeObject Obj")
		}
		snap, err := snapshotCode(co)
		if err != nil {
			return s, err
		}
		s.Code = snap
	}
	return s, nil
}

func snapshotCode(co *value.CodeObject) (*codeSnapshot, error) {
	ch, ok := co.Chunk.(*chunk.Chunk)
	if !ok {
		return nil, fmt.Errorf("modcache: CodeObject.Chunk is not *chunk.Chunk")
	}
	cs := &chunkSnapshot{FileName: ch.FileName, Code: append([]byte(nil), ch.Code...)}
	for _, c := range ch.Constants {
		sv, err := snapshotValue(c)
		if err != nil {
			return nil, err
		}
		cs.Constants = append(cs.Constants, sv)
	}
	return &codeSnapshot{
		Chunk:                cs,
		Name:                 co.Name,
		QualName:             co.QualName,
		Docstring:            co.Docstring,
		RequiredArgs:         co.RequiredArgs,
		KeywordArgs:          co.KeywordArgs,
		PotentialPositionals: co.PotentialPositionals,
		UnnamedArgs:          co.UnnamedArgs,
		Flags:                co.Flags,
		ArgNames:             append([]string(nil), co.ArgNames...),
		UpvalueCount:         co.UpvalueCount,
		Locals:               append([]value.LocalDebugEntry(nil), co.Locals...),
	}, nil
}

func restoreValue(s constSnapshot) value.Value {
	switch s.Kind {
	case value.KindString:
		return value.NewString(s.Str)
	case value.KindBytes:
		return value.NewBytes(s.Bytes)
	case value.KindCode:
		return value.NewCode(restoreCode(s.Code))
	case value.KindBool:
		return value.NewBool(s.AsBool)
	case value.KindInt:
		return value.NewInt(s.AsInt)
	case value.KindFloat:
		return value.NewFloat(s.AsFloat)
	default:
		return value.None()
	}
}

func restoreCode(cs *codeSnapshot) *value.CodeObject {
	ch := chunk.New(cs.Chunk.FileName)
	for _, b := range cs.Chunk.Code {
		ch.Write(b, 1)
	}
	for _, c := range cs.Chunk.Constants {
		ch.Constants = append(ch.Constants, restoreValue(c))
	}
	return &value.CodeObject{
		Chunk:                ch,
		Name:                 cs.Name,
		QualName:             cs.QualName,
		Docstring:            cs.Docstring,
		RequiredArgs:         cs.RequiredArgs,
		KeywordArgs:          cs.KeywordArgs,
		PotentialPositionals: cs.PotentialPositionals,
		UnnamedArgs:          cs.UnnamedArgs,
		Flags:                cs.Flags,
		ArgNames:             cs.ArgNames,
		UpvalueCount:         cs.UpvalueCount,
		Locals:               cs.Locals,
	}
}

// Marshal encodes a compiled code object for storage in the cache.
func Marshal(co *value.CodeObject) ([]byte, error) {
	snap, err := snapshotCode(co)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("modcache: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes bytes previously produced by Marshal.
func Unmarshal(blob []byte) (*value.CodeObject, error) {
	var snap codeSnapshot
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("modcache: decode: %w", err)
	}
	return restoreCode(&snap), nil
}
