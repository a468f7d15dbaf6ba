package linker

import (
	"debug/elf"
	"encoding/binary"
	"testing"
)

func TestApplyRelocAlloc_AbsoluteAndPCRelative(t *testing.T) {
	ctx := NewContext()

	text := &OutputSection{Chunk: NewChunk()}
	text.Shdr.Addr = 0x1000

	data := &OutputSection{Chunk: NewChunk()}
	data.Shdr.Addr = 0x2000

	target := NewSymbol("target")
	target.File = &ObjectFile{Priority: 1}
	target.InputSection = &InputSection{OutputSection: data, Offset: 0x10}

	file := &ObjectFile{Priority: 1}
	file.InputFile.Symbols = []*Symbol{nil, target}

	isec := &InputSection{
		File:          file,
		OutputSection: text,
		Offset:        0x100,
		overrideShdr:  &Shdr{Flags: uint64(elf.SHF_ALLOC)},
		overrideName:  ".text",
	}
	isec.Rels = []Rela{
		// R_X86_64_64 at offset 0: absolute address, no addend.
		{Offset: 0, Sym: 1, Type: uint32(elf.R_X86_64_64), Addend: 0},
		// R_X86_64_32 at offset 8: absolute 32-bit truncation, addend 4.
		{Offset: 8, Sym: 1, Type: uint32(elf.R_X86_64_32), Addend: 4},
		// R_X86_64_PC32 at offset 16, no PLT: S+A-P.
		{Offset: 16, Sym: 1, Type: uint32(elf.R_X86_64_PC32), Addend: 0},
	}
	isec.RelsecIdx = 0 // any non-MaxUint32 value; GetRels short-circuits since Rels is set

	buf := make([]byte, 32)
	isec.ApplyRelocAlloc(ctx, buf)

	wantAbs := target.GetAddr()
	if got := binary.LittleEndian.Uint64(buf[0:8]); got != wantAbs {
		t.Fatalf("R_X86_64_64: got 0x%x, want 0x%x", got, wantAbs)
	}

	wantAbs32 := uint32(target.GetAddr() + 4)
	if got := binary.LittleEndian.Uint32(buf[8:12]); got != wantAbs32 {
		t.Fatalf("R_X86_64_32: got 0x%x, want 0x%x", got, wantAbs32)
	}

	P := isec.GetAddr() + 16
	wantPC := uint32(target.GetAddr() - P)
	if got := binary.LittleEndian.Uint32(buf[16:20]); got != wantPC {
		t.Fatalf("R_X86_64_PC32: got 0x%x, want 0x%x", got, wantPC)
	}
}

func TestApplyRelocAlloc_PC32RoutesThroughPltWhenNeeded(t *testing.T) {
	ctx := NewContext()
	ctx.Plt = &PltSection{Chunk: NewChunk()}
	ctx.Plt.Shdr.Addr = 0x5000

	text := &OutputSection{Chunk: NewChunk()}
	text.Shdr.Addr = 0x1000

	callee := NewSymbol("callee")
	callee.File = &ObjectFile{Priority: 1}
	callee.PltIdx = 2
	callee.AddFlags(NeedsPlt)

	file := &ObjectFile{Priority: 1}
	file.InputFile.Symbols = []*Symbol{nil, callee}

	isec := &InputSection{
		File:          file,
		OutputSection: text,
		Offset:        0,
		overrideShdr:  &Shdr{Flags: uint64(elf.SHF_ALLOC)},
		overrideName:  ".text",
	}
	isec.Rels = []Rela{
		{Offset: 0, Sym: 1, Type: uint32(elf.R_X86_64_PLT32), Addend: 0},
	}
	isec.RelsecIdx = 0

	buf := make([]byte, 8)
	isec.ApplyRelocAlloc(ctx, buf)

	P := isec.GetAddr()
	want := uint32(callee.GetPltAddr(ctx) - P)
	if got := binary.LittleEndian.Uint32(buf[0:4]); got != want {
		t.Fatalf("R_X86_64_PLT32: got 0x%x, want 0x%x", got, want)
	}
}
