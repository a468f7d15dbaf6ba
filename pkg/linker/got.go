package linker

import (
	"debug/elf"

	"parld/pkg/utils"
)

// GotSection is spec.md §3/§4.5's `.got`: one eight-byte slot per
// symbol flagged NeedsGot or NeedsGotTp during relocation scanning.
// Grounded on the GOT bookkeeping shape common to the rvld lineage
// (dongAxis-rvld's gotsection.go), index assignment swapped from the
// teacher's RISC-V relocation set to x86-64's.
type GotSection struct {
	Chunk
	GotSyms   []*Symbol
	GotTpSyms []*Symbol
}

func NewGotSection() *GotSection {
	g := &GotSection{Chunk: NewChunk()}
	g.Name = ".got"
	g.Shdr.Type = uint32(elf.SHT_PROGBITS)
	g.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_WRITE)
	g.Shdr.AddrAlign = 8
	return g
}

func (g *GotSection) AddGotSymbol(sym *Symbol) {
	sym.GotIdx = int32(g.Shdr.Size / 8)
	g.Shdr.Size += 8
	g.GotSyms = append(g.GotSyms, sym)
}

func (g *GotSection) AddGotTpSymbol(sym *Symbol) {
	sym.GotTpIdx = int32(g.Shdr.Size / 8)
	g.Shdr.Size += 8
	g.GotTpSyms = append(g.GotTpSyms, sym)
}

func (g *GotSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[g.Shdr.Offset:]
	for i := range buf[:g.Shdr.Size] {
		buf[i] = 0
	}

	for _, sym := range g.GotSyms {
		utils.Write[uint64](buf[sym.GotIdx*8:], sym.GetAddr())
	}
	for _, sym := range g.GotTpSyms {
		utils.Write[uint64](buf[sym.GotTpIdx*8:], sym.GetAddr()-ctx.TpAddr)
	}
}

// GotPltSection is `.got.plt`: the first three reserved slots plus one
// slot per PLT entry, holding the lazy-binding stub address until (in a
// dynamic linker) it is overwritten; since parld never runs a dynamic
// linker, every slot simply holds the real resolved target address,
// matching a statically-linked IFUNC-only PLT's behavior.
type GotPltSection struct {
	Chunk
}

func NewGotPltSection() *GotPltSection {
	g := &GotPltSection{Chunk: NewChunk()}
	g.Name = ".got.plt"
	g.Shdr.Type = uint32(elf.SHT_PROGBITS)
	g.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_WRITE)
	g.Shdr.AddrAlign = 8
	g.Shdr.Size = 24 // three reserved slots, matching the ABI's .got.plt[0..2]
	return g
}

func (g *GotPltSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[g.Shdr.Offset:]
	for i := range buf[:g.Shdr.Size] {
		buf[i] = 0
	}

	for _, sym := range ctx.Plt.Syms {
		utils.Write[uint64](buf[sym.GotPltIdx*8:], sym.GetAddr())
	}
}

// pltEntrySize is the byte length of one .plt slot. Each slot starts
// with the six-byte `ff 25 <disp32>` stub, a `jmp *disp32(%rip)`
// (spec.md §4.7), and is padded out to 16 bytes.
const pltEntrySize = 16

// PltSection is `.plt`. Every entry is a fixed 16-byte slot; bytes
// 0-5 hold the indirect jump, the rest is padding to keep entries
// 16-byte aligned for branch prediction (the conventional x86-64 PLT
// layout every native toolchain uses).
type PltSection struct {
	Chunk
	Syms []*Symbol
}

func NewPltSection() *PltSection {
	p := &PltSection{Chunk: NewChunk()}
	p.Name = ".plt"
	p.Shdr.Type = uint32(elf.SHT_PROGBITS)
	p.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR)
	p.Shdr.AddrAlign = 16
	return p
}

func (p *PltSection) AddSymbol(ctx *Context, sym *Symbol) {
	if sym.PltIdx >= 0 {
		return
	}
	sym.PltIdx = int32(len(p.Syms))
	sym.GotPltIdx = int32(3 + len(p.Syms)) // slots 0-2 are reserved
	p.Syms = append(p.Syms, sym)
	p.Shdr.Size = uint64(len(p.Syms)) * pltEntrySize
	ctx.GotPlt.Shdr.Size = uint64(3+len(p.Syms)) * 8
}

func (p *PltSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[p.Shdr.Offset:]
	for i := range buf[:p.Shdr.Size] {
		buf[i] = 0
	}

	for idx, sym := range p.Syms {
		loc := buf[idx*pltEntrySize:]
		gotPltAddr := sym.GetGotPltAddr(ctx)
		pltAddr := p.Shdr.Addr + uint64(idx*pltEntrySize)

		loc[0] = 0xff
		loc[1] = 0x25
		utils.Write[uint32](loc[2:], uint32(gotPltAddr-(pltAddr+6)))
	}
}

// RelPltSection is `.rela.plt`. parld has no dynamic linker to resolve
// these lazily, so every entry describes an R_X86_64_IRELATIVE-style
// direct binding resolved entirely at link time; the section exists so
// the output carries the conventional PLT/GOT.PLT/RELA.PLT triad a
// static x86-64 ELF reader expects even when the binding needs no
// runtime participant.
type RelPltSection struct {
	Chunk
}

func NewRelPltSection() *RelPltSection {
	r := &RelPltSection{Chunk: NewChunk()}
	r.Name = ".rela.plt"
	r.Shdr.Type = uint32(elf.SHT_RELA)
	r.Shdr.Flags = uint64(elf.SHF_ALLOC)
	r.Shdr.EntSize = RelaSize
	r.Shdr.AddrAlign = 8
	return r
}

func (r *RelPltSection) UpdateShdr(ctx *Context) {
	r.Shdr.Size = uint64(len(ctx.Plt.Syms)) * RelaSize
}

func (r *RelPltSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[r.Shdr.Offset:]
	for idx, sym := range ctx.Plt.Syms {
		rel := Rela{
			Offset: sym.GetGotPltAddr(ctx),
			Type:   uint32(elf.R_X86_64_IRELATIVE),
			Addend: int64(sym.GetAddr()),
		}
		utils.Write[Rela](buf[idx*RelaSize:], rel)
	}
}
