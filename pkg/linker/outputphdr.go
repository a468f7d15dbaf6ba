package linker

import (
	"debug/elf"

	"parld/pkg/utils"
)

// OutputPhdr is `.phdr`, built once every other chunk has its final
// address and size (spec.md §4.6: program headers are derived from the
// finished chunk layout, not the other way around).
type OutputPhdr struct {
	Chunk
	Phdrs []Phdr
}

func NewOutputPhdr() *OutputPhdr {
	o := &OutputPhdr{Chunk: NewChunk()}
	o.Shdr.Flags = uint64(elf.SHF_ALLOC)
	o.Shdr.AddrAlign = 8
	return o
}

func toPhdrFlags(chunk Chunker) uint32 {
	flags := uint32(elf.PF_R)
	if chunk.GetShdr().Flags&uint64(elf.SHF_WRITE) != 0 {
		flags |= uint32(elf.PF_W)
	}
	if chunk.GetShdr().Flags&uint64(elf.SHF_EXECINSTR) != 0 {
		flags |= uint32(elf.PF_X)
	}
	return flags
}

func isTls(chunk Chunker) bool {
	return chunk.GetShdr().Flags&uint64(elf.SHF_TLS) != 0
}

func isBss(chunk Chunker) bool {
	return chunk.GetShdr().Type == uint32(elf.SHT_NOBITS) && !isTls(chunk)
}

// CreatePhdr builds the program header table: PT_PHDR, then one
// PT_LOAD per run of consecutive SHF_ALLOC chunks sharing the same
// read/write/exec permission (spec.md §4.6), then a single PT_TLS
// spanning the contiguous run of .tdata/.tbss chunks (Open Question
// (c) in SPEC_FULL.md §9).
func CreatePhdr(ctx *Context) []Phdr {
	var vec []Phdr

	define := func(typ, flags uint32, minAlign uint64, chunk Chunker) {
		align := chunk.GetShdr().AddrAlign
		if minAlign > align {
			align = minAlign
		}
		filesize := chunk.GetShdr().Size
		if chunk.GetShdr().Type == uint32(elf.SHT_NOBITS) {
			filesize = 0
		}
		vec = append(vec, Phdr{
			Type:     typ,
			Flags:    flags,
			Align:    align,
			Offset:   chunk.GetShdr().Offset,
			VAddr:    chunk.GetShdr().Addr,
			PAddr:    chunk.GetShdr().Addr,
			FileSize: filesize,
			MemSize:  chunk.GetShdr().Size,
		})
	}

	push := func(chunk Chunker) {
		phdr := &vec[len(vec)-1]
		if chunk.GetShdr().AddrAlign > phdr.Align {
			phdr.Align = chunk.GetShdr().AddrAlign
		}
		end := chunk.GetShdr().Addr + chunk.GetShdr().Size
		if chunk.GetShdr().Type != uint32(elf.SHT_NOBITS) {
			phdr.FileSize = end - phdr.VAddr
		}
		phdr.MemSize = end - phdr.VAddr
	}

	define(uint32(elf.PT_PHDR), uint32(elf.PF_R), 8, ctx.Phdr)

	chunks := utils.RemoveIf(append([]Chunker{}, ctx.Chunks...), isTbss)

	for i := 0; i < len(chunks); {
		first := chunks[i]
		if first.GetShdr().Flags&uint64(elf.SHF_ALLOC) == 0 {
			break
		}
		i++

		flags := toPhdrFlags(first)
		define(uint32(elf.PT_LOAD), flags, uint64(PageSize), first)

		if !isBss(first) {
			for i < len(chunks) && !isBss(chunks[i]) && toPhdrFlags(chunks[i]) == flags {
				push(chunks[i])
				i++
			}
		}
		for i < len(chunks) && isBss(chunks[i]) && toPhdrFlags(chunks[i]) == flags {
			push(chunks[i])
			i++
		}
	}

	for i := 0; i < len(ctx.Chunks); {
		if !isTls(ctx.Chunks[i]) {
			i++
			continue
		}
		define(uint32(elf.PT_TLS), toPhdrFlags(ctx.Chunks[i]), 1, ctx.Chunks[i])
		i++
		for i < len(ctx.Chunks) && isTls(ctx.Chunks[i]) {
			push(ctx.Chunks[i])
			i++
		}
		last := &vec[len(vec)-1]
		ctx.TlsEnd = last.VAddr + last.MemSize
		// x86-64 puts the thread pointer at the aligned end of the TLS
		// block, so TP-relative offsets are negative.
		ctx.TpAddr = utils.AlignTo(ctx.TlsEnd, last.Align)
	}

	return vec
}

func (o *OutputPhdr) UpdateShdr(ctx *Context) {
	o.Phdrs = CreatePhdr(ctx)
	o.Shdr.Size = uint64(len(o.Phdrs)) * PhdrSize
}

func (o *OutputPhdr) CopyBuf(ctx *Context) {
	buf := ctx.Buf[o.Shdr.Offset:]
	for i, p := range o.Phdrs {
		utils.Write[Phdr](buf[i*PhdrSize:], p)
	}
}

func isTbss(chunk Chunker) bool {
	shdr := chunk.GetShdr()
	return shdr.Type == uint32(elf.SHT_NOBITS) && shdr.Flags&uint64(elf.SHF_TLS) != 0
}
