package linker

import (
	"debug/elf"
	"runtime"

	"golang.org/x/sync/errgroup"

	"parld/pkg/utils"
)

// ShstrtabSection backs every OutputChunk's sh_name: one NUL-terminated
// copy of each distinct chunk name, offsets handed out as chunks are
// finalized (spec.md §4.6: "filling shstrtab with each name and writing
// back the name offset").
type ShstrtabSection struct {
	Chunk
	buf []byte
}

func NewShstrtabSection() *ShstrtabSection {
	s := &ShstrtabSection{Chunk: NewChunk()}
	s.Name = ".shstrtab"
	s.Shdr.Type = uint32(elf.SHT_STRTAB)
	s.buf = []byte{0}
	return s
}

// Intern appends name and writes its offset back into shdr.Name.
func (s *ShstrtabSection) Intern(shdr *Shdr, name string) {
	shdr.Name = uint32(len(s.buf))
	s.buf = append(s.buf, []byte(name)...)
	s.buf = append(s.buf, 0)
}

func (s *ShstrtabSection) UpdateShdr(ctx *Context) {
	s.Shdr.Size = uint64(len(s.buf))
}

func (s *ShstrtabSection) CopyBuf(ctx *Context) {
	copy(ctx.Buf[s.Shdr.Offset:], s.buf)
}

// symShndx resolves the output section index a symbol table entry
// should carry: the owning chunk's assigned index, or SHN_ABS for a
// value with no backing section (absolute symbols, synthetic ones).
func symShndx(sym *Symbol) uint16 {
	if sym.InputSection != nil {
		return uint16(sym.InputSection.OutputSection.GetShndx())
	}
	if sym.SectionFragment != nil {
		return uint16(sym.SectionFragment.OutputSection.GetShndx())
	}
	return uint16(elf.SHN_ABS)
}

// SymtabSection is `.symtab`. Layout is: the reserved null entry, then
// every alive file's local symbols back to back in input-file order,
// then every defined global symbol once (spec.md §4.6's per-file
// exclusive-prefix-sum scheme): each ObjectFile is told its own base
// index before any byte is written, so the parallel write phase in
// CopyBuf never needs a lock.
type SymtabSection struct {
	Chunk
	GlobalSyms []*Symbol
}

func NewSymtabSection() *SymtabSection {
	s := &SymtabSection{Chunk: NewChunk()}
	s.Name = ".symtab"
	s.Shdr.Type = uint32(elf.SHT_SYMTAB)
	s.Shdr.EntSize = SymSize
	s.Shdr.AddrAlign = 8
	return s
}

// UpdateShdr assigns the exclusive-prefix-sum base symtab/strtab index
// and byte offset to every alive ObjectFile, then appends the set of
// live global symbols.
func (s *SymtabSection) UpdateShdr(ctx *Context) {
	idx := uint32(1) // slot 0 is the reserved null entry
	strOff := uint32(1)

	for _, file := range ctx.Objs {
		file.LocalSymtabIdx = idx
		file.LocalStrtabOffset = strOff
		n, strSize := file.ComputeLocalSymtabSize()
		idx += n
		strOff += strSize
	}

	s.Shdr.Info = idx // sh_info: one-past-the-last-local index

	s.GlobalSyms = s.GlobalSyms[:0]
	seen := make(map[*Symbol]bool)
	for _, file := range ctx.Objs {
		for _, sym := range file.Symbols[file.FirstGlobal:] {
			if sym.File != file || sym.Name == "" || seen[sym] {
				continue
			}
			seen[sym] = true
			s.GlobalSyms = append(s.GlobalSyms, sym)
			sym.SymtabIdx = int32(idx)
			sym.StrtabOffset = strOff
			idx++
			strOff += uint32(len(sym.Name)) + 1
		}
	}

	s.Shdr.Size = uint64(idx) * SymSize
	ctx.Strtab.Shdr.Size = uint64(strOff)
}

// CopyBuf fans the write out across files with no shared mutable state:
// every ObjectFile already knows its own base symtab index and strtab
// offset, so local-symbol emission is embarrassingly parallel.
func (s *SymtabSection) CopyBuf(ctx *Context) {
	symBuf := ctx.Buf[s.Shdr.Offset:]
	strBuf := ctx.Buf[ctx.Strtab.Shdr.Offset:]
	strBuf[0] = 0

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, file := range ctx.Objs {
		file := file
		g.Go(func() error {
			file.WriteLocalSymtab(symBuf, strBuf)
			return nil
		})
	}
	utils.MustNo(g.Wait())

	for _, sym := range s.GlobalSyms {
		writeSymtabEntry(symBuf, strBuf, sym)
	}
}

func writeSymtabEntry(symBuf, strBuf []byte, sym *Symbol) {
	copy(strBuf[sym.StrtabOffset:], sym.Name)
	esym := sym.ElfSym()
	out := Sym{
		Name:  sym.StrtabOffset,
		Info:  esym.Info,
		Other: esym.Other,
		Shndx: symShndx(sym),
		Val:   sym.GetAddr(),
		Size:  esym.Size,
	}
	utils.Write[Sym](symBuf[int(sym.SymtabIdx)*SymSize:], out)
}

// StrtabSection is `.strtab`, the string backing store for `.symtab`.
// Its size is computed as a side effect of SymtabSection.UpdateShdr and
// must run after it in the chunk list.
type StrtabSection struct {
	Chunk
}

func NewStrtabSection() *StrtabSection {
	s := &StrtabSection{Chunk: NewChunk()}
	s.Name = ".strtab"
	s.Shdr.Type = uint32(elf.SHT_STRTAB)
	return s
}
