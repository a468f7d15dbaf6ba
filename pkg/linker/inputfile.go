package linker

import (
	"debug/elf"
	"fmt"
	"sync/atomic"

	"parld/pkg/utils"
)

// InputFile is the portion of parsing shared by every kind of input:
// a standalone `.o` or an archive member (spec.md §3). ObjectFile
// embeds it. Symbols holds every symbol this file touches, local and
// global alike — globals point at the single Symbol interned in
// Context.Symbols, locals live in LocalSymbols and are pointed at
// directly.
//
// IsAlive is an atomic.Bool rather than a plain bool because Pass A's
// worker pool can race two archive members into activating the same
// not-yet-alive file at once (spec.md §4.3); CompareAndSwap makes
// "activate exactly once" an atomic property instead of a check-then-set.
type InputFile struct {
	File         *File
	ElfSections  []Shdr
	ShStrtab     []byte
	ElfSyms      []Sym
	FirstGlobal  int
	SymbolStrtab []byte
	IsAlive      atomic.Bool
	Symbols      []*Symbol
	LocalSymbols []Symbol
}

// NewInputFile decodes just enough of file to discover its section
// header table and section-name string table; everything symbol- and
// relocation-related is deferred to ObjectFile.Parse.
func NewInputFile(file *File) InputFile {
	f := InputFile{File: file}

	if len(file.Contents) < EhdrSize {
		utils.Fatal("file too small")
	}
	if !CheckMagic(file.Contents) {
		utils.Fatal("not an ELF file")
	}

	ehdr := utils.Read[Ehdr](file.Contents)
	contents := file.Contents[ehdr.ShOff:]
	shdr := utils.Read[Shdr](contents)

	// e_shnum == 0 means the real count overflowed into the zeroth
	// section header's sh_size field (the ELF64 SHN_XINDEX escape).
	numSections := int64(ehdr.ShNum)
	if numSections == 0 {
		numSections = int64(shdr.Size)
	}

	f.ElfSections = []Shdr{shdr}
	for numSections > 1 {
		contents = contents[ShdrSize:]
		f.ElfSections = append(f.ElfSections, utils.Read[Shdr](contents))
		numSections--
	}

	shstrndx := int64(ehdr.ShStrndx)
	if ehdr.ShStrndx == uint16(elf.SHN_XINDEX) {
		shstrndx = int64(shdr.Link)
	}
	f.ShStrtab = f.GetBytesFromIdx(shstrndx)
	return f
}

func (f *InputFile) GetBytesFromShdr(s *Shdr) []byte {
	end := s.Offset + s.Size
	if uint64(len(f.File.Contents)) < end {
		utils.Fatal(fmt.Sprintf("section header is out of range: %d", s.Offset))
	}
	return f.File.Contents[s.Offset:end]
}

func (f *InputFile) GetBytesFromIdx(idx int64) []byte {
	return f.GetBytesFromShdr(&f.ElfSections[idx])
}

func (f *InputFile) FillUpElfSyms(s *Shdr) {
	bs := f.GetBytesFromShdr(s)
	f.ElfSyms = utils.ReadSlice[Sym](bs, SymSize)
}

func (f *InputFile) FindSection(ty uint32) *Shdr {
	for i := 0; i < len(f.ElfSections); i++ {
		shdr := &f.ElfSections[i]
		if shdr.Type == ty {
			return shdr
		}
	}
	return nil
}

func (f *InputFile) GetEhdr() Ehdr {
	return utils.Read[Ehdr](f.File.Contents)
}
