package linker

import (
	"debug/elf"
	"math"
	"math/bits"

	"parld/pkg/utils"
)

// sttGnuIfunc is STT_GNU_IFUNC (10), the GNU extension symbol type for
// indirect functions. debug/elf does not export it since it is not
// part of the generic ELF spec.
const sttGnuIfunc uint8 = 10

// InputSection mirrors one ELF section of one input ObjectFile. Several
// InputSections from different files fold into a single OutputSection
// (spec.md §3); IsAlive is false for sections that contribute no bytes
// of their own: members of a losing COMDAT group, mergeable sections
// already split into pieces, and .eh_frame sections, which are dropped.
type InputSection struct {
	File     *ObjectFile
	Contents []byte
	Shndx    uint32
	ShSize   uint32
	IsAlive  bool
	P2Align  uint8

	Offset        uint32
	OutputSection *OutputSection

	RelsecIdx uint32
	Rels      []Rela

	// overrideShdr/overrideName back InputSections synthesized by the
	// linker itself (common-symbol .bss conversion, spec.md §4.3 Pass
	// C) rather than parsed from an ELF section-header table entry.
	overrideShdr *Shdr
	overrideName string
}

func NewInputSection(ctx *Context, name string, file *ObjectFile, shndx uint32) *InputSection {
	s := &InputSection{
		File:      file,
		Shndx:     shndx,
		IsAlive:   true,
		Offset:    math.MaxUint32,
		RelsecIdx: math.MaxUint32,
		ShSize:    math.MaxUint32,
	}

	shdr := s.Shdr()
	s.Contents = file.File.Contents[shdr.Offset : shdr.Offset+shdr.Size]

	utils.Assert(shdr.Flags&uint64(elf.SHF_COMPRESSED) == 0)
	s.ShSize = uint32(shdr.Size)

	toP2Align := func(align uint64) uint8 {
		if align == 0 {
			return 0
		}
		return uint8(bits.TrailingZeros64(align))
	}
	s.P2Align = toP2Align(shdr.AddrAlign)

	s.OutputSection = GetOutputSection(ctx, name, uint64(shdr.Type), shdr.Flags)
	return s
}

func (i *InputSection) Shdr() *Shdr {
	if i.overrideShdr != nil {
		return i.overrideShdr
	}
	utils.Assert(i.Shndx < uint32(len(i.File.ElfSections)))
	return &i.File.ElfSections[i.Shndx]
}

func (i *InputSection) Name() string {
	if i.overrideShdr != nil {
		return i.overrideName
	}
	return ElfGetName(i.File.ShStrtab, i.Shdr().Name)
}

func (i *InputSection) WriteTo(ctx *Context, buf []byte) {
	if !i.IsAlive {
		return
	}
	if i.Shdr().Type == uint32(elf.SHT_NOBITS) || i.ShSize == 0 {
		return
	}

	i.CopyContents(buf)

	if i.Shdr().Flags&uint64(elf.SHF_ALLOC) != 0 {
		i.ApplyRelocAlloc(ctx, buf)
	}
}

func (i *InputSection) CopyContents(buf []byte) {
	copy(buf, i.Contents)
}

func (i *InputSection) GetRels() []Rela {
	if i.RelsecIdx == math.MaxUint32 || i.Rels != nil {
		return i.Rels
	}

	bs := i.File.GetBytesFromShdr(&i.File.InputFile.ElfSections[i.RelsecIdx])
	i.Rels = utils.ReadSlice[Rela](bs, RelaSize)
	return i.Rels
}

func (i *InputSection) GetAddr() uint64 {
	return i.OutputSection.Shdr.Addr + uint64(i.Offset)
}

// ScanRelocations is run as an independent per-InputSection task during
// the parallel relocation-scan phase (spec.md §4.5/§5): for every
// relocation whose target symbol is defined, it ORs the appropriate
// demand flag into that symbol's atomic Flags bitset. It must run after
// symbol resolution (passes A-C) has fully settled, never concurrently
// with it, because a flag raised against a still-undefined placeholder
// symbol would be lost once that symbol is later cleared (spec.md §9,
// Open Question (b)).
func (i *InputSection) ScanRelocations() {
	for _, rel := range i.GetRels() {
		sym := i.File.Symbols[rel.Sym]
		if sym.File == nil {
			continue
		}

		switch elf.R_X86_64(rel.Type) {
		case elf.R_X86_64_PLT32:
			if sym.ElfSym().Type() == sttGnuIfunc {
				sym.AddFlags(NeedsPlt)
			}
		case elf.R_X86_64_GOT32, elf.R_X86_64_GOTPCREL,
			elf.R_X86_64_GOTPCRELX, elf.R_X86_64_REX_GOTPCRELX:
			sym.AddFlags(NeedsGot)
		case elf.R_X86_64_GOTTPOFF:
			sym.AddFlags(NeedsGotTp)
		}
	}
}

// ApplyRelocAlloc is the byte-emission half of relocation processing,
// run during the parallel write phase once every chunk (and therefore
// every GOT/PLT slot) has a final address (spec.md §4.6).
func (i *InputSection) ApplyRelocAlloc(ctx *Context, base []byte) {
	rels := i.GetRels()

	for a := 0; a < len(rels); a++ {
		rel := rels[a]
		if rel.Type == uint32(elf.R_X86_64_NONE) {
			continue
		}

		sym := i.File.Symbols[rel.Sym]
		loc := base[rel.Offset:]

		if sym.File == nil {
			continue
		}

		S := sym.GetAddr()
		A := uint64(rel.Addend)
		P := i.GetAddr() + rel.Offset

		switch elf.R_X86_64(rel.Type) {
		case elf.R_X86_64_8, elf.R_X86_64_16:
			// Not emitted by any compiler targeting this linker's
			// supported input set; fatal, like the default case below.
			utils.Fatal("unsupported relocation type in " + i.Name())
		case elf.R_X86_64_32:
			utils.Write[uint32](loc, uint32(S+A))
		case elf.R_X86_64_32S:
			utils.Write[uint32](loc, uint32(int32(S+A)))
		case elf.R_X86_64_64:
			utils.Write[uint64](loc, S+A)
		case elf.R_X86_64_PC32, elf.R_X86_64_PLT32:
			if sym.NeedsPlt() {
				S = sym.GetPltAddr(ctx)
			}
			utils.Write[uint32](loc, uint32(S+A-P))
		case elf.R_X86_64_GOT32:
			utils.Write[uint32](loc, uint32(sym.GetGotAddr(ctx)+A-ctx.Got.Shdr.Addr))
		case elf.R_X86_64_GOTPCREL, elf.R_X86_64_GOTPCRELX, elf.R_X86_64_REX_GOTPCRELX:
			utils.Write[uint32](loc, uint32(sym.GetGotAddr(ctx)+A-P))
		case elf.R_X86_64_GOTTPOFF:
			utils.Write[uint32](loc, uint32(sym.GetGotTpAddr(ctx)+A-P))
		case elf.R_X86_64_TPOFF32:
			utils.Write[uint32](loc, uint32(S+A-ctx.TpAddr))
		default:
			utils.Fatal("unsupported relocation type in " + i.Name())
		}
	}
}
