package linker

import (
	"debug/elf"
	"testing"
)

func infoOf(bind elf.SymBind, typ elf.SymType) uint8 {
	return uint8(bind)<<4 | uint8(typ)&0xf
}

func newTestFile(priority uint32, syms ...Sym) *ObjectFile {
	return &ObjectFile{
		InputFile: InputFile{ElfSyms: syms},
		Priority:  priority,
	}
}

func TestResolveOne_StrongDefinedReplacesWeak(t *testing.T) {
	sym := NewSymbol("foo")
	weakFile := newTestFile(1, Sym{Shndx: 1, Info: infoOf(elf.STB_WEAK, elf.STT_FUNC)})
	sym.File = weakFile
	sym.IsWeak = true
	sym.SymIdx = 0
	sym.IsPlaceholder = false

	strongFile := newTestFile(2, Sym{Shndx: 1, Info: infoOf(elf.STB_GLOBAL, elf.STT_FUNC), Val: 0x42})
	resolveOne(sym, strongFile, &strongFile.ElfSyms[0], 0, nil)

	if sym.File != strongFile || sym.IsWeak {
		t.Fatalf("expected strong definition to replace installed weak one, got File=%v IsWeak=%v", sym.File, sym.IsWeak)
	}
}

func TestResolveOne_LowerPriorityWinsAmongStrongDefs(t *testing.T) {
	sym := NewSymbol("bar")
	laterFile := newTestFile(5, Sym{Shndx: 1, Info: infoOf(elf.STB_GLOBAL, elf.STT_FUNC)})
	sym.File = laterFile
	sym.SymIdx = 0
	sym.IsPlaceholder = false

	earlierFile := newTestFile(1, Sym{Shndx: 1, Info: infoOf(elf.STB_GLOBAL, elf.STT_FUNC)})
	resolveOne(sym, earlierFile, &earlierFile.ElfSyms[0], 0, nil)

	if sym.File != earlierFile {
		t.Fatalf("expected lower-priority file to win, got priority %d", sym.File.Priority)
	}

	// A third, even-later strong definition must not displace it.
	evenLaterFile := newTestFile(9, Sym{Shndx: 1, Info: infoOf(elf.STB_GLOBAL, elf.STT_FUNC)})
	resolveOne(sym, evenLaterFile, &evenLaterFile.ElfSyms[0], 0, nil)
	if sym.File != earlierFile {
		t.Fatalf("installed strong definition should not be displaced by a higher-priority one")
	}
}

func TestResolveOne_CommonReplacesUndefined(t *testing.T) {
	sym := NewSymbol("buf")
	file := newTestFile(1, Sym{Shndx: uint16(elf.SHN_COMMON), Info: infoOf(elf.STB_GLOBAL, elf.STT_OBJECT), Size: 16, Val: 8})
	resolveOne(sym, file, &file.ElfSyms[0], 0, nil)

	if sym.File != file || sym.commonSize() != 16 {
		t.Fatalf("expected common definition to install, got File=%v size=%d", sym.File, sym.commonSize())
	}
}

func TestResolveOne_LargerCommonWins(t *testing.T) {
	sym := NewSymbol("buf")
	small := newTestFile(1, Sym{Shndx: uint16(elf.SHN_COMMON), Info: infoOf(elf.STB_GLOBAL, elf.STT_OBJECT), Size: 4})
	resolveOne(sym, small, &small.ElfSyms[0], 0, nil)

	big := newTestFile(2, Sym{Shndx: uint16(elf.SHN_COMMON), Info: infoOf(elf.STB_GLOBAL, elf.STT_OBJECT), Size: 64})
	resolveOne(sym, big, &big.ElfSyms[0], 0, nil)

	if sym.File != big || sym.commonSize() != 64 {
		t.Fatalf("expected larger common definition to win, got size %d", sym.commonSize())
	}
}

func TestResolveOne_UndefinedReferenceNeverChangesBinding(t *testing.T) {
	sym := NewSymbol("quux")
	file := newTestFile(1, Sym{Shndx: 1, Info: infoOf(elf.STB_GLOBAL, elf.STT_FUNC)})
	resolveOne(sym, file, &file.ElfSyms[0], 0, nil)

	ref := newTestFile(2, Sym{Shndx: uint16(elf.SHN_UNDEF), Info: infoOf(elf.STB_GLOBAL, elf.STT_NOTYPE)})
	resolveOne(sym, ref, &ref.ElfSyms[0], 0, nil)

	if sym.File != file {
		t.Fatalf("an undefined reference must never change the installed definition")
	}
}
