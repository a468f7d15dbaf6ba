package linker

import (
	"debug/elf"
	"testing"
)

func TestActivateArchiveMembers_PullsInDefiningArchiveMember(t *testing.T) {
	ctx := NewContext()

	strtab := []byte("\x00foo\x00")
	const fooOff = 1

	liveFile := &ObjectFile{Priority: 1}
	liveFile.IsAlive.Store(true)
	liveFile.FirstGlobal = 1
	liveFile.InputFile.ElfSyms = []Sym{{}, {Name: fooOff, Shndx: uint16(elf.SHN_UNDEF)}}
	liveFile.InputFile.SymbolStrtab = strtab
	fooSym := GetSymbolByName(ctx, "foo")
	liveFile.InputFile.Symbols = []*Symbol{nil, fooSym}

	dormantFile := &ObjectFile{Priority: 2}
	dormantFile.FirstGlobal = 1
	dormantFile.InputFile.ElfSyms = []Sym{{}, {Name: fooOff, Shndx: 1, Info: infoOf(elf.STB_GLOBAL, elf.STT_FUNC)}}
	dormantFile.InputFile.SymbolStrtab = strtab

	ctx.Objs = []*ObjectFile{liveFile, dormantFile}

	BuildArchiveIndex(ctx)
	ActivateArchiveMembers(ctx)

	if !dormantFile.IsAlive.Load() {
		t.Fatalf("expected the archive member defining %q to be activated", "foo")
	}
}

func TestActivateArchiveMembers_LeavesUnreferencedMembersDormant(t *testing.T) {
	ctx := NewContext()

	strtab := []byte("\x00bar\x00")
	const barOff = 1

	liveFile := &ObjectFile{Priority: 1}
	liveFile.IsAlive.Store(true)
	liveFile.FirstGlobal = 1
	liveFile.InputFile.ElfSyms = []Sym{{}} // no undefined references at all

	dormantFile := &ObjectFile{Priority: 2}
	dormantFile.FirstGlobal = 1
	dormantFile.InputFile.ElfSyms = []Sym{{}, {Name: barOff, Shndx: 1, Info: infoOf(elf.STB_GLOBAL, elf.STT_FUNC)}}
	dormantFile.InputFile.SymbolStrtab = strtab

	ctx.Objs = []*ObjectFile{liveFile, dormantFile}

	BuildArchiveIndex(ctx)
	ActivateArchiveMembers(ctx)

	if dormantFile.IsAlive.Load() {
		t.Fatalf("expected an archive member nothing references to remain dormant")
	}
}

func TestCheckUndefinedSymbols_WeakUndefIsFlaggedNotFatal(t *testing.T) {
	ctx := NewContext()

	file := &ObjectFile{Priority: 1}
	file.FirstGlobal = 1
	file.InputFile.ElfSyms = []Sym{
		{},
		{Shndx: uint16(elf.SHN_UNDEF), Info: infoOf(elf.STB_WEAK, elf.STT_NOTYPE)},
	}

	sym := NewSymbol("maybe_missing")
	file.InputFile.Symbols = []*Symbol{nil, sym}
	ctx.Objs = []*ObjectFile{file}

	CheckUndefinedSymbols(ctx)

	if !sym.IsUndefWeak {
		t.Fatalf("expected an undefined weak reference to be flagged IsUndefWeak")
	}
}
