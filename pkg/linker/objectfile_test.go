package linker

import (
	"debug/elf"
	"testing"
)

func TestConvertCommonSymbols_SynthesizesBssSection(t *testing.T) {
	ctx := NewContext()

	file := &ObjectFile{Priority: 1}
	file.InputFile.ElfSyms = []Sym{
		{}, // null entry
		{Shndx: uint16(elf.SHN_COMMON), Info: infoOf(elf.STB_GLOBAL, elf.STT_OBJECT), Size: 32, Val: 16},
	}
	file.FirstGlobal = 1

	sym := NewSymbol("g_buffer")
	sym.File = file
	sym.SymIdx = 1
	file.InputFile.Symbols = []*Symbol{nil, sym}

	file.ConvertCommonSymbols(ctx)

	if sym.InputSection == nil {
		t.Fatalf("expected the common symbol to gain a synthetic InputSection")
	}
	if sym.InputSection.ShSize != 32 {
		t.Fatalf("expected the synthetic section's size to match the symbol's, got %d", sym.InputSection.ShSize)
	}
	if sym.InputSection.Name() != ".bss.common.g_buffer" {
		t.Fatalf("unexpected synthetic section name %q", sym.InputSection.Name())
	}
	if sym.InputSection.OutputSection == nil || sym.InputSection.OutputSection.Name != ".bss" {
		t.Fatalf("expected the synthetic section to fold into .bss")
	}
	if sym.Value != 0 {
		t.Fatalf("expected symbol value to be reset to 0 relative to the new section")
	}
}

func TestEliminateDuplicateComdatGroups_LoserSectionsDie(t *testing.T) {
	winner := &ObjectFile{Priority: 1}
	loser := &ObjectFile{Priority: 2}

	group := NewComdatGroup()
	group.TryWin(winner, 3)
	group.TryWin(loser, 3)

	// loser's group section (idx 3) lists member section 5 as the
	// COMDAT-guarded section to discard if it doesn't own the group.
	groupBody := make([]byte, 8)
	// flags word = GRP_COMDAT
	groupBody[0] = 1
	// member section index 5, little-endian
	groupBody[4] = 5

	loser.InputFile.ElfSections = make([]Shdr, 6)
	loser.InputFile.ElfSections[3] = Shdr{Offset: 0, Size: uint64(len(groupBody))}
	loser.InputFile.File = &File{Contents: groupBody}

	loser.Sections = make([]*InputSection, 6)
	loser.Sections[5] = &InputSection{IsAlive: true}

	loser.ComdatGroups = []comdatMember{{Group: group, SectionIdx: 3}}

	loser.EliminateDuplicateComdatGroups()

	if loser.Sections[5].IsAlive {
		t.Fatalf("expected the losing file's comdat member section to be marked dead")
	}
}
