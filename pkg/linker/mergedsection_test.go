package linker

import (
	"debug/elf"
	"testing"
)

func TestMergedSection_InsertIsIdempotent(t *testing.T) {
	m := NewMergedSection(".rodata.str", uint64(elf.SHF_ALLOC|elf.SHF_MERGE|elf.SHF_STRINGS), uint32(elf.SHT_PROGBITS))

	a := m.Insert("hello\x00", 0)
	b := m.Insert("hello\x00", 0)
	if a != b {
		t.Fatalf("two inserts of the same key must return the same *SectionFragment")
	}

	c := m.Insert("world\x00", 0)
	if a == c {
		t.Fatalf("distinct keys must not collide")
	}
}

func TestMergedSection_InsertTracksMaxAlignment(t *testing.T) {
	m := NewMergedSection(".rodata.cst8", uint64(elf.SHF_ALLOC|elf.SHF_MERGE), uint32(elf.SHT_PROGBITS))

	frag := m.Insert("12345678", 0)
	m.Insert("12345678", 3)
	if frag.P2Align != 3 {
		t.Fatalf("expected the higher of the two requested alignments to win, got %d", frag.P2Align)
	}
}

func TestMergedSection_AssignOffsetsIsDeterministic(t *testing.T) {
	build := func() *MergedSection {
		m := NewMergedSection(".rodata.str", uint64(elf.SHF_ALLOC|elf.SHF_MERGE|elf.SHF_STRINGS), uint32(elf.SHT_PROGBITS))
		for _, s := range []string{"zzz\x00", "a\x00", "mm\x00", "a\x00", "zzz\x00"} {
			m.Insert(s, 0)
		}
		m.AssignOffsets()
		return m
	}

	first := build()
	second := build()

	if first.Shdr.Size != second.Shdr.Size {
		t.Fatalf("AssignOffsets must produce the same total size across runs: %d vs %d", first.Shdr.Size, second.Shdr.Size)
	}

	for _, key := range []string{"zzz\x00", "a\x00", "mm\x00"} {
		f1, _ := first.Map.Get(key)
		f2, _ := second.Map.Get(key)
		if f1.Offset != f2.Offset {
			t.Fatalf("offset of %q must be stable across runs: %d vs %d", key, f1.Offset, f2.Offset)
		}
	}
}
