package linker

import "sort"

// MergeableSection holds the pieces a mergeable InputSection was split
// into (spec.md §4.2): each element of Strs is either a NUL-terminated
// string or a fixed sh_entsize chunk, at FragOffsets[i] within the
// original section's byte span; Fragments[i] is the interned
// SectionFragment it was deduplicated into.
type MergeableSection struct {
	Parent      *MergedSection
	P2Align     uint8
	Strs        []string
	FragOffsets []uint32
	Fragments   []*SectionFragment
}

// GetFragment maps a byte offset within the original section back to
// the piece covering it, for resolving symbols and relocations that
// point into a mergeable section.
func (m *MergeableSection) GetFragment(offset uint32) (*SectionFragment, uint32) {
	pos := sort.Search(len(m.FragOffsets), func(i int) bool {
		return offset < m.FragOffsets[i]
	})

	if pos == 0 {
		return nil, 0
	}

	idx := pos - 1
	return m.Fragments[idx], offset - m.FragOffsets[idx]
}
