package linker

import (
	"math"
	"sync/atomic"
)

// SectionFragment is spec.md §3's StringPiece: one deduplicated entry of
// a mergeable section. Pieces with equal content map to the same
// SectionFragment across the entire link (enforced by MergedSection's
// intern table); Winner breaks ties deterministically among the
// InputSections that reference this piece, by (priority, section index),
// exactly as mold.h's StringPiece::isec does via CAS.
type SectionFragment struct {
	OutputSection *MergedSection
	Offset        uint32
	P2Align       uint32

	winnerKey uint64 // atomic, packs (priority, shndx); math.MaxUint64 until set
	Winner    atomic.Pointer[InputSection]
}

func NewSectionFragment(m *MergedSection) *SectionFragment {
	f := &SectionFragment{
		OutputSection: m,
		Offset:        math.MaxUint32,
	}
	atomic.StoreUint64(&f.winnerKey, math.MaxUint64)
	return f
}

func winnerKeyOf(priority uint32, shndx uint32) uint64 {
	return uint64(priority)<<32 | uint64(shndx)
}

// ClaimWinner installs isec as the tie-break winner if (priority, shndx)
// is lower than whatever is currently installed — a CAS loop, matching
// spec.md §4.2's "the piece's isec field is CAS-updated ... only when
// the current section's (file-priority, section-index) tuple is lower
// than the installed one".
func (s *SectionFragment) ClaimWinner(isec *InputSection) {
	key := winnerKeyOf(isec.File.Priority, isec.Shndx)
	for {
		old := atomic.LoadUint64(&s.winnerKey)
		if key >= old {
			return
		}
		if atomic.CompareAndSwapUint64(&s.winnerKey, old, key) {
			s.Winner.Store(isec)
			return
		}
	}
}

func (s *SectionFragment) GetAddr() uint64 {
	return s.OutputSection.Shdr.Addr + uint64(s.Offset)
}
