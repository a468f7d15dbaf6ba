package linker

import (
	"debug/elf"
	"sort"
	"sync"
	"sync/atomic"

	"parld/pkg/utils"
)

// MergedSection is spec.md §3's OutputChunk variant holding the
// deduplication table for one merged output section (e.g. ".rodata.str").
// Map is a concurrent intern table (§4.1/§4.4): every goroutine of
// RegisterSectionPieces' per-file fan-out inserts into it directly, with no
// global lock beyond what the table itself shards internally.
type MergedSection struct {
	Chunk
	Map *InternTable[SectionFragment]
}

func NewMergedSection(name string, flags uint64, typ uint32) *MergedSection {
	m := &MergedSection{
		Chunk: NewChunk(),
		Map:   NewInternTable[SectionFragment](),
	}
	m.Name = name
	m.Shdr.Flags = flags
	m.Shdr.Type = typ
	return m
}

var mergedSectionsMu sync.Mutex

// GetMergedSectionInstance returns the MergedSection for (name, type,
// flags), creating it on first use. ctx.MergedSections is small (one
// entry per distinct mergeable section name in the whole link) so a
// single mutex guarding linear search/append is simpler than a second
// intern table and never becomes a bottleneck.
func GetMergedSectionInstance(
	ctx *Context, name string, typ uint32, flags uint64) *MergedSection {
	name = GetOutputName(name, flags)
	flags = flags &^ uint64(elf.SHF_GROUP) &^ uint64(elf.SHF_MERGE) &^
		uint64(elf.SHF_STRINGS) &^ uint64(elf.SHF_COMPRESSED)

	mergedSectionsMu.Lock()
	defer mergedSectionsMu.Unlock()

	for _, osec := range ctx.MergedSections {
		if name == osec.Name && flags == osec.Shdr.Flags && typ == osec.Shdr.Type {
			return osec
		}
	}

	osec := NewMergedSection(name, flags, typ)
	ctx.MergedSections = append(ctx.MergedSections, osec)
	return osec
}

// Insert is spec.md §4.1's insert-or-get: concurrent inserts of the same
// key always return the same *SectionFragment (merge idempotence,
// spec.md §8 law).
func (m *MergedSection) Insert(key string, p2align uint32) *SectionFragment {
	frag := m.Map.Insert(key, func() *SectionFragment { return NewSectionFragment(m) })

	// RegisterSectionPieces fans this call out across every live object
	// file concurrently, and the same key (e.g. an identical string
	// literal) can arrive from two files at once, so the max-alignment
	// update needs a real CAS loop, not a plain read-then-write.
	for {
		old := atomic.LoadUint32(&frag.P2Align)
		if old >= p2align {
			break
		}
		if atomic.CompareAndSwapUint32(&frag.P2Align, old, p2align) {
			break
		}
	}

	return frag
}

// AssignOffsets gives every deduplicated piece a final output_offset,
// iterating in a deterministic order (spec.md §4.4: "stable sort by
// bytes or insertion-priority hash") so output is byte-identical across
// runs regardless of insertion order.
func (m *MergedSection) AssignOffsets() {
	type entry struct {
		key string
		val *SectionFragment
	}

	var fragments []entry
	m.Map.Range(func(key string, val *SectionFragment) bool {
		fragments = append(fragments, entry{key, val})
		return true
	})

	sort.Slice(fragments, func(i, j int) bool {
		x, y := fragments[i], fragments[j]
		if x.val.P2Align != y.val.P2Align {
			return x.val.P2Align < y.val.P2Align
		}
		if len(x.key) != len(y.key) {
			return len(x.key) < len(y.key)
		}
		return x.key < y.key
	})

	offset := uint64(0)
	p2align := uint64(0)
	for _, e := range fragments {
		offset = utils.AlignTo(offset, 1<<e.val.P2Align)
		e.val.Offset = uint32(offset)
		offset += uint64(len(e.key))
		p2align = utils.Max(p2align, uint64(e.val.P2Align))
	}

	m.Shdr.Size = utils.AlignTo(offset, 1<<p2align)
	m.Shdr.AddrAlign = 1 << p2align
}

func (m *MergedSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[m.Shdr.Offset:]
	m.Map.Range(func(key string, frag *SectionFragment) bool {
		copy(buf[frag.Offset:], key)
		return true
	})
}
