package linker

import (
	"sync"
	"sync/atomic"

	"parld/pkg/utils"
)

const (
	NeedsGot uint32 = 1 << iota
	NeedsGotTp
	NeedsPlt
)

// Symbol is the globally interned, per-name resolution record described
// in spec.md §3. Exactly one Symbol exists per interned name (Invariant
// 1 in spec.md §8) — all lookups go through GetSymbolByName, never a
// direct NewSymbol outside the intern path.
//
// File == nil means undefined. Exactly one of InputSection /
// SectionFragment is non-nil once the symbol is resolved to something
// other than an absolute value (spec.md §3 invariant).
type Symbol struct {
	mu sync.Mutex // guards the resolution compare/update of this symbol's defining fields

	Name string
	File *ObjectFile

	Value  uint64
	SymIdx int

	InputSection    *InputSection
	SectionFragment *SectionFragment

	GotIdx    int32
	GotTpIdx  int32
	PltIdx    int32
	GotPltIdx int32
	RelPltIdx int32

	SymtabIdx    int32
	StrtabOffset uint32

	Visibility uint8
	Type       uint8

	IsWeak        bool
	IsUndefWeak   bool
	IsDso         bool
	IsPlaceholder bool
	Traced        bool

	Flags uint32 // atomic bitset: NeedsGot | NeedsGotTp | NeedsPlt
}

func NewSymbol(name string) *Symbol {
	return &Symbol{
		Name:          name,
		SymIdx:        -1,
		GotIdx:        -1,
		GotTpIdx:      -1,
		PltIdx:        -1,
		GotPltIdx:     -1,
		RelPltIdx:     -1,
		IsPlaceholder: true,
	}
}

// SetInputSection and SetSectionFragment are mutually exclusive; setting
// one clears the other.
func (s *Symbol) SetInputSection(isec *InputSection) {
	s.InputSection = isec
	s.SectionFragment = nil
}

func (s *Symbol) SetSectionFragment(frag *SectionFragment) {
	s.InputSection = nil
	s.SectionFragment = frag
}

// Lock/Unlock expose the per-symbol spin lock called out in spec.md §5(b).
// Go's sync.Mutex parks instead of spinning under contention, which is
// the idiomatic tradeoff for this runtime; the "one symbol lock at a
// time" discipline is unaffected either way.
func (s *Symbol) Lock()   { s.mu.Lock() }
func (s *Symbol) Unlock() { s.mu.Unlock() }

// AddFlags ORs bits into Flags atomically (spec.md §5(e): "fetch_or").
func (s *Symbol) AddFlags(bits uint32) {
	for {
		old := atomic.LoadUint32(&s.Flags)
		if old&bits == bits {
			return
		}
		if atomic.CompareAndSwapUint32(&s.Flags, old, old|bits) {
			return
		}
	}
}

func (s *Symbol) LoadFlags() uint32 { return atomic.LoadUint32(&s.Flags) }
func (s *Symbol) ClearFlags()       { atomic.StoreUint32(&s.Flags, 0) }

func (s *Symbol) NeedsGot() bool   { return s.LoadFlags()&NeedsGot != 0 }
func (s *Symbol) NeedsGotTp() bool { return s.LoadFlags()&NeedsGotTp != 0 }
func (s *Symbol) NeedsPlt() bool   { return s.LoadFlags()&NeedsPlt != 0 }

// ElfSym returns the defining file's raw ELF symbol-table entry.
func (s *Symbol) ElfSym() *Sym {
	utils.Assert(s.File != nil && s.SymIdx >= 0 && s.SymIdx < len(s.File.ElfSyms))
	return &s.File.ElfSyms[s.SymIdx]
}

// Clear detaches a symbol from a file that turned out not to be live.
func (s *Symbol) Clear() {
	s.File = nil
	s.InputSection = nil
	s.SectionFragment = nil
	s.SymIdx = -1
	s.IsWeak = false
}

// GetAddr resolves the symbol's final virtual address; well-defined
// only once output layout has completed.
func (s *Symbol) GetAddr() uint64 {
	if s.SectionFragment != nil {
		return s.SectionFragment.GetAddr() + s.Value
	}
	if s.InputSection != nil {
		return s.InputSection.GetAddr() + s.Value
	}
	return s.Value
}

func (s *Symbol) GetGotAddr(ctx *Context) uint64 {
	return ctx.Got.Shdr.Addr + uint64(s.GotIdx)*8
}

func (s *Symbol) GetGotTpAddr(ctx *Context) uint64 {
	return ctx.Got.Shdr.Addr + uint64(s.GotTpIdx)*8
}

func (s *Symbol) GetGotPltAddr(ctx *Context) uint64 {
	return ctx.GotPlt.Shdr.Addr + uint64(s.GotPltIdx)*8
}

func (s *Symbol) GetPltAddr(ctx *Context) uint64 {
	return ctx.Plt.Shdr.Addr + uint64(s.PltIdx)*16
}

// GetSymbolByName interns name into ctx's global symbol table, returning
// the same *Symbol to every caller racing to insert it first.
func GetSymbolByName(ctx *Context, name string) *Symbol {
	return ctx.Symbols.Insert(name, func() *Symbol { return NewSymbol(name) })
}
