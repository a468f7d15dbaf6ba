package linker

import (
	"bytes"
	"debug/elf"
	"fmt"
	"math"

	"parld/pkg/utils"
)

// comdatMember pairs an interned ComdatGroup with the index, within
// this file, of the SHT_GROUP section that names it (spec.md §3's
// ObjectFile.comdat_groups).
type comdatMember struct {
	Group      *ComdatGroup
	SectionIdx uint32
}

// ObjectFile is one parsed input: a standalone .o given on the command
// line, or a member pulled out of a .a archive during Pass A's
// activation fixpoint.
type ObjectFile struct {
	InputFile
	SymtabSec      *Shdr
	SymtabShndxSec []uint32

	Sections          []*InputSection
	MergeableSections []*MergeableSection
	ComdatGroups      []comdatMember

	// Priority is a monotonically increasing integer derived from
	// command-line order (spec.md §3), used as the deterministic
	// tie-break in symbol binding and COMDAT winner selection.
	Priority uint32

	LocalSymtabIdx    uint32
	LocalStrtabOffset uint32

	NumPlt, NumGot, NumGotPlt, NumRelPlt int32
}

func NewObjectFile(file *File, priority uint32, isAlive bool) *ObjectFile {
	o := &ObjectFile{InputFile: NewInputFile(file), Priority: priority}
	o.IsAlive.Store(isAlive)
	return o
}

// Parse decodes everything this file needs before it can participate
// in global symbol resolution: its symbol table, its InputSections
// (including COMDAT group membership) and mergeable-section splitting.
// Its .eh_frame sections are marked dead and not emitted.
func (o *ObjectFile) Parse(ctx *Context) {
	o.SymtabSec = o.FindSection(uint32(elf.SHT_SYMTAB))
	if o.SymtabSec != nil {
		o.FirstGlobal = int(o.SymtabSec.Info)
		o.FillUpElfSyms(o.SymtabSec)
		o.SymbolStrtab = o.GetBytesFromIdx(int64(o.SymtabSec.Link))
	}

	o.InitializeSections(ctx)
	o.InitializeSymbols(ctx)
	o.InitializeMergeableSections(ctx)
	o.SkipEhframeSections()
}

func (o *ObjectFile) InitializeSections(ctx *Context) {
	o.Sections = make([]*InputSection, len(o.ElfSections))

	for i := 0; i < len(o.ElfSections); i++ {
		shdr := &o.ElfSections[i]
		switch elf.SectionType(shdr.Type) {
		case elf.SHT_NULL, elf.SHT_SYMTAB, elf.SHT_STRTAB, elf.SHT_REL, elf.SHT_RELA:
			// handled elsewhere, or not materialized as an InputSection
		case elf.SHT_SYMTAB_SHNDX:
			o.FillUpSymtabShndxSec(shdr)
		case elf.SHT_GROUP:
			o.parseGroupSection(ctx, uint32(i))
		default:
			name := ElfGetName(o.InputFile.ShStrtab, shdr.Name)
			o.Sections[i] = NewInputSection(ctx, name, o, uint32(i))
		}
	}

	for i := 0; i < len(o.ElfSections); i++ {
		shdr := &o.InputFile.ElfSections[i]
		if shdr.Type != uint32(elf.SHT_RELA) {
			continue
		}
		utils.Assert(shdr.Info < uint32(len(o.Sections)))
		if target := o.Sections[shdr.Info]; target != nil {
			utils.Assert(target.RelsecIdx == math.MaxUint32)
			target.RelsecIdx = uint32(i)
		}
	}
}

// parseGroupSection decodes one SHT_GROUP section: a leading flag word
// (GRP_COMDAT or not) followed by a packed array of member section
// indices (spec.md §4.2; layout grounded on mold.h's ComdatGroup and
// general ELF SHT_GROUP semantics). Non-COMDAT groups (e.g. vendor
// link-once groups without GRP_COMDAT) are skipped: they are not
// recorded and never contended over.
func (o *ObjectFile) parseGroupSection(ctx *Context, shndx uint32) {
	shdr := &o.ElfSections[shndx]
	bs := o.GetBytesFromShdr(shdr)
	if len(bs) < 4 {
		return
	}

	flags := utils.Read[uint32](bs)
	if flags&GrpComdat == 0 {
		return
	}

	// The group's signature is the name of the symbol table entry at
	// sh_info (spec.md §4.2). Parse() decodes the symbol table before
	// calling InitializeSections, so o.ElfSyms/o.SymbolStrtab are
	// already available here.
	sigName := fmt.Sprintf("?%d", shdr.Info)
	if int(shdr.Info) < len(o.ElfSyms) {
		sigName = ElfGetName(o.SymbolStrtab, o.ElfSyms[shdr.Info].Name)
	}
	group := GetComdatGroupInstance(ctx, sigName)
	o.ComdatGroups = append(o.ComdatGroups, comdatMember{Group: group, SectionIdx: shndx})
}

func (o *ObjectFile) FillUpSymtabShndxSec(s *Shdr) {
	bs := o.GetBytesFromShdr(s)
	o.SymtabShndxSec = utils.ReadSlice[uint32](bs, 4)
}

func (o *ObjectFile) InitializeSymbols(ctx *Context) {
	if o.SymtabSec == nil {
		return
	}

	o.LocalSymbols = make([]Symbol, o.FirstGlobal)
	for i := range o.LocalSymbols {
		o.LocalSymbols[i] = *NewSymbol("")
	}
	o.LocalSymbols[0].File = o

	for i := 1; i < len(o.LocalSymbols); i++ {
		esym := &o.ElfSyms[i]
		sym := &o.LocalSymbols[i]
		sym.Name = ElfGetName(o.SymbolStrtab, esym.Name)
		sym.File = o
		sym.Value = esym.Val
		sym.SymIdx = i
		sym.IsPlaceholder = false
		sym.Visibility = esym.Visibility()
		sym.Type = esym.Type()

		if !esym.IsAbs() && !esym.IsCommon() {
			sym.SetInputSection(o.Sections[o.GetShndx(esym, i)])
		}
	}

	o.Symbols = make([]*Symbol, len(o.ElfSyms))
	for i := range o.LocalSymbols {
		o.Symbols[i] = &o.LocalSymbols[i]
	}
	for i := len(o.LocalSymbols); i < len(o.ElfSyms); i++ {
		esym := &o.ElfSyms[i]
		name := ElfGetName(o.SymbolStrtab, esym.Name)
		o.Symbols[i] = GetSymbolByName(ctx, name)
	}
}

func (o *ObjectFile) GetShndx(esym *Sym, idx int) int64 {
	utils.Assert(idx >= 0 && idx < len(o.ElfSyms))
	if esym.Shndx == uint16(elf.SHN_XINDEX) {
		return int64(o.SymtabShndxSec[idx])
	}
	return int64(esym.Shndx)
}

func (o *ObjectFile) GetSection(esym *Sym, idx int) *InputSection {
	return o.Sections[o.GetShndx(esym, idx)]
}

// ResolveSymbols is Pass B's per-file half (spec.md §4.3): every
// global symbol this file defines or references is pushed through the
// binding rule table against the interned Symbol.
func (o *ObjectFile) ResolveSymbols() {
	for i := o.FirstGlobal; i < len(o.ElfSyms); i++ {
		sym := o.Symbols[i]
		esym := &o.ElfSyms[i]

		var isec *InputSection
		if !esym.IsUndef() && !esym.IsAbs() && !esym.IsCommon() {
			isec = o.GetSection(esym, i)
			if isec == nil {
				continue
			}
		}

		resolveOne(sym, o, esym, i, isec)
	}
}

// MarkLiveObjects is Pass A's per-file step: for each of this file's
// undefined globals, consult the archive symbol index built before the
// fixpoint started (spec.md §4.3) for a not-yet-activated file that
// defines it; activating a file happens exactly once regardless of how
// many referencing files race to discover it, via CompareAndSwap on its
// IsAlive flag. This cannot use the Symbol's own File field the way Pass
// B's binding does: at Pass A time every global Symbol is still an
// unbound placeholder, since Pass B hasn't run yet.
func (o *ObjectFile) MarkLiveObjects(ctx *Context, feeder func(*ObjectFile)) {
	utils.Assert(o.IsAlive.Load())

	for i := o.FirstGlobal; i < len(o.ElfSyms); i++ {
		esym := &o.ElfSyms[i]
		if !esym.IsUndef() {
			continue
		}

		sym := o.Symbols[i]
		provider, ok := ctx.ArchiveIndex[sym.Name]
		if !ok {
			continue
		}
		if provider.IsAlive.CompareAndSwap(false, true) {
			feeder(provider)
		}
	}
}

// ClearSymbols detaches this file's claim on every global symbol it
// was the installed definer of, run once a file is known not to be
// part of the final live set.
func (o *ObjectFile) ClearSymbols() {
	for _, sym := range o.Symbols[o.FirstGlobal:] {
		if sym.File == o {
			sym.Clear()
		}
	}
}

// EliminateDuplicateComdatGroups is Pass B's COMDAT half: for every
// group this file did not win, the group's member sections are marked
// dead. Symbols that point into those sections are not changed.
func (o *ObjectFile) EliminateDuplicateComdatGroups() {
	for _, m := range o.ComdatGroups {
		if m.Group.Owner == o && m.Group.SectionIdx == m.SectionIdx {
			continue
		}
		o.removeComdatMembers(m.SectionIdx)
	}
}

func (o *ObjectFile) removeComdatMembers(groupShndx uint32) {
	shdr := &o.ElfSections[groupShndx]
	bs := o.GetBytesFromShdr(shdr)
	members := utils.ReadSlice[uint32](bs[4:], 4)

	for _, shndx := range members {
		if int(shndx) < len(o.Sections) && o.Sections[shndx] != nil {
			o.Sections[shndx].IsAlive = false
		}
	}
}

func (o *ObjectFile) InitializeMergeableSections(ctx *Context) {
	o.MergeableSections = make([]*MergeableSection, len(o.Sections))
	for i := 0; i < len(o.Sections); i++ {
		isec := o.Sections[i]
		if isec != nil && isec.IsAlive &&
			isec.Shdr().Flags&uint64(elf.SHF_MERGE) != 0 &&
			isec.Shdr().EntSize > 0 &&
			isec.Shdr().Flags&uint64(elf.SHF_WRITE|elf.SHF_EXECINSTR) == 0 {
			o.MergeableSections[i] = splitSection(ctx, isec)
			isec.IsAlive = false
		}
	}
}

func findNull(data []byte, entSize int) int {
	if entSize == 1 {
		return bytes.IndexByte(data, 0)
	}
	for i := 0; i <= len(data)-entSize; i += entSize {
		if utils.AllZeros(data[i : i+entSize]) {
			return i
		}
	}
	return -1
}

func splitSection(ctx *Context, isec *InputSection) *MergeableSection {
	m := &MergeableSection{}
	shdr := isec.Shdr()

	m.Parent = GetMergedSectionInstance(ctx, isec.Name(), shdr.Type, shdr.Flags)
	m.P2Align = isec.P2Align

	data := isec.Contents
	offset := uint64(0)
	if shdr.Flags&uint64(elf.SHF_STRINGS) != 0 {
		for len(data) > 0 {
			end := findNull(data, int(shdr.EntSize))
			if end == -1 {
				utils.Fatal("string is not null terminated")
			}
			sz := uint64(end) + shdr.EntSize
			m.Strs = append(m.Strs, string(data[:sz]))
			m.FragOffsets = append(m.FragOffsets, uint32(offset))
			data = data[sz:]
			offset += sz
		}
	} else {
		if shdr.EntSize == 0 || uint64(len(data))%shdr.EntSize != 0 {
			utils.Fatal("section size is not multiple of entsize")
		}
		for len(data) > 0 {
			m.Strs = append(m.Strs, string(data[:shdr.EntSize]))
			m.FragOffsets = append(m.FragOffsets, uint32(offset))
			data = data[shdr.EntSize:]
			offset += shdr.EntSize
		}
	}

	return m
}

// RegisterSectionPieces interns every mergeable piece this file
// contributes and, for symbols whose value pointed into a now-split
// section, rewrites them to a StringPieceRef (spec.md §4.3 Pass C's
// "merged-section-resolved symbols" step).
func (o *ObjectFile) RegisterSectionPieces() {
	for _, m := range o.MergeableSections {
		if m == nil {
			continue
		}
		m.Fragments = make([]*SectionFragment, 0, len(m.Strs))
		srcIdx := indexOfMergeable(o, m)
		var isec *InputSection
		if srcIdx >= 0 {
			isec = o.Sections[srcIdx]
		}
		for _, s := range m.Strs {
			frag := m.Parent.Insert(s, uint32(m.P2Align))
			m.Fragments = append(m.Fragments, frag)
			if isec != nil {
				frag.ClaimWinner(isec)
			}
		}
	}

	for i := 1; i < len(o.ElfSyms); i++ {
		sym := o.Symbols[i]
		esym := &o.ElfSyms[i]

		if esym.IsAbs() || esym.IsUndef() || esym.IsCommon() {
			continue
		}
		if sym.File != o {
			continue
		}

		m := o.MergeableSections[o.GetShndx(esym, i)]
		if m == nil {
			continue
		}

		frag, fragOffset := m.GetFragment(uint32(esym.Val))
		if frag == nil {
			utils.Fatal("bad symbol value")
		}
		sym.SetSectionFragment(frag)
		sym.Value = uint64(fragOffset)
	}
}

func indexOfMergeable(o *ObjectFile, target *MergeableSection) int {
	for i, m := range o.MergeableSections {
		if m == target {
			return i
		}
	}
	return -1
}

func (o *ObjectFile) SkipEhframeSections() {
	for _, isec := range o.Sections {
		if isec != nil && isec.IsAlive && isec.Name() == ".eh_frame" {
			isec.IsAlive = false
		}
	}
}

// ConvertCommonSymbols is spec.md §4.3 Pass C's common-symbol step: it
// must complete, for every live file, before ScanRelocations begins
// (SPEC_FULL.md §9, Open Question (b)) so every relocation referencing
// a formerly tentative symbol sees a real InputSection.
func (o *ObjectFile) ConvertCommonSymbols(ctx *Context) {
	for i := o.FirstGlobal; i < len(o.ElfSyms); i++ {
		sym := o.Symbols[i]
		esym := &o.ElfSyms[i]

		if sym.File != o || !esym.IsCommon() {
			continue
		}

		name := ".bss.common." + sym.Name
		shdr := Shdr{
			Type:      uint32(elf.SHT_NOBITS),
			Flags:     uint64(elf.SHF_ALLOC | elf.SHF_WRITE),
			Size:      esym.Size,
			AddrAlign: esym.Val, // st_value holds the required alignment for SHN_COMMON
		}
		if shdr.AddrAlign == 0 {
			shdr.AddrAlign = 1
		}

		isec := &InputSection{
			File:         o,
			Shndx:        math.MaxUint32,
			ShSize:       uint32(shdr.Size),
			IsAlive:      true,
			P2Align:      p2alignOf(shdr.AddrAlign),
			overrideShdr: &shdr,
			overrideName: name,
		}
		isec.OutputSection = GetOutputSection(ctx, ".bss", uint64(shdr.Type), shdr.Flags)

		o.Sections = append(o.Sections, isec)
		sym.SetInputSection(isec)
		sym.Value = 0
	}
}

func p2alignOf(align uint64) uint8 {
	p := uint8(0)
	for (uint64(1) << p) < align {
		p++
	}
	return p
}

func (o *ObjectFile) ScanRelocations() {
	for _, isec := range o.Sections {
		if isec != nil && isec.IsAlive && isec.Shdr().Flags&uint64(elf.SHF_ALLOC) != 0 {
			isec.ScanRelocations()
		}
	}
}

// ComputeLocalSymtabSize returns the number of symtab entries and
// strtab bytes this file's local symbols need, used by
// SymtabSection.UpdateShdr's exclusive-prefix-sum pass. Every file
// contributes one leading STT_FILE entry naming itself (spec.md §6:
// "one STT_FILE + local symbols per input file") ahead of its own
// local symbols.
func (o *ObjectFile) ComputeLocalSymtabSize() (uint32, uint32) {
	n, strSize := uint32(1), uint32(len(o.File.Name))+1
	for i := 1; i < len(o.LocalSymbols); i++ {
		sym := &o.LocalSymbols[i]
		if sym.Name == "" {
			continue
		}
		n++
		strSize += uint32(len(sym.Name)) + 1
	}
	return n, strSize
}

// WriteLocalSymtab writes this file's slice of the symtab/strtab with
// no coordination with any other file (spec.md §4.6): its base index
// and offset were already assigned by SymtabSection.UpdateShdr.
func (o *ObjectFile) WriteLocalSymtab(symBuf, strBuf []byte) {
	idx := o.LocalSymtabIdx
	strOff := o.LocalStrtabOffset

	copy(strBuf[strOff:], o.File.Name)
	fileSym := Sym{
		Name:  strOff,
		Info:  uint8(elf.STB_LOCAL)<<4 | uint8(elf.STT_FILE),
		Shndx: uint16(elf.SHN_ABS),
	}
	utils.Write[Sym](symBuf[int(idx)*SymSize:], fileSym)
	idx++
	strOff += uint32(len(o.File.Name)) + 1

	for i := 1; i < len(o.LocalSymbols); i++ {
		sym := &o.LocalSymbols[i]
		if sym.Name == "" {
			continue
		}

		copy(strBuf[strOff:], sym.Name)
		esym := &o.ElfSyms[sym.SymIdx]
		out := Sym{
			Name:  strOff,
			Info:  esym.Info,
			Other: esym.Other,
			Shndx: symShndx(sym),
			Val:   sym.GetAddr(),
			Size:  esym.Size,
		}
		utils.Write[Sym](symBuf[int(idx)*SymSize:], out)

		idx++
		strOff += uint32(len(sym.Name)) + 1
	}
}
