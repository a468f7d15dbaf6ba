package linker

import "parld/pkg/utils"

// resolveOne applies spec.md §4.3 Pass B's binding rule table to one
// incoming definition (or reference) against the currently-installed
// Symbol, under sym's own fine-grained lock. It never touches a second
// Symbol's lock while holding this one (spec.md §5's "one lock at a
// time" discipline).
func resolveOne(sym *Symbol, file *ObjectFile, esym *Sym, idx int, isec *InputSection) {
	sym.Lock()
	defer sym.Unlock()

	if esym.IsUndef() {
		return // reference only; no change, caller already recorded it
	}

	incomingWeak := esym.IsWeak()
	incomingCommon := esym.IsCommon()

	installedDefined := sym.File != nil
	installedWeak := sym.IsWeak
	installedCommon := installedDefined && sym.commonSize() > 0

	switch {
	case incomingCommon:
		if !installedDefined {
			bindCommon(sym, file, esym, idx)
			return
		}
		if installedCommon {
			// both tentative: keep the larger size, ties going to the
			// lower priority. Alignments are not merged: the kept
			// definition's own alignment is the one used.
			if esym.Size > sym.Size() || (esym.Size == sym.Size() && file.Priority < sym.File.Priority) {
				bindCommon(sym, file, esym, idx)
			}
			return
		}
		return // installed is a real definition: keep it

	case !incomingWeak: // incoming is a strong (non-weak) definition
		if !installedDefined || installedWeak || sym.IsPlaceholder || installedCommon {
			bindDefined(sym, file, esym, idx, isec)
			return
		}
		// both sides are strong, real definitions: first-writer-by-priority
		// wins; anything else is a multiple-definition error unless one
		// side is a COMDAT-discardable section that will be thrown away
		// in EliminateDuplicateComdatGroups.
		if file.Priority < sym.File.Priority {
			bindDefined(sym, file, esym, idx, isec)
			return
		}
		if file != sym.File && !isComdatMember(isec) && !isComdatMember(sym.InputSection) {
			utils.Fatal("multiple definition of " + sym.Name)
		}
		return

	default: // incoming is a weak definition
		if !installedDefined || sym.IsPlaceholder {
			bindDefined(sym, file, esym, idx, isec)
			sym.IsWeak = true
			return
		}
		return // installed (weak or strong) wins over an incoming weak def
	}
}

func bindDefined(sym *Symbol, file *ObjectFile, esym *Sym, idx int, isec *InputSection) {
	sym.File = file
	sym.Value = esym.Val
	sym.SymIdx = idx
	sym.Visibility = esym.Visibility()
	sym.Type = esym.Type()
	sym.IsWeak = esym.IsWeak()
	sym.IsPlaceholder = false
	if isec != nil {
		sym.SetInputSection(isec)
	} else {
		sym.InputSection = nil
		sym.SectionFragment = nil
	}
}

func bindCommon(sym *Symbol, file *ObjectFile, esym *Sym, idx int) {
	sym.File = file
	sym.Value = esym.Val
	sym.SymIdx = idx
	sym.Visibility = esym.Visibility()
	sym.Type = esym.Type()
	sym.IsWeak = false
	sym.IsPlaceholder = false
	sym.InputSection = nil
	sym.SectionFragment = nil
}

// Size returns the installed definition's ELF symbol size, used only
// to compare rival common-symbol candidates.
func (s *Symbol) Size() uint64 {
	if s.File == nil || s.SymIdx < 0 || s.SymIdx >= len(s.File.ElfSyms) {
		return 0
	}
	return s.File.ElfSyms[s.SymIdx].Size
}

func (s *Symbol) commonSize() uint64 {
	if s.File == nil || s.InputSection != nil || s.SectionFragment != nil {
		return 0
	}
	return s.Size()
}

func isComdatMember(isec *InputSection) bool {
	return isec != nil && !isec.IsAlive
}
