package linker

import (
	"debug/elf"
	"math"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"parld/pkg/utils"
)

// BuildArchiveIndex is spec.md §4.3 Pass A's prerequisite: it indexes,
// by name, the first file to define each global symbol across every
// parsed input — alive files and still-dormant archive members alike.
// Every file is already fully parsed by the time this runs (ReadFile
// parses archive members eagerly), so this is a direct lookup against
// each file's own symbol table rather than a separate archive-symbol-
// table format. Built once, single-threaded, before the fixpoint
// starts; MarkLiveObjects only ever reads it afterward.
func BuildArchiveIndex(ctx *Context) {
	ctx.ArchiveIndex = make(map[string]*ObjectFile, len(ctx.Objs))
	for _, file := range ctx.Objs {
		for i := file.FirstGlobal; i < len(file.ElfSyms); i++ {
			esym := &file.ElfSyms[i]
			if esym.IsUndef() {
				continue
			}
			name := ElfGetName(file.SymbolStrtab, esym.Name)
			if _, ok := ctx.ArchiveIndex[name]; !ok {
				ctx.ArchiveIndex[name] = file
			}
		}
	}
}

// ActivateArchiveMembers is spec.md §4.3 Pass A: starting from the
// command-line-given live set, repeatedly pull in whichever archive
// member currently resolves an undefined reference, until no file
// activates a new one. Realized as a bounded worker pool over a work
// queue rather than mold's tbb::parallel_do, since Go has no built-in
// work-stealing primitive with a feeder callback — the semantics are
// identical: a file is submitted at most once (guarded by its own
// IsAlive flag, CAS'd true exactly once in MarkLiveObjects).
func ActivateArchiveMembers(ctx *Context) {
	var wg sync.WaitGroup
	queue := make(chan *ObjectFile, len(ctx.Objs)*4+16)

	var pending sync.WaitGroup
	feeder := func(file *ObjectFile) {
		pending.Add(1)
		queue <- file
	}

	for _, file := range ctx.Objs {
		if file.IsAlive.Load() {
			feeder(file)
		}
	}

	workerCount := runtime.GOMAXPROCS(0)
	done := make(chan struct{})
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case file := <-queue:
					file.MarkLiveObjects(ctx, feeder)
					pending.Done()
				case <-done:
					return
				}
			}
		}()
	}

	go func() {
		pending.Wait()
		close(done)
	}()
	wg.Wait()
}

// ResolveSymbols runs spec.md §4.3 Pass A and Pass B to completion:
// archive activation, then per-file binding, then live-set pruning.
func ResolveSymbols(ctx *Context) {
	BuildArchiveIndex(ctx)
	ActivateArchiveMembers(ctx)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, file := range ctx.Objs {
		file := file
		g.Go(func() error {
			file.ResolveSymbols()
			return nil
		})
	}
	utils.MustNo(g.Wait())

	for _, file := range ctx.Objs {
		if !file.IsAlive.Load() {
			file.ClearSymbols()
		}
	}

	ctx.Objs = utils.RemoveIf(ctx.Objs, func(file *ObjectFile) bool {
		return !file.IsAlive.Load()
	})
}

// CheckUndefinedSymbols is spec.md §7's fatal "unresolved reference"
// check: once Pass A/B have fully settled, any global reference still
// undefined is an error unless every reference to it was weak (spec.md
// §4.3 Pass C: "Undefined-weak symbols are flagged is_undef_weak and
// resolved to address zero"). Run after ResolveSymbols, before anything
// downstream treats a nil Symbol.File as "safe to skip".
func CheckUndefinedSymbols(ctx *Context) {
	for _, file := range ctx.Objs {
		for i := file.FirstGlobal; i < len(file.ElfSyms); i++ {
			esym := &file.ElfSyms[i]
			if !esym.IsUndef() {
				continue
			}

			sym := file.Symbols[i]
			if sym.File != nil {
				continue
			}

			if esym.IsUndefWeak() {
				sym.IsUndefWeak = true
				continue
			}

			utils.Fatal("undefined reference to " + sym.Name)
		}
	}
}

// ResolveComdatGroups runs the COMDAT half of Pass B (spec.md §4.3):
// every live file's group memberships contend for ownership of their
// ComdatGroup record, lowest Priority wins, and losers discard their
// group's member sections.
func ResolveComdatGroups(ctx *Context) {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, file := range ctx.Objs {
		file := file
		g.Go(func() error {
			for _, m := range file.ComdatGroups {
				m.Group.TryWin(file, m.SectionIdx)
			}
			return nil
		})
	}
	utils.MustNo(g.Wait())

	g = errgroup.Group{}
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, file := range ctx.Objs {
		file := file
		g.Go(func() error {
			file.EliminateDuplicateComdatGroups()
			return nil
		})
	}
	utils.MustNo(g.Wait())
}

func RegisterSectionPieces(ctx *Context) {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, file := range ctx.Objs {
		file := file
		g.Go(func() error {
			file.RegisterSectionPieces()
			return nil
		})
	}
	utils.MustNo(g.Wait())
}

// ConvertCommonSymbols runs spec.md §4.3 Pass C's common-symbol step
// across every live file. It must complete before ScanRelocations
// (SPEC_FULL.md §9, Open Question (b)).
func ConvertCommonSymbols(ctx *Context) {
	for _, file := range ctx.Objs {
		file.ConvertCommonSymbols(ctx)
	}
}

func CreateSyntheticSections(ctx *Context) {
	push := func(chunk Chunker) Chunker {
		ctx.Chunks = append(ctx.Chunks, chunk)
		return chunk
	}

	ctx.Ehdr = push(NewOutputEhdr()).(*OutputEhdr)
	ctx.Phdr = push(NewOutputPhdr()).(*OutputPhdr)
	ctx.Got = push(NewGotSection()).(*GotSection)
	ctx.GotPlt = push(NewGotPltSection()).(*GotPltSection)
	ctx.Plt = push(NewPltSection()).(*PltSection)
	ctx.RelPlt = push(NewRelPltSection()).(*RelPltSection)
	ctx.Symtab = push(NewSymtabSection()).(*SymtabSection)
	ctx.Strtab = push(NewStrtabSection()).(*StrtabSection)
	ctx.Shstrtab = push(NewShstrtabSection()).(*ShstrtabSection)
	ctx.Shdr = push(NewOutputShdr()).(*OutputShdr)
}

func BinSections(ctx *Context) {
	group := make([][]*InputSection, len(ctx.OutputSections))
	for _, file := range ctx.Objs {
		for _, isec := range file.Sections {
			if isec == nil || !isec.IsAlive {
				continue
			}
			idx := isec.OutputSection.Idx
			group[idx] = append(group[idx], isec)
		}
	}

	for idx, osec := range ctx.OutputSections {
		osec.Members = group[idx]
	}
}

func CollectOutputSections(ctx *Context) []Chunker {
	var osecs []Chunker
	for _, osec := range ctx.OutputSections {
		if len(osec.Members) > 0 {
			osecs = append(osecs, osec)
		}
	}
	for _, osec := range ctx.MergedSections {
		if osec.Shdr.Size > 0 {
			osecs = append(osecs, osec)
		}
	}
	return osecs
}

func ComputeSectionSizes(ctx *Context) {
	for _, osec := range ctx.OutputSections {
		offset := uint64(0)
		p2align := uint32(0)

		for _, isec := range osec.Members {
			offset = utils.AlignTo(offset, 1<<isec.P2Align)
			isec.Offset = uint32(offset)
			offset += uint64(isec.ShSize)
			p2align = utils.Max(p2align, uint32(isec.P2Align))
		}

		osec.Shdr.Size = offset
		osec.Shdr.AddrAlign = 1 << p2align
	}
}

func ComputeMergedSectionSizes(ctx *Context) {
	for _, osec := range ctx.MergedSections {
		osec.AssignOffsets()
	}
}

// ScanRelocations runs spec.md §4.5 across every live InputSection,
// then drains the resulting NeedsGot/NeedsGotTp/NeedsPlt flags into
// the GOT/PLT synthetic sections in symbol-name order (flags may be
// raised on one symbol by several goroutines during the scan, hence
// the atomic OR; draining happens single-threaded since it must assign
// a total order to GOT/PLT slot indices).
func ScanRelocations(ctx *Context) {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, file := range ctx.Objs {
		file := file
		g.Go(func() error {
			file.ScanRelocations()
			return nil
		})
	}
	utils.MustNo(g.Wait())

	var syms []*Symbol
	seen := make(map[*Symbol]bool)
	for _, file := range ctx.Objs {
		for _, sym := range file.Symbols {
			if sym.File == file && sym.LoadFlags() != 0 && !seen[sym] {
				seen[sym] = true
				syms = append(syms, sym)
			}
		}
	}

	sort.Slice(syms, func(i, j int) bool { return syms[i].Name < syms[j].Name })

	for _, sym := range syms {
		flags := sym.LoadFlags()
		if flags&NeedsGot != 0 {
			ctx.Got.AddGotSymbol(sym)
		}
		if flags&NeedsGotTp != 0 {
			ctx.Got.AddGotTpSymbol(sym)
		}
		if flags&NeedsPlt != 0 {
			ctx.Plt.AddSymbol(ctx, sym)
		}
	}
}

// AssignShndx gives every chunk except the ELF and program headers a
// dense section index, empty chunks included, and interns its name
// into .shstrtab (spec.md §4.6).
func AssignShndx(ctx *Context) {
	idx := int64(1)
	for _, chunk := range ctx.Chunks {
		if chunk == ctx.Ehdr || chunk == ctx.Phdr {
			continue
		}
		chunk.SetShndx(idx)
		ctx.Shstrtab.Intern(chunk.GetShdr(), chunk.GetName())
		idx++
	}
}

func SortOutputSections(ctx *Context) {
	rank := func(chunk Chunker) int32 {
		typ := chunk.GetShdr().Type
		flags := chunk.GetShdr().Flags

		if flags&uint64(elf.SHF_ALLOC) == 0 {
			return math.MaxInt32 - 1
		}
		if chunk == ctx.Shdr {
			return math.MaxInt32
		}
		if chunk == ctx.Ehdr {
			return 0
		}
		if chunk == ctx.Phdr {
			return 1
		}
		if typ == uint32(elf.SHT_NOTE) {
			return 2
		}

		b2i := func(b bool) int32 {
			if b {
				return 1
			}
			return 0
		}

		writeable := b2i(flags&uint64(elf.SHF_WRITE) != 0)
		notExec := b2i(flags&uint64(elf.SHF_EXECINSTR) == 0)
		notTls := b2i(flags&uint64(elf.SHF_TLS) == 0)
		bss := b2i(typ == uint32(elf.SHT_NOBITS))

		return writeable<<7 | notExec<<6 | notTls<<5 | bss<<4
	}

	sort.SliceStable(ctx.Chunks, func(i, j int) bool {
		return rank(ctx.Chunks[i]) < rank(ctx.Chunks[j])
	})
}

// SetOutputSectionOffsets is the two-pass virtual-address/file-offset
// assignment of spec.md §4.6: first every SHF_ALLOC chunk gets a
// virtual address (skipping the memory span of .tbss, which occupies
// no file bytes), then everything gets a file offset.
func SetOutputSectionOffsets(ctx *Context) uint64 {
	addr := ImageBase
	for _, chunk := range ctx.Chunks {
		if chunk.GetShdr().Flags&uint64(elf.SHF_ALLOC) == 0 {
			continue
		}
		addr = utils.AlignTo(addr, chunk.GetShdr().AddrAlign)
		chunk.GetShdr().Addr = addr
		if !isTbss(chunk) {
			addr += chunk.GetShdr().Size
		}
	}

	i := 0
	first := ctx.Chunks[0]
	for {
		shdr := ctx.Chunks[i].GetShdr()
		shdr.Offset = shdr.Addr - first.GetShdr().Addr
		i++
		if i >= len(ctx.Chunks) || ctx.Chunks[i].GetShdr().Flags&uint64(elf.SHF_ALLOC) == 0 {
			break
		}
	}

	lastShdr := ctx.Chunks[i-1].GetShdr()
	fileoff := lastShdr.Offset + lastShdr.Size

	for ; i < len(ctx.Chunks); i++ {
		shdr := ctx.Chunks[i].GetShdr()
		fileoff = utils.AlignTo(fileoff, shdr.AddrAlign)
		shdr.Offset = fileoff
		fileoff += shdr.Size
	}

	ctx.Phdr.UpdateShdr(ctx)
	return fileoff
}
