package linker

// ContextArgs is the external driver's output: a Config plus resolved
// library search paths (spec.md §6). Populated by the root `main`
// package's argument parser, grounded on the teacher's ContextArgs.
type ContextArgs struct {
	Output       string
	Emulation    MachineType
	IsStatic     bool
	PrintMap     bool
	LibraryPaths []string
}

// Context is the single mutable hub every pass reads and writes
// (spec.md §3). Global interning tables (Symbols, ComdatGroups) are
// concurrency-safe on their own; everything else here is written only
// during bulk-synchronous phase boundaries, never concurrently with a
// read of the same field from another goroutine (spec.md §5).
type Context struct {
	Args ContextArgs
	Buf  []byte

	Ehdr    *OutputEhdr
	Phdr    *OutputPhdr
	Shdr    *OutputShdr
	Got     *GotSection
	GotPlt  *GotPltSection
	Plt     *PltSection
	RelPlt  *RelPltSection
	Symtab  *SymtabSection
	Strtab  *StrtabSection
	Shstrtab *ShstrtabSection

	TpAddr uint64
	TlsEnd uint64

	OutputSections []*OutputSection
	Chunks         []Chunker

	Objs []*ObjectFile

	// ArchiveIndex maps every global symbol name any parsed input file
	// (alive or still-dormant archive member) defines to whichever such
	// file was seen first — spec.md §4.3 Pass A's archive-symbol-table
	// lookup, built once before the activation fixpoint runs.
	ArchiveIndex map[string]*ObjectFile

	// Symbols is the global intern table backing GetSymbolByName: one
	// entry per distinct GLOBAL symbol name across every input file,
	// regardless of which file (if any) eventually defines it.
	Symbols *InternTable[Symbol]

	// ComdatGroups is the global intern table backing
	// GetComdatGroupInstance, keyed by group signature.
	ComdatGroups *InternTable[ComdatGroup]

	MergedSections []*MergedSection
}

func NewContext() *Context {
	return &Context{
		Args: ContextArgs{
			Output:    "a.out",
			Emulation: MachineTypeNone,
			IsStatic:  true,
		},
		Symbols:      NewInternTable[Symbol](),
		ComdatGroups: NewInternTable[ComdatGroup](),
	}
}
