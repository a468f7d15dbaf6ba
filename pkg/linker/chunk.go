package linker

// Chunker is the interface every output chunk (fixed header, synthetic
// section, OutputSection, MergedSection) satisfies. Go has no base
// class pointers, so the polymorphism spec.md §3 describes for
// OutputChunk is expressed as an interface over an embedded Chunk.
type Chunker interface {
	GetName() string
	GetShdr() *Shdr
	GetShndx() int64
	SetShndx(idx int64)
	UpdateShdr(ctx *Context)
	CopyBuf(ctx *Context)
}

// Chunk is the shared base: a section header, a name, and the section
// index assigned once chunks are finalized (spec.md §4.6 "assign
// section indices densely"). Shndx stays 0 for chunks that precede
// section-index assignment (Ehdr, Phdr) or are never given one.
type Chunk struct {
	Name  string
	Shdr  Shdr
	Shndx int64
}

func NewChunk() Chunk {
	return Chunk{Shdr: Shdr{AddrAlign: 1}}
}

func (c *Chunk) GetName() string {
	return c.Name
}

func (c *Chunk) GetShdr() *Shdr {
	return &c.Shdr
}

func (c *Chunk) GetShndx() int64 {
	return c.Shndx
}

func (c *Chunk) SetShndx(idx int64) {
	c.Shndx = idx
}

func (c *Chunk) UpdateShdr(ctx *Context) {}

func (c *Chunk) CopyBuf(ctx *Context) {}
