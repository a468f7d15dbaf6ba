package linker

import "parld/pkg/utils"

// OutputShdr is the section header table. Index 0 is the reserved
// all-zero SHN_UNDEF entry every ELF file carries.
type OutputShdr struct {
	Chunk
}

func NewOutputShdr() *OutputShdr {
	o := &OutputShdr{Chunk: NewChunk()}
	o.Shdr.AddrAlign = 8
	return o
}

func (o *OutputShdr) UpdateShdr(ctx *Context) {
	n := int64(0)
	for _, chunk := range ctx.Chunks {
		if chunk.GetShndx() > n {
			n = chunk.GetShndx()
		}
	}
	o.Shdr.Size = uint64(n+1) * ShdrSize
}

func (o *OutputShdr) CopyBuf(ctx *Context) {
	base := ctx.Buf[o.Shdr.Offset:]
	utils.Write[Shdr](base, Shdr{})

	for _, chunk := range ctx.Chunks {
		if chunk.GetShndx() > 0 {
			utils.Write[Shdr](base[chunk.GetShndx()*ShdrSize:], *chunk.GetShdr())
		}
	}
}
