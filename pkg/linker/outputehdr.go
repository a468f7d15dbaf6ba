package linker

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"parld/pkg/utils"
)

// OutputEhdr is the output file's ELF header chunk (spec.md §3). It is
// always chunk zero and is never assigned a section index.
type OutputEhdr struct {
	Chunk
}

func NewOutputEhdr() *OutputEhdr {
	o := &OutputEhdr{Chunk: NewChunk()}
	o.Shdr.Flags = uint64(elf.SHF_ALLOC)
	o.Shdr.Size = EhdrSize
	o.Shdr.AddrAlign = 8
	return o
}

func (o *OutputEhdr) CopyBuf(ctx *Context) {
	ehdr := Ehdr{}
	ehdr.Ident[0] = '\x7f'
	ehdr.Ident[1] = 'E'
	ehdr.Ident[2] = 'L'
	ehdr.Ident[3] = 'F'
	ehdr.Ident[elf.EI_CLASS] = uint8(elf.ELFCLASS64)
	ehdr.Ident[elf.EI_DATA] = uint8(elf.ELFDATA2LSB)
	ehdr.Ident[elf.EI_VERSION] = uint8(elf.EV_CURRENT)

	ehdr.Type = uint16(elf.ET_EXEC)
	ehdr.Machine = uint16(elf.EM_X86_64)
	ehdr.Version = uint32(elf.EV_CURRENT)
	ehdr.Entry = GetEntryAddress(ctx)
	ehdr.PhOff = ctx.Phdr.Shdr.Offset
	ehdr.ShOff = ctx.Shdr.Shdr.Offset
	ehdr.EhSize = uint16(EhdrSize)
	ehdr.PhEntSize = uint16(PhdrSize)
	ehdr.PhNum = uint16(ctx.Phdr.Shdr.Size / PhdrSize)
	ehdr.ShEntSize = uint16(ShdrSize)
	ehdr.ShNum = uint16(ctx.Shdr.Shdr.Size / ShdrSize)
	ehdr.ShStrndx = uint16(ctx.Shstrtab.GetShndx())

	buf := &bytes.Buffer{}
	utils.MustNo(binary.Write(buf, binary.LittleEndian, ehdr))
	copy(ctx.Buf[o.Shdr.Offset:], buf.Bytes())
}

// GetEntryAddress resolves the entry point to `_start`'s address when
// defined, falling back to `.text`'s base for freestanding links that
// never define it (spec.md §6 silently assumes one exists; this keeps
// the link from producing an unusable entry of zero when it doesn't).
func GetEntryAddress(ctx *Context) uint64 {
	if sym, ok := ctx.Symbols.Get("_start"); ok && sym.File != nil {
		return sym.GetAddr()
	}
	for _, osec := range ctx.OutputSections {
		if osec.Name == ".text" {
			return osec.Shdr.Addr
		}
	}
	return 0
}
