package linker

import "debug/elf"

// OutputSection is one of the output's named sections (e.g. ".text",
// ".data"), holding every live InputSection across every input file
// that folds into it. Idx is this section's position within
// ctx.OutputSections, fixed at creation and never reused.
type OutputSection struct {
	Chunk
	Members []*InputSection
	Idx     uint32
}

func NewOutputSection(
	name string, typ uint32, flags uint64, idx uint32) *OutputSection {
	o := &OutputSection{Chunk: NewChunk()}
	o.Name = name
	o.Shdr.Type = typ
	o.Shdr.Flags = flags
	o.Idx = idx
	return o
}

func (o *OutputSection) CopyBuf(ctx *Context) {
	if o.Shdr.Type == uint32(elf.SHT_NOBITS) {
		return
	}

	base := ctx.Buf[o.Shdr.Offset:]
	for _, isec := range o.Members {
		isec.WriteTo(ctx, base[isec.Offset:])
	}
}

// GetOutputSection interns the OutputSection an InputSection with the
// given name/type/flags folds into, creating it on first use. Called
// only during the single-threaded object-parsing phase (spec.md §4.1
// runs ScanRelocations and other truly parallel work later, once
// every OutputSection already exists), so no locking is needed here.
func GetOutputSection(
	ctx *Context, name string, typ, flags uint64) *OutputSection {
	name = GetOutputName(name, flags)
	flags = flags &^ uint64(elf.SHF_GROUP) &^
		uint64(elf.SHF_COMPRESSED) &^ uint64(elf.SHF_LINK_ORDER)

	for _, osec := range ctx.OutputSections {
		if name == osec.Name && typ == uint64(osec.Shdr.Type) &&
			flags == osec.Shdr.Flags {
			return osec
		}
	}

	osec := NewOutputSection(name, uint32(typ), flags,
		uint32(len(ctx.OutputSections)))
	ctx.OutputSections = append(ctx.OutputSections, osec)
	return osec
}
