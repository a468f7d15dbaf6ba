package linker

import (
	"fmt"
	"io"
	"sort"
)

// PrintMap writes a minimal link map to w when Config.PrintMap is set
// (spec.md §6): one line per output section, followed by its member
// InputSections in deterministic order (address, then file priority,
// then section index within the file — spec.md §6's ordering rule),
// so two runs over the same input produce byte-identical map output.
func PrintMap(ctx *Context, w io.Writer) {
	for _, osec := range ctx.OutputSections {
		if len(osec.Members) == 0 {
			continue
		}

		fmt.Fprintf(w, "%-20s 0x%016x 0x%x\n", osec.Name, osec.Shdr.Addr, osec.Shdr.Size)

		members := append([]*InputSection{}, osec.Members...)
		sort.Slice(members, func(i, j int) bool {
			a, b := members[i], members[j]
			if a.GetAddr() != b.GetAddr() {
				return a.GetAddr() < b.GetAddr()
			}
			if a.File.Priority != b.File.Priority {
				return a.File.Priority < b.File.Priority
			}
			return a.Shndx < b.Shndx
		})

		for _, isec := range members {
			fmt.Fprintf(w, "  0x%016x 0x%-8x %s:%s\n",
				isec.GetAddr(), isec.ShSize, isec.File.File.Name, isec.Name())
		}
	}
}
