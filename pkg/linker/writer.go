package linker

import (
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"parld/pkg/utils"
)

// Write is the final pass of spec.md §4.6/§4.7: every chunk's bytes are
// produced independently into disjoint slices of ctx.Buf (each chunk was
// already given its own non-overlapping file offset by
// SetOutputSectionOffsets), so the fan-out needs no coordination beyond
// the join at the end — the same bulk-synchronous shape as the rest of
// the pipeline's parallel phases.
func Write(ctx *Context) {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, chunk := range ctx.Chunks {
		chunk := chunk
		g.Go(func() error {
			chunk.CopyBuf(ctx)
			return nil
		})
	}
	utils.MustNo(g.Wait())

	file, err := os.OpenFile(ctx.Args.Output, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0777)
	utils.MustNo(err)
	defer file.Close()

	_, err = file.Write(ctx.Buf)
	utils.MustNo(err)
}
