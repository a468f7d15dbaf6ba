package linker

import "sync"

// ComdatGroup is interned by group signature (spec.md §3/§4.3); it holds
// the currently-winning ObjectFile and the winning section index inside
// that file. Grounded on mold.h's ComdatGroup (atomic<ObjectFile*> file
// plus a spin_mutex guarding the swap) — here a plain mutex guards both
// fields together since Go has no atomic<*T> CAS with a custom "is this
// better" comparator.
type ComdatGroup struct {
	mu         sync.Mutex
	Owner      *ObjectFile
	SectionIdx uint32
}

func NewComdatGroup() *ComdatGroup {
	return &ComdatGroup{}
}

// TryWin registers file as a candidate owner of the group's section
// idx, keeping whichever candidate has the lowest ObjectFile.Priority
// seen so far (spec.md §4.3: "tie-breaker: lower priority"). It returns
// true if file is the winner after this call.
func (g *ComdatGroup) TryWin(file *ObjectFile, idx uint32) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Owner == nil || file.Priority < g.Owner.Priority {
		g.Owner = file
		g.SectionIdx = idx
	}
	return g.Owner == file
}

func GetComdatGroupInstance(ctx *Context, signature string) *ComdatGroup {
	return ctx.ComdatGroups.Insert(signature, func() *ComdatGroup { return NewComdatGroup() })
}
