package linker

import "testing"

func TestComdatGroup_LowestPriorityWins(t *testing.T) {
	g := NewComdatGroup()

	late := &ObjectFile{Priority: 5}
	early := &ObjectFile{Priority: 1}
	mid := &ObjectFile{Priority: 3}

	if !g.TryWin(late, 7) {
		t.Fatalf("first contender must always win provisionally")
	}
	if !g.TryWin(mid, 2) {
		t.Fatalf("mid (priority 3) must displace late (priority 5)")
	}
	if g.Owner != mid || g.SectionIdx != 2 {
		t.Fatalf("expected mid (priority 3) to have displaced late (priority 5), got owner priority %d", g.Owner.Priority)
	}

	if !g.TryWin(early, 9) {
		t.Fatalf("early (priority 1) must win over the currently installed mid (priority 3)")
	}
	if g.Owner != early {
		t.Fatalf("expected early to be the final owner, got priority %d", g.Owner.Priority)
	}

	// A second call for the same (file, idx) that's already installed
	// must still report itself as the winner.
	if !g.TryWin(early, 9) {
		t.Fatalf("the installed owner re-asserting must still report winning")
	}
}

func TestComdatGroup_HigherPriorityFileDoesNotDisplace(t *testing.T) {
	g := NewComdatGroup()
	owner := &ObjectFile{Priority: 1}
	g.TryWin(owner, 4)

	higherPriorityElsewhere := &ObjectFile{Priority: 2}
	if g.TryWin(higherPriorityElsewhere, 8) {
		t.Fatalf("a strictly higher-priority file must not become the winner")
	}
	if g.Owner != owner || g.SectionIdx != 4 {
		t.Fatalf("owner/section must remain unchanged")
	}
}
