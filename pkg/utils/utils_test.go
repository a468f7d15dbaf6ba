package utils

import "testing"

func TestAlignTo(t *testing.T) {
	cases := []struct {
		val, align, want uint64
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{0x400001, 0x1000, 0x401000},
		{5, 0, 5},
	}

	for _, c := range cases {
		if got := AlignTo(c.val, c.align); got != c.want {
			t.Errorf("AlignTo(%d, %d) = %d, want %d", c.val, c.align, got, c.want)
		}
	}
}

func TestRemovePrefix(t *testing.T) {
	if s, ok := RemovePrefix("-lfoo", "-l"); !ok || s != "foo" {
		t.Errorf("got (%q, %v), want (\"foo\", true)", s, ok)
	}
	if _, ok := RemovePrefix("foo", "-l"); ok {
		t.Errorf("expected no match")
	}
}

func TestRemoveIf(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6}
	out := RemoveIf(in, func(v int) bool { return v%2 == 0 })
	want := []int{1, 3, 5}
	if len(out) != len(want) {
		t.Fatalf("got %v, want %v", out, want)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("got %v, want %v", out, want)
		}
	}
}

func TestMaxMin(t *testing.T) {
	if Max(3, 7) != 7 {
		t.Error("Max(3, 7) should be 7")
	}
	if Min(3, 7) != 3 {
		t.Error("Min(3, 7) should be 3")
	}
	if Max(uint32(1), uint32(0)) != 1 {
		t.Error("Max should work over uint32")
	}
}

func TestBits(t *testing.T) {
	v := uint32(0b1011_0100)
	if Bits(v, 7, 4) != 0b1011 {
		t.Errorf("Bits(v, 7, 4) = %b, want 1011", Bits(v, 7, 4))
	}
	if Bit(v, 2) != 1 {
		t.Errorf("Bit(v, 2) should be 1")
	}
	if Bit(v, 0) != 0 {
		t.Errorf("Bit(v, 0) should be 0")
	}
}
