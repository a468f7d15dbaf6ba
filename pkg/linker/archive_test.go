package linker

import (
	"bytes"
	"fmt"
	"testing"
)

// buildArchive assembles a minimal System V ar container with the
// given named members, padding each to an even boundary as the format
// requires.
func buildArchive(members map[string][]byte, names []string) []byte {
	buf := bytes.NewBufferString(arMagic)

	writeHeader := func(name string, size int) {
		fmt.Fprintf(buf, "%-16s%-12s%-6s%-6s%-8s%-10d%-2s", name, "0", "0", "0", "0", size, "`\n")
	}

	for _, name := range names {
		body := members[name]
		writeHeader(name+"/", len(body))
		buf.Write(body)
		if len(body)%2 == 1 {
			buf.WriteByte('\n')
		}
	}

	return buf.Bytes()
}

func TestReadArchiveMembers_PlainNames(t *testing.T) {
	members := map[string][]byte{
		"a.o": []byte("AAAA"),
		"b.o": []byte("BBB"),
	}
	data := buildArchive(members, []string{"a.o", "b.o"})

	files := ReadArchiveMembers(&File{Name: "lib.a", Contents: data})
	if len(files) != 2 {
		t.Fatalf("expected 2 members, got %d", len(files))
	}
	if files[0].Name != "a.o" || !bytes.Equal(files[0].Contents, members["a.o"]) {
		t.Fatalf("member 0 mismatch: name=%q contents=%q", files[0].Name, files[0].Contents)
	}
	if files[1].Name != "b.o" || !bytes.Equal(files[1].Contents, members["b.o"]) {
		t.Fatalf("member 1 mismatch: name=%q contents=%q", files[1].Name, files[1].Contents)
	}
	if files[0].Parent == nil || files[0].Parent.Name != "lib.a" {
		t.Fatalf("expected member to be tagged with its parent archive")
	}
}

func TestGetFileType_DistinguishesArchiveFromObject(t *testing.T) {
	if GetFileType([]byte("!<arch>\n")) != FileTypeArchive {
		t.Fatalf("ar magic must be classified as an archive")
	}
	if GetFileType([]byte("plain text, not any known container")) != FileTypeUnknown {
		t.Fatalf("unrecognized content must be classified as unknown")
	}
}
