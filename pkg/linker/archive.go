package linker

import (
	"strconv"
	"strings"

	"parld/pkg/utils"
)

// Archive membership parsing is, per spec.md §1/§6, an external
// collaborator: the core only needs "member buffers plus an
// already-pulled predicate". It is implemented here anyway (adapted
// from the System V ar format, grounded on dongAxis-rvld's archive.go)
// because ar decoding is small, self-contained, and lets the whole
// pipeline run end to end without a separate tool.

const arMagic = "!<arch>\n"

// arHdr is the fixed 60-byte, all-ASCII member header of the common
// (System V / GNU) ar format.
type arHdr struct {
	name  [16]byte
	mtime [12]byte
	uid   [6]byte
	gid   [6]byte
	mode  [8]byte
	size  [10]byte
	fmag  [2]byte
}

const arHdrSize = 60

func (h *arHdr) sizeInt() int {
	s := strings.TrimSpace(string(h.size[:]))
	n, err := strconv.Atoi(s)
	if err != nil {
		utils.Fatal("malformed archive member header")
	}
	return n
}

func (h *arHdr) isExtendedNameTable() bool {
	return strings.TrimRight(string(h.name[:]), " ") == "//"
}

func (h *arHdr) isSymbolTable() bool {
	n := strings.TrimRight(string(h.name[:]), " ")
	return n == "/" || n == "/SYM64/"
}

// readName resolves a member's name, following a GNU "/<offset>" pointer
// into the extended name table when the plain 16-byte field overflows.
func (h *arHdr) readName(strtab []byte) string {
	raw := string(h.name[:])
	if strings.HasPrefix(raw, "/") {
		off, err := strconv.Atoi(strings.TrimSpace(raw[1:]))
		if err == nil && off >= 0 && off < len(strtab) {
			rest := strtab[off:]
			if idx := strings.IndexAny(string(rest), "/\n"); idx >= 0 {
				return string(rest[:idx])
			}
			return string(rest)
		}
	}
	return strings.TrimRight(raw, " /")
}

// ReadArchiveMembers decodes the ar container in file and returns one
// *File per object member, each tagged with Parent pointing back at the
// archive. Thin archives are out of scope (spec.md Non-goals: nothing
// in this pack produces them).
func ReadArchiveMembers(file *File) []*File {
	data := file.Contents
	if len(data) < len(arMagic) || string(data[:len(arMagic)]) != arMagic {
		utils.Fatal(file.Name + ": not an archive")
	}

	pos := len(arMagic)
	var strtab []byte
	var files []*File

	for pos+arHdrSize <= len(data) {
		var hdr arHdr
		copy(hdr.name[:], data[pos:pos+16])
		copy(hdr.mtime[:], data[pos+16:pos+28])
		copy(hdr.uid[:], data[pos+28:pos+34])
		copy(hdr.gid[:], data[pos+34:pos+40])
		copy(hdr.mode[:], data[pos+40:pos+48])
		copy(hdr.size[:], data[pos+48:pos+58])
		copy(hdr.fmag[:], data[pos+58:pos+60])

		body := pos + arHdrSize
		size := hdr.sizeInt()
		end := body + size
		if end > len(data) {
			utils.Fatal(file.Name + ": truncated archive member")
		}

		switch {
		case hdr.isExtendedNameTable():
			strtab = data[body:end]
		case hdr.isSymbolTable():
			// Not needed: Pass A's fixpoint only consults members it
			// has already decoded, so no archive-wide symbol index is
			// required (see SPEC_FULL.md §6).
		default:
			name := hdr.readName(strtab)
			files = append(files, &File{
				Name:     name,
				Contents: data[body:end],
				Parent:   file,
			})
		}

		pos = end
		if pos%2 == 1 {
			pos++ // members are 2-byte aligned
		}
	}

	return files
}
