package linker

import (
	"debug/elf"

	"parld/pkg/utils"
)

// parld supports exactly one target: ELF64LE x86-64 (spec.md §1). The
// MachineType enum still exists, mirroring the teacher's multi-arch
// scaffold, so a future port only has to add a case here rather than
// restructure the caller.
type MachineType = uint8

const (
	MachineTypeNone   MachineType = iota
	MachineTypeX86_64 MachineType = iota
)

func GetMachineTypeFromContents(contents []byte) MachineType {
	if GetFileType(contents) != FileTypeObject {
		return MachineTypeNone
	}
	if len(contents) < EhdrSize {
		return MachineTypeNone
	}
	if elf.Class(contents[4]) != elf.ELFCLASS64 {
		return MachineTypeNone
	}
	machine := elf.Machine(utils.Read[uint16](contents[18:]))
	if machine == elf.EM_X86_64 {
		return MachineTypeX86_64
	}
	return MachineTypeNone
}

func CheckFileCompatibility(ctx *Context, file *File) {
	mt := GetMachineTypeFromContents(file.Contents)
	if mt != MachineTypeX86_64 {
		utils.Fatal(file.Name + ": incompatible file type")
	}
}

type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeObject
	FileTypeArchive
)

func GetFileType(contents []byte) FileType {
	if CheckMagic(contents) {
		return FileTypeObject
	}
	if len(contents) >= 8 && string(contents[:8]) == "!<arch>\n" {
		return FileTypeArchive
	}
	return FileTypeUnknown
}
