package linker

import (
	"bytes"
	"debug/elf"
)

// ELF64 on-disk structures. The layout is target-independent; only the
// relocation type space and a handful of machine/flag constants differ
// between architectures. Grounded on the common rvld-family elf.go
// shape, narrowed to the fields parld actually touches.

const (
	EhdrSize = 64
	ShdrSize = 64
	SymSize  = 24
	RelaSize = 24
	PhdrSize = 56

	PageSize  uint64 = 0x1000
	ImageBase uint64 = 0x400000
)

type Ehdr struct {
	Ident     [16]uint8
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	PhOff     uint64
	ShOff     uint64
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrndx  uint16
}

type Shdr struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

type Phdr struct {
	Type     uint32
	Flags    uint32
	Offset   uint64
	VAddr    uint64
	PAddr    uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
}

type Sym struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Val   uint64
	Size  uint64
}

func (s *Sym) IsUndef() bool   { return s.Shndx == uint16(elf.SHN_UNDEF) }
func (s *Sym) IsDefined() bool { return !s.IsUndef() }
func (s *Sym) IsAbs() bool     { return s.Shndx == uint16(elf.SHN_ABS) }
func (s *Sym) IsCommon() bool  { return s.Shndx == uint16(elf.SHN_COMMON) }
func (s *Sym) IsWeak() bool    { return s.Bind() == uint8(elf.STB_WEAK) }
func (s *Sym) IsUndefWeak() bool {
	return s.IsUndef() && s.IsWeak()
}

func (s *Sym) Type() uint8 { return s.Info & 0xf }
func (s *Sym) SetType(t uint8) {
	s.Info = (s.Info &^ 0xf) | (t & 0xf)
}

func (s *Sym) Bind() uint8 { return s.Info >> 4 }
func (s *Sym) SetBind(b uint8) {
	s.Info = (s.Info & 0xf) | (b << 4)
}

func (s *Sym) Visibility() uint8 { return s.Other & 0b11 }
func (s *Sym) SetVisibility(v uint8) {
	s.Other = (s.Other &^ 0b11) | (v & 0b11)
}

type Rela struct {
	Offset uint64
	Type   uint32
	Sym    uint32
	Addend int64
}

type Chdr struct {
	Type      uint32
	Reserved  uint32
	Size      uint64
	AddrAlign uint64
}

// GroupHeader is the first word of an SHT_GROUP section; it is followed
// by a packed array of uint32 member section indices.
type GroupHeader struct {
	Flags uint32
}

const GrpComdat uint32 = 0x1

func CheckMagic(contents []byte) bool {
	return len(contents) >= 4 &&
		contents[0] == '\x7f' && contents[1] == 'E' &&
		contents[2] == 'L' && contents[3] == 'F'
}

func ElfGetName(strtab []byte, offset uint32) string {
	if int(offset) >= len(strtab) {
		return ""
	}
	rest := strtab[offset:]
	if idx := bytes.IndexByte(rest, 0); idx >= 0 {
		return string(rest[:idx])
	}
	return string(rest)
}
