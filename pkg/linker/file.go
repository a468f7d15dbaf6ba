package linker

import (
	"parld/pkg/utils"
)

// File is a named, read-only input buffer backed by a memory-mapped
// file (mmapFile, platform-specific below) rather than a full read
// into the Go heap — object files and archives can run to tens of
// megabytes, and every InputSection just slices into File.Contents
// without copying.
//
// Parent points at the archive a member was extracted from, or nil for
// a standalone object given directly on the command line.
type File struct {
	Name     string
	Contents []byte
	Parent   *File
}

func MustNewFile(filename string) *File {
	contents, err := mmapFile(filename)
	utils.MustNo(err)
	return &File{
		Name:     filename,
		Contents: contents,
	}
}

func OpenLibrary(filepath string) *File {
	contents, err := mmapFile(filepath)
	if err != nil {
		return nil
	}
	return &File{
		Name:     filepath,
		Contents: contents,
	}
}

func FindLibrary(ctx *Context, name string) *File {
	for _, dir := range ctx.Args.LibraryPaths {
		stem := dir + "/lib" + name + ".a"
		if f := OpenLibrary(stem); f != nil {
			return f
		}
	}

	utils.Fatal("library not found: -l" + name)
	return nil
}
