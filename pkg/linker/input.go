package linker

import "parld/pkg/utils"

// ReadInputFiles walks the command line's non-option arguments in
// order, turning each `.o` into a live ObjectFile and each `-lxxx`
// archive into one dormant ObjectFile per member (spec.md §4.1,
// §4.3's "command-line order" tie-break source).
func ReadInputFiles(ctx *Context, remaining []string) {
	priority := uint32(1)
	for _, arg := range remaining {
		var ok bool
		if arg, ok = utils.RemovePrefix(arg, "-l"); ok {
			priority = ReadFile(ctx, FindLibrary(ctx, arg), priority)
		} else {
			priority = ReadFile(ctx, MustNewFile(arg), priority)
		}
	}
}

func ReadFile(ctx *Context, file *File, priority uint32) uint32 {
	switch GetFileType(file.Contents) {
	case FileTypeObject:
		ctx.Objs = append(ctx.Objs, CreateObjectFile(ctx, file, priority, false))
		return priority + 1
	case FileTypeArchive:
		for _, child := range ReadArchiveMembers(file) {
			utils.Assert(GetFileType(child.Contents) == FileTypeObject)
			ctx.Objs = append(ctx.Objs, CreateObjectFile(ctx, child, priority, true))
			priority++
		}
		return priority
	default:
		utils.Fatal("unknown file type")
		return priority
	}
}

func CreateObjectFile(ctx *Context, file *File, priority uint32, inLib bool) *ObjectFile {
	CheckFileCompatibility(ctx, file)

	// A standalone `.o` given directly on the command line starts
	// alive; an archive member starts dormant until Pass A's
	// activation fixpoint pulls it in to resolve some reference.
	obj := NewObjectFile(file, priority, !inLib)
	obj.Parse(ctx)
	return obj
}
