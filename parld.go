// Command parld links ELF64LE x86-64 relocatable object files into a
// single statically-linked executable.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"parld/pkg/linker"
	"parld/pkg/utils"
)

var version = "dev"

func main() {
	ctx := linker.NewContext()
	remaining := parseArgs(ctx)

	if ctx.Args.Emulation == linker.MachineTypeNone {
		for _, filename := range remaining {
			if strings.HasPrefix(filename, "-") {
				continue
			}
			file := linker.MustNewFile(filename)
			ctx.Args.Emulation = linker.GetMachineTypeFromContents(file.Contents)
			if ctx.Args.Emulation != linker.MachineTypeNone {
				break
			}
		}
	}

	if ctx.Args.Emulation != linker.MachineTypeX86_64 {
		utils.Fatal("unknown emulation type")
	}

	// Input parsing and local-symbol resolution (spec.md §4.1/§4.2):
	// every .o and archive member becomes a live-or-dormant ObjectFile,
	// each with its own InputSections and a Symbols slice pointing at
	// either a private LocalSymbols entry or the global intern table.
	linker.ReadInputFiles(ctx, remaining)

	// Pass A (archive activation) and Pass B (binding) of spec.md §4.3.
	linker.ResolveSymbols(ctx)

	// spec.md §7's fatal checks: any reference still undefined here,
	// other than an undefined-weak one, aborts the link.
	linker.CheckUndefinedSymbols(ctx)

	// Pass B's COMDAT half: group ownership is decided and losing
	// member sections are marked dead before anything downstream reads
	// their contents.
	linker.ResolveComdatGroups(ctx)

	// Mergeable-section deduplication (spec.md §4.2/§4.4).
	linker.RegisterSectionPieces(ctx)
	linker.ComputeMergedSectionSizes(ctx)

	// Pass C's common-symbol conversion must finish before relocation
	// scanning begins (SPEC_FULL.md §9, Open Question (b)): every
	// surviving tentative definition needs a real InputSection first.
	linker.ConvertCommonSymbols(ctx)

	linker.CreateSyntheticSections(ctx)
	linker.BinSections(ctx)
	ctx.Chunks = append(ctx.Chunks, linker.CollectOutputSections(ctx)...)

	linker.ScanRelocations(ctx)
	linker.ComputeSectionSizes(ctx)
	linker.SortOutputSections(ctx)
	linker.AssignShndx(ctx)

	for _, chunk := range ctx.Chunks {
		chunk.UpdateShdr(ctx)
	}

	fileSize := linker.SetOutputSectionOffsets(ctx)
	ctx.Buf = make([]byte, fileSize)

	linker.Write(ctx)

	if ctx.Args.PrintMap {
		linker.PrintMap(ctx, os.Stdout)
	}
}

func parseArgs(ctx *linker.Context) []string {
	args := os.Args[1:]

	dashes := func(name string) []string {
		if len(name) == 1 {
			return []string{"-" + name}
		}
		return []string{"-" + name, "--" + name}
	}

	arg := ""
	readArg := func(name string) bool {
		if len(args) == 0 {
			return false
		}
		for _, opt := range dashes(name) {
			if args[0] == opt {
				if len(args) == 1 {
					utils.Fatal(fmt.Sprintf("option -%s: argument missing", name))
				}
				arg = args[1]
				args = args[2:]
				return true
			}

			prefix := opt
			if len(name) > 1 {
				prefix += "="
			}
			if strings.HasPrefix(args[0], prefix) && len(args[0]) > len(prefix) {
				arg = args[0][len(prefix):]
				args = args[1:]
				return true
			}
		}
		return false
	}

	readFlag := func(name string) bool {
		if len(args) == 0 {
			return false
		}
		for _, opt := range dashes(name) {
			if args[0] == opt {
				args = args[1:]
				return true
			}
		}
		return false
	}

	remaining := make([]string, 0)
	for len(args) > 0 {
		if readFlag("help") {
			fmt.Printf("usage: %s [options] file...\n", os.Args[0])
			os.Exit(0)
		}

		if readArg("o") || readArg("output") {
			ctx.Args.Output = arg
		} else if readFlag("v") || readFlag("version") {
			fmt.Printf("parld %s\n", version)
			os.Exit(0)
		} else if readFlag("M") || readFlag("print-map") {
			ctx.Args.PrintMap = true
		} else if readArg("L") {
			ctx.Args.LibraryPaths = append(ctx.Args.LibraryPaths, arg)
		} else if readArg("l") {
			remaining = append(remaining, "-l"+arg)
		} else if readArg("sysroot") ||
			readFlag("static") ||
			readArg("plugin") ||
			readArg("plugin-opt") ||
			readFlag("as-needed") ||
			readFlag("start-group") ||
			readFlag("end-group") ||
			readArg("hash-style") ||
			readArg("build-id") ||
			readFlag("s") ||
			readFlag("no-relax") {
			// Ignored: accepted for GNU-ld command-line compatibility,
			// but parld only ever produces a static, non-PIE executable.
		} else {
			if args[0][0] == '-' {
				utils.Fatal(fmt.Sprintf("unknown command line option: %s", args[0]))
			}
			remaining = append(remaining, args[0])
			args = args[1:]
		}
	}

	for i, path := range ctx.Args.LibraryPaths {
		ctx.Args.LibraryPaths[i] = filepath.Clean(path)
	}

	return remaining
}
