//go:build !unix

package linker

import "os"

// mmapFile falls back to a plain read on platforms without mmap(2);
// parld's core never mutates File.Contents so the two are
// byte-for-byte equivalent from every caller's point of view.
func mmapFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
