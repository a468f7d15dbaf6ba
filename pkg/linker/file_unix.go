//go:build unix

package linker

import "golang.org/x/sys/unix"

// mmapFile maps path read-only into the process address space. An
// empty file yields an empty, non-nil slice rather than an error,
// since mmap(2) itself rejects a zero-length mapping.
func mmapFile(path string) ([]byte, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return nil, err
	}
	if stat.Size == 0 {
		return []byte{}, nil
	}

	return unix.Mmap(fd, 0, int(stat.Size), unix.PROT_READ, unix.MAP_PRIVATE)
}
