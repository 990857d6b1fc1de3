//go:build unix

package stack

import (
	"golang.org/x/sys/unix"
)

// allocateMemory maps an anonymous private region outside the Go heap.
// The kernel hands out zeroed pages.
func allocateMemory(size int64) ([]byte, bool, error) {
	if size == 0 {
		return []byte{}, false, nil
	}
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, false, err
	}
	return mem, true, nil
}

func freeMemory(mem []byte, mapped bool) error {
	if !mapped {
		return nil
	}
	return unix.Munmap(mem)
}
