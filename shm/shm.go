// Package shm provisions the POSIX shared-memory regions that back RAM and
// interrupt state when the emulator runs alongside sibling peripheral
// processes. It follows the same open-or-create, explicit-error,
// explicit-Close shape as a file loader, just backed by mmap instead of a
// one-shot read.
package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Region is a memory-mapped, process-shareable byte range.
type Region struct {
	path string
	file *os.File
	data []byte
}

// Open opens (creating if absent) the file at path, ensures it is exactly
// size bytes, and maps it MAP_SHARED so that sibling processes mapping the
// same path observe the same bytes.
func Open(path string, size int) (region *Region, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			f.Close()
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("shm: stat %s: %w", path, err)
	}
	if info.Size() != int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			return nil, fmt.Errorf("shm: truncate %s to %d bytes: %w", path, size, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	return &Region{path: path, file: f, data: data}, nil
}

// Bytes returns the mapped region. Writes through the returned slice are
// visible to every other process that has mapped the same path.
func (r *Region) Bytes() []byte {
	return r.data
}

// Close unmaps the region and releases the underlying file descriptor. It
// does not remove the backing file — peripherals may still need it.
func (r *Region) Close() error {
	if err := unix.Munmap(r.data); err != nil {
		r.file.Close()
		return fmt.Errorf("shm: munmap %s: %w", r.path, err)
	}
	return r.file.Close()
}
