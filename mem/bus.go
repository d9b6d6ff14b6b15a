// Package mem provides the machine's 64 KiB RAM fabric.
package mem

import "github.com/vertex-emu/vertex/shm"

// RAMSize is the full addressable range of the machine's linear memory.
const RAMSize = 64 * 1024

// Bus is the single 8-bit-wide memory the address unit reaches through.
// When backed by a shared mapping (NewSharedBus), the same bytes are
// visible to sibling peripheral processes; the Bus itself never assumes
// which case it is in, it always just indexes a byte slice.
type Bus struct {
	ram    []byte
	region *shm.Region // nil unless shared
}

// NewBus returns a Bus backed by a process-private RAM array.
func NewBus() *Bus {
	return &Bus{ram: make([]byte, RAMSize)}
}

// NewSharedBus returns a Bus backed by a POSIX shared-memory mapping, so
// that sibling peripheral processes observe the same bytes. The caller
// owns the Region and must Close it after the Bus is no longer in use.
func NewSharedBus(region *shm.Region) *Bus {
	return &Bus{ram: region.Bytes(), region: region}
}

// Read returns the byte at addr.
func (b *Bus) Read(addr uint16) byte {
	return b.ram[addr]
}

// Write stores data at addr.
func (b *Bus) Write(addr uint16, data byte) {
	b.ram[addr] = data
}

// Load copies program into the bus starting at offset, overwriting
// whatever was there. Callers are responsible for ensuring
// offset+len(program) <= RAMSize; romimage.Place does this for the
// authoritative high-load mode.
func (b *Bus) Load(offset uint16, program []byte) {
	copy(b.ram[offset:], program)
}

// Bytes exposes the underlying RAM array, for the debugger's page table.
func (b *Bus) Bytes() []byte {
	return b.ram
}
