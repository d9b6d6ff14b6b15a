// Package romimage loads the two binaries that fully define a machine's
// behavior: the control ROM and a program image, then places the program
// into RAM the way the latest control ROMs expect.
package romimage

import (
	"errors"
	"fmt"
	"io"

	"github.com/vertex-emu/vertex/control"
	"github.com/vertex-emu/vertex/mem"
)

// ControlROMBytes is the exact size of a control ROM file: 65,536
// little-endian 32-bit words.
const ControlROMBytes = cpuControlROMSize * 4

const cpuControlROMSize = 65536

// LoadControlROM reads exactly ControlROMBytes from r and decodes it into
// 65,536 control words indexed the same way the core indexes its ROM. A
// short read is a fatal load error.
func LoadControlROM(r io.Reader) ([cpuControlROMSize]control.Word, error) {
	var rom [cpuControlROMSize]control.Word

	buf := make([]byte, ControlROMBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return rom, fmt.Errorf("reading control ROM: %w", err)
	}

	for i := range rom {
		off := i * 4
		word := uint32(buf[off]) |
			uint32(buf[off+1])<<8 |
			uint32(buf[off+2])<<16 |
			uint32(buf[off+3])<<24
		rom[i] = control.Word(word)
	}
	return rom, nil
}

// MaxProgramBytes is the largest program image RAM can hold.
const MaxProgramBytes = mem.RAMSize

// LoadProgram reads a program image of at most MaxProgramBytes from r.
func LoadProgram(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxProgramBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading program image: %w", err)
	}
	if len(data) > MaxProgramBytes {
		return nil, errors.New("program image exceeds RAM size")
	}
	return data, nil
}

// Place loads program into the high end of bus's RAM — the authoritative
// placement mode the latest control ROMs expect — and returns the initial
// COUNTER and STACK values: the program occupies
// ram[RAMSize-L .. RAMSize-1], COUNTER starts at RAMSize-L, and STACK
// starts just below the program at RAMSize-L-1.
func Place(bus *mem.Bus, program []byte) (counter, stack uint16) {
	l := len(program)
	offset := mem.RAMSize - l
	bus.Load(uint16(offset), program)
	return uint16(offset), uint16(offset - 1)
}
