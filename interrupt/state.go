// Package interrupt defines the interrupt state structure shared between
// the CPU core and external peripheral processes.
//
// The byte layout below is the ABI: peripheral tooling mapping the same
// shared-memory file must agree on it exactly.
//
//	offset 0:  enabled        uint8
//	offset 1:  (padding)
//	offset 2:  handlerAddress uint16 (little-endian)
//	offset 4:  raises         [8]uint8
//
// Size is 12 bytes.
package interrupt

import "encoding/binary"

// RaiseCount is the number of peripheral raise slots.
const RaiseCount = 8

// StateSize is the ABI size in bytes.
const StateSize = 4 + RaiseCount

const (
	offEnabled        = 0
	offHandlerAddress = 2
	offRaises         = 4
)

// State is the shared interrupt structure. It can be backed by a
// process-private slice or by a shared-memory mapping (shm.Region.Bytes);
// State itself never cares which.
type State struct {
	raw []byte
}

// NewState returns a State backed by a process-private buffer, zeroed,
// matching the "CPU runs standalone, no peripherals" configuration.
func NewState() *State {
	return &State{raw: make([]byte, StateSize)}
}

// NewSharedState wraps an existing buffer (typically shm.Region.Bytes())
// as interrupt ABI state. raw must be at least StateSize bytes.
func NewSharedState(raw []byte) *State {
	if len(raw) < StateSize {
		panic("interrupt: shared region smaller than StateSize")
	}
	return &State{raw: raw[:StateSize]}
}

// Enabled reports the CPU-side interrupt-enable latch.
func (s *State) Enabled() bool {
	return s.raw[offEnabled] != 0
}

// SetEnabled sets or clears the interrupt-enable latch.
func (s *State) SetEnabled(enabled bool) {
	if enabled {
		s.raw[offEnabled] = 1
	} else {
		s.raw[offEnabled] = 0
	}
}

// HandlerAddress returns the 16-bit RAM address the CPU loads COUNTER
// from when servicing a latched interrupt.
func (s *State) HandlerAddress() uint16 {
	return binary.LittleEndian.Uint16(s.raw[offHandlerAddress:])
}

// SetHandlerAddress sets the handler address. Peripherals call this
// before raising, so the CPU knows where to divert to.
func (s *State) SetHandlerAddress(addr uint16) {
	binary.LittleEndian.PutUint16(s.raw[offHandlerAddress:], addr)
}

// IsRaised reports whether peripheral slot i currently has a pending
// raise. Every call re-reads the byte fresh — the raise vector is
// volatile, written by a sibling process, and must never be cached.
func (s *State) IsRaised(i int) bool {
	return s.raw[offRaises+i] != 0
}

// Raise sets the raise bit for peripheral slot i. Called by peripheral
// code (or, in-process, by tests simulating a peripheral).
func (s *State) Raise(i int) {
	s.raw[offRaises+i] = 1
}

// ClearRaise clears the raise bit for peripheral slot i. Called by the
// CPU once it has latched (or serviced) that peripheral's interrupt.
func (s *State) ClearRaise(i int) {
	s.raw[offRaises+i] = 0
}

// Bytes exposes the raw ABI buffer, mainly so tests can assert on the
// exact on-wire layout.
func (s *State) Bytes() []byte {
	return s.raw
}
