// Package cpu implements the machine's micro-sequenced execution engine:
// the tick/tock pipeline that decodes a control word every cycle, routes
// the bus, drives the ALU, updates flags and registers, walks the 16-bit
// register pairs, services peripheral interrupts, and addresses RAM.
package cpu

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vertex-emu/vertex/alu"
	"github.com/vertex-emu/vertex/control"
	"github.com/vertex-emu/vertex/interrupt"
	"github.com/vertex-emu/vertex/mask"
	"github.com/vertex-emu/vertex/mem"
)

// ControlROMSize is the number of 32-bit rows the control ROM holds,
// indexed by the full 16-bit (flags‖instruction‖micro) concatenation.
const ControlROMSize = 65536

// Machine holds every piece of architectural state: the register file,
// the flags byte, the microinstruction counter, the control ROM, the RAM
// bus, and the interrupt latch. Log level and output sink live here as
// explicit fields rather than package-level globals, so that multiple
// machines never share mutable logging state.
type Machine struct {
	Registers [RegisterCount]byte
	Flags     byte
	Micro     byte // 4 significant bits

	ControlROM [ControlROMSize]control.Word
	Bus        *mem.Bus
	Interrupts *interrupt.State

	Output io.Writer
	Logger *slog.Logger

	bus              byte // the shared data bus, held across cycles
	raisedPeripheral int  // interrupt.RaiseCount means "none latched"

	loggedUnknownALU bool
}

// New returns a Machine ready to have a control ROM and program loaded
// into it. Output starts as io.Discard and Logger as slog.Default(); the
// caller may replace either, but neither is checked for nil when used.
func New(bus *mem.Bus, interrupts *interrupt.State) *Machine {
	return &Machine{
		Bus:              bus,
		Interrupts:       interrupts,
		Output:           io.Discard,
		Logger:           slog.Default(),
		raisedPeripheral: interrupt.RaiseCount,
	}
}

func (m *Machine) addressPair() uint16 {
	return pair(m.Registers[RegAddressH], m.Registers[RegAddressL])
}

func (m *Machine) counterPair() uint16 {
	return pair(m.Registers[RegCounterH], m.Registers[RegCounterL])
}

func (m *Machine) stackPair() uint16 {
	return pair(m.Registers[RegStackH], m.Registers[RegStackL])
}

func (m *Machine) hlPair() uint16 {
	return pair(m.Registers[RegH], m.Registers[RegL])
}

// flagSet reports whether the given flag bit is currently set.
func (m *Machine) flagSet(f Flag) bool {
	switch f {
	case FlagZero:
		return mask.IsSet(m.Flags, mask.I8)
	case FlagSign:
		return mask.IsSet(m.Flags, mask.I7)
	case FlagCarry:
		return mask.IsSet(m.Flags, mask.I6)
	}
	return false
}

// setFlag clears then sets the given bit to match value. Flags are never
// OR-assigned: a flag that was set on a prior cycle must not survive an
// operation that doesn't recompute it.
func (m *Machine) setFlag(f Flag, value bool) {
	switch f {
	case FlagZero:
		m.Flags = mask.Unset(m.Flags, mask.I8, mask.I8)
		if value {
			m.Flags = mask.Set(m.Flags, mask.I8, 1)
		}
	case FlagSign:
		m.Flags = mask.Unset(m.Flags, mask.I7, mask.I7)
		if value {
			m.Flags = mask.Set(m.Flags, mask.I7, 1)
		}
	case FlagCarry:
		m.Flags = mask.Unset(m.Flags, mask.I6, mask.I6)
		if value {
			m.Flags = mask.Set(m.Flags, mask.I6, 1)
		}
	}
}

// Tick executes the read phase of one machine cycle and returns the
// control word that governed it, so that Tock (and the run loop's HALT
// check) can reuse the same decode.
func (m *Machine) Tick() control.Word {
	index := uint16(m.Flags&0x0F)<<12 | uint16(m.Registers[RegInstruction])<<4 | uint16(m.Micro&0x0F)
	w := m.ControlROM[index]
	m.Micro = (m.Micro + 1) & 0x0F

	if w.CounterInc() {
		if m.Registers[RegCounterH] == 0xFF && m.Registers[RegCounterL] == 0xFF {
			m.Logger.Error("program counter wrap", "from", "0xFFFF", "to", "0x0000")
		}
		incPair(&m.Registers[RegCounterH], &m.Registers[RegCounterL])
	}
	if w.AddressInc() {
		incPair(&m.Registers[RegAddressH], &m.Registers[RegAddressL])
	}
	if w.StackInc() {
		incPair(&m.Registers[RegStackH], &m.Registers[RegStackL])
	}
	if w.StackDec() {
		decPair(&m.Registers[RegStackH], &m.Registers[RegStackL])
	}

	m.driveBus(w)
	m.pollInterrupts(w)
	m.runALU(w)

	return w
}

func (m *Machine) driveBus(w control.Word) {
	if reg := Register(w.OutReg()); reg.valid() {
		m.bus = m.Registers[reg]
	}

	switch w.FlagOut() {
	case control.FlagOutZero:
		m.bus = boolByte(m.flagSet(FlagZero))
	case control.FlagOutSign:
		m.bus = boolByte(m.flagSet(FlagSign))
	case control.FlagOutAll:
		m.bus = m.Flags
	}

	if w.RamOut() {
		m.bus = m.Bus.Read(m.addressPair())
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// pollInterrupts latches INTERRUPT_ENABLE, then — while enabled — scans
// the raise vector lowest-index-first for a pending peripheral.
func (m *Machine) pollInterrupts(w control.Word) {
	if w.InterruptEnable() {
		m.Interrupts.SetEnabled(true)
	}
	if !m.Interrupts.Enabled() {
		return
	}
	for i := 0; i < interrupt.RaiseCount; i++ {
		if m.Interrupts.IsRaised(i) {
			m.raisedPeripheral = i
			m.Interrupts.ClearRaise(i)
			m.Interrupts.SetEnabled(false)
			return
		}
	}
}

func (m *Machine) runALU(w control.Word) {
	op := w.AluOp()
	entry, ok := alu.Lookup(op)
	if !ok {
		if !m.loggedUnknownALU {
			m.Logger.Error("unknown ALU opcode, treating as NOP", "op", op)
			m.loggedUnknownALU = true
		}
		return
	}
	if !entry.Changes {
		return
	}
	acc := m.Registers[RegA]
	temp := m.Registers[RegATemp]
	result, carryOut := entry.Apply(acc, temp, m.flagSet(FlagCarry))
	m.bus = result
	m.setFlag(FlagCarry, carryOut)
}

// Tock executes the commit phase of one machine cycle for the control
// word w returned by the preceding Tick.
func (m *Machine) Tock(w control.Word) {
	if reg := Register(w.InReg()); reg.valid() {
		m.Registers[reg] = m.bus
		if reg == RegA {
			m.setFlag(FlagZero, m.bus == 0)
			m.setFlag(FlagSign, m.bus > 127)
		}
	}

	if w.MoveAddressCounter() {
		m.Registers[RegAddressH] = m.Registers[RegCounterH]
		m.Registers[RegAddressL] = m.Registers[RegCounterL]
	}
	if w.MoveAddressStack() {
		m.Registers[RegAddressH] = m.Registers[RegStackH]
		m.Registers[RegAddressL] = m.Registers[RegStackL]
	}
	if w.MoveAddressHL() {
		m.Registers[RegAddressH] = m.Registers[RegH]
		m.Registers[RegAddressL] = m.Registers[RegL]
	}
	if w.MoveCounterInterrupt() {
		addr := m.Interrupts.HandlerAddress()
		m.Registers[RegCounterH] = byte(addr >> 8)
		m.Registers[RegCounterL] = byte(addr)
	}

	if w.RamIn() {
		m.Bus.Write(m.addressPair(), m.bus)
	}
	if w.FlagIn() {
		m.Flags = mask.Last(m.bus, mask.I3)
	}
	if w.ResetMicroTick() {
		m.Micro = 0
		if m.raisedPeripheral < interrupt.RaiseCount {
			m.Registers[RegInstruction] = INTCAL
			m.Interrupts.ClearRaise(m.raisedPeripheral)
			m.raisedPeripheral = interrupt.RaiseCount
		}
	}
	if w.Emit() {
		fmt.Fprintf(m.Output, "OUTPUT: %d\n", m.bus)
	}
}

// Step runs one full tick+tock cycle and reports whether HALT was
// asserted by it.
func (m *Machine) Step() bool {
	w := m.Tick()
	m.Tock(w)
	return w.Halt()
}

// Run drives the machine until HALT is asserted or ctx is canceled. A
// cycle that asserts HALT still completes its tock before Run returns:
// HALT stops further fetches, it does not skip the side effects of the
// cycle that raised it.
func (m *Machine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if m.Step() {
			m.Logger.Info("halted")
			return nil
		}
	}
}
