package cpu

// Register codes, canonical per the machine's register table. Code 0 is
// the NONE sentinel: reads of it drive nothing onto the bus, writes to it
// are no-ops. Codes above RegisterCount-1 never occur from a valid 4-bit
// field and are treated the same as NONE if they ever do.
const (
	RegNone Register = iota
	RegA
	RegATemp
	RegB
	RegC
	RegH
	RegL
	RegCounterH
	RegCounterL
	RegAddressH
	RegAddressL
	RegBaseH
	RegBaseL
	RegStackH
	RegStackL
	RegInstruction

	RegisterCount
)

// Register is a 4-bit register code.
type Register byte

// Name returns a human-readable label, used by the debugger and by log
// lines; it never participates in emulation logic.
func (r Register) Name() string {
	switch r {
	case RegNone:
		return "NONE"
	case RegA:
		return "A"
	case RegATemp:
		return "A_TEMP"
	case RegB:
		return "B"
	case RegC:
		return "C"
	case RegH:
		return "H"
	case RegL:
		return "L"
	case RegCounterH:
		return "COUNTER_H"
	case RegCounterL:
		return "COUNTER_L"
	case RegAddressH:
		return "ADDRESS_H"
	case RegAddressL:
		return "ADDRESS_L"
	case RegBaseH:
		return "BASE_H"
	case RegBaseL:
		return "BASE_L"
	case RegStackH:
		return "STACK_H"
	case RegStackL:
		return "STACK_L"
	case RegInstruction:
		return "INSTRUCTION"
	default:
		return "?"
	}
}

// valid reports whether r addresses a real, non-sentinel register.
func (r Register) valid() bool {
	return r > RegNone && r < RegisterCount
}

// INTCAL is the opcode value that, once latched into reg[INSTRUCTION] at
// an instruction boundary, diverts the next micro-sequence into the
// interrupt-call microroutine.
const INTCAL = 1

// Flag identifies one of the three bits of the flags byte. The byte itself
// is addressed through mask, whose bit positions are 1-indexed from the
// MSB: Zero lives at mask.I8 (bit 0), Sign at mask.I7 (bit 1), Carry at
// mask.I6 (bit 2). Every other bit of the flags byte must always read zero.
type Flag byte

const (
	FlagZero Flag = iota
	FlagSign
	FlagCarry
)
