package cpu

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vertex-emu/vertex/control"
	"github.com/vertex-emu/vertex/interrupt"
	"github.com/vertex-emu/vertex/mem"
)

// newTestMachine returns a Machine whose control ROM runs the given
// operation at (flags=0, instruction=0, micro=0) and then resets the micro
// counter and halts at micro 1. The flags are part of the ROM index and the
// operation may change them, so the halt row is placed at micro 1 under
// every flags value.
func newTestMachine(t *testing.T, op *control.Builder) *Machine {
	t.Helper()
	m := New(mem.NewBus(), interrupt.NewState())
	m.ControlROM[0] = op.Word()
	halt := control.NewBuilder().ResetMicroTick().Halt().Word()
	for flags := uint16(0); flags < 8; flags++ {
		m.ControlROM[flags<<12|1] = halt
	}
	return m
}

func (m *Machine) run(t *testing.T) {
	t.Helper()
	assert.NoError(t, m.Run(context.Background()))
}

func TestScenarioADD(t *testing.T) {
	m := newTestMachine(t, control.NewBuilder().Out(byte(RegA)).Alu(1).In(byte(RegA)))
	m.Registers[RegA] = 40
	m.Registers[RegATemp] = 2

	m.run(t)

	assert.Equal(t, byte(42), m.Registers[RegA])
	assert.False(t, m.flagSet(FlagCarry))
	assert.False(t, m.flagSet(FlagZero))
	assert.False(t, m.flagSet(FlagSign))
}

func TestScenarioADDWithOverflow(t *testing.T) {
	m := newTestMachine(t, control.NewBuilder().Out(byte(RegA)).Alu(1).In(byte(RegA)))
	m.Registers[RegA] = 200
	m.Registers[RegATemp] = 100

	m.run(t)

	assert.Equal(t, byte(44), m.Registers[RegA])
	assert.True(t, m.flagSet(FlagCarry))
}

func TestScenarioSUBUnderflow(t *testing.T) {
	m := newTestMachine(t, control.NewBuilder().Out(byte(RegA)).Alu(2).In(byte(RegA)))
	m.Registers[RegA] = 5
	m.Registers[RegATemp] = 10

	m.run(t)

	assert.Equal(t, byte(251), m.Registers[RegA])
	assert.True(t, m.flagSet(FlagCarry))
	assert.True(t, m.flagSet(FlagSign))
	assert.False(t, m.flagSet(FlagZero))
}

func TestScenarioRAMRoundTrip(t *testing.T) {
	m := New(mem.NewBus(), interrupt.NewState())
	// micro 0: A -> RAM[ADDRESS]
	m.ControlROM[0] = control.NewBuilder().Out(byte(RegA)).RamIn().Word()
	// micro 1: RAM[ADDRESS] -> B
	m.ControlROM[1] = control.NewBuilder().RamOut().In(byte(RegB)).Word()
	// micro 2: reset + halt
	m.ControlROM[2] = control.NewBuilder().ResetMicroTick().Halt().Word()

	m.Registers[RegAddressH] = 0x12
	m.Registers[RegAddressL] = 0x34
	m.Registers[RegA] = 0x77

	m.run(t)

	assert.Equal(t, byte(0x77), m.Bus.Read(0x1234))
	assert.Equal(t, byte(0x77), m.Registers[RegB])
}

func TestScenarioInterrupt(t *testing.T) {
	m := New(mem.NewBus(), interrupt.NewState())
	m.Interrupts.SetHandlerAddress(0x2000)

	// micro 0: enable interrupts (peripheral has already raised slot 3)
	m.ControlROM[0] = control.NewBuilder().InterruptEnable().Word()
	// micro 1: reset micro tick — this is where a latched peripheral
	// diverts reg[INSTRUCTION] to INTCAL
	m.ControlROM[1] = control.NewBuilder().ResetMicroTick().Word()

	// The INTCAL opcode's own microcode, row (flags=0, inst=1, micro=0):
	// load COUNTER from the interrupt handler address, then halt.
	intcalIndex := uint16(INTCAL) << 4
	m.ControlROM[intcalIndex] = control.NewBuilder().MoveCounterInterrupt().Word()
	m.ControlROM[intcalIndex+1] = control.NewBuilder().ResetMicroTick().Halt().Word()

	m.Interrupts.Raise(3)

	// cycle 1: latch the interrupt
	w := m.Tick()
	m.Tock(w)
	assert.False(t, m.Interrupts.IsRaised(3))
	assert.Equal(t, 3, m.raisedPeripheral)
	assert.False(t, m.Interrupts.Enabled())

	// cycle 2: RESET_MICRO_TICK fires, diverting to INTCAL
	w = m.Tick()
	m.Tock(w)
	assert.Equal(t, byte(INTCAL), m.Registers[RegInstruction])
	assert.Equal(t, interrupt.RaiseCount, m.raisedPeripheral)

	m.run(t)

	assert.Equal(t, uint16(0x2000), m.counterPair())
}

func TestScenarioHalt(t *testing.T) {
	m := New(mem.NewBus(), interrupt.NewState())
	m.ControlROM[0] = control.NewBuilder().In(byte(RegB)).Halt().Word()
	m.Registers[RegB] = 1 // overwritten by the halting cycle's tock, proving tock still runs

	halted := m.Step()
	assert.True(t, halted)
	// tock side effects of the halting cycle are still applied: the IN
	// write happens because it is part of the same cycle's tock.
	assert.Equal(t, byte(0), m.Registers[RegB]) // bus was 0 (nothing drove it)
}

func TestOutEmitsDecimalLine(t *testing.T) {
	m := New(mem.NewBus(), interrupt.NewState())
	var buf bytes.Buffer
	m.Output = &buf
	m.Registers[RegA] = 65
	m.ControlROM[0] = control.NewBuilder().Out(byte(RegA)).Emit().ResetMicroTick().Halt().Word()

	m.run(t)

	assert.Equal(t, "OUTPUT: 65\n", buf.String())
}

func TestWriteToNoneRegisterIsANoOp(t *testing.T) {
	m := New(mem.NewBus(), interrupt.NewState())
	before := m.Registers
	m.ControlROM[0] = control.NewBuilder().In(byte(RegNone)).ResetMicroTick().Halt().Word()

	m.run(t)

	assert.Equal(t, before, m.Registers)
}

func TestCounterPairIncrementCarriesOnWrap(t *testing.T) {
	m := New(mem.NewBus(), interrupt.NewState())
	m.Registers[RegCounterL] = 255
	m.Registers[RegCounterH] = 0x01
	m.ControlROM[0] = control.NewBuilder().CounterInc().ResetMicroTick().Halt().Word()

	m.run(t)

	assert.Equal(t, byte(0x02), m.Registers[RegCounterH])
	assert.Equal(t, byte(0x00), m.Registers[RegCounterL])
}

func TestStackPairDecrementBorrowsOnWrap(t *testing.T) {
	m := New(mem.NewBus(), interrupt.NewState())
	m.Registers[RegStackL] = 0
	m.Registers[RegStackH] = 0x01
	m.ControlROM[0] = control.NewBuilder().StackDec().ResetMicroTick().Halt().Word()

	m.run(t)

	assert.Equal(t, byte(0x00), m.Registers[RegStackH])
	assert.Equal(t, byte(0xFF), m.Registers[RegStackL])
}

func TestFlagInSetsAndClearsAllThreeBits(t *testing.T) {
	m := New(mem.NewBus(), interrupt.NewState())
	m.Registers[RegA] = 0b00000111
	// micro 0 (flags=0): FLAG_IN from A sets all three flags.
	m.ControlROM[0] = control.NewBuilder().Out(byte(RegA)).FlagIn().Word()
	// micro 1 is fetched under flags=0b111: FLAG_IN from B (0) clears them.
	m.ControlROM[0b111<<12|1] = control.NewBuilder().Out(byte(RegB)).FlagIn().Word()
	// micro 2 is fetched under flags=0 again.
	m.ControlROM[2] = control.NewBuilder().ResetMicroTick().Halt().Word()

	m.Step()
	assert.Equal(t, byte(0b111), m.Flags)
	m.run(t)
	assert.Equal(t, byte(0), m.Flags)
}

func TestMicroCounterIndexesROMBeforeIncrementing(t *testing.T) {
	m := New(mem.NewBus(), interrupt.NewState())
	m.ControlROM[0] = control.NewBuilder().CounterInc().Word()
	w := m.Tick()
	assert.Equal(t, m.ControlROM[0], w)
	assert.Equal(t, byte(1), m.Micro)
}
