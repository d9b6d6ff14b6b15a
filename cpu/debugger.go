package cpu

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"

	"github.com/vertex-emu/vertex/control"
)

type debugModel struct {
	m      *Machine
	lastW  control.Word
	halted bool
}

func (d debugModel) Init() tea.Cmd {
	return nil
}

func (d debugModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return d, tea.Quit
		case " ", "j":
			if d.halted {
				return d, nil
			}
			d.lastW = d.m.Tick()
			d.m.Tock(d.lastW)
			d.halted = d.lastW.Halt()
		}
	}
	return d, nil
}

func (d debugModel) registerFile() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %s\n", "REGISTER", "VALUE")
	for code := Register(1); code < RegisterCount; code++ {
		fmt.Fprintf(&b, "%-12s 0x%02x\n", code.Name(), d.m.Registers[code])
	}
	return b.String()
}

func (d debugModel) status() string {
	status := fmt.Sprintf(
		"flags: Z=%d S=%d C=%d   micro=%d   instruction=%d",
		boolByte(d.m.flagSet(FlagZero)),
		boolByte(d.m.flagSet(FlagSign)),
		boolByte(d.m.flagSet(FlagCarry)),
		d.m.Micro,
		d.m.Registers[RegInstruction],
	)
	if d.halted {
		status += "\n*** HALTED ***"
	}
	return status
}

func (d debugModel) renderPage(start uint16) string {
	ram := d.m.Bus.Bytes()
	addr := d.m.addressPair()
	s := fmt.Sprintf("%04x | ", start)
	for i := uint16(0); i < 16; i++ {
		a := start + i
		if a == addr {
			s += fmt.Sprintf("[%02x] ", ram[a])
		} else {
			s += fmt.Sprintf(" %02x  ", ram[a])
		}
	}
	return s
}

// decodedWord is the per-field view of a control.Word that the debugger
// dumps, since the word itself is an opaque uint32 and spew.Sdump on it
// would just print the raw integer.
type decodedWord struct {
	InReg, OutReg, AluOp, FlagOut byte

	CounterInc, AddressInc, StackInc, StackDec          bool
	MoveAddressCounter, MoveAddressStack, MoveAddressHL bool
	MoveCounterInterrupt                                bool
	FlagIn, RamIn, RamOut                               bool
	ResetMicroTick, InterruptEnable, Emit, Halt          bool
}

func decodeWord(w control.Word) decodedWord {
	return decodedWord{
		InReg:   w.InReg(),
		OutReg:  w.OutReg(),
		AluOp:   w.AluOp(),
		FlagOut: w.FlagOut(),

		CounterInc:           w.CounterInc(),
		AddressInc:           w.AddressInc(),
		StackInc:             w.StackInc(),
		StackDec:             w.StackDec(),
		MoveAddressCounter:   w.MoveAddressCounter(),
		MoveAddressStack:     w.MoveAddressStack(),
		MoveAddressHL:        w.MoveAddressHL(),
		MoveCounterInterrupt: w.MoveCounterInterrupt(),
		FlagIn:               w.FlagIn(),
		RamIn:                w.RamIn(),
		RamOut:               w.RamOut(),
		ResetMicroTick:       w.ResetMicroTick(),
		InterruptEnable:      w.InterruptEnable(),
		Emit:                 w.Emit(),
		Halt:                 w.Halt(),
	}
}

func (d debugModel) pageTable() string {
	header := "page | "
	for b := range 16 {
		header += fmt.Sprintf("  %01x  ", b)
	}

	addr := d.m.addressPair()
	base := addr &^ 0x0F
	pages := []string{header}
	for i := int32(-2); i <= 2; i++ {
		pages = append(pages, d.renderPage(uint16(int32(base)+i*16)))
	}
	return strings.Join(pages, "\n")
}

// View renders the debugger's single-frame UI, showing a page table
// around the current ADDRESS register, the register file, the flags and
// micro-step counter, and the control word that governed the last cycle.
func (d debugModel) View() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		lipgloss.JoinHorizontal(
			lipgloss.Top,
			d.pageTable(),
			"  "+d.registerFile(),
		),
		"",
		d.status(),
		"",
		spew.Sdump(decodeWord(d.lastW)),
	)
}

// Debug starts an interactive, single-stepped TUI over an already-loaded
// Machine: space or j steps one cycle, q quits.
func (m *Machine) Debug() error {
	_, err := tea.NewProgram(debugModel{m: m}).Run()
	return err
}
