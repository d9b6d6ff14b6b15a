package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vertex-emu/vertex/cpu"
	"github.com/vertex-emu/vertex/interrupt"
	"github.com/vertex-emu/vertex/mem"
	"github.com/vertex-emu/vertex/romimage"
	"github.com/vertex-emu/vertex/shm"
)

func main() {
	var logLevel string
	var ramShm string
	var interruptShm string
	var debug bool

	root := &cobra.Command{
		Use:   "vertex <control-rom-path> <program-rom-path> [log-level]",
		Short: "Cycle-accurate emulator for a microcoded 8-bit machine",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 3 {
				logLevel = args[2]
			}
			return run(args[0], args[1], logLevel, ramShm, interruptShm, debug)
		},
		SilenceUsage: true,
	}
	root.Flags().StringVar(&ramShm, "ram-shm", "", "path to a shared-memory RAM region (enables shared-memory mode)")
	root.Flags().StringVar(&interruptShm, "interrupt-shm", "", "path to a shared-memory interrupt-state region")
	root.Flags().BoolVar(&debug, "debug-ui", false, "start the interactive single-step debugger instead of running to completion")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: want debug, info, or error", s)
	}
}

func run(controlROMPath, programROMPath, logLevel, ramShmPath, interruptShmPath string, debug bool) error {
	level, err := parseLogLevel(logLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	controlFile, err := os.Open(controlROMPath)
	if err != nil {
		return fmt.Errorf("opening control ROM: %w", err)
	}
	defer controlFile.Close()
	rom, err := romimage.LoadControlROM(controlFile)
	if err != nil {
		return err
	}

	programFile, err := os.Open(programROMPath)
	if err != nil {
		return fmt.Errorf("opening program ROM: %w", err)
	}
	defer programFile.Close()
	program, err := romimage.LoadProgram(programFile)
	if err != nil {
		return err
	}

	bus, closeBus, err := openBus(ramShmPath)
	if err != nil {
		return err
	}
	defer closeBus()

	interrupts, closeInterrupts, err := openInterrupts(interruptShmPath)
	if err != nil {
		return err
	}
	defer closeInterrupts()

	m := cpu.New(bus, interrupts)
	m.ControlROM = rom
	m.Output = os.Stdout
	m.Logger = logger

	counter, stack := romimage.Place(bus, program)
	m.Registers[cpu.RegCounterH] = byte(counter >> 8)
	m.Registers[cpu.RegCounterL] = byte(counter)
	m.Registers[cpu.RegStackH] = byte(stack >> 8)
	m.Registers[cpu.RegStackL] = byte(stack)

	if debug {
		return m.Debug()
	}
	return m.Run(context.Background())
}

func openBus(ramShmPath string) (bus *mem.Bus, closeFn func(), err error) {
	if ramShmPath == "" {
		return mem.NewBus(), func() {}, nil
	}
	region, err := shm.Open(ramShmPath, mem.RAMSize)
	if err != nil {
		return nil, nil, fmt.Errorf("mapping RAM shared memory: %w", err)
	}
	return mem.NewSharedBus(region), func() { region.Close() }, nil
}

func openInterrupts(interruptShmPath string) (state *interrupt.State, closeFn func(), err error) {
	if interruptShmPath == "" {
		return interrupt.NewState(), func() {}, nil
	}
	region, err := shm.Open(interruptShmPath, interrupt.StateSize)
	if err != nil {
		return nil, nil, fmt.Errorf("mapping interrupt shared memory: %w", err)
	}
	state = interrupt.NewSharedState(region.Bytes())
	state.SetEnabled(true)
	return state, func() { region.Close() }, nil
}
