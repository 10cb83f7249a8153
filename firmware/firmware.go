// Package firmware is the bring-up menu: a startup sequence followed by a
// loop that reads one character from the console and dispatches on it.
package firmware

import (
	"context"
	"fmt"
	"io"
	"log"

	"minisoc/config"
	"minisoc/memtest"
	"minisoc/mmio"
	"minisoc/probe"
	"minisoc/uart"
)

const (
	banner = "\nMiniSoC Firmware\n" +
		"===============\n\n"
	menu = "\nMenu:\n" +
		"1. Test UART echo\n" +
		"2. Read SPI control register\n" +
		"3. Toggle LEDs\n" +
		"Select option: "
)

// EchoExit ends the echo sub-mode. It is echoed before leaving.
const EchoExit = '!'

// Mode is the command loop's input state.
type Mode int

const (
	ModeMenu Mode = iota
	ModeEcho
)

func (m Mode) String() string {
	if m == ModeEcho {
		return "echo"
	}
	return "menu"
}

// Firmware is the bring-up program: a boot sequence followed by the menu
// loop on the UART.
type Firmware struct {
	cfg   config.Config
	con   *uart.Driver
	probe *probe.Probe
	mem   *memtest.Exerciser
	mode  Mode

	// Log receives host-side diagnostics. It never writes to the UART.
	Log *log.Logger

	// ReportMismatch adds the first failing word to a FAILED memory test.
	ReportMismatch bool
}

// New attaches the firmware to bus. The configuration must be valid.
func New(bus mmio.Bus, cfg config.Config) (*Firmware, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	regs := mmio.Attach(bus, cfg.Regs)
	return &Firmware{
		cfg:   cfg,
		con:   uart.New(regs),
		probe: probe.New(regs),
		mem:   memtest.New(bus, cfg.Mem),
		Log:   log.New(io.Discard, "", 0),
	}, nil
}

func (f *Firmware) Mode() Mode { return f.mode }

// Boot runs the one-time startup sequence and returns the memory test
// outcome.
func (f *Firmware) Boot() memtest.State {
	f.con.Configure(f.cfg.ClkDiv)
	f.probe.ClearSPI()
	f.probe.Walk(f.cfg.LEDSteps, f.cfg.LEDDelay)
	f.probe.ClearLEDs()

	f.con.PutString(banner)
	f.con.PutString("Running memory test... ")
	err := f.mem.Check()
	if err == nil {
		f.con.PutString("PASSED\n")
		f.Log.Printf("memory test passed")
		return memtest.Passed
	}
	f.con.PutString("FAILED")
	if f.ReportMismatch {
		fmt.Fprintf(f.con, " (%v)", err)
	}
	f.con.PutString("\n")
	f.Log.Printf("memory test failed: %v", err)
	return memtest.Failed
}

// Step shows the menu, waits for one character and runs its handler. If
// ctx ends while the echo sub-mode is waiting, Step returns with the mode
// still set to ModeEcho.
func (f *Firmware) Step(ctx context.Context) error {
	f.mode = ModeMenu
	f.con.PutString(menu)

	c, err := f.con.GetChar(ctx)
	if err != nil {
		return err
	}
	f.con.PutChar(c)
	f.con.PutString("\n")
	f.Log.Printf("option %q", c)

	switch c {
	case '1':
		if err := f.echo(ctx); err != nil {
			return err
		}
	case '2':
		f.con.PutString("SPI control register: 0x")
		f.con.PrintHex(f.probe.SPI(), 8)
		f.con.PutString("\n")
	case '3':
		v := f.probe.ToggleLEDs()
		f.Log.Printf("leds -> %08x", v)
		f.con.PutString("LEDs toggled\n")
	default:
		f.con.PutString("Invalid option\n")
	}
	f.mode = ModeMenu
	return nil
}

func (f *Firmware) echo(ctx context.Context) error {
	f.mode = ModeEcho
	f.con.PutString("UART echo mode (send '!' to exit)\n")
	for {
		c, err := f.con.GetChar(ctx)
		if err != nil {
			return err
		}
		f.con.PutChar(c)
		if c == EchoExit {
			return nil
		}
	}
}

// Run boots and then serves the menu until ctx is done. With a context
// that is never cancelled it does not return.
func (f *Firmware) Run(ctx context.Context) error {
	f.Boot()
	for {
		if err := f.Step(ctx); err != nil {
			return err
		}
	}
}
