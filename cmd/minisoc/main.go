package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"minisoc/config"
	"minisoc/firmware"
	"minisoc/host"
	"minisoc/memtest"
	"minisoc/mmio"
	"minisoc/sim"
)

type options struct {
	mode    string
	console bool
	ttyPath string
	serial  string
	baud    uint
	devmem  string

	elfPath string
	binPath string
	steps   int
	memMiB  int

	clkdiv   uint
	ledDelay int
	memBase  uint
	memWords int

	trace          bool
	reportMismatch bool
	verbose        bool
}

func parseFlags(args []string) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("minisoc", flag.ContinueOnError)
	fs.StringVar(&o.mode, "mode", "sim", "Run mode: sim, devmem or image")
	fs.BoolVar(&o.console, "console", true, "Attach the UART to this terminal (Ctrl-] quits)")
	fs.StringVar(&o.ttyPath, "tty", "", "Attach the UART to a tty device instead")
	fs.StringVar(&o.serial, "serial", "", "Attach the UART to a serial port instead")
	fs.UintVar(&o.baud, "baud", host.DefaultBaud, "Serial port baud rate")
	fs.StringVar(&o.devmem, "devmem", "/dev/mem", "Physical memory device for devmem mode")
	fs.StringVar(&o.elfPath, "elf", "", "ELF firmware image (image mode)")
	fs.StringVar(&o.binPath, "bin", "", "Flat firmware image loaded at 0x0 (image mode)")
	fs.IntVar(&o.steps, "steps", 0, "Instruction budget in image mode (0 = unlimited)")
	fs.IntVar(&o.memMiB, "mem", 16, "Simulated RAM MiB")
	fs.UintVar(&o.clkdiv, "clkdiv", config.DefaultClkDiv, "UART clock divisor")
	fs.IntVar(&o.ledDelay, "led-delay", config.DefaultLEDDelay, "Busy-wait iterations between LED steps")
	fs.UintVar(&o.memBase, "mem-base", 0, "Memory test base address")
	fs.IntVar(&o.memWords, "mem-words", memtest.Words, "Memory test size in words")
	fs.BoolVar(&o.trace, "trace", false, "Log every register access")
	fs.BoolVar(&o.reportMismatch, "report-mismatch", false, "Print the failing word when the memory test fails")
	fs.BoolVar(&o.verbose, "v", false, "Verbose host logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch o.mode {
	case "sim", "devmem":
	case "image":
		if o.elfPath == "" && o.binPath == "" {
			return nil, errors.New("image mode needs -elf or -bin")
		}
	default:
		return nil, fmt.Errorf("unknown mode %q", o.mode)
	}
	if o.memMiB <= 0 || o.memMiB > 32 {
		return nil, fmt.Errorf("-mem %d: RAM must be 1..32 MiB to stay below the peripherals", o.memMiB)
	}
	return o, nil
}

func (o *options) config() (config.Config, error) {
	cfg := config.Default()
	cfg.ClkDiv = uint32(o.clkdiv)
	cfg.LEDDelay = o.ledDelay
	cfg.Mem = memtest.Region{Base: uint32(o.memBase), Words: o.memWords}
	return cfg, cfg.Validate()
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "minisoc:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "minisoc:", err)
		os.Exit(1)
	}
}

// logOut is where host logs go. It is switched to CR LF line endings while
// the console is in raw mode.
var logOut io.Writer = os.Stderr

func logger(prefix string, on bool) *log.Logger {
	if !on {
		return log.New(io.Discard, "", 0)
	}
	return log.New(logOut, prefix, log.Ltime|log.Lmicroseconds)
}

type crlfWriter struct{ w io.Writer }

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}

func run(ctx context.Context, o *options) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	if o.mode == "devmem" {
		return runDevMem(ctx, o, cfg)
	}

	tp, err := openTransport(o)
	if err != nil {
		return err
	}

	// Build the machine
	ram := sim.NewRAM(uint64(o.memMiB) * 1024 * 1024)
	uart := sim.NewUART(tp)
	uart.IdleWait = time.Millisecond
	bus := sim.NewBus(ram, uart)
	bus.SetMap(cfg.Regs)
	bus.Log = logger("[sim] ", true)
	ledLog := logger("[leds] ", o.verbose)
	bus.OnLEDs = func(v uint32) { ledLog.Printf("%032b", v) }

	pump := host.Start(tp, uart, host.EscapeByte, logger("[host] ", o.verbose))
	defer func() {
		if err := pump.Stop(); err != nil {
			log.Printf("[host] %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer cancel()
		select {
		case <-pump.Escaped():
		case <-ctx.Done():
		case <-pump.Dead():
			// Input ended: let the firmware consume what is queued.
			for uart.Pending() > 0 && ctx.Err() == nil {
				time.Sleep(10 * time.Millisecond)
			}
			time.Sleep(100 * time.Millisecond)
		}
	}()

	if o.mode == "image" {
		return runImage(ctx, o, bus)
	}
	return runFirmware(ctx, o, cfg, bus)
}

func openTransport(o *options) (io.ReadWriteCloser, error) {
	switch {
	case o.serial != "":
		return host.OpenSerial(o.serial, o.baud)
	case o.ttyPath != "":
		return host.OpenTTY(o.ttyPath)
	case o.console:
		c, err := host.OpenConsole()
		if err != nil {
			return nil, err
		}
		if c.Raw() {
			logOut = crlfWriter{os.Stderr}
			log.SetOutput(logOut)
		}
		return c, nil
	}
	return nil, errors.New("no transport: use -console, -tty or -serial")
}

func runFirmware(ctx context.Context, o *options, cfg config.Config, bus mmio.Bus) error {
	if o.trace {
		tr := mmio.NewTracer(bus)
		tr.Log = logger("[mmio] ", true)
		tr.Filter = func(addr uint32) bool { return cfg.Regs.Contains(mmio.Span{Base: addr, Size: 4}) }
		bus = tr
	}
	fw, err := firmware.New(bus, cfg)
	if err != nil {
		return err
	}
	fw.Log = logger("[firmware] ", o.verbose)
	fw.ReportMismatch = o.reportMismatch
	return fw.Run(ctx)
}

func runImage(ctx context.Context, o *options, bus *sim.Bus) error {
	cpu := sim.NewCPU(bus)
	cpu.Trace = o.trace
	cpu.Log = logger("[cpu] ", o.trace)
	if o.trace {
		regLog := logger("[mmio] ", true)
		bus.OnAccess = func(a mmio.Access) { regLog.Print(a) }
	}

	// Load program
	switch {
	case o.elfPath != "":
		entry, err := sim.LoadELF(o.elfPath, bus.RAM())
		if err != nil {
			return fmt.Errorf("ELF load: %w", err)
		}
		cpu.PC = entry
	case o.binPath != "":
		if err := bus.RAM().LoadFlat(o.binPath, 0); err != nil {
			return fmt.Errorf("BIN load: %w", err)
		}
		cpu.PC = 0
	}

	err := cpu.Run(ctx, o.steps)
	log.Printf("[cpu] stopped at pc=%08x after %d steps", cpu.PC, cpu.Steps)
	return err
}
