// Package config holds the fixed SoC configuration the firmware runs with.
package config

import (
	"errors"
	"fmt"

	"minisoc/memtest"
	"minisoc/mmio"
)

const (
	// DefaultClkDiv is 12 MHz / 115200 baud.
	DefaultClkDiv   = 104
	DefaultLEDSteps = 8
	DefaultLEDDelay = 100000
)

var (
	ErrOverlap     = errors.New("config: memory test region overlaps a register")
	ErrUnaligned   = errors.New("config: memory test region is not word aligned")
	ErrEmptyRegion = errors.New("config: memory test region is empty")
	ErrRegionWrap  = errors.New("config: memory test region wraps the address space")
	ErrLEDSteps    = errors.New("config: LED steps out of range")
)

type Config struct {
	Regs mmio.Map
	Mem  memtest.Region

	ClkDiv   uint32
	LEDSteps int
	LEDDelay int
}

func Default() Config {
	return Config{
		Regs:     mmio.DefaultMap,
		Mem:      memtest.DefaultRegion,
		ClkDiv:   DefaultClkDiv,
		LEDSteps: DefaultLEDSteps,
		LEDDelay: DefaultLEDDelay,
	}
}

func (c Config) Validate() error {
	if err := c.Regs.Validate(); err != nil {
		return err
	}
	if c.Mem.Words <= 0 {
		return ErrEmptyRegion
	}
	if c.Mem.Base&3 != 0 {
		return fmt.Errorf("%w: base 0x%08x", ErrUnaligned, c.Mem.Base)
	}
	// A span can describe at most 1<<32 - 4 bytes; a full-space region
	// would truncate to size 0.
	span := c.Mem.Span()
	if uint64(c.Mem.Words)*4 >= 1<<32 || span.End() > 1<<32 {
		return fmt.Errorf("%w: base 0x%08x, %d words", ErrRegionWrap, c.Mem.Base, c.Mem.Words)
	}
	if c.Regs.Contains(span) {
		return fmt.Errorf("%w: [0x%08x, 0x%09x)", ErrOverlap, span.Base, span.End())
	}
	if c.LEDSteps < 0 || c.LEDSteps > 32 {
		return fmt.Errorf("%w: %d", ErrLEDSteps, c.LEDSteps)
	}
	return nil
}

// Spans returns every address span the firmware touches.
func (c Config) Spans() []mmio.Span {
	return append(c.Regs.Spans(), c.Mem.Span())
}
