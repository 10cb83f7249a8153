// Package probe holds the LED and SPI control register routines.
package probe

import (
	"sync/atomic"

	"minisoc/mmio"
)

// Probe drives the SPI control and LED registers.
type Probe struct {
	spi  mmio.Register
	leds mmio.Register
}

// New returns a Probe on the registers in regs.
func New(regs *mmio.Registers) *Probe {
	return &Probe{spi: regs.SPICtrl, leds: regs.LEDs}
}

func (p *Probe) SPI() uint32 { return p.spi.Read() }
func (p *Probe) ClearSPI()   { p.spi.Write(0) }
func (p *Probe) ClearLEDs()  { p.leds.Write(0) }

// ToggleLEDs writes back the complement of the current LED value and
// returns what it wrote. It assumes the LED register reads back its last
// written value.
func (p *Probe) ToggleLEDs() uint32 {
	v := ^p.leds.Read()
	p.leds.Write(v)
	return v
}

// Walk lights one LED at a time, bit 0 first, spinning delay iterations
// between steps. The last bit is left on.
func (p *Probe) Walk(steps, delay int) {
	for i := 0; i < steps && i < 32; i++ {
		p.leds.Write(1 << uint(i))
		Spin(delay)
	}
}

var spinSink uint32

// Spin busy-waits for n loop iterations.
func Spin(n int) {
	var j uint32
	for i := 0; i < n; i++ {
		j++
	}
	atomic.StoreUint32(&spinSink, j)
}
