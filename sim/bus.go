package sim

import (
	"io"
	"log"

	"minisoc/mmio"
)

// Address map (defaults, see mmio.DefaultMap):
// RAM:       0x0000_0000 .. size-1
// SPI ctrl:  0x0200_0000
// UART div:  0x0200_0004
// UART data: 0x0200_0008
// LEDs:      0x0300_0000

// Bus decodes addresses to RAM and the MiniSoC peripherals. Peripheral
// registers are 32 bits wide; narrower accesses read or write the full
// register once and select the addressed byte lanes.
type Bus struct {
	ram  *RAM
	uart *UART
	regs mmio.Map

	spi  uint32
	leds uint32

	// OnLEDs is called with every value written to the LED register.
	OnLEDs func(uint32)

	// OnAccess, if set, sees every peripheral register access at full
	// width. A narrow store shows up as the read and write of its merge.
	OnAccess func(mmio.Access)

	Log    *log.Logger
	Faults int
}

func NewBus(ram *RAM, uart *UART) *Bus {
	return &Bus{
		ram:  ram,
		uart: uart,
		regs: mmio.DefaultMap,
		Log:  log.New(io.Discard, "", 0),
	}
}

// SetMap moves the peripheral registers.
func (b *Bus) SetMap(m mmio.Map) { b.regs = m }

func (b *Bus) RAM() *RAM   { return b.ram }
func (b *Bus) UART() *UART { return b.uart }

func (b *Bus) SPI() uint32     { return b.spi }
func (b *Bus) SetSPI(v uint32) { b.spi = v }
func (b *Bus) LEDs() uint32    { return b.leds }

type reg int

const (
	regNone reg = iota
	regSPI
	regClkDiv
	regData
	regLEDs
)

func (b *Bus) decode(addr uint32) reg {
	switch addr &^ 3 {
	case b.regs.SPICtrl:
		return regSPI
	case b.regs.UARTClkDiv:
		return regClkDiv
	case b.regs.UARTData:
		return regData
	case b.regs.LEDs:
		return regLEDs
	}
	return regNone
}

func (b *Bus) observe(op mmio.Op, addr, v uint32) {
	if b.OnAccess != nil {
		b.OnAccess(mmio.Access{Op: op, Addr: addr &^ 3, Value: v})
	}
}

func (b *Bus) readReg(r reg, addr uint32) uint32 {
	var v uint32
	switch r {
	case regSPI:
		v = b.spi
	case regClkDiv:
		v = b.uart.ClkDiv()
	case regData:
		v = b.uart.readData()
	case regLEDs:
		v = b.leds
	}
	b.observe(mmio.OpRead, addr, v)
	return v
}

func (b *Bus) writeReg(r reg, addr uint32, v uint32) {
	b.observe(mmio.OpWrite, addr, v)
	switch r {
	case regSPI:
		b.spi = v
	case regClkDiv:
		b.uart.setClkDiv(v)
	case regData:
		b.uart.Tx(uint8(v))
	case regLEDs:
		b.leds = v
		if b.OnLEDs != nil {
			b.OnLEDs(v)
		}
	}
}

// writeLanes merges a narrow store into a register. The data register
// transmits instead of merging.
func (b *Bus) writeLanes(r reg, addr uint32, v uint32, mask uint32) {
	shift := 8 * (addr & 3)
	if r == regData {
		if shift == 0 {
			b.observe(mmio.OpWrite, addr, v)
			b.uart.Tx(uint8(v))
		}
		return
	}
	old := b.readReg(r, addr)
	b.writeReg(r, addr, old&^(mask<<shift)|(v&mask)<<shift)
}

func (b *Bus) Read8(addr uint32) (uint8, bool) {
	if r := b.decode(addr); r != regNone {
		return uint8(b.readReg(r, addr) >> (8 * (addr & 3))), true
	}
	return b.ram.Read8(addr)
}

func (b *Bus) Write8(addr uint32, v uint8) bool {
	if r := b.decode(addr); r != regNone {
		b.writeLanes(r, addr, uint32(v), 0xFF)
		return true
	}
	return b.ram.Write8(addr, v)
}

func (b *Bus) Read16(addr uint32) (uint16, bool) {
	if r := b.decode(addr); r != regNone {
		return uint16(b.readReg(r, addr) >> (8 * (addr & 2))), true
	}
	return b.ram.Read16(addr)
}

func (b *Bus) Write16(addr uint32, v uint16) bool {
	if r := b.decode(addr); r != regNone {
		b.writeLanes(r, addr&^1, uint32(v), 0xFFFF)
		return true
	}
	return b.ram.Write16(addr, v)
}

func (b *Bus) Read32(addr uint32) (uint32, bool) {
	if r := b.decode(addr); r != regNone {
		return b.readReg(r, addr), true
	}
	return b.ram.Read32(addr)
}

func (b *Bus) Write32(addr uint32, v uint32) bool {
	if r := b.decode(addr); r != regNone {
		b.writeReg(r, addr, v)
		return true
	}
	return b.ram.Write32(addr, v)
}

// Load32 and Store32 make the simulated SoC an mmio.Bus. Faults are logged
// and counted; a faulting load returns 0.
func (b *Bus) Load32(addr uint32) uint32 {
	v, ok := b.Read32(addr)
	if !ok {
		b.fault("load", addr)
	}
	return v
}

func (b *Bus) Store32(addr uint32, v uint32) {
	if !b.Write32(addr, v) {
		b.fault("store", addr)
	}
}

func (b *Bus) fault(op string, addr uint32) {
	b.Faults++
	b.Log.Printf("bus fault: %s @%08x", op, addr)
}

var _ mmio.Bus = (*Bus)(nil)
