// Package mmio is the register access layer: 32-bit volatile accesses to a
// physical or simulated address space.
package mmio

import (
	"errors"
	"fmt"
)

// Bus is a 32-bit address space. Each call is exactly one access of native
// width; implementations must not cache, merge or reorder accesses.
type Bus interface {
	Load32(addr uint32) uint32
	Store32(addr uint32, v uint32)
}

// MiniSoC register addresses.
const (
	SPICtrlAddr    = 0x02000000
	UARTClkDivAddr = 0x02000004
	UARTDataAddr   = 0x02000008
	LEDsAddr       = 0x03000000
)

// ErrDuplicate is returned by Map.Validate when two registers share an address.
var ErrDuplicate = errors.New("mmio: duplicate register address")

// ErrUnaligned is returned by Map.Validate for a register off a word boundary.
var ErrUnaligned = errors.New("mmio: unaligned register address")

// Register is a handle on one fixed address.
type Register struct {
	bus  Bus
	addr uint32
	name string
}

// NewRegister returns a handle on addr; name is used in traces.
func NewRegister(bus Bus, addr uint32, name string) Register {
	return Register{bus: bus, addr: addr, name: name}
}

func (r Register) Read() uint32   { return r.bus.Load32(r.addr) }
func (r Register) Write(v uint32) { r.bus.Store32(r.addr, v) }
func (r Register) Addr() uint32   { return r.addr }
func (r Register) Name() string   { return r.name }
func (r Register) String() string { return fmt.Sprintf("%s@%08x", r.name, r.addr) }

// Map is the register address map of the SoC.
type Map struct {
	SPICtrl    uint32
	UARTClkDiv uint32
	UARTData   uint32
	LEDs       uint32
}

// DefaultMap is the fixed MiniSoC register map.
var DefaultMap = Map{
	SPICtrl:    SPICtrlAddr,
	UARTClkDiv: UARTClkDivAddr,
	UARTData:   UARTDataAddr,
	LEDs:       LEDsAddr,
}

func (m Map) addrs() []uint32 {
	return []uint32{m.SPICtrl, m.UARTClkDiv, m.UARTData, m.LEDs}
}

// Validate checks that every register is word aligned and distinct.
func (m Map) Validate() error {
	seen := make(map[uint32]bool, 4)
	for _, a := range m.addrs() {
		if a&3 != 0 {
			return fmt.Errorf("%w: 0x%08x", ErrUnaligned, a)
		}
		if seen[a] {
			return fmt.Errorf("%w: 0x%08x", ErrDuplicate, a)
		}
		seen[a] = true
	}
	return nil
}

// Spans returns one 4-byte span per register.
func (m Map) Spans() []Span {
	var spans []Span
	for _, a := range m.addrs() {
		spans = append(spans, Span{Base: a, Size: 4})
	}
	return spans
}

// Contains reports whether any register lies in s.
func (m Map) Contains(s Span) bool {
	for _, a := range m.addrs() {
		if s.Overlaps(Span{Base: a, Size: 4}) {
			return true
		}
	}
	return false
}

// Span is a half-open byte range [Base, Base+Size).
type Span struct {
	Base uint32
	Size uint32
}

func (s Span) End() uint64 { return uint64(s.Base) + uint64(s.Size) }

func (s Span) Overlaps(o Span) bool {
	return uint64(s.Base) < o.End() && uint64(o.Base) < s.End()
}

func (s Span) Contains(addr uint32) bool {
	return addr >= s.Base && uint64(addr) < s.End()
}

// Registers is the set of register handles the firmware works with. It is
// passed explicitly to drivers rather than kept in package state.
type Registers struct {
	SPICtrl    Register
	UARTClkDiv Register
	UARTData   Register
	LEDs       Register
}

func Attach(bus Bus, m Map) *Registers {
	return &Registers{
		SPICtrl:    NewRegister(bus, m.SPICtrl, "spi_ctrl"),
		UARTClkDiv: NewRegister(bus, m.UARTClkDiv, "uart_clkdiv"),
		UARTData:   NewRegister(bus, m.UARTData, "uart_data"),
		LEDs:       NewRegister(bus, m.LEDs, "leds"),
	}
}
