// Package memtest writes a known pattern into a region of plain memory and
// verifies that it reads back unchanged.
package memtest

import (
	"fmt"

	"minisoc/mmio"
)

const (
	Pattern = 0xDEAD0000
	Words   = 64
)

type State int

const (
	Idle State = iota
	Writing
	Verifying
	Passed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Writing:
		return "writing"
	case Verifying:
		return "verifying"
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Region is Words consecutive 32-bit words starting at Base.
type Region struct {
	Base  uint32
	Words int
}

var DefaultRegion = Region{Base: 0, Words: Words}

func (r Region) Span() mmio.Span {
	return mmio.Span{Base: r.Base, Size: uint32(r.Words) * 4}
}

func (r Region) addr(i int) uint32 { return r.Base + uint32(i)*4 }

// Expected is the pattern value of word i.
func Expected(i int) uint32 { return Pattern + uint32(i) }

// Mismatch describes the first word that did not read back.
type Mismatch struct {
	Index int
	Addr  uint32
	Want  uint32
	Got   uint32
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("word %d @0x%08x: want %08x, got %08x", m.Index, m.Addr, m.Want, m.Got)
}

type Exerciser struct {
	bus    mmio.Bus
	region Region
	state  State

	// OnState, if set, is called on every state transition.
	OnState func(State)
}

func New(bus mmio.Bus, region Region) *Exerciser {
	return &Exerciser{bus: bus, region: region}
}

func (e *Exerciser) State() State { return e.state }

func (e *Exerciser) enter(s State) {
	e.state = s
	if e.OnState != nil {
		e.OnState(s)
	}
}

// Run makes one full pass and returns Passed or Failed.
func (e *Exerciser) Run() State {
	if e.Check() != nil {
		return Failed
	}
	return Passed
}

// Check makes one full pass like Run but reports the first mismatching word.
func (e *Exerciser) Check() error {
	e.enter(Idle)

	e.enter(Writing)
	for i := 0; i < e.region.Words; i++ {
		e.bus.Store32(e.region.addr(i), Expected(i))
	}

	e.enter(Verifying)
	for i := 0; i < e.region.Words; i++ {
		addr := e.region.addr(i)
		if got := e.bus.Load32(addr); got != Expected(i) {
			e.enter(Failed)
			return &Mismatch{Index: i, Addr: addr, Want: Expected(i), Got: got}
		}
	}

	e.enter(Passed)
	return nil
}
