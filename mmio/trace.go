package mmio

import (
	"fmt"
	"log"
	"sync"
)

type Op uint8

const (
	OpRead Op = iota
	OpWrite
)

func (o Op) String() string {
	if o == OpWrite {
		return "W"
	}
	return "R"
}

// Access is one recorded bus access.
type Access struct {
	Op    Op
	Addr  uint32
	Value uint32
}

func (a Access) String() string {
	return fmt.Sprintf("%s %08x %08x", a.Op, a.Addr, a.Value)
}

// Tracer forwards every access to the wrapped bus and records it in order.
// Log, when set, receives one line per access.
type Tracer struct {
	Bus Bus
	Log *log.Logger

	// Filter restricts recording to addresses for which it returns true.
	Filter func(addr uint32) bool

	mu  sync.Mutex
	acc []Access
}

func NewTracer(bus Bus) *Tracer { return &Tracer{Bus: bus} }

func (t *Tracer) Load32(addr uint32) uint32 {
	v := t.Bus.Load32(addr)
	t.record(Access{OpRead, addr, v})
	return v
}

func (t *Tracer) Store32(addr uint32, v uint32) {
	t.Bus.Store32(addr, v)
	t.record(Access{OpWrite, addr, v})
}

func (t *Tracer) record(a Access) {
	if t.Filter != nil && !t.Filter(a.Addr) {
		return
	}
	if t.Log != nil {
		t.Log.Print(a)
	}
	t.mu.Lock()
	t.acc = append(t.acc, a)
	t.mu.Unlock()
}

// Accesses returns a copy of the recorded accesses.
func (t *Tracer) Accesses() []Access {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Access, len(t.acc))
	copy(out, t.acc)
	return out
}

// Writes returns the values written to addr, in order.
func (t *Tracer) Writes(addr uint32) []uint32 {
	var vs []uint32
	for _, a := range t.Accesses() {
		if a.Op == OpWrite && a.Addr == addr {
			vs = append(vs, a.Value)
		}
	}
	return vs
}

// Count returns the number of accesses of kind op to addr.
func (t *Tracer) Count(op Op, addr uint32) int {
	n := 0
	for _, a := range t.Accesses() {
		if a.Op == op && a.Addr == addr {
			n++
		}
	}
	return n
}

func (t *Tracer) Reset() {
	t.mu.Lock()
	t.acc = t.acc[:0]
	t.mu.Unlock()
}

var _ Bus = (*Tracer)(nil)
