package sim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

var ErrOutOfRange = errors.New("sim: address out of RAM")

// RAM is little-endian byte-addressed memory starting at address 0.
type RAM struct {
	mem []byte
}

func NewRAM(size uint64) *RAM {
	if size > 1<<32 {
		size = 1 << 32
	}
	return &RAM{mem: make([]byte, size)}
}

func (r *RAM) Size() uint64 { return uint64(len(r.mem)) }

func (r *RAM) in(addr uint32, n uint64) bool {
	return uint64(addr)+n <= uint64(len(r.mem))
}

func (r *RAM) Read8(addr uint32) (uint8, bool) {
	if !r.in(addr, 1) {
		return 0, false
	}
	return r.mem[addr], true
}

func (r *RAM) Write8(addr uint32, v uint8) bool {
	if !r.in(addr, 1) {
		return false
	}
	r.mem[addr] = v
	return true
}

func (r *RAM) Read16(addr uint32) (uint16, bool) {
	if !r.in(addr, 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(r.mem[addr:]), true
}

func (r *RAM) Write16(addr uint32, v uint16) bool {
	if !r.in(addr, 2) {
		return false
	}
	binary.LittleEndian.PutUint16(r.mem[addr:], v)
	return true
}

func (r *RAM) Read32(addr uint32) (uint32, bool) {
	if !r.in(addr, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(r.mem[addr:]), true
}

func (r *RAM) Write32(addr uint32, v uint32) bool {
	if !r.in(addr, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(r.mem[addr:], v)
	return true
}

func (r *RAM) WriteBytes(addr uint32, b []byte) error {
	if !r.in(addr, uint64(len(b))) {
		return fmt.Errorf("%w: 0x%08x+0x%x", ErrOutOfRange, addr, len(b))
	}
	copy(r.mem[addr:], b)
	return nil
}

// LoadFlat copies a raw binary image to addr.
func (r *RAM) LoadFlat(path string, addr uint32) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return r.WriteBytes(addr, b)
}
