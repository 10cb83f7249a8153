//go:build linux

package mmio

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevMem is a Bus over physical memory mapped from a memory device such as
// /dev/mem. Every access is a single atomic 32-bit load or store on the
// mapping, which the compiler may not elide or combine.
type DevMem struct {
	f       *os.File
	windows []window
}

// ErrSpanTooLarge is returned when the mapped pages would cover the whole
// 32-bit address space, which a Span cannot describe.
var ErrSpanTooLarge = errors.New("mmio: span covers the whole address space")

type window struct {
	base uint32
	data []byte
}

// OpenDevMem maps the pages covering spans. Adjacent or overlapping pages
// share one window.
func OpenDevMem(path string, spans ...Span) (*DevMem, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	d := &DevMem{f: f}
	page := uint64(unix.Getpagesize())
	ps, err := pageSpans(spans, page)
	if err != nil {
		f.Close()
		return nil, err
	}
	for _, s := range ps {
		data, err := unix.Mmap(int(f.Fd()), int64(s.Base), int(s.Size),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("mmap %s @0x%08x+0x%x: %w", path, s.Base, s.Size, err)
		}
		d.windows = append(d.windows, window{base: s.Base, data: data})
	}
	return d, nil
}

// pageSpans rounds spans out to page boundaries and merges the results.
func pageSpans(spans []Span, page uint64) ([]Span, error) {
	type rng struct{ lo, hi uint64 }
	var rs []rng
	for _, s := range spans {
		if s.Size == 0 {
			continue
		}
		lo := uint64(s.Base) &^ (page - 1)
		hi := (s.End() + page - 1) &^ (page - 1)
		rs = append(rs, rng{lo, hi})
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].lo < rs[j].lo })

	var out []Span
	for i := 0; i < len(rs); {
		cur := rs[i]
		i++
		for i < len(rs) && rs[i].lo <= cur.hi {
			if rs[i].hi > cur.hi {
				cur.hi = rs[i].hi
			}
			i++
		}
		if cur.hi-cur.lo >= 1<<32 {
			return nil, fmt.Errorf("%w: [0x%x, 0x%x)", ErrSpanTooLarge, cur.lo, cur.hi)
		}
		out = append(out, Span{Base: uint32(cur.lo), Size: uint32(cur.hi - cur.lo)})
	}
	return out, nil
}

func (d *DevMem) word(addr uint32) *uint32 {
	for _, w := range d.windows {
		off := uint64(addr) - uint64(w.base)
		if addr >= w.base && off+4 <= uint64(len(w.data)) {
			return (*uint32)(unsafe.Pointer(&w.data[off]))
		}
	}
	panic(fmt.Sprintf("mmio: bus fault: 0x%08x is not mapped", addr))
}

func (d *DevMem) Load32(addr uint32) uint32 {
	return atomic.LoadUint32(d.word(addr))
}

func (d *DevMem) Store32(addr uint32, v uint32) {
	atomic.StoreUint32(d.word(addr), v)
}

func (d *DevMem) Close() error {
	var first error
	for _, w := range d.windows {
		if err := unix.Munmap(w.data); err != nil && first == nil {
			first = err
		}
	}
	d.windows = nil
	if err := d.f.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
