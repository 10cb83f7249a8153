package sim

import (
	"debug/elf"
	"errors"
	"fmt"
)

var ErrNotRV32 = errors.New("sim: not a 32-bit RISC-V executable")

// LoadELF copies the PT_LOAD segments of a 32-bit RISC-V executable into
// RAM at their physical addresses and returns the entry point.
func LoadELF(path string, ram *RAM) (uint32, error) {
	f, err := elf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS32 || f.Machine != elf.EM_RISCV {
		return 0, fmt.Errorf("%w: %s %s", ErrNotRV32, f.Class, f.Machine)
	}

	for _, ph := range f.Progs {
		if ph.Type != elf.PT_LOAD || ph.Memsz == 0 {
			continue
		}
		buf := make([]byte, ph.Memsz)
		if ph.Filesz > 0 {
			if _, err := ph.ReadAt(buf[:ph.Filesz], 0); err != nil {
				return 0, fmt.Errorf("read segment @0x%x: %w", ph.Paddr, err)
			}
		}
		if err := ram.WriteBytes(uint32(ph.Paddr), buf); err != nil {
			return 0, fmt.Errorf("map segment @0x%x: %w", ph.Paddr, err)
		}
	}
	return uint32(f.Entry), nil
}
