package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
)

// RV32I base integer subset. ECALL and EBREAK halt the core; FENCE is a
// no-op.

var (
	ErrHalt      = errors.New("sim: halted")
	ErrStepLimit = errors.New("sim: step limit reached")
)

// Memory is what the core fetches from and loads/stores to.
type Memory interface {
	Read8(addr uint32) (uint8, bool)
	Read16(addr uint32) (uint16, bool)
	Read32(addr uint32) (uint32, bool)
	Write8(addr uint32, v uint8) bool
	Write16(addr uint32, v uint16) bool
	Write32(addr uint32, v uint32) bool
}

// Trap is a fault raised by an instruction.
type Trap struct {
	PC    uint32
	Inst  uint32
	Cause string
	Addr  uint32
}

func (t *Trap) Error() string {
	return fmt.Sprintf("trap at pc=%08x inst=%08x: %s (addr %08x)", t.PC, t.Inst, t.Cause, t.Addr)
}

type CPU struct {
	Reg   [32]uint32
	PC    uint32
	Bus   Memory
	Steps uint64

	// Trace logs every fetched instruction to Log.
	Trace bool
	Log   *log.Logger
}

func NewCPU(bus Memory) *CPU {
	return &CPU{Bus: bus, Log: log.New(io.Discard, "", 0)}
}

func (c *CPU) readReg(i uint32) uint32 {
	if i == 0 {
		return 0
	}
	return c.Reg[i]
}

func (c *CPU) writeReg(i uint32, v uint32) {
	if i != 0 {
		c.Reg[i] = v
	}
}

func (c *CPU) trap(in inst, cause string, addr uint32) error {
	return &Trap{PC: c.PC, Inst: uint32(in), Cause: cause, Addr: addr}
}

// Step executes one instruction. It returns ErrHalt on ECALL/EBREAK and a
// *Trap on a fault; in both cases PC is left at the instruction.
func (c *CPU) Step() error {
	w, ok := c.Bus.Read32(c.PC)
	if !ok {
		return &Trap{PC: c.PC, Cause: "fetch fault", Addr: c.PC}
	}
	in := inst(w)
	if c.Trace {
		c.Log.Printf("pc=%08x inst=%08x", c.PC, w)
	}

	next := c.PC + 4
	var err error
	switch in.opcode() {
	case opLUI:
		c.writeReg(in.rd(), in.immU())
	case opAUIPC:
		c.writeReg(in.rd(), c.PC+in.immU())
	case opJAL:
		c.writeReg(in.rd(), c.PC+4)
		next = c.PC + in.immJ()
	case opJALR:
		tgt := (c.readReg(in.rs1()) + in.immI()) &^ 1
		c.writeReg(in.rd(), c.PC+4)
		next = tgt
	case opBranch:
		var taken bool
		taken, err = c.branch(in)
		if taken {
			next = c.PC + in.immB()
		}
	case opLoad:
		err = c.load(in)
	case opStore:
		err = c.store(in)
	case opImm:
		err = c.opImm(in)
	case opReg:
		err = c.opReg(in)
	case opFence:
	case opSystem:
		return ErrHalt
	default:
		err = c.trap(in, "illegal instruction", c.PC)
	}
	if err != nil {
		return err
	}

	c.PC = next
	c.Steps++
	return nil
}

func (c *CPU) branch(in inst) (bool, error) {
	a, b := c.readReg(in.rs1()), c.readReg(in.rs2())
	switch in.funct3() {
	case 0x0: // BEQ
		return a == b, nil
	case 0x1: // BNE
		return a != b, nil
	case 0x4: // BLT
		return int32(a) < int32(b), nil
	case 0x5: // BGE
		return int32(a) >= int32(b), nil
	case 0x6: // BLTU
		return a < b, nil
	case 0x7: // BGEU
		return a >= b, nil
	}
	return false, c.trap(in, "illegal branch", c.PC)
}

func (c *CPU) load(in inst) error {
	addr := c.readReg(in.rs1()) + in.immI()
	var v uint32
	ok := true
	switch in.funct3() {
	case 0x0: // LB
		var b uint8
		b, ok = c.Bus.Read8(addr)
		v = uint32(int32(int8(b)))
	case 0x1: // LH
		var h uint16
		h, ok = c.Bus.Read16(addr)
		v = uint32(int32(int16(h)))
	case 0x2: // LW
		v, ok = c.Bus.Read32(addr)
	case 0x4: // LBU
		var b uint8
		b, ok = c.Bus.Read8(addr)
		v = uint32(b)
	case 0x5: // LHU
		var h uint16
		h, ok = c.Bus.Read16(addr)
		v = uint32(h)
	default:
		return c.trap(in, "illegal load", addr)
	}
	if !ok {
		return c.trap(in, "load fault", addr)
	}
	c.writeReg(in.rd(), v)
	return nil
}

func (c *CPU) store(in inst) error {
	addr := c.readReg(in.rs1()) + in.immS()
	v := c.readReg(in.rs2())
	var ok bool
	switch in.funct3() {
	case 0x0: // SB
		ok = c.Bus.Write8(addr, uint8(v))
	case 0x1: // SH
		ok = c.Bus.Write16(addr, uint16(v))
	case 0x2: // SW
		ok = c.Bus.Write32(addr, v)
	default:
		return c.trap(in, "illegal store", addr)
	}
	if !ok {
		return c.trap(in, "store fault", addr)
	}
	return nil
}

func (c *CPU) opImm(in inst) error {
	a := c.readReg(in.rs1())
	imm := in.immI()
	sh := imm & 0x1F
	var v uint32
	switch in.funct3() {
	case 0x0: // ADDI
		v = a + imm
	case 0x2: // SLTI
		v = bool2u(int32(a) < int32(imm))
	case 0x3: // SLTIU
		v = bool2u(a < imm)
	case 0x4: // XORI
		v = a ^ imm
	case 0x6: // ORI
		v = a | imm
	case 0x7: // ANDI
		v = a & imm
	case 0x1: // SLLI
		v = a << sh
	case 0x5:
		switch in.funct7() {
		case 0x00: // SRLI
			v = a >> sh
		case 0x20: // SRAI
			v = uint32(int32(a) >> sh)
		default:
			return c.trap(in, "illegal shift", c.PC)
		}
	}
	c.writeReg(in.rd(), v)
	return nil
}

func (c *CPU) opReg(in inst) error {
	a, b := c.readReg(in.rs1()), c.readReg(in.rs2())
	sh := b & 0x1F
	f7 := in.funct7()
	if f7 != 0x00 && f7 != 0x20 {
		return c.trap(in, "illegal operation", c.PC)
	}
	var v uint32
	switch in.funct3() {
	case 0x0:
		if f7 == 0x20 { // SUB
			v = a - b
		} else { // ADD
			v = a + b
		}
	case 0x1: // SLL
		v = a << sh
	case 0x2: // SLT
		v = bool2u(int32(a) < int32(b))
	case 0x3: // SLTU
		v = bool2u(a < b)
	case 0x4: // XOR
		v = a ^ b
	case 0x5:
		if f7 == 0x20 { // SRA
			v = uint32(int32(a) >> sh)
		} else { // SRL
			v = a >> sh
		}
	case 0x6: // OR
		v = a | b
	case 0x7: // AND
		v = a & b
	}
	c.writeReg(in.rd(), v)
	return nil
}

func bool2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Run steps the core until it halts, faults, ctx is done or max steps have
// run (max <= 0 means no limit). A halt returns nil.
func (c *CPU) Run(ctx context.Context, max int) error {
	for n := 0; max <= 0 || n < max; n++ {
		if n&0x3FF == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := c.Step(); err != nil {
			if errors.Is(err, ErrHalt) {
				return nil
			}
			return err
		}
	}
	return ErrStepLimit
}
