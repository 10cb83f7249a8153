package sim

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
)

/* ----------------- helpers to encode RV32I instructions ----------------- */

// R-type
func encR(op, rd, f3, rs1, rs2, f7 uint32) uint32 {
	return (f7 << 25) | (rs2 << 20) | (rs1 << 15) | (f3 << 12) | (rd << 7) | op
}

// I-type (imm is 12-bit signed)
func encI(op, rd, f3, rs1 uint32, imm int32) uint32 {
	u := uint32(imm) & 0xFFF
	return (u << 20) | (rs1 << 15) | (f3 << 12) | (rd << 7) | op
}

// S-type (imm is 12-bit signed)
func encS(op, f3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm) & 0xFFF
	immhi := (u >> 5) & 0x7F
	immlo := u & 0x1F
	return (immhi << 25) | (rs2 << 20) | (rs1 << 15) | (f3 << 12) | (immlo << 7) | op
}

// B-type (imm is 13-bit signed, multiples of 2)
func encB(op, f3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	b12 := (u >> 12) & 0x1
	b10_5 := (u >> 5) & 0x3F
	b4_1 := (u >> 1) & 0xF
	b11 := (u >> 11) & 0x1
	return (b12 << 31) | (b10_5 << 25) | (rs2 << 20) | (rs1 << 15) |
		(f3 << 12) | (b4_1 << 8) | (b11 << 7) | op
}

// U-type (imm20 is the upper 20 bits)
func encU(op, rd, imm20 uint32) uint32 {
	return (imm20 << 12) | (rd << 7) | op
}

const instECALL = uint32(0x00000073)

type machine struct {
	ram  *RAM
	uart *UART
	bus  *Bus
	cpu  *CPU
	out  *bytes.Buffer
}

func newMachine() *machine {
	m := &machine{ram: NewRAM(1 * 1024 * 1024), out: new(bytes.Buffer)}
	m.uart = NewUART(m.out)
	m.bus = NewBus(m.ram, m.uart)
	m.cpu = NewCPU(m.bus)
	return m
}

func writeWords(t *testing.T, ram *RAM, base uint32, words ...uint32) {
	t.Helper()
	buf := new(bytes.Buffer)
	for _, w := range words {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], w)
		buf.Write(b[:])
	}
	if err := ram.WriteBytes(base, buf.Bytes()); err != nil {
		t.Fatalf("WriteWords: %v", err)
	}
}

func runUntilHalt(t *testing.T, cpu *CPU, max int) {
	t.Helper()
	if err := cpu.Run(context.Background(), max); err != nil {
		t.Fatalf("run: %v", err)
	}
}

/* ------------------------------ tests ------------------------------ */

func TestUARTAndEcallHalt(t *testing.T) {
	m := newMachine()

	// Program:
	//   LUI  x1, 0x02000        ; x1 = 0x02000000 (peripheral base)
	//   ADDI x2, x0, 'A'
	//   SB   x2, 8(x1)          ; write 'A' to uart_data
	//   ECALL                   ; halt
	writeWords(t, m.ram, 0,
		encU(0x37, 1, 0x02000),
		encI(0x13, 2, 0x0, 0, int32('A')),
		encS(0x23, 0x0, 1, 2, 8),
		instECALL,
	)

	if err := m.cpu.Step(); err != nil {
		t.Fatal(err)
	}
	runUntilHalt(t, m.cpu, 10)

	if s := m.out.String(); s != "A" {
		t.Fatalf("expected UART output 'A', got: %q", s)
	}
	if m.cpu.PC != 12 || m.cpu.Steps != 3 {
		t.Fatalf("halted at pc=%08x after %d steps", m.cpu.PC, m.cpu.Steps)
	}
	if err := m.cpu.Step(); !errors.Is(err, ErrHalt) {
		t.Fatalf("ECALL: got %v, want ErrHalt", err)
	}
}

func TestLBSignExtension(t *testing.T) {
	m := newMachine()

	if !m.ram.Write8(0x100, 0xFF) {
		t.Fatal("failed to write test byte")
	}

	// Program:
	//   ADDI x3, x0, 0x100      ; base = 0x100
	//   LB   x4, 0(x3)          ; should sign-extend 0xFF -> 0xFFFFFFFF
	//   LBU  x5, 0(x3)          ; should zero-extend
	//   ECALL
	writeWords(t, m.ram, 0,
		encI(0x13, 3, 0x0, 0, 0x100),
		encI(0x03, 4, 0x0, 3, 0),
		encI(0x03, 5, 0x4, 3, 0),
		instECALL,
	)
	runUntilHalt(t, m.cpu, 10)

	if m.cpu.Reg[4] != 0xFFFFFFFF {
		t.Fatalf("LB sign-ext failed: got 0x%08x, want 0xFFFFFFFF", m.cpu.Reg[4])
	}
	if m.cpu.Reg[5] != 0xFF {
		t.Fatalf("LBU zero-ext failed: got 0x%08x, want 0xFF", m.cpu.Reg[5])
	}
}

func TestHalfwordLoadStore(t *testing.T) {
	m := newMachine()

	// Program:
	//   LUI  x1, 0x8            ; x1 = 0x8000
	//   LUI  x2, 0x12348        ; x2 = 0x12348000
	//   ADDI x2, x2, -0x800     ; x2 = 0x12347800
	//   SH   x2, 2(x1)
	//   LH   x3, 2(x1)          ; 0x7800 positive
	//   LHU  x4, 2(x1)
	//   LW   x5, 0(x1)          ; 0x78000000
	//   ECALL
	writeWords(t, m.ram, 0,
		encU(0x37, 1, 0x8),
		encU(0x37, 2, 0x12348),
		encI(0x13, 2, 0x0, 2, -0x800),
		encS(0x23, 0x1, 1, 2, 2),
		encI(0x03, 3, 0x1, 1, 2),
		encI(0x03, 4, 0x5, 1, 2),
		encI(0x03, 5, 0x2, 1, 0),
		instECALL,
	)
	runUntilHalt(t, m.cpu, 20)

	if m.cpu.Reg[2] != 0x12347800 {
		t.Fatalf("x2=0x%08x", m.cpu.Reg[2])
	}
	if m.cpu.Reg[3] != 0x7800 || m.cpu.Reg[4] != 0x7800 {
		t.Fatalf("LH/LHU: x3=0x%08x x4=0x%08x", m.cpu.Reg[3], m.cpu.Reg[4])
	}
	if m.cpu.Reg[5] != 0x78000000 {
		t.Fatalf("LW: x5=0x%08x", m.cpu.Reg[5])
	}
}

func TestBEQBranchSkips(t *testing.T) {
	m := newMachine()

	// Program:
	//   ADDI x5, x0, 1
	//   BEQ  x5, x5, +8         ; skip next instruction (8 bytes)
	//   ADDI x6, x0, 99         ; should be skipped
	//   ADDI x6, x0, 7          ; should execute
	//   ECALL
	writeWords(t, m.ram, 0,
		encI(0x13, 5, 0x0, 0, 1),
		encB(0x63, 0x0, 5, 5, 8),
		encI(0x13, 6, 0x0, 0, 99),
		encI(0x13, 6, 0x0, 0, 7),
		instECALL,
	)
	runUntilHalt(t, m.cpu, 20)

	if m.cpu.Reg[6] != 7 {
		t.Fatalf("branch failed: x6=0x%x, want 7", m.cpu.Reg[6])
	}
}

func TestALU(t *testing.T) {
	m := newMachine()

	// Program:
	//   ADDI x1, x0, -8
	//   ADDI x2, x0, 3
	//   SUB  x3, x1, x2         ; -11
	//   SRA  x4, x1, x2         ; -1
	//   SRL  x5, x1, x2         ; 0x1FFFFFFF
	//   SLT  x6, x1, x2         ; 1
	//   SLTU x7, x1, x2         ; 0
	//   SRAI x8, x1, 1          ; -4
	//   ECALL
	writeWords(t, m.ram, 0,
		encI(0x13, 1, 0x0, 0, -8),
		encI(0x13, 2, 0x0, 0, 3),
		encR(0x33, 3, 0x0, 1, 2, 0x20),
		encR(0x33, 4, 0x5, 1, 2, 0x20),
		encR(0x33, 5, 0x5, 1, 2, 0x00),
		encR(0x33, 6, 0x2, 1, 2, 0x00),
		encR(0x33, 7, 0x3, 1, 2, 0x00),
		encI(0x13, 8, 0x5, 1, 0x400|1),
		instECALL,
	)
	runUntilHalt(t, m.cpu, 20)

	want := map[int]uint32{3: 0xFFFFFFF5, 4: 0xFFFFFFFF, 5: 0x1FFFFFFF, 6: 1, 7: 0, 8: 0xFFFFFFFC}
	for r, v := range want {
		if m.cpu.Reg[r] != v {
			t.Fatalf("x%d=0x%08x, want 0x%08x", r, m.cpu.Reg[r], v)
		}
	}
}

func TestPollThenReadEcho(t *testing.T) {
	m := newMachine()
	m.uart.Feed('Z')

	// Program:
	//   LUI  x1, 0x02000
	// poll:
	//   LW   x2, 8(x1)          ; uart_data
	//   BGE  x2, x0, poll       ; bit 31 clear
	//   LW   x3, 8(x1)          ; take the byte
	//   SW   x3, 8(x1)          ; echo
	//   ECALL
	writeWords(t, m.ram, 0,
		encU(0x37, 1, 0x02000),
		encI(0x03, 2, 0x2, 1, 8),
		encB(0x63, 0x5, 2, 0, -4),
		encI(0x03, 3, 0x2, 1, 8),
		encS(0x23, 0x2, 1, 3, 8),
		instECALL,
	)
	runUntilHalt(t, m.cpu, 100)

	if s := m.out.String(); s != "Z" {
		t.Fatalf("echo: got %q", s)
	}
	if m.uart.Pending() != 0 {
		t.Fatalf("byte not consumed")
	}
}

func TestTraps(t *testing.T) {
	m := newMachine()
	writeWords(t, m.ram, 0, 0xFFFFFFFF)

	var trap *Trap
	if err := m.cpu.Step(); !errors.As(err, &trap) || trap.Cause != "illegal instruction" {
		t.Fatalf("got %v, want illegal instruction trap", err)
	}

	m.cpu.PC = 0x7FFFFFF0
	if err := m.cpu.Step(); !errors.As(err, &trap) || trap.Cause != "fetch fault" {
		t.Fatalf("got %v, want fetch fault", err)
	}

	// LW x1, 0(x2) from an unmapped address
	m.cpu.PC = 0
	m.cpu.Reg[2] = 0x40000000
	writeWords(t, m.ram, 0, encI(0x03, 1, 0x2, 2, 0))
	if err := m.cpu.Step(); !errors.As(err, &trap) || trap.Addr != 0x40000000 {
		t.Fatalf("got %v, want load fault at 0x40000000", err)
	}
	if m.cpu.PC != 0 {
		t.Fatalf("PC moved past faulting instruction: %08x", m.cpu.PC)
	}
}

func TestRunLimits(t *testing.T) {
	m := newMachine()
	// JAL x0, 0 spins forever.
	writeWords(t, m.ram, 0, 0x0000006F)
	if err := m.cpu.Run(context.Background(), 50); !errors.Is(err, ErrStepLimit) {
		t.Fatalf("got %v, want ErrStepLimit", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.cpu.Run(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
