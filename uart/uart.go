// Package uart is a polled driver for the MiniSoC UART. Transmit is a
// single data-register write; receive spins on the data register's status
// bit.
package uart

import (
	"context"

	"minisoc/mmio"
)

// RxValid is set in a uart_data read when a received byte is available.
const RxValid = 1 << 31

const hexDigits = "0123456789abcdef"

// Driver talks to one UART through its data and divisor registers.
type Driver struct {
	data   mmio.Register
	clkdiv mmio.Register
}

// New returns a driver on the UART registers in regs.
func New(regs *mmio.Registers) *Driver {
	return &Driver{data: regs.UARTData, clkdiv: regs.UARTClkDiv}
}

// Configure sets the baud clock divisor.
func (d *Driver) Configure(div uint32) {
	d.clkdiv.Write(div)
}

// PutChar transmits c. A line feed goes out as CR LF.
func (d *Driver) PutChar(c byte) {
	if c == '\n' {
		d.PutChar('\r')
	}
	d.data.Write(uint32(c))
}

func (d *Driver) PutString(s string) {
	for i := 0; i < len(s); i++ {
		d.PutChar(s[i])
	}
}

// Write implements io.Writer. It never fails.
func (d *Driver) Write(p []byte) (int, error) {
	for _, c := range p {
		d.PutChar(c)
	}
	return len(p), nil
}

// GetChar blocks until a byte is received or ctx is done. The status poll
// and the data read are separate register reads.
func (d *Driver) GetChar(ctx context.Context) (byte, error) {
	done := ctx.Done()
	for d.data.Read()&RxValid == 0 {
		select {
		case <-done:
			return 0, ctx.Err()
		default:
		}
	}
	return byte(d.data.Read()), nil
}

// PrintHex transmits the low digits nibbles of v, most significant first.
// digits is clamped to [1, 8].
func (d *Driver) PrintHex(v uint32, digits int) {
	digits = clampDigits(digits)
	for i := digits - 1; i >= 0; i-- {
		d.PutChar(hexDigits[(v>>(4*uint(i)))&0xF])
	}
}

func clampDigits(n int) int {
	switch {
	case n < 1:
		return 1
	case n > 8:
		return 8
	}
	return n
}
