package sim

import (
	"io"
	"sync"
	"time"
)

const uartRxValid = 1 << 31

// UART models the MiniSoC serial port. Transmitted bytes go to the output
// writer. Received bytes are queued by the host with Feed.
//
// A uart_data read reports the head of the receive queue with bit 31 set.
// The byte is consumed by the read that follows the one which first
// reported it, so firmware polls the status bit and then reads the data.
type UART struct {
	mu     sync.Mutex
	rx     []byte
	armed  bool
	clkdiv uint32
	out    io.Writer

	// IdleWait is slept on every read that finds the receive queue empty.
	IdleWait time.Duration
}

func NewUART(out io.Writer) *UART {
	if out == nil {
		out = io.Discard
	}
	return &UART{out: out}
}

// Feed queues bytes as if they had arrived on the line.
func (u *UART) Feed(p ...byte) {
	u.mu.Lock()
	u.rx = append(u.rx, p...)
	u.mu.Unlock()
}

// Pending returns the number of received bytes not yet consumed.
func (u *UART) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.rx)
}

func (u *UART) ClkDiv() uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.clkdiv
}

func (u *UART) setClkDiv(v uint32) {
	u.mu.Lock()
	u.clkdiv = v
	u.mu.Unlock()
}

// Tx transmits one byte.
func (u *UART) Tx(b uint8) {
	u.mu.Lock()
	out := u.out
	u.mu.Unlock()
	out.Write([]byte{b})
}

func (u *UART) readData() uint32 {
	u.mu.Lock()
	if len(u.rx) == 0 {
		u.armed = false
		wait := u.IdleWait
		u.mu.Unlock()
		if wait > 0 {
			time.Sleep(wait)
		}
		return 0
	}
	v := uartRxValid | uint32(u.rx[0])
	if u.armed {
		u.rx = u.rx[1:]
		u.armed = false
	} else {
		u.armed = true
	}
	u.mu.Unlock()
	return v
}
