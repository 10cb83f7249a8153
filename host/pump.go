// Package host connects the simulated SoC's UART to an operator transport:
// the controlling terminal, a tty device, or a serial port.
package host

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/tomb.v2"
)

// EscapeByte is Ctrl-], the default key that detaches the operator.
const EscapeByte = 0x1d

// Receiver accepts bytes arriving from the operator.
type Receiver interface {
	Feed(p ...byte)
}

// Pump copies bytes from a transport into a Receiver on its own goroutine.
type Pump struct {
	t      tomb.Tomb
	rw     io.ReadWriteCloser
	rx     Receiver
	escape byte

	escaped  chan struct{}
	escapeMu sync.Once

	log *log.Logger
}

// Start begins pumping. If escape is non-zero that byte is never delivered;
// it closes the Escaped channel instead. logger may be nil.
func Start(rw io.ReadWriteCloser, rx Receiver, escape byte, logger *log.Logger) *Pump {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	p := &Pump{
		rw:      rw,
		rx:      rx,
		escape:  escape,
		escaped: make(chan struct{}),
		log:     logger,
	}
	p.t.Go(p.loop)
	return p
}

func (p *Pump) loop() error {
	buf := make([]byte, 64)
	for {
		n, err := p.rw.Read(buf)
		if n > 0 {
			p.deliver(buf[:n])
		}
		if err == nil {
			continue
		}
		select {
		case <-p.t.Dying():
			return nil
		default:
		}
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
			p.log.Printf("transport closed")
			return nil
		}
		return fmt.Errorf("read transport: %w", err)
	}
}

func (p *Pump) deliver(b []byte) {
	if p.escape != 0 {
		kept := b[:0]
		for _, c := range b {
			if c == p.escape {
				p.escapeMu.Do(func() { close(p.escaped) })
				continue
			}
			kept = append(kept, c)
		}
		b = kept
	}
	if len(b) > 0 {
		p.rx.Feed(b...)
	}
}

// Escaped is closed when the escape byte is received.
func (p *Pump) Escaped() <-chan struct{} { return p.escaped }

// Dead is closed when the pump goroutine has exited.
func (p *Pump) Dead() <-chan struct{} { return p.t.Dead() }

// Err returns the reason the pump stopped, if any.
func (p *Pump) Err() error {
	if err := p.t.Err(); err != tomb.ErrStillAlive {
		return err
	}
	return nil
}

// Stop closes the transport and waits for the pump goroutine.
func (p *Pump) Stop() error {
	p.t.Kill(nil)
	cerr := p.rw.Close()
	if err := p.t.Wait(); err != nil {
		return err
	}
	return cerr
}
