//go:build unix

package host

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Console is stdin and stdout. A terminal is switched to raw mode; piped
// input is used as is.
type Console struct {
	in    *os.File
	out   *os.File
	fd    int
	state *term.State
}

// OpenConsole takes over stdin and stdout. The firmware does its own echo
// and line endings, so a terminal is switched to raw mode until Close.
func OpenConsole() (*Console, error) {
	fd := int(os.Stdin.Fd())
	c := &Console{out: os.Stdout, fd: fd}
	if term.IsTerminal(fd) {
		st, err := term.MakeRaw(fd)
		if err != nil {
			return nil, fmt.Errorf("console raw mode: %w", err)
		}
		c.state = st
	}

	// A non-blocking descriptor gets a pollable *os.File, so Close can
	// interrupt a pending Read.
	if err := unix.SetNonblock(fd, true); err != nil {
		c.restore()
		return nil, fmt.Errorf("console nonblocking: %w", err)
	}
	c.in = os.NewFile(uintptr(fd), "/dev/stdin")
	return c, nil
}

func (c *Console) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *Console) Write(p []byte) (int, error) { return c.out.Write(p) }

// Raw reports whether the terminal was switched to raw mode.
func (c *Console) Raw() bool { return c.state != nil }

func (c *Console) restore() error {
	if c.state == nil {
		return nil
	}
	err := term.Restore(c.fd, c.state)
	c.state = nil
	return err
}

func (c *Console) Close() error {
	_ = unix.SetNonblock(c.fd, false)
	err := c.restore()
	c.in.Close()
	return err
}
