package host

import (
	"fmt"

	tty "github.com/mattn/go-tty"
)

// TTY is a terminal device node, e.g. one side of a pty pair that a
// terminal emulator or screen is attached to.
type TTY struct {
	t       *tty.TTY
	restore func() error
}

func OpenTTY(path string) (*TTY, error) {
	t, err := tty.OpenDevice(path)
	if err != nil {
		return nil, fmt.Errorf("open tty %s: %w", path, err)
	}
	restore, err := t.Raw()
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("tty %s raw mode: %w", path, err)
	}
	return &TTY{t: t, restore: restore}, nil
}

func (d *TTY) Read(p []byte) (int, error)  { return d.t.Input().Read(p) }
func (d *TTY) Write(p []byte) (int, error) { return d.t.Output().Write(p) }

func (d *TTY) Close() error {
	rerr := d.restore()
	if err := d.t.Close(); err != nil {
		return err
	}
	return rerr
}
