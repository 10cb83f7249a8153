package host

import (
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
)

const DefaultBaud = 115200

// OpenSerial opens a serial port at 8N1 without flow control.
func OpenSerial(port string, baud uint) (io.ReadWriteCloser, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	s, err := serial.Open(serialOptions(port, baud))
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	return s, nil
}

func serialOptions(port string, baud uint) serial.OpenOptions {
	return serial.OpenOptions{
		PortName:        port,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	}
}
