package serialmux

import (
	"errors"
	"fmt"
	"io/fs"

	"go.bug.st/serial"
)

// RealPortFactory opens hardware ports with go.bug.st/serial.
type RealPortFactory struct{}

// Open opens the serial device at path.
func (RealPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		var portErr *serial.PortError
		notFound := errors.Is(err, fs.ErrNotExist) ||
			(errors.As(err, &portErr) && portErr.Code() == serial.PortNotFound)
		if notFound {
			return nil, fmt.Errorf("failed to open %s (is this the correct serial port?): %w", path, err)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return port, nil
}

// Dial opens the port, applies the per-byte read timeout, discards anything left
// in the port buffers and waits for the board's ready handshake. The port is
// closed again if any step fails.
func Dial(factory SerialPortFactory, path string, opts PortOptions) (*Conn, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	port, err := factory.Open(path, opts)
	if err != nil {
		return nil, err
	}

	if tp, ok := port.(TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(opts.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	if br, ok := port.(BufferResetter); ok {
		if err := br.ResetInputBuffer(); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to purge input buffer: %w", err)
		}
		if err := br.ResetOutputBuffer(); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to purge output buffer: %w", err)
		}
	}

	conn := NewConn(port)
	if err := conn.AwaitReady(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
