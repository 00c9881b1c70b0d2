// Package serialmux provides the request/reply channel to the CodeShield board over a
// serial port. Every request is one JSON line and is answered by exactly one JSON line.
// Exchanges from the session and from the admin routes are serialised onto the port.
package serialmux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	ErrWriteFailed  = fmt.Errorf("failed to write to serial port")
	ErrReadTimeout  = errors.New("timed out waiting for serial data")
	ErrReplyTooLong = errors.New("serial reply exceeds maximum length")
	ErrNotReady     = errors.New("board did not report ready")
	ErrClosed       = errors.New("serial connection closed")
)

// maxReplyLen bounds a single reply line. The longest legitimate reply is a
// pinValue report of about sixty bytes.
const maxReplyLen = 256

// Conn is a synchronous request/reply adapter over a serial port.
type Conn struct {
	port SerialPorter
	rd   *bufio.Reader

	// mu serialises exchanges; Close does not take it so a blocked read can be
	// interrupted by closing the port.
	mu        sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an already opened and configured port.
func NewConn(port SerialPorter) *Conn {
	return &Conn{
		port: port,
		rd:   bufio.NewReaderSize(progressReader{port}, maxReplyLen),
	}
}

// progressReader turns a read that returns no data and no error into
// ErrReadTimeout. go.bug.st/serial reports an expired read timeout that way.
type progressReader struct {
	r io.Reader
}

func (p progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n == 0 && err == nil {
		return 0, ErrReadTimeout
	}
	return n, err
}

// AwaitReady reads the handshake line the board prints when the port opens.
func (c *Conn) AwaitReady() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.readReply()
	if err != nil {
		return fmt.Errorf("failed to read handshake: %w", err)
	}
	if !reply.IsReady() {
		return fmt.Errorf("%w: got %q", ErrNotReady, reply.Raw)
	}
	return nil
}

// Exchange writes one request and waits for its reply.
func (c *Conn) Exchange(ctx context.Context, req Request) (Reply, error) {
	line, err := req.Marshal()
	if err != nil {
		return Reply{}, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.ExchangeRaw(ctx, string(line))
}

// ExchangeRaw sends a pre-encoded request line. It is used by the admin routes to
// poke the board by hand.
func (c *Conn) ExchangeRaw(ctx context.Context, line string) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return Reply{}, ErrClosed
	}

	if err := c.writeLine(line); err != nil {
		return Reply{}, err
	}
	reply, err := c.readReply()
	if err != nil {
		return Reply{}, fmt.Errorf("failed to read reply to %s: %w", line, err)
	}
	return reply, nil
}

func (c *Conn) writeLine(line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	n, err := c.port.Write([]byte(line))
	if err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

func (c *Conn) readReply() (Reply, error) {
	line, err := c.rd.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return Reply{}, ErrReplyTooLong
	}
	if err != nil {
		return Reply{}, err
	}
	return ParseReply(string(line)), nil
}

// Close closes the underlying port. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.port.Close()
	})
	return c.closeErr
}
