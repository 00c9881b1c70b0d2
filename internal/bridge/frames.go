package bridge

import (
	"bytes"
	"fmt"
	"io"
)

// PolicyRequest is the Flash cross-domain policy probe the client sends before any
// JSON traffic. It arrives as a read of its own and is null- rather than
// newline-terminated.
const PolicyRequest = "<policy-file-request/>\x00"

// readBufferSize is the size of a single read from the client transport.
const readBufferSize = 5000

// FrameKind distinguishes the policy handshake from ordinary JSON lines.
type FrameKind int

const (
	MessageFrame FrameKind = iota
	HandshakeFrame
)

func (k FrameKind) String() string {
	switch k {
	case MessageFrame:
		return "message"
	case HandshakeFrame:
		return "handshake"
	default:
		return fmt.Sprintf("FrameKind(%d)", int(k))
	}
}

// Frame is one unit of client input.
type Frame struct {
	Kind FrameKind
	// Text is the message without its newline. Empty for handshakes.
	Text string
}

// FrameReader splits the client byte stream into newline-delimited messages.
// Bytes after the last newline are kept until the next read completes them.
// A read whose bytes are exactly PolicyRequest yields a handshake frame and is
// never added to the line buffer.
type FrameReader struct {
	r     io.Reader
	buf   []byte
	tail  []byte
	queue []Frame
	err   error
}

// NewFrameReader returns a FrameReader reading from r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:   r,
		buf: make([]byte, readBufferSize),
	}
}

// Next returns the next frame in arrival order. It returns io.EOF once the
// transport reports end of stream and every complete message has been returned;
// an unterminated tail is dropped at that point.
func (f *FrameReader) Next() (Frame, error) {
	for len(f.queue) == 0 {
		if f.err != nil {
			return Frame{}, f.err
		}
		n, err := f.r.Read(f.buf)
		if n > 0 {
			f.push(f.buf[:n])
		}
		switch {
		case err != nil:
			f.err = err
		case n == 0:
			f.err = io.EOF
		}
	}

	fr := f.queue[0]
	f.queue = f.queue[1:]
	return fr, nil
}

func (f *FrameReader) push(chunk []byte) {
	if string(chunk) == PolicyRequest {
		f.queue = append(f.queue, Frame{Kind: HandshakeFrame})
		return
	}

	f.tail = append(f.tail, chunk...)
	for {
		i := bytes.IndexByte(f.tail, '\n')
		if i < 0 {
			break
		}
		f.queue = append(f.queue, Frame{Kind: MessageFrame, Text: string(f.tail[:i])})
		f.tail = f.tail[i+1:]
	}
	// compact so a long session does not pin the first backing array
	if len(f.tail) == 0 {
		f.tail = nil
	}
}

// Buffered returns the incomplete tail held for the next read.
func (f *FrameReader) Buffered() string {
	return string(f.tail)
}
