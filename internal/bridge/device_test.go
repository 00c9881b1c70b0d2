package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/banshee-data/codeshield-bridge/internal/serialmux"
)

// fakeDevice records every request and answers with {} unless reply says
// otherwise.
type fakeDevice struct {
	mu       sync.Mutex
	requests []string
	reply    func(req serialmux.Request) string
	err      error
	closed   bool
}

func (d *fakeDevice) Exchange(ctx context.Context, req serialmux.Request) (serialmux.Reply, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return serialmux.Reply{}, serialmux.ErrClosed
	}
	d.requests = append(d.requests, req.String())
	if d.err != nil {
		return serialmux.Reply{}, d.err
	}
	line := "{}"
	if d.reply != nil {
		line = d.reply(req)
	}
	return serialmux.ParseReply(line), nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.requests...)
}

func (d *fakeDevice) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = nil
}

// echoReadings answers reads with a pinValue for the requested pin, using the
// encoder pin for encoder reads.
func echoReadings(value int) func(serialmux.Request) string {
	return func(req serialmux.Request) string {
		if req.Read == nil {
			return "{}"
		}
		pin := 14
		typ := "digital"
		if req.Read.Pin != nil {
			pin = *req.Read.Pin
			typ = string(req.Read.Type)
		}
		return fmt.Sprintf(`{"pinValue":{"pin":%d,"value":%d,"type":%q}}`, pin, value, typ)
	}
}

func writeLine(pin int, typ string, value int) string {
	return fmt.Sprintf(`{"write":{"pin":%d,"type":%q,"value":%d}}`, pin, typ, value)
}
