// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/banshee-data/codeshield-bridge/internal/monitoring"
)

// LocalRequest creates a test HTTP request that appears to come from
// localhost, which the /debug/ routes require.
func LocalRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// LogSink collects formatted log lines.
type LogSink struct {
	mu    sync.Mutex
	lines []string
}

// Logf has the signature of monitoring.Logf.
func (s *LogSink) Logf(format string, v ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, fmt.Sprintf(format, v...))
}

// Lines returns a copy of everything logged so far.
func (s *LogSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// CaptureLogs redirects the monitoring logger into a LogSink until the test
// ends.
func CaptureLogs(t *testing.T) *LogSink {
	t.Helper()
	sink := &LogSink{}
	prev := monitoring.Logf
	monitoring.SetLogger(sink.Logf)
	t.Cleanup(func() { monitoring.SetLogger(prev) })
	return sink
}
