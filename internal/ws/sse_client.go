package ws

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// SSEClient streams Server-Sent Events over an HTTP response writer. Every
// write carries a deadline so a reader that stops draining cannot stall the
// hub goroutine.
type SSEClient struct {
	mu     sync.Mutex
	writer http.ResponseWriter
	rc     *http.ResponseController
	event  string
	log    *slog.Logger
	closed bool
	last   time.Time
}

// NewSSEClient builds an SSE client instance. When event is non-empty every
// frame carries it as the event name.
func NewSSEClient(w http.ResponseWriter, event string, logger *slog.Logger) *SSEClient {
	return &SSEClient{writer: w, rc: http.NewResponseController(w), event: event, log: logger, last: time.Now().UTC()}
}

// Send emits a data event to the SSE stream.
func (c *SSEClient) Send(payload []byte) error {
	if c.event != "" {
		return c.write("sse send failed", "event: %s\ndata: %s\n\n", c.event, payload)
	}
	return c.write("sse send failed", "data: %s\n\n", payload)
}

// Heartbeat emits a comment frame to keep the connection alive.
func (c *SSEClient) Heartbeat() error {
	return c.write("sse heartbeat failed", ": ping\n\n")
}

func (c *SSEClient) write(failure, format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeWait)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		c.closed = true
		return err
	}
	_, err := fmt.Fprintf(c.writer, format, args...)
	if err == nil {
		err = c.rc.Flush()
	}
	if err != nil {
		c.closed = true
		c.log.Warn(failure, "error", err)
		return err
	}
	c.last = time.Now().UTC()
	return nil
}

// Close marks the stream as closed.
func (c *SSEClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Closed reports whether the stream stopped accepting frames.
func (c *SSEClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LastActivity reports the timestamp of the most recent successful write.
func (c *SSEClient) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
