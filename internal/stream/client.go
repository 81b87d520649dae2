package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Al3xBlack0ut/satelity/internal/metrics"
)

// writeWindow is how long a single SSE write may take before the connection
// is considered dead.
const writeWindow = 30 * time.Second

// client wraps one SSE connection. All writes go through write so every
// frame extends the write deadline and flushes.
type client struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger
}

// write pushes one raw SSE frame and flushes it to the peer. Returns the
// number of bytes written.
func (c *client) write(frame []byte) (int, error) {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeWindow)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}

	n, err := c.w.Write(frame)
	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}
	c.flusher.Flush()
	return n, nil
}

// sendRaw frames pre-marshaled JSON as an SSE data message: "data: {json}\n\n".
func (c *client) sendRaw(data []byte) error {
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)

	n, err := c.write(frame)
	if err != nil {
		return err
	}
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(int64(n))
	return nil
}

// sendJSON marshals v and sends it as an SSE data message.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.sendRaw(data)
}

// sendKeepalive emits an SSE comment (":\n\n"), which clients ignore but
// which keeps intermediaries from closing an idle connection.
func (c *client) sendKeepalive() error {
	n, err := c.write([]byte(":\n\n"))
	if err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	metrics.AddStreamBytes(int64(n))
	return nil
}
