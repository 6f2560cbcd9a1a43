package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/internal/protocol"
	"github.com/rafald1/distributed-system/internal/telemetry"
)

// maxLineSize bounds a single inbound line. The harness never sends frames
// anywhere near this large; anything bigger is a protocol violation.
const maxLineSize = 1 << 20

// Sender is the capability to serialize an envelope and append it to a sink.
// The production implementation writes to stdout; tests substitute an
// in-memory router.
type Sender interface {
	Send(msg protocol.Message) error
}

// LineWriter is a Sender that writes one JSON envelope per line.
// It is safe for concurrent use.
type LineWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewLineWriter creates a LineWriter on top of w.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: bufio.NewWriter(w)}
}

// Send serializes msg, appends a newline and flushes. A failure here means
// the outbound stream is broken and is fatal to the caller.
func (lw *LineWriter) Send(msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	lw.mu.Lock()
	defer lw.mu.Unlock()

	if _, err := lw.w.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := lw.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := lw.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush message: %w", err)
	}

	telemetry.MessagesSent.Inc()
	return nil
}

// ReadLoop reads envelopes from r until EOF and passes each to deliver.
// Malformed lines are logged and dropped, never fatal. An I/O error on the
// underlying stream is returned; EOF returns nil.
func ReadLoop(r io.Reader, deliver func(protocol.Message), logger *zap.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg protocol.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			telemetry.MalformedLines.Inc()
			logger.Warn("dropping malformed line", zap.Error(err))
			continue
		}

		telemetry.MessagesReceived.Inc()
		deliver(msg)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read from transport: %w", err)
	}
	return nil
}
