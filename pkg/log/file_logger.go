package log

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// FileLogger appends events to a capture file as a CBOR sequence.
// Events that fail to encode are dropped; logging must never take down
// the I/O paths that emit it.
type FileLogger struct {
	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer
}

// NewFileLogger opens (or creates) a capture file for appending.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	return &FileLogger{f: f, buf: bufio.NewWriter(f)}, nil
}

// Log appends the event to the capture file.
func (l *FileLogger) Log(event Event) {
	data, err := MarshalEvent(event)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return
	}
	_, _ = l.buf.Write(data)
}

// Close flushes and closes the capture file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	flushErr := l.buf.Flush()
	closeErr := l.f.Close()
	l.f = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Compile-time interface satisfaction check.
var _ Logger = (*FileLogger)(nil)

// ReadEvents decodes all events from a CBOR-sequence capture stream.
func ReadEvents(r io.Reader) ([]Event, error) {
	dec := decMode.NewDecoder(r)
	var events []Event
	for {
		var e Event
		if err := dec.Decode(&e); err != nil {
			if err == io.EOF {
				return events, nil
			}
			return events, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, e)
	}
}
