package log

import (
	"bufio"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends protocol events to a trace file as CBOR records.
// Writes are buffered and flushed per event, so a live trace can be
// followed with the Reader while the engine runs. Safe for concurrent
// use.
type FileLogger struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	enc    *cbor.Encoder
	closed bool
}

// NewFileLogger opens path for appending, creating it with mode 0644
// when absent.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	return &FileLogger{
		file: f,
		buf:  buf,
		enc:  traceEnc.NewEncoder(buf),
	}, nil
}

// Log appends one event. An event without a timestamp is stamped with
// the current time. Encode and write errors are swallowed; tracing
// never takes the engine down.
func (l *FileLogger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if err := l.enc.Encode(event); err != nil {
		return
	}
	_ = l.buf.Flush()
}

// Close flushes and closes the trace file. Log calls after Close are
// dropped. Safe to call more than once.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	_ = l.buf.Flush()
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
