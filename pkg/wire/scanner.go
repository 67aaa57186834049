package wire

// DefaultMaxLineLength bounds the scanner buffer. A well-formed WMP line
// is under 200 bytes; anything larger is garbage and is discarded.
const DefaultMaxLineLength = 1024

// LineScanner splits a byte stream into protocol lines.
//
// A line ends at the first CR or LF byte; a CRLF pair counts as a single
// terminator. Bytes after the last terminator stay buffered until the
// next Push, so lines may arrive split across any number of deliveries.
// Empty lines (including the LF half of a CRLF) are not emitted.
type LineScanner struct {
	buf     []byte
	maxLine int
	lastCR  bool
}

// NewLineScanner creates a scanner with the default line length bound.
func NewLineScanner() *LineScanner {
	return &LineScanner{maxLine: DefaultMaxLineLength}
}

// NewLineScannerWithLimit creates a scanner with a custom line length bound.
func NewLineScannerWithLimit(maxLine int) *LineScanner {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &LineScanner{maxLine: maxLine}
}

// Push feeds received bytes into the scanner and returns the complete
// lines they terminate, in arrival order.
func (s *LineScanner) Push(data []byte) []string {
	var lines []string

	for _, b := range data {
		switch b {
		case '\r':
			lines = s.emit(lines)
			s.lastCR = true
		case '\n':
			if !s.lastCR {
				lines = s.emit(lines)
			}
			s.lastCR = false
		default:
			s.lastCR = false
			if len(s.buf) < s.maxLine {
				s.buf = append(s.buf, b)
			}
			// Over-length bytes are dropped; the line is emitted
			// truncated at the next terminator and will fail parsing.
		}
	}

	return lines
}

// emit appends the buffered line, if any, and clears the buffer.
func (s *LineScanner) emit(lines []string) []string {
	if len(s.buf) == 0 {
		return lines
	}
	lines = append(lines, string(s.buf))
	s.buf = s.buf[:0]
	return lines
}

// Pending returns the number of buffered bytes awaiting a terminator.
func (s *LineScanner) Pending() int {
	return len(s.buf)
}

// Reset discards any buffered partial line. Call after a reconnect so a
// partial line from the old session cannot prefix the new stream.
func (s *LineScanner) Reset() {
	s.buf = s.buf[:0]
	s.lastCR = false
}
