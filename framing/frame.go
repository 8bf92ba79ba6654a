// Package framing splits the raw event stream into newline-terminated
// records and decodes each record into a types.Event.
package framing

import (
	"bytes"
	"errors"
	"fmt"
)

// Record size constants.
const (
	// MaxRecordSize is the largest unterminated record the Reader will
	// buffer (16 MiB). A peer that exceeds it is treated as broken.
	MaxRecordSize = 16 * 1024 * 1024
	// Separator terminates every record on the wire.
	Separator = '\n'
)

// FrameErrorKind classifies framing and decoding errors.
type FrameErrorKind int

const (
	// FrameErrorDecode indicates a record that is not a JSON object.
	FrameErrorDecode FrameErrorKind = iota
	// FrameErrorTooLarge indicates an unterminated record exceeding the limit.
	FrameErrorTooLarge
)

// FrameError represents a framing or decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the error invalidates the stream.
// Decode errors affect one record only; oversized records mean the buffer
// can no longer be trusted.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// IsDecodeError returns true if the error is a per-record decode error.
func IsDecodeError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.Kind == FrameErrorDecode
	}
	return false
}

// Reader accumulates raw bytes and slices complete records off the front.
//
// The buffer always holds exactly the bytes received since the last emitted
// record boundary. Records are emitted only once their terminator has been
// seen, so any split of the input yields the same records.
// A Reader is not safe for concurrent use.
type Reader struct {
	buf     []byte
	maxSize int
}

// NewReader creates a Reader with the default record size limit.
func NewReader() *Reader {
	return &Reader{maxSize: MaxRecordSize}
}

// NewReaderSize creates a Reader that rejects unterminated records larger
// than maxSize bytes. maxSize <= 0 selects MaxRecordSize.
func NewReaderSize(maxSize int) *Reader {
	if maxSize <= 0 {
		maxSize = MaxRecordSize
	}
	return &Reader{maxSize: maxSize}
}

// Feed appends chunk to the buffer.
func (r *Reader) Feed(chunk []byte) {
	r.buf = append(r.buf, chunk...)
}

// Drain returns every complete record currently buffered, in order, and
// removes them (plus their terminators) from the buffer. A trailing '\r'
// is stripped and blank records are skipped. The unterminated remainder is
// kept for the next Feed.
//
// Errors:
//   - *FrameError with Kind=FrameErrorTooLarge: the remainder exceeds the
//     size limit. Records found before the check are still returned.
func (r *Reader) Drain() ([][]byte, error) {
	var records [][]byte
	consumed := 0
	for {
		idx := bytes.IndexByte(r.buf[consumed:], Separator)
		if idx < 0 {
			break
		}
		line := r.buf[consumed : consumed+idx]
		consumed += idx + 1

		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		// Copy out: the buffer's backing array is reused below.
		records = append(records, bytes.Clone(line))
	}

	if consumed > 0 {
		remaining := copy(r.buf, r.buf[consumed:])
		r.buf = r.buf[:remaining]
	}

	if len(r.buf) > r.maxSize {
		size := len(r.buf)
		r.Reset()
		return records, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("unterminated record of %d bytes exceeds maximum %d", size, r.maxSize),
		}
	}

	return records, nil
}

// Buffered returns a copy of the unterminated remainder.
func (r *Reader) Buffered() []byte {
	return bytes.Clone(r.buf)
}

// Len returns the number of buffered bytes.
func (r *Reader) Len() int {
	return len(r.buf)
}

// Reset discards all buffered bytes.
func (r *Reader) Reset() {
	r.buf = r.buf[:0]
}
