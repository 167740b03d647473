// Package tinycompress writes zlib streams without pulling compress/flate
// into the firmware image. Data is emitted as stored (uncompressed) DEFLATE
// blocks, which any zlib reader accepts.
package tinycompress

import (
	"errors"
	"hash/adler32"
	"io"
)

// maxStoredBlock is the largest payload a stored DEFLATE block can carry
const maxStoredBlock = 0xFFFF

// ErrClosed is returned when writing to a closed Writer
var ErrClosed = errors.New("tinycompress: write after close")

// Writer buffers input and emits a zlib stream on Close
type Writer struct {
	output io.Writer
	buf    []byte
	closed bool
}

// NewWriter creates a Writer. The buffer is sized up front so that Write
// does not allocate for a typical firmware dictionary.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		output: w,
		buf:    make([]byte, 0, 4096),
	}
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close writes the header, stored blocks and Adler-32 trailer
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	// CMF=0x78 (deflate, 32K window), FLG=0x9C (default level, check bits)
	if _, err := w.output.Write([]byte{0x78, 0x9C}); err != nil {
		return err
	}

	data := w.buf
	for {
		n := len(data)
		final := byte(1)
		if n > maxStoredBlock {
			n = maxStoredBlock
			final = 0
		}
		length := uint16(n)
		nlength := ^length
		hdr := []byte{final, byte(length), byte(length >> 8), byte(nlength), byte(nlength >> 8)}
		if _, err := w.output.Write(hdr); err != nil {
			return err
		}
		if _, err := w.output.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
		if final == 1 {
			break
		}
	}

	sum := adler32.Checksum(w.buf)
	_, err := w.output.Write([]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)})
	return err
}

// Compress returns data wrapped in a zlib stream
func Compress(data []byte) []byte {
	out := &sliceWriter{buf: make([]byte, 0, len(data)+11+5*(len(data)/maxStoredBlock))}
	w := NewWriter(out)
	w.buf = data
	_ = w.Close()
	return out.buf
}

type sliceWriter struct {
	buf []byte
}

func (s *sliceWriter) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}
