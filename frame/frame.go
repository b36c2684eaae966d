// Package frame implements the length-prefixed framing SMPP v3.4 uses
// on the wire: every PDU starts with a four byte command_length that
// counts itself, so a frame is exactly command_length bytes including
// its own header.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MinSize is the smallest legal command_length: a bare 16 byte header.
const MinSize = 16

// MaxSize is the largest command_length this package will read or
// write, matching SMPP v3.4's practical upper bound for a single PDU.
const MaxSize = 65536

// Reader reads one size-bounded frame at a time from the underlying
// stream. Each call to ReadFrame blocks until a full frame (or an
// error) is available; a Reader is not safe for concurrent use.
type Reader struct {
	r io.Reader
}

// NewReader wraps r for frame-at-a-time reading.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFrame reads command_length from the stream, validates it against
// [MinSize, MaxSize], and returns the frame's 16 byte header and its
// remaining body. Returns io.EOF only when the stream closes exactly
// between frames.
func (fr *Reader) ReadFrame() (header [16]byte, body []byte, err error) {
	if _, err = io.ReadFull(fr.r, header[:]); err != nil {
		return header, nil, err
	}
	length := binary.BigEndian.Uint32(header[:4])
	if length < MinSize {
		return header, nil, fmt.Errorf("smpp/frame: command_length %d under lower limit %d", length, MinSize)
	}
	if length > MaxSize {
		return header, nil, fmt.Errorf("smpp/frame: command_length %d over upper limit %d", length, MaxSize)
	}
	if length == MinSize {
		return header, nil, nil
	}
	body = make([]byte, length-MinSize)
	if _, err = io.ReadFull(fr.r, body); err != nil {
		return header, nil, fmt.Errorf("smpp/frame: short read of pdu body: %w", err)
	}
	return header, body, nil
}

// Writer writes one size-bounded frame at a time to the underlying
// stream. WriteFrame performs exactly one Write call per frame so a
// partial write never interleaves two PDUs on a shared connection. A
// Writer is not safe for concurrent use; callers serialize writes
// themselves (Session does this with its mutex).
type Writer struct {
	w io.Writer
}

// NewWriter wraps w for frame-at-a-time writing.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame assembles a header for commandID/status/seq around body
// and writes the whole frame in a single Write call.
func (fw *Writer) WriteFrame(commandID, status, seq uint32, body []byte) error {
	length := len(body) + MinSize
	if length > MaxSize {
		return fmt.Errorf("smpp/frame: encoded command_length %d exceeds limit %d", length, MaxSize)
	}
	buf := make([]byte, length)
	binary.BigEndian.PutUint32(buf[0:4], uint32(length))
	binary.BigEndian.PutUint32(buf[4:8], commandID)
	binary.BigEndian.PutUint32(buf[8:12], status)
	binary.BigEndian.PutUint32(buf[12:16], seq)
	copy(buf[16:], body)
	_, err := fw.w.Write(buf)
	return err
}
