package frame

import (
	"bytes"
	"io"
	"testing"
)

func TestWriteFrameThenReadFrame(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf)
	body := []byte("hello")
	if err := w.WriteFrame(0x00000004, 0x00000000, 7, body); err != nil {
		t.Fatalf("WriteFrame() error: %s", err)
	}

	r := NewReader(buf)
	header, got, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error: %s", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("ReadFrame() body => %X, expected %X", got, body)
	}
	wantHeader := []byte{0, 0, 0, 21, 0, 0, 0, 4, 0, 0, 0, 0, 0, 0, 0, 7}
	if !bytes.Equal(header[:], wantHeader) {
		t.Errorf("ReadFrame() header => %X, expected %X", header[:], wantHeader)
	}
}

func TestReadFrameEmptyBody(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf)
	if err := w.WriteFrame(0x00000006, 0, 1, nil); err != nil {
		t.Fatalf("WriteFrame() error: %s", err)
	}
	r := NewReader(buf)
	_, body, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error: %s", err)
	}
	if len(body) != 0 {
		t.Errorf("ReadFrame() body => %X, expected empty", body)
	}
}

func TestReadFrameRejectsUndersizedLength(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 10, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1})
	r := NewReader(buf)
	if _, _, err := r.ReadFrame(); err == nil {
		t.Error("ReadFrame() on undersized command_length => nil error, expected failure")
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	header := make([]byte, 16)
	header[0], header[1], header[2], header[3] = 0x00, 0x01, 0x00, 0x01 // 0x00010001
	buf := bytes.NewBuffer(header)
	r := NewReader(buf)
	if _, _, err := r.ReadFrame(); err == nil {
		t.Error("ReadFrame() on oversized command_length => nil error, expected failure")
	}
}

func TestWriteFrameRejectsOversizedBody(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf)
	body := make([]byte, MaxSize)
	if err := w.WriteFrame(1, 0, 1, body); err == nil {
		t.Error("WriteFrame() with oversized body => nil error, expected failure")
	}
}

func TestReadFrameEOFBetweenFrames(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	if _, _, err := r.ReadFrame(); err != io.EOF {
		t.Errorf("ReadFrame() on empty stream => %v, expected io.EOF", err)
	}
}
