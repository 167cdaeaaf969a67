package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestFramerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	fr := NewFrameReader(&buf)

	messages := [][]byte{
		[]byte("a"),
		[]byte("hello world"),
		bytes.Repeat([]byte{0xAB}, 1024),
	}
	for _, msg := range messages {
		if err := fw.WriteFrame(msg); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	for i, want := range messages {
		got, err := fr.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %q, want %q", i, got, want)
		}
	}
	if _, err := fr.ReadFrame(); err != io.EOF {
		t.Errorf("ReadFrame at end = %v, want io.EOF", err)
	}
}

func TestWriteFrameRejectsEmpty(t *testing.T) {
	fw := NewFrameWriter(&bytes.Buffer{})
	if err := fw.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("err = %v, want ErrMessageEmpty", err)
	}
}

func TestWriteFrameRejectsTooLarge(t *testing.T) {
	fw := NewFrameWriterWithMaxSize(&bytes.Buffer{}, 8)
	if err := fw.WriteFrame(make([]byte, 9)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("err = %v, want ErrMessageTooLarge", err)
	}
}

func TestReadFrameRejectsOversizedPrefix(t *testing.T) {
	var buf bytes.Buffer
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], 1<<20)
	buf.Write(prefix[:])

	fr := NewFrameReaderWithMaxSize(&buf, 1024)
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("err = %v, want ErrMessageTooLarge", err)
	}
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(make([]byte, LengthPrefixSize))

	fr := NewFrameReader(&buf)
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("err = %v, want ErrMessageEmpty", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], 16)
	buf.Write(prefix[:])
	buf.Write([]byte("short"))

	fr := NewFrameReader(&buf)
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrFrameTruncated) {
		t.Errorf("err = %v, want ErrFrameTruncated", err)
	}

	// Truncated inside the prefix itself.
	var buf2 bytes.Buffer
	buf2.Write([]byte{0x00, 0x00})
	fr2 := NewFrameReader(&buf2)
	if _, err := fr2.ReadFrame(); !errors.Is(err, ErrFrameTruncated) {
		t.Errorf("err = %v, want ErrFrameTruncated", err)
	}
}

func TestFrameSize(t *testing.T) {
	if got := FrameSize(100); got != 104 {
		t.Errorf("FrameSize(100) = %d, want 104", got)
	}
}
