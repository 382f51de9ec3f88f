package wire

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestReadFixed(t *testing.T) {
	fr := NewFieldReader(strings.NewReader("PST rest"))

	head, err := fr.ReadFixed(TCPHeaderLen)
	if err != nil {
		t.Fatalf("ReadFixed: %v", err)
	}
	if string(head) != "PST " {
		t.Errorf("ReadFixed = %q, want %q", head, "PST ")
	}
}

func TestReadFixedShortStream(t *testing.T) {
	fr := NewFieldReader(strings.NewReader("PS"))
	if _, err := fr.ReadFixed(TCPHeaderLen); err == nil {
		t.Fatal("ReadFixed on short stream succeeded, want error")
	}
}

func TestReadWord(t *testing.T) {
	fr := NewFieldReader(strings.NewReader("10000 01\nrest"))

	word, sep, err := fr.ReadWord(MaxUID)
	if err != nil {
		t.Fatalf("ReadWord: %v", err)
	}
	if word != "10000" || sep != ' ' {
		t.Errorf("ReadWord = %q %q", word, sep)
	}

	word, sep, err = fr.ReadWord(MaxGID)
	if err != nil {
		t.Fatalf("ReadWord: %v", err)
	}
	if word != "01" || sep != '\n' {
		t.Errorf("ReadWord = %q %q", word, sep)
	}

	// The reader must not have consumed past the newline.
	rest, err := fr.ReadFixed(4)
	if err != nil {
		t.Fatalf("ReadFixed: %v", err)
	}
	if string(rest) != "rest" {
		t.Errorf("stream position off, next bytes %q", rest)
	}
}

func TestReadWordTooLong(t *testing.T) {
	fr := NewFieldReader(strings.NewReader("123456 "))
	if _, _, err := fr.ReadWord(MaxUID); !errors.Is(err, ErrWordTooLong) {
		t.Fatalf("ReadWord = %v, want ErrWordTooLong", err)
	}
}

func TestDiscardLine(t *testing.T) {
	fr := NewFieldReader(strings.NewReader("tail of bad request\nOK \n"))

	fr.DiscardLine(64)
	word, sep, err := fr.ReadWord(2)
	if err != nil {
		t.Fatalf("ReadWord after discard: %v", err)
	}
	if word != "OK" || sep != ' ' {
		t.Errorf("ReadWord after discard = %q %q", word, sep)
	}
}

func TestDiscardLineCapped(t *testing.T) {
	fr := NewFieldReader(strings.NewReader("abcdef"))

	fr.DiscardLine(3)
	b, err := fr.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte after capped discard: %v", err)
	}
	if b != 'd' {
		t.Errorf("ReadByte after capped discard = %q, want 'd'", b)
	}
}

func TestReadWordExactLimit(t *testing.T) {
	fr := NewFieldReader(strings.NewReader("12345 "))
	word, sep, err := fr.ReadWord(MaxUID)
	if err != nil {
		t.Fatalf("ReadWord: %v", err)
	}
	if word != "12345" || sep != ' ' {
		t.Errorf("ReadWord = %q %q", word, sep)
	}
}

func TestReadWordPeerCloses(t *testing.T) {
	fr := NewFieldReader(strings.NewReader("123"))
	if _, _, err := fr.ReadWord(MaxUID); err == nil {
		t.Fatal("ReadWord on truncated stream succeeded, want error")
	}
}

func TestReadBytes(t *testing.T) {
	payload := "hello world payload"
	fr := NewFieldReader(strings.NewReader(payload + " trailing"))

	var sink bytes.Buffer
	if err := fr.ReadBytes(int64(len(payload)), &sink); err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if sink.String() != payload {
		t.Errorf("ReadBytes = %q", sink.String())
	}

	sep, err := fr.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	if sep != ' ' {
		t.Errorf("next byte = %q, want space", sep)
	}
}

func TestReadBytesTruncated(t *testing.T) {
	fr := NewFieldReader(strings.NewReader("short"))
	var sink bytes.Buffer
	if err := fr.ReadBytes(100, &sink); err == nil {
		t.Fatal("ReadBytes past EOF succeeded, want error")
	}
}

// The reader must tolerate a transport that delivers one byte per read, as
// a TCP stream may.
func TestReaderPartialReads(t *testing.T) {
	stream := "PST 10000 01 5 hello\n"
	fr := NewFieldReader(iotest.OneByteReader(strings.NewReader(stream)))

	head, err := fr.ReadFixed(TCPHeaderLen)
	if err != nil {
		t.Fatalf("ReadFixed: %v", err)
	}
	if string(head) != "PST " {
		t.Fatalf("header = %q", head)
	}

	for _, want := range []string{"10000", "01", "5"} {
		word, _, err := fr.ReadWord(MaxUID)
		if err != nil {
			t.Fatalf("ReadWord: %v", err)
		}
		if word != want {
			t.Errorf("ReadWord = %q, want %q", word, want)
		}
	}

	var text bytes.Buffer
	if err := fr.ReadBytes(5, &text); err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if text.String() != "hello" {
		t.Errorf("text = %q", text.String())
	}

	sep, err := fr.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	if sep != '\n' {
		t.Errorf("separator = %q, want newline", sep)
	}

	if _, err := fr.ReadByte(); !errors.Is(err, io.EOF) {
		t.Errorf("read past frame = %v, want EOF", err)
	}
}
