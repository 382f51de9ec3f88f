package wire

import (
	"errors"
	"fmt"
	"io"
)

// ErrWordTooLong is returned by ReadWord when more than maxLen bytes arrive
// before a separator.
var ErrWordTooLong = errors.New("word exceeds field limit")

// FieldReader reads the context-sensitive TCP request grammar from a byte
// stream. The grammar cannot be tokenized generically: a declared length
// precedes each variable payload, and the separator after the text ('\n' vs
// ' ') decides whether an attachment follows. Handlers therefore drive the
// reader field by field.
//
// All primitives loop until their length requirement is met or the peer
// closes, so partial reads from the network never surface to handlers.
type FieldReader struct {
	r io.Reader
}

// NewFieldReader wraps r.
func NewFieldReader(r io.Reader) *FieldReader {
	return &FieldReader{r: r}
}

// ReadFixed reads exactly n bytes.
func (fr *FieldReader) ReadFixed(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		return nil, fmt.Errorf("read %d bytes: %w", n, err)
	}
	return buf, nil
}

// ReadByte reads the single next byte. Used for the separator that follows
// a length-delimited payload.
func (fr *FieldReader) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(fr.r, b[:]); err != nil {
		return 0, fmt.Errorf("read separator: %w", err)
	}
	return b[0], nil
}

// ReadWord reads bytes one at a time until a space or newline is consumed,
// and returns the word with the terminator that ended it. The terminator is
// consumed but excluded from the word. Reading byte-by-byte is what keeps
// the reader from over-running into the next field: the stream has no frame
// lengths for words, only separators.
//
// Fails with ErrWordTooLong if more than maxLen bytes precede the separator.
func (fr *FieldReader) ReadWord(maxLen int) (word string, sep byte, err error) {
	buf := make([]byte, 0, maxLen)
	var b [1]byte

	for {
		if _, err := io.ReadFull(fr.r, b[:]); err != nil {
			return "", 0, fmt.Errorf("read word: %w", err)
		}
		if b[0] == ' ' || b[0] == '\n' {
			return string(buf), b[0], nil
		}
		if len(buf) == maxLen {
			return "", 0, ErrWordTooLong
		}
		buf = append(buf, b[0])
	}
}

// DiscardLine consumes input through the next newline, giving up after max
// bytes or on any read error. Handlers flush the remainder of a malformed
// request with it so the failure reply is not lost to a connection reset.
func (fr *FieldReader) DiscardLine(max int) {
	var b [1]byte
	for i := 0; i < max; i++ {
		if _, err := io.ReadFull(fr.r, b[:]); err != nil || b[0] == '\n' {
			return
		}
	}
}

// Payload exposes the next n bytes of the stream as a reader, for callers
// that sink a declared-length body themselves (attachment to disk).
func (fr *FieldReader) Payload(n int64) io.Reader {
	return io.LimitReader(fr.r, n)
}

// ReadBytes copies exactly n bytes from the stream into sink. Used for the
// message text (declared Tsize) and the attachment body (declared Fsize).
func (fr *FieldReader) ReadBytes(n int64, sink io.Writer) error {
	copied, err := io.CopyN(sink, fr.r, n)
	if err != nil {
		return fmt.Errorf("read %d byte payload (got %d): %w", n, copied, err)
	}
	return nil
}
