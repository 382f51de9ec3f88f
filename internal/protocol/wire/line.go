package wire

import (
	"bytes"
	"fmt"
)

// EncodeLine produces a line frame: "TAG f1 f2 ... fk\n".
// Fields are joined by single spaces; the frame always ends with a newline.
func EncodeLine(tag string, fields ...string) []byte {
	size := len(tag) + 1
	for _, f := range fields {
		size += len(f) + 1
	}

	buf := make([]byte, 0, size)
	buf = append(buf, tag...)
	for _, f := range fields {
		buf = append(buf, ' ')
		buf = append(buf, f...)
	}
	return append(buf, '\n')
}

// DecodeLine splits a line frame into its tag and fields. The frame must end
// with a single newline, use single-space separators, and contain no empty
// fields (so no leading, trailing or repeated spaces).
func DecodeLine(data []byte) (tag string, fields []string, err error) {
	if len(data) == 0 || data[len(data)-1] != '\n' {
		return "", nil, fmt.Errorf("frame not newline-terminated")
	}
	body := data[:len(data)-1]
	if len(body) == 0 {
		return "", nil, fmt.Errorf("empty frame")
	}

	parts := bytes.Split(body, []byte{' '})
	for _, p := range parts {
		if len(p) == 0 {
			return "", nil, fmt.Errorf("malformed separator in frame %q", data)
		}
	}

	tag = string(parts[0])
	if len(parts) > 1 {
		fields = make([]string, len(parts)-1)
		for i, p := range parts[1:] {
			fields[i] = string(p)
		}
	}
	return tag, fields, nil
}
