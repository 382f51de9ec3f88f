package wire

import (
	"fmt"
	"strconv"
)

// Field identifiers are tagged types with validating constructors, so a
// value of one of these types is known-valid everywhere past the codec.

// UID is a user identifier: exactly five decimal digits.
type UID string

// ParseUID validates s as a UID.
func ParseUID(s string) (UID, error) {
	if len(s) != MaxUID || !allDigits(s) {
		return "", fmt.Errorf("invalid UID %q", s)
	}
	return UID(s), nil
}

func (u UID) String() string { return string(u) }

// GID is a group identifier in 00..99. Zero is the reserved sentinel that
// requests creation of a new group; it never names a stored group.
type GID int

// GIDCreate is the on-wire "00" sentinel.
const GIDCreate GID = 0

// ParseGID validates s as a two-digit GID.
func ParseGID(s string) (GID, error) {
	if len(s) != MaxGID || !allDigits(s) {
		return 0, fmt.Errorf("invalid GID %q", s)
	}
	n, _ := strconv.Atoi(s)
	return GID(n), nil
}

func (g GID) String() string { return fmt.Sprintf("%02d", int(g)) }

// GName is a group name: 1..24 characters from [A-Za-z0-9_-].
type GName string

// ParseGName validates s as a GName.
func ParseGName(s string) (GName, error) {
	if len(s) == 0 || len(s) > MaxGName {
		return "", fmt.Errorf("invalid GName %q", s)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isDigit(c) && !isLetter(c) && c != '-' && c != '_' {
			return "", fmt.Errorf("invalid GName %q", s)
		}
	}
	return GName(s), nil
}

func (n GName) String() string { return string(n) }

// MID is a message identifier, rendered on the wire as four zero-padded
// decimal digits. MIDs are dense per group starting at 1.
type MID int

// ParseMID validates s as a four-digit MID.
func ParseMID(s string) (MID, error) {
	if len(s) != MaxMID || !allDigits(s) {
		return 0, fmt.Errorf("invalid MID %q", s)
	}
	n, _ := strconv.Atoi(s)
	return MID(n), nil
}

func (m MID) String() string { return fmt.Sprintf("%04d", int(m)) }

// Fname is an attachment filename: [A-Za-z0-9_.-]{1,20} followed by a dot
// and a three-letter extension, 24 characters total at most.
type Fname string

// ParseFname validates s as an Fname.
func ParseFname(s string) (Fname, error) {
	if len(s) < 5 || len(s) > MaxFname {
		return "", fmt.Errorf("invalid Fname %q", s)
	}
	dot := len(s) - 4
	for i := 0; i < dot; i++ {
		c := s[i]
		if !isDigit(c) && !isLetter(c) && c != '-' && c != '_' && c != '.' {
			return "", fmt.Errorf("invalid Fname %q", s)
		}
	}
	if s[dot] != '.' {
		return "", fmt.Errorf("invalid Fname %q", s)
	}
	for i := dot + 1; i < len(s); i++ {
		if !isLetter(s[i]) {
			return "", fmt.Errorf("invalid Fname %q", s)
		}
	}
	return Fname(s), nil
}

func (f Fname) String() string { return string(f) }

// ValidPass reports whether s is a password: exactly eight alphanumerics.
func ValidPass(s string) bool {
	if len(s) != MaxPass {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) && !isLetter(s[i]) {
			return false
		}
	}
	return true
}

// ParseTsize validates s as a text length: 1..3 digits, value 1..240.
func ParseTsize(s string) (int, error) {
	if len(s) == 0 || len(s) > MaxTsize || !allDigits(s) {
		return 0, fmt.Errorf("invalid Tsize %q", s)
	}
	n, _ := strconv.Atoi(s)
	if n < 1 || n > MaxText {
		return 0, fmt.Errorf("Tsize %d out of range", n)
	}
	return n, nil
}

// ParseFsize validates s as an attachment length: 1..10 digits.
func ParseFsize(s string) (int64, error) {
	if len(s) == 0 || len(s) > MaxFsize || !allDigits(s) {
		return 0, fmt.Errorf("invalid Fsize %q", s)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid Fsize %q", s)
	}
	return n, nil
}

// ValidText reports whether b is an acceptable message text body.
func ValidText(b []byte) bool {
	return len(b) >= 1 && len(b) <= MaxText
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return len(s) > 0
}
