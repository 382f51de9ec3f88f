package wire

import (
	"strings"
	"testing"
)

func TestParseUID(t *testing.T) {
	valid := []string{"00000", "10000", "99999"}
	for _, s := range valid {
		if _, err := ParseUID(s); err != nil {
			t.Errorf("ParseUID(%q) = %v, want ok", s, err)
		}
	}

	invalid := []string{"", "1", "1234", "123456", "1234a", "12 45", "-1234"}
	for _, s := range invalid {
		if _, err := ParseUID(s); err == nil {
			t.Errorf("ParseUID(%q) succeeded, want error", s)
		}
	}
}

func TestParseGID(t *testing.T) {
	g, err := ParseGID("00")
	if err != nil {
		t.Fatalf("ParseGID(00): %v", err)
	}
	if g != GIDCreate {
		t.Errorf("ParseGID(00) = %v, want the create sentinel", g)
	}

	g, err = ParseGID("07")
	if err != nil {
		t.Fatalf("ParseGID(07): %v", err)
	}
	if g.String() != "07" {
		t.Errorf("GID(7).String() = %q, want 07", g.String())
	}

	for _, s := range []string{"", "7", "100", "ab", "0x"} {
		if _, err := ParseGID(s); err == nil {
			t.Errorf("ParseGID(%q) succeeded, want error", s)
		}
	}
}

func TestParseGName(t *testing.T) {
	valid := []string{"a", "demo", "Group_1", "with-dash", strings.Repeat("x", 24)}
	for _, s := range valid {
		if _, err := ParseGName(s); err != nil {
			t.Errorf("ParseGName(%q) = %v, want ok", s, err)
		}
	}

	invalid := []string{"", strings.Repeat("x", 25), "has space", "dots.bad", "tab\tname"}
	for _, s := range invalid {
		if _, err := ParseGName(s); err == nil {
			t.Errorf("ParseGName(%q) succeeded, want error", s)
		}
	}
}

func TestParseMID(t *testing.T) {
	m, err := ParseMID("0001")
	if err != nil {
		t.Fatalf("ParseMID(0001): %v", err)
	}
	if m != 1 {
		t.Errorf("ParseMID(0001) = %d, want 1", m)
	}
	if MID(42).String() != "0042" {
		t.Errorf("MID(42).String() = %q, want 0042", MID(42).String())
	}

	for _, s := range []string{"", "1", "001", "00001", "00a1"} {
		if _, err := ParseMID(s); err == nil {
			t.Errorf("ParseMID(%q) succeeded, want error", s)
		}
	}
}

func TestParseFname(t *testing.T) {
	valid := []string{"a.txt", "photo-01.png", "My_file.doc", "a.b.c.jpg", "x2345678901234567890.txt"}
	for _, s := range valid {
		if _, err := ParseFname(s); err != nil {
			t.Errorf("ParseFname(%q) = %v, want ok", s, err)
		}
	}

	invalid := []string{
		"",
		".txt",               // empty stem
		"file",               // no extension
		"file.t",             // short extension
		"file.t1t",           // digit in extension
		"file.name.toolong1", // extension with more than 3 letters after last dot is ok only if final 3 are letters; this one has 8
		strings.Repeat("x", 21) + ".txt", // 25 chars total
		"bad name.txt",
	}
	for _, s := range invalid {
		if _, err := ParseFname(s); err == nil {
			t.Errorf("ParseFname(%q) succeeded, want error", s)
		}
	}
}

func TestValidPass(t *testing.T) {
	if !ValidPass("abcdefgh") || !ValidPass("a1b2c3d4") || !ValidPass("ABCDEFGH") {
		t.Error("expected valid passwords to be accepted")
	}
	for _, s := range []string{"", "short", "toolong123", "abcdefg!", "abc defg"} {
		if ValidPass(s) {
			t.Errorf("ValidPass(%q) = true, want false", s)
		}
	}
}

func TestParseTsize(t *testing.T) {
	cases := map[string]bool{
		"1": true, "5": true, "240": true,
		"0": false, "241": false, "999": false, "1000": false, "": false, "a": false,
	}
	for s, ok := range cases {
		_, err := ParseTsize(s)
		if ok && err != nil {
			t.Errorf("ParseTsize(%q) = %v, want ok", s, err)
		}
		if !ok && err == nil {
			t.Errorf("ParseTsize(%q) succeeded, want error", s)
		}
	}
}

func TestParseFsize(t *testing.T) {
	n, err := ParseFsize("1234567890")
	if err != nil {
		t.Fatalf("ParseFsize(10 digits): %v", err)
	}
	if n != 1234567890 {
		t.Errorf("ParseFsize = %d", n)
	}

	for _, s := range []string{"", "12345678901", "12a4"} {
		if _, err := ParseFsize(s); err == nil {
			t.Errorf("ParseFsize(%q) succeeded, want error", s)
		}
	}
}
