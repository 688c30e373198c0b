package session

import "testing"

func TestNewCodeUsesUnambiguousAlphabet(t *testing.T) {
	for i := 0; i < 500; i++ {
		code := NewCode()
		if !ValidCode(code) {
			t.Fatalf("generated invalid code %q", code)
		}
	}
}

func TestValidCode(t *testing.T) {
	cases := map[string]bool{
		"ABC234":  true,
		"abc234":  false,
		"ABC23":   false,
		"ABC2345": false,
		"AB0234":  false,
		"ABO234":  false,
		"AB1234":  false,
		"ABI234":  false,
	}
	for code, want := range cases {
		if got := ValidCode(code); got != want {
			t.Fatalf("ValidCode(%q)=%v, want %v", code, got, want)
		}
	}
	if got := NormalizeCode(" abc234 "); got != "ABC234" {
		t.Fatalf("unexpected normalized code %q", got)
	}
}
