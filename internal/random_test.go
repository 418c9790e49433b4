package internal

import (
	"strings"
	"testing"
)

func TestNewIDSortable(t *testing.T) {
	a := NewID()
	b := NewID()
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("unexpected id lengths %q %q", a, b)
	}
	if !(a < b) {
		t.Fatalf("ids not monotonic: %s >= %s", a, b)
	}
}

func TestResetTokenRoundTrip(t *testing.T) {
	tok, err := NewResetToken()
	if err != nil {
		t.Fatalf("NewResetToken: %v", err)
	}
	if err := ParseResetToken(tok); err != nil {
		t.Fatalf("ParseResetToken(%q): %v", tok, err)
	}
	h := HashToken(tok)
	if len(h) != 64 || strings.Contains(h, tok) {
		t.Fatalf("unexpected digest %q", h)
	}
	if HashToken(tok) != h {
		t.Fatal("digest must be deterministic")
	}
}

// FuzzParseResetToken feeds arbitrary strings to the reset token parser.
// Goal: no panics; only 32-byte base64url values are accepted.
func FuzzParseResetToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("!!!not-base64!!!")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	if tok, err := NewResetToken(); err == nil {
		f.Add(tok)
	}

	f.Fuzz(func(t *testing.T, token string) {
		if err := ParseResetToken(token); err == nil && len(token) != 43 {
			t.Fatalf("accepted token of length %d", len(token))
		}
	})
}
