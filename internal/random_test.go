package internal

import (
	"testing"
)

func TestChallengeIDRoundTrip(t *testing.T) {
	cid, err := NewChallengeID()
	if err != nil {
		t.Fatalf("NewChallengeID failed: %v", err)
	}

	s := cid.String()
	if len(s) != 22 {
		t.Fatalf("expected 22-char base64url token, got %d chars: %q", len(s), s)
	}

	parsed, err := ParseChallengeID(s)
	if err != nil {
		t.Fatalf("ParseChallengeID failed: %v", err)
	}
	if parsed != cid {
		t.Fatal("round trip changed the challenge id")
	}
}

func TestParseChallengeIDRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "not-base64!!", "c2hvcnQ", "dG9vbG9uZ3Rvb2xvbmd0b29sb25ndG9vbG9uZw"} {
		if _, err := ParseChallengeID(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestNewOTPDigits(t *testing.T) {
	for _, digits := range []int{6, 8, 10} {
		otp, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d) failed: %v", digits, err)
		}
		if len(otp) != digits {
			t.Fatalf("NewOTP(%d) returned %d chars", digits, len(otp))
		}
		for _, c := range otp {
			if c < '0' || c > '9' {
				t.Fatalf("NewOTP(%d) returned non-digit %q", digits, otp)
			}
		}
	}

	for _, digits := range []int{0, 5, 11} {
		if _, err := NewOTP(digits); err == nil {
			t.Fatalf("expected error for %d digits", digits)
		}
	}
}

func TestHashCodeIsStable(t *testing.T) {
	a := HashCode("123456")
	b := HashCode("123456")
	c := HashCode("123457")

	if a != b {
		t.Fatal("same input must hash identically")
	}
	if a == c {
		t.Fatal("different inputs must not collide trivially")
	}
}

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "al***@example.com"},
		{"te@example.com", "t***@example.com"},
		{"x@example.com", "x***@example.com"},
		{"no-at-sign", "***"},
		{"@example.com", "***"},
		{"", "***"},
	}
	for _, tc := range cases {
		if got := MaskEmail(tc.in); got != tc.want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
