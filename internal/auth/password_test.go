package auth

import (
	"errors"
	"testing"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("unexpected hash error: %v", err)
	}
	if hash == "correct horse battery" {
		t.Fatalf("hash must not be the plaintext")
	}
	if err := ComparePassword(hash, "correct horse battery"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
}

func TestComparePasswordMismatch(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("unexpected hash error: %v", err)
	}
	if err := ComparePassword(hash, "wrong guess"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected mismatch error, got %v", err)
	}
}
