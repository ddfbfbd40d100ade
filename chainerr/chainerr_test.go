package chainerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatsWithAndWithoutCause(t *testing.T) {
	plain := New(NotFound, "no such account")
	if got, want := plain.Error(), "not_found: no such account"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	cause := errors.New("boom")
	wrapped := Wrap(InvalidEncoding, "bad varint", cause)
	if got, want := wrapped.Error(), "invalid_encoding: bad varint: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should see through Wrap to the cause")
	}
}

func TestIsMatchesKindThroughWrappingChain(t *testing.T) {
	base := New(InsufficientBalance, "short 5 usd")
	outer := fmt.Errorf("transfer failed: %w", base)

	if !Is(outer, InsufficientBalance) {
		t.Error("Is should unwrap fmt.Errorf's %w chain to find the Kind")
	}
	if Is(outer, NotFound) {
		t.Error("Is should not match an unrelated Kind")
	}
}

func TestIsReturnsFalseForNonChainErr(t *testing.T) {
	if Is(errors.New("plain"), NotFound) {
		t.Error("Is should return false for an error that never carries a chainerr.Error")
	}
	if Is(nil, NotFound) {
		t.Error("Is should return false for a nil error")
	}
}
