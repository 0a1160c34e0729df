package spec

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCodes(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindUser, 1},
		{KindValidationFailed, 1},
		{KindLockContention, 1},
		{KindNotFound, 1},
		{KindConsultation, 1},
		{KindToolNotFound, 1},
		{KindIO, 2},
		{KindInternal, 2},
	}
	for _, tt := range tests {
		if got := tt.kind.ExitCode(); got != tt.want {
			t.Errorf("%s.ExitCode() = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestWrapPreservesKindAndChain(t *testing.T) {
	base := fmt.Errorf("disk full")
	err := Wrap(KindIO, base, "saving %s", "demo")

	if !IsKind(err, KindIO) {
		t.Error("IsKind(KindIO) = false")
	}
	if IsKind(err, KindUser) {
		t.Error("IsKind(KindUser) = true for an IO error")
	}
	if !errors.Is(err, base) {
		t.Error("wrapped cause lost from the chain")
	}
	if KindOf(err) != KindIO {
		t.Errorf("KindOf = %s, want %s", KindOf(err), KindIO)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(fmt.Errorf("boom")); got != KindInternal {
		t.Errorf("KindOf(plain error) = %s, want %s", got, KindInternal)
	}
}

func TestWithDetails(t *testing.T) {
	err := E(KindValidationFailed, "bad spec").WithDetails(map[string]any{"spec_id": "x"})
	var se *Error
	if !errors.As(err, &se) {
		t.Fatal("not a *Error")
	}
	if se.Details["spec_id"] != "x" {
		t.Errorf("details = %v", se.Details)
	}
}

func TestVersionWindow(t *testing.T) {
	tests := []struct {
		v       string
		readOK  bool
		writeOK bool
	}{
		{"", true, true},
		{"1.0", true, true},
		{"1.5", true, true},
		{"2.0", true, true},
		{"0.9", false, true},
		{"2.1", false, false},
		{"3.0", false, false},
		{"not-a-version", false, false},
	}
	for _, tt := range tests {
		if err := CheckReadVersion(tt.v); (err == nil) != tt.readOK {
			t.Errorf("CheckReadVersion(%q) error = %v, want ok=%v", tt.v, err, tt.readOK)
		}
		if err := CheckWriteVersion(tt.v); (err == nil) != tt.writeOK {
			t.Errorf("CheckWriteVersion(%q) error = %v, want ok=%v", tt.v, err, tt.writeOK)
		}
	}
}
