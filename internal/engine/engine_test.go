package engine

import (
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestRequireLoadsLibraryIntoTrueGlobals(t *testing.T) {
	h := New()
	defer h.Close()

	if h.State().GetGlobal("assert") != lua.LNil {
		t.Fatalf("expected assert to be unset before Require")
	}
	if err := h.Require(LibBase); err != nil {
		t.Fatalf("Require(base): %v", err)
	}
	if h.State().GetGlobal("assert") == lua.LNil {
		t.Fatalf("expected assert to be set after Require(base)")
	}
}

func TestRequireIsIdempotent(t *testing.T) {
	h := New()
	defer h.Close()

	if err := h.Require(LibString); err != nil {
		t.Fatalf("Require(string): %v", err)
	}
	if err := h.Require(LibString); err != nil {
		t.Fatalf("second Require(string) should also succeed: %v", err)
	}
}

func TestRequireRejectsUnsupportedLibraries(t *testing.T) {
	h := New()
	defer h.Close()

	for _, lib := range []LibraryID{LibBit32, LibFFI, LibJIT, LibUTF8} {
		if err := h.Require(lib); err != ErrLibraryUnsupported {
			t.Fatalf("Require(%s): expected ErrLibraryUnsupported, got %v", lib, err)
		}
	}
}

func TestNewLimitedAccountsBytes(t *testing.T) {
	h := NewLimited(64)
	defer h.Close()

	if err := h.AccountBytes(32); err != nil {
		t.Fatalf("unexpected error accounting 32 bytes: %v", err)
	}
	if h.AllocState().Used() != 32 {
		t.Fatalf("expected 32 bytes used, got %d", h.AllocState().Used())
	}
	if err := h.AccountBytes(64); err == nil {
		t.Fatalf("expected a limit error when exceeding the cap")
	}
}

func TestAccountBytesNoopWithoutLimiter(t *testing.T) {
	h := New()
	defer h.Close()

	if err := h.AccountBytes(1 << 30); err != nil {
		t.Fatalf("expected no-op success without a limiter, got %v", err)
	}
	if h.AllocState() != nil {
		t.Fatalf("expected no allocator state on an unlimited Host")
	}
}

func TestSetMemoryLimitFailsWithoutLimiter(t *testing.T) {
	h := New()
	defer h.Close()

	if err := h.SetMemoryLimit(10); err == nil {
		t.Fatalf("expected SetMemoryLimit to fail on an unlimited Host")
	}
}

func TestResetClearsOpenedLibrariesButKeepsAllocatorUsage(t *testing.T) {
	h := NewLimited(1024)
	defer h.Close()

	if err := h.Require(LibBase); err != nil {
		t.Fatalf("Require(base): %v", err)
	}
	if err := h.AccountBytes(100); err != nil {
		t.Fatalf("AccountBytes: %v", err)
	}

	h.Reset()

	if h.State().GetGlobal("assert") != lua.LNil {
		t.Fatalf("expected a fresh engine instance with no libraries opened after Reset")
	}
	if h.AllocState().Used() != 100 {
		t.Fatalf("expected allocator usage to carry over Reset, got %d", h.AllocState().Used())
	}
}
