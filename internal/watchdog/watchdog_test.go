package watchdog

import (
	"strings"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"
)

func newTestState(t *testing.T) *lua.LState {
	t.Helper()
	L := lua.NewState()
	lua.OpenBase(L)
	t.Cleanup(L.Close)
	return L
}

func TestWatchdogArmsAndTimesOut(t *testing.T) {
	L := newTestState(t)
	wd := New(L)

	if wd.Armed() {
		t.Fatalf("watchdog should not start armed")
	}

	scope := NewGuardedScope(wd, 5*time.Millisecond)
	defer scope.Close()

	if !wd.Armed() {
		t.Fatalf("expected watchdog to be armed")
	}

	err := L.DoString(`while true do end`)
	if err == nil {
		t.Fatalf("expected the infinite loop to fail")
	}
	msg, isTimeout := TimeoutMessage(L, err)
	if !isTimeout || !strings.Contains(msg, "Script timed out") {
		t.Fatalf("expected a timeout diagnostic, got err=%v msg=%q", err, msg)
	}
}

func TestGuardedScopeRestoresPeriod(t *testing.T) {
	L := newTestState(t)
	wd := New(L)

	const basePeriod = InstructionsCount(5000)
	wd.ConfigureHook(basePeriod)

	wd.Arm(10 * time.Millisecond)
	if wd.GetPeriod() != basePeriod {
		t.Fatalf("period changed unexpectedly before scope")
	}
	wd.Disarm()

	scope := NewGuardedScope(wd, 10*time.Millisecond)
	if wd.ConfigureHook(20000) {
		t.Fatalf("expected ConfigureHook to be refused while the scope has the watchdog armed")
	}
	if wd.GetPeriod() != basePeriod {
		t.Fatalf("period changed inside scope: got %d, want %d", wd.GetPeriod(), basePeriod)
	}
	scope.Close()
	if wd.GetPeriod() != basePeriod {
		t.Fatalf("period after scope = %d, want %d", wd.GetPeriod(), basePeriod)
	}
}

func TestSecondaryGuardedScopeIsInert(t *testing.T) {
	L := newTestState(t)
	wd := New(L)

	outer := NewGuardedScope(wd, 50*time.Millisecond)
	defer outer.Close()

	inner := NewGuardedScope(wd, 5*time.Millisecond)
	if !inner.disabled {
		t.Fatalf("expected a secondary scope on an armed watchdog to be disabled")
	}
	inner.Close() // no-op, must not disarm the outer scope

	if !wd.Armed() {
		t.Fatalf("outer scope should still be armed")
	}
}

func TestDisarmIsIdempotentAndClearsRegistry(t *testing.T) {
	L := newTestState(t)
	wd := New(L)

	scope := NewGuardedScope(wd, 5*time.Millisecond)
	scope.Close()
	scope.Close() // idempotent

	if wd.Armed() {
		t.Fatalf("expected watchdog disarmed")
	}
	if registrySlotOccupied(L) {
		t.Fatalf("expected registry slot cleared after disarm")
	}
}

func TestWatchdogReassignsToNewState(t *testing.T) {
	L1 := newTestState(t)
	wd := New(L1)

	scope1 := NewGuardedScope(wd, 5*time.Millisecond)
	err := L1.DoString(`while true do end`)
	if err == nil {
		t.Fatalf("expected timeout on first state")
	}
	scope1.Close()

	L2 := newTestState(t)
	wd.Attach(L2, false)

	scope2 := NewGuardedScope(wd, 5*time.Millisecond)
	defer scope2.Close()

	err2 := L2.DoString(`while true do end`)
	if err2 == nil {
		t.Fatalf("expected timeout on reassigned state")
	}
	msg, isTimeout := TimeoutMessage(L2, err2)
	if !isTimeout || !strings.Contains(msg, "Script timed out") {
		t.Fatalf("expected timeout diagnostic on reassigned state, got %v / %q", err2, msg)
	}
}
