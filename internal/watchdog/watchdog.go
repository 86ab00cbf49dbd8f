// Package watchdog implements the Timeout Watchdog and Guarded Scope: an
// instruction-hook-style deadline enforced over a *lua.LState.
//
// gopher-lua has no C-style per-instruction debug hook; instead its VM
// loop polls an attached context.Context's Done() channel as it
// dispatches instructions and unwinds with an API error the moment that
// context is cancelled. That poll is this package's instruction hook —
// Watchdog.arm attaches a context.WithDeadline context via
// (*lua.LState).SetContext and stores a *HookContext in the engine's Lua
// registry table under a package-private sentinel key, mirroring the
// "tagged registry slot" design described in the spec's design notes.
package watchdog

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ipochto/zug-zug/pkg/zlog"
	"go.uber.org/zap"
)

// InstructionsCount mirrors the original design's configurable hook
// period. gopher-lua's context poll fires on every instruction
// dispatch regardless of period, so this value is carried for API
// fidelity and diagnostics only; it is not separately enforced.
type InstructionsCount int

const (
	// DefaultCheckPeriod is the nominal instruction period.
	DefaultCheckPeriod InstructionsCount = 10_000
	// DefaultLimit is the nominal per-scope time budget.
	DefaultLimit = 5 * time.Millisecond

	// registrySlotKey is the Go analogue of a unique per-type tag
	// address: a package-private string key into the Lua registry
	// table. Key identity only needs to be unique within a process,
	// which a private constant already guarantees.
	registrySlotKey = "__zugzug_watchdog_ctx__"
)

// HookContext is the data a watchdog installs into the engine's
// registry so the instruction poll can decide whether to unwind.
type HookContext struct {
	Deadline time.Time
	Enabled  bool
}

// IsTimedOut reports whether the context is enabled and past its
// deadline.
func (c *HookContext) IsTimedOut() bool {
	return c != nil && c.Enabled && time.Now().After(c.Deadline)
}

// state is the watchdog's own state machine position.
type state int

const (
	detached state = iota
	attached
	armed
)

// Watchdog enforces a wall-clock deadline on script execution. At most
// one Watchdog may be armed against a given *lua.LState at a time.
type Watchdog struct {
	L           *lua.LState
	checkPeriod InstructionsCount
	st          state

	cancel context.CancelFunc
	ctx    *HookContext
}

// New constructs a Watchdog attached to L.
func New(L *lua.LState) *Watchdog {
	w := &Watchdog{checkPeriod: DefaultCheckPeriod}
	w.Attach(L, false)
	return w
}

// Attach binds the watchdog to a *lua.LState. It refuses while Armed
// unless force is set, in which case it disarms first.
func (w *Watchdog) Attach(L *lua.LState, force bool) bool {
	if w.st == armed {
		if !force {
			zlog.Warn("watchdog: attach refused while armed")
			return false
		}
		w.Disarm()
	}
	w.L = L
	w.st = attached
	return true
}

// Detach disarms (if needed) and releases the bound state.
func (w *Watchdog) Detach() {
	w.Disarm()
	w.L = nil
	w.st = detached
}

// ConfigureHook updates the nominal instruction period. Only valid
// while not armed.
func (w *Watchdog) ConfigureHook(period InstructionsCount) bool {
	if w.st == armed {
		return false
	}
	if period <= 0 {
		zlog.Warn("watchdog: rejected non-positive check period", zap.Int("period", int(period)))
		return false
	}
	w.checkPeriod = period
	return true
}

// GetPeriod returns the currently configured instruction period.
func (w *Watchdog) GetPeriod() InstructionsCount { return w.checkPeriod }

// Armed reports whether the watchdog currently has an effective arming.
func (w *Watchdog) Armed() bool { return w.st == armed }

// TimedOut reports whether the current arming's deadline has passed.
func (w *Watchdog) TimedOut() bool { return w.ctx.IsTimedOut() }

// Arm installs a deadline context on the bound *lua.LState. It fails
// without side effects if the watchdog is not attached, is already
// armed, or the registry slot is already occupied (another watchdog is
// sharing this engine).
func (w *Watchdog) Arm(limit time.Duration) bool {
	if w.st != attached {
		zlog.Warn("watchdog: arm refused, not attached")
		return false
	}
	if registrySlotOccupied(w.L) {
		zlog.Warn("watchdog: arm refused, registry slot already occupied")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), limit)
	hookCtx := &HookContext{Deadline: time.Now().Add(limit), Enabled: true}

	placeHookContext(w.L, hookCtx)
	w.L.SetContext(ctx)

	w.cancel = cancel
	w.ctx = hookCtx
	w.st = armed
	return true
}

// Rearm refreshes the deadline in place without touching the registry
// slot.
func (w *Watchdog) Rearm(limit time.Duration) bool {
	if w.st != armed {
		return false
	}
	if w.cancel != nil {
		w.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), limit)
	w.ctx.Deadline = time.Now().Add(limit)
	w.L.SetContext(ctx)
	w.cancel = cancel
	return true
}

// Disarm removes the hook context, cancels the attached deadline
// context and detaches it from the state, and clears the registry
// slot. Idempotent.
func (w *Watchdog) Disarm() {
	if w.st != armed {
		return
	}
	if w.cancel != nil {
		w.cancel()
	}
	w.L.RemoveContext()
	removeHookContext(w.L)
	w.ctx = nil
	w.cancel = nil
	w.st = attached
}

func registrySlotOccupied(L *lua.LState) bool {
	return getHookContext(L) != nil
}

func placeHookContext(L *lua.LState, ctx *HookContext) {
	registry, ok := L.Get(lua.RegistryIndex).(*lua.LTable)
	if !ok {
		return
	}
	registry.RawSetString(registrySlotKey, &lua.LUserData{Value: ctx})
}

func removeHookContext(L *lua.LState) {
	registry, ok := L.Get(lua.RegistryIndex).(*lua.LTable)
	if !ok {
		return
	}
	registry.RawSetString(registrySlotKey, lua.LNil)
}

func getHookContext(L *lua.LState) *HookContext {
	registry, ok := L.Get(lua.RegistryIndex).(*lua.LTable)
	if !ok {
		return nil
	}
	ud, ok := registry.RawGetString(registrySlotKey).(*lua.LUserData)
	if !ok || ud == nil {
		return nil
	}
	ctx, _ := ud.Value.(*HookContext)
	return ctx
}

// TimeoutMessage checks whether err resulted from a watchdog-driven
// context cancellation on L and, if so, returns the spec's canonical
// diagnostic. It returns ("", false) when err is unrelated to a
// timeout.
func TimeoutMessage(L *lua.LState, err error) (string, bool) {
	if err == nil {
		return "", false
	}
	if L.Context() == nil || L.Context().Err() == nil {
		return "", false
	}
	ctx := getHookContext(L)
	if ctx == nil {
		return "Unable to get hook context", true
	}
	if ctx.IsTimedOut() {
		return "Script timed out", true
	}
	return "", false
}
