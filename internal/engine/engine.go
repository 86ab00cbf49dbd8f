// Package engine implements the Interpreter Host (IH): ownership of one
// gopher-lua engine instance, its opened standard libraries, an optional
// Limited Allocator, and a shared Timeout Watchdog factory.
package engine

import (
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ipochto/zug-zug/internal/alloc"
	"github.com/ipochto/zug-zug/internal/watchdog"
	"github.com/ipochto/zug-zug/pkg/zugerr"
)

// registryMaxSizePerKiB is how many gopher-lua registry slots a Limited
// Allocator's byte budget buys, used to size Options.RegistryMaxSize so
// the VM's own internal growth stays roughly proportional to the cap —
// see DESIGN.md for why this is the closest gopher-lua equivalent to a
// real lua_Alloc ceiling.
const registryMaxSizePerKiB = 8

// callStackBytesPerFrame approximates how many bytes of VM call-stack
// bookkeeping one Lua call frame costs, used to size
// Options.CallStackSize proportionally to the same byte budget.
const callStackBytesPerFrame = 4096

// ErrLibraryUnsupported is returned by Require for bit32, ffi, jit, and
// utf8 — libraries the spec enumerates but gopher-lua's VM never
// implements.
var ErrLibraryUnsupported = fmt.Errorf("engine: library has no gopher-lua implementation")

// Host owns one engine instance plus the bookkeeping the spec assigns
// to the Interpreter Host layer.
type Host struct {
	state   *lua.LState
	opened  map[LibraryID]bool
	allocSt *alloc.State // nil unless constructed with NewLimited
	wd      *watchdog.Watchdog
}

// New constructs a Host with gopher-lua's default (unlimited) Go-GC-
// backed allocation. SkipOpenLibs is set deliberately: gopher-lua's
// NewState opens every standard library by default, which would make
// Require a no-op and defeat the whole opened-on-demand model the
// spec requires.
func New() *Host {
	h := &Host{
		state:  lua.NewState(lua.Options{SkipOpenLibs: true}),
		opened: make(map[LibraryID]bool),
	}
	h.wd = watchdog.New(h.state)
	return h
}

// NewLimited constructs a Host guarded by a Limited Allocator with the
// given byte cap. A limit of 0 disables the cap but still marks the
// Host as "constructed with a limiter" for SetMemoryLimit purposes.
func NewLimited(limit uint64) *Host {
	h := &Host{
		allocSt: alloc.NewState(limit),
		opened:  make(map[LibraryID]bool),
	}
	h.state = newLimitedState(limit)
	h.wd = watchdog.New(h.state)
	return h
}

func newLimitedState(limit uint64) *lua.LState {
	opts := lua.Options{SkipOpenLibs: true}
	if limit > 0 {
		if slots := int(limit / 1024 * registryMaxSizePerKiB); slots > 0 {
			opts.RegistryMaxSize = slots
		}
		if frames := int(limit / callStackBytesPerFrame); frames > 0 {
			opts.CallStackSize = frames
		}
	}
	return lua.NewState(opts)
}

// State returns the underlying gopher-lua state. Exposed for the
// sandbox package, which needs direct access to build environments and
// install intercepted primitives.
func (h *Host) State() *lua.LState { return h.state }

// AllocState returns the Host's Limited Allocator state, or nil if the
// Host was constructed with New instead of NewLimited.
func (h *Host) AllocState() *alloc.State { return h.allocSt }

// AccountBytes routes a host-controlled byte count (script source,
// file contents, heap growth sampled during a protected call) through
// the Limited Allocator. It is a
// no-op success when the Host has no allocator.
func (h *Host) AccountBytes(n int) error {
	if h.allocSt == nil || n <= 0 {
		return nil
	}
	if !alloc.Alloc(h.allocSt, false, 0, uint64(n)) {
		if h.allocSt.Overflow() {
			return zugerr.New(zugerr.AllocatorError, "allocator arithmetic overflow")
		}
		return zugerr.New(zugerr.AllocatorError, "memory limit reached")
	}
	return nil
}

// Require opens the named standard library in the true engine globals
// exactly once; subsequent calls are no-ops. Returns
// ErrLibraryUnsupported for bit32/ffi/jit/utf8.
func (h *Host) Require(lib LibraryID) error {
	if h.opened[lib] {
		return nil
	}
	open, ok := opener[lib]
	if !ok {
		return ErrLibraryUnsupported
	}
	h.state.Push(h.state.NewFunction(open))
	h.state.Push(lua.LString(lib.LookupName()))
	h.state.Call(1, 0)
	h.opened[lib] = true
	return nil
}

// Reset destroys and recreates the engine instance. A Limited
// Allocator's Used/Limit are preserved across the recreation so
// accounting stays continuous; the set of opened libraries resets to
// empty.
func (h *Host) Reset() {
	wasLimited := h.allocSt != nil
	var limit uint64
	if wasLimited {
		limit = h.allocSt.Limit()
	}

	h.state.Close()

	if wasLimited {
		h.state = newLimitedState(limit)
		// Used carries over unchanged; only the engine instance and
		// the opened-library bookkeeping are fresh.
	} else {
		h.state = lua.NewState(lua.Options{SkipOpenLibs: true})
	}
	h.opened = make(map[LibraryID]bool)
	h.wd.Attach(h.state, true)
}

// SetMemoryLimit updates the active Limited Allocator's cap. Fails if
// the Host was constructed without one.
func (h *Host) SetMemoryLimit(limit uint64) error {
	if h.allocSt == nil {
		return zugerr.New(zugerr.ConfigError, "host was not constructed with a memory limit")
	}
	h.allocSt.SetLimit(limit)
	return nil
}

// MakeGuardedScope delegates to the shared watchdog, arming it for the
// given duration.
func (h *Host) MakeGuardedScope(limit time.Duration) *watchdog.GuardedScope {
	return watchdog.NewGuardedScope(h.wd, limit)
}

// Watchdog exposes the shared Timeout Watchdog directly, for sandboxes
// that need finer control than MakeGuardedScope.
func (h *Host) Watchdog() *watchdog.Watchdog { return h.wd }

// Close releases the underlying engine instance.
func (h *Host) Close() {
	h.wd.Detach()
	h.state.Close()
}
