// Package sandbox implements the Sandbox (SB) safety envelope: a
// capability-restricted, filesystem-restricted execution environment
// layered on top of one internal/engine.Host. Each Sandbox owns a
// private first-class function environment (a *lua.LTable assigned as
// every loaded chunk's Env), the gopher-lua analogue of setfenv-based
// sandboxing used by classical embeddings — see spec.md §4.2 and
// original_source/src/scripts/lua/runtime.hpp.
package sandbox

import (
	"io"
	"os"
	"runtime"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ipochto/zug-zug/internal/engine"
	"github.com/ipochto/zug-zug/internal/watchdog"
	"github.com/ipochto/zug-zug/pkg/zugerr"
)

// Result is the outcome of a protected top-level run. A Sandbox never
// panics a caller out of Run/RunFile; every failure — load error,
// runtime error, policy rejection, timeout — surfaces here.
type Result struct {
	Values []lua.LValue
	Err    error
}

// Valid reports whether the run completed without error.
func (r Result) Valid() bool { return r.Err == nil }

// Sandbox is one capability- and filesystem-restricted execution
// environment sharing a Host's engine instance.
type Sandbox struct {
	host   *engine.Host
	preset Preset
	fs     FilesystemPolicy

	env    *lua.LTable
	loaded map[engine.LibraryID]bool
	order  []engine.LibraryID
}

// New constructs a Sandbox against host, with the given preset, an
// optional filesystem root/allow-list (root=="" disables filesystem
// access entirely), and a sink for the sandboxed print primitive
// (nil discards output).
func New(host *engine.Host, preset Preset, root string, allowed []string, sink io.Writer) *Sandbox {
	sb := &Sandbox{
		host:   host,
		preset: preset,
		loaded: make(map[engine.LibraryID]bool),
	}
	sb.fs.sink = sink
	sb.fs.SetPaths(root, allowed)
	sb.Reset(false)
	return sb
}

// Preset returns the sandbox's capability preset.
func (sb *Sandbox) Preset() Preset { return sb.preset }

// AllowScriptPath admits one additional filesystem path beyond the
// original allow-list. Returns false (silently) if the sandbox was
// constructed without a filesystem root.
func (sb *Sandbox) AllowScriptPath(path string) bool {
	return sb.fs.Allow(path)
}

// Require attempts to load lib into a Custom-preset sandbox. Non-
// Custom presets are fixed at construction time and this is always a
// no-op returning false for them, per spec.md §4.2.
func (sb *Sandbox) Require(lib engine.LibraryID) bool {
	if sb.preset != Custom {
		return false
	}
	return sb.loadLibrary(lib)
}

// Get reads a key out of the sandbox's environment table.
func (sb *Sandbox) Get(key string) lua.LValue { return sb.env.RawGetString(key) }

// Set writes a key into the sandbox's environment table, for host code
// that wants to inject bindings (callback functions, config tables)
// before running a script.
func (sb *Sandbox) Set(key string, v lua.LValue) { sb.env.RawSetString(key, v) }

// MakeGuardedScope delegates to the shared Host watchdog.
func (sb *Sandbox) MakeGuardedScope(limit time.Duration) *watchdog.GuardedScope {
	return sb.host.MakeGuardedScope(limit)
}

// Reset rebuilds the sandbox's environment table from scratch and
// reloads libraries: the preset's fixed bundle if nothing had been
// loaded yet, or the exact set that was loaded before the reset
// (including anything added via Require under a Custom preset) — see
// invariant 4 in spec.md §8. collectGarbage additionally runs a Go GC
// cycle, this engine's analogue of a classical full collection.
func (sb *Sandbox) Reset(collectGarbage bool) {
	env := sb.host.State().NewTable()
	env.RawSetString("_G", env)
	sb.env = env

	toLoad := sb.order
	if len(toLoad) == 0 {
		toLoad = presetLibraries[sb.preset]
	}
	sb.loaded = make(map[engine.LibraryID]bool)
	sb.order = nil
	for _, lib := range toLoad {
		sb.loadLibrary(lib)
	}
	sb.installPrimitives()

	if collectGarbage {
		runtime.GC()
	}
}

// loadLibrary opens lib in the true engine globals (idempotent) and
// projects its allowed surface into the sandbox environment.
func (sb *Sandbox) loadLibrary(lib engine.LibraryID) bool {
	rule, ok := symbolRules[lib]
	if !ok {
		return false
	}
	if err := sb.host.Require(lib); err != nil {
		return false
	}
	sb.projectLibrary(lib, rule)
	if !sb.loaded[lib] {
		sb.loaded[lib] = true
		sb.order = append(sb.order, lib)
	}
	return true
}

// projectLibrary copies the admitted symbols of lib's true table into
// the sandbox's environment, per spec.md §4.2.1. base is projected
// directly into env (it has no separate subtable in real Lua either);
// every other library gets a fresh subtable under its lookup name so
// later true-global mutations never leak back into the sandbox.
func (sb *Sandbox) projectLibrary(lib engine.LibraryID, rule SymbolRule) {
	L := sb.host.State()
	lookup := lib.LookupName()

	var src *lua.LTable
	if lib == engine.LibBase {
		g, ok := L.Get(lua.GlobalsIndex).(*lua.LTable)
		if !ok {
			return
		}
		src = g
	} else {
		t, ok := L.GetGlobal(lookup).(*lua.LTable)
		if !ok {
			return
		}
		src = t
	}

	dst := sb.env
	if lib != engine.LibBase {
		dst = L.NewTable()
		sb.env.RawSetString(lookup, dst)
	}

	if rule.AllowAllExcept {
		src.ForEach(func(k, v lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				dst.RawSetString(string(ks), v)
			}
		})
		for _, name := range rule.Restricted {
			dst.RawSetString(name, lua.LNil)
		}
		return
	}
	for _, name := range rule.Allowed {
		dst.RawSetString(name, src.RawGetString(name))
	}
}

// projectedView returns the sandbox-visible table for an already-loaded
// library, for the script-visible require() primitive.
func (sb *Sandbox) projectedView(lib engine.LibraryID) lua.LValue {
	if lib == engine.LibBase {
		return sb.env
	}
	return sb.env.RawGetString(lib.LookupName())
}

// Run compiles and executes text as a standalone chunk bound to this
// sandbox's environment, under one protected call. Never panics. The
// source text itself is charged against the Host's Limited Allocator
// before compilation, same as RunFile charges a file's size.
func (sb *Sandbox) Run(text string) Result {
	if err := sb.host.AccountBytes(len(text)); err != nil {
		return Result{Err: err}
	}
	fn, err := sb.host.State().LoadString(text)
	if err != nil {
		return Result{Err: zugerr.Wrap(err, zugerr.LoadError)}
	}
	fn.Env = sb.env
	return sb.call(fn)
}

// RunFile resolves path through the filesystem policy, then compiles
// and executes it the same way as Run.
func (sb *Sandbox) RunFile(path string) Result {
	resolved, err := sb.fs.Resolve(path)
	if err != nil {
		return Result{Err: err}
	}
	if info, statErr := os.Stat(resolved); statErr == nil {
		if acctErr := sb.host.AccountBytes(int(info.Size())); acctErr != nil {
			return Result{Err: acctErr}
		}
	}
	fn, lerr := sb.loadChunk(resolved)
	if lerr != nil {
		return Result{Err: zugerr.Wrap(lerr, zugerr.LoadError)}
	}
	return sb.call(fn)
}

func (sb *Sandbox) loadChunk(path string) (*lua.LFunction, error) {
	fn, err := sb.host.State().LoadFile(path)
	if err != nil {
		return nil, err
	}
	fn.Env = sb.env
	return fn, nil
}

func (sb *Sandbox) call(fn *lua.LFunction) Result {
	L := sb.host.State()
	top := L.GetTop()

	stopMonitor := sb.startMemoryMonitor(L)
	L.Push(fn)
	err := L.PCall(0, lua.MultRet, nil)
	limitReached := stopMonitor()

	if err != nil {
		if limitReached {
			return Result{Err: zugerr.New(zugerr.AllocatorError, "memory limit reached")}
		}
		if msg, timedOut := watchdog.TimeoutMessage(L, err); timedOut {
			return Result{Err: zugerr.New(zugerr.RuntimeError, msg)}
		}
		return Result{Err: zugerr.Wrap(err, zugerr.RuntimeError)}
	}
	n := L.GetTop() - top
	values := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		values[i] = L.Get(top + 1 + i)
	}
	L.SetTop(top)
	return Result{Values: values}
}
