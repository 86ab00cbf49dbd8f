package sandbox

import (
	"io"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/ipochto/zug-zug/internal/engine"
	"github.com/ipochto/zug-zug/pkg/zlog"
	"go.uber.org/zap"
)

// installPrimitives wires the six sandbox-visible primitives described
// in spec.md §4.2.2 into the fresh environment table. None of the six
// names is on base's allow-list, so these are the only definitions of
// them a sandbox ever sees.
func (sb *Sandbox) installPrimitives() {
	L := sb.host.State()
	sb.env.RawSetString("print", L.NewFunction(sb.luaPrint))
	sb.env.RawSetString("dofile", L.NewFunction(sb.luaDofile))
	sb.env.RawSetString("safe_dofile", L.NewFunction(sb.luaSafeDofile))
	sb.env.RawSetString("loadfile", L.NewFunction(sb.luaLoadfile))
	sb.env.RawSetString("require", L.NewFunction(sb.luaRequire))
	sb.env.RawSetString("require_file", L.NewFunction(sb.luaRequireFile))
}

// printPrefix is prepended to every line print writes, per spec.md
// §4.2.2/§6.
const printPrefix = "[lua sandbox]:> "

// luaPrint writes its arguments space-separated to the sandbox's sink
// instead of the process's real stdout, the sandboxed replacement for
// base's print. Arguments are stringified through ToStringMeta rather
// than LValue.String so a table with a __tostring metamethod prints
// the same way it would under the real base print.
func (sb *Sandbox) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, n)
	for i := 1; i <= n; i++ {
		parts[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	if sb.fs.sink != nil {
		io.WriteString(sb.fs.sink, printPrefix+strings.Join(parts, " ")+"\n")
	}
	return 0
}

// luaDofile is the unsafe-style dofile: on any failure (policy, load,
// or runtime) it logs and returns a single nil; on success it returns
// the chunk's own results.
func (sb *Sandbox) luaDofile(L *lua.LState) int {
	name := L.CheckString(1)
	path, err := sb.fs.Resolve(name)
	if err != nil {
		zlog.Warn("sandbox: dofile rejected", zap.String("name", name), zap.Error(err))
		L.Push(lua.LNil)
		return 1
	}
	fn, lerr := sb.loadChunk(path)
	if lerr != nil {
		zlog.Warn("sandbox: dofile failed to load", zap.String("path", path), zap.Error(lerr))
		L.Push(lua.LNil)
		return 1
	}
	top := L.GetTop()
	L.Push(fn)
	if cerr := L.PCall(0, lua.MultRet, nil); cerr != nil {
		zlog.Warn("sandbox: dofile execution failed", zap.String("path", path), zap.Error(cerr))
		L.SetTop(top)
		L.Push(lua.LNil)
		return 1
	}
	return L.GetTop() - top
}

// luaSafeDofile is dofile's pcall-flavored sibling: (true, results...)
// on success, (false, message) on any failure.
func (sb *Sandbox) luaSafeDofile(L *lua.LState) int {
	name := L.CheckString(1)
	path, err := sb.fs.Resolve(name)
	if err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	fn, lerr := sb.loadChunk(path)
	if lerr != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(lerr.Error()))
		return 2
	}

	top := L.GetTop()
	L.Push(fn)
	if cerr := L.PCall(0, lua.MultRet, nil); cerr != nil {
		L.SetTop(top)
		L.Push(lua.LFalse)
		L.Push(lua.LString(cerr.Error()))
		return 2
	}

	n := L.GetTop() - top
	results := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = L.Get(top + 1 + i)
	}
	L.SetTop(top)
	L.Push(lua.LTrue)
	for _, v := range results {
		L.Push(v)
	}
	return n + 1
}

// luaLoadfile compiles a chunk bound to this sandbox's environment
// without executing it: (chunk, nil) on success, (nil, message) on any
// failure.
func (sb *Sandbox) luaLoadfile(L *lua.LState) int {
	name := L.CheckString(1)
	path, err := sb.fs.Resolve(name)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	fn, lerr := sb.loadChunk(path)
	if lerr != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(lerr.Error()))
		return 2
	}
	L.Push(fn)
	L.Push(lua.LNil)
	return 2
}

// luaRequire is the script-visible require(name): it never opens a new
// library outside a Custom preset. An already-loaded library's
// projected table is returned regardless of preset; on a Custom
// preset an unloaded-but-known library is loaded on demand.
func (sb *Sandbox) luaRequire(L *lua.LState) int {
	name := L.CheckString(1)
	lib := engine.LibraryID(name)

	if _, known := symbolRules[lib]; !known {
		zlog.Warn("sandbox: require rejected, not a recognized library", zap.String("name", name))
		L.Push(lua.LNil)
		return 1
	}

	if sb.loaded[lib] {
		L.Push(sb.projectedView(lib))
		return 1
	}

	if sb.preset == Custom && sb.loadLibrary(lib) {
		L.Push(sb.projectedView(lib))
		return 1
	}

	zlog.Warn("sandbox: require rejected by capability policy", zap.String("name", name))
	L.Push(lua.LNil)
	return 1
}

// luaRequireFile loads and executes a file for its return value: the
// chunk's first result (or nil if it returned nothing) on success,
// (nil, message) on any failure.
func (sb *Sandbox) luaRequireFile(L *lua.LState) int {
	name := L.CheckString(1)
	path, err := sb.fs.Resolve(name)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	fn, lerr := sb.loadChunk(path)
	if lerr != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(lerr.Error()))
		return 2
	}

	top := L.GetTop()
	L.Push(fn)
	if cerr := L.PCall(0, lua.MultRet, nil); cerr != nil {
		L.SetTop(top)
		L.Push(lua.LNil)
		L.Push(lua.LString(cerr.Error()))
		return 2
	}

	var first lua.LValue = lua.LNil
	if L.GetTop() > top {
		first = L.Get(top + 1)
	}
	L.SetTop(top)
	L.Push(first)
	return 1
}
