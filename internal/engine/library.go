package engine

import (
	lua "github.com/yuin/gopher-lua"
)

// LibraryID is the closed enumeration of the engine's built-in standard
// libraries, per spec.md §3.
type LibraryID string

const (
	LibBase      LibraryID = "base"
	LibBit32     LibraryID = "bit32"
	LibCoroutine LibraryID = "coroutine"
	LibDebug     LibraryID = "debug"
	LibFFI       LibraryID = "ffi"
	LibIO        LibraryID = "io"
	LibJIT       LibraryID = "jit"
	LibMath      LibraryID = "math"
	LibOS        LibraryID = "os"
	LibPackage   LibraryID = "package"
	LibString    LibraryID = "string"
	LibTable     LibraryID = "table"
	LibUTF8      LibraryID = "utf8"
)

// LookupName returns the name under which the library's table is found
// in the engine's true globals; base uses the globals table itself.
func (l LibraryID) LookupName() string {
	if l == LibBase {
		return "_G"
	}
	return string(l)
}

// opener maps a LibraryID to gopher-lua's exported OpenXxx function.
// bit32, ffi, jit, and utf8 have no entry: gopher-lua's Lua-5.1 VM never
// implements LuaJIT's ffi/jit/bit32 extensions or Lua 5.3's separate
// utf8 library, so there is no function to call for them at any layer.
var opener = map[LibraryID]lua.LGFunction{
	LibBase:      lua.OpenBase,
	LibCoroutine: lua.OpenCoroutine,
	LibDebug:     lua.OpenDebug,
	LibIO:        lua.OpenIo,
	LibMath:      lua.OpenMath,
	LibOS:        lua.OpenOs,
	LibPackage:   lua.OpenPackage,
	LibString:    lua.OpenString,
	LibTable:     lua.OpenTable,
}

// Supported reports whether the engine can open this library at all.
func (l LibraryID) Supported() bool {
	_, ok := opener[l]
	return ok
}
