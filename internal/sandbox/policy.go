package sandbox

import "github.com/ipochto/zug-zug/internal/engine"

// Preset is the Capability Preset, per spec.md §3.
type Preset int

const (
	// Core admits no libraries at all.
	Core Preset = iota
	// Minimal admits base and table.
	Minimal
	// Complete admits base, coroutine, math, os, string, and table.
	Complete
	// Custom starts empty and grows only through explicit Require
	// calls.
	Custom
)

func (p Preset) String() string {
	switch p {
	case Core:
		return "Core"
	case Minimal:
		return "Minimal"
	case Complete:
		return "Complete"
	case Custom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// presetLibraries is the fixed library bundle per non-Custom preset, in
// load order.
var presetLibraries = map[Preset][]engine.LibraryID{
	Core:     {},
	Minimal:  {engine.LibBase, engine.LibTable},
	Complete: {engine.LibBase, engine.LibCoroutine, engine.LibMath, engine.LibOS, engine.LibString, engine.LibTable},
	Custom:   {},
}

// SymbolRule is a per-library policy: either an explicit allow-list, or
// allow-everything-except a restricted list.
type SymbolRule struct {
	AllowAllExcept bool
	Allowed        []string
	Restricted     []string
}

// symbolRules is the fixed policy table from spec.md §3, reproduced
// verbatim. debug, io, package, ffi, jit, bit32, and utf8 have no entry
// here and are therefore never loadable into any sandbox regardless of
// preset — ffi/jit/bit32/utf8 additionally have no gopher-lua
// implementation to begin with (see internal/engine/library.go).
var symbolRules = map[engine.LibraryID]SymbolRule{
	engine.LibBase: {
		Allowed: []string{
			"assert", "error", "ipairs", "next", "pairs", "pcall",
			"select", "tonumber", "tostring", "type", "unpack",
			"_VERSION", "xpcall",
		},
	},
	engine.LibCoroutine: {AllowAllExcept: true},
	engine.LibTable:     {AllowAllExcept: true},
	engine.LibMath: {
		AllowAllExcept: true,
		Restricted:     []string{"random", "randomseed"},
	},
	engine.LibOS: {
		Allowed: []string{"clock", "difftime", "time"},
	},
	engine.LibString: {
		AllowAllExcept: true,
		Restricted:     []string{"dump"},
	},
}
