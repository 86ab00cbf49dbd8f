// Package alloc implements the Limited Allocator: a byte-accounted,
// sticky-flag memory cap in the shape of a classical Lua lua_Alloc
// callback, (state, ptr, currSize, newSize) -> newPtr.
//
// gopher-lua's VM has no pluggable low-level allocator hook of its own —
// it leans entirely on the Go garbage collector for internal storage —
// so the Limited Allocator is not wired in as a replacement malloc. Instead
// internal/engine charges script source text and file contents against
// Alloc before handing them to gopher-lua, sizes gopher-lua's own
// Options.RegistryMaxSize/CallStackSize from the same limit, and
// internal/sandbox's call path additionally polls runtime.MemStats
// while a chunk is running and charges the heap growth it observes,
// the closest a Go host gets to metering allocations a classical
// lua_Alloc hook would catch directly. See DESIGN.md for the full
// rationale.
package alloc

import (
	"math"
	"sync"

	"github.com/ipochto/zug-zug/pkg/zlog"
	"github.com/ipochto/zug-zug/pkg/zugerr"
	"go.uber.org/zap"
)

// DefaultLimit is a conventional 1 MiB cap for callers that want one.
// NewState does not substitute it: a limit of 0 passed to NewState or
// SetLimit disables the cap.
const DefaultLimit uint64 = 1 << 20 // 1 MiB

// State tracks live byte usage against an optional cap. The zero value
// is a valid, unlimited, empty-usage state.
type State struct {
	mu sync.Mutex

	used  uint64
	limit uint64

	limitReached bool
	overflow     bool
}

// NewState constructs a State with the given limit. A limit of 0
// disables the cap.
func NewState(limit uint64) *State {
	return &State{limit: limit}
}

// Used returns the current accounted byte count.
func (s *State) Used() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Limit returns the current cap; 0 means disabled.
func (s *State) Limit() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// SetLimit updates the cap. A limit of 0 disables it.
func (s *State) SetLimit(limit uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limit = limit
}

// LimitReached reports whether the cap has ever been exceeded since the
// last ResetErrorFlags call.
func (s *State) LimitReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limitReached
}

// Overflow reports whether a size_t-style arithmetic overflow has ever
// occurred since the last ResetErrorFlags call.
func (s *State) Overflow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overflow
}

// ResetErrorFlags clears the sticky limitReached/overflow flags without
// touching used or limit.
func (s *State) ResetErrorFlags() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limitReached = false
	s.overflow = false
}

// isLimitEnabled reports whether the cap is active. Caller holds mu.
func (s *State) isLimitEnabled() bool { return s.limit > 0 }

// Alloc implements the Limited Allocator contract described in §4.3 of
// the spec: alloc(state, ptr, currSize, newSize) -> newPtr, modeled here
// as byte accounting only (ok bool replaces the C pointer return; the
// caller decides what "ptr" means in Go terms).
//
//   - state == nil is a host programming bug: it panics via zugerr.Assertf,
//     matching the HostAssertion class from §7.
//   - had no live allocation (ptr == nil) => currSize is forced to 0.
//   - newSize == 0 is a free: used -= min(used, currSize).
//   - otherwise: usedBase = used - min(used, currSize); reject on
//     overflow or on exceeding a nonzero limit, else commit used = usedBase
//     + newSize.
func Alloc(state *State, hadPtr bool, currSize, newSize uint64) (ok bool) {
	if state == nil {
		zugerr.Assertf("allocator state must not be nil")
		return false
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if !hadPtr {
		currSize = 0
	}

	if newSize == 0 {
		if hadPtr {
			if state.used >= currSize {
				state.used -= currSize
			} else {
				state.used = 0
			}
		}
		return true
	}

	usedBase := uint64(0)
	if state.used >= currSize {
		usedBase = state.used - currSize
	}

	if newSize > math.MaxUint64-usedBase {
		state.overflow = true
		zlog.Warn("lua allocator: arithmetic overflow",
			zap.Uint64("used_base", usedBase), zap.Uint64("requested", newSize))
		return false
	}

	newUsed := usedBase + newSize
	if state.isLimitEnabled() && newUsed > state.limit {
		state.limitReached = true
		zlog.Warn("lua allocator: memory limit reached",
			zap.Uint64("limit", state.limit), zap.Uint64("used", state.used), zap.Uint64("requested_total", newUsed))
		return false
	}

	state.used = newUsed
	return true
}
