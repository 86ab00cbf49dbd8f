package watchdog

import "time"

// GuardedScope is a move-only, RAII-style scoped arming of a Watchdog.
// Construction arms the watchdog for the given duration; if arming
// fails the scope becomes disabled (inert) rather than erroring, in
// keeping with the spec's "secondary GuardedScope on an armed watchdog
// is constructed disabled" rule. Close disarms on all paths — callers
// are expected to `defer scope.Close()`.
type GuardedScope struct {
	wd       *Watchdog
	disabled bool
}

// NewGuardedScope arms wd for limit and returns the scope. A failed arm
// (wd not attached, already armed, or registry slot occupied) yields a
// disabled scope rather than an error.
func NewGuardedScope(wd *Watchdog, limit time.Duration) *GuardedScope {
	s := &GuardedScope{wd: wd}
	if !wd.Arm(limit) {
		s.disabled = true
	}
	return s
}

// Close disarms the underlying watchdog unless the scope is disabled or
// has already been moved from. Safe to call multiple times.
func (s *GuardedScope) Close() {
	if s == nil || s.disabled {
		return
	}
	s.wd.Disarm()
	s.disabled = true
}

// Rearm disarms and re-arms with a fresh duration. Returns false if the
// scope is disabled.
func (s *GuardedScope) Rearm(limit time.Duration) bool {
	if s.disabled {
		return false
	}
	s.wd.Disarm()
	if !s.wd.Arm(limit) {
		s.disabled = true
		return false
	}
	return true
}

// TimedOut reports whether the guarded watchdog's deadline has passed.
// A disabled scope never reports a timeout.
func (s *GuardedScope) TimedOut() bool {
	return !s.disabled && s.wd.TimedOut()
}

// Move transfers ownership of the arming to a new GuardedScope value
// and disables the receiver, the Go analogue of a C++ move
// constructor. Callers that want move semantics should replace their
// variable with the returned scope and discard the original.
func (s *GuardedScope) Move() *GuardedScope {
	moved := &GuardedScope{wd: s.wd, disabled: s.disabled}
	s.disabled = true
	s.wd = nil
	return moved
}
