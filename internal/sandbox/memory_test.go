package sandbox

import (
	"testing"
	"time"

	"github.com/ipochto/zug-zug/internal/engine"
	"github.com/ipochto/zug-zug/pkg/zugerr"
)

func TestSandboxRunEnforcesMemoryLimit(t *testing.T) {
	host := engine.NewLimited(64 * 1024)
	t.Cleanup(host.Close)

	sb := New(host, Minimal, "", nil, nil)

	// A GuardedScope is a safety net, not the mechanism under test: the
	// memory monitor should cancel the run well before this fires.
	scope := sb.MakeGuardedScope(2 * time.Second)
	defer scope.Close()

	res := sb.Run(`
		local t = {}
		while true do
			table.insert(t, 0xFFFF)
		end
	`)
	if res.Valid() {
		t.Fatalf("expected the memory limit to abort the script")
	}
	if !zugerr.Is(res.Err, zugerr.AllocatorError) {
		t.Fatalf("expected an AllocatorError, got %v", res.Err)
	}
	if !host.AllocState().LimitReached() {
		t.Fatalf("expected the allocator's limitReached flag to be set")
	}
}

func TestSandboxRunWithoutLimiterNeverAccounts(t *testing.T) {
	sb := New(newHost(t), Minimal, "", nil, nil)
	res := sb.Run(`
		local t = {}
		for i = 1, 1000 do
			table.insert(t, i)
		end
		return #t
	`)
	if !res.Valid() {
		t.Fatalf("unexpected error: %v", res.Err)
	}
}
